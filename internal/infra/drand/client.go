// Package drand resolves randomness beacons from a drand HTTP relay.
package drand

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/vietddude/keeper/internal/infra/rpc/provider"
)

var (
	// ErrNotAvailable is returned when the round has not been published yet.
	ErrNotAvailable = errors.New("drand round not available yet")

	// ErrInvalidBeacon is returned when the randomness does not match the signature.
	ErrInvalidBeacon = errors.New("invalid drand beacon")
)

// Quicknet parameters, used when the configuration leaves them empty.
const (
	DefaultURL       = "https://api.drand.sh"
	DefaultChainHash = "52db9ba70e0cc0f6eaf7803dd07447a1f5477735fd3f661792ba94600c84e971"
	DefaultGenesis   = 1692803367
	DefaultPeriod    = 3 * time.Second
)

// Config holds drand relay configuration.
type Config struct {
	URL       string        `yaml:"url"`
	ChainHash string        `yaml:"chain_hash"`
	Genesis   int64         `yaml:"genesis"`
	Period    time.Duration `yaml:"period"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RESTClient is the HTTP surface the client needs. *provider.HTTPProvider implements it.
type RESTClient interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

// Beacon is one published drand round.
type Beacon struct {
	Round      uint64
	Randomness []byte
	Signature  []byte
}

// Value returns the randomness as an unsigned 256-bit integer.
func (b Beacon) Value() *big.Int {
	return new(big.Int).SetBytes(b.Randomness)
}

type Client struct {
	http      RESTClient
	chainHash string
	genesis   int64
	period    time.Duration
	now       func() time.Time
}

func NewClient(cfg Config, http RESTClient) *Client {
	c := &Client{
		http:      http,
		chainHash: cfg.ChainHash,
		genesis:   cfg.Genesis,
		period:    cfg.Period,
		now:       time.Now,
	}
	if c.chainHash == "" {
		c.chainHash = DefaultChainHash
	}
	if c.genesis == 0 {
		c.genesis = DefaultGenesis
	}
	if c.period == 0 {
		c.period = DefaultPeriod
	}
	return c
}

// RoundTime returns the unix time (seconds) at which round is published.
func (c *Client) RoundTime(round uint64) int64 {
	if round == 0 {
		return c.genesis
	}
	return c.genesis + int64(round-1)*int64(c.period/time.Second)
}

// CurrentRound returns the latest round that should be published at t.
func (c *Client) CurrentRound(t time.Time) uint64 {
	elapsed := t.Unix() - c.genesis
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed/int64(c.period/time.Second)) + 1
}

type beaconJSON struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
	Signature  string `json:"signature"`
}

// Resolve fetches the beacon of a round.
func (c *Client) Resolve(ctx context.Context, round uint64) (Beacon, error) {
	if round > c.CurrentRound(c.now()) {
		return Beacon{}, fmt.Errorf("%w: round %d", ErrNotAvailable, round)
	}

	raw, err := c.http.Get(ctx, fmt.Sprintf("%s/public/%d", c.chainHash, round))
	if err != nil {
		var statusErr *provider.HTTPStatusError
		if errors.As(err, &statusErr) &&
			(statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusTooEarly) {
			return Beacon{}, fmt.Errorf("%w: round %d", ErrNotAvailable, round)
		}
		return Beacon{}, fmt.Errorf("fetch drand round %d: %w", round, err)
	}

	var bj beaconJSON
	if err := json.Unmarshal(raw, &bj); err != nil {
		return Beacon{}, fmt.Errorf("decode drand round %d: %w", round, err)
	}
	if bj.Round != round {
		return Beacon{}, fmt.Errorf("%w: asked for round %d, got %d", ErrInvalidBeacon, round, bj.Round)
	}

	randomness, err := hex.DecodeString(bj.Randomness)
	if err != nil {
		return Beacon{}, fmt.Errorf("%w: randomness: %v", ErrInvalidBeacon, err)
	}
	signature, err := hex.DecodeString(bj.Signature)
	if err != nil {
		return Beacon{}, fmt.Errorf("%w: signature: %v", ErrInvalidBeacon, err)
	}
	digest := sha256.Sum256(signature)
	if !bytes.Equal(digest[:], randomness) {
		return Beacon{}, fmt.Errorf("%w: round %d randomness is not sha256(signature)", ErrInvalidBeacon, round)
	}

	return Beacon{Round: round, Randomness: randomness, Signature: signature}, nil
}
