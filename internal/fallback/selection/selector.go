package selection

import (
	"fmt"
	"math/rand/v2"

	"github.com/vietddude/keeper/internal/core/domain"
)

// Mode selects how candidates are attempted.
type Mode string

const (
	// ModeSingle attempts one uniformly random candidate, falling back to
	// other random candidates on retryable failures.
	ModeSingle Mode = "single"

	// ModeExhaustive attempts every candidate in the window and collects all successes.
	ModeExhaustive Mode = "exhaustive"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSingle:
		return ModeSingle, nil
	case ModeExhaustive:
		return ModeExhaustive, nil
	default:
		return "", fmt.Errorf("unknown selection mode %q", s)
	}
}

type Selector struct {
	mode     Mode
	window   int
	attempts int
	rng      *rand.Rand
}

// NewRandom returns a single-choice selector sampling from the first window
// eligible requests. attempts bounds the number of distinct candidates tried.
func NewRandom(rng *rand.Rand, window, attempts int) *Selector {
	if attempts < 1 {
		attempts = 1
	}
	return &Selector{mode: ModeSingle, window: window, attempts: attempts, rng: rng}
}

// NewExhaustive returns a selector attempting the first window eligible requests in order.
func NewExhaustive(window int) *Selector {
	return &Selector{mode: ModeExhaustive, window: window}
}

func (s *Selector) Mode() Mode {
	return s.mode
}

// Candidates returns the requests to attempt, in attempt order.
func (s *Selector) Candidates(eligible domain.Queue) []domain.PendingRequest {
	n := len(eligible)
	if s.window > 0 && s.window < n {
		n = s.window
	}
	if n == 0 {
		return nil
	}

	if s.mode == ModeExhaustive {
		out := make([]domain.PendingRequest, n)
		copy(out, eligible[:n])
		return out
	}

	// Partial Fisher-Yates: every prefix is a uniform sample without replacement.
	k := min(s.attempts, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	out := make([]domain.PendingRequest, k)
	for i := 0; i < k; i++ {
		j := i + s.rng.IntN(n-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = eligible[idx[i]]
	}
	return out
}
