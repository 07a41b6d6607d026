package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/keeper/internal/core/config"
	"github.com/vietddude/keeper/internal/core/cursor"
	"github.com/vietddude/keeper/internal/fallback/engine"
	"github.com/vietddude/keeper/internal/fallback/selection"
	"github.com/vietddude/keeper/internal/health"
	"github.com/vietddude/keeper/internal/infra/chain/evm"
	"github.com/vietddude/keeper/internal/infra/drand"
	"github.com/vietddude/keeper/internal/infra/rpc"
	"github.com/vietddude/keeper/internal/infra/rpc/provider"
	"github.com/vietddude/keeper/internal/jobs/spin"
	"github.com/vietddude/keeper/internal/jobs/vrf"
)

// ErrUnknownJob is returned when a job name is not configured.
var ErrUnknownJob = errors.New("unknown job")

// Keeper is the main application struct that owns every job engine.
type Keeper struct {
	cfg          *config.AppConfig
	backend      *backend
	state        *cursor.Manager
	rpc          *rpc.Client
	drandHTTP    *provider.HTTPProvider
	engines      map[string]*engine.Engine
	order        []string
	healthMon    *health.Monitor
	healthServer *health.Server
	cron         *cron.Cron
	log          *slog.Logger
}

// NewKeeper creates a new Keeper with all dependencies initialized.
func NewKeeper(ctx context.Context, cfg *config.AppConfig) (*Keeper, error) {
	// 1. Initialize Storage
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	k := &Keeper{
		cfg:       cfg,
		backend:   be,
		state:     cursor.NewManager(be.store),
		engines:   make(map[string]*engine.Engine),
		healthMon: health.NewMonitor(),
		log:       slog.Default().With("component", "keeper"),
	}

	// 2. Initialize RPC providers, chain adapter and shared components
	providers := make([]rpc.RPCProvider, 0, len(cfg.Chain.Providers))
	for _, p := range cfg.Chain.Providers {
		providers = append(providers, provider.NewHTTPProvider(p.Name, p.URL, cfg.Chain.Timeout))
	}
	k.rpc = rpc.NewClient(providers...)
	adapter := evm.NewEVMAdapter(cfg.Chain.ID, k.rpc)

	multicallAddr := evm.DefaultMulticallAddress(cfg.Chain.ID)
	if cfg.Chain.Multicall != "" {
		multicallAddr = common.HexToAddress(cfg.Chain.Multicall)
	}
	multicall := evm.NewMulticall(adapter, multicallAddr)

	k.drandHTTP = provider.NewHTTPProvider("drand", cfg.Drand.URL, cfg.Drand.Timeout)
	beacons := drand.NewClient(cfg.Drand, k.drandHTTP)

	// 3. Initialize one engine per job
	for _, jc := range cfg.Jobs {
		job, err := buildJob(jc, adapter, beacons)
		if err != nil {
			k.Close()
			return nil, fmt.Errorf("job %s: %w", jc.Name, err)
		}

		selector, err := buildSelector(jc)
		if err != nil {
			k.Close()
			return nil, fmt.Errorf("job %s: %w", jc.Name, err)
		}

		sim := evm.NewSimulator(adapter, common.HexToAddress(jc.SimulationAccount))
		eng, err := engine.New(engineConfig(jc), job, k.state, multicall, selector, sim)
		if err != nil {
			k.Close()
			return nil, fmt.Errorf("job %s: %w", jc.Name, err)
		}

		k.engines[jc.Name] = eng
		k.order = append(k.order, jc.Name)
		slog.Info("Job initialized", "job", jc.Name, "type", jc.Type, "schedule", jc.Schedule, "mode", jc.Selection.Mode)
	}

	k.healthServer = health.NewServer(k.healthMon, cfg.Server.Port)
	return k, nil
}

func buildJob(jc config.JobConfig, adapter *evm.EVMAdapter, beacons *drand.Client) (engine.Job, error) {
	switch jc.Type {
	case config.JobTypeVRF:
		consumer := common.HexToAddress(jc.Consumer)
		events := evm.NewLogSource(adapter, consumer, vrf.RequestedRandomnessTopic)
		return vrf.New(jc.Name, vrf.Config{Consumer: consumer, PruneReverts: jc.PruneReverts}, adapter, events, beacons), nil

	case config.JobTypeSpin:
		table := common.HexToAddress(jc.Table)
		rounds := spin.NewRoundSource(adapter, table)
		return spin.New(jc.Name, spin.Config{
			Table:         table,
			Roulette:      common.HexToAddress(jc.Roulette),
			DueWhenFunded: jc.DueWhenFunded,
		}, rounds), nil
	}
	return nil, fmt.Errorf("unknown job type %q", jc.Type)
}

func buildSelector(jc config.JobConfig) (*selection.Selector, error) {
	mode, err := selection.ParseMode(jc.Selection.Mode)
	if err != nil {
		return nil, err
	}
	window := min(jc.Selection.Window, jc.MaxBatchSize)
	if mode == selection.ModeExhaustive {
		return selection.NewExhaustive(window), nil
	}
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	return selection.NewRandom(rng, window, jc.Selection.Attempts), nil
}

func engineConfig(jc config.JobConfig) engine.Config {
	var delay uint64
	if jc.ConfirmationDelay != nil {
		delay = *jc.ConfirmationDelay
	}
	return engine.Config{
		MaxRangeChunkWidth:     jc.MaxRangeChunkWidth,
		MaxChunksPerInvocation: jc.MaxChunksPerInvocation,
		MaxBatchSize:           jc.MaxBatchSize,
		AgeThreshold:           jc.AgeThreshold,
		ConfirmationDelay:      delay,
		FromPosition:           jc.FromPosition,
	}
}

// Jobs returns the configured job names in configuration order.
func (k *Keeper) Jobs() []string {
	return append([]string(nil), k.order...)
}

// RunOnce performs one invocation of a job.
func (k *Keeper) RunOnce(ctx context.Context, name string) (*engine.Report, error) {
	eng, ok := k.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return k.invoke(ctx, eng), nil
}

// RunAll performs one invocation of each named job concurrently.
// Reports are returned in the order of names.
func (k *Keeper) RunAll(ctx context.Context, names []string) ([]*engine.Report, error) {
	reports := make([]*engine.Report, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			rep, err := k.RunOnce(gctx, name)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// Status reads the persisted state of every configured job.
func (k *Keeper) Status(ctx context.Context) ([]cursor.Summary, error) {
	return k.state.Summaries(ctx, k.order)
}

// ResetCursor overwrites the cursor of a configured job.
func (k *Keeper) ResetCursor(ctx context.Context, name string, position uint64) error {
	if _, ok := k.engines[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return k.state.Reset(ctx, name, position)
}

func (k *Keeper) invoke(ctx context.Context, eng *engine.Engine) *engine.Report {
	rep := eng.Run(ctx)

	k.healthMon.Record(health.Invocation{
		Job:       rep.Job,
		Outcome:   rep.Result.Outcome,
		Message:   rep.Result.Message,
		Cursor:    rep.Cursor,
		QueueSize: rep.QueueSize,
	})
	return rep
}

// Start starts the health server and schedules every job.
func (k *Keeper) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := k.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			k.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if k.backend.db != nil {
		k.backend.db.StartMetricsCollector(ctx)
	}

	logger := cronLogger{log: k.log}
	k.cron = cron.New(
		cron.WithParser(scheduleParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	now := time.Now()
	for _, jc := range k.cfg.Jobs {
		sched, period, err := schedulePeriod(jc.Schedule, now)
		if err != nil {
			return fmt.Errorf("job %s: %w", jc.Name, err)
		}
		eng := k.engines[jc.Name]
		k.cron.Schedule(sched, cron.FuncJob(func() {
			k.invoke(ctx, eng)
		}))
		k.healthMon.Register(jc.Name, period)
		k.log.Info("Scheduled job", "job", jc.Name, "schedule", jc.Schedule, "period", period)
	}

	k.cron.Start()
	return nil
}

// Stop waits for running invocations, then stops the health server and closes connections.
func (k *Keeper) Stop(ctx context.Context) error {
	k.log.Info("Stopping Keeper...")

	if k.cron != nil {
		select {
		case <-k.cron.Stop().Done():
		case <-ctx.Done():
			k.log.Warn("Timed out waiting for running invocations")
		}
	}

	err := k.healthServer.Stop(ctx)
	k.Close()
	return err
}

// Close releases RPC and storage connections.
func (k *Keeper) Close() {
	if k.rpc != nil {
		if err := k.rpc.Close(); err != nil {
			k.log.Warn("Failed to close RPC providers", "error", err)
		}
	}
	if k.drandHTTP != nil {
		_ = k.drandHTTP.Close()
	}
	if err := k.backend.Close(); err != nil {
		k.log.Warn("Failed to close storage", "error", err)
	}
}
