// Package cycle implements the top-level orchestrator: it fans the
// stage sequence out across active clients, aggregates thousands of
// per-transaction outcomes into one cycle record, and derives the
// terminal cycle status.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fechamento/internal/common"
	"fechamento/internal/model"
	"fechamento/internal/parallel"
	"fechamento/internal/service"
	"fechamento/internal/stage"
)

// Config bounds a cycle run.
type Config struct {
	ClientConcurrency int
	MaxCycleDuration  time.Duration
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		ClientConcurrency: 4,
		MaxCycleDuration:  2 * time.Hour,
	}
}

// StartOptions controls how a cycle is started.
type StartOptions struct {
	Date     time.Time
	ClientID string
	Force    bool
}

// Orchestrator drives cycles. It holds only transient aggregation state
// for the duration of a run; everything durable lives in storage.
type Orchestrator struct {
	storage  service.Storage
	router   *stage.Router
	notifier service.Notifier
	running  map[string]struct{}
	mu       sync.Mutex
	cfg      Config
}

// New creates an orchestrator.
func New(storage service.Storage, router *stage.Router, notifier service.Notifier, cfg Config) *Orchestrator {
	if cfg.ClientConcurrency < 1 {
		cfg.ClientConcurrency = 1
	}
	return &Orchestrator{
		storage:  storage,
		router:   router,
		notifier: notifier,
		running:  make(map[string]struct{}),
		cfg:      cfg,
	}
}

// Start validates eligibility and records a pending cycle. It returns
// before any stage work happens; callers follow up with Run. Starting
// with no eligible active clients is rejected. A forced start on a date
// that already has a cycle records a new, distinct instance.
func (o *Orchestrator) Start(ctx context.Context, opts StartOptions) (*model.Cycle, []model.Client, error) {
	date := opts.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	clients, err := o.eligibleClients(ctx, opts.ClientID)
	if err != nil {
		return nil, nil, err
	}
	if len(clients) == 0 {
		return nil, nil, common.ErrNoActiveClients
	}

	cycleID := model.CycleID(date)
	existing, err := o.storage.GetLatestCycle(ctx, cycleID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, nil, fmt.Errorf("check existing cycle: %w", err)
	}
	if existing != nil && !opts.Force {
		return nil, nil, fmt.Errorf("cycle %s already recorded (instance %s); use force to rerun", cycleID, existing.InstanceID)
	}

	cycle := model.NewCycle(date)
	cycle.ClientsTotal = len(clients)
	if err := o.storage.SaveCycle(ctx, cycle); err != nil {
		return nil, nil, fmt.Errorf("record cycle: %w", err)
	}
	if err := o.saveRunState(ctx, cycle, clients); err != nil {
		return nil, nil, err
	}

	slog.Info("cycle started",
		"cycle_id", cycle.ID,
		"instance_id", cycle.InstanceID,
		"clients", len(clients),
		"forced", opts.Force)
	return cycle, clients, nil
}

// Run executes a started cycle to its terminal status. Each client's
// stage sequence runs independently through the sliding-window runner;
// one client's fatal error never aborts another's. The watchdog stops
// issuing new stage work on expiry while in-flight work drains.
func (o *Orchestrator) Run(ctx context.Context, cycle *model.Cycle, clients []model.Client) error {
	o.setRunning(cycle, true)
	defer o.setRunning(cycle, false)

	cycle.Status = model.CycleRunning
	if err := o.storage.SaveCycle(ctx, cycle); err != nil {
		return fmt.Errorf("mark cycle running: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if o.cfg.MaxCycleDuration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, o.cfg.MaxCycleDuration)
		defer cancel()
	}

	agg := newAggregator(o.storage, cycle)

	parallel.RunSliding(runCtx, clients, o.cfg.ClientConcurrency,
		func(clientCtx context.Context, client model.Client) (struct{}, error) {
			if err := clientCtx.Err(); err != nil {
				agg.recordSkipped(ctx, client.ID, err)
				return struct{}{}, nil
			}
			outcome := o.router.RunClient(clientCtx, cycle.ID, client)
			agg.recordClient(ctx, outcome)
			return struct{}{}, nil
		})

	o.finalize(ctx, cycle)
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, cycle *model.Cycle) {
	// Clients the watchdog prevented from starting at all.
	seen := cycle.ClientsProcessed + cycle.ClientsFailed
	if seen < cycle.ClientsTotal {
		missed := cycle.ClientsTotal - seen
		cycle.ClientsFailed += missed
		cycle.Errors = append(cycle.Errors, model.CycleError{
			ClientID:  "",
			Stage:     model.StageCapture,
			Message:   fmt.Sprintf("%d clients not processed before cycle deadline", missed),
			Timestamp: time.Now().UTC(),
		})
	}

	cycle.Status = model.DeriveCycleStatus(cycle.ClientsTotal, cycle.ClientsFailed)
	now := time.Now().UTC()
	cycle.FinishedAt = &now

	if err := o.storage.SaveCycle(ctx, cycle); err != nil {
		slog.Error("failed to persist terminal cycle",
			"cycle_id", cycle.ID,
			"error", err)
	}
	if err := o.saveRunState(ctx, cycle, nil); err != nil {
		slog.Error("failed to persist terminal run state",
			"cycle_id", cycle.ID,
			"error", err)
	}

	if err := o.notifier.CycleFinished(ctx, cycle); err != nil {
		slog.Warn("cycle notification failed",
			"cycle_id", cycle.ID,
			"error", err)
	}

	slog.Info("cycle finished",
		"cycle_id", cycle.ID,
		"instance_id", cycle.InstanceID,
		"status", cycle.Status,
		"clients_processed", cycle.ClientsProcessed,
		"clients_failed", cycle.ClientsFailed,
		"captured", cycle.TransactionsCaptured,
		"classified", cycle.TransactionsClassified,
		"synced", cycle.TransactionsSynced,
		"in_review", cycle.TransactionsInReview,
		"errors", len(cycle.Errors))
}

// EngineStatus reports whether a cycle instance is currently executing
// inside this process.
func (o *Orchestrator) EngineStatus(cycleID, instanceID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.running[cycleID+"/"+instanceID]; ok {
		return "running"
	}
	return "idle"
}

func (o *Orchestrator) setRunning(cycle *model.Cycle, running bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := cycle.ID + "/" + cycle.InstanceID
	if running {
		o.running[key] = struct{}{}
	} else {
		delete(o.running, key)
	}
}

func (o *Orchestrator) eligibleClients(ctx context.Context, clientID string) ([]model.Client, error) {
	if clientID != "" {
		client, err := o.storage.GetClient(ctx, clientID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, common.NewValidationError("unknown client", err)
			}
			return nil, fmt.Errorf("load client %s: %w", clientID, err)
		}
		if !client.Active {
			return nil, common.ErrNoActiveClients
		}
		return []model.Client{*client}, nil
	}
	clients, err := o.storage.GetActiveClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active clients: %w", err)
	}
	return clients, nil
}

func (o *Orchestrator) saveRunState(ctx context.Context, cycle *model.Cycle, pending []model.Client) error {
	state := &model.CycleRunState{
		CycleID:    cycle.ID,
		InstanceID: cycle.InstanceID,
		State:      cycle.Status,
		UpdatedAt:  time.Now().UTC(),
	}
	for _, client := range pending {
		state.PendingClients = append(state.PendingClients, client.ID)
	}
	if err := o.storage.SaveRunState(ctx, state); err != nil {
		return fmt.Errorf("save run state: %w", err)
	}
	return nil
}
