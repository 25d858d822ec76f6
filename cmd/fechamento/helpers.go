package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"fechamento/internal/connector"
	"fechamento/internal/cycle"
	"fechamento/internal/notify"
	"fechamento/internal/queue"
	"fechamento/internal/reconcile"
	"fechamento/internal/review"
	"fechamento/internal/service"
	"fechamento/internal/stage"
	"fechamento/internal/storage"
)

// engine bundles the wired components a command needs. Commands that
// only touch storage use openStorage directly instead.
type engine struct {
	storage      service.Storage
	broker       *queue.MemoryBroker
	router       *stage.Router
	gate         *review.Gate
	orchestrator *cycle.Orchestrator
}

func openStorage(ctx context.Context) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(viper.GetString("database.path"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// newEngine wires storage, broker, connectors, stages, review gate and
// orchestrator from configuration. Destinations come from the distinct
// destination kinds of the registered clients.
func newEngine(ctx context.Context) (*engine, error) {
	store, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}

	retry := service.RetryOptions{
		MaxAttempts: viper.GetInt("retry.max_attempts"),
		Delay:       viper.GetDuration("retry.delay"),
	}

	authThreshold, err := decimal.NewFromString(viper.GetString("stage.authorization_threshold"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("invalid stage.authorization_threshold: %w", err)
	}

	var rules []connector.KeywordRule
	if err := viper.UnmarshalKey("classifier.rules", &rules); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("invalid classifier.rules: %w", err)
	}

	clients, err := store.ListClients(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	destinations := make(map[string]service.Destination)
	for _, client := range clients {
		if client.Destination == "" {
			continue
		}
		if _, ok := destinations[client.Destination]; !ok {
			destinations[client.Destination] = connector.NewMemoryDestination(client.Destination)
		}
	}

	broker := queue.NewMemoryBroker(
		viper.GetInt("broker.buffer_size"),
		viper.GetInt("broker.workers"),
		viper.GetInt("broker.max_deliveries"))

	stageCfg := stage.Config{
		Retry:                  retry,
		CaptureLookback:        viper.GetDuration("capture.lookback"),
		TransactionConcurrency: viper.GetInt("stage.transaction_concurrency"),
		ConfidenceThreshold:    viper.GetFloat64("stage.confidence_threshold"),
		AuthorizationThreshold: authThreshold,
	}
	if stageCfg.CaptureLookback <= 0 {
		stageCfg.CaptureLookback = stage.DefaultConfig().CaptureLookback
	}

	reconciler := reconcile.New(store, retry, viper.GetDuration("reconcile.match_window"))
	router := stage.NewRouter(
		store,
		broker,
		connector.NewFileConnector(viper.GetString("capture.dir")),
		connector.NewKeywordClassifier(rules),
		destinations,
		reconciler,
		stageCfg)

	notifier := notify.NewLogNotifier()
	gate := review.NewGate(store, broker, notify.LogFeedback{}, notifier)

	if err := router.Register(); err != nil {
		broker.Close()
		_ = store.Close()
		return nil, err
	}
	if err := gate.Register(); err != nil {
		broker.Close()
		_ = store.Close()
		return nil, err
	}

	orchestrator := cycle.New(store, router, notifier, cycle.Config{
		ClientConcurrency: viper.GetInt("cycle.client_concurrency"),
		MaxCycleDuration:  viper.GetDuration("cycle.max_duration"),
	})

	return &engine{
		storage:      store,
		broker:       broker,
		router:       router,
		gate:         gate,
		orchestrator: orchestrator,
	}, nil
}

// close stops delivery and releases the database. A sync message still
// buffered at shutdown is not lost for good: the transaction stays at
// sync_pending and the next cycle's sweep pushes it.
func (e *engine) close() {
	e.broker.Close()
	_ = e.storage.Close()
}
