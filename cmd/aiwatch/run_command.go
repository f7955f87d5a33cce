package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"aiwatch/internal/backend"
	"aiwatch/internal/channel"
	"aiwatch/internal/config"
	"aiwatch/internal/costsink"
	"aiwatch/internal/engine"
	"aiwatch/internal/localapi"
	"aiwatch/internal/logging"
	"aiwatch/internal/metrics"
	"aiwatch/internal/statestore"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the watcher in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(cmd.Context(), ctx)
		},
	}
}

func runWatcher(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another aiwatch watcher is already running for %s", cfg.Paths.StateDir)
	}
	defer func() { _ = lock.Unlock() }()

	w, err := newWatcher(cfg, logger)
	if err != nil {
		return err
	}
	defer w.close()

	logger.Info("aiwatch watcher starting",
		logging.String("owner_id", cfg.Backend.OwnerID),
		logging.String("backend", cfg.Backend.BaseURL),
		logging.String("state_db", cfg.StateDBPath()),
	)
	err = w.run(signalCtx)
	logger.Info("aiwatch watcher stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watcher bundles the long-running components of `aiwatch run`.
type watcher struct {
	logger  *slog.Logger
	store   *statestore.Store
	engine  *engine.Engine
	session *channel.Session
	api     *localapi.Server
	sink    *costsink.Sink
}

func newWatcher(cfg *config.Config, logger *slog.Logger) (*watcher, error) {
	w := &watcher{logger: logger}
	ok := false
	defer func() {
		if !ok {
			w.close()
		}
	}()

	store, err := statestore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open state cache: %w", err)
	}
	w.store = store

	client, err := backend.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	sink, err := costsink.New(cfg.Influx, logger)
	if err != nil {
		return nil, fmt.Errorf("cost sink: %w", err)
	}
	w.sink = sink

	m := metrics.New()
	opts := engine.OptionsFromConfig(cfg)
	opts.Backend = client
	opts.Store = store
	opts.Recorder = m
	opts.Logger = logger
	if sink != nil {
		opts.Sink = sink
	}
	eng, err := engine.New(opts)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	w.engine = eng

	snap, found, err := store.Load(context.Background())
	switch {
	case err != nil:
		logging.WarnWithContext(logger, "state cache unreadable; starting empty", "state_load_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the dashboard is empty until the first pull completes"),
			logging.String(logging.FieldErrorHint, "delete "+cfg.StateDBPath()+" if the problem persists"),
		)
	case found:
		eng.Restore(snap)
		logger.Info("state cache restored",
			logging.Int("jobs", len(snap.Jobs)),
			logging.String("saved_at", snap.SavedAt.UTC().Format("2006-01-02T15:04:05Z")),
		)
	}

	session, err := channel.NewSession(channel.Options{
		URL:               cfg.Backend.WebsocketURL,
		OwnerID:           cfg.Backend.OwnerID,
		Token:             cfg.Backend.APIToken,
		Observers:         []channel.Observer{eng, m},
		Logger:            logger,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		MaxMissedPongs:    cfg.Channel.MaxMissedPongs,
		ReconnectInitial:  cfg.ReconnectInitial(),
		ReconnectMax:      cfg.ReconnectMax(),
		ReconnectJitter:   cfg.Channel.ReconnectJitter,
	})
	if err != nil {
		return nil, fmt.Errorf("sync channel: %w", err)
	}
	w.session = session

	w.api = localapi.New(eng, localapi.Options{
		Bind:        cfg.API.Bind,
		Token:       cfg.API.Token,
		OwnerID:     cfg.Backend.OwnerID,
		StateDBPath: cfg.StateDBPath(),
		Metrics:     m.Handler(),
		Logger:      logger,
	})
	ok = true
	return w, nil
}

func (w *watcher) run(ctx context.Context) error {
	if err := w.sink.Ready(ctx); err != nil {
		logging.WarnWithContext(w.logger, "influx not ready; cost writes may fail", "cost_sink_unready",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the [influx] url and token"),
		)
	}
	if err := w.api.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.engine.Run(gctx) })
	g.Go(func() error { return w.session.Run(gctx, w.engine) })
	return g.Wait()
}

func (w *watcher) close() {
	if w.api != nil {
		w.api.Stop()
	}
	w.sink.Close()
	if w.store != nil {
		if err := w.store.Close(); err != nil {
			w.logger.Warn("close state cache", logging.Error(err))
		}
	}
}
