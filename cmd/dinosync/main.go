package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/mohsale1/dino-sync/internal/api"
	"github.com/mohsale1/dino-sync/internal/bridge"
	"github.com/mohsale1/dino-sync/internal/config"
	"github.com/mohsale1/dino-sync/internal/connection"
	"github.com/mohsale1/dino-sync/internal/connectivity"
	"github.com/mohsale1/dino-sync/internal/credentials"
	"github.com/mohsale1/dino-sync/internal/events"
	"github.com/mohsale1/dino-sync/internal/journal"
	"github.com/mohsale1/dino-sync/internal/model"
	"github.com/mohsale1/dino-sync/internal/protocol"
	"github.com/mohsale1/dino-sync/internal/realtime"
	"github.com/mohsale1/dino-sync/internal/service"
	"github.com/mohsale1/dino-sync/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "token:", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "configs/dinosync.local.yaml", "path to config file")
	envFiles := flag.String("env", ".env", "comma-separated .env files to load before the config")
	flag.Parse()

	if err := config.LoadEnvFiles(strings.Split(*envFiles, ",")...); err != nil {
		slog.Error("failed to load env files", "error", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	level, _ := config.ParseLevel(cfg.Client.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting dinosync",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"client_id", cfg.Client.ID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dinosync failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dinosync stopped")
}

func run(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger) error {
	tokens := credentials.Checked(tokenSource(cfg.Session), nil)

	identity, err := credentials.ResolveIdentity(ctx, tokens, cfg.IdentityOverrides())
	if err != nil {
		logger.Warn("could not read identity from token, using configured overrides", "error", err)
		identity = cfg.IdentityOverrides()
	}
	if identity.VenueID == "" {
		return errors.New("no venue id in token claims or session.venue_id")
	}

	// Create API client
	apiClient := api.NewClient(
		cfg.API.BaseURL,
		tokens,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetryPolicy(api.RetryPolicy{MaxRetries: cfg.API.MaxRetries, Backoff: time.Second}),
		api.WithUserAgent("dinosync/"+version.Version),
	)

	// Assigned before svc.Init; nothing reaches the tap until the connection opens.
	var journalWriter *journal.Writer
	tap := func(env protocol.Envelope) {
		if journalWriter != nil {
			journalWriter.Record(env)
		}
	}

	connCfg := cfg.ToConnection()
	manager := connection.NewManager(
		connCfg,
		connection.NewWebSocketTransport(connCfg, logger),
		tokens,
		events.NewBus[protocol.Envelope](events.WithLogger(logger)),
		connection.WithLogger(logger),
		connection.WithTap(tap),
	)

	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)
		pool, err := journal.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal: %w", err)
		}
		defer pool.Close()
		if err := journal.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		journalWriter = journal.NewWriter(journal.Config{
			ClientID:      cfg.Client.ID,
			SessionID:     manager.SessionID().String(),
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, nil, logger)
		if err := journalWriter.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		defer stopWithin(logger, "journal", 10*time.Second, journalWriter.Stop)
	}

	br := bridge.New(bridge.WithLogger(logger))
	svc := service.New(manager, br, logger)
	vs := registerViews(svc, apiClient, cfg.Sync, logger)

	br.OnNotification(func(n model.Notification) {
		logger.Info("notification", "title", n.Title, "priority", n.Priority)
	})
	stopWatch := manager.Watch(func(st connection.Status) {
		logger.Info("connection status",
			"status", st.Label(),
			"attempts", st.Attempts,
			"pending", st.Pending,
		)
	})
	defer stopWatch()

	prober := connectivity.New(cfg.ToConnectivity(), apiClient, manager, logger)
	if err := prober.Start(ctx); err != nil {
		return fmt.Errorf("start connectivity prober: %w", err)
	}
	defer stopWithin(logger, "connectivity prober", 5*time.Second, prober.Stop)

	if err := svc.Init(ctx, identity); err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	defer svc.Teardown()

	logger.Info("dinosync running",
		"venue", identity.VenueID,
		"user", identity.UserID,
		"session", manager.SessionID(),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Health.Port > 0 {
		healthServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
			Handler: createHealthHandler(manager, vs, func() *journal.Writer { return journalWriter }, svc.Reconnect),
		}
		g.Go(func() error {
			logger.Info("starting health server", "port", cfg.Health.Port)
			if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return healthServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				logStatus(logger, manager, vs)
			}
		}
	})

	// Wait for shutdown
	err = g.Wait()
	logger.Info("shutting down...")
	return err
}

// stopWithin runs stop under a fresh timeout and logs a failed or late stop.
func stopWithin(logger *slog.Logger, name string, timeout time.Duration, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn(name+" stop failed", "error", err)
	}
}

// tokenSource picks the configured token source, preferring a literal token.
func tokenSource(s config.SessionConfig) credentials.Source {
	switch {
	case s.Token != "":
		return credentials.Static(s.Token)
	case s.TokenFile != "":
		return credentials.File(s.TokenFile)
	default:
		return credentials.Env(s.TokenEnv)
	}
}

// views are the synchronized resources of a venue session.
type views struct {
	orders *realtime.Synchronizer[[]model.Order]
	tables *realtime.Synchronizer[[]model.Table]
	venue  *realtime.Synchronizer[model.VenueStatus]
}

func registerViews(svc *service.Service, client *api.Client, cfg config.SyncConfig, logger *slog.Logger) views {
	v := views{
		orders: service.Register(svc, "orders", func(id protocol.Identity) realtime.Params[[]model.Order] {
			return realtime.Params[[]model.Order]{
				Fetch: func(ctx context.Context) ([]model.Order, error) {
					return client.GetActiveOrders(ctx, id.VenueID)
				},
				Triggers: []string{protocol.TypeOrderUpdate},
				Interval: cfg.OrdersInterval,
			}
		}, realtime.WithLogger(logger)),
		tables: service.Register(svc, "tables", func(id protocol.Identity) realtime.Params[[]model.Table] {
			return realtime.Params[[]model.Table]{
				Fetch: func(ctx context.Context) ([]model.Table, error) {
					return client.GetTables(ctx, id.VenueID)
				},
				Triggers: []string{protocol.TypeTableUpdate, protocol.TypeOrderUpdate},
				Interval: cfg.TablesInterval,
			}
		}, realtime.WithLogger(logger)),
		venue: service.Register(svc, "venue", func(id protocol.Identity) realtime.Params[model.VenueStatus] {
			return realtime.Params[model.VenueStatus]{
				Fetch: func(ctx context.Context) (model.VenueStatus, error) {
					return client.GetVenueStatus(ctx, id.VenueID)
				},
				Triggers: []string{protocol.TypeVenueUpdate},
				Interval: cfg.VenueInterval,
			}
		}, realtime.WithLogger(logger)),
	}

	v.orders.OnChange(func(st realtime.State[[]model.Order]) {
		if st.Loading || st.Err != nil {
			return
		}
		active := 0
		for _, o := range st.Data {
			if o.Status.IsActive() {
				active++
			}
		}
		logger.Debug("orders synced", "active", active)
	})
	return v
}

func logStatus(logger *slog.Logger, manager *connection.Manager, v views) {
	st := manager.Status()
	stats := manager.Stats()
	logger.Info("status",
		"connection", st.Label(),
		"received", humanize.Comma(stats.Received),
		"sent", humanize.Comma(stats.Sent),
		"orders_updated", lastUpdated(v.orders.State().LastUpdated),
		"tables_updated", lastUpdated(v.tables.State().LastUpdated),
		"venue_updated", lastUpdated(v.venue.State().LastUpdated),
	)
}

func lastUpdated(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
