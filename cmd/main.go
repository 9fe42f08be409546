package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/meetstake/internal/adapters/blob"
	"github.com/okian/meetstake/internal/adapters/chat"
	"github.com/okian/meetstake/internal/adapters/http/ops"
	"github.com/okian/meetstake/internal/adapters/ledger"
	"github.com/okian/meetstake/internal/adapters/recordstore"
	app "github.com/okian/meetstake/internal/app"
	"github.com/okian/meetstake/internal/config"
	"github.com/okian/meetstake/internal/conversation"
	"github.com/okian/meetstake/internal/domain/geofence"
	"github.com/okian/meetstake/internal/domain/session"
	"github.com/okian/meetstake/internal/orchestrator"
	"github.com/okian/meetstake/internal/render"
	"github.com/okian/meetstake/pkg/logger"
	"github.com/okian/meetstake/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			logger.Error(err)
		}
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}
	if err := cfg.Validate(); err != nil {
		// Fail fast: the bot cannot run without its credentials.
		os.Stderr.WriteString("invalid config: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Record store: Postgres when configured, in-memory for local runs.
	var store recordstore.Store
	if cfg.DatabaseURL != "" {
		pg, err := recordstore.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			os.Stderr.WriteString("failed to connect record store: " + err.Error() + "\n")
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			os.Stderr.WriteString("failed to apply schema: " + err.Error() + "\n")
			os.Exit(1)
		}
		store = pg
		log.Info(ctx, "using postgres record store")
	} else {
		store = recordstore.NewMemoryStore()
		log.Warn(ctx, "no database_url set; using in-memory record store")
	}

	// Ledger gateway and custodial keyring.
	gateway := ledger.NewGatewayClient(cfg.GatewayURL, cfg.ContractAddress)
	keyring := ledger.NewGatewayKeyring(cfg.GatewayURL, cfg.OperatorAddress)

	// Blob store for memory photos.
	blobs := blob.New(cfg.BlobPublisherURL, cfg.BlobAggregatorURL, blob.WithEpochs(cfg.BlobEpochs))

	// Chat transport.
	bot := chat.NewBotClient(cfg.BotAPIBase, cfg.BotToken,
		chat.WithPollTimeout(time.Duration(cfg.BotPollTimeoutSec)*time.Second),
	)

	orch := orchestrator.New(store, gateway, keyring, blobs, bot,
		orchestrator.WithConfirmTimeout(time.Duration(cfg.ConfirmTimeoutSec)*time.Second),
		orchestrator.WithGeofence(geofence.New(geofence.WithThresholdKM(cfg.GeofenceRadiusKM))),
	)

	machine := conversation.New(session.NewMemoryStore(), orch)

	svc := app.New(bot, machine, orch, render.New(cfg.CurrencySymbol, cfg.NetworkLabel),
		app.WithLogger(log),
		app.WithQueueSize(cfg.QueueSize),
		app.WithWorkerCount(cfg.WorkerCount),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}

	// Reconciler repairs mirror rows the two-phase writes missed.
	reconciler := orchestrator.NewReconciler(store, gateway,
		orchestrator.WithSweepInterval(time.Duration(cfg.ReconcileIntervalSec)*time.Second),
	)
	go reconciler.Run(ctx)

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Operational HTTP listener: health plus metrics, stats.
	mux := http.NewServeMux()
	ops.NewServer(svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting ops HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info(ctx, "shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "stopped")
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.UpdateSystemMemoryUsage(m.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		}
	}
}
