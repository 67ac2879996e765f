package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/rolewarden/internal/api"
	"github.com/charlesng35/rolewarden/internal/app"
	"github.com/charlesng35/rolewarden/internal/bot"
	"github.com/charlesng35/rolewarden/internal/database"
	"github.com/charlesng35/rolewarden/internal/discord"
	"github.com/charlesng35/rolewarden/internal/monitoring"
	"github.com/charlesng35/rolewarden/internal/monitoring/checks"
	"github.com/charlesng35/rolewarden/internal/services"
	"github.com/charlesng35/rolewarden/pkg/logger"
)

const (
	startupTimeout  = 45 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "additional directory to search for config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "rolewarden: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}

	cfg, err := app.LoadConfig(paths...)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.WithModule("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Config{Path: cfg.Database.Path, DSN: cfg.Database.DSN})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	grants, err := services.NewGrantService(db)
	if err != nil {
		return err
	}

	mon, err := monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return fmt.Errorf("monitoring: %w", err)
	}
	mon.Health().Register(checks.Database(db, 0))

	dbot, err := discord.New(discord.Config{
		Token:         cfg.Discord.Token,
		RoleID:        cfg.Tracking.RoleID,
		RoleName:      cfg.Tracking.RoleName,
		Expiry:        cfg.Tracking.Expiry,
		SweepSchedule: cfg.Tracking.SweepSchedule,
	}, grants)
	if err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	err = dbot.Start(startCtx)
	cancelStart()
	if err != nil {
		return err
	}
	defer func() { _ = dbot.Close() }()

	mon.Health().Register(checks.Gateway(dbot.Gateway().Latency))

	if err := dbot.Reconcile(ctx); err != nil {
		// Tracking converges through live events; a failed scan only delays it.
		log.Warn("startup reconciliation incomplete", zap.Error(err))
	}

	sweeper := bot.NewSweeper(grants, dbot.Gateway(),
		bot.WithExpiry(cfg.Tracking.Expiry),
		bot.WithSchedule(cfg.Tracking.SweepSchedule),
		bot.WithNotifications(cfg.Tracking.NotifyOnExpiry),
		bot.WithDropOnRemoteError(cfg.Tracking.DropOnRemoteError),
		bot.WithMetrics(mon.Metrics()),
	)
	if err := sweeper.Start(); err != nil {
		return err
	}

	// The schedule waits a full interval before the first firing; anything
	// that expired while the bot was down should not wait that long.
	go func() {
		if _, err := sweeper.RunOnce(ctx); err != nil {
			log.Warn("initial sweep finished with errors", zap.Error(err))
		}
	}()

	var server *http.Server
	if cfg.Server.HealthEnabled {
		gin.SetMode(gin.ReleaseMode)
		router, err := api.NewRouter(mon, cfg.Monitoring.Prometheus.Enabled, cfg.Monitoring.Prometheus.Endpoint)
		if err != nil {
			return err
		}

		server = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: router,
		}
		go func() {
			log.Info("liveness server listening", zap.String("addr", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("liveness server failed", zap.Error(err))
			}
		}()
	}

	log.Info("rolewarden running",
		zap.Duration("expiry", cfg.Tracking.Expiry),
		zap.String("sweep_schedule", cfg.Tracking.SweepSchedule),
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("liveness server shutdown failed", zap.Error(err))
		}
	}

	select {
	case <-sweeper.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("sweep cycle did not drain before shutdown deadline")
	}

	return nil
}
