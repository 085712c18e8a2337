package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rhuss/warden/pkg/config"
	"github.com/rhuss/warden/pkg/debug"
	transporthttp "github.com/rhuss/warden/pkg/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the warden HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func serve(cfg *config.Config) error {
	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})
	logger := slog.Default()
	if cats := debug.Categories(); len(cats) > 0 {
		logger.Info("debug categories enabled", "categories", cats)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedUsers(ctx, store, cfg.Auth.Users); err != nil {
		return err
	}

	gw, err := buildGateway(cfg, store, logger)
	if err != nil {
		return err
	}

	if gw.sessions != nil && cfg.Auth.Session.CleanupInterval > 0 {
		go gw.sessions.RunJanitor(ctx, cfg.Auth.Session.CleanupInterval)
	}

	opts := transporthttp.RouterOptions{
		Service:     gw.service,
		Sessions:    gw.sessions,
		BypassPaths: cfg.Auth.BypassPaths,
		Ready:       []transporthttp.HealthChecker{store},
		Logger:      logger,
	}
	if cfg.Observability.Metrics.Enabled {
		opts.Metrics = promhttp.Handler()
		opts.MetricsPath = cfg.Observability.Metrics.Path
	}

	srv := transporthttp.NewServer(transporthttp.NewRouter(opts),
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	)

	ln, err := net.Listen("tcp", srv.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", srv.Addr(), err)
	}

	logger.Info("warden starting",
		"addr", ln.Addr().String(),
		"plugins", cfg.Auth.Plugins,
		"anonymous", cfg.Auth.Anonymous,
		"storage", cfg.Storage.Type,
	)
	return srv.Serve(ctx, ln)
}
