// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netlabio/netlabd/internal/api"
	"github.com/netlabio/netlabd/internal/appliance"
	"github.com/netlabio/netlabd/internal/config"
	"github.com/netlabio/netlabd/internal/controller"
	"github.com/netlabio/netlabd/internal/daemon"
	xlog "github.com/netlabio/netlabd/internal/log"
	"github.com/netlabio/netlabd/internal/notification"
)

var (
	version   = "0.1.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("netlabd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe logging defaults until the config is loaded.
	xlog.Configure(xlog.Config{
		Level:   "info",
		Service: "netlabd",
		Version: version,
	})
	logger := xlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit flag, otherwise ${NETLABD_DATA}/config.yaml if
	// it exists.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		if dataDir := strings.TrimSpace(config.ParseString("NETLABD_DATA", "")); dataDir != "" {
			autoPath := filepath.Join(dataDir, "config.yaml")
			if _, err := os.Stat(autoPath); err == nil {
				effectiveConfigPath = autoPath
			}
		}
	}

	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xlog.Configure(xlog.Config{
		Level:   cfg.LogLevel,
		Service: "netlabd",
		Version: version,
	})

	if effectiveConfigPath != "" {
		logger.Info().Str("source", "file").Str("path", effectiveConfigPath).Msg("configuration loaded")
	} else {
		logger.Info().Str("source", "env+defaults").Msg("configuration loaded")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Msg("daemon failed")
	}
}

func run(ctx context.Context, cfg config.AppConfig) error {
	logger := xlog.WithComponent("main")

	notifications := notification.NewManager(cfg.NotificationQueueSize)

	ctl, err := controller.New(controller.Options{
		ProjectsDir:   cfg.ProjectsDir,
		Version:       cfg.Version,
		Notifications: notifications,
	})
	if err != nil {
		return fmt.Errorf("create controller: %w", err)
	}
	if err := ctl.Load(ctx); err != nil {
		return fmt.Errorf("load projects: %w", err)
	}

	checksums, err := appliance.OpenChecksumCache(filepath.Join(cfg.DataDir, "checksums"))
	if err != nil {
		return fmt.Errorf("open checksum cache: %w", err)
	}

	registry := appliance.NewRegistry(cfg.ApplianceDir, cfg.ImagesDir, checksums)
	if err := registry.Load(); err != nil {
		logger.Warn().Err(err).Msg("initial appliance load failed")
	}
	if err := registry.Watch(ctx); err != nil {
		logger.Warn().Err(err).Msg("appliance watcher could not start")
	}

	server := api.New(cfg, ctl, registry)

	opts := daemon.Options{
		ListenAddr: cfg.ListenAddr,
		APIHandler: server.Handler(),
	}
	if cfg.MetricsEnabled {
		opts.MetricsAddr = cfg.MetricsAddr
		opts.MetricsHandler = promhttp.Handler()
	}

	mgr, err := daemon.NewManager(opts)
	if err != nil {
		return err
	}

	mgr.RegisterShutdownHook("checksum-cache", func(context.Context) error {
		return checksums.Close()
	})
	mgr.RegisterShutdownHook("appliance-watcher", func(context.Context) error {
		registry.Stop()
		return nil
	})
	mgr.RegisterShutdownHook("close-projects", func(shutdownCtx context.Context) error {
		return ctl.CloseAll(shutdownCtx)
	})

	logger.Info().
		Str("version", cfg.Version).
		Str("projects_dir", cfg.ProjectsDir).
		Str("appliance_dir", cfg.ApplianceDir).
		Msg("starting netlabd")

	return mgr.Start(ctx)
}
