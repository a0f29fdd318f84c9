package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"upsbox/internal/appliance"
	"upsbox/internal/config"
	"upsbox/internal/metrics"
	"upsbox/internal/netif"
	"upsbox/internal/store"
	"upsbox/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// transport is the broker-facing side of the appliance.
type transport interface {
	Stop()
}

type noopTransport struct{}

func (noopTransport) Stop() {}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "upsbox",
		Short:         "Control plane of the UPS distribution box",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(configPath, cmd.Flags())
			if err != nil {
				slog.Error("upsbox exited", "err", err)
			}
			return err
		},
	}
	f := root.Flags()
	f.StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	f.String("iface", "", "network interface to manage (overrides network.interface)")
	f.String("config-ip", "", "fixed administrative address of the interface (overrides network.config_ip)")
	f.String("listen", "", "HTTP listen address (overrides web.listen)")
	f.Bool("dry-run", false, "keep network changes in memory instead of applying them")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func run(configPath string, flags *pflag.FlagSet) error {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLogger.Warn("load config, using defaults", "path", configPath, "err", err)
		cfg = config.Default()
	}
	if err := applyFlags(cfg, flags); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	configIP, _ := cfg.ConfigAddr()

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("upsbox starting", "version", version)

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	// Persisted settings take precedence over the file.
	deviceName := cfg.DeviceName
	broker, _ := cfg.BrokerEndpoint()
	settings, err := store.LoadSettings(db)
	if err != nil {
		logger.Warn("load persisted settings", "err", err)
	}
	if settings.DeviceName != nil {
		deviceName = *settings.DeviceName
	}
	if settings.Broker != nil {
		broker = *settings.Broker
	}

	nif, err := newNetif(cfg, configIP, logger)
	if err != nil {
		return fmt.Errorf("open network interface handle: %w", err)
	}
	defer nif.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	events := appliance.NewEventBus(logger)
	app := appliance.New(nif, appliance.NewState(deviceName, broker), events, appliance.Config{
		Interface:   cfg.Network.Interface,
		ConfigIP:    configIP,
		GracePeriod: cfg.Network.GracePeriod,
	}, m, logger)
	app.Start()

	if cfg.Network.RestoreOnStart && settings.Network != nil {
		if err := app.RestoreNetwork(*settings.Network); err != nil {
			logger.Warn("restore network setting", "setting", settings.Network.String(), "err", err)
		}
	}

	writer := store.NewWriter(db, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writer.Run(ctx, app.SaveQueue())
	}()

	startSerial(ctx, &wg, cfg, app, logger)

	// Start the broker transport (loopback when built with no_mqtt or disabled).
	mqtt := initMQTT(app, cfg, broker, logger)

	webOpts := []web.ServerOption{web.WithVersion(version), web.WithStore(db)}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	if m != nil {
		webOpts = append(webOpts, web.WithMetrics(m))
	}
	webServer, err := web.NewServer(app, logger, webOpts...)
	if err != nil {
		mqtt.Stop()
		app.Stop()
		return fmt.Errorf("create web server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	app.Stop()
	cancel()
	wg.Wait()
	writer.Drain(app.SaveQueue())

	logger.Info("goodbye")
	return nil
}

// applyFlags overrides file values with explicitly set command line flags.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	var err error
	set := func(name string, dst *string) {
		if err != nil || !flags.Changed(name) {
			return
		}
		*dst, err = flags.GetString(name)
	}
	set("iface", &cfg.Network.Interface)
	set("config-ip", &cfg.Network.ConfigIP)
	set("listen", &cfg.Web.Listen)
	if err == nil && flags.Changed("dry-run") {
		cfg.Network.DryRun, err = flags.GetBool("dry-run")
	}
	return err
}

func newNetif(cfg *config.Config, configIP netip.Addr, logger *slog.Logger) (netif.Manager, error) {
	if cfg.Network.DryRun {
		logger.Warn("network dry run: interface changes are not applied", "iface", cfg.Network.Interface)
		return netif.NewFake(cfg.Network.Interface, netip.PrefixFrom(configIP, 24)), nil
	}
	return netif.NewNetlink(logger)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
