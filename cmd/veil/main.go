// Package main provides the Veil entry point: the daemon and its control CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/veilnet/veil/internal/api"
	"github.com/veilnet/veil/internal/cli"
	"github.com/veilnet/veil/internal/config"
	"github.com/veilnet/veil/internal/driver"
	"github.com/veilnet/veil/internal/health"
	"github.com/veilnet/veil/internal/keystore"
	"github.com/veilnet/veil/internal/logging"
	"github.com/veilnet/veil/internal/metrics"
	"github.com/veilnet/veil/internal/remote"
	"github.com/veilnet/veil/internal/version"
	"github.com/veilnet/veil/internal/vpn"
)

// statsInterval is the traffic sampling cadence; speeds are derived per tick.
const statsInterval = time.Second

var (
	configFile string

	// Config init flags
	initOutput string
	initForce  bool

	rootCmd = &cobra.Command{
		Use:   "veil",
		Short: "Veil VPN client",
		Long:  `Veil runs a WireGuard tunnel as a local daemon controlled over a loopback REST API.`,
		RunE:  run,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultPath(), "config file path")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultAppConfig()
			if err := config.LoadAndValidate(configFile, &cfg); err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Println("Configuration is valid")
			return nil
		},
	})

	rootCmd.AddCommand(cli.NewCommands())
	rootCmd.AddCommand(cli.NewAuthCommands())

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a sample configuration file",
		Long: `Generate a configuration file with sensible defaults.

The generated configuration includes:
  - Automatic backend selection (embedded engine, falling back to wg-quick)
  - The loopback control API listener
  - Logging and tunnel health probe settings`,
		RunE: runConfigInit,
	}

	initCmd.Flags().StringVarP(&initOutput, "output", "o", config.DefaultPath(), "output file path")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing file")

	configCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("file %s already exists (use --force to overwrite)", initOutput)
		}
	}

	cfg := config.DefaultAppConfig()
	if err := config.Save(initOutput, &cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Generated configuration: %s\n\n", initOutput)
	fmt.Println("Next steps:")
	fmt.Printf("  1. Review and customize the configuration\n")
	fmt.Printf("  2. Start the daemon: veil -c %s\n", initOutput)
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultAppConfig()
	if err := config.LoadAndValidate(configFile, &cfg); err != nil {
		// A missing config file means defaults; anything else is fatal.
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config: %w", err)
		}
	}

	if err := logging.Setup(cfg.Logging); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logging.Close()

	log := logging.WithComponent("daemon")
	log.Info("starting", "version", version.Short(), "backend", cfg.Backend)

	drv, err := driver.New(driver.Backend(cfg.Backend), cfg.StateDir, logging.WithComponent("driver"))
	if err != nil {
		return fmt.Errorf("select backend: %w", err)
	}

	manager := vpn.NewManager(drv, logging.WithComponent("vpn"))

	var directory api.Directory
	if cfg.Remote.URL != "" {
		token, err := keystore.New().Token(cfg.Remote.Account)
		if err != nil && !errors.Is(err, keystore.ErrNotFound) {
			return fmt.Errorf("read control-plane token: %w", err)
		}
		directory = remote.NewClient(cfg.Remote.URL, token,
			remote.WithLogger(logging.WithComponent("remote")))
	}

	var m *metrics.Metrics
	if cfg.API.Metrics {
		m = metrics.New(metrics.NewTunnelCollector(manager))
	}

	server := api.New(api.Config{
		Manager:   manager,
		Directory: directory,
		Checker:   health.New(cfg.Health),
		Metrics:   m,
		Token:     cfg.API.Token,
		Logger:    logging.WithComponent("api"),
	})

	httpServer := &http.Server{
		Addr:              cfg.API.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("control API listening", "addr", cfg.API.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Traffic sampling loop.
	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				manager.UpdateStats()
			}
		}
	}()

	// Optional static profile: connect immediately when one is configured.
	if cfg.Tunnel != nil {
		if err := manager.Connect(ctx, cfg.Tunnel); err != nil {
			log.Error("initial connect failed", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("received signal", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("control API: %w", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if manager.Status().State == vpn.StateConnected {
		if err := manager.Disconnect(shutdownCtx); err != nil {
			log.Error("disconnect on shutdown failed", "error", err)
		}
	}
	return httpServer.Shutdown(shutdownCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
