// Package main is the entry point for auctiond, the live auction server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/api"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/config"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/realtime"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/room"
	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/store"
)

var log = logging.Logger("auctiond")

var rootCmd = &cobra.Command{
	Use:   "auctiond",
	Short: "Live auction server",
	Long: `auctiond runs concurrent live auctions. Bidders join an auction over
WebSocket or a WebRTC DataChannel, submit bids and receive every accepted
bid in real time until the auction closes.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the auction server",
	RunE:  runServe,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runInit,
}

var (
	configPath string
	logLevel   string
	listenAddr string
	force      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "override listen address")
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := logLevel
	if level == "" {
		level = os.Getenv("AUCTIOND_LOG_LEVEL")
	}
	if level == "" {
		level = "info"
	}
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logging.SetAllLoggers(lvl)
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if listenAddr != "" {
		cfg.HTTP.Addr = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logLevel == "" && cfg.Log.Level != "" {
		if err := logging.SetLogLevel("*", cfg.Log.Level); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer backend.Close()

	registry := auction.NewRegistry(backend, auction.Options{
		BidTimeout:       cfg.Auction.BidTimeout,
		SaveTimeout:      cfg.Auction.SaveTimeout,
		RejectSelfOutbid: cfg.Auction.RejectSelfOutbid,
		Clock:            clock.New(),
	})
	sweeper := auction.NewSweeper(registry, cfg.Auction.SweepInterval, cfg.Auction.RetentionWindow)
	hub := room.NewHub(registry, cfg.Realtime.MemberBuffer)
	defer hub.Close()

	auth := realtime.NewAuthenticator(cfg.Realtime.BidderHeader)
	limits := realtime.Limits{BidsPerSecond: cfg.Realtime.BidsPerSecond, BidBurst: cfg.Realtime.BidBurst}
	upgrader := realtime.NewUpgrader(cfg.Realtime.AllowedOrigins)

	router := api.NewRouter(backend, registry, api.Transports{
		WebSocket: &realtime.WSHandler{
			Hub:          hub,
			Auth:         auth,
			Limits:       limits,
			PingInterval: cfg.Realtime.PingInterval,
			PongTimeout:  cfg.Realtime.PongTimeout,
			Upgrader:     upgrader,
		},
		Signal: &realtime.SignalHandler{
			Hub:        hub,
			Auth:       auth,
			Limits:     limits,
			ICEServers: cfg.Realtime.ICEServers,
			Upgrader:   upgrader,
		},
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("auctiond listening", "addr", cfg.HTTP.Addr, "store", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}
	cfg := config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Wrote configuration to %s\n", path)
	return nil
}
