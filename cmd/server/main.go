// Package main provides the bridge server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ReynoldsProductions/SpotifyHeadless/internal/api/rest"
	"github.com/ReynoldsProductions/SpotifyHeadless/internal/api/ws"
	"github.com/ReynoldsProductions/SpotifyHeadless/internal/app/bridge"
	"github.com/ReynoldsProductions/SpotifyHeadless/internal/infra/config"
	"github.com/ReynoldsProductions/SpotifyHeadless/internal/infra/logger"
	"github.com/ReynoldsProductions/SpotifyHeadless/internal/infra/spotify"
)

var (
	app        = kingpin.New("spotifyheadless", "Headless Spotify playback bridge")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The upstream is optional: without credentials the bridge serves
	// the read-only surface and rejects control verbs.
	var upstream bridge.Upstream
	if cfg.SpotifyConfigured() {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
		if err := resolveDevice(ctx, cfg, client); err != nil {
			return fmt.Errorf("device resolution failed: %w", err)
		}
		upstream = client
	} else {
		zlog.Warn().Msg("Spotify credentials not configured, control verbs will be rejected")
	}

	gateway := ws.NewGateway()
	b := bridge.New(upstream, gateway, bridge.Config{
		PollInterval:   cfg.PollInterval(),
		ControlEnabled: cfg.ControlEnabled(),
	})
	gateway.Attach(b)

	go gateway.Run(ctx)
	b.Start(ctx)

	mux := http.NewServeMux()
	rest.NewHandler(b).Register(mux)
	gateway.Register(mux, "/ws")

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(mux, &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown. Stop the poll loop and any active ramp first
	// so no broadcast races the hub teardown.
	b.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// resolveDevice pins the configured playback device, retrying while the
// device registry catches up after startup.
func resolveDevice(ctx context.Context, cfg *config.Config, client *spotify.Client) error {
	if cfg.Device.ID == "" && cfg.Device.Name == "" {
		zlog.Info().Msg("No playback device configured, using the active device")
		return nil
	}

	maxRetries := 5
	baseDelay := 1 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			delay := baseDelay * time.Duration(1<<uint(i-1))
			zlog.Info().Msgf("Retrying device resolution in %v...", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		device, err := client.ResolveDevice(ctx, cfg.Device.ID, cfg.Device.Name, cfg.AutoTransferOnStart())
		if err != nil {
			lastErr = err
			zlog.Warn().Msgf("Failed to resolve device (attempt %d/%d): %v", i+1, maxRetries, err)
			continue
		}
		zlog.Info().Msgf("Playback device resolved: name=%s id=%s active=%v", device.Name, device.ID, device.Active)
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %v", maxRetries, lastErr)
}
