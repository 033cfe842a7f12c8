package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/user/sctid/internal/observability"
	"github.com/user/sctid/internal/reservation"
	"github.com/user/sctid/internal/server"
	"github.com/user/sctid/internal/service"
	"github.com/user/sctid/internal/store"
	"github.com/user/sctid/internal/strategy"
)

const envPrefix = "SCTID_"

var (
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "sctid",
	Version: version,
	Short:   "sctid: terminology component identifier service",
	Long:    "Generates, registers and tracks check-digit protected component identifiers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := applyEnv(cmd.Flags()); err != nil {
			return err
		}
		setupLogging()
		return nil
	},
	SilenceUsage: true,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the identifier server",
	RunE:  runServer,
}

var (
	bindAddr         string
	dataDir          string
	storeBackend     string
	strategyName     string
	maxAttempts      int
	maxQuantity      int
	reservationsFile string
	noSync           bool
	otelEnabled      bool
	otelEndpoint     string
	otelSampleRatio  float64
	metricsEnabled   bool
	adminSecret      string
	oidcIssuerURL    string
	oidcClientID     string
	shutdownTimeout  = 5 * time.Second
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	serverCmd.Flags().StringVar(&bindAddr, "bind", ":8080", "HTTP server bind address")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "data", "Directory for the identifier store and reservation registry")
	serverCmd.Flags().StringVar(&storeBackend, "store", store.BackendPebble, "Identifier store backend: pebble, badger, or sqlite")
	serverCmd.Flags().StringVar(&strategyName, "strategy", strategy.NameSequential, "Generation strategy: sequential or random")
	serverCmd.Flags().IntVar(&maxAttempts, "max-attempts", service.DefaultMaxAttempts, "Maximum strategy attempts per generate call")
	serverCmd.Flags().IntVar(&maxQuantity, "max-quantity", server.DefaultMaxQuantity, "Maximum identifiers per generate request")
	serverCmd.Flags().StringVar(&reservationsFile, "reservations-file", "", "YAML reservation definitions applied at startup")
	serverCmd.Flags().BoolVar(&noSync, "no-sync", false, "Disable fsync on store writes (unsafe; testing only)")
	serverCmd.Flags().BoolVar(&otelEnabled, "otel-enabled", false, "Enable OpenTelemetry tracing")
	serverCmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP HTTP endpoint (host:port) for traces; if empty uses stdout exporter")
	serverCmd.Flags().Float64Var(&otelSampleRatio, "otel-sample-ratio", 1, "Share of root spans to keep (0 < ratio < 1; anything else keeps all)")
	serverCmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Serve Prometheus metrics at /metrics")
	serverCmd.Flags().StringVar(&adminSecret, "admin-secret", "", "HS256 secret for admin tokens (or set SCTID_ADMIN_SECRET)")
	serverCmd.Flags().StringVar(&oidcIssuerURL, "oidc-issuer-url", "", "OIDC issuer URL accepted for admin tokens")
	serverCmd.Flags().StringVar(&oidcClientID, "oidc-client-id", "", "OIDC client/audience ID")
	serverCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful HTTP shutdown timeout before force-close")

	rootCmd.AddCommand(serverCmd)
}

func setupLogging() {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// envName maps a flag name to its environment variable: admin-secret
// becomes SCTID_ADMIN_SECRET.
func envName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// applyEnv fills every flag the user did not set from its SCTID_*
// environment variable.
func applyEnv(fs *pflag.FlagSet) error {
	var firstErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || firstErr != nil {
			return
		}
		v, ok := os.LookupEnv(envName(f.Name))
		if !ok {
			return
		}
		if err := fs.Set(f.Name, v); err != nil {
			firstErr = fmt.Errorf("invalid %s: %w", envName(f.Name), err)
		}
	})
	return firstErr
}

func runServer(cmd *cobra.Command, args []string) error {
	if maxAttempts < 1 {
		return fmt.Errorf("max-attempts must be >= 1")
	}

	slog.Info("starting sctid server",
		"bind", bindAddr,
		"data_dir", dataDir,
		"store", storeBackend,
		"strategy", strategyName,
		"max_attempts", maxAttempts,
		"max_quantity", maxQuantity,
		"no_sync", noSync,
		"otel_enabled", otelEnabled,
		"otel_endpoint", otelEndpoint,
		"otel_sample_ratio", otelSampleRatio,
		"metrics_enabled", metricsEnabled,
		"shutdown_timeout", shutdownTimeout,
	)

	tracerCfg := observability.DefaultTracerConfig()
	tracerCfg.Enabled = otelEnabled
	tracerCfg.Endpoint = otelEndpoint
	tracerCfg.Version = version
	tracerCfg.SampleRatio = otelSampleRatio
	tracerCfg.Attributes = map[string]string{
		"sctid.store":    storeBackend,
		"sctid.strategy": strategyName,
	}
	otelShutdown, err := observability.InitTracer(tracerCfg)
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("otel shutdown error", "error", err)
		}
	}()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(storeBackend, dataDir, store.Options{NoSync: noSync})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	reg, err := reservation.OpenFileRegistry(ctx, filepath.Join(dataDir, "reservations.yaml"))
	if err != nil {
		return fmt.Errorf("open reservation registry: %w", err)
	}
	if reservationsFile != "" {
		ranges, err := reservation.LoadFile(reservationsFile)
		if err != nil {
			return err
		}
		created, err := reservation.Apply(ctx, reg, ranges)
		if err != nil {
			return fmt.Errorf("apply %s: %w", reservationsFile, err)
		}
		slog.Info("reservation definitions applied", "file", reservationsFile, "created", created, "total", len(ranges))
	}

	strat, err := strategy.New(strategyName, st, reg)
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	if metricsEnabled {
		metrics = observability.NewMetrics()
	}
	svc := service.New(st, strat, reg, service.Config{MaxAttempts: maxAttempts}, service.WithMetrics(metrics))

	srvCfg := server.DefaultConfig()
	srvCfg.Bind = bindAddr
	srvCfg.MaxQuantity = maxQuantity
	srvCfg.AdminSecret = strings.TrimSpace(adminSecret)
	srvCfg.OIDC = server.OIDCConfig{
		IssuerURL: strings.TrimSpace(oidcIssuerURL),
		ClientID:  strings.TrimSpace(oidcClientID),
	}
	var opts []server.Option
	if metrics != nil {
		opts = append(opts, server.WithMetrics(metrics))
	}
	srv, err := server.New(ctx, svc, srvCfg, opts...)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("sctid server ready", "bind", bindAddr)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
		return err
	}

	slog.Info("stopping HTTP server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}

	slog.Info("sctid server stopped")
	return nil
}
