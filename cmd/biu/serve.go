package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/freekieb7/biu/config"
	"github.com/freekieb7/biu/filesystem"
	"github.com/freekieb7/biu/handler"
	"github.com/freekieb7/biu/http"
	"github.com/freekieb7/biu/telemetry"
	"github.com/spf13/cobra"
)

const instrumentationName = "github.com/freekieb7/biu/cmd/biu"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `Start the server with the routes from the config file.

The server runs until interrupted (Ctrl+C) or it receives SIGTERM. It then
stops accepting connections, lets running requests finish for at most
server.shutdown_timeout and releases every handler.

Example:
  biu serve -c biu.yaml
  BIU_SERVER_WORKERS=64 biu serve -c biu.yaml --addr :9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().String("addr", "", "listen address, overrides server.addr")
	serveCmd.Flags().Int("workers", 0, "worker count, overrides server.workers")
	_ = serveCmd.MarkFlagRequired("config")
}

// newLogger creates the CLI logger. The otel format sends records to the
// OpenTelemetry log pipeline instead of w.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	switch cfg.Format {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts))
	case "otel":
		return telemetry.Logger(instrumentationName)
	default:
		return slog.New(slog.NewJSONHandler(w, opts))
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Server.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = shutdownTelemetry(ctx)
		}()
	}

	return serve(ctx, cfg, newLogger(cfg.Log, cmd.ErrOrStderr()), nil)
}

// serve runs the server until ctx is done. ready, if set, is called with
// the bound address once the server accepts connections.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, ready func(addr string)) error {
	if len(cfg.Routes) == 0 {
		return errors.New("no routes configured")
	}

	srv, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		srv.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}

	addr := srv.Addr().String()
	logger.Info("listening", "addr", addr, "routes", len(cfg.Routes))
	if ready != nil {
		ready(addr)
	}

	<-ctx.Done()
	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("shutdown timed out",
				"timeout", cfg.Server.ShutdownTimeout.String(),
				"action", "closed remaining connections",
			)
			return nil
		}
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// buildServer creates a server with a handler for every configured route.
func buildServer(cfg *config.Config, logger *slog.Logger) (*http.Server, error) {
	srv, err := http.New(
		http.WithName(cfg.Server.Name),
		http.WithAddr(cfg.Server.Addr),
		http.WithWorkers(cfg.Server.Workers),
		http.WithMaxQueued(cfg.Server.QueueLimit),
		http.WithReadTimeout(cfg.Server.ReadTimeout),
		http.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	for _, route := range cfg.Routes {
		h, err := buildHandler(route, logger)
		if err != nil {
			// releases the handlers registered so far
			srv.Close()
			return nil, fmt.Errorf("route %s %s: %w", route.Method, route.Prefix, err)
		}
		h = http.Chain(h, http.AccessLog(logger.With("route", route.Prefix)))
		if err := srv.Handle(route.Method, route.Prefix, h); err != nil {
			h.Release()
			srv.Close()
			return nil, fmt.Errorf("route %s %s: %w", route.Method, route.Prefix, err)
		}
	}
	return srv, nil
}

func buildHandler(route config.RouteConfig, logger *slog.Logger) (http.Handler, error) {
	switch route.Kind {
	case config.KindStatic:
		fs, err := filesystem.Local(route.Root)
		if err != nil {
			return nil, err
		}
		logger.Info("serving static files", "prefix", route.Prefix, "root", fs.Root(), "browse", route.Browse)
		static := handler.Static(fs, route.Prefix)
		static.Browse = route.Browse
		return static, nil
	case config.KindText:
		return handler.Text(route.ContentType, route.Body), nil
	case config.KindEcho:
		return handler.Echo(), nil
	}
	return nil, fmt.Errorf("unknown route kind %q", route.Kind)
}
