package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfeidau/governor/internal/api"
	"github.com/wolfeidau/governor/internal/telemetry"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"GOVERNOR_LISTEN"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" env:"GOVERNOR_CORS_ORIGINS"`

	// Policy configuration
	PolicyFile string `help:"YAML file with the default policy level and auto-approval rules" type:"existingfile" env:"GOVERNOR_POLICY_FILE"`

	// Operational modes
	Tracing     bool    `help:"enable OpenTelemetry export" default:"false" env:"GOVERNOR_TRACING"`
	SampleRatio float64 `help:"fraction of traces sampled when tracing" default:"1" env:"GOVERNOR_TRACE_SAMPLE_RATIO"`

	Store StoreFlags `embed:""`
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := setupLogger(globals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "governor",
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	stores, closeStores, err := c.Store.openStores(ctx, log)
	if err != nil {
		return err
	}
	defer closeStores()

	e, err := newEngine(stores, c.PolicyFile, log)
	if err != nil {
		return err
	}

	handler := api.NewRouter(e.orc, e.quota, api.Config{
		CORSOrigins: c.CORSOrigins,
		Logger:      log,
		Version:     globals.Version,
	})

	srv := configureHTTPServer(c.Listen, handler)
	srv.BaseContext = func(net.Listener) context.Context { return context.WithoutCancel(ctx) }

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}

	return nil
}
