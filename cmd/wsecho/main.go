// File: cmd/wsecho/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WebSocket echo server with health checks and metrics export.
// Configuration comes from the environment (see control.LoadConfig); the
// -port and -static flags override PORT and WSECHO_STATIC_ROOT.
// SIGINT/SIGTERM shut the server down gracefully, SIGHUP reloads the log level.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
	"github.com/momentics/hioload-echo/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "wsecho:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := control.LoadConfig(os.Getenv)
	if err != nil {
		return err
	}
	port := flag.Int("port", cfg.Port, "TCP port to listen on, all interfaces")
	static := flag.String("static", cfg.StaticRoot, "directory with index.html served at /, empty disables")
	flag.Parse()
	cfg.Port = *port
	cfg.StaticRoot = *static
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := control.NewLogger(control.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)

	rec := control.NewRecorder(0)
	sink, exporter, cleanup, err := buildMetrics(cfg, rec, probes, log)
	if err != nil {
		return err
	}
	defer cleanup()

	srvCfg := server.DefaultConfig()
	srvCfg.ListenAddr = cfg.ListenAddr()
	srvCfg.HandshakeTimeout = cfg.HandshakeTimeout
	srvCfg.ShutdownTimeout = cfg.ShutdownTimeout
	srvCfg.ReadLimit = cfg.ReadLimit
	srvCfg.ReusePort = cfg.ReusePort
	if cfg.StaticRoot != "" {
		srvCfg.Routes = append(srvCfg.Routes, server.IndexRoute(os.DirFS(cfg.StaticRoot)))
	}

	srv, err := server.New(srvCfg,
		server.WithLogger(log),
		server.WithSink(sink),
		server.WithProbes(probes),
	)
	if err != nil {
		return err
	}
	if err := srv.Listen(ctx); err != nil {
		return err
	}

	log.Info().
		Str("addr", srv.Addr().String()).
		Str("exporter", cfg.MetricsExporter).
		Str("static_root", cfg.StaticRoot).
		Interface("probes", probes.DumpState()).
		Msg("wsecho starting")

	var reloader control.Reloader
	reloader.RegisterReloadHook(control.LevelHook(log))
	go watchReload(ctx, &reloader, log)

	var wg sync.WaitGroup
	if exporter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := exporter(ctx); err != nil {
				log.Error().Err(err).Msg("metrics exporter stopped")
			}
		}()
	}

	serveErr := srv.Serve(ctx)
	stop()
	wg.Wait()

	log.Info().Fields(rec.Snapshot()).Msg("wsecho stopped")
	return serveErr
}

// buildMetrics assembles the Sink for the configured exporter. The Recorder
// is always teed in so the final totals can be logged at exit.
func buildMetrics(cfg *control.Config, rec *control.Recorder, probes *control.DebugProbes, log zerolog.Logger) (
	sink api.Sink, exporter func(context.Context) error, cleanup func(), err error,
) {
	cleanup = func() {}
	switch cfg.MetricsExporter {
	case control.ExporterPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		ps, err := control.NewPrometheusSink(reg)
		if err != nil {
			return nil, nil, nil, err
		}
		ms := control.NewMetricsServer(cfg.MetricsAddr, reg, log)
		return control.Tee(ps, rec), ms.Run, cleanup, nil

	case control.ExporterOTel:
		mp, err := control.NewStdoutMeterProvider(os.Stdout, cfg.ExportInterval)
		if err != nil {
			return nil, nil, nil, err
		}
		otel.SetMeterProvider(mp)
		otelSink, err := control.NewOTelSink(otel.GetMeterProvider())
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup = func() {
			// Shutdown flushes the last collection.
			if err := mp.Shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("meter provider shutdown")
			}
		}
		return control.Tee(otelSink, rec), nil, cleanup, nil

	case control.ExporterLog:
		le := control.NewLogExporter(rec, probes, cfg.ExportInterval, log)
		return rec, le.Run, cleanup, nil
	}
	return rec, nil, cleanup, nil
}

func watchReload(ctx context.Context, r *control.Reloader, log zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := r.Reload(os.Getenv); err != nil {
				log.Warn().Err(err).Msg("reload rejected")
			}
		}
	}
}
