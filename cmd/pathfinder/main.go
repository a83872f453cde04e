// Command pathfinder runs the WebSocket-to-AMQP reverse proxy: it accepts
// WebSocket connections, validates and routes each inbound frame through the
// configured auth middleware, and round-trips it through the message broker
// before streaming the reply back to the client.
//
// Invocation follows the teacher's single "-config" convention, adapted to
// a cobra command tree so the binary also exposes "version".
package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/openmatchmaking/pathfinder/internal/broker"
	"github.com/openmatchmaking/pathfinder/internal/config"
	"github.com/openmatchmaking/pathfinder/internal/endpoint"
	"github.com/openmatchmaking/pathfinder/internal/plog"
	"github.com/openmatchmaking/pathfinder/internal/pmetrics"
	"github.com/openmatchmaking/pathfinder/internal/supervisor"
	"github.com/openmatchmaking/pathfinder/internal/tracing"
)

var (
	configPath   string
	otlpEndpoint string
)

func main() {
	root := &cobra.Command{
		Use:   "pathfinder",
		Short: "WebSocket-to-AMQP reverse proxy",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to the YAML configuration file")
	serveCmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP/gRPC collector endpoint (empty disables tracing)")
	serveCmd.MarkFlagRequired("config")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(versionString())
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := plog.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("constructing logger: %w", err)
	}

	registerer := prometheus.DefaultRegisterer
	m := pmetrics.NewPromScope(registerer, "Pathfinder")

	shutdownTracing, err := tracing.Setup(ctx, otlpEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	b, err := broker.Connect(ctx, &cfg.AMQP, log, m)
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer b.Close()

	registry := endpoint.Extract(cfg, log)
	log.Info("loaded %d endpoints", registry.Len())

	requestTimeout := cfg.RequestTimeout.Duration
	sup := supervisor.New(b, registry, log, m, clock.Default(), requestTimeout)

	if cfg.DebugAddr != "" {
		go runDebugServer(cfg.DebugAddr, log, sup)
	}

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: otelhttp.NewHandler(sup, "websocket-upgrade")}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening for WebSocket connections on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("caught %s, shutting down", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
	}

	shutdownTimeout := cfg.ShutdownTimeout.Duration
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warning("error during graceful shutdown: %s", err)
	}
	log.Info("exiting")
	return nil
}

func runDebugServer(addr string, log plog.Logger, sup *supervisor.Supervisor) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Crit("unable to boot debug server on %s: %s", addr, err)
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	expvar.Publish("openConnections", expvarFunc(sup.ConnectionCount))
	if err := http.Serve(ln, nil); err != nil {
		log.Warning("debug server exited: %s", err)
	}
}

type expvarFunc func() int

func (f expvarFunc) String() string { return fmt.Sprintf("%d", f()) }

func versionString() string {
	return "pathfinder (WebSocket-to-AMQP reverse proxy)"
}
