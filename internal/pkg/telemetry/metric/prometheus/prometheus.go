// Package prometheus serves metrics of the process in the Prometheus text format.
package prometheus

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

const (
	Endpoint                = "/metrics"
	readHeaderTimeout       = 10 * time.Second
	gracefulShutdownTimeout = 5 * time.Second
)

type Config struct {
	Listen string `configKey:"listen" configUsage:"Listen address of the Prometheus metrics endpoint, empty value disables the endpoint." validate:"omitempty,hostname_port"`
}

func NewConfig() Config {
	return Config{Listen: ""}
}

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ServeMetrics starts the HTTP server with the metrics endpoint.
// The server is stopped on the process shutdown, an unexpected server error shuts down the process.
// Returns the bound address, it differs from the configured one if the port is "0".
func ServeMetrics(ctx context.Context, cfg Config, reg *prometheus.Registry, logger log.Logger, proc *servicectx.Process) (string, error) {
	logger = logger.WithComponent("metrics")

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return "", errors.PrefixErrorf(err, `cannot listen on "%s"`, cfg.Listen)
	}
	address := listener.Addr().String()

	handler := http.NewServeMux()
	handler.Handle(Endpoint, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout}

	proc.Add(func(_ context.Context, shutdown servicectx.ShutdownFn) {
		logger.Infof(ctx, `started metrics server on "%s"`, address)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdown(errors.PrefixError(err, "metrics server failed"))
		}
	})

	proc.OnShutdown(func(ctx context.Context) {
		ctx, cancel := context.WithTimeoutCause(ctx, gracefulShutdownTimeout, errors.New("graceful shutdown timeout"))
		defer cancel()

		logger.Infof(ctx, `shutting down metrics server at "%s"`, address)
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf(ctx, `metrics server shutdown error: %s`, err)
		}
		logger.Info(ctx, "metrics server shutdown finished")
	})

	return address, nil
}
