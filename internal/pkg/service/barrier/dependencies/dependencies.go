// Package dependencies provides dependencies for the barrier command.
//
// The [ServiceScope] exists during the entire run of the command, it is created in main.go.
// Resources bound to the scope are released on the process shutdown, in the reverse order.
package dependencies

import (
	"context"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/config"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination/etcdcoord"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination/memory"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/observer"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/origin"
	"github.com/keboola/go-barrier/internal/pkg/service/common/etcdclient"
	"github.com/keboola/go-barrier/internal/pkg/service/common/etcdop"
	"github.com/keboola/go-barrier/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-barrier/internal/pkg/telemetry/metric/prometheus"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

// ServiceScope implements the barrier.Dependencies interface.
type ServiceScope interface {
	Config() config.Config
	Process() *servicectx.Process
	Logger() log.Logger
	Clock() clockwork.Clock
	Coordinator() coordination.Service
	OriginResolver() origin.Resolver
	Observer() observer.Observer
	MetricsRegistry() *promclient.Registry
}

type serviceScope struct {
	config          config.Config
	proc            *servicectx.Process
	logger          log.Logger
	clock           clockwork.Clock
	coordinator     coordination.Service
	originResolver  origin.Resolver
	observer        observer.Observer
	metricsRegistry *promclient.Registry
}

type Option func(d *serviceScope)

// WithClock replaces the real clock.
func WithClock(v clockwork.Clock) Option {
	return func(d *serviceScope) {
		d.clock = v
	}
}

// WithCoordinator replaces the coordination service created from the configuration.
func WithCoordinator(v coordination.Service) Option {
	return func(d *serviceScope) {
		d.coordinator = v
	}
}

// WithOriginResolver replaces the origin resolver created from the configuration.
func WithOriginResolver(v origin.Resolver) Option {
	return func(d *serviceScope) {
		d.originResolver = v
	}
}

func NewServiceScope(ctx context.Context, cfg config.Config, proc *servicectx.Process, logger log.Logger, stdout io.Writer, opts ...Option) (ServiceScope, error) {
	d := &serviceScope{
		config: cfg,
		proc:   proc,
		logger: logger,
		clock:  clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(d)
	}

	if d.originResolver == nil {
		d.originResolver = origin.NewResolver(cfg.Origin, logger)
	}

	if d.coordinator == nil {
		var err error
		if d.coordinator, err = newCoordinator(ctx, cfg, proc, logger); err != nil {
			return nil, err
		}
	}

	// Metrics
	d.metricsRegistry = prometheus.NewRegistry()
	metrics := observer.NewMetrics(d.metricsRegistry)
	metrics.SetQuorum(cfg.Barrier.Count)
	if cfg.Metrics.Listen != "" {
		if _, err := prometheus.ServeMetrics(ctx, cfg.Metrics, d.metricsRegistry, logger, proc); err != nil {
			return nil, err
		}
	}

	// Observers
	observers := observer.Multi{observer.NewLog(logger, cfg.Barrier.Path), metrics}
	if cfg.GitHub.Annotations {
		observers = append(observers, observer.NewGitHub(stdout))
	}
	d.observer = observers

	return d, nil
}

func newCoordinator(ctx context.Context, cfg config.Config, proc *servicectx.Process, logger log.Logger) (coordination.Service, error) {
	switch cfg.Coordinator {
	case config.CoordinatorMemory:
		logger.Warn(ctx, `using in-memory coordinator, participants of other processes are not visible`)
		session := memory.NewStore().NewSession()
		proc.OnShutdown(func(context.Context) {
			session.Close()
		})
		return session, nil
	case config.CoordinatorEtcd:
		client, err := etcdclient.New(ctx, proc, cfg.Etcd, etcdclient.WithLogger(logger))
		if err != nil {
			return nil, err
		}

		// The session lives until the process shutdown, the participant node is removed with the session lease
		sessionCtx, sessionCancel := context.WithCancel(context.WithoutCancel(ctx))
		session, err := etcdop.NewSession(ctx, sessionCtx, logger, client, cfg.Barrier.SessionTTL)
		if err != nil {
			sessionCancel()
			return nil, err
		}

		// Registered after the client, so the session is closed before the client
		sessionLogger := logger.WithComponent("etcd.session")
		proc.OnShutdown(func(ctx context.Context) {
			defer sessionCancel()
			startTime := time.Now()
			sessionLogger.Info(ctx, "closing etcd session")
			if err := session.Close(); err != nil {
				sessionLogger.Warnf(ctx, "cannot close etcd session: %s", err)
			} else {
				sessionLogger.WithDuration(time.Since(startTime)).Info(ctx, "closed etcd session")
			}
		})

		return etcdcoord.New(logger, client, session), nil
	default:
		return nil, errors.Errorf(`unexpected coordinator "%s"`, cfg.Coordinator)
	}
}

func (v *serviceScope) Config() config.Config {
	return v.config
}

func (v *serviceScope) Process() *servicectx.Process {
	return v.proc
}

func (v *serviceScope) Logger() log.Logger {
	return v.logger
}

func (v *serviceScope) Clock() clockwork.Clock {
	return v.clock
}

func (v *serviceScope) Coordinator() coordination.Service {
	return v.coordinator
}

func (v *serviceScope) OriginResolver() origin.Resolver {
	return v.originResolver
}

func (v *serviceScope) Observer() observer.Observer {
	return v.observer
}

func (v *serviceScope) MetricsRegistry() *promclient.Registry {
	return v.metricsRegistry
}
