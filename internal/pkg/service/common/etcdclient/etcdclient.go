// Package etcdclient creates a namespaced etcd client bound to the process lifetime.
package etcdclient

import (
	"context"
	"strings"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	etcdNamespace "go.etcd.io/etcd/client/v3/namespace"
	"go.uber.org/zap"         //nolint: depguard
	"go.uber.org/zap/zapcore" //nolint: depguard
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/common/servicectx"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

type config struct {
	logger log.Logger
}

type Option func(c *config)

func WithLogger(v log.Logger) Option {
	return func(c *config) {
		c.logger = v
	}
}

func UseNamespace(c *etcd.Client, prefix string) {
	c.KV = etcdNamespace.NewKV(c.KV, prefix)
	c.Watcher = etcdNamespace.NewWatcher(c.Watcher, prefix)
	c.Lease = etcdNamespace.NewLease(c.Lease, prefix)
}

// New creates new etcd client.
// The client is closed when the process is shutting down.
func New(ctx context.Context, proc *servicectx.Process, cfg Config, opts ...Option) (*etcd.Client, error) {
	// Apply options
	c := config{logger: log.NewNopLogger()}
	for _, o := range opts {
		o(&c)
	}

	// Normalize and validate
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := c.logger.WithComponent("etcd.client")

	// Create a zap logger for etcd client
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	etcdLogger := zap.New(log.NewCallbackCore(func(entry zapcore.Entry, fields []zapcore.Field) {
		if entry.Level == log.DebugLevel && !cfg.DebugLog {
			return
		}
		if bytes, err := encoder.EncodeEntry(entry, fields); err == nil {
			logger.Log(ctx, entry.Level.String(), strings.TrimRight(bytes.String(), "\n"))
		} else {
			logger.Warnf(ctx, "cannot log msg from etcd client: %s", err)
		}
	}))

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer connectCancel()

	startTime := time.Now()
	logger.Infof(ctx, "connecting to etcd, connectTimeout=%s, keepAliveTimeout=%s, keepAliveInterval=%s", cfg.ConnectTimeout, cfg.KeepAliveTimeout, cfg.KeepAliveInterval)
	client, err := etcd.New(etcd.Config{
		Context:              context.WithoutCancel(ctx), // the client lives until the process shutdown
		Endpoints:            cfg.Endpoints,
		DialTimeout:          cfg.ConnectTimeout,
		DialKeepAliveTimeout: cfg.KeepAliveTimeout,
		DialKeepAliveTime:    cfg.KeepAliveInterval,
		Username:             cfg.Username, // optional
		Password:             cfg.Password, // optional
		Logger:               etcdLogger,
		PermitWithoutStream:  true, // always send keep-alive pings
		DialOptions: []grpc.DialOption{
			grpc.WithBlock(), // nolint: staticcheck // wait for the connection
			grpc.WithConnectParams(grpc.ConnectParams{
				Backoff: backoff.Config{
					BaseDelay:  100 * time.Millisecond,
					Multiplier: 1.5,
					Jitter:     0.2,
					MaxDelay:   15 * time.Second,
				},
			}),
		},
	})
	if err != nil {
		return nil, errors.Errorf("cannot create etcd client: cannot connect: %w", err)
	}

	// Prefix client by namespace
	UseNamespace(client, cfg.Namespace)

	// Connection check: get cluster members
	if _, err := client.MemberList(connectCtx); err != nil {
		_ = client.Close()
		return nil, errors.Errorf("cannot create etcd client: cannot get cluster members: %w", err)
	}

	// Close client when shutting down the process
	proc.OnShutdown(func(ctx context.Context) {
		startTime := time.Now()
		logger.Info(ctx, "closing etcd connection")
		if err := client.Close(); err != nil {
			logger.Warnf(ctx, "cannot close etcd connection: %s", err)
		} else {
			logger.WithDuration(time.Since(startTime)).Info(ctx, "closed etcd connection")
		}
	})

	logger.WithDuration(time.Since(startTime)).Infof(ctx, `connected to etcd cluster "%s"`, strings.Join(client.Endpoints(), ";"))
	return client, nil
}
