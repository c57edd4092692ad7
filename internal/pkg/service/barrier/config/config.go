// Package config contains the configuration of the barrier command.
// Each field is mapped to a flag, an ENV with the "BARRIER_" prefix and a key of the config file, see the "configmap" package.
package config

import (
	"github.com/keboola/go-barrier/internal/pkg/env"
	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/barrier"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/observer"
	"github.com/keboola/go-barrier/internal/pkg/service/barrier/origin"
	"github.com/keboola/go-barrier/internal/pkg/service/common/etcdclient"
	"github.com/keboola/go-barrier/internal/pkg/telemetry/metric/prometheus"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

const (
	CoordinatorEtcd   = "etcd"
	CoordinatorMemory = "memory"
	// RepositoryEnv is the default source of the repository tag.
	RepositoryEnv = "GITHUB_REPOSITORY"
)

type Config struct {
	DebugLog    bool                  `configKey:"debugLog" configUsage:"Enable debug log level."`
	LogFormat   string                `configKey:"logFormat" configUsage:"Log format, \"console\" or \"json\"." validate:"required,oneof=console json"`
	Coordinator string                `configKey:"coordinator" configUsage:"Coordination service, \"etcd\" or \"memory\" for a local dry run of a single process." validate:"required,oneof=etcd memory"`
	Barrier     barrier.Config        `configKey:",squash"`
	Etcd        etcdclient.Config     `configKey:"etcd"`
	Origin      origin.Config         `configKey:"origin"`
	GitHub      observer.GitHubConfig `configKey:"github"`
	Metrics     prometheus.Config     `configKey:"metrics"`
}

func New() Config {
	return Config{
		DebugLog:    false,
		LogFormat:   string(log.LogFormatConsole),
		Coordinator: CoordinatorEtcd,
		Barrier:     barrier.NewConfig(),
		Etcd:        etcdclient.NewConfig(),
		Origin:      origin.NewConfig(),
		GitHub:      observer.NewGitHubConfig(),
		Metrics:     prometheus.NewConfig(),
	}
}

// NewWithEnvDefaults returns the default configuration, the repository tag is taken from the GITHUB_REPOSITORY ENV.
func NewWithEnvDefaults(envs env.Provider) Config {
	cfg := New()
	cfg.Barrier.Repository = envs.Get(RepositoryEnv)
	return cfg
}

func (c *Config) Normalize() {
	c.Barrier.Normalize()
	c.Etcd.Normalize()
}

func (c *Config) Validate() error {
	errs := errors.NewMultiError()
	if err := c.Barrier.Validate(); err != nil {
		errs.Append(err)
	}
	if c.Coordinator == CoordinatorEtcd {
		if err := c.Etcd.Validate(); err != nil {
			errs.Append(err)
		}
	}
	return errs.ErrorOrNil()
}
