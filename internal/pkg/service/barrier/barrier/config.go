package barrier

import (
	"context"
	"time"

	"github.com/keboola/go-barrier/internal/pkg/service/barrier/coordination"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
	"github.com/keboola/go-barrier/internal/pkg/validator"
)

const (
	DefaultPath             = "barrier"
	DefaultCount            = 50
	DefaultIdleTimeout      = 120 * time.Second
	DefaultExitDelay        = 2 * time.Second
	DefaultFetchConcurrency = 16
	DefaultSessionTTL       = 15 * time.Second
)

type Config struct {
	Path             string        `configKey:"path" configUsage:"Path of the barrier node, participants are registered as its children." validate:"required"`
	Count            int           `configKey:"count" configUsage:"Count of participants required to pass the barrier." validate:"min=1"`
	Value            *float64      `configKey:"value" configUsage:"Numeric value of the participant. Without the value the participant doesn't aggregate."`
	Repository       string        `configKey:"repository" configUsage:"Origin tag of the participant, GITHUB_REPOSITORY ENV by default."`
	IdleTimeout      time.Duration `configKey:"idleTimeout" configUsage:"The run fails if no new participant is registered within the timeout." validate:"required"`
	ExitDelay        time.Duration `configKey:"exitDelay" configUsage:"Delay before the participant node is released after the barrier passed." validate:"min=0"`
	FetchConcurrency int           `configKey:"fetchConcurrency" configUsage:"Maximum number of parallel metadata fetches of the leader." validate:"min=1"`
	SessionTTL       time.Duration `configKey:"sessionTTL" configUsage:"TTL of the coordination session, the participant node is removed when the session expires." validate:"min=1s"`
}

func NewConfig() Config {
	return Config{
		Path:             DefaultPath,
		Count:            DefaultCount,
		IdleTimeout:      DefaultIdleTimeout,
		ExitDelay:        DefaultExitDelay,
		FetchConcurrency: DefaultFetchConcurrency,
		SessionTTL:       DefaultSessionTTL,
	}
}

func (c *Config) Normalize() {
	c.Path = coordination.NormalizePath(c.Path)
}

// Validate checks the validate tags and the path.
func (c *Config) Validate() error {
	if err := validator.Validate(context.Background(), c); err != nil {
		return err
	}
	if coordination.NormalizePath(c.Path) == "" {
		return errors.New(`"barrier.path" must contain at least one path segment`)
	}
	return nil
}
