// Package origin resolves the public address of the process, it is stored in the participant payload.
package origin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

const (
	DefaultURL     = "https://ipinfo.io/ip"
	DefaultTimeout = 10 * time.Second
	userAgent      = "go-barrier"
)

type Config struct {
	Enabled bool          `configKey:"enabled" configUsage:"Resolve the public address of the participant."`
	URL     string        `configKey:"url" configUsage:"URL of an endpoint which returns the caller address as a plain text." validate:"required_if=Enabled true,omitempty,url"`
	Timeout time.Duration `configKey:"timeout" configUsage:"Timeout of the address lookup." validate:"required_if=Enabled true"`
}

func NewConfig() Config {
	return Config{Enabled: true, URL: DefaultURL, Timeout: DefaultTimeout}
}

type Resolver interface {
	Address(ctx context.Context) (string, error)
}

// Static returns always the same address.
type Static string

func (v Static) Address(_ context.Context) (string, error) {
	return string(v), nil
}

// HTTPResolver makes one GET request per call, without retries.
type HTTPResolver struct {
	client *resty.Client
	url    string
}

// NewResolver returns the HTTPResolver or an empty Static resolver, if the lookup is disabled.
func NewResolver(cfg Config, logger log.Logger) Resolver {
	if !cfg.Enabled {
		return Static("")
	}
	return NewHTTPResolver(cfg, logger)
}

func NewHTTPResolver(cfg Config, logger log.Logger) *HTTPResolver {
	client := resty.New()
	client.SetLogger(&restyLogger{logger: logger.WithComponent("origin")})
	client.SetHeader("User-Agent", userAgent)
	client.SetTimeout(cfg.Timeout)
	client.SetRetryCount(0)
	return &HTTPResolver{client: client, url: cfg.URL}
}

func (r *HTTPResolver) Address(ctx context.Context) (string, error) {
	resp, err := r.client.R().SetContext(ctx).Get(r.url)
	if err != nil {
		return "", errors.PrefixErrorf(err, `cannot get address from "%s"`, r.url)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", errors.Errorf(`cannot get address from "%s": unexpected status "%s"`, r.url, resp.Status())
	}

	address := strings.TrimSpace(resp.String())
	if address == "" {
		return "", errors.Errorf(`cannot get address from "%s": empty response`, r.url)
	}
	return address, nil
}

// restyLogger adapts log.Logger to the resty.Logger interface.
type restyLogger struct {
	logger log.Logger
}

func (l *restyLogger) Errorf(format string, v ...any) {
	l.logger.Errorf(context.Background(), format, v...)
}

func (l *restyLogger) Warnf(format string, v ...any) {
	l.logger.Warnf(context.Background(), format, v...)
}

func (l *restyLogger) Debugf(format string, v ...any) {
	l.logger.Debugf(context.Background(), format, v...)
}
