package etcdclient

import (
	"strings"
	"time"

	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultKeepAliveTimeout  = 5 * time.Second
	DefaultKeepAliveInterval = 10 * time.Second
	DefaultNamespace         = "barrier"
)

type Config struct {
	Endpoints         []string      `configKey:"endpoints" configUsage:"Etcd endpoints." validate:"required,dive,required"`
	Namespace         string        `configKey:"namespace" configUsage:"Etcd namespace, all keys are prefixed by it."`
	Username          string        `configKey:"username" configUsage:"Etcd username."`
	Password          string        `configKey:"password" configUsage:"Etcd password." sensitive:"true"`
	ConnectTimeout    time.Duration `configKey:"connectTimeout" configUsage:"Etcd connect timeout." validate:"required"`
	KeepAliveTimeout  time.Duration `configKey:"keepAliveTimeout" configUsage:"Etcd keep alive timeout." validate:"required"`
	KeepAliveInterval time.Duration `configKey:"keepAliveInterval" configUsage:"Etcd keep alive interval." validate:"required"`
	DebugLog          bool          `configKey:"debugLog" configUsage:"Log etcd client debug messages."`
}

func NewConfig() Config {
	return Config{
		Endpoints:         []string{"localhost:2379"},
		Namespace:         DefaultNamespace,
		ConnectTimeout:    DefaultConnectTimeout,
		KeepAliveTimeout:  DefaultKeepAliveTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
	}
}

func (c *Config) Normalize() {
	var endpoints []string
	for _, endpoint := range c.Endpoints {
		if endpoint = strings.Trim(endpoint, " /"); endpoint != "" {
			endpoints = append(endpoints, endpoint)
		}
	}
	c.Endpoints = endpoints
	c.Namespace = strings.Trim(c.Namespace, " /") + "/"
}

func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("etcd endpoint is not set")
	}
	if c.Namespace == "/" {
		return errors.New("etcd namespace is not set")
	}
	return nil
}
