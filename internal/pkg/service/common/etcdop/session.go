package etcdop

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

// NewSession creates an etcd session, keys bound to the session lease are deleted when the session ends.
//
// The creation is retried with a backoff until the ctx is done.
// The function waits for the first keep-alive request, so the session is usable when returned.
// The lease is kept alive until the session is closed or the sessionCtx is done.
func NewSession(ctx, sessionCtx context.Context, logger log.Logger, client *etcd.Client, ttl time.Duration) (*concurrency.Session, error) {
	startTime := time.Now()
	logger = logger.WithComponent("etcd.session")
	logger.Infof(ctx, `creating etcd session, ttl %s`, ttl)

	ttlSeconds := int(ttl.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	var session *concurrency.Session
	create := func() error {
		s, err := concurrency.NewSession(client, concurrency.WithTTL(ttlSeconds), concurrency.WithContext(sessionCtx))
		if err != nil {
			return err
		}

		// Check connection, wait for the first keep-alive.
		if _, err = client.KeepAliveOnce(ctx, s.Lease()); err != nil {
			_ = s.Close()
			return err
		}

		session = s
		return nil
	}

	notify := func(err error, delay time.Duration) {
		logger.Warnf(ctx, `cannot create etcd session, backoff delay %s: %s`, delay, err)
	}

	if err := backoff.RetryNotify(create, backoff.WithContext(newSessionBackoff(), ctx), notify); err != nil {
		return nil, errors.PrefixError(err, "cannot create etcd session")
	}

	logger.WithDuration(time.Since(startTime)).Infof(ctx, `created etcd session, lease "%x"`, int64(session.Lease()))
	return session, nil
}

func newSessionBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 1 * time.Minute
	b.MaxElapsedTime = 0 // never stop
	b.Reset()
	return b
}
