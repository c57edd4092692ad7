package barrier

import (
	"context"

	"github.com/keboola/go-barrier/internal/pkg/service/barrier/participant"
)

// register creates the barrier path, if it doesn't exist, and the participant node.
// The origin address is best effort, the lookup failure is only logged.
func (r *runState) register(ctx context.Context) error {
	address, err := r.origin.Address(ctx)
	if err != nil {
		r.logger.Warnf(ctx, `cannot resolve origin address: %s`, err)
		address = ""
	}

	payload := participant.Payload{Repository: r.config.Repository, Value: r.config.Value, Address: address}
	data, err := participant.Encode(payload)
	if err != nil {
		return &RegistrationError{Path: r.config.Path, err: err}
	}

	if err := r.service.EnsurePath(ctx, r.config.Path); err != nil {
		return &RegistrationError{Path: r.config.Path, err: err}
	}

	name, err := r.service.CreateOrderedEphemeralChild(ctx, r.config.Path, participant.NamePrefix, data)
	if err != nil {
		return &RegistrationError{Path: r.config.Path, err: err}
	}

	r.name = name
	r.payload = payload
	r.observer.Registered(ctx, name, payload)
	return nil
}
