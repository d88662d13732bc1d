package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"
)

// retryableNATSError keeps the publish breaker from burning attempts on
// cancelled contexts while still retrying transport-level outages.
func retryableNATSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected)
}
