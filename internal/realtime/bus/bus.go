// Package bus moves realtime events between processes. The Redis
// implementation backs deployments with a broker; the nop bus keeps
// single-process setups free of nil checks.
package bus

import (
	"context"

	"github.com/carelattice/taxonomy-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, channel string, evt realtime.Event) error
	// StartForwarder subscribes to channel and invokes onEvent for every
	// decoded message until ctx is canceled.
	StartForwarder(ctx context.Context, channel string, onEvent func(evt realtime.Event)) error
	Close() error
}

type nopBus struct{}

// NewNopBus returns a bus that drops everything. Wired when REDIS_ADDR is
// unset so publishers never branch on configuration.
func NewNopBus() Bus { return nopBus{} }

func (nopBus) Publish(context.Context, string, realtime.Event) error { return nil }

func (nopBus) StartForwarder(context.Context, string, func(evt realtime.Event)) error { return nil }

func (nopBus) Close() error { return nil }
