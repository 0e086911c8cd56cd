package applications

import (
	"context"
	"encoding/json"

	"github.com/dot-do/entitykernel/pkg/pgnotify"
)

// pgnotifyBus adapts pkg/pgnotify's Postgres LISTEN/NOTIFY bus to
// kernel.ExternalBus, so every tenant kernel's CDCBroker rides the same
// shared connection, namespaced by the channel CDCBroker already derives
// from its tenant id.
type pgnotifyBus struct {
	bus *pgnotify.Bus
}

func (p *pgnotifyBus) Publish(ctx context.Context, channel string, payload interface{}) error {
	return p.bus.Publish(ctx, channel, payload)
}

func (p *pgnotifyBus) Subscribe(channel string, handler func(ctx context.Context, raw json.RawMessage)) error {
	return p.bus.Subscribe(channel, func(ctx context.Context, event pgnotify.Event) error {
		handler(ctx, event.Payload)
		return nil
	})
}
