package kernel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCDCBrokerInProcessFanOutMatchesFilter(t *testing.T) {
	broker := NewCDCBroker("acme", nil, 0)

	ch, unsubscribe := broker.Subscribe(CDCFilter{Types: []string{"Contact"}})
	defer unsubscribe()

	broker.Publish(context.Background(), &Event{ID: "evt_1", EntityType: "Deal", Verb: "close"})
	broker.Publish(context.Background(), &Event{ID: "evt_2", EntityType: "Contact", Verb: "create"})

	select {
	case ev := <-ch:
		assert.Equal(t, "evt_2", ev.ID)
	case <-time.After(time.Second):
		t.Fatal("expected the matching event to be delivered")
	}

	select {
	case ev := <-ch:
		t.Fatalf("expected no further events, got %v", ev)
	default:
	}
}

func TestCDCBrokerUnsubscribeClosesChannel(t *testing.T) {
	broker := NewCDCBroker("acme", nil, 0)
	ch, unsubscribe := broker.Subscribe(CDCFilter{})
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

type fakeExternalBus struct {
	handlers map[string]func(ctx context.Context, raw json.RawMessage)
}

func newFakeExternalBus() *fakeExternalBus {
	return &fakeExternalBus{handlers: make(map[string]func(ctx context.Context, raw json.RawMessage))}
}

func (b *fakeExternalBus) Publish(ctx context.Context, channel string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if h, ok := b.handlers[channel]; ok {
		h(ctx, raw)
	}
	return nil
}

func (b *fakeExternalBus) Subscribe(channel string, handler func(ctx context.Context, raw json.RawMessage)) error {
	b.handlers[channel] = handler
	return nil
}

func TestCDCBrokerRelaysThroughExternalBus(t *testing.T) {
	bus := newFakeExternalBus()
	broker := NewCDCBroker("acme", bus, 0)

	ch, unsubscribe := broker.Subscribe(CDCFilter{})
	defer unsubscribe()

	broker.Publish(context.Background(), &Event{ID: "evt_1", EntityType: "Contact", Verb: "create"})

	select {
	case ev := <-ch:
		assert.Equal(t, "evt_1", ev.ID)
	case <-time.After(time.Second):
		t.Fatal("expected the bus-relayed event to be delivered")
	}
}
