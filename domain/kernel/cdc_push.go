package kernel

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// ExternalBus optionally distributes CDC events to other processes sharing
// this tenant's storage (e.g. several API replicas pointed at the same
// Postgres instance, via LISTEN/NOTIFY). A Tenant built without one still
// pushes CDC events to in-process subscribers only.
type ExternalBus interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
	Subscribe(channel string, handler func(ctx context.Context, raw json.RawMessage)) error
}

// BusFactory constructs the ExternalBus a tenant's CDCBroker should ride, or
// returns nil to stay in-process-only. Mirrors EngineFactory's "called at
// most once per tenant id" contract.
type BusFactory func(tenantID string) ExternalBus

type cdcSubscriber struct {
	ch     chan *Event
	filter CDCFilter
}

// CDCBroker is the live-push half of the CDC stream: CDCStream.Poll
// serves pull/resume reads from the event log, CDCBroker fans freshly
// committed events out to anyone currently subscribed, optionally relayed
// through an ExternalBus so every process sharing the tenant's storage
// observes the same events.
type CDCBroker struct {
	bus     ExternalBus
	channel string

	mu         sync.Mutex
	subs       map[int]*cdcSubscriber
	next       int
	bufferSize int
}

// defaultCDCBufferSize is used when NewCDCBroker is given a non-positive
// bufferSize (e.g. callers that don't thread config through, like tests).
const defaultCDCBufferSize = 64

// NewCDCBroker returns a broker for tenantID. When bus is non-nil, every
// Publish is relayed through it instead of fanning out locally — delivery to
// this process's own subscribers then happens via the bus's own Subscribe
// loop, so every replica (including the publisher) observes events through
// one uniform path. bufferSize sizes each subscriber's channel (a slow
// consumer drops events past this depth rather than blocking the kernel);
// a non-positive value falls back to defaultCDCBufferSize.
func NewCDCBroker(tenantID string, bus ExternalBus, bufferSize int) *CDCBroker {
	if bufferSize <= 0 {
		bufferSize = defaultCDCBufferSize
	}
	b := &CDCBroker{
		bus:        bus,
		channel:    "entitykernel_cdc_" + sanitizeChannelToken(tenantID),
		subs:       make(map[int]*cdcSubscriber),
		bufferSize: bufferSize,
	}
	if bus != nil {
		_ = bus.Subscribe(b.channel, func(ctx context.Context, raw json.RawMessage) {
			var ev Event
			if err := json.Unmarshal(raw, &ev); err == nil {
				b.fanOut(&ev)
			}
		})
	}
	return b
}

// Publish announces a freshly committed event to every matching subscriber.
// If the external bus rejects the publish (e.g. connection dropped), it
// falls back to immediate local fan-out so a push subscriber never silently
// stalls.
func (b *CDCBroker) Publish(ctx context.Context, ev *Event) {
	if b.bus != nil {
		if err := b.bus.Publish(ctx, b.channel, ev); err == nil {
			return
		}
	}
	b.fanOut(ev)
}

func (b *CDCBroker) fanOut(ev *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if !matchesCDCFilter(ev, s.filter) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			// Slow subscriber: drop. The client resumes from its last cursor
			// via CDCStream.Poll, so this never loses an event permanently.
		}
	}
}

// Subscribe registers a push listener matching filter and returns its
// channel plus an unsubscribe function that must be called when the
// consumer (e.g. a WebSocket connection) goes away.
func (b *CDCBroker) Subscribe(filter CDCFilter) (<-chan *Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan *Event, b.bufferSize)
	b.subs[id] = &cdcSubscriber{ch: ch, filter: filter}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
}

// sanitizeChannelToken restricts tenantID to characters valid in an
// unquoted Postgres NOTIFY channel name.
func sanitizeChannelToken(tenantID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, tenantID)
}
