package kernel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/dot-do/entitykernel/pkg/ids"
	"github.com/dot-do/entitykernel/pkg/logger"
)

// SubscriptionDispatcher matches newly appended events against registered
// webhook subscriptions and fires signed POSTs, fire-and-forget.
type SubscriptionDispatcher struct {
	engine storage.Engine
	client *http.Client
	log    *logger.Logger
	sem    chan struct{} // caps concurrent outbound deliveries; nil = unbounded
}

// NewSubscriptionDispatcher returns a dispatcher posting with the given
// *http.Client (nil selects a default with a bounded timeout).
func NewSubscriptionDispatcher(engine storage.Engine, client *http.Client, log *logger.Logger) *SubscriptionDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = logger.NewDefault("subscriptions")
	}
	return &SubscriptionDispatcher{engine: engine, client: client, log: log}
}

// withSemaphore caps the dispatcher's concurrent outbound deliveries.
func (d *SubscriptionDispatcher) withSemaphore(sem chan struct{}) *SubscriptionDispatcher {
	d.sem = sem
	return d
}

// Register persists a new webhook or websocket subscription.
func (d *SubscriptionDispatcher) Register(ctx context.Context, pattern string, mode SubscriptionMode, endpoint, secret string) (*Subscription, error) {
	sub := &Subscription{
		ID:        ids.Subscription(),
		Pattern:   pattern,
		Mode:      mode,
		Endpoint:  endpoint,
		Secret:    secret,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := d.engine.PutSubscription(ctx, sub); err != nil {
		return nil, kerrors.Internal("persist subscription", err)
	}
	return sub, nil
}

// Deactivate flips a subscription inactive so it no longer matches events.
func (d *SubscriptionDispatcher) Deactivate(ctx context.Context, id string) error {
	sub, err := d.engine.GetSubscription(ctx, id)
	if err == storage.ErrNotFound {
		return kerrors.NotFound("subscription", id)
	}
	if err != nil {
		return kerrors.Internal("get subscription", err)
	}
	sub.Active = false
	if err := d.engine.PutSubscription(ctx, sub); err != nil {
		return kerrors.Internal("persist subscription", err)
	}
	return nil
}

// MatchPattern reports whether a subscription pattern matches an event type
// string "{entity}.{verb}". "*" matches everything; otherwise each side of
// the dot may independently be "*" or an exact match.
func MatchPattern(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	pEntity, pVerb, pOK := strings.Cut(pattern, ".")
	eEntity, eVerb, eOK := strings.Cut(eventType, ".")
	if !pOK || !eOK {
		return pattern == eventType
	}
	if pEntity != "*" && pEntity != eEntity {
		return false
	}
	if pVerb != "*" && pVerb != eVerb {
		return false
	}
	return true
}

// Dispatch evaluates every active subscription against ev and fires matches
// concurrently. The subscription lookup and payload encoding run on the
// caller's goroutine; each delivery runs on its own goroutine, so the caller
// never waits on a delivery, and delivery errors are swallowed.
func (d *SubscriptionDispatcher) Dispatch(ctx context.Context, ev *Event) {
	subs, err := d.engine.ListSubscriptions(ctx)
	if err != nil {
		d.log.WithField("error", err.Error()).Error("list subscriptions for dispatch")
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		d.log.WithField("error", err.Error()).Error("marshal event for dispatch")
		return
	}

	for _, sub := range subs {
		if !sub.Active || !MatchPattern(sub.Pattern, ev.Type) {
			continue
		}
		go func(sub *Subscription) {
			if d.sem != nil {
				d.sem <- struct{}{}
				defer func() { <-d.sem }()
			}
			d.deliver(sub, ev.Type, body)
		}(sub)
	}
}

func (d *SubscriptionDispatcher) deliver(sub *Subscription, eventType string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Kernel-Event", eventType)
	req.Header.Set("X-Kernel-Delivery", ids.New(ids.LongSuffixLen))
	if sub.Secret != "" {
		mac := hmac.New(sha256.New, []byte(sub.Secret))
		mac.Write(body)
		req.Header.Set("X-Kernel-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.WithField("endpoint", sub.Endpoint).WithField("error", err.Error()).Warn("webhook delivery failed")
		return
	}
	resp.Body.Close()
}
