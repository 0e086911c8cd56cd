package kernel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPatternTruthTable(t *testing.T) {
	cases := []struct {
		pattern, eventType string
		want               bool
	}{
		{"*", "Contact.create", true},
		{"*", "Deal.close", true},
		{"Contact.*", "Contact.create", true},
		{"Contact.*", "Deal.create", false},
		{"*.create", "Contact.create", true},
		{"*.create", "Contact.update", false},
		{"Contact.create", "Contact.create", true},
		{"Contact.create", "Contact.update", false},
		{"Contact.create", "Deal.create", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, MatchPattern(c.pattern, c.eventType), "pattern=%s event=%s", c.pattern, c.eventType)
	}
}

func TestSubscriptionFanOutSignsBodyWithHMAC(t *testing.T) {
	ctx := context.Background()
	secret := "shh"

	var (
		mu       sync.Mutex
		received []byte
		sigHdr   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		received = buf
		sigHdr = r.Header.Get("X-Kernel-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	engine := storage.NewMemory()
	dispatcher := NewSubscriptionDispatcher(engine, srv.Client(), nil)

	_, err := dispatcher.Register(ctx, "Contact.*", ModeWebhook, srv.URL, secret)
	require.NoError(t, err)

	ev := &Event{
		ID: "evt_test1", Type: "Contact.create", EntityType: "Contact", EntityID: "contact_1",
		Verb: "create", Timestamp: time.Now(),
	}
	dispatcher.Dispatch(ctx, ev)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	var gotEvent Event
	require.NoError(t, json.Unmarshal(received, &gotEvent))
	assert.Equal(t, ev.ID, gotEvent.ID)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(received)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, sigHdr)
}

func TestDispatchSkipsInactiveSubscriptions(t *testing.T) {
	ctx := context.Background()
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	engine := storage.NewMemory()
	dispatcher := NewSubscriptionDispatcher(engine, srv.Client(), nil)
	sub, err := dispatcher.Register(ctx, "*", ModeWebhook, srv.URL, "")
	require.NoError(t, err)
	require.NoError(t, dispatcher.Deactivate(ctx, sub.ID))

	dispatcher.Dispatch(ctx, &Event{ID: "evt_x", Type: "Contact.create", EntityType: "Contact", Verb: "create", Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)
	assert.False(t, called)
}
