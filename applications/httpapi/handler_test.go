package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dot-do/entitykernel/domain/kernel"
	"github.com/dot-do/entitykernel/domain/kernel/storage"
	"github.com/dot-do/entitykernel/infrastructure/logging"
	"github.com/dot-do/entitykernel/pkg/logger"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	factory := func(tenantID string) (storage.Engine, error) { return storage.NewMemory(), nil }
	manager := kernel.NewManager(factory, nil, http.DefaultClient, logger.NewDefault("test"), nil)
	accessLog := logging.New("test", "error", "text")
	return NewRouter(manager, nil, accessLog, nil, nil)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestDefineNounAndListNouns(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/tenants/acme/nouns/Contact", map[string]interface{}{
		"singular": "contact",
		"plural":   "contacts",
		"fields": map[string]interface{}{
			"name": map[string]interface{}{"kind": "scalar", "required": true},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/tenants/acme/nouns", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	data, _ := env["data"].([]interface{})
	found := false
	for _, item := range data {
		schema, _ := item.(map[string]interface{})
		if schema["name"] == "Contact" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Contact in nouns listing, got %v", env)
	}
}

func TestCreateGetUpdateDeleteEntity(t *testing.T) {
	router := testRouter(t)

	doJSON(t, router, http.MethodPut, "/tenants/acme/nouns/Contact", map[string]interface{}{
		"singular": "contact",
		"plural":   "contacts",
	})

	rec := doJSON(t, router, http.MethodPost, "/tenants/acme/entities/Contact", map[string]interface{}{
		"name": "Alice",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeEnvelope(t, rec)
	data := created["data"].(map[string]interface{})
	id, _ := data["id"].(string)
	if id == "" {
		t.Fatalf("expected an entity id, got %v", created)
	}

	rec = doJSON(t, router, http.MethodGet, "/tenants/acme/entities/Contact/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPatch, "/tenants/acme/entities/Contact/"+id, map[string]interface{}{
		"name": "Alicia",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	if v, _ := updated["version"].(float64); v != 2 {
		t.Fatalf("expected version 2 after update, got %v", updated["version"])
	}

	rec = doJSON(t, router, http.MethodDelete, "/tenants/acme/entities/Contact/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/tenants/acme/entities/Contact/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete: expected 404, got %d", rec.Code)
	}
}

func TestListEntitiesFilterAndMeta(t *testing.T) {
	router := testRouter(t)
	doJSON(t, router, http.MethodPut, "/tenants/acme/nouns/Contact", map[string]interface{}{
		"singular": "contact", "plural": "contacts",
	})

	for i := 0; i < 3; i++ {
		doJSON(t, router, http.MethodPost, "/tenants/acme/entities/Contact", map[string]interface{}{"stage": "Customer"})
	}
	for i := 0; i < 2; i++ {
		doJSON(t, router, http.MethodPost, "/tenants/acme/entities/Contact", map[string]interface{}{"stage": "Lead"})
	}

	rec := doJSON(t, router, http.MethodGet, `/tenants/acme/entities/Contact?filter={"stage":"Lead"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	meta := env["meta"].(map[string]interface{})
	if total, _ := meta["total"].(float64); total != 2 {
		t.Fatalf("expected meta.total=2, got %v", meta["total"])
	}
	if hasMore, _ := meta["hasMore"].(bool); hasMore {
		t.Fatalf("expected hasMore=false")
	}
}

func TestExecuteVerbUnknownRejected(t *testing.T) {
	router := testRouter(t)
	doJSON(t, router, http.MethodPut, "/tenants/acme/nouns/Deal", map[string]interface{}{
		"singular": "deal", "plural": "deals",
	})
	rec := doJSON(t, router, http.MethodPost, "/tenants/acme/entities/Deal", map[string]interface{}{})
	created := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	id := created["id"].(string)

	rec = doJSON(t, router, http.MethodPost, "/tenants/acme/entities/Deal/"+id+"/verbs/teleport", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown verb, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCDCWebSocketStreamsNewEvents(t *testing.T) {
	router := testRouter(t)
	doJSON(t, router, http.MethodPut, "/tenants/acme/nouns/Contact", map[string]interface{}{
		"singular": "contact", "plural": "contacts",
	})

	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/tenants/acme/cdc/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine a moment to register the subscription before
	// the triggering create lands.
	time.Sleep(50 * time.Millisecond)

	doJSON(t, router, http.MethodPost, "/tenants/acme/entities/Contact", map[string]interface{}{"name": "Alice"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pushed event: %v", err)
	}

	var ev map[string]interface{}
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode pushed event: %v", err)
	}
	if ev["type"] != "Contact.create" {
		t.Fatalf("expected Contact.create, got %v", ev["type"])
	}
}

func TestRegisterAndListHooks(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/tenants/acme/hooks", map[string]interface{}{
		"noun": "Contact", "verb": "qualify", "phase": "before", "code": "notify(entity)",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/tenants/acme/hooks?noun=Contact", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := decodeEnvelope(t, rec)["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("expected one hook, got %v", data)
	}

	rec = doJSON(t, router, http.MethodPost, "/tenants/acme/hooks", map[string]interface{}{
		"noun": "Contact", "verb": "qualify", "phase": "during", "code": "x",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad phase, got %d", rec.Code)
	}
}

func TestLinkAndListRelationships(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/tenants/acme/relationships", map[string]interface{}{
		"subject": "contact_1", "predicate": "worksAt", "object": "company_1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/tenants/acme/relationships?subject=contact_1&predicate=worksAt", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data, _ := decodeEnvelope(t, rec)["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("expected one edge, got %v", data)
	}

	rec = doJSON(t, router, http.MethodGet, "/tenants/acme/relationships?object=company_1&predicate=worksAt", nil)
	data, _ = decodeEnvelope(t, rec)["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("expected one reverse edge, got %v", data)
	}

	rec = doJSON(t, router, http.MethodGet, "/tenants/acme/relationships?predicate=worksAt", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without subject or object, got %d", rec.Code)
	}
}

func TestListEventDispatchesEmpty(t *testing.T) {
	router := testRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/tenants/acme/events/evt_missing/dispatches", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if data, ok := decodeEnvelope(t, rec)["data"].([]interface{}); ok && len(data) != 0 {
		t.Fatalf("expected no dispatch entries, got %v", data)
	}
}
