package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/dot-do/entitykernel/pkg/ids"
	"github.com/dot-do/entitykernel/pkg/logger"
)

// builtinHooks is the fixed, non-deletable table of integration routes every
// tenant kernel carries in addition to its own tenant-configured hooks.
var builtinHooks = []IntegrationHook{
	{EntityType: "Contact", Verb: "qualify", Service: ServicePayments, Method: "POST /customers/sync"},
	{EntityType: "Contact", Verb: "create", Service: ServicePayments, Method: "POST /customers/sync"},
	{EntityType: "Deal", Verb: "close", Service: ServicePayments, Method: "POST /subscriptions/create"},
	{EntityType: "Issue", Verb: "create", Service: ServiceRepo, Method: "POST /issues/create"},
	{EntityType: "Issue", Verb: "update", Service: ServiceRepo, Method: "POST /issues/update"},
	{EntityType: "Issue", Verb: "close", Service: ServiceRepo, Method: "POST /issues/close"},
}

func init() {
	for i := range builtinHooks {
		h := &builtinHooks[i]
		h.ID = ids.BuiltinHook(string(h.Service), h.Method)
		h.Active = true
		h.Builtin = true
	}
}

// ServiceBinding is an outbound transport for one named downstream service.
// Implementations wrap whatever HTTP client/base-URL configuration the
// deployment wires for PAYMENTS, REPO, and the other IntegrationService
// names.
type ServiceBinding interface {
	// Do issues method ("VERB /path") against this service with the given
	// headers and JSON body (nil for GET/HEAD) and returns the response
	// status code.
	Do(ctx context.Context, method string, headers map[string]string, body []byte) (statusCode int, err error)
}

// IntegrationDispatcher matches events against the built-in hook table plus
// tenant-configured integration hooks, dispatches to named service bindings,
// and logs every outcome.
type IntegrationDispatcher struct {
	engine   storage.Engine
	bindings map[IntegrationService]ServiceBinding
	log      *logger.Logger
	sem      chan struct{} // caps concurrent outbound dispatches; nil = unbounded
}

// NewIntegrationDispatcher returns a dispatcher with the given service
// bindings (may be partial or empty; missing bindings log "not available"
// dispatch entries rather than failing).
func NewIntegrationDispatcher(engine storage.Engine, bindings map[IntegrationService]ServiceBinding, log *logger.Logger) *IntegrationDispatcher {
	if bindings == nil {
		bindings = make(map[IntegrationService]ServiceBinding)
	}
	if log == nil {
		log = logger.NewDefault("integrations")
	}
	return &IntegrationDispatcher{engine: engine, bindings: bindings, log: log}
}

// withSemaphore caps the dispatcher's concurrent outbound dispatches.
func (d *IntegrationDispatcher) withSemaphore(sem chan struct{}) *IntegrationDispatcher {
	d.sem = sem
	return d
}

// RegisterHook persists a tenant-configured integration hook. Built-in hooks
// cannot be registered or deleted through this path.
func (d *IntegrationDispatcher) RegisterHook(ctx context.Context, h *IntegrationHook) error {
	h.ID = ids.IntegrationHook()
	h.Active = true
	h.CreatedAt = time.Now()
	if err := d.engine.PutIntegrationHook(ctx, h); err != nil {
		return kerrors.Internal("persist integration hook", err)
	}
	return nil
}

// DeleteHook removes a tenant-configured hook. Built-in hook ids
// ("builtin:...") are rejected.
func (d *IntegrationDispatcher) DeleteHook(ctx context.Context, id string) error {
	if strings.HasPrefix(id, "builtin:") {
		return kerrors.BadInput("built-in integration hooks cannot be deleted")
	}
	if err := d.engine.DeleteIntegrationHook(ctx, id); err == storage.ErrNotFound {
		return kerrors.NotFound("integrationHook", id)
	} else if err != nil {
		return kerrors.Internal("delete integration hook", err)
	}
	return nil
}

// ListHooks returns the built-in hook table plus every tenant-configured hook.
func (d *IntegrationDispatcher) ListHooks(ctx context.Context) ([]*IntegrationHook, error) {
	tenantHooks, err := d.engine.ListIntegrationHooks(ctx)
	if err != nil {
		return nil, kerrors.Internal("list integration hooks", err)
	}
	out := make([]*IntegrationHook, 0, len(builtinHooks)+len(tenantHooks))
	for i := range builtinHooks {
		h := builtinHooks[i]
		out = append(out, &h)
	}
	out = append(out, tenantHooks...)
	return out, nil
}

func hookMatches(h *IntegrationHook, entityType, verb string) bool {
	if !h.Active {
		return false
	}
	if h.EntityType != "*" && h.EntityType != entityType {
		return false
	}
	if h.Verb != "*" && h.Verb != verb {
		return false
	}
	return true
}

// Dispatch evaluates every matching hook (built-in and tenant) for ev and
// dispatches to each concurrently. The hook lookup runs on the caller's
// goroutine; the caller never waits on the dispatches themselves, and every
// attempt is recorded to the dispatch log regardless of outcome.
func (d *IntegrationDispatcher) Dispatch(ctx context.Context, ev *Event, tenantContext string) {
	hooks, err := d.ListHooks(ctx)
	if err != nil {
		d.log.WithField("error", err.Error()).Error("list integration hooks for dispatch")
		return
	}

	for _, h := range hooks {
		if hookMatches(h, ev.EntityType, ev.Verb) {
			go func(h *IntegrationHook) {
				if d.sem != nil {
					d.sem <- struct{}{}
					defer func() { <-d.sem }()
				}
				d.dispatchOne(ctx, h, ev, tenantContext)
			}(h)
		}
	}
}

func (d *IntegrationDispatcher) dispatchOne(ctx context.Context, h *IntegrationHook, ev *Event, tenantContext string) {
	start := time.Now()
	entry := &DispatchLogEntry{
		ID:        ids.Dispatch(),
		EventID:   ev.ID,
		HookID:    h.ID,
		Service:   h.Service,
		Method:    h.Method,
		Timestamp: start,
	}

	binding, ok := d.bindings[h.Service]
	if !ok {
		entry.Status = DispatchError
		entry.Error = fmt.Sprintf("Service binding '%s' not available", h.Service)
		entry.DurationMS = time.Since(start).Milliseconds()
		d.logEntry(ctx, entry)
		return
	}

	headers := map[string]string{
		"X-Kernel-Event":  ev.Type,
		"X-Kernel-Entity": ev.EntityID,
		"X-Kernel-Verb":   ev.Verb,
		"X-Kernel-Hook":   h.ID,
	}

	verb, _ := splitMethod(h.Method)
	var body []byte
	if verb != http.MethodGet && verb != http.MethodHead {
		payload := map[string]interface{}{
			"event":       ev.Type,
			"entityType":  ev.EntityType,
			"entityId":    ev.EntityID,
			"verb":        ev.Verb,
			"conjugation": ev.Conjugation,
			"before":      ev.Before,
			"after":       ev.After,
			"data":        ev.Data,
			"context":     tenantContext,
			"timestamp":   ev.Timestamp,
		}
		body, _ = json.Marshal(payload)
	}

	status, err := binding.Do(ctx, h.Method, headers, body)
	entry.DurationMS = time.Since(start).Milliseconds()
	entry.StatusCode = status
	if err != nil {
		entry.Status = DispatchError
		entry.Error = err.Error()
	} else {
		entry.Status = DispatchSuccess
	}
	d.logEntry(ctx, entry)
}

func (d *IntegrationDispatcher) logEntry(ctx context.Context, entry *DispatchLogEntry) {
	if err := d.engine.AppendDispatchLog(ctx, entry); err != nil {
		d.log.WithField("error", err.Error()).Error("append dispatch log")
	}
}

// splitMethod parses a "{HTTP-verb} {path}" method string, defaulting to POST
// when no verb is given.
func splitMethod(method string) (verb, path string) {
	verb, path, ok := strings.Cut(strings.TrimSpace(method), " ")
	if !ok {
		return http.MethodPost, method
	}
	return strings.ToUpper(verb), path
}
