package kernel

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/dot-do/entitykernel/pkg/logger"
)

// Tenant is a per-tenant instance bundling the schema registry, entity
// store, event log, verb executor, time-travel engine, and both dispatchers
// behind one exclusively-owned storage engine. It is a single serial
// actor: callers are expected to serialize mutating calls per tenant (the
// Manager below does this).
type Tenant struct {
	ID       string
	Engine   storage.Engine
	Schema   *SchemaRegistry
	Entities *EntityStore
	Events   *EventLog
	Executor *VerbExecutor
	Travel   *TimeTravel
	Hooks    *HookStore
	Rels     *RelationshipStore
	Subs     *SubscriptionDispatcher
	Integ    *IntegrationDispatcher
	CDC      *CDCStream
	Push     *CDCBroker

	mu sync.Mutex // serializes mutating operations within this tenant
}

// defaultDispatchWorkers caps a tenant's concurrent outbound dispatches when
// no explicit cap is configured.
const defaultDispatchWorkers = 8

// NewTenant wires every subsystem over one storage engine for tenantID. bus
// may be nil, in which case CDC push fan-out stays in-process only.
// cdcBufferSize sizes each CDC push subscriber's channel (see CDCBroker);
// dispatchWorkers caps outbound webhook/integration fan-out concurrency
// (non-positive selects the default).
func NewTenant(tenantID string, engine storage.Engine, bindings map[IntegrationService]ServiceBinding, httpClient *http.Client, log *logger.Logger, bus ExternalBus, cdcBufferSize, dispatchWorkers int) *Tenant {
	schema := NewSchemaRegistry(engine)
	events := NewEventLog(engine)
	entities := NewEntityStore(engine, schema, events)
	hooks := NewHookStore(engine)
	if dispatchWorkers <= 0 {
		dispatchWorkers = defaultDispatchWorkers
	}
	sem := make(chan struct{}, dispatchWorkers)
	return &Tenant{
		ID:       tenantID,
		Engine:   engine,
		Schema:   schema,
		Entities: entities,
		Events:   events,
		Executor: NewVerbExecutor(schema, entities, events, hooks, log),
		Travel:   NewTimeTravel(events),
		Hooks:    hooks,
		Rels:     NewRelationshipStore(engine),
		Subs:     NewSubscriptionDispatcher(engine, httpClient, log).withSemaphore(sem),
		Integ:    NewIntegrationDispatcher(engine, bindings, log).withSemaphore(sem),
		CDC:      NewCDCStream(events),
		Push:     NewCDCBroker(tenantID, bus, cdcBufferSize),
	}
}

// Lock serializes a mutating call against this tenant; every write path
// (Create/Update/Delete/Execute) should be called while holding this lock so
// at most one mutation runs at a time per tenant.
func (t *Tenant) Lock()   { t.mu.Lock() }
func (t *Tenant) Unlock() { t.mu.Unlock() }

// FanOut hands a freshly committed event to both dispatchers and the CDC push
// broker. The dispatchers' subscription/hook lookups run on the caller's
// goroutine and the deliveries run in the background; FanOut never waits on a
// delivery and never surfaces dispatch errors;
// those land only in the dispatch log (integrations) or are swallowed
// (webhooks).
func (t *Tenant) FanOut(ctx context.Context, ev *Event, tenantContext string) {
	t.Subs.Dispatch(ctx, ev)
	t.Integ.Dispatch(ctx, ev, tenantContext)
	t.Push.Publish(ctx, ev)
}

// Activate ensures a tenant-metadata row exists and marks it active.
func (t *Tenant) Activate(ctx context.Context) error {
	meta, err := t.Engine.GetTenantMeta(ctx)
	if err == storage.ErrNotFound {
		meta = &TenantMeta{TenantID: t.ID, Status: TenantActive, CreatedAt: time.Now()}
	} else if err != nil {
		return kerrors.Internal("get tenant meta", err)
	} else {
		meta.Status = TenantActive
		meta.DeactivatedAt = nil
	}
	if err := t.Engine.PutTenantMeta(ctx, meta); err != nil {
		return kerrors.Internal("persist tenant meta", err)
	}
	return nil
}

// Deactivate marks the tenant deactivated without touching any entity,
// event, or subscription data. A deactivated tenant can be reactivated by
// calling Activate again.
func (t *Tenant) Deactivate(ctx context.Context) error {
	meta, err := t.Engine.GetTenantMeta(ctx)
	if err == storage.ErrNotFound {
		meta = &TenantMeta{TenantID: t.ID, CreatedAt: time.Now()}
	} else if err != nil {
		return kerrors.Internal("get tenant meta", err)
	}
	now := time.Now()
	meta.Status = TenantDeactivated
	meta.DeactivatedAt = &now
	if err := t.Engine.PutTenantMeta(ctx, meta); err != nil {
		return kerrors.Internal("persist tenant meta", err)
	}
	return nil
}

// Meta returns the tenant's current metadata, defaulting to an active
// in-memory record if none has ever been persisted.
func (t *Tenant) Meta(ctx context.Context) (*TenantMeta, error) {
	meta, err := t.Engine.GetTenantMeta(ctx)
	if err == storage.ErrNotFound {
		return &TenantMeta{TenantID: t.ID, Status: TenantActive}, nil
	}
	if err != nil {
		return nil, kerrors.Internal("get tenant meta", err)
	}
	return meta, nil
}

// EngineFactory constructs a fresh, exclusive storage engine for a tenant id.
// A Manager calls this at most once per tenant, the first time that tenant
// id is seen.
type EngineFactory func(tenantID string) (storage.Engine, error)

// Manager lazily creates and caches one Tenant per tenant id, guaranteeing
// tenants are never shared and persist across requests for the process
// lifetime. No cross-tenant singleton state is
// held here beyond this registry of already-constructed kernels.
type Manager struct {
	newEngine       EngineFactory
	newBus          BusFactory
	bindings        map[IntegrationService]ServiceBinding
	httpClient      *http.Client
	log             *logger.Logger
	cdcBufferSize   int
	dispatchWorkers int

	mu      sync.Mutex
	tenants map[string]*Tenant
}

// NewManager returns a tenant manager. bindings are shared read-only
// across every tenant's IntegrationDispatcher (the registry of which
// downstream services are reachable is process-wide; the data each tenant
// pushes through it is not). newBus may be nil, which leaves every tenant's
// CDC push fan-out in-process only (the common case for the in-memory
// storage engine and for single-replica deployments).
func NewManager(newEngine EngineFactory, bindings map[IntegrationService]ServiceBinding, httpClient *http.Client, log *logger.Logger, newBus BusFactory) *Manager {
	return &Manager{
		newEngine:  newEngine,
		newBus:     newBus,
		bindings:   bindings,
		httpClient: httpClient,
		log:        log,
		tenants:    make(map[string]*Tenant),
	}
}

// WithCDCBufferSize sets the per-subscriber channel size passed to every
// tenant's CDCBroker; call it before the first Get for a given tenant.
// Non-positive values leave CDCBroker's own default in effect.
func (m *Manager) WithCDCBufferSize(n int) *Manager {
	m.cdcBufferSize = n
	return m
}

// WithDispatchWorkers caps each tenant's concurrent outbound fan-out; call it
// before the first Get for a given tenant. Non-positive values leave the
// default cap in effect.
func (m *Manager) WithDispatchWorkers(n int) *Manager {
	m.dispatchWorkers = n
	return m
}

// Tenants returns a snapshot of every tenant kernel constructed so far.
// Used by process-wide background sweeps (e.g. dispatch log retention) that
// must visit every already-active tenant without constructing new ones.
func (m *Manager) Tenants() []*Tenant {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out
}

// Get returns the tenant kernel for id, constructing it (and its exclusive
// storage engine) on first access.
func (m *Manager) Get(tenantID string) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.tenants[tenantID]; ok {
		return t, nil
	}

	engine, err := m.newEngine(tenantID)
	if err != nil {
		return nil, kerrors.Internal("construct tenant storage engine", err)
	}
	var bus ExternalBus
	if m.newBus != nil {
		bus = m.newBus(tenantID)
	}
	t := NewTenant(tenantID, engine, m.bindings, m.httpClient, m.log, bus, m.cdcBufferSize, m.dispatchWorkers)
	m.tenants[tenantID] = t
	return t, nil
}
