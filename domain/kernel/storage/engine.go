// Package storage defines the per-tenant storage engine contract consumed by
// the entity kernel, plus in-memory and PostgreSQL implementations.
package storage

import (
	"context"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel"
)

// EntityFilter narrows an entity list/count query. Equality only; fields are
// AND-combined. A nil value matches records where the field is absent or null.
type EntityFilter = map[string]interface{}

// Engine is the storage contract for one tenant's data. Every method is
// scoped implicitly to the engine's own tenant; no method accepts a tenant
// id because an Engine is never shared between tenants.
type Engine interface {
	// Nouns
	PutNoun(ctx context.Context, schema *kernel.NounSchema) error
	GetNoun(ctx context.Context, name string) (*kernel.NounSchema, error)
	ListNouns(ctx context.Context) ([]*kernel.NounSchema, error)

	// Entities. Every mutation commits atomically with its event: the engine
	// assigns ev.Sequence = max(sequence)+1 over the target entity inside the
	// same commit, so either both the mutation and its event persist or
	// neither does, and the event sequence always equals the resulting
	// entity version.
	InsertEntityWithEvent(ctx context.Context, e *kernel.Entity, ev *kernel.Event) error
	UpdateEntityWithEvent(ctx context.Context, e *kernel.Entity, ev *kernel.Event) error
	GetEntity(ctx context.Context, entityType, id string) (*kernel.Entity, error)
	ListEntities(ctx context.Context, entityType string, p kernel.ListParams) (*kernel.ListResult, error)

	// Events (read side)
	QueryEvents(ctx context.Context, q kernel.EventQuery) ([]*kernel.Event, error)
	EventHistory(ctx context.Context, entityType, entityID string) ([]*kernel.Event, error)
	GetEvent(ctx context.Context, id string) (*kernel.Event, error)

	// Relationships
	PutRelationship(ctx context.Context, e *kernel.RelationshipEdge) error
	RelationshipsBySubject(ctx context.Context, subject, predicate string) ([]*kernel.RelationshipEdge, error)
	RelationshipsByObject(ctx context.Context, object, predicate string) ([]*kernel.RelationshipEdge, error)

	// Hooks (stored, never executed)
	PutHook(ctx context.Context, h *kernel.HookRegistration) error
	ListHooks(ctx context.Context, noun, verb string) ([]*kernel.HookRegistration, error)

	// Subscriptions
	PutSubscription(ctx context.Context, s *kernel.Subscription) error
	GetSubscription(ctx context.Context, id string) (*kernel.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*kernel.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Integration hooks (tenant-configured; built-ins are held in memory by
	// the dispatcher, not persisted here)
	PutIntegrationHook(ctx context.Context, h *kernel.IntegrationHook) error
	ListIntegrationHooks(ctx context.Context) ([]*kernel.IntegrationHook, error)
	DeleteIntegrationHook(ctx context.Context, id string) error

	// Dispatch log
	AppendDispatchLog(ctx context.Context, d *kernel.DispatchLogEntry) error
	ListDispatchLog(ctx context.Context, eventID string) ([]*kernel.DispatchLogEntry, error)
	// PurgeDispatchLog deletes dispatch log entries older than olderThan and
	// returns the number removed. Entities, events, and every other record
	// are append-only and exempt from retention; only this operational log
	// is ever pruned.
	PurgeDispatchLog(ctx context.Context, olderThan time.Time) (int64, error)

	// Tenant metadata
	GetTenantMeta(ctx context.Context) (*kernel.TenantMeta, error)
	PutTenantMeta(ctx context.Context, m *kernel.TenantMeta) error
}

// ErrNotFound is returned by Engine methods when a keyed lookup misses.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "storage: not found" }
