package kernel

import (
	"context"
	"strings"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/dot-do/entitykernel/pkg/ids"
)

// reservedFields are stripped from any patch before it is merged into an
// entity's payload: they are meta-fields owned by the store, never the
// caller.
var reservedFields = map[string]bool{
	"id": true, "type": true, "context": true, "createdAt": true, "version": true,
}

func stripReserved(patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(patch))
	for k, v := range patch {
		if reservedFields[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// EntityStore implements create/get/list/update/delete, coordinating
// schema validation and event append inside each mutation.
type EntityStore struct {
	engine   storage.Engine
	schema   *SchemaRegistry
	eventLog *EventLog
}

// NewEntityStore returns an entity store wired to the given schema registry
// and event log over a shared engine.
func NewEntityStore(engine storage.Engine, schema *SchemaRegistry, eventLog *EventLog) *EntityStore {
	return &EntityStore{engine: engine, schema: schema, eventLog: eventLog}
}

func entitySnapshot(e *Entity) map[string]interface{} {
	snap := make(map[string]interface{}, len(e.Data)+4)
	for k, v := range e.Data {
		snap[k] = v
	}
	snap["id"] = e.ID
	snap["type"] = e.Type
	snap["version"] = e.Version
	return snap
}

// Create validates type against the schema registry, mints an id if none is
// supplied, and atomically inserts the entity and its create event.
func (s *EntityStore) Create(ctx context.Context, entityType string, payload map[string]interface{}, contextURL string) (*Entity, *Event, error) {
	schema, err := s.schema.GetNoun(ctx, entityType)
	if err != nil {
		return nil, nil, err
	}
	if schema.Disabled["create"] {
		return nil, nil, kerrors.VerbDisabled(entityType, "create")
	}

	id, _ := payload["id"].(string)
	if id == "" {
		id = ids.Entity(strings.ToLower(entityType))
	}

	now := time.Now()
	data := stripReserved(payload)

	entity := &Entity{
		ID:        id,
		Type:      entityType,
		Data:      data,
		Version:   1,
		Context:   contextURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ev := s.eventLog.NewEvent(entityType, id, "create", schema.Verbs["create"], nil, nil, entitySnapshot(entity))
	if err := s.engine.InsertEntityWithEvent(ctx, entity, ev); err != nil {
		return nil, nil, kerrors.Internal("insert entity", err)
	}
	return entity, ev, nil
}

// Get returns a non-deleted entity or NotFound.
func (s *EntityStore) Get(ctx context.Context, entityType, id string) (*Entity, error) {
	e, err := s.engine.GetEntity(ctx, entityType, id)
	if err == storage.ErrNotFound {
		return nil, kerrors.NotFound(entityType, id)
	}
	if err != nil {
		return nil, kerrors.Internal("get entity", err)
	}
	return e, nil
}

// List returns a filtered, sorted, paginated page of entities plus the
// {total, limit, offset, hasMore} envelope. Filtering is pushed down into
// the storage engine so total reflects the filtered set.
func (s *EntityStore) List(ctx context.Context, entityType string, p ListParams) (*ListResult, error) {
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}
	result, err := s.engine.ListEntities(ctx, entityType, p)
	if err != nil {
		return nil, kerrors.Internal("list entities", err)
	}
	return result, nil
}

// ExpectedVersion is an optional optimistic-concurrency precondition.
type ExpectedVersion struct {
	Value int64
	Set   bool
}

// Update merges patch into the current entity, honoring an optional
// expectedVersion precondition, and appends an update event carrying before
// and after snapshots.
func (s *EntityStore) Update(ctx context.Context, entityType, id string, patch map[string]interface{}, expected ExpectedVersion) (*Entity, *Event, error) {
	schema, err := s.schema.GetNoun(ctx, entityType)
	if err != nil {
		return nil, nil, err
	}
	if schema.Disabled["update"] {
		return nil, nil, kerrors.VerbDisabled(entityType, "update")
	}

	current, err := s.Get(ctx, entityType, id)
	if err != nil {
		return nil, nil, err
	}

	if expected.Set && expected.Value != current.Version {
		return nil, nil, kerrors.VersionConflict(expected.Value, current.Version)
	}

	before := entitySnapshot(current)

	updated := *current
	updated.Data = mergeData(current.Data, stripReserved(patch))
	updated.Version = current.Version + 1
	updated.UpdatedAt = time.Now()

	ev := s.eventLog.NewEvent(entityType, id, "update", schema.Verbs["update"], nil, before, entitySnapshot(&updated))
	if err := s.engine.UpdateEntityWithEvent(ctx, &updated, ev); err != nil {
		return nil, nil, kerrors.Internal("update entity", err)
	}
	return &updated, ev, nil
}

func mergeData(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Delete soft-deletes an entity: it sets deletedAt, bumps updatedAt and the
// version (so the version equals the delete event's sequence), leaves the data
// and the other meta-fields intact, and appends a delete event with the prior
// state as before and a nil after.
// Idempotent only at the API level: a second call returns NotFound and
// emits no second event.
func (s *EntityStore) Delete(ctx context.Context, entityType, id string) (*Event, error) {
	schema, err := s.schema.GetNoun(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if schema.Disabled["delete"] {
		return nil, kerrors.VerbDisabled(entityType, "delete")
	}

	current, err := s.Get(ctx, entityType, id)
	if err != nil {
		return nil, err
	}

	before := entitySnapshot(current)
	now := time.Now()

	deleted := *current
	deleted.DeletedAt = &now
	deleted.UpdatedAt = now
	deleted.Version = current.Version + 1

	ev := s.eventLog.NewEvent(entityType, id, "delete", schema.Verbs["delete"], nil, before, nil)
	if err := s.engine.UpdateEntityWithEvent(ctx, &deleted, ev); err != nil {
		return nil, kerrors.Internal("delete entity", err)
	}
	return ev, nil
}
