package kernel

import (
	"context"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/dot-do/entitykernel/pkg/ids"
)

// EventLog appends immutable events with a per-entity monotonic sequence and
// serves the range/replay queries the entity store, verb executor, and
// time-travel engine build on.
type EventLog struct {
	engine storage.Engine
}

// NewEventLog returns an event log backed by engine.
func NewEventLog(engine storage.Engine) *EventLog {
	return &EventLog{engine: engine}
}

// NewEvent builds the event record for one verb execution, leaving Sequence
// unset: the storage engine assigns it when the event commits atomically
// with its entity mutation, so sequence == new version holds by
// construction.
func (l *EventLog) NewEvent(entityType, entityID, verb string, conj Conjugation, data, before, after map[string]interface{}) *Event {
	return &Event{
		ID:          ids.Event(),
		Type:        entityType + "." + verb,
		EntityType:  entityType,
		EntityID:    entityID,
		Verb:        verb,
		Conjugation: conj,
		Data:        data,
		Before:      before,
		After:       after,
		Timestamp:   time.Now(),
	}
}

// Query returns events ordered by timestamp DESC, filtered by the supplied
// EventQuery (all fields optional).
func (l *EventLog) Query(ctx context.Context, q EventQuery) ([]*Event, error) {
	events, err := l.engine.QueryEvents(ctx, q)
	if err != nil {
		return nil, kerrors.Internal("query events", err)
	}
	return events, nil
}

// History returns every event for one entity ordered by sequence ASC, for
// replay.
func (l *EventLog) History(ctx context.Context, entityType, entityID string) ([]*Event, error) {
	events, err := l.engine.EventHistory(ctx, entityType, entityID)
	if err != nil {
		return nil, kerrors.Internal("read event history", err)
	}
	return events, nil
}

// GetByID returns a single event or NotFound.
func (l *EventLog) GetByID(ctx context.Context, id string) (*Event, error) {
	ev, err := l.engine.GetEvent(ctx, id)
	if err == storage.ErrNotFound {
		return nil, kerrors.NotFound("event", id)
	}
	if err != nil {
		return nil, kerrors.Internal("get event", err)
	}
	return ev, nil
}
