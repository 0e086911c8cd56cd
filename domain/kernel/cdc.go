package kernel

import (
	"context"
	"sort"
	"strings"
	"time"

	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
)

// CDCCursor positions a resumable change-data-capture read after a previously
// observed event.
type CDCCursor struct {
	EventID string
}

// CDCFilter narrows a stream to specific entity types and/or verbs (OR within
// each list, AND between the two lists; empty means unfiltered).
type CDCFilter struct {
	Types []string
	Verbs []string
}

// CDCStream produces a resumable, ordered, filterable sequence of events.
// Ordering is timestamp ASC, ties broken by event id ASC; the cursor
// is "strictly after": the resolved cursor event's timestamp is excluded,
// and among equal timestamps only greater ids are returned.
type CDCStream struct {
	events *EventLog
}

// NewCDCStream returns a stream reading from the given event log.
func NewCDCStream(events *EventLog) *CDCStream {
	return &CDCStream{events: events}
}

// Poll returns up to limit events strictly after cursor (or from the
// beginning of time if cursor is nil), matching filter, ordered timestamp
// ASC with id ASC tiebreak.
func (s *CDCStream) Poll(ctx context.Context, cursor *CDCCursor, filter CDCFilter, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var after *Event
	if cursor != nil && cursor.EventID != "" {
		ev, err := s.events.GetByID(ctx, cursor.EventID)
		if err != nil {
			return nil, kerrors.BadInput("unknown cursor event id: " + cursor.EventID)
		}
		after = ev
	}

	// The cursor scan must see the whole log: an event older than the newest
	// page would otherwise be unreachable for any resuming consumer.
	all, err := s.events.Query(ctx, EventQuery{Limit: QueryUnbounded})
	if err != nil {
		return nil, err
	}

	filtered := make([]*Event, 0, len(all))
	for _, ev := range all {
		if !matchesCDCFilter(ev, filter) {
			continue
		}
		if after != nil && !strictlyAfter(ev, after) {
			continue
		}
		filtered = append(filtered, ev)
	}

	sortEventsForCDC(filtered)

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func matchesCDCFilter(ev *Event, f CDCFilter) bool {
	if len(f.Types) > 0 && !containsString(f.Types, ev.EntityType) {
		return false
	}
	if len(f.Verbs) > 0 && !containsString(f.Verbs, ev.Verb) {
		return false
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// strictlyAfter reports whether ev sorts after cursor under (timestamp ASC,
// id ASC).
func strictlyAfter(ev, cursor *Event) bool {
	if ev.Timestamp.After(cursor.Timestamp) {
		return true
	}
	if ev.Timestamp.Equal(cursor.Timestamp) {
		return ev.ID > cursor.ID
	}
	return false
}

func sortEventsForCDC(events []*Event) {
	sort.Slice(events, func(i, j int) bool { return eventLess(events[i], events[j]) })
}

func eventLess(a, b *Event) bool {
	if a.Timestamp.Before(b.Timestamp) {
		return true
	}
	if a.Timestamp.Equal(b.Timestamp) {
		return a.ID < b.ID
	}
	return false
}

// Heartbeat marks the point at which a transport should emit a keepalive
// after delivering a batch of events with nothing further buffered.
type Heartbeat struct {
	At time.Time `json:"at"`
}
