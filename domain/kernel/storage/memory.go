package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel"
)

// Memory is an in-process Engine backed by mutex-guarded maps. Every getter
// returns a defensive copy so callers can never mutate stored state through
// an aliased pointer.
type Memory struct {
	mu sync.RWMutex

	nouns         map[string]*kernel.NounSchema
	entities      map[string]map[string]*kernel.Entity // type -> id -> entity
	events        map[string][]*kernel.Event           // "type:id" -> events, sequence order
	eventsByID    map[string]*kernel.Event
	relBySubject  map[string][]*kernel.RelationshipEdge
	relByObject   map[string][]*kernel.RelationshipEdge
	hooks         []*kernel.HookRegistration
	subscriptions map[string]*kernel.Subscription
	integrations  map[string]*kernel.IntegrationHook
	dispatchLog   []*kernel.DispatchLogEntry
	tenantMeta    *kernel.TenantMeta
}

// NewMemory returns an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{
		nouns:         make(map[string]*kernel.NounSchema),
		entities:      make(map[string]map[string]*kernel.Entity),
		events:        make(map[string][]*kernel.Event),
		eventsByID:    make(map[string]*kernel.Event),
		relBySubject:  make(map[string][]*kernel.RelationshipEdge),
		relByObject:   make(map[string][]*kernel.RelationshipEdge),
		subscriptions: make(map[string]*kernel.Subscription),
		integrations:  make(map[string]*kernel.IntegrationHook),
	}
}

func entityKey(entityType, id string) string { return entityType + ":" + id }

func cloneEntity(e *kernel.Entity) *kernel.Entity {
	cp := *e
	cp.Data = cloneMap(e.Data)
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneEvent(ev *kernel.Event) *kernel.Event {
	cp := *ev
	cp.Data = cloneMap(ev.Data)
	cp.Before = cloneMap(ev.Before)
	cp.After = cloneMap(ev.After)
	return &cp
}

func (m *Memory) PutNoun(ctx context.Context, schema *kernel.NounSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *schema
	m.nouns[schema.Name] = &cp
	return nil
}

func (m *Memory) GetNoun(ctx context.Context, name string) (*kernel.NounSchema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nouns[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *Memory) ListNouns(ctx context.Context) ([]*kernel.NounSchema, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*kernel.NounSchema, 0, len(m.nouns))
	for _, n := range m.nouns {
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// InsertEntityWithEvent inserts e and appends ev inside one critical
// section, assigning ev.Sequence from the entity's event history so the
// entity and its event are never observed apart.
func (m *Memory) InsertEntityWithEvent(ctx context.Context, e *kernel.Entity, ev *kernel.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.entities[e.Type]
	if !ok {
		byID = make(map[string]*kernel.Entity)
		m.entities[e.Type] = byID
	}
	byID[e.ID] = cloneEntity(e)
	m.appendEventLocked(ev)
	return nil
}

// UpdateEntityWithEvent persists e and appends ev inside one critical
// section; see InsertEntityWithEvent.
func (m *Memory) UpdateEntityWithEvent(ctx context.Context, e *kernel.Entity, ev *kernel.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.entities[e.Type]
	if !ok {
		return ErrNotFound
	}
	if _, ok := byID[e.ID]; !ok {
		return ErrNotFound
	}
	byID[e.ID] = cloneEntity(e)
	m.appendEventLocked(ev)
	return nil
}

// appendEventLocked assigns the next per-entity sequence to ev and stores
// it. Callers must hold m.mu.
func (m *Memory) appendEventLocked(ev *kernel.Event) {
	key := entityKey(ev.EntityType, ev.EntityID)
	var max int64
	for _, existing := range m.events[key] {
		if existing.Sequence > max {
			max = existing.Sequence
		}
	}
	ev.Sequence = max + 1
	cp := cloneEvent(ev)
	m.events[key] = append(m.events[key], cp)
	m.eventsByID[ev.ID] = cp
}

func (m *Memory) GetEntity(ctx context.Context, entityType, id string) (*kernel.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byID, ok := m.entities[entityType]
	if !ok {
		return nil, ErrNotFound
	}
	e, ok := byID[id]
	if !ok || e.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return cloneEntity(e), nil
}

func (m *Memory) ListEntities(ctx context.Context, entityType string, p kernel.ListParams) (*kernel.ListResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := m.entities[entityType]
	matched := make([]*kernel.Entity, 0, len(byID))
	for _, e := range byID {
		if e.DeletedAt != nil {
			continue
		}
		if matchesFilter(e, p.Filter) {
			matched = append(matched, e)
		}
	}

	sortEntities(matched, p.Sort)

	total := int64(len(matched))
	limit := p.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	end := offset + limit
	var page []*kernel.Entity
	if offset < len(matched) {
		if end > len(matched) {
			end = len(matched)
		}
		page = matched[offset:end]
	}

	out := make([]*kernel.Entity, len(page))
	for i, e := range page {
		out[i] = cloneEntity(e)
	}

	return &kernel.ListResult{
		Entities: out,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		HasMore:  int64(offset+len(page)) < total,
	}, nil
}

func matchesFilter(e *kernel.Entity, filter map[string]interface{}) bool {
	for field, want := range filter {
		got, present := e.Data[field]
		if want == nil {
			if present && got != nil {
				return false
			}
			continue
		}
		if !present || got != want {
			return false
		}
	}
	return true
}

func sortEntities(entities []*kernel.Entity, spec *kernel.SortSpec) {
	field, dir := "$createdAt", -1
	if spec != nil {
		field, dir = spec.Field, spec.Dir
		if dir != 1 && dir != -1 {
			field, dir = "$createdAt", -1
		}
	}

	less := func(i, j int) bool {
		var a, b interface{}
		switch field {
		case "$createdAt":
			a, b = entities[i].CreatedAt, entities[j].CreatedAt
		case "$updatedAt":
			a, b = entities[i].UpdatedAt, entities[j].UpdatedAt
		default:
			a, b = entities[i].Data[field], entities[j].Data[field]
		}
		cmp := compareValues(a, b)
		if dir == -1 {
			return cmp > 0
		}
		return cmp < 0
	}
	sort.SliceStable(entities, less)
}

func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case time.Time:
		bv, _ := b.(time.Time)
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		default:
			return 0
		}
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case float64:
		bv, _ := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func (m *Memory) QueryEvents(ctx context.Context, q kernel.EventQuery) ([]*kernel.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*kernel.Event, 0, len(m.eventsByID))
	for _, ev := range m.eventsByID {
		if q.Since != nil && !ev.Timestamp.After(*q.Since) {
			continue
		}
		if q.Type != "" && ev.Type != q.Type {
			continue
		}
		if q.EntityID != "" && ev.EntityID != q.EntityID {
			continue
		}
		if q.Verb != "" && ev.Verb != q.Verb {
			continue
		}
		all = append(all, cloneEvent(ev))
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })

	if q.Limit != kernel.QueryUnbounded {
		limit := q.Limit
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		if len(all) > limit {
			all = all[:limit]
		}
	}
	return all, nil
}

func (m *Memory) EventHistory(ctx context.Context, entityType, entityID string) ([]*kernel.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.events[entityKey(entityType, entityID)]
	out := make([]*kernel.Event, len(events))
	for i, ev := range events {
		out[i] = cloneEvent(ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *Memory) GetEvent(ctx context.Context, id string) (*kernel.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.eventsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEvent(ev), nil
}

func (m *Memory) PutRelationship(ctx context.Context, e *kernel.RelationshipEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	sKey := e.Subject + ":" + e.Predicate
	for _, existing := range m.relBySubject[sKey] {
		if existing.Object == e.Object {
			return nil
		}
	}
	m.relBySubject[sKey] = append(m.relBySubject[sKey], &cp)
	oKey := e.Object + ":" + e.Predicate
	m.relByObject[oKey] = append(m.relByObject[oKey], &cp)
	return nil
}

func (m *Memory) RelationshipsBySubject(ctx context.Context, subject, predicate string) ([]*kernel.RelationshipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edges := m.relBySubject[subject+":"+predicate]
	out := make([]*kernel.RelationshipEdge, len(edges))
	for i, e := range edges {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (m *Memory) RelationshipsByObject(ctx context.Context, object, predicate string) ([]*kernel.RelationshipEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edges := m.relByObject[object+":"+predicate]
	out := make([]*kernel.RelationshipEdge, len(edges))
	for i, e := range edges {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (m *Memory) PutHook(ctx context.Context, h *kernel.HookRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.hooks = append(m.hooks, &cp)
	return nil
}

func (m *Memory) ListHooks(ctx context.Context, noun, verb string) ([]*kernel.HookRegistration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*kernel.HookRegistration, 0)
	for _, h := range m.hooks {
		if (noun == "" || h.Noun == noun) && (verb == "" || h.Verb == verb) {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) PutSubscription(ctx context.Context, s *kernel.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subscriptions[s.ID] = &cp
	return nil
}

func (m *Memory) GetSubscription(ctx context.Context, id string) (*kernel.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]*kernel.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*kernel.Subscription, 0, len(m.subscriptions))
	for _, s := range m.subscriptions {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscriptions[id]; !ok {
		return ErrNotFound
	}
	delete(m.subscriptions, id)
	return nil
}

func (m *Memory) PutIntegrationHook(ctx context.Context, h *kernel.IntegrationHook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.integrations[h.ID] = &cp
	return nil
}

func (m *Memory) ListIntegrationHooks(ctx context.Context) ([]*kernel.IntegrationHook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*kernel.IntegrationHook, 0, len(m.integrations))
	for _, h := range m.integrations {
		cp := *h
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) DeleteIntegrationHook(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.integrations[id]; !ok {
		return ErrNotFound
	}
	delete(m.integrations, id)
	return nil
}

func (m *Memory) AppendDispatchLog(ctx context.Context, d *kernel.DispatchLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.dispatchLog = append(m.dispatchLog, &cp)
	return nil
}

func (m *Memory) ListDispatchLog(ctx context.Context, eventID string) ([]*kernel.DispatchLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*kernel.DispatchLogEntry, 0)
	for _, d := range m.dispatchLog {
		if eventID == "" || d.EventID == eventID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) PurgeDispatchLog(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.dispatchLog[:0]
	var removed int64
	for _, d := range m.dispatchLog {
		if d.Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	m.dispatchLog = kept
	return removed, nil
}

func (m *Memory) GetTenantMeta(ctx context.Context) (*kernel.TenantMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tenantMeta == nil {
		return nil, ErrNotFound
	}
	cp := *m.tenantMeta
	return &cp, nil
}

func (m *Memory) PutTenantMeta(ctx context.Context, meta *kernel.TenantMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *meta
	m.tenantMeta = &cp
	return nil
}
