package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel"
	_ "github.com/lib/pq"
)

// Postgres is an Engine backed by a dedicated PostgreSQL database (or schema)
// exclusive to one tenant: idempotent DDL on construction, JSONB payload
// columns, parametrized queries throughout.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an already-open *sql.DB scoped to one tenant.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the tenant's tables if they do not already exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS nouns (
			name TEXT PRIMARY KEY,
			schema JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			data JSONB NOT NULL,
			version BIGINT NOT NULL,
			context TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			deleted_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);
		CREATE INDEX IF NOT EXISTS idx_entities_type_deleted ON entities(type, deleted_at);

		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			verb TEXT NOT NULL,
			conjugation_action TEXT NOT NULL,
			conjugation_activity TEXT NOT NULL,
			conjugation_event TEXT NOT NULL,
			data JSONB,
			before_state JSONB,
			after_state JSONB,
			sequence BIGINT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_type, entity_id);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_verb ON events(verb);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_events_entity_seq ON events(entity_type, entity_id, sequence);

		CREATE TABLE IF NOT EXISTS relationships (
			subject TEXT NOT NULL,
			predicate TEXT NOT NULL,
			object TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (subject, predicate, object)
		);
		CREATE INDEX IF NOT EXISTS idx_relationships_object ON relationships(object, predicate);

		CREATE TABLE IF NOT EXISTS hooks (
			id BIGSERIAL PRIMARY KEY,
			noun TEXT NOT NULL,
			verb TEXT NOT NULL,
			phase TEXT NOT NULL,
			code TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_hooks_noun_verb_phase ON hooks(noun, verb, phase);

		CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			pattern TEXT NOT NULL,
			mode TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			secret TEXT,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_pattern ON subscriptions(pattern);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_active ON subscriptions(active);

		CREATE TABLE IF NOT EXISTS integration_hooks (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			verb TEXT NOT NULL,
			service TEXT NOT NULL,
			method TEXT NOT NULL,
			config JSONB,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_integration_hooks_route ON integration_hooks(entity_type, verb, active);

		CREATE TABLE IF NOT EXISTS dispatch_log (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			hook_id TEXT NOT NULL,
			service TEXT NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			status_code INTEGER,
			error TEXT,
			duration_ms BIGINT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_dispatch_log_event ON dispatch_log(event_id);
		CREATE INDEX IF NOT EXISTS idx_dispatch_log_timestamp ON dispatch_log(timestamp);

		CREATE TABLE IF NOT EXISTS tenant_meta (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL
		);
	`)
	return err
}

func (p *Postgres) PutNoun(ctx context.Context, schema *kernel.NounSchema) error {
	b, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("marshal noun schema: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO nouns (name, schema, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET schema = EXCLUDED.schema
	`, schema.Name, b, schema.CreatedAt)
	return err
}

func (p *Postgres) GetNoun(ctx context.Context, name string) (*kernel.NounSchema, error) {
	var b []byte
	err := p.db.QueryRowContext(ctx, `SELECT schema FROM nouns WHERE name = $1`, name).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var schema kernel.NounSchema
	if err := json.Unmarshal(b, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

func (p *Postgres) ListNouns(ctx context.Context) ([]*kernel.NounSchema, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT schema FROM nouns ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*kernel.NounSchema
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		var schema kernel.NounSchema
		if err := json.Unmarshal(b, &schema); err != nil {
			return nil, err
		}
		out = append(out, &schema)
	}
	return out, rows.Err()
}

// withTx runs fn inside one transaction, rolling back on any error.
func (p *Postgres) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// InsertEntityWithEvent inserts e and appends ev in one transaction; the
// event's sequence is computed from the entity's event history inside that
// transaction, so a crash between the two statements can never leave an
// entity version without its event or vice versa.
func (p *Postgres) InsertEntityWithEvent(ctx context.Context, e *kernel.Entity, ev *kernel.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal entity data: %w", err)
	}
	return p.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, type, data, version, context, created_at, updated_at, deleted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, e.ID, e.Type, data, e.Version, e.Context, e.CreatedAt, e.UpdatedAt, e.DeletedAt)
		if err != nil {
			return err
		}
		return appendEventTx(ctx, tx, ev)
	})
}

// UpdateEntityWithEvent persists e and appends ev in one transaction; see
// InsertEntityWithEvent.
func (p *Postgres) UpdateEntityWithEvent(ctx context.Context, e *kernel.Entity, ev *kernel.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal entity data: %w", err)
	}
	return p.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE entities SET data = $1, version = $2, updated_at = $3, deleted_at = $4
			WHERE id = $5 AND type = $6
		`, data, e.Version, e.UpdatedAt, e.DeletedAt, e.ID, e.Type)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return appendEventTx(ctx, tx, ev)
	})
}

// appendEventTx inserts ev with sequence = max(sequence)+1 for its entity,
// computed inside the caller's transaction, and writes the assigned sequence
// back onto ev.
func appendEventTx(ctx context.Context, tx *sql.Tx, ev *kernel.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	before, err := json.Marshal(ev.Before)
	if err != nil {
		return err
	}
	after, err := json.Marshal(ev.After)
	if err != nil {
		return err
	}
	return tx.QueryRowContext(ctx, `
		INSERT INTO events (
			id, type, entity_type, entity_id, verb,
			conjugation_action, conjugation_activity, conjugation_event,
			data, before_state, after_state, sequence, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,
			(SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE entity_type = $3 AND entity_id = $4),
			$12)
		RETURNING sequence
	`, ev.ID, ev.Type, ev.EntityType, ev.EntityID, ev.Verb,
		ev.Conjugation.Action, ev.Conjugation.Activity, ev.Conjugation.Event,
		data, before, after, ev.Timestamp).Scan(&ev.Sequence)
}

func (p *Postgres) scanEntity(row *sql.Row) (*kernel.Entity, error) {
	var (
		e     kernel.Entity
		data  []byte
		ctxt  sql.NullString
		delAt sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.Type, &data, &e.Version, &ctxt, &e.CreatedAt, &e.UpdatedAt, &delAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &e.Data); err != nil {
		return nil, err
	}
	e.Context = ctxt.String
	if delAt.Valid {
		t := delAt.Time
		e.DeletedAt = &t
	}
	return &e, nil
}

func (p *Postgres) GetEntity(ctx context.Context, entityType, id string) (*kernel.Entity, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, type, data, version, context, created_at, updated_at, deleted_at
		FROM entities WHERE type = $1 AND id = $2 AND deleted_at IS NULL
	`, entityType, id)
	e, err := p.scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return e, err
}

var sortFieldAllow = map[string]string{
	"$createdAt": "created_at",
	"$updatedAt": "updated_at",
}

func (p *Postgres) ListEntities(ctx context.Context, entityType string, lp kernel.ListParams) (*kernel.ListResult, error) {
	where := []string{"type = $1", "deleted_at IS NULL"}
	args := []interface{}{entityType}
	for field, want := range lp.Filter {
		args = append(args, field)
		n1 := len(args)
		if want == nil {
			where = append(where, fmt.Sprintf("(data ->> $%d) IS NULL", n1))
			continue
		}
		args = append(args, fmt.Sprintf("%v", want))
		n2 := len(args)
		where = append(where, fmt.Sprintf("(data ->> $%d) = $%d", n1, n2))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf(`SELECT count(*) FROM entities WHERE %s`, whereSQL)
	if err := p.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, err
	}

	orderBy := "created_at DESC"
	if lp.Sort != nil && (lp.Sort.Dir == 1 || lp.Sort.Dir == -1) {
		dir := "ASC"
		if lp.Sort.Dir == -1 {
			dir = "DESC"
		}
		if col, ok := sortFieldAllow[lp.Sort.Field]; ok {
			orderBy = fmt.Sprintf("%s %s", col, dir)
		} else {
			orderBy = fmt.Sprintf("(data ->> %s) %s", quoteLiteral(lp.Sort.Field), dir)
		}
	}

	limit := lp.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	offset := lp.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, type, data, version, context, created_at, updated_at, deleted_at
		FROM entities WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d
	`, whereSQL, orderBy, len(args)-1, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*kernel.Entity
	for rows.Next() {
		var (
			e     kernel.Entity
			data  []byte
			ctxt  sql.NullString
			delAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Type, &data, &e.Version, &ctxt, &e.CreatedAt, &e.UpdatedAt, &delAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &e.Data); err != nil {
			return nil, err
		}
		e.Context = ctxt.String
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &kernel.ListResult{
		Entities: out,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		HasMore:  int64(offset+len(out)) < total,
	}, nil
}

// quoteLiteral escapes a field name used inside a JSONB ->> operator so it
// can only ever act as a literal string key, never as SQL.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (p *Postgres) scanEvents(rows *sql.Rows) ([]*kernel.Event, error) {
	var out []*kernel.Event
	for rows.Next() {
		var (
			ev                 kernel.Event
			data, before, after []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.EntityType, &ev.EntityID, &ev.Verb,
			&ev.Conjugation.Action, &ev.Conjugation.Activity, &ev.Conjugation.Event,
			&data, &before, &after, &ev.Sequence, &ev.Timestamp); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(data, &ev.Data)
		_ = json.Unmarshal(before, &ev.Before)
		_ = json.Unmarshal(after, &ev.After)
		ev.Conjugation.ReverseBy = ev.Conjugation.Event + "By"
		ev.Conjugation.ReverseAt = ev.Conjugation.Event + "At"
		out = append(out, &ev)
	}
	return out, rows.Err()
}

const eventColumns = `id, type, entity_type, entity_id, verb,
	conjugation_action, conjugation_activity, conjugation_event,
	data, before_state, after_state, sequence, timestamp`

func (p *Postgres) QueryEvents(ctx context.Context, q kernel.EventQuery) ([]*kernel.Event, error) {
	where := []string{"1=1"}
	var args []interface{}
	if q.Since != nil {
		args = append(args, *q.Since)
		where = append(where, fmt.Sprintf("timestamp > $%d", len(args)))
	}
	if q.Type != "" {
		args = append(args, q.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if q.EntityID != "" {
		args = append(args, q.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if q.Verb != "" {
		args = append(args, q.Verb)
		where = append(where, fmt.Sprintf("verb = $%d", len(args)))
	}
	var query string
	if q.Limit == kernel.QueryUnbounded {
		query = fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY timestamp DESC`,
			eventColumns, strings.Join(where, " AND "))
	} else {
		limit := q.Limit
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		args = append(args, limit)
		query = fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY timestamp DESC LIMIT $%d`,
			eventColumns, strings.Join(where, " AND "), len(args))
	}
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanEvents(rows)
}

func (p *Postgres) EventHistory(ctx context.Context, entityType, entityID string) ([]*kernel.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE entity_type = $1 AND entity_id = $2 ORDER BY sequence ASC`, eventColumns)
	rows, err := p.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return p.scanEvents(rows)
}

func (p *Postgres) GetEvent(ctx context.Context, id string) (*kernel.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE id = $1`, eventColumns)
	rows, err := p.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events, err := p.scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events[0], nil
}

func (p *Postgres) PutRelationship(ctx context.Context, e *kernel.RelationshipEdge) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO relationships (subject, predicate, object, created_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (subject, predicate, object) DO NOTHING
	`, e.Subject, e.Predicate, e.Object, e.CreatedAt)
	return err
}

func (p *Postgres) RelationshipsBySubject(ctx context.Context, subject, predicate string) ([]*kernel.RelationshipEdge, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT subject, predicate, object, created_at FROM relationships WHERE subject = $1 AND predicate = $2
	`, subject, predicate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

func (p *Postgres) RelationshipsByObject(ctx context.Context, object, predicate string) ([]*kernel.RelationshipEdge, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT subject, predicate, object, created_at FROM relationships WHERE object = $1 AND predicate = $2
	`, object, predicate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

func scanRelationships(rows *sql.Rows) ([]*kernel.RelationshipEdge, error) {
	var out []*kernel.RelationshipEdge
	for rows.Next() {
		var e kernel.RelationshipEdge
		if err := rows.Scan(&e.Subject, &e.Predicate, &e.Object, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (p *Postgres) PutHook(ctx context.Context, h *kernel.HookRegistration) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO hooks (noun, verb, phase, code, created_at) VALUES ($1,$2,$3,$4,$5)
	`, h.Noun, h.Verb, string(h.Phase), h.Code, h.CreatedAt)
	return err
}

func (p *Postgres) ListHooks(ctx context.Context, noun, verb string) ([]*kernel.HookRegistration, error) {
	where := []string{"1=1"}
	var args []interface{}
	if noun != "" {
		args = append(args, noun)
		where = append(where, fmt.Sprintf("noun = $%d", len(args)))
	}
	if verb != "" {
		args = append(args, verb)
		where = append(where, fmt.Sprintf("verb = $%d", len(args)))
	}
	query := fmt.Sprintf(`SELECT noun, verb, phase, code, created_at FROM hooks WHERE %s`, strings.Join(where, " AND "))
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*kernel.HookRegistration
	for rows.Next() {
		var h kernel.HookRegistration
		var phase string
		if err := rows.Scan(&h.Noun, &h.Verb, &phase, &h.Code, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Phase = kernel.HookPhase(phase)
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (p *Postgres) PutSubscription(ctx context.Context, s *kernel.Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, pattern, mode, endpoint, secret, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET pattern = EXCLUDED.pattern, mode = EXCLUDED.mode,
			endpoint = EXCLUDED.endpoint, secret = EXCLUDED.secret, active = EXCLUDED.active
	`, s.ID, s.Pattern, string(s.Mode), s.Endpoint, s.Secret, s.Active, s.CreatedAt)
	return err
}

func (p *Postgres) scanSubscription(row *sql.Row) (*kernel.Subscription, error) {
	var (
		s      kernel.Subscription
		mode   string
		secret sql.NullString
	)
	if err := row.Scan(&s.ID, &s.Pattern, &mode, &s.Endpoint, &secret, &s.Active, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Mode = kernel.SubscriptionMode(mode)
	s.Secret = secret.String
	return &s, nil
}

func (p *Postgres) GetSubscription(ctx context.Context, id string) (*kernel.Subscription, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id, pattern, mode, endpoint, secret, active, created_at FROM subscriptions WHERE id = $1`, id)
	s, err := p.scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

func (p *Postgres) ListSubscriptions(ctx context.Context) ([]*kernel.Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, pattern, mode, endpoint, secret, active, created_at FROM subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*kernel.Subscription
	for rows.Next() {
		var (
			s      kernel.Subscription
			mode   string
			secret sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Pattern, &mode, &s.Endpoint, &secret, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Mode = kernel.SubscriptionMode(mode)
		s.Secret = secret.String
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) PutIntegrationHook(ctx context.Context, h *kernel.IntegrationHook) error {
	config, err := json.Marshal(h.Config)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO integration_hooks (id, entity_type, verb, service, method, config, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET entity_type = EXCLUDED.entity_type, verb = EXCLUDED.verb,
			service = EXCLUDED.service, method = EXCLUDED.method, config = EXCLUDED.config, active = EXCLUDED.active
	`, h.ID, h.EntityType, h.Verb, string(h.Service), h.Method, config, h.Active, h.CreatedAt)
	return err
}

func (p *Postgres) ListIntegrationHooks(ctx context.Context) ([]*kernel.IntegrationHook, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, entity_type, verb, service, method, config, active, created_at FROM integration_hooks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*kernel.IntegrationHook
	for rows.Next() {
		var (
			h       kernel.IntegrationHook
			service string
			config  []byte
		)
		if err := rows.Scan(&h.ID, &h.EntityType, &h.Verb, &service, &h.Method, &config, &h.Active, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Service = kernel.IntegrationService(service)
		_ = json.Unmarshal(config, &h.Config)
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteIntegrationHook(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM integration_hooks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendDispatchLog(ctx context.Context, d *kernel.DispatchLogEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO dispatch_log (id, event_id, hook_id, service, method, status, status_code, error, duration_ms, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, d.ID, d.EventID, d.HookID, string(d.Service), d.Method, string(d.Status), d.StatusCode, d.Error, d.DurationMS, d.Timestamp)
	return err
}

func (p *Postgres) ListDispatchLog(ctx context.Context, eventID string) ([]*kernel.DispatchLogEntry, error) {
	where, args := "1=1", []interface{}{}
	if eventID != "" {
		args = append(args, eventID)
		where = "event_id = $1"
	}
	query := fmt.Sprintf(`SELECT id, event_id, hook_id, service, method, status, status_code, error, duration_ms, timestamp FROM dispatch_log WHERE %s ORDER BY timestamp DESC`, where)
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*kernel.DispatchLogEntry
	for rows.Next() {
		var (
			d          kernel.DispatchLogEntry
			service    string
			status     string
			statusCode sql.NullInt64
			errStr     sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.EventID, &d.HookID, &service, &d.Method, &status, &statusCode, &errStr, &d.DurationMS, &d.Timestamp); err != nil {
			return nil, err
		}
		d.Service = kernel.IntegrationService(service)
		d.Status = kernel.DispatchStatus(status)
		d.StatusCode = int(statusCode.Int64)
		d.Error = errStr.String
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (p *Postgres) PurgeDispatchLog(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM dispatch_log WHERE timestamp < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (p *Postgres) GetTenantMeta(ctx context.Context) (*kernel.TenantMeta, error) {
	var b []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM tenant_meta WHERE key = 'tenant'`).Scan(&b)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var m kernel.TenantMeta
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (p *Postgres) PutTenantMeta(ctx context.Context, m *kernel.TenantMeta) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO tenant_meta (key, value) VALUES ('tenant', $1)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, b)
	return err
}

