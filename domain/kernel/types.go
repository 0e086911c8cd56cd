// Package kernel implements the per-tenant entity/event engine: schema
// registration, optimistic-concurrency entity mutation, an immutable
// per-entity event log, time travel, and fan-out dispatch to webhooks and
// integration services.
package kernel

import "time"

// FieldKind identifies the shape of a noun field.
type FieldKind string

const (
	FieldScalar       FieldKind = "scalar"
	FieldEnum         FieldKind = "enum"
	FieldRelationship FieldKind = "relationship"
	FieldCustomVerb   FieldKind = "customVerb"
	FieldDisabled     FieldKind = "disabled"
)

// FieldDescriptor describes one field of a noun schema.
type FieldDescriptor struct {
	Kind     FieldKind   `json:"kind"`
	Required bool        `json:"required,omitempty"`
	Optional bool        `json:"optional,omitempty"`
	Indexed  bool        `json:"indexed,omitempty"`
	Unique   bool        `json:"unique,omitempty"`
	Array    bool        `json:"array,omitempty"`
	Default  interface{} `json:"default,omitempty"`
	Enum     []string    `json:"enum,omitempty"`
	Target   string      `json:"target,omitempty"` // relationship target noun
}

// Conjugation is the (action, activity, event) triple plus the derived
// reverse-relation names, as produced by pkg/verbs.
type Conjugation struct {
	Action    string `json:"action"`
	Activity  string `json:"activity"`
	Event     string `json:"event"`
	ReverseBy string `json:"reverseBy"`
	ReverseAt string `json:"reverseAt"`
}

// NounSchema is a registered entity type.
type NounSchema struct {
	Name     string                     `json:"name"`
	Singular string                     `json:"singular"`
	Plural   string                     `json:"plural"`
	Slug     string                     `json:"slug"`
	Fields   map[string]FieldDescriptor `json:"fields"`
	Verbs    map[string]Conjugation     `json:"verbs"`
	Disabled map[string]bool            `json:"disabled"`
	CreatedAt time.Time                 `json:"createdAt"`
}

// NounDefinition is the caller-supplied input to defineNoun.
type NounDefinition struct {
	Singular string
	Plural   string
	Slug     string
	Fields   map[string]FieldDescriptor
	Disabled []string
}

// Entity is one document of a registered noun type.
type Entity struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Version   int64                  `json:"version"`
	Context   string                 `json:"context,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
	DeletedAt *time.Time             `json:"deletedAt,omitempty"`
}

// Event is one immutable record of a verb execution against an entity.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"` // "{EntityType}.{verb}"
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	Verb       string                 `json:"verb"`
	Conjugation Conjugation           `json:"conjugation"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Before     map[string]interface{} `json:"before,omitempty"`
	After      map[string]interface{} `json:"after,omitempty"`
	Sequence   int64                  `json:"sequence"`
	Timestamp  time.Time              `json:"timestamp"`
}

// RelationshipEdge is a directed (subject, predicate, object) triple.
type RelationshipEdge struct {
	Subject   string    `json:"subject"`
	Predicate string    `json:"predicate"`
	Object    string    `json:"object"`
	CreatedAt time.Time `json:"createdAt"`
}

// HookPhase is when a stored (never executed) hook fires relative to a verb.
type HookPhase string

const (
	PhaseBefore HookPhase = "before"
	PhaseAfter  HookPhase = "after"
)

// HookRegistration is stored-but-never-executed verb hook code.
type HookRegistration struct {
	Noun      string    `json:"noun"`
	Verb      string    `json:"verb"`
	Phase     HookPhase `json:"phase"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubscriptionMode identifies the delivery mechanism for a subscription.
type SubscriptionMode string

const (
	ModeWebhook   SubscriptionMode = "webhook"
	ModeWebSocket SubscriptionMode = "websocket"
)

// Subscription is a tenant's registered webhook or websocket listener.
type Subscription struct {
	ID        string           `json:"id"`
	Pattern   string           `json:"pattern"`
	Mode      SubscriptionMode `json:"mode"`
	Endpoint  string           `json:"endpoint"`
	Secret    string           `json:"secret,omitempty"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"createdAt"`
}

// IntegrationService names a downstream service an integration hook targets.
type IntegrationService string

const (
	ServicePayments     IntegrationService = "PAYMENTS"
	ServiceRepo         IntegrationService = "REPO"
	ServiceIntegrations IntegrationService = "INTEGRATIONS"
	ServiceOAuth        IntegrationService = "OAUTH"
	ServiceEvents       IntegrationService = "EVENTS"
)

// IntegrationHook routes an entity-type/verb pair to a downstream service call.
type IntegrationHook struct {
	ID        string                 `json:"id"`
	EntityType string                `json:"entityType"`
	Verb      string                 `json:"verb"`
	Service   IntegrationService     `json:"service"`
	Method    string                 `json:"method"` // "{HTTP-VERB} {path}"
	Config    map[string]interface{} `json:"config,omitempty"`
	Active    bool                   `json:"active"`
	Builtin   bool                   `json:"builtin"`
	CreatedAt time.Time              `json:"createdAt"`
}

// DispatchStatus is the outcome of one integration dispatch attempt.
type DispatchStatus string

const (
	DispatchSuccess DispatchStatus = "success"
	DispatchError   DispatchStatus = "error"
)

// DispatchLogEntry records one completed integration dispatch attempt.
type DispatchLogEntry struct {
	ID         string             `json:"id"`
	EventID    string             `json:"eventId"`
	HookID     string             `json:"hookId"`
	Service    IntegrationService `json:"service"`
	Method     string             `json:"method"`
	Status     DispatchStatus     `json:"status"`
	StatusCode int                `json:"statusCode,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationMS int64              `json:"durationMs"`
	Timestamp  time.Time          `json:"timestamp"`
}

// TenantStatus is the lifecycle state of a tenant's metadata record.
type TenantStatus string

const (
	TenantActive      TenantStatus = "active"
	TenantDeactivated TenantStatus = "deactivated"
)

// TenantMeta is the per-tenant metadata record.
type TenantMeta struct {
	TenantID      string       `json:"tenantId"`
	Status        TenantStatus `json:"status"`
	Name          string       `json:"name,omitempty"`
	Plan          string       `json:"plan,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	DeactivatedAt *time.Time   `json:"deactivatedAt,omitempty"`
}

// ListParams are the list() query parameters for the entity store.
type ListParams struct {
	Filter map[string]interface{}
	Sort   *SortSpec
	Limit  int
	Offset int
}

// SortSpec is a single {field: dir} pair where dir is 1 or -1.
type SortSpec struct {
	Field string
	Dir   int
}

// ListResult is the paginated response from list().
type ListResult struct {
	Entities []*Entity `json:"entities"`
	Total    int64     `json:"total"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
	HasMore  bool      `json:"hasMore"`
}

// ReconstructParams bound a time-travel query; either may be zero.
type ReconstructParams struct {
	AsOf      *time.Time
	AtVersion *int64
}

// FieldChange is one field-level difference between two reconstructed states.
type FieldChange struct {
	Field string      `json:"field"`
	From  interface{} `json:"from"`
	To    interface{} `json:"to"`
}

// DiffResult is the result of comparing two reconstructed states.
type DiffResult struct {
	Changes []FieldChange `json:"changes"`
	Events  []*Event      `json:"events"`
}

// EventQuery are the query() parameters for the event log.
type EventQuery struct {
	Since    *time.Time
	Type     string
	EntityID string
	Verb     string
	Limit    int
}

// QueryUnbounded as EventQuery.Limit bypasses the page clamp and returns the
// full matching log. Internal readers only (the CDC stream's cursor scan);
// the HTTP layer never passes it through.
const QueryUnbounded = -1

// DefaultVerbs are the three default verbs every noun carries unless disabled.
var DefaultVerbs = []string{"create", "update", "delete"}
