package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/dot-do/entitykernel/domain/kernel"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
)

// handler binds a kernel.Manager to the HTTP verbs and owns no state of its
// own: every method resolves the {tenant} path segment to its kernel.Tenant
// on every call rather than caching request scope on the struct.
type handler struct {
	manager *kernel.Manager
}

func newHandler(manager *kernel.Manager) *handler {
	return &handler{manager: manager}
}

func (h *handler) tenant(r *http.Request) (*kernel.Tenant, error) {
	id := mux.Vars(r)["tenant"]
	if strings.TrimSpace(id) == "" {
		return nil, kerrors.BadInput("missing tenant path segment")
	}
	return h.manager.Get(id)
}

// --- Nouns (schema registry) ---

type defineNounRequest struct {
	Singular string                               `json:"singular"`
	Plural   string                               `json:"plural"`
	Slug     string                               `json:"slug"`
	Fields   map[string]kernel.FieldDescriptor     `json:"fields"`
	Disabled []string                             `json:"disabled"`
}

func (h *handler) DefineNoun(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	name := mux.Vars(r)["noun"]

	var req defineNounRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	def := kernel.NounDefinition{
		Singular: req.Singular,
		Plural:   req.Plural,
		Slug:     req.Slug,
		Fields:   req.Fields,
		Disabled: req.Disabled,
	}

	t.Lock()
	schema, err := t.Schema.DefineNoun(r.Context(), name, def)
	t.Unlock()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, schema)
}

func (h *handler) GetNoun(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	schema, err := t.Schema.GetNoun(r.Context(), mux.Vars(r)["noun"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, schema)
}

func (h *handler) ListNouns(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	schemas, err := t.Schema.ListNouns(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, schemas)
}

func (h *handler) ListVerbs(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if form := r.URL.Query().Get("form"); form != "" {
		matches, err := t.Schema.FindVerbByAnyForm(r.Context(), form)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, matches)
		return
	}
	verbs, err := t.Schema.ListVerbs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, verbs)
}

// --- Entities ---

func (h *handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	noun := mux.Vars(r)["noun"]

	var payload map[string]interface{}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	t.Lock()
	entity, ev, err := t.Entities.Create(r.Context(), noun, payload, r.URL.Query().Get("context"))
	t.Unlock()
	if err != nil {
		writeError(w, r, err)
		return
	}
	t.FanOut(r.Context(), ev, entity.Context)
	setVersionTag(w, entity.Version)
	writeCreated(w, entity)
}

func (h *handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	entity, err := t.Entities.Get(r.Context(), vars["noun"], vars["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	projected, err := project(entity, fieldsParam(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, projected)
}

func (h *handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	noun := mux.Vars(r)["noun"]

	params := kernel.ListParams{
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("sort"); raw != "" {
		var pair map[string]int
		if err := json.Unmarshal([]byte(raw), &pair); err != nil || len(pair) != 1 {
			writeError(w, r, kerrors.BadInput("sort must be a JSON object with exactly one field:direction pair"))
			return
		}
		for field, dir := range pair {
			params.Sort = &kernel.SortSpec{Field: field, Dir: dir}
		}
	}
	if filter := r.URL.Query().Get("filter"); filter != "" {
		parsed, err := parseFilter(filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		params.Filter = parsed
	}

	result, err := t.Entities.List(r.Context(), noun, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, result.Entities, map[string]interface{}{
		"total": result.Total, "limit": result.Limit, "offset": result.Offset, "hasMore": result.HasMore,
	})
}

func (h *handler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)

	var patch map[string]interface{}
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	var expected kernel.ExpectedVersion
	if v, ok, err := versionPrecondition(r); err != nil {
		writeError(w, r, err)
		return
	} else if ok {
		expected.Value = v
		expected.Set = true
	}
	if raw := r.URL.Query().Get("expectedVersion"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, kerrors.BadInput("expectedVersion must be an integer"))
			return
		}
		expected.Value = v
		expected.Set = true
	}

	t.Lock()
	entity, ev, err := t.Entities.Update(r.Context(), vars["noun"], vars["id"], patch, expected)
	t.Unlock()
	if err != nil {
		writeError(w, r, err)
		return
	}
	t.FanOut(r.Context(), ev, entity.Context)
	setVersionTag(w, entity.Version)
	writeJSON(w, entity)
}

func (h *handler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)

	t.Lock()
	var entityContext string
	if current, getErr := t.Entities.Get(r.Context(), vars["noun"], vars["id"]); getErr == nil {
		entityContext = current.Context
	}
	ev, err := t.Entities.Delete(r.Context(), vars["noun"], vars["id"])
	t.Unlock()
	if err != nil {
		writeError(w, r, err)
		return
	}
	t.FanOut(r.Context(), ev, entityContext)
	writeJSON(w, map[string]interface{}{"id": vars["id"], "deleted": true, "eventId": ev.ID})
}

// --- Verb execution ---

func (h *handler) ExecuteVerb(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)

	var payload map[string]interface{}
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, err)
		return
	}

	t.Lock()
	entity, ev, err := t.Executor.Execute(r.Context(), vars["noun"], vars["id"], vars["verb"], payload)
	t.Unlock()
	if err != nil {
		writeError(w, r, err)
		return
	}
	t.FanOut(r.Context(), ev, entity.Context)
	setVersionTag(w, entity.Version)
	writeJSON(w, entity)
}

// --- Time travel ---

func (h *handler) Reconstruct(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)

	var params kernel.ReconstructParams
	if raw := r.URL.Query().Get("asOf"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, kerrors.BadInput("asOf must be RFC3339"))
			return
		}
		params.AsOf = &at
	}
	if raw := r.URL.Query().Get("atVersion"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, kerrors.BadInput("atVersion must be an integer"))
			return
		}
		params.AtVersion = &v
	}

	state, err := t.Travel.Reconstruct(r.Context(), vars["noun"], vars["id"], params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, state)
}

func (h *handler) DiffEntity(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)

	from, err := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	if err != nil {
		writeError(w, r, kerrors.BadInput("from must be an integer version"))
		return
	}
	to, err := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if err != nil {
		writeError(w, r, kerrors.BadInput("to must be an integer version"))
		return
	}

	diff, err := t.Travel.Diff(r.Context(), vars["noun"], vars["id"], from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, diff)
}

// --- Events ---

func (h *handler) QueryEvents(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := kernel.EventQuery{
		Type:     r.URL.Query().Get("type"),
		EntityID: r.URL.Query().Get("entityId"),
		Verb:     r.URL.Query().Get("verb"),
		Limit:    queryInt(r, "limit", 100),
	}
	// Negative limits are reserved for internal unbounded scans, never the API.
	if q.Limit < 0 {
		q.Limit = 100
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, kerrors.BadInput("since must be RFC3339"))
			return
		}
		q.Since = &since
	}

	events, err := t.Events.Query(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, events)
}

func (h *handler) EntityHistory(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	events, err := t.Events.History(r.Context(), vars["noun"], vars["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, events)
}

func (h *handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := t.Events.GetByID(r.Context(), mux.Vars(r)["eventId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, ev)
}

// --- Subscriptions ---

type registerSubscriptionRequest struct {
	Pattern  string                  `json:"pattern"`
	Mode     kernel.SubscriptionMode `json:"mode"`
	Endpoint string                  `json:"endpoint"`
	Secret   string                  `json:"secret,omitempty"`
}

func (h *handler) RegisterSubscription(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req registerSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Mode == "" {
		req.Mode = kernel.ModeWebhook
	}

	sub, err := t.Subs.Register(r.Context(), req.Pattern, req.Mode, req.Endpoint, req.Secret)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, sub)
}

func (h *handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	subs, err := t.Engine.ListSubscriptions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, subs)
}

func (h *handler) DeactivateSubscription(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := t.Subs.Deactivate(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

// --- Integration hooks ---

type registerIntegrationHookRequest struct {
	EntityType string                      `json:"entityType"`
	Verb       string                      `json:"verb"`
	Service    kernel.IntegrationService   `json:"service"`
	Method     string                      `json:"method"`
	Config     map[string]interface{}      `json:"config,omitempty"`
}

func (h *handler) RegisterIntegrationHook(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req registerIntegrationHookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	hook := &kernel.IntegrationHook{
		EntityType: req.EntityType,
		Verb:       req.Verb,
		Service:    req.Service,
		Method:     req.Method,
		Config:     req.Config,
		Active:     true,
	}
	if err := t.Integ.RegisterHook(r.Context(), hook); err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, hook)
}

func (h *handler) ListIntegrationHooks(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	hooks, err := t.Integ.ListHooks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, hooks)
}

func (h *handler) DeleteIntegrationHook(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := t.Integ.DeleteHook(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

// --- CDC ---

func (h *handler) PollCDC(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var cursor *kernel.CDCCursor
	if since := r.URL.Query().Get("since"); since != "" {
		cursor = &kernel.CDCCursor{EventID: since}
	}

	filter := kernel.CDCFilter{}
	if types := r.URL.Query().Get("types"); types != "" {
		filter.Types = strings.Split(types, ",")
	}
	if verbs := r.URL.Query().Get("verbs"); verbs != "" {
		filter.Verbs = strings.Split(verbs, ",")
	}

	events, err := t.CDC.Poll(r.Context(), cursor, filter, queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var next string
	if len(events) > 0 {
		next = events[len(events)-1].ID
	} else if cursor != nil {
		next = cursor.EventID
	}
	writeJSONWithMeta(w, events, map[string]interface{}{
		"cursor":    next,
		"heartbeat": kernel.Heartbeat{At: time.Now()},
	})
}

// --- Stored verb hooks ---

type registerHookRequest struct {
	Noun  string           `json:"noun"`
	Verb  string           `json:"verb"`
	Phase kernel.HookPhase `json:"phase"`
	Code  string           `json:"code"`
}

func (h *handler) RegisterHook(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req registerHookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	hook, err := t.Hooks.Register(r.Context(), req.Noun, req.Verb, req.Phase, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, hook)
}

func (h *handler) ListHooks(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	hooks, err := t.Hooks.List(r.Context(), r.URL.Query().Get("noun"), r.URL.Query().Get("verb"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, hooks)
}

// --- Relationships ---

type linkRelationshipRequest struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

func (h *handler) LinkRelationship(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req linkRelationshipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	edge, err := t.Rels.Link(r.Context(), req.Subject, req.Predicate, req.Object)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, edge)
}

// ListRelationships serves both directions: ?subject=&predicate= walks
// forward, ?object=&predicate= walks the reverse index. Exactly one of
// subject/object must be given.
func (h *handler) ListRelationships(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	subject, object, predicate := q.Get("subject"), q.Get("object"), q.Get("predicate")
	if predicate == "" || (subject == "") == (object == "") {
		writeError(w, r, kerrors.BadInput("relationship query requires predicate and exactly one of subject or object"))
		return
	}

	var edges []*kernel.RelationshipEdge
	if subject != "" {
		edges, err = t.Rels.From(r.Context(), subject, predicate)
	} else {
		edges, err = t.Rels.To(r.Context(), object, predicate)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, edges)
}

// --- Dispatch log ---

func (h *handler) ListEventDispatches(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := t.Engine.ListDispatchLog(r.Context(), mux.Vars(r)["eventId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, entries)
}

// --- Tenant admin ---

func (h *handler) ActivateTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := t.Activate(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	h.TenantMeta(w, r)
}

func (h *handler) DeactivateTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := t.Deactivate(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	h.TenantMeta(w, r)
}

func (h *handler) TenantMeta(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenant(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	meta, err := t.Meta(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, meta)
}

// parseFilter decodes the "filter" query parameter as a flat JSON object of
// equality constraints, per the `filter` query-parameter contract.
func parseFilter(raw string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, kerrors.BadInput("filter must be a JSON object")
	}
	return out, nil
}
