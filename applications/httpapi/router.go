package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dot-do/entitykernel/applications/auth"
	"github.com/dot-do/entitykernel/domain/kernel"
	"github.com/dot-do/entitykernel/infrastructure/logging"
	"github.com/dot-do/entitykernel/infrastructure/metrics"
	"github.com/dot-do/entitykernel/infrastructure/middleware"
	"github.com/dot-do/entitykernel/pkg/version"
)

// RouterOptions carries the optional cross-cutting pieces of the HTTP chain.
// The zero value disables CORS (no allowed origins) and metrics.
type RouterOptions struct {
	CORSOrigins []string
	Metrics     *metrics.Metrics
}

// NewRouter mounts every tenant-kernel operation under
// /tenants/{tenant}/...: recovery first, then tracing, logging, security
// headers, CORS, metrics, rate limiting, auth, and finally tenant-scope
// enforcement.
func NewRouter(manager *kernel.Manager, authManager *auth.Manager, log *logging.Logger, limiter *middleware.RateLimiter, opts *RouterOptions) http.Handler {
	if opts == nil {
		opts = &RouterOptions{}
	}

	h := newHandler(manager)
	r := mux.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(log).Handler)
	r.Use(middleware.NewTracingMiddleware(log).Handler)
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.NewSecurityHeadersMiddleware(middleware.DefaultSecurityHeaders()).Handler)
	if len(opts.CORSOrigins) > 0 {
		r.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: opts.CORSOrigins}).Handler)
	}
	if opts.Metrics != nil {
		r.Use(middleware.MetricsMiddleware("entitykernel", opts.Metrics))
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	if limiter != nil {
		r.Use(limiter.Handler)
	}

	tenant := r.PathPrefix("/tenants/{tenant}").Subrouter()
	if authManager != nil {
		tenant.Use(auth.Middleware(authManager))
		tenant.Use(requireMatchingTenant)
	}

	tenant.HandleFunc("/nouns/{noun}", h.DefineNoun).Methods(http.MethodPut)
	tenant.HandleFunc("/nouns/{noun}", h.GetNoun).Methods(http.MethodGet)
	tenant.HandleFunc("/nouns", h.ListNouns).Methods(http.MethodGet)
	tenant.HandleFunc("/verbs", h.ListVerbs).Methods(http.MethodGet)

	tenant.HandleFunc("/entities/{noun}", h.CreateEntity).Methods(http.MethodPost)
	tenant.HandleFunc("/entities/{noun}", h.ListEntities).Methods(http.MethodGet)
	tenant.HandleFunc("/entities/{noun}/{id}", h.GetEntity).Methods(http.MethodGet)
	tenant.HandleFunc("/entities/{noun}/{id}", h.UpdateEntity).Methods(http.MethodPatch)
	tenant.HandleFunc("/entities/{noun}/{id}", h.DeleteEntity).Methods(http.MethodDelete)
	tenant.HandleFunc("/entities/{noun}/{id}/verbs/{verb}", h.ExecuteVerb).Methods(http.MethodPost)

	tenant.HandleFunc("/entities/{noun}/{id}/reconstruct", h.Reconstruct).Methods(http.MethodGet)
	tenant.HandleFunc("/entities/{noun}/{id}/diff", h.DiffEntity).Methods(http.MethodGet)
	tenant.HandleFunc("/entities/{noun}/{id}/history", h.EntityHistory).Methods(http.MethodGet)

	tenant.HandleFunc("/events", h.QueryEvents).Methods(http.MethodGet)
	tenant.HandleFunc("/events/{eventId}", h.GetEvent).Methods(http.MethodGet)
	tenant.HandleFunc("/events/{eventId}/dispatches", h.ListEventDispatches).Methods(http.MethodGet)
	tenant.HandleFunc("/cdc", h.PollCDC).Methods(http.MethodGet)
	tenant.HandleFunc("/cdc/ws", h.StreamCDC).Methods(http.MethodGet)

	tenant.HandleFunc("/subscriptions", h.RegisterSubscription).Methods(http.MethodPost)
	tenant.HandleFunc("/subscriptions", h.ListSubscriptions).Methods(http.MethodGet)
	tenant.HandleFunc("/subscriptions/{id}", h.DeactivateSubscription).Methods(http.MethodDelete)

	tenant.HandleFunc("/hooks", h.RegisterHook).Methods(http.MethodPost)
	tenant.HandleFunc("/hooks", h.ListHooks).Methods(http.MethodGet)

	tenant.HandleFunc("/relationships", h.LinkRelationship).Methods(http.MethodPost)
	tenant.HandleFunc("/relationships", h.ListRelationships).Methods(http.MethodGet)

	tenant.HandleFunc("/integration-hooks", h.RegisterIntegrationHook).Methods(http.MethodPost)
	tenant.HandleFunc("/integration-hooks", h.ListIntegrationHooks).Methods(http.MethodGet)
	tenant.HandleFunc("/integration-hooks/{id}", h.DeleteIntegrationHook).Methods(http.MethodDelete)

	tenant.HandleFunc("/meta", h.TenantMeta).Methods(http.MethodGet)
	tenant.HandleFunc("/meta/activate", h.ActivateTenant).Methods(http.MethodPost)
	tenant.HandleFunc("/meta/deactivate", h.DeactivateTenant).Methods(http.MethodPost)

	r.HandleFunc("/healthz", middleware.NewHealthChecker(version.Version).Handler()).Methods(http.MethodGet)

	return r
}
