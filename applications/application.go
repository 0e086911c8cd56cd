// Package applications wires the entity kernel's tenant manager, storage
// engine factory, and outbound service bindings into one process-level
// Application.
package applications

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dot-do/entitykernel/domain/kernel"
	"github.com/dot-do/entitykernel/domain/kernel/storage"
	"github.com/dot-do/entitykernel/internal/config"
	platformdb "github.com/dot-do/entitykernel/internal/platform/database"
	"github.com/dot-do/entitykernel/pkg/logger"
	"github.com/dot-do/entitykernel/pkg/pgnotify"
)

// Application bundles the tenant manager plus the shared resources (admin DB
// connection, HTTP client) its per-tenant engines and service bindings are
// built from.
type Application struct {
	Config  *config.Config
	Manager *kernel.Manager
	Log     *logger.Logger

	adminDB   *sql.DB           // nil when running without Postgres (in-memory mode)
	cdcBus    *pgnotify.Bus     // nil when running without Postgres, or when it could not be reached
	retention *retentionSweeper // nil when DispatchRetention is disabled (<=0)
}

// New constructs an Application: an EngineFactory selecting Postgres (one
// schema per tenant, lazily created) when cfg.DatabaseDSN is set, or an
// in-memory engine per tenant otherwise, plus the kernel.Manager built over
// it with service bindings for the built-in integration hook table's
// downstream services.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("entitykernel")
	}

	app := &Application{Config: cfg, Log: log}

	httpClient := &http.Client{Timeout: cfg.DispatchTimeout}
	bindings := defaultBindings(httpClient)

	var factory kernel.EngineFactory
	var busFactory kernel.BusFactory
	if strings.TrimSpace(cfg.DatabaseDSN) != "" {
		adminDB, err := platformdb.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("open admin postgres connection: %w", err)
		}
		app.adminDB = adminDB
		factory = postgresEngineFactory(ctx, cfg.DatabaseDSN, adminDB)

		if bus, err := pgnotify.New(cfg.DatabaseDSN); err != nil {
			log.Warn("pgnotify unavailable; CDC push will stay in-process only: " + err.Error())
		} else {
			app.cdcBus = bus
			busFactory = func(tenantID string) kernel.ExternalBus {
				return &pgnotifyBus{bus: bus}
			}
		}
	} else {
		log.Warn("DATABASE_DSN not set; tenants will use an in-memory storage engine")
		factory = func(tenantID string) (storage.Engine, error) {
			return storage.NewMemory(), nil
		}
	}

	app.Manager = kernel.NewManager(factory, bindings, httpClient, log, busFactory).
		WithCDCBufferSize(cfg.CDCBufferSize).
		WithDispatchWorkers(cfg.DispatchWorkers)

	if cfg.DispatchRetention > 0 {
		app.retention = newRetentionSweeper(app.Manager, cfg.DispatchRetention, log)
		app.retention.Start()
	}

	return app, nil
}

// Close releases the shared admin database connection and CDC bus, if any
// were opened.
func (a *Application) Close() error {
	if a.retention != nil {
		a.retention.Stop()
	}
	if a.cdcBus != nil {
		_ = a.cdcBus.Close()
	}
	if a.adminDB != nil {
		return a.adminDB.Close()
	}
	return nil
}

// tenantSchemaName derives a safe Postgres schema identifier from a tenant id.
func tenantSchemaName(tenantID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, tenantID)
	return "tenant_" + strings.ToLower(safe)
}

// postgresEngineFactory returns an EngineFactory that creates the tenant's
// schema (if absent) on the shared admin connection, then opens a dedicated
// *sql.DB scoped to that schema via its search_path, matching the kernel
// storage engine's "exclusive connection per tenant" contract.
func postgresEngineFactory(ctx context.Context, dsn string, adminDB *sql.DB) kernel.EngineFactory {
	return func(tenantID string) (storage.Engine, error) {
		schema := tenantSchemaName(tenantID)

		if _, err := adminDB.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)); err != nil {
			return nil, fmt.Errorf("create tenant schema %q: %w", schema, err)
		}

		scopedDSN, err := withSearchPath(dsn, schema)
		if err != nil {
			return nil, fmt.Errorf("build tenant dsn: %w", err)
		}

		tenantDB, err := platformdb.Open(ctx, scopedDSN)
		if err != nil {
			return nil, fmt.Errorf("open tenant connection: %w", err)
		}

		engine := storage.NewPostgres(tenantDB)
		if err := engine.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure tenant schema objects: %w", err)
		}
		return engine, nil
	}
}

// withSearchPath appends a libpq "options" parameter pinning the connection's
// search_path to schema, so every query issued over the returned DSN is
// implicitly scoped to that tenant's tables.
func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("options", fmt.Sprintf("-c search_path=%s", schema))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// defaultBindings returns HTTP service bindings for every IntegrationService
// named in the built-in hook table, reading each service's base URL from its
// own environment variable; a service with no base URL configured is simply
// absent from the map, and the integration dispatcher logs "not available"
// for any hook that targets it.
func defaultBindings(client *http.Client) map[kernel.IntegrationService]kernel.ServiceBinding {
	bindings := make(map[kernel.IntegrationService]kernel.ServiceBinding)
	for service, envVar := range map[kernel.IntegrationService]string{
		kernel.ServicePayments:     "PAYMENTS_SERVICE_URL",
		kernel.ServiceRepo:         "REPO_SERVICE_URL",
		kernel.ServiceIntegrations: "INTEGRATIONS_SERVICE_URL",
		kernel.ServiceOAuth:        "OAUTH_SERVICE_URL",
		kernel.ServiceEvents:       "EVENTS_SERVICE_URL",
	} {
		if baseURL := strings.TrimSpace(envOrEmpty(envVar)); baseURL != "" {
			bindings[service] = NewHTTPBinding(baseURL, client)
		}
	}
	return bindings
}
