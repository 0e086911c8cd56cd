package applications

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot-do/entitykernel/domain/kernel"
	"github.com/dot-do/entitykernel/domain/kernel/storage"
	"github.com/dot-do/entitykernel/pkg/logger"
)

func TestRetentionSweeperRemovesStaleDispatchLogEntries(t *testing.T) {
	factory := func(tenantID string) (storage.Engine, error) { return storage.NewMemory(), nil }
	manager := kernel.NewManager(factory, nil, http.DefaultClient, logger.NewDefault("test"), nil)

	tenant, err := manager.Get("acme")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tenant.Engine.AppendDispatchLog(ctx, &kernel.DispatchLogEntry{
		ID: "dispatch_stale", EventID: "evt_1", Timestamp: time.Now().Add(-72 * time.Hour),
	}))
	require.NoError(t, tenant.Engine.AppendDispatchLog(ctx, &kernel.DispatchLogEntry{
		ID: "dispatch_recent", EventID: "evt_2", Timestamp: time.Now(),
	}))

	sweeper := newRetentionSweeper(manager, 24*time.Hour, logger.NewDefault("test"))
	sweeper.sweep()

	remaining, err := tenant.Engine.ListDispatchLog(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "dispatch_recent", remaining[0].ID)
}

func TestRetentionSweeperSkipsTenantsNeverConstructed(t *testing.T) {
	factory := func(tenantID string) (storage.Engine, error) { return storage.NewMemory(), nil }
	manager := kernel.NewManager(factory, nil, http.DefaultClient, logger.NewDefault("test"), nil)

	sweeper := newRetentionSweeper(manager, time.Hour, logger.NewDefault("test"))
	sweeper.sweep() // no tenants constructed yet; must not panic or error
}
