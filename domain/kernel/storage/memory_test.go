package storage

import (
	"context"
	"testing"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPurgeDispatchLogRemovesOnlyStaleEntries(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	old := &kernel.DispatchLogEntry{ID: "dispatch_old", EventID: "evt_1", Timestamp: time.Now().Add(-48 * time.Hour)}
	fresh := &kernel.DispatchLogEntry{ID: "dispatch_fresh", EventID: "evt_2", Timestamp: time.Now()}
	require.NoError(t, m.AppendDispatchLog(ctx, old))
	require.NoError(t, m.AppendDispatchLog(ctx, fresh))

	removed, err := m.PurgeDispatchLog(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	remaining, err := m.ListDispatchLog(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "dispatch_fresh", remaining[0].ID)
}

func TestMemoryPurgeDispatchLogNoMatchesIsNoop(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.AppendDispatchLog(ctx, &kernel.DispatchLogEntry{ID: "dispatch_1", Timestamp: time.Now()}))

	removed, err := m.PurgeDispatchLog(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	remaining, err := m.ListDispatchLog(ctx, "")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestMemoryMutationAndEventCommitTogether(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	e := &kernel.Entity{ID: "contact_1", Type: "Contact", Data: map[string]interface{}{}, Version: 1, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	ev := &kernel.Event{ID: "evt_1", Type: "Contact.create", EntityType: "Contact", EntityID: "contact_1", Verb: "create", Timestamp: time.Now()}
	require.NoError(t, m.InsertEntityWithEvent(ctx, e, ev))
	assert.Equal(t, int64(1), ev.Sequence)

	e2 := *e
	e2.Version = 2
	ev2 := &kernel.Event{ID: "evt_2", Type: "Contact.update", EntityType: "Contact", EntityID: "contact_1", Verb: "update", Timestamp: time.Now()}
	require.NoError(t, m.UpdateEntityWithEvent(ctx, &e2, ev2))
	assert.Equal(t, int64(2), ev2.Sequence)

	got, err := m.GetEntity(ctx, "Contact", "contact_1")
	require.NoError(t, err)
	assert.Equal(t, got.Version, ev2.Sequence)
}

func TestMemoryUpdateMissingEntityWritesNoEvent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ev := &kernel.Event{ID: "evt_1", Type: "Contact.update", EntityType: "Contact", EntityID: "contact_ghost", Verb: "update", Timestamp: time.Now()}
	err := m.UpdateEntityWithEvent(ctx, &kernel.Entity{ID: "contact_ghost", Type: "Contact", Version: 2}, ev)
	require.ErrorIs(t, err, ErrNotFound)

	history, err := m.EventHistory(ctx, "Contact", "contact_ghost")
	require.NoError(t, err)
	assert.Empty(t, history)
}
