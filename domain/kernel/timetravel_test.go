package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructAndDiff(t *testing.T) {
	ctx := context.Background()
	store, schema, events := newTestStore(t)
	defineContact(t, ctx, schema)
	travel := NewTimeTravel(events)

	entity, _, err := store.Create(ctx, "Contact", map[string]interface{}{"stage": "Lead"}, "")
	require.NoError(t, err)

	_, _, err = store.Update(ctx, "Contact", entity.ID, map[string]interface{}{"stage": "Qualified"}, ExpectedVersion{})
	require.NoError(t, err)
	_, _, err = store.Update(ctx, "Contact", entity.ID, map[string]interface{}{"stage": "Customer"}, ExpectedVersion{})
	require.NoError(t, err)

	v2 := int64(2)
	state, err := travel.Reconstruct(ctx, "Contact", entity.ID, ReconstructParams{AtVersion: &v2})
	require.NoError(t, err)
	assert.Equal(t, "Qualified", state["stage"])
	assert.EqualValues(t, 2, state["version"])

	diff, err := travel.Diff(ctx, "Contact", entity.ID, 1, 3)
	require.NoError(t, err)
	require.Len(t, diff.Changes, 1)
	assert.Equal(t, "stage", diff.Changes[0].Field)
	assert.Equal(t, "Lead", diff.Changes[0].From)
	assert.Equal(t, "Customer", diff.Changes[0].To)
	assert.Len(t, diff.Events, 2)
}

func TestReconstructReplayEqualsFromScratch(t *testing.T) {
	ctx := context.Background()
	store, schema, events := newTestStore(t)
	defineContact(t, ctx, schema)
	travel := NewTimeTravel(events)

	entity, _, err := store.Create(ctx, "Contact", map[string]interface{}{"stage": "Lead"}, "")
	require.NoError(t, err)
	_, _, err = store.Update(ctx, "Contact", entity.ID, map[string]interface{}{"stage": "Qualified"}, ExpectedVersion{})
	require.NoError(t, err)

	full, err := travel.Reconstruct(ctx, "Contact", entity.ID, ReconstructParams{})
	require.NoError(t, err)

	history, err := events.History(ctx, "Contact", entity.ID)
	require.NoError(t, err)
	folded := fold(history)

	assert.Equal(t, folded["stage"], full["stage"])
	assert.Equal(t, folded["version"], full["version"])
}
