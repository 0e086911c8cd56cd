package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCDCPollOrderingAndCursor(t *testing.T) {
	ctx := context.Background()
	store, schema, events := newTestStore(t)
	defineContact(t, ctx, schema)
	stream := NewCDCStream(events)

	var ids []string
	for i := 0; i < 3; i++ {
		e, _, err := store.Create(ctx, "Contact", map[string]interface{}{"stage": "Lead"}, "")
		require.NoError(t, err)
		history, err := events.History(ctx, "Contact", e.ID)
		require.NoError(t, err)
		ids = append(ids, history[0].ID)
	}

	all, err := stream.Poll(ctx, nil, CDCFilter{}, 100)
	require.NoError(t, err)
	require.Len(t, all, 3)

	cursor := &CDCCursor{EventID: all[0].ID}
	rest, err := stream.Poll(ctx, cursor, CDCFilter{}, 100)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	for _, ev := range rest {
		assert.NotEqual(t, all[0].ID, ev.ID)
	}
}

func TestCDCPollFiltersByTypeAndVerb(t *testing.T) {
	ctx := context.Background()
	store, schema, events := newTestStore(t)
	defineContact(t, ctx, schema)
	_, err := schema.DefineNoun(ctx, "Deal", NounDefinition{})
	require.NoError(t, err)
	stream := NewCDCStream(events)

	_, _, err = store.Create(ctx, "Contact", map[string]interface{}{}, "")
	require.NoError(t, err)
	_, _, err = store.Create(ctx, "Deal", map[string]interface{}{}, "")
	require.NoError(t, err)

	filtered, err := stream.Poll(ctx, nil, CDCFilter{Types: []string{"Deal"}}, 100)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Deal", filtered[0].EntityType)
}

func TestCDCPollRejectsUnknownCursor(t *testing.T) {
	ctx := context.Background()
	_, _, events := newTestStore(t)
	stream := NewCDCStream(events)

	_, err := stream.Poll(ctx, &CDCCursor{EventID: "evt_ghost"}, CDCFilter{}, 10)
	require.Error(t, err)
}

func TestCDCPollReachesEventsBeyondDefaultPage(t *testing.T) {
	ctx := context.Background()
	store, schema, events := newTestStore(t)
	defineContact(t, ctx, schema)
	stream := NewCDCStream(events)

	first, _, err := store.Create(ctx, "Contact", map[string]interface{}{"n": 0}, "")
	require.NoError(t, err)
	history, err := events.History(ctx, "Contact", first.ID)
	require.NoError(t, err)
	oldest := history[0].ID

	for i := 1; i < 120; i++ {
		_, _, err := store.Create(ctx, "Contact", map[string]interface{}{"n": i}, "")
		require.NoError(t, err)
	}

	all, err := stream.Poll(ctx, nil, CDCFilter{}, 1000)
	require.NoError(t, err)
	require.Len(t, all, 120)

	seen := false
	for _, ev := range all {
		if ev.ID == oldest {
			seen = true
		}
	}
	assert.True(t, seen, "the oldest event must stay reachable past the default event page size")

	rest, err := stream.Poll(ctx, &CDCCursor{EventID: oldest}, CDCFilter{}, 1000)
	require.NoError(t, err)
	assert.Len(t, rest, 119)
}
