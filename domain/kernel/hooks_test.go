package kernel

import (
	"context"
	"testing"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookRegisterAndList(t *testing.T) {
	ctx := context.Background()
	hooks := NewHookStore(storage.NewMemory())

	h, err := hooks.Register(ctx, "Contact", "qualify", PhaseBefore, "notify(entity)")
	require.NoError(t, err)
	assert.Equal(t, "Contact", h.Noun)
	assert.Equal(t, PhaseBefore, h.Phase)
	assert.False(t, h.CreatedAt.IsZero())

	_, err = hooks.Register(ctx, "Contact", "qualify", PhaseAfter, "audit(entity)")
	require.NoError(t, err)

	all, err := hooks.List(ctx, "Contact", "qualify")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byNoun, err := hooks.List(ctx, "Contact", "")
	require.NoError(t, err)
	assert.Len(t, byNoun, 2)

	other, err := hooks.List(ctx, "Deal", "")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestHookRegisterRejectsBadPhase(t *testing.T) {
	hooks := NewHookStore(storage.NewMemory())
	_, err := hooks.Register(context.Background(), "Contact", "qualify", HookPhase("during"), "x")
	se := kerrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, kerrors.KindBadInput, se.Kind)
}

// A stored before hook must never change the outcome of the verb it is
// registered on: the code is kept but not run.
func TestStoredHookDoesNotAffectExecution(t *testing.T) {
	ctx := context.Background()
	exec, schema, store := newTestExecutor(t)
	_, err := schema.DefineNoun(ctx, "Contact", NounDefinition{
		Fields: map[string]FieldDescriptor{"qualify": {Kind: FieldCustomVerb}},
	})
	require.NoError(t, err)

	hooks := NewHookStore(store.engine)
	_, err = hooks.Register(ctx, "Contact", "qualify", PhaseBefore, "entity.stage = 'Hijacked'")
	require.NoError(t, err)

	entity, _, err := store.Create(ctx, "Contact", map[string]interface{}{"stage": "Lead"}, "")
	require.NoError(t, err)

	updated, _, err := exec.Execute(ctx, "Contact", entity.ID, "qualify", map[string]interface{}{"stage": "Qualified"})
	require.NoError(t, err)
	assert.Equal(t, "Qualified", updated.Data["stage"])
}
