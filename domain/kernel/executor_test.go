package kernel

import (
	"context"
	"testing"

	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T) (*VerbExecutor, *SchemaRegistry, *EntityStore) {
	t.Helper()
	store, schema, events := newTestStore(t)
	return NewVerbExecutor(schema, store, events, NewHookStore(store.engine), nil), schema, store
}

func TestExecuteCustomVerb(t *testing.T) {
	ctx := context.Background()
	exec, schema, store := newTestExecutor(t)
	_, err := schema.DefineNoun(ctx, "Contact", NounDefinition{
		Fields: map[string]FieldDescriptor{"qualify": {Kind: FieldCustomVerb}},
	})
	require.NoError(t, err)

	entity, _, err := store.Create(ctx, "Contact", map[string]interface{}{"stage": "Lead"}, "")
	require.NoError(t, err)

	updated, ev, err := exec.Execute(ctx, "Contact", entity.ID, "qualify", map[string]interface{}{"stage": "Qualified"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "Qualified", updated.Data["stage"])
	assert.Equal(t, "Contact.qualify", ev.Type)
	assert.Equal(t, "qualified", ev.Conjugation.Event)
}

func TestExecuteUnknownVerb(t *testing.T) {
	ctx := context.Background()
	exec, schema, store := newTestExecutor(t)
	_, err := schema.DefineNoun(ctx, "Contact", NounDefinition{})
	require.NoError(t, err)
	entity, _, err := store.Create(ctx, "Contact", map[string]interface{}{}, "")
	require.NoError(t, err)

	_, _, err = exec.Execute(ctx, "Contact", entity.ID, "levitate", nil)
	se := kerrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, kerrors.KindVerbUnknown, se.Kind)
}

func TestExecuteWithActivityFormRejectsWithDirective(t *testing.T) {
	ctx := context.Background()
	exec, schema, store := newTestExecutor(t)
	_, err := schema.DefineNoun(ctx, "Contact", NounDefinition{
		Fields: map[string]FieldDescriptor{"qualify": {Kind: FieldCustomVerb}},
	})
	require.NoError(t, err)
	entity, _, err := store.Create(ctx, "Contact", map[string]interface{}{}, "")
	require.NoError(t, err)

	_, _, err = exec.Execute(ctx, "Contact", entity.ID, "qualifying", nil)
	se := kerrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, kerrors.KindUseActionForm, se.Kind)
	assert.Equal(t, "qualify", se.Details["action"])
}

func TestExecuteVerbDisabled(t *testing.T) {
	ctx := context.Background()
	exec, schema, store := newTestExecutor(t)
	_, err := schema.DefineNoun(ctx, "Contact", NounDefinition{
		Fields:   map[string]FieldDescriptor{"qualify": {Kind: FieldCustomVerb}},
		Disabled: []string{"qualify"},
	})
	require.NoError(t, err)
	entity, _, err := store.Create(ctx, "Contact", map[string]interface{}{}, "")
	require.NoError(t, err)

	_, _, err = exec.Execute(ctx, "Contact", entity.ID, "qualify", nil)
	se := kerrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, kerrors.KindVerbDisabled, se.Kind)
}
