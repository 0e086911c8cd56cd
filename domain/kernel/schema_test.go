package kernel

import (
	"context"
	"testing"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *SchemaRegistry {
	return NewSchemaRegistry(storage.NewMemory())
}

func TestDefineNounRejectsNonPascalCase(t *testing.T) {
	r := newTestRegistry()
	_, err := r.DefineNoun(context.Background(), "contact", NounDefinition{})
	require.Error(t, err)
	se := kerrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, kerrors.KindBadInput, se.Kind)
}

func TestDefineNounAddsDefaultVerbs(t *testing.T) {
	r := newTestRegistry()
	schema, err := r.DefineNoun(context.Background(), "Contact", NounDefinition{
		Fields: map[string]FieldDescriptor{
			"name": {Kind: FieldScalar, Required: true},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, schema.Verbs, "create")
	assert.Contains(t, schema.Verbs, "update")
	assert.Contains(t, schema.Verbs, "delete")
	assert.Equal(t, "creating", schema.Verbs["create"].Activity)
	assert.Equal(t, "created", schema.Verbs["create"].Event)
}

func TestDefineNounHonorsDisabled(t *testing.T) {
	r := newTestRegistry()
	schema, err := r.DefineNoun(context.Background(), "Contact", NounDefinition{Disabled: []string{"delete"}})
	require.NoError(t, err)
	assert.NotContains(t, schema.Verbs, "delete")
	assert.True(t, schema.Disabled["delete"])
}

func TestDefineNounCustomVerb(t *testing.T) {
	r := newTestRegistry()
	schema, err := r.DefineNoun(context.Background(), "Contact", NounDefinition{
		Fields: map[string]FieldDescriptor{
			"qualify": {Kind: FieldCustomVerb},
		},
	})
	require.NoError(t, err)
	require.Contains(t, schema.Verbs, "qualify")
	assert.Equal(t, "qualifying", schema.Verbs["qualify"].Activity)
	assert.Equal(t, "qualified", schema.Verbs["qualify"].Event)
}

func TestListNounsRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.DefineNoun(ctx, "Contact", NounDefinition{})
	require.NoError(t, err)

	nouns, err := r.ListNouns(ctx)
	require.NoError(t, err)
	require.Len(t, nouns, 1)
	assert.Equal(t, "Contact", nouns[0].Name)
}

func TestGetNounMissing(t *testing.T) {
	r := newTestRegistry()
	_, err := r.GetNoun(context.Background(), "Ghost")
	se := kerrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, kerrors.KindSchemaMissing, se.Kind)
}

func TestReDefineReplacesPriorSchema(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.DefineNoun(ctx, "Contact", NounDefinition{Fields: map[string]FieldDescriptor{"a": {Kind: FieldScalar}}})
	require.NoError(t, err)
	schema, err := r.DefineNoun(ctx, "Contact", NounDefinition{Fields: map[string]FieldDescriptor{"b": {Kind: FieldScalar}}})
	require.NoError(t, err)
	assert.NotContains(t, schema.Fields, "a")
	assert.Contains(t, schema.Fields, "b")
}

func TestListVerbsDeduplicatesAcrossNouns(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.DefineNoun(ctx, "Contact", NounDefinition{})
	require.NoError(t, err)
	_, err = r.DefineNoun(ctx, "Deal", NounDefinition{})
	require.NoError(t, err)

	verbs, err := r.ListVerbs(ctx)
	require.NoError(t, err)

	var createInfo *VerbInfo
	for _, v := range verbs {
		if v.Verb == "create" {
			createInfo = v
		}
	}
	require.NotNil(t, createInfo)
	assert.ElementsMatch(t, []string{"Contact", "Deal"}, createInfo.Nouns)
}

func TestFindVerbByAnyForm(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.DefineNoun(ctx, "Contact", NounDefinition{})
	require.NoError(t, err)

	byAction, err := r.FindVerbByAnyForm(ctx, "create")
	require.NoError(t, err)
	assert.Len(t, byAction, 1)

	byEvent, err := r.FindVerbByAnyForm(ctx, "created")
	require.NoError(t, err)
	assert.Len(t, byEvent, 1)

	byActivity, err := r.FindVerbByAnyForm(ctx, "creating")
	require.NoError(t, err)
	assert.Len(t, byActivity, 1)
}

func TestListNounsIdempotentBetweenWrites(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry()
	_, err := r.DefineNoun(ctx, "Contact", NounDefinition{})
	require.NoError(t, err)

	first, err := r.ListNouns(ctx)
	require.NoError(t, err)
	second, err := r.ListNouns(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
