package kernel

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/dot-do/entitykernel/pkg/verbs"
)

var pascalCase = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

// SchemaRegistry stores noun schemas for one tenant and caches them in
// memory. The cache is owned by the registry, not process-global: it is
// hydrated lazily on first access and invalidated in full on every write.
type SchemaRegistry struct {
	engine storage.Engine

	mu       sync.RWMutex
	cache    map[string]*NounSchema
	hydrated bool
}

// NewSchemaRegistry returns a registry backed by engine. The cache starts
// empty and is populated on first read or write.
func NewSchemaRegistry(engine storage.Engine) *SchemaRegistry {
	return &SchemaRegistry{engine: engine, cache: make(map[string]*NounSchema)}
}

func (r *SchemaRegistry) hydrate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hydrated {
		return nil
	}
	nouns, err := r.engine.ListNouns(ctx)
	if err != nil {
		return kerrors.Internal("list nouns", err)
	}
	r.cache = make(map[string]*NounSchema, len(nouns))
	for _, n := range nouns {
		r.cache[n.Name] = n
	}
	r.hydrated = true
	return nil
}

func (r *SchemaRegistry) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hydrated = false
	r.cache = make(map[string]*NounSchema)
}

// DefineNoun registers or replaces a noun schema. Rejects names that are not
// PascalCase. Always carries the default verbs (create, update, delete)
// unless the definition explicitly disables them.
func (r *SchemaRegistry) DefineNoun(ctx context.Context, name string, def NounDefinition) (*NounSchema, error) {
	if !pascalCase.MatchString(name) {
		return nil, kerrors.BadInput(fmt.Sprintf("noun name %q must be PascalCase", name))
	}

	disabled := make(map[string]bool, len(def.Disabled))
	for _, v := range def.Disabled {
		disabled[v] = true
	}

	verbConjugations := make(map[string]Conjugation)
	for _, base := range DefaultVerbs {
		if disabled[base] {
			continue
		}
		verbConjugations[base] = toConjugation(verbs.Conjugate(base))
	}
	for field, fd := range def.Fields {
		if fd.Kind == FieldCustomVerb {
			verbConjugations[field] = toConjugation(verbs.Conjugate(field))
		}
	}

	schema := &NounSchema{
		Name:      name,
		Singular:  def.Singular,
		Plural:    def.Plural,
		Slug:      def.Slug,
		Fields:    def.Fields,
		Verbs:     verbConjugations,
		Disabled:  disabled,
		CreatedAt: time.Now(),
	}

	if err := r.engine.PutNoun(ctx, schema); err != nil {
		return nil, kerrors.Internal("persist noun schema", err)
	}
	r.invalidate()
	return schema, nil
}

func toConjugation(c verbs.Conjugation) Conjugation {
	return Conjugation{
		Action:    c.Action,
		Activity:  c.Activity,
		Event:     c.Event,
		ReverseBy: c.ReverseBy,
		ReverseAt: c.ReverseAt,
	}
}

// GetNoun returns a single registered noun schema, or a SchemaMissing error.
func (r *SchemaRegistry) GetNoun(ctx context.Context, name string) (*NounSchema, error) {
	if err := r.hydrate(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	schema, ok := r.cache[name]
	if !ok {
		return nil, kerrors.SchemaMissing(name)
	}
	return schema, nil
}

// ListNouns returns every registered noun schema, sorted by name.
func (r *SchemaRegistry) ListNouns(ctx context.Context) ([]*NounSchema, error) {
	if err := r.hydrate(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*NounSchema, 0, len(r.cache))
	for _, n := range r.cache {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// VerbInfo is one entry of listVerbs(): a verb's conjugation plus the nouns
// that define it.
type VerbInfo struct {
	Verb        string      `json:"verb"`
	Conjugation Conjugation `json:"conjugation"`
	Nouns       []string    `json:"nouns"`
}

// ListVerbs flattens every noun's verb set into verb -> (conjugation, nouns),
// deduplicated by verb name.
func (r *SchemaRegistry) ListVerbs(ctx context.Context) ([]*VerbInfo, error) {
	nouns, err := r.ListNouns(ctx)
	if err != nil {
		return nil, err
	}
	byVerb := make(map[string]*VerbInfo)
	for _, n := range nouns {
		for verb, conj := range n.Verbs {
			info, ok := byVerb[verb]
			if !ok {
				info = &VerbInfo{Verb: verb, Conjugation: conj}
				byVerb[verb] = info
			}
			info.Nouns = append(info.Nouns, n.Name)
		}
	}
	out := make([]*VerbInfo, 0, len(byVerb))
	for _, info := range byVerb {
		sort.Strings(info.Nouns)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Verb < out[j].Verb })
	return out, nil
}

// FindVerbByAnyForm searches every registered noun's verbs for one whose
// action, activity, or event form equals form, returning every match.
func (r *SchemaRegistry) FindVerbByAnyForm(ctx context.Context, form string) ([]*VerbInfo, error) {
	all, err := r.ListVerbs(ctx)
	if err != nil {
		return nil, err
	}
	var out []*VerbInfo
	for _, v := range all {
		if v.Conjugation.Action == form || v.Conjugation.Activity == form || v.Conjugation.Event == form {
			out = append(out, v)
		}
	}
	return out, nil
}
