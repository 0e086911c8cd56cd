package kernel

import (
	"context"
	"time"

	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
	"github.com/dot-do/entitykernel/pkg/logger"
)

// VerbExecutor resolves and executes a custom verb against an entity.
// Default verbs (create, update, delete) bypass the executor entirely and go
// straight to EntityStore so their semantics stay fixed.
type VerbExecutor struct {
	schema   *SchemaRegistry
	entities *EntityStore
	events   *EventLog
	hooks    *HookStore
	log      *logger.Logger
}

// NewVerbExecutor wires an executor over the given schema registry, entity
// store, and event log (all sharing one tenant's storage engine). hooks may
// be nil, in which case stored hook lookups are skipped entirely.
func NewVerbExecutor(schema *SchemaRegistry, entities *EntityStore, events *EventLog, hooks *HookStore, log *logger.Logger) *VerbExecutor {
	if log == nil {
		log = logger.NewDefault("executor")
	}
	return &VerbExecutor{schema: schema, entities: entities, events: events, hooks: hooks, log: log}
}

// Execute resolves verb on entityType, merges payload into the current
// entity, increments its version, persists, and appends an event of type
// "{EntityType}.{verb}" carrying before/after snapshots.
func (x *VerbExecutor) Execute(ctx context.Context, entityType, id, verb string, payload map[string]interface{}) (*Entity, *Event, error) {
	schema, err := x.schema.GetNoun(ctx, entityType)
	if err != nil {
		return nil, nil, err
	}

	action, _, ok := resolveVerb(schema, verb)
	if !ok {
		return nil, nil, kerrors.VerbUnknown(entityType, verb)
	}
	if action != verb {
		return nil, nil, kerrors.UseActionForm(entityType, verb, action)
	}
	if schema.Disabled[action] {
		return nil, nil, kerrors.VerbDisabled(entityType, action)
	}

	current, err := x.entities.Get(ctx, entityType, id)
	if err != nil {
		return nil, nil, err
	}

	// Stored hooks are never executed; their presence is logged and nothing
	// else happens with them.
	if x.hooks != nil {
		if stored, err := x.hooks.List(ctx, entityType, action); err == nil {
			for _, h := range stored {
				if h.Phase == PhaseBefore {
					x.log.WithField("noun", entityType).WithField("verb", action).Info("stored before hook present; not executed")
				}
			}
		}
	}

	before := entitySnapshot(current)

	updated := *current
	updated.Data = mergeData(current.Data, stripReserved(payload))
	updated.Version = current.Version + 1
	updated.UpdatedAt = time.Now()

	ev := x.events.NewEvent(entityType, id, action, schema.Verbs[action], stripReserved(payload), before, entitySnapshot(&updated))
	if err := x.entities.engine.UpdateEntityWithEvent(ctx, &updated, ev); err != nil {
		return nil, nil, kerrors.Internal("update entity", err)
	}
	return &updated, ev, nil
}

// resolveVerb finds the action-form verb whose action/activity/event form
// equals verb. Returns the canonical action, the form it matched on, and
// whether any verb on the noun matched at all.
func resolveVerb(schema *NounSchema, verb string) (action string, matchedForm string, ok bool) {
	if conj, exists := schema.Verbs[verb]; exists {
		return conj.Action, "action", true
	}
	for action, conj := range schema.Verbs {
		if conj.Activity == verb {
			return action, "activity", true
		}
		if conj.Event == verb {
			return action, "event", true
		}
	}
	return "", "", false
}
