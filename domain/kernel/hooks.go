package kernel

import (
	"context"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
)

// HookStore persists verb hook registrations. Hook code is stored verbatim
// and never evaluated; the executor only reports that stored hooks exist.
type HookStore struct {
	engine storage.Engine
}

// NewHookStore returns a hook store backed by engine.
func NewHookStore(engine storage.Engine) *HookStore {
	return &HookStore{engine: engine}
}

// Register stores a hook for the given noun/verb/phase. The code is opaque
// text; the only validation is that noun and verb are non-empty and phase is
// "before" or "after".
func (s *HookStore) Register(ctx context.Context, noun, verb string, phase HookPhase, code string) (*HookRegistration, error) {
	if noun == "" || verb == "" {
		return nil, kerrors.BadInput("hook registration requires noun and verb")
	}
	if phase != PhaseBefore && phase != PhaseAfter {
		return nil, kerrors.BadInput("hook phase must be \"before\" or \"after\"")
	}
	h := &HookRegistration{
		Noun:      noun,
		Verb:      verb,
		Phase:     phase,
		Code:      code,
		CreatedAt: time.Now(),
	}
	if err := s.engine.PutHook(ctx, h); err != nil {
		return nil, kerrors.Internal("persist hook", err)
	}
	return h, nil
}

// List returns stored hooks, optionally narrowed by noun and/or verb (empty
// string matches all).
func (s *HookStore) List(ctx context.Context, noun, verb string) ([]*HookRegistration, error) {
	hooks, err := s.engine.ListHooks(ctx, noun, verb)
	if err != nil {
		return nil, kerrors.Internal("list hooks", err)
	}
	return hooks, nil
}
