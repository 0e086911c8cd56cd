package kernel

import (
	"context"
	"time"

	"github.com/dot-do/entitykernel/domain/kernel/storage"
	kerrors "github.com/dot-do/entitykernel/infrastructure/errors"
)

// RelationshipStore persists directed (subject, predicate, object) edges.
// Edges are flat rows keyed by the triple itself; linking the same triple
// twice is a no-op. The reverse direction is served from a separate index.
type RelationshipStore struct {
	engine storage.Engine
}

// NewRelationshipStore returns a relationship store backed by engine.
func NewRelationshipStore(engine storage.Engine) *RelationshipStore {
	return &RelationshipStore{engine: engine}
}

// Link records an edge from subject to object under predicate.
func (s *RelationshipStore) Link(ctx context.Context, subject, predicate, object string) (*RelationshipEdge, error) {
	if subject == "" || predicate == "" || object == "" {
		return nil, kerrors.BadInput("relationship requires subject, predicate, and object")
	}
	edge := &RelationshipEdge{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
		CreatedAt: time.Now(),
	}
	if err := s.engine.PutRelationship(ctx, edge); err != nil {
		return nil, kerrors.Internal("persist relationship", err)
	}
	return edge, nil
}

// From returns every edge leaving subject under predicate.
func (s *RelationshipStore) From(ctx context.Context, subject, predicate string) ([]*RelationshipEdge, error) {
	edges, err := s.engine.RelationshipsBySubject(ctx, subject, predicate)
	if err != nil {
		return nil, kerrors.Internal("list relationships by subject", err)
	}
	return edges, nil
}

// To returns every edge arriving at object under predicate, via the reverse
// index.
func (s *RelationshipStore) To(ctx context.Context, object, predicate string) ([]*RelationshipEdge, error) {
	edges, err := s.engine.RelationshipsByObject(ctx, object, predicate)
	if err != nil {
		return nil, kerrors.Internal("list relationships by object", err)
	}
	return edges, nil
}
