// Package memory provides an in-memory replica store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/marmos91/dittomds/pkg/datanode/store"
	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
)

// Store keeps replica records in a map. Records are copied in and out so
// callers never share memory with the store.
type Store struct {
	mu       sync.RWMutex
	replicas map[block.ID]store.Replica
}

var _ store.ReplicaStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{replicas: make(map[block.ID]store.Replica)}
}

func (s *Store) GetReplica(ctx context.Context, id block.ID) (*store.Replica, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.replicas[id]
	if !ok {
		return nil, mdserrors.NewNotFoundError(0, "replica "+id.String())
	}
	return &r, nil
}

func (s *Store) PutReplica(ctx context.Context, r *store.Replica) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.replicas[r.Block.ID] = *r
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteReplica(ctx context.Context, id block.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.replicas, id)
	s.mu.Unlock()
	return nil
}

func (s *Store) ListReplicas(ctx context.Context) ([]*store.Replica, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*store.Replica, 0, len(s.replicas))
	for _, r := range s.replicas {
		out = append(out, &r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Block.ID < out[j].Block.ID })
	return out, nil
}

func (s *Store) Close() error { return nil }
