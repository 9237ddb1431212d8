// Package badger provides a replica store backed by BadgerDB, so a storage
// node keeps its replica states across restarts.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittomds/pkg/datanode/store"
	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
)

// Key layout
//
//	replica:{blockID big-endian uint64} -> JSON(store.Replica)
//
// Big-endian IDs keep prefix iteration in block order.
const prefixReplica = "replica:"

func keyReplica(id block.ID) []byte {
	k := make([]byte, len(prefixReplica)+8)
	copy(k, prefixReplica)
	binary.BigEndian.PutUint64(k[len(prefixReplica):], uint64(id))
	return k
}

// Store implements store.ReplicaStore on BadgerDB.
//
// Thread Safety:
// All operations use BadgerDB's transaction support for atomicity.
type Store struct {
	db *badgerdb.DB
}

var _ store.ReplicaStore = (*Store)(nil)

// Open opens (or creates) the store at path. An empty path opens an
// in-memory database.
func Open(path string) (*Store, error) {
	opts := badgerdb.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger replica store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) GetReplica(ctx context.Context, id block.ID) (*store.Replica, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var r *store.Replica
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyReplica(id))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return mdserrors.NewNotFoundError(0, "replica "+id.String())
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			r = &store.Replica{}
			return json.Unmarshal(val, r)
		})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) PutReplica(ctx context.Context, r *store.Replica) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal replica: %w", err)
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(keyReplica(r.Block.ID), data)
	})
}

func (s *Store) DeleteReplica(ctx context.Context, id block.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(keyReplica(id))
	})
}

func (s *Store) ListReplicas(ctx context.Context) ([]*store.Replica, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*store.Replica
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixReplica)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				r := &store.Replica{}
				if err := json.Unmarshal(val, r); err != nil {
					return err
				}
				out = append(out, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list replicas: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
