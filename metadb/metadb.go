// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package metadb implements types.MetaStore on BoltDB. It persists the ids
// of retired segments whose files could not be unlinked so a later open can
// retry the deletion instead of leaking the space forever.
package metadb

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dreamsxin/caskdb/types"
)

// FileName is the bolt file kept next to the segment files. The recovery
// scan ignores it because it does not match the segment naming pattern.
const FileName = "meta.db"

var pendingBucket = []byte("pending_deletes")

// Store is a bolt-backed MetaStore.
type Store struct {
	db *bbolt.DB
}

var _ types.MetaStore = (*Store)(nil)

// Open opens (creating if needed) the meta store inside dir.
func Open(dir string) (*Store, error) {
	db, err := bbolt.Open(filepath.Join(dir, FileName), 0o644, &bbolt.Options{
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open meta store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pendingBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init meta store: %w", err)
	}
	return &Store{db: db}, nil
}

// PendingDeletes implements types.MetaStore.
func (s *Store) PendingDeletes() ([]uint64, error) {
	var ids []uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(pendingBucket).ForEach(func(k, _ []byte) error {
			if len(k) == 8 {
				ids = append(ids, binary.BigEndian.Uint64(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AddPendingDelete implements types.MetaStore.
func (s *Store) AddPendingDelete(id uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(pendingBucket).Put(key(id), nil)
	})
}

// ClearPendingDelete implements types.MetaStore.
func (s *Store) ClearPendingDelete(id uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(pendingBucket).Delete(key(id))
	})
}

// Close implements io.Closer.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}
