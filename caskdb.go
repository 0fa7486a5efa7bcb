// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package caskdb is a persistent key-value store over an append-only log.
//
// Every mutation is appended as a self-delimiting record to the active
// segment file and indexed in memory by its exact byte range. Reads are
// lock-free: the index is an immutable snapshot swapped atomically by the
// single writer, and values are materialized by seeking into segment files
// through per-goroutine handle caches. When enough bytes become unreachable
// from the index the writer rewrites the live records into a fresh segment
// and retires the old files.
package caskdb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/immutable"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamsxin/caskdb/metadb"
	"github.com/dreamsxin/caskdb/segment"
	"github.com/dreamsxin/caskdb/types"
)

var (
	ErrKeyNotFound        = types.ErrKeyNotFound
	ErrCorrupt            = types.ErrCorrupt
	ErrUnknownCommandType = types.ErrUnknownCommandType
	ErrClosed             = types.ErrClosed
)

// Store is the storage engine. It supports any number of concurrent readers
// and a single writer at a time; Set, Remove and compaction are serialized by
// an internal mutex while Get never blocks on them.
type Store struct {
	closed uint32 // atomically accessed to keep it first in struct for alignment.

	dir    string
	metaDB types.MetaStore

	reg     prometheus.Registerer
	metrics *storeMetrics

	logger log.Logger

	compactThreshold uint64

	// index is the current key to record-position mapping. It is an immutable
	// snapshot that readers access without a lock; only the writer replaces it,
	// and only while holding writeMu.
	index atomic.Value // *immutable.Map[string, types.CommandPos]

	// watermark is the id of the most recent compact target. Segments with
	// smaller ids are retired and must never be read. The writer stores it
	// after publishing the rewritten index; readers load it before pruning
	// their handle caches, so a reader that observes the new watermark also
	// observes index pointers into live segments.
	watermark uint64 // atomically accessed

	// writeMu must be held for all mutation: appending to the active segment,
	// replacing the index snapshot, accounting reclaimable bytes and running
	// compaction.
	writeMu     sync.Mutex
	active      *segment.Writer
	reclaimable uint64

	// readers holds idle handle caches. A Get leases one cache for the
	// duration of the read, so each cache is only ever used by one goroutine
	// at a time.
	readers sync.Pool
}

// Open opens the store in dir, creating the directory and an initial segment
// if needed. Existing segment files are scanned in id order to rebuild the
// index; a torn record at the tail of the active segment is discarded.
func Open(dir string, opts ...storeOpt) (*Store, error) {
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.applyDefaultsAndValidate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	if s.metaDB == nil {
		ms, err := metadb.Open(dir)
		if err != nil {
			return nil, err
		}
		s.metaDB = ms
	}

	// Retry deletions that failed on a previous run before scanning, so a
	// stale segment is reclaimed instead of replayed.
	s.retryPendingDeletes()

	ids, err := segment.List(dir)
	if err != nil {
		s.metaDB.Close()
		return nil, err
	}

	idx := immutable.NewMap[string, types.CommandPos](nil)
	var reclaimable uint64
	for i, id := range ids {
		idx, reclaimable, err = s.scanSegment(id, i == len(ids)-1, idx, reclaimable)
		if err != nil {
			s.metaDB.Close()
			return nil, err
		}
	}

	activeID := uint64(0)
	if len(ids) > 0 {
		activeID = ids[len(ids)-1]
	}
	w, err := segment.Create(dir, activeID)
	if err != nil {
		s.metaDB.Close()
		return nil, err
	}

	s.active = w
	s.reclaimable = reclaimable
	s.metrics.reclaimableBytes.Set(float64(reclaimable))
	s.index.Store(idx)
	s.readers.New = func() any { return newReaderCache(dir) }

	level.Info(s.logger).Log("msg", "store opened", "dir", dir,
		"segments", len(ids), "activeSegment", activeID, "keys", idx.Len())
	return s, nil
}

// scanSegment replays one segment file into the index and the reclaimable
// counter. For the active (last) segment a torn trailing record is truncated
// away so the append position lands on a record boundary; in a frozen segment
// the same condition just ends that file's scan.
func (s *Store) scanSegment(id uint64, active bool, idx *immutable.Map[string, types.CommandPos], reclaimable uint64) (*immutable.Map[string, types.CommandPos], uint64, error) {
	r, err := segment.Open(s.dir, id)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	it := r.Records()
	for it.Next() {
		off, n, cmd := it.Record()
		switch cmd.Type {
		case types.CmdSet:
			idx = idx.Set(cmd.Key, types.CommandPos{Segment: id, Offset: off, Length: n})
			// Conservative accounting, same as the write path: the new record's
			// length is added without subtracting an obsoleted one.
			reclaimable += n
		case types.CmdRemove:
			if prev, ok := idx.Get(cmd.Key); ok {
				idx = idx.Delete(cmd.Key)
				reclaimable += prev.Length
			}
			reclaimable += n
		}
	}
	if err := it.Err(); err != nil {
		level.Warn(s.logger).Log("msg", "discarding torn segment tail",
			"segment", id, "validBytes", it.End(), "err", err)
		if active {
			if terr := os.Truncate(segment.Path(s.dir, id), int64(it.End())); terr != nil {
				return nil, 0, fmt.Errorf("truncate torn tail of segment %d: %w", id, terr)
			}
		}
	}
	return idx, reclaimable, nil
}

func (s *Store) loadIndex() *immutable.Map[string, types.CommandPos] {
	return s.index.Load().(*immutable.Map[string, types.CommandPos])
}

func (s *Store) checkClosed() error {
	if atomic.LoadUint32(&s.closed) != 0 {
		return ErrClosed
	}
	return nil
}

// Get returns the value last set for key. The second return is false when
// the key has no live record; that is not an error.
func (s *Store) Get(key string) (string, bool, error) {
	if err := s.checkClosed(); err != nil {
		return "", false, err
	}
	s.metrics.getOps.Inc()

	rc := s.readers.Get().(*readerCache)
	defer s.readers.Put(rc)

	for {
		pos, ok := s.loadIndex().Get(key)
		if !ok {
			return "", false, nil
		}
		rc.prune(atomic.LoadUint64(&s.watermark))
		v, err := rc.readValue(pos)
		if errors.Is(err, os.ErrNotExist) && pos.Segment < atomic.LoadUint64(&s.watermark) {
			// The snapshot predates a compaction that already unlinked this
			// segment. A fresh snapshot only references live segments, so go
			// again. A missing file at or above the watermark is a real error
			// and falls through.
			continue
		}
		if err != nil {
			return "", false, err
		}
		s.metrics.valueBytesRead.Add(float64(len(v)))
		return v, true, nil
	}
}

// Set records an assignment of value to key. The record is appended and
// flushed to the OS before the index is updated, so a Set that returned is
// visible to every later Get and survives a reopen.
func (s *Store) Set(key, value string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	off, n, err := s.active.Append(types.Set(key, value))
	if err != nil {
		return err
	}

	s.index.Store(s.loadIndex().Set(key, types.CommandPos{
		Segment: s.active.ID(),
		Offset:  off,
		Length:  n,
	}))

	s.metrics.setOps.Inc()
	s.metrics.bytesWritten.Add(float64(n))
	s.addReclaimableLocked(n)

	return s.maybeCompactLocked()
}

// Remove records a deletion of key. Removing an absent key returns
// ErrKeyNotFound and writes nothing.
func (s *Store) Remove(key string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	idx := s.loadIndex()
	prev, ok := idx.Get(key)
	if !ok {
		return ErrKeyNotFound
	}
	s.index.Store(idx.Delete(key))

	_, n, err := s.active.Append(types.Remove(key))
	if err != nil {
		return err
	}

	s.metrics.removeOps.Inc()
	s.metrics.bytesWritten.Add(float64(n))
	// Both the obsoleted set record and the remove record itself are garbage.
	s.addReclaimableLocked(prev.Length + n)

	return s.maybeCompactLocked()
}

func (s *Store) addReclaimableLocked(n uint64) {
	s.reclaimable += n
	s.metrics.reclaimableBytes.Set(float64(s.reclaimable))
}

func (s *Store) maybeCompactLocked() error {
	if s.reclaimable <= s.compactThreshold {
		return nil
	}
	start := time.Now()
	level.Info(s.logger).Log("msg", "compaction starting", "reclaimable", s.reclaimable)
	if err := s.compactLocked(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	s.metrics.lastCompactionSeconds.Set(elapsed.Seconds())
	level.Info(s.logger).Log("msg", "compaction finished", "elapsed", elapsed)
	return nil
}

// compactLocked rewrites the live records into segment active+1, publishes
// the rewritten index and the new watermark, deletes the retired files and
// opens segment active+2 as the fresh append target. The compact target is
// never appended to again, so every frozen segment is append-complete.
//
// Until the publish the index keeps pointing at the old positions; a failure
// before that leaves a partial compact target behind as garbage that the next
// successful compaction retires.
func (s *Store) compactLocked() error {
	compactID := s.active.ID() + 1
	cw, err := segment.CreateEmpty(s.dir, compactID)
	if err != nil {
		return err
	}

	rc := s.readers.Get().(*readerCache)
	defer s.readers.Put(rc)

	idx := s.loadIndex()
	newIdx := idx
	var copied uint64
	it := idx.Iterator()
	for !it.Done() {
		key, pos, _ := it.Next()
		src, err := rc.section(pos)
		if err != nil {
			cw.Close()
			return err
		}
		newOff := cw.Pos()
		if _, err := io.CopyN(cw, src, int64(pos.Length)); err != nil {
			cw.Close()
			return fmt.Errorf("copying record for key %q: %w", key, err)
		}
		newIdx = newIdx.Set(key, types.CommandPos{
			Segment: compactID,
			Offset:  newOff,
			Length:  pos.Length,
		})
		copied += pos.Length
	}
	if err := cw.Close(); err != nil {
		return err
	}

	// Publish: index snapshot first, then the watermark. Go atomics are
	// sequentially consistent, so a reader that observes the new watermark
	// also observes the rewritten index.
	s.index.Store(newIdx)
	atomic.StoreUint64(&s.watermark, compactID)

	if err := s.active.Close(); err != nil {
		level.Error(s.logger).Log("msg", "closing retired active segment", "err", err)
	}
	rc.prune(compactID)
	s.deleteRetired(compactID)

	w, err := segment.CreateEmpty(s.dir, compactID+1)
	if err != nil {
		return err
	}
	s.active = w
	s.reclaimable = 0
	s.metrics.reclaimableBytes.Set(0)
	s.metrics.compactions.Inc()
	s.metrics.compactedBytes.Add(float64(copied))
	return nil
}

// deleteRetired removes every segment file with id below the watermark.
// Failures are logged and recorded for retry on the next open, never
// propagated: a reader may still hold an OS handle briefly, and on platforms
// where open files cannot be unlinked the delete simply happens later.
func (s *Store) deleteRetired(watermark uint64) {
	ids, err := segment.List(s.dir)
	if err != nil {
		level.Error(s.logger).Log("msg", "listing segments for deletion", "err", err)
		return
	}
	for _, id := range ids {
		if id >= watermark {
			continue
		}
		if err := os.Remove(segment.Path(s.dir, id)); err != nil {
			level.Error(s.logger).Log("msg", "failed to delete retired segment", "segment", id, "err", err)
			if merr := s.metaDB.AddPendingDelete(id); merr != nil {
				level.Error(s.logger).Log("msg", "recording pending deletion", "segment", id, "err", merr)
			}
			continue
		}
		s.metrics.segmentsDeleted.Inc()
	}
}

// retryPendingDeletes removes segment files whose deletion failed during a
// previous run.
func (s *Store) retryPendingDeletes() {
	ids, err := s.metaDB.PendingDeletes()
	if err != nil {
		level.Error(s.logger).Log("msg", "loading pending deletions", "err", err)
		return
	}
	for _, id := range ids {
		err := os.Remove(segment.Path(s.dir, id))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			level.Warn(s.logger).Log("msg", "retrying segment deletion", "segment", id, "err", err)
			continue
		}
		if err == nil {
			s.metrics.segmentsDeleted.Inc()
			level.Info(s.logger).Log("msg", "deleted stale segment from previous run", "segment", id)
		}
		if merr := s.metaDB.ClearPendingDelete(id); merr != nil {
			level.Error(s.logger).Log("msg", "clearing pending deletion", "segment", id, "err", merr)
		}
	}
}

// Close flushes the active segment and releases the meta store. It is safe
// to call more than once; operations after Close return ErrClosed.
func (s *Store) Close() error {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return nil
	}

	// Wait for any in-flight mutation.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.active.Close()
	if merr := s.metaDB.Close(); err == nil {
		err = merr
	}
	return err
}
