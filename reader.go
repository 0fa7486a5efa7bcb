// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package caskdb

import (
	"io"

	"github.com/dreamsxin/caskdb/segment"
	"github.com/dreamsxin/caskdb/types"
)

// readerCache is a collection of open read handles over segment files. Each
// cache is owned by exactly one goroutine at a time: Get leases one from a
// sync.Pool and returns it when done, so handles and their file positions are
// never shared across goroutines. Opens are amortized across reads; the
// watermark prune is how a cache learns that compaction retired segments.
type readerCache struct {
	dir     string
	handles map[uint64]*segment.Reader
}

func newReaderCache(dir string) *readerCache {
	return &readerCache{
		dir:     dir,
		handles: make(map[uint64]*segment.Reader),
	}
}

// prune closes and forgets handles to segments below the watermark. The
// writer deletes those files, so holding a handle would pin dead disk space.
func (c *readerCache) prune(watermark uint64) {
	for id, r := range c.handles {
		if id < watermark {
			r.Close()
			delete(c.handles, id)
		}
	}
}

// get returns the cached handle for segment id, opening it on first use.
func (c *readerCache) get(id uint64) (*segment.Reader, error) {
	if r, ok := c.handles[id]; ok {
		return r, nil
	}
	r, err := segment.Open(c.dir, id)
	if err != nil {
		return nil, err
	}
	c.handles[id] = r
	return r, nil
}

// readValue materializes the value of the set record at pos.
func (c *readerCache) readValue(pos types.CommandPos) (string, error) {
	r, err := c.get(pos.Segment)
	if err != nil {
		return "", err
	}
	return r.ReadValueAt(pos)
}

// section returns a reader over the raw record bytes at pos. Compaction uses
// it to stream records into the compact target.
func (c *readerCache) section(pos types.CommandPos) (io.Reader, error) {
	r, err := c.get(pos.Segment)
	if err != nil {
		return nil, err
	}
	return r.Section(pos.Offset, pos.Length), nil
}
