// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dreamsxin/caskdb/types"
)

// Writer is the append handle for a segment file. It buffers writes and
// tracks the append position itself so record offsets never require a seek.
// A Writer is not safe for concurrent use; the store serializes all mutation.
type Writer struct {
	id  uint64
	f   *os.File
	buf *bufio.Writer
	pos uint64
}

// Create opens (creating if needed) segment id in dir for appending. The
// returned writer is positioned at end-of-file.
func Create(dir string, id uint64) (*Writer, error) {
	f, err := os.OpenFile(Path(dir, id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open segment %d for append: %w", id, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat segment %d: %w", id, err)
	}
	return &Writer{
		id:  id,
		f:   f,
		buf: bufio.NewWriter(f),
		pos: uint64(fi.Size()),
	}, nil
}

// CreateEmpty opens segment id truncated to zero length. Compaction uses it
// for its targets so a partial file left behind by an earlier failed
// compaction never pollutes the rewrite.
func CreateEmpty(dir string, id uint64) (*Writer, error) {
	f, err := os.OpenFile(Path(dir, id), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment %d: %w", id, err)
	}
	return &Writer{
		id:  id,
		f:   f,
		buf: bufio.NewWriter(f),
	}, nil
}

// ID returns the segment id this writer appends to.
func (w *Writer) ID() uint64 {
	return w.id
}

// Pos returns the current append position.
func (w *Writer) Pos() uint64 {
	return w.pos
}

// Write implements io.Writer, advancing the tracked position. Used directly
// by compaction to stream raw record bytes.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.pos += uint64(n)
	return n, err
}

// Append encodes cmd, writes it and flushes the buffer to the OS. It returns
// the record's offset and encoded length.
func (w *Writer) Append(cmd types.Command) (offset, length uint64, err error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return 0, 0, err
	}
	offset = w.pos
	if _, err := w.Write(b); err != nil {
		return 0, 0, err
	}
	if err := w.buf.Flush(); err != nil {
		return 0, 0, err
	}
	return offset, w.pos - offset, nil
}

// Flush pushes any buffered bytes to the OS.
func (w *Writer) Flush() error {
	return w.buf.Flush()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	ferr := w.buf.Flush()
	cerr := w.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}
