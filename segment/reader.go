// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dreamsxin/caskdb/types"
)

// Reader reads records from one segment file. All reads go through ReadAt
// style section readers so a Reader carries no seek position of its own, but
// it still must not be shared between goroutines: the store hands each
// goroutine its own handle cache.
type Reader struct {
	id uint64
	f  *os.File
}

// Open opens segment id in dir for reading.
func Open(dir string, id uint64) (*Reader, error) {
	f, err := os.Open(Path(dir, id))
	if err != nil {
		return nil, err
	}
	return &Reader{id: id, f: f}, nil
}

// ID returns the segment id this reader reads from.
func (r *Reader) ID() uint64 {
	return r.id
}

// Close implements io.Closer.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Section returns a reader over exactly length bytes at offset. Compaction
// uses it to stream record bytes into the compact target without decoding.
func (r *Reader) Section(offset, length uint64) io.Reader {
	return io.NewSectionReader(r.f, int64(offset), int64(length))
}

// ReadValueAt decodes the record at pos and returns its value. Bytes that do
// not decode as a record are reported as ErrCorrupt; a record that decodes
// but is not a set record means the index points at garbage and is reported
// as ErrUnknownCommandType.
func (r *Reader) ReadValueAt(pos types.CommandPos) (string, error) {
	dec := json.NewDecoder(r.Section(pos.Offset, pos.Length))

	var cmd types.Command
	if err := dec.Decode(&cmd); err != nil {
		return "", fmt.Errorf("%w: decoding record at segment %d offset %d: %v",
			types.ErrCorrupt, r.id, pos.Offset, err)
	}
	if cmd.Type != types.CmdSet {
		return "", types.ErrUnknownCommandType
	}
	return cmd.Value, nil
}

// Records returns an iterator over every record in the segment, in file
// order. The iterator reports the exact byte range each record occupies.
func (r *Reader) Records() *Records {
	return &Records{dec: json.NewDecoder(io.NewSectionReader(r.f, 0, 1<<62))}
}

// Records iterates the records of a segment file:
//
//	it := r.Records()
//	for it.Next() {
//		off, n, cmd := it.Record()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
//
// A decode failure ends the iteration with ErrCorrupt; End then reports the
// offset just past the last good record, which recovery uses to discard a
// torn tail.
type Records struct {
	dec    *json.Decoder
	offset uint64
	length uint64
	cmd    types.Command
	end    uint64
	err    error
}

// Next advances to the next record. It returns false at EOF or on the first
// decode failure.
func (it *Records) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.dec.More() {
		return false
	}
	start := it.dec.InputOffset()

	var cmd types.Command
	if err := it.dec.Decode(&cmd); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			it.err = fmt.Errorf("%w: truncated record at offset %d", types.ErrCorrupt, start)
		} else {
			it.err = fmt.Errorf("%w: at offset %d: %v", types.ErrCorrupt, start, err)
		}
		return false
	}
	if cmd.Type != types.CmdSet && cmd.Type != types.CmdRemove {
		it.err = fmt.Errorf("%w: record with type %q at offset %d", types.ErrCorrupt, cmd.Type, start)
		return false
	}

	it.offset = uint64(start)
	it.length = uint64(it.dec.InputOffset() - start)
	it.cmd = cmd
	it.end = uint64(it.dec.InputOffset())
	return true
}

// Record returns the byte range and command of the current record.
func (it *Records) Record() (offset, length uint64, cmd types.Command) {
	return it.offset, it.length, it.cmd
}

// Err returns the error that ended iteration, nil on clean EOF.
func (it *Records) Err() error {
	return it.err
}

// End returns the offset just past the last successfully decoded record.
func (it *Records) End() uint64 {
	return it.end
}
