// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package segment implements the on-disk format of caskdb: numbered
// append-only files of concatenated, self-delimiting command records.
package segment

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	filePrefix = "data_"
	fileSuffix = ".txt"
)

// FileName returns the file name for segment id, e.g. "data_3.txt".
func FileName(id uint64) string {
	return filePrefix + strconv.FormatUint(id, 10) + fileSuffix
}

// Path returns the full path of segment id inside dir.
func Path(dir string, id uint64) string {
	return filepath.Join(dir, FileName(id))
}

// ParseFileName extracts the segment id from a file name. The second return
// is false for anything that is not a well-formed segment file name; such
// files are ignored entirely.
func ParseFileName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// List returns the ids of all segment files in dir, sorted ascending.
func List(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var ids []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := ParseFileName(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
