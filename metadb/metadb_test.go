// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package metadb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPendingDeletesRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)

	ids, err := s.PendingDeletes()
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, s.AddPendingDelete(3))
	require.NoError(t, s.AddPendingDelete(5))
	require.NoError(t, s.AddPendingDelete(5)) // idempotent

	ids, err = s.PendingDeletes()
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{3, 5}, ids)

	require.NoError(t, s.ClearPendingDelete(3))
	require.NoError(t, s.ClearPendingDelete(42)) // clearing unknown ids is fine

	ids, err = s.PendingDeletes()
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{5}, ids)

	require.NoError(t, s.Close())

	// Survives a reopen.
	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	ids, err = s.PendingDeletes()
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{5}, ids)
}
