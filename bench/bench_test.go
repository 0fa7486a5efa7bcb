// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package bench

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/caskdb"
)

func BenchmarkSet(b *testing.B) {
	sizes := []int{
		16,
		1024,
		64 * 1024,
	}
	sizeNames := []string{
		"16",
		"1k",
		"64k",
	}

	for i, size := range sizes {
		value := strings.Repeat("v", size)

		b.Run(fmt.Sprintf("valueSize=%s/compaction=on", sizeNames[i]), func(b *testing.B) {
			s := openStore(b, caskdb.DefaultCompactThreshold)
			defer s.Close()
			runSetBench(b, s, value)
		})
		b.Run(fmt.Sprintf("valueSize=%s/compaction=off", sizeNames[i]), func(b *testing.B) {
			s := openStore(b, 1<<40)
			defer s.Close()
			runSetBench(b, s, value)
		})
	}
}

func runSetBench(b *testing.B, s *caskdb.Store, value string) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Cycle a small keyspace so overwrites generate garbage to compact.
		if err := s.Set(fmt.Sprintf("key%d", i%100), value); err != nil {
			b.Fatalf("error appending: %s", err)
		}
	}
}

func BenchmarkGet(b *testing.B) {
	counts := []int{
		1000,
		100_000,
	}
	countNames := []string{
		"1k",
		"100k",
	}

	for i, n := range counts {
		b.Run(fmt.Sprintf("numKeys=%s", countNames[i]), func(b *testing.B) {
			s := openStore(b, 1<<40)
			defer s.Close()
			for k := 0; k < n; k++ {
				require.NoError(b, s.Set(fmt.Sprintf("key%d", k), "some fixed benchmark value"))
			}

			b.ResetTimer()
			for j := 0; j < b.N; j++ {
				_, ok, err := s.Get(fmt.Sprintf("key%d", j%n))
				if err != nil || !ok {
					b.Fatalf("get: ok=%v err=%s", ok, err)
				}
			}
		})
	}
}

func openStore(b *testing.B, threshold uint64) *caskdb.Store {
	s, err := caskdb.Open(b.TempDir(), caskdb.WithCompactThreshold(threshold))
	require.NoError(b, err)
	return s
}
