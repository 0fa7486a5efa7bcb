// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNaiveRunsJobs(t *testing.T) {
	p := NewNaive(4)

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Spawn(func() {
			defer wg.Done()
			ran.Add(1)
		})
	}
	wg.Wait()
	require.Equal(t, int64(50), ran.Load())
}

func TestSharedQueueRunsAllJobs(t *testing.T) {
	p := NewSharedQueue(4, nil)

	var ran atomic.Int64
	for i := 0; i < 100; i++ {
		p.Spawn(func() { ran.Add(1) })
	}
	p.Close()
	require.Equal(t, int64(100), ran.Load())
}

func TestSharedQueueSurvivesPanic(t *testing.T) {
	p := NewSharedQueue(2, nil)

	var ran atomic.Int64
	p.Spawn(func() { panic("boom") })
	for i := 0; i < 20; i++ {
		p.Spawn(func() { ran.Add(1) })
	}
	p.Close()

	// The panicking job must not have taken a worker down with it.
	require.Equal(t, int64(20), ran.Load())
}
