// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package caskdb

import (
	"errors"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamsxin/caskdb/types"
)

// DefaultCompactThreshold is the reclaimable-bytes level past which the
// writer compacts. It is deliberately tiny so tests exercise compaction
// constantly; production deployments should tune it upward.
const DefaultCompactThreshold = 1024

type storeOpt func(*Store)

// WithLogger sets the logger used for lifecycle events and tolerated
// failures such as retired-segment deletions.
func WithLogger(logger log.Logger) storeOpt {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithMetricsRegisterer sets where the store registers its metrics. Without
// it metrics are still collected but end up on a private throwaway registry.
func WithMetricsRegisterer(reg prometheus.Registerer) storeOpt {
	return func(s *Store) {
		s.reg = reg
	}
}

// WithCompactThreshold overrides DefaultCompactThreshold.
func WithCompactThreshold(n uint64) storeOpt {
	return func(s *Store) {
		s.compactThreshold = n
	}
}

// WithMetaStore injects a MetaStore, replacing the bolt-backed default.
// Mostly useful for tests.
func WithMetaStore(ms types.MetaStore) storeOpt {
	return func(s *Store) {
		s.metaDB = ms
	}
}

func (s *Store) applyDefaultsAndValidate() error {
	if s.dir == "" {
		return errors.New("directory must not be empty")
	}
	if s.logger == nil {
		s.logger = log.NewNopLogger()
	}
	if s.reg == nil {
		s.reg = prometheus.NewRegistry()
	}
	if s.compactThreshold == 0 {
		s.compactThreshold = DefaultCompactThreshold
	}
	s.metrics = newStoreMetrics(s.reg)
	return nil
}
