// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package caskdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type storeMetrics struct {
	bytesWritten          prometheus.Counter
	setOps                prometheus.Counter
	removeOps             prometheus.Counter
	getOps                prometheus.Counter
	valueBytesRead        prometheus.Counter
	compactions           prometheus.Counter
	compactedBytes        prometheus.Counter
	segmentsDeleted       prometheus.Counter
	reclaimableBytes      prometheus.Gauge
	lastCompactionSeconds prometheus.Gauge
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	return &storeMetrics{
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "record_bytes_written",
			Help: "record_bytes_written counts the encoded bytes appended to the" +
				" active segment by set and remove operations. Compaction rewrites" +
				" are counted separately under compacted_bytes.",
		}),
		setOps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "set_ops",
			Help: "set_ops counts the number of successful set operations.",
		}),
		removeOps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "remove_ops",
			Help: "remove_ops counts the number of successful remove operations." +
				" Removes of absent keys are rejected before any write and are not" +
				" counted.",
		}),
		getOps: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "get_ops",
			Help: "get_ops counts the number of calls to Get, whether or not the" +
				" key was found.",
		}),
		valueBytesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "value_bytes_read",
			Help: "value_bytes_read counts the bytes of decoded values returned" +
				" by Get. Actual bytes read from disk are higher since each read" +
				" decodes a whole record.",
		}),
		compactions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "compactions",
			Help: "compactions counts how many times the live records were" +
				" rewritten into a fresh segment.",
		}),
		compactedBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "compacted_bytes",
			Help: "compacted_bytes counts the live record bytes copied into" +
				" compact target segments.",
		}),
		segmentsDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "segments_deleted",
			Help: "segments_deleted counts retired segment files removed from" +
				" disk, including deletions retried from a previous run.",
		}),
		reclaimableBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "reclaimable_bytes",
			Help: "reclaimable_bytes is the writer's running estimate of bytes" +
				" no longer reachable from the index. The estimate is" +
				" conservative: it over-counts overwritten records, so it can" +
				" exceed the true garbage size. Compaction resets it to zero.",
		}),
		lastCompactionSeconds: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "last_compaction_seconds",
			Help: "last_compaction_seconds is a gauge set after each compaction" +
				" with its wall-clock duration. This gives a rough estimate of" +
				" how disruptive compaction is to write latency, since writes" +
				" are held out for its duration.",
		}),
	}
}
