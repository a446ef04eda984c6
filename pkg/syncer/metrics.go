// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package syncer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsSync holds Prometheus metrics for the sync engine.
type metricsSync struct {
	once sync.Once

	keysDeleted *prometheus.CounterVec
	keysPushed  *prometheus.CounterVec
	batches     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

var syncMetrics metricsSync

func (m *metricsSync) init() {
	m.once.Do(func() {
		m.keysDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyjson_sync_keys_deleted_total",
			Help: "Keys deleted from secondaries because the primary no longer has them",
		}, []string{"hashmap", "backend"})
		m.keysPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyjson_sync_keys_pushed_total",
			Help: "Keys written to secondaries",
		}, []string{"hashmap", "backend"})
		m.batches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyjson_sync_batches_total",
			Help: "Batches fetched from the primary",
		}, []string{"hashmap"})

		buckets := []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900}
		m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lazyjson_sync_hashmap_seconds",
			Help:    "Time spent syncing one hashmap",
			Buckets: buckets,
		}, []string{"hashmap"})

		prometheus.MustRegister(m.keysDeleted, m.keysPushed, m.batches, m.duration)
	})
}

func recordDeleted(h, backend string, n int) {
	syncMetrics.init()
	syncMetrics.keysDeleted.WithLabelValues(h, backend).Add(float64(n))
}

func recordPushed(h, backend string, n int) {
	syncMetrics.init()
	syncMetrics.keysPushed.WithLabelValues(h, backend).Add(float64(n))
}

func recordBatch(h string) {
	syncMetrics.init()
	syncMetrics.batches.WithLabelValues(h).Inc()
}

func recordDuration(h string, seconds float64) {
	syncMetrics.init()
	syncMetrics.duration.WithLabelValues(h).Observe(seconds)
}
