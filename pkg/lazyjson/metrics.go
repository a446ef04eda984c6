// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package lazyjson

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsDocument holds Prometheus metrics for lazy documents.
type metricsDocument struct {
	once sync.Once

	loads   *prometheus.CounterVec
	flushes *prometheus.CounterVec
	skipped *prometheus.CounterVec
}

var docMetrics metricsDocument

func (m *metricsDocument) init() {
	m.once.Do(func() {
		m.loads = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyjson_document_loads_total",
			Help: "Document loads by source (cache or primary)",
		}, []string{"hashmap", "source"})
		m.flushes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyjson_document_flushes_total",
			Help: "Document flushes that wrote to the cache and backends",
		}, []string{"hashmap"})
		m.skipped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyjson_document_flushes_skipped_total",
			Help: "Flushes skipped because the content hash was unchanged",
		}, []string{"hashmap"})
		prometheus.MustRegister(m.loads, m.flushes, m.skipped)
	})
}

func recordLoad(h, source string) {
	docMetrics.init()
	docMetrics.loads.WithLabelValues(h, source).Inc()
}

func recordFlush(h string) {
	docMetrics.init()
	docMetrics.flushes.WithLabelValues(h).Inc()
}

func recordSkip(h string) {
	docMetrics.init()
	docMetrics.skipped.WithLabelValues(h).Inc()
}
