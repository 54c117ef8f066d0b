// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package metrics declares the Prometheus collectors of the story engine.
//
// Collectors register on the default registry at init; the API server exposes
// them on /metrics and the bulk tool lets them die with the process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "historyatlas"

// Outcome labels shared by several counters.
const (
	OutcomeAssigned = "assigned"
	OutcomeDeferred = "deferred"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

var (
	// # HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// # Story ordering

	StoryOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ordering",
			Name:      "instances_total",
			Help:      "Tag instances processed by the order assigner, by outcome",
		},
		[]string{"outcome"},
	)

	LadderRebalancesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ordering",
			Name:      "rebalances_total",
			Help:      "Story order ladders renumbered after a gap was exhausted",
		},
	)

	BulkRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bulk",
			Name:      "rows_total",
			Help:      "Rows handled by the bulk story order repair, by outcome",
		},
		[]string{"outcome"},
	)

	// # Traversal

	StoryWindowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "story",
			Name:      "window_duration_seconds",
			Help:      "Time to assemble a story window",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"direction"},
	)

	StorySplicesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "story",
			Name:      "splices_total",
			Help:      "Times a window crossed from one story into a co-occurring one",
		},
	)

	// # Default story cache

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Default story cache lookups, by tier and result",
		},
		[]string{"tier", "result"},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Stories currently held by the in-process cache",
		},
	)

	CacheRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refresh_duration_seconds",
			Help:      "Time taken by a full priming pass",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// # Ingestion

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Ingestion events, by type and result",
		},
		[]string{"type", "result"},
	)
)
