// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the labeling engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// No user or video ids in labels: annotator names are free text.

var (
	// AssignmentsTotal counts Next outcomes.
	AssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vlabel_assignments_total",
		Help: "Total number of next-clip requests, by outcome (leased, redelivered, done).",
	}, []string{"outcome"})

	// DoneTotal counts done signals by reason.
	DoneTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vlabel_done_total",
		Help: "Total number of done signals returned, by reason.",
	}, []string{"reason"})

	// LabelsTotal counts committed labels.
	LabelsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vlabel_labels_total",
		Help: "Total number of committed labels, by label value.",
	}, []string{"label"})

	// LabelRejectTotal counts rejected label submissions.
	LabelRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vlabel_label_reject_total",
		Help: "Total number of rejected label submissions, by reason.",
	}, []string{"reason"})

	SkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlabel_skips_total",
		Help: "Total number of skipped clips.",
	})

	// UndoRedoTotal counts records moved by undo, redo and unlabel.
	UndoRedoTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vlabel_undo_redo_records_total",
		Help: "Total number of records removed or restored, by operation (undo, redo, unlabel).",
	}, []string{"op"})

	// LeasesLive is the number of unexpired leases after the last sweep.
	LeasesLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vlabel_leases_live",
		Help: "Current number of live clip leases.",
	})

	LeasesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vlabel_leases_expired_total",
		Help: "Total number of leases reclaimed after TTL expiry.",
	})

	ActiveUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vlabel_active_users",
		Help: "Current number of annotators inside the activity window.",
	})

	// LedgerAppendDuration tracks fsync'd journal writes.
	LedgerAppendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vlabel_ledger_append_duration_seconds",
		Help:    "Latency of durable journal appends, by result.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"result"})

	LedgerMalformedLines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vlabel_ledger_malformed_lines",
		Help: "Journal lines skipped during the last replay.",
	})

	CatalogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vlabel_catalog_videos",
		Help: "Current number of clips known to the catalog.",
	})

	// CatalogRefreshTotal counts refresh runs by result.
	CatalogRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vlabel_catalog_refresh_total",
		Help: "Total number of catalog rescans, by result (ok, error).",
	}, []string{"result"})
)

// RecordAssignment increments the assignment counter.
func RecordAssignment(outcome string) {
	AssignmentsTotal.WithLabelValues(outcome).Inc()
}

// RecordDone counts a done signal and its reason.
func RecordDone(reason string) {
	AssignmentsTotal.WithLabelValues("done").Inc()
	DoneTotal.WithLabelValues(reason).Inc()
}

func RecordLabel(label string) {
	LabelsTotal.WithLabelValues(label).Inc()
}

func RecordLabelReject(reason string) {
	LabelRejectTotal.WithLabelValues(reason).Inc()
}

func RecordSkip() {
	SkipsTotal.Inc()
}

// RecordUndoRedo adds n to the undo/redo counter for op.
func RecordUndoRedo(op string, n int) {
	if n > 0 {
		UndoRedoTotal.WithLabelValues(op).Add(float64(n))
	}
}

// SetLeases publishes the live lease count and adds newly expired leases.
func SetLeases(live, expired int) {
	LeasesLive.Set(float64(live))
	if expired > 0 {
		LeasesExpiredTotal.Add(float64(expired))
	}
}

func SetActiveUsers(n int) {
	ActiveUsers.Set(float64(n))
}

// ObserveLedgerAppend records one journal append.
func ObserveLedgerAppend(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	LedgerAppendDuration.WithLabelValues(result).Observe(d.Seconds())
}

func SetLedgerMalformed(n int) {
	LedgerMalformedLines.Set(float64(n))
}

func SetCatalogSize(n int) {
	CatalogSize.Set(float64(n))
}

func RecordCatalogRefresh(err error) {
	if err != nil {
		CatalogRefreshTotal.WithLabelValues("error").Inc()
		return
	}
	CatalogRefreshTotal.WithLabelValues("ok").Inc()
}
