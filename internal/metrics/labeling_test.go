// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterVecValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, vec *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	h, ok := vec.WithLabelValues(labels...).(prometheus.Histogram)
	require.True(t, ok, "observer is not a prometheus.Histogram")
	m := &dto.Metric{}
	require.NoError(t, h.Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestRecordDone_CountsAssignmentAndReason(t *testing.T) {
	doneBefore := counterVecValue(t, AssignmentsTotal, "done")
	reasonBefore := counterVecValue(t, DoneTotal, "user_quota")

	RecordDone("user_quota")

	assert.Equal(t, doneBefore+1, counterVecValue(t, AssignmentsTotal, "done"))
	assert.Equal(t, reasonBefore+1, counterVecValue(t, DoneTotal, "user_quota"))
}

func TestRecordUndoRedo_IgnoresEmptyBatches(t *testing.T) {
	before := counterVecValue(t, UndoRedoTotal, "undo")

	RecordUndoRedo("undo", 0)
	assert.Equal(t, before, counterVecValue(t, UndoRedoTotal, "undo"))

	RecordUndoRedo("undo", 3)
	assert.Equal(t, before+3, counterVecValue(t, UndoRedoTotal, "undo"))
}

func TestSetLeases(t *testing.T) {
	SetLeases(4, 0)
	assert.Equal(t, float64(4), gaugeValue(t, LeasesLive))

	m := &dto.Metric{}
	require.NoError(t, LeasesExpiredTotal.Write(m))
	expiredBefore := m.GetCounter().GetValue()

	SetLeases(1, 2)
	assert.Equal(t, float64(1), gaugeValue(t, LeasesLive))
	m = &dto.Metric{}
	require.NoError(t, LeasesExpiredTotal.Write(m))
	assert.Equal(t, expiredBefore+2, m.GetCounter().GetValue())
}

func TestObserveLedgerAppend_SplitsByResult(t *testing.T) {
	okBefore := histogramCount(t, LedgerAppendDuration, "ok")
	errBefore := histogramCount(t, LedgerAppendDuration, "error")

	ObserveLedgerAppend(time.Millisecond, nil)
	ObserveLedgerAppend(time.Millisecond, errors.New("disk full"))

	assert.Equal(t, okBefore+1, histogramCount(t, LedgerAppendDuration, "ok"))
	assert.Equal(t, errBefore+1, histogramCount(t, LedgerAppendDuration, "error"))
}

func TestRecordCatalogRefresh(t *testing.T) {
	okBefore := counterVecValue(t, CatalogRefreshTotal, "ok")
	errBefore := counterVecValue(t, CatalogRefreshTotal, "error")

	RecordCatalogRefresh(nil)
	RecordCatalogRefresh(errors.New("boom"))

	assert.Equal(t, okBefore+1, counterVecValue(t, CatalogRefreshTotal, "ok"))
	assert.Equal(t, errBefore+1, counterVecValue(t, CatalogRefreshTotal, "error"))
}

func TestPromhttpExposure(t *testing.T) {
	RecordLabel("ok")
	SetCatalogSize(12)

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `vlabel_labels_total{label="ok"}`)
	assert.Contains(t, body, "vlabel_catalog_videos 12")
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "vlabel_") {
			assert.NotContains(t, line, "user=", "annotator names must not become label values")
		}
	}
}
