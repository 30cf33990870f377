package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceObserveAllocation(t *testing.T) {
	m := NewMetricsService()
	m.ObserveAllocation("department", "success", 20*time.Millisecond, 40)
	m.ObserveAllocation("department", "insufficient_capacity", time.Millisecond, 0)
	m.ObserveAllocation("", "validation_error", time.Millisecond, 0)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	var assigned float64
	for _, family := range families {
		switch family.GetName() {
		case "seat_allocations_total":
			for _, metric := range family.GetMetric() {
				labels := map[string]string{}
				for _, l := range metric.GetLabel() {
					labels[l.GetName()] = l.GetValue()
				}
				counts[labels["pattern"]+"/"+labels["outcome"]] = metric.GetCounter().GetValue()
			}
		case "seats_assigned_total":
			for _, metric := range family.GetMetric() {
				assigned += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{
		"department/success":               1,
		"department/insufficient_capacity": 1,
		"unknown/validation_error":         1,
	}, counts)
	assert.Equal(t, float64(40), assigned)
	assert.EqualValues(t, 3, m.Snapshot().Allocations)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/exams/:id/allocate", http.StatusOK, 5*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "http_requests_total"))
	assert.True(t, strings.Contains(body, "cache_hit_ratio 0.5"))
	assert.True(t, strings.Contains(body, "goroutines_total"))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveAllocation("random", "success", time.Second, 1)
		m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Second)
		m.RecordCacheOperation(true, time.Second)
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, m.Snapshot().Allocations)
}
