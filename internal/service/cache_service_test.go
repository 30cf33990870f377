package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-seating-api/internal/models"
	appErrors "github.com/noah-isme/exam-seating-api/pkg/errors"
)

func TestCacheServiceHitMissAndMetrics(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)
	ctx := context.Background()
	key := SeatingCacheKey("exam-1", "stats")
	assert.Equal(t, "seating:exam:exam-1:stats", key)

	var stats models.AssignmentStats
	hit, err := svc.Get(ctx, key, &stats)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, svc.Set(ctx, key, models.AssignmentStats{TotalAssignments: 4}, 0))
	assert.Equal(t, time.Minute, repo.ttls[key])

	hit, err = svc.Get(ctx, key, &stats)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 4, stats.TotalAssignments)
	assert.InDelta(t, 0.5, metrics.Snapshot().CacheHitRatio, 0.0001)
}

func TestCacheServiceInvalidateExam(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()

	require.NoError(t, svc.Set(ctx, SeatingCacheKey("exam-1", "stats"), 1, 0))
	svc.InvalidateExam(ctx, "exam-1")
	assert.Equal(t, []string{"seating:exam:exam-1:*"}, repo.patterns)

	repo.deleteErr = errors.New("redis down")
	assert.NotPanics(t, func() { svc.InvalidateExam(ctx, "exam-1") })
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, 0, nil, false)
	ctx := context.Background()

	assert.False(t, svc.Enabled())
	require.NoError(t, svc.Set(ctx, "k", 1, 0))
	hit, err := svc.Get(ctx, "k", new(int))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, repo.values)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	assert.NotPanics(t, func() { nilSvc.InvalidateExam(ctx, "exam-1") })
}

func TestCacheServiceGetSurfacesBackendErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("timeout")
	svc := NewCacheService(repo, nil, 0, nil, true)

	hit, err := svc.Get(context.Background(), "k", new(int))
	assert.Error(t, err)
	assert.False(t, hit)
}

type memoryCacheRepo struct {
	values    map[string][]byte
	ttls      map[string]time.Duration
	patterns  []string
	getErr    error
	deleteErr error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	payload, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = payload
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.patterns = append(m.patterns, pattern)
	return nil
}
