package store

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/render"
)

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(MemoryDSN)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func testIssue(id string) *models.Issue {
	return &models.Issue{
		ID:          id,
		Category:    models.CategoryRoadwork,
		Status:      models.StatusOpen,
		Severity:    3,
		Description: "pothole on Hammer Str.",
		Timestamp:   "2026-08-30T10:00:00",
		Latitude:    51.96,
		Longitude:   7.62,
	}
}

func TestAdd_AndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	issue := testIssue("issue_1")
	h := render.NewMarker(*issue)
	require.NoError(t, s.Add(ctx, issue, h))

	entry, err := s.Get(ctx, "issue_1")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryRoadwork, entry.Issue.Category)
	assert.Equal(t, 3, entry.Issue.Severity)
	assert.Same(t, h, entry.Handle, "handle is paired with the stored issue")
}

func TestAdd_DuplicateID(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	issue := testIssue("issue_dup")
	require.NoError(t, s.Add(ctx, issue, render.NewMarker(*issue)))

	err := s.Add(ctx, testIssue("issue_dup"), render.NewMarker(*issue))
	assert.ErrorIs(t, err, ErrDuplicateID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rejected insert must not change the registry")
}

func TestGet_NotFound(t *testing.T) {
	s := setupStore(t)

	_, err := s.Get(context.Background(), "issue_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAll_InsertionOrder(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	ids := []string{"issue_c", "issue_a", "issue_b"}
	for _, id := range ids {
		issue := testIssue(id)
		require.NoError(t, s.Add(ctx, issue, render.NewMarker(*issue)))
	}

	entries, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, ids[i], e.Issue.ID)
	}
}

func TestBulkLoad_SkipsMalformedGeometry(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	feats := []models.Feature{
		{Issue: models.Issue{ID: "f1", Category: models.CategoryBlockage, Status: models.StatusOpen, Severity: 2}, Coords: []float64{7.62, 51.96}},
		{Issue: models.Issue{ID: "f2", Category: models.CategoryRoadwork, Status: models.StatusOpen, Severity: 1}, Coords: nil},
		{Issue: models.Issue{ID: "f3", Category: models.CategoryBrokenLight, Status: models.StatusResolved, Severity: 4}, Coords: []float64{7.60}},
		{Issue: models.Issue{ID: "f4", Category: models.CategoryBlockage, Status: models.StatusInProgress, Severity: 5}, Coords: []float64{math.NaN(), 51.9}},
		{Issue: models.Issue{ID: "f5", Category: models.CategoryRoadwork, Status: models.StatusOpen, Severity: 3}, Coords: []float64{7.63, 51.95}},
	}

	loaded, skipped, err := s.BulkLoad(ctx, feats, func(i models.Issue) render.Handle {
		return render.NewMarker(i)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 3, skipped)

	entries, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "f1", entries[0].Issue.ID)
	assert.Equal(t, 51.96, entries[0].Issue.Latitude, "lat comes from the second coordinate")
	assert.Equal(t, 7.62, entries[0].Issue.Longitude, "lon comes from the first coordinate")
	assert.NotNil(t, entries[0].Handle)
}
