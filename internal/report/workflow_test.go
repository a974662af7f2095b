package report

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cityfix/cityfix/internal/filter"
	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/render"
	"github.com/cityfix/cityfix/internal/store"
	"github.com/cityfix/cityfix/internal/wfs"
)

// fakeSubmitter returns scripted results and records submitted issues.
type fakeSubmitter struct {
	mu      sync.Mutex
	result  wfs.Result
	issues  []models.Issue
	release chan struct{} // when non-nil, Submit blocks until closed
}

func (f *fakeSubmitter) Submit(ctx context.Context, issue models.Issue) wfs.Result {
	f.mu.Lock()
	f.issues = append(f.issues, issue)
	release := f.release
	result := f.result
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return result
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.issues)
}

func setupWorkflow(t *testing.T, sub Submitter) (*Workflow, store.Store, *filter.Engine) {
	t.Helper()
	s, err := store.NewSQLiteStore(store.MemoryDSN)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	engine := filter.NewEngine(s, render.NopCanvas{})
	return NewWorkflow(s, engine, sub), s, engine
}

func success() wfs.Result {
	return wfs.Result{Outcome: wfs.OutcomeSuccess, Message: "issue submitted"}
}

func failure() wfs.Result {
	return wfs.Result{Outcome: wfs.OutcomeFailure, Message: "service rejected the transaction"}
}

func TestWorkflow_HappyPath(t *testing.T) {
	sub := &fakeSubmitter{result: success()}
	w, s, engine := setupWorkflow(t, sub)
	ctx := context.Background()

	assert.Equal(t, PhaseIdle, w.Phase())
	require.NoError(t, w.Arm())
	assert.Equal(t, PhaseArmed, w.Phase())

	assert.True(t, w.Pick(Coordinate{Lat: 51.96, Lon: 7.62}))
	assert.Equal(t, PhaseLocated, w.Phase())

	require.NoError(t, w.SetDraft(Draft{Category: models.CategoryRoadwork, Severity: 5, Description: "full closure"}))

	issue, err := w.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, w.Phase())

	assert.Equal(t, models.StatusOpen, issue.Status)
	assert.Equal(t, models.CategoryRoadwork, issue.Category)
	assert.Equal(t, 5, issue.Severity)
	assert.Equal(t, 51.96, issue.Latitude)
	assert.Equal(t, 7.62, issue.Longitude)
	assert.NotEmpty(t, issue.Timestamp)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "exactly one new issue in the registry")
	assert.True(t, engine.Attached(issue.ID), "all toggles enabled, the new issue is visible")
}

func TestSubmit_RejectedWithoutLocation(t *testing.T) {
	sub := &fakeSubmitter{result: success()}
	w, _, _ := setupWorkflow(t, sub)

	_, err := w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoLocation)

	require.NoError(t, w.Arm())
	_, err = w.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoLocation, "armed but not located")

	assert.Equal(t, 0, sub.calls(), "guard failures never reach the network")
}

func TestSubmit_FailureReturnsToLocated(t *testing.T) {
	sub := &fakeSubmitter{result: failure()}
	w, s, _ := setupWorkflow(t, sub)
	ctx := context.Background()

	require.NoError(t, w.Arm())
	require.True(t, w.Pick(Coordinate{Lat: 51.95, Lon: 7.63}))
	require.NoError(t, w.SetDraft(Draft{Category: models.CategoryBlockage, Severity: 4, Description: "fallen tree"}))

	_, err := w.Submit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")

	st := w.State()
	assert.Equal(t, PhaseLocated, st.Phase, "failure keeps the session alive")
	require.NotNil(t, st.Location, "pending location retained for retry")
	assert.Equal(t, 51.95, st.Location.Lat)
	assert.Equal(t, models.CategoryBlockage, st.Draft.Category, "draft retained for retry")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing stored on failure")

	// Retry succeeds without re-picking.
	sub.mu.Lock()
	sub.result = success()
	sub.mu.Unlock()
	issue, err := w.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryBlockage, issue.Category)
}

func TestCancel_FromEveryState(t *testing.T) {
	sub := &fakeSubmitter{result: success()}
	w, _, _ := setupWorkflow(t, sub)

	// Idle: no-op teardown.
	w.Cancel()
	assert.Equal(t, PhaseIdle, w.Phase())

	// Armed.
	require.NoError(t, w.Arm())
	w.Cancel()
	assert.Equal(t, PhaseIdle, w.Phase())

	// Located: pending location discarded.
	require.NoError(t, w.Arm())
	require.True(t, w.Pick(Coordinate{Lat: 51.9, Lon: 7.6}))
	w.Cancel()
	st := w.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Nil(t, st.Location)

	assert.Equal(t, 0, sub.calls(), "cancel never contacts the service")
}

func TestPick_IgnoredWhenIdle(t *testing.T) {
	w, _, _ := setupWorkflow(t, &fakeSubmitter{result: success()})

	assert.False(t, w.Pick(Coordinate{Lat: 51.9, Lon: 7.6}))
	assert.Equal(t, PhaseIdle, w.Phase())
	assert.Nil(t, w.State().Location)
}

func TestPick_RepeatedPicksReplaceLocation(t *testing.T) {
	w, _, _ := setupWorkflow(t, &fakeSubmitter{result: success()})

	require.NoError(t, w.Arm())
	require.True(t, w.Pick(Coordinate{Lat: 51.90, Lon: 7.60}))
	require.True(t, w.Pick(Coordinate{Lat: 51.99, Lon: 7.65}))

	st := w.State()
	assert.Equal(t, PhaseLocated, st.Phase)
	assert.Equal(t, 51.99, st.Location.Lat, "later pick replaces the marker")
}

func TestArm_ResetsStaleSession(t *testing.T) {
	w, _, _ := setupWorkflow(t, &fakeSubmitter{result: success()})

	require.NoError(t, w.Arm())
	require.True(t, w.Pick(Coordinate{Lat: 51.9, Lon: 7.6}))
	require.NoError(t, w.SetDraft(Draft{Category: models.CategoryRoadwork, Severity: 3}))

	require.NoError(t, w.Arm())
	st := w.State()
	assert.Equal(t, PhaseArmed, st.Phase)
	assert.Nil(t, st.Location, "stale location discarded")
	assert.Equal(t, models.CategoryBrokenLight, st.Draft.Category, "draft reset to defaults")
}

func TestSetDraft_Validation(t *testing.T) {
	w, _, _ := setupWorkflow(t, &fakeSubmitter{result: success()})

	assert.ErrorIs(t, w.SetDraft(Draft{Category: models.CategoryRoadwork, Severity: 3}), ErrNotReporting)

	require.NoError(t, w.Arm())
	assert.Error(t, w.SetDraft(Draft{Category: "graffiti", Severity: 3}))
	assert.Error(t, w.SetDraft(Draft{Category: models.CategoryRoadwork, Severity: 0}))
	assert.Error(t, w.SetDraft(Draft{Category: models.CategoryRoadwork, Severity: 6}))
	assert.NoError(t, w.SetDraft(Draft{Category: models.CategoryRoadwork, Severity: 5}))
}

func TestArm_RejectedWhileSubmitting(t *testing.T) {
	release := make(chan struct{})
	sub := &fakeSubmitter{result: success(), release: release}
	w, _, _ := setupWorkflow(t, sub)
	ctx := context.Background()

	require.NoError(t, w.Arm())
	require.True(t, w.Pick(Coordinate{Lat: 51.9, Lon: 7.6}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.Submit(ctx)
	}()

	// Wait for the submission to be in flight.
	require.Eventually(t, func() bool { return w.Phase() == PhaseSubmitting }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, w.Arm(), ErrSubmissionInProgress)
	_, err := w.Submit(ctx)
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(release)
	<-done
	assert.Equal(t, PhaseIdle, w.Phase())
}

func TestCancel_DiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	sub := &fakeSubmitter{result: success(), release: release}
	w, s, _ := setupWorkflow(t, sub)
	ctx := context.Background()

	require.NoError(t, w.Arm())
	require.True(t, w.Pick(Coordinate{Lat: 51.9, Lon: 7.6}))

	errCh := make(chan error, 1)
	go func() {
		_, err := w.Submit(ctx)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return w.Phase() == PhaseSubmitting }, time.Second, 5*time.Millisecond)

	w.Cancel()
	close(release)

	assert.ErrorIs(t, <-errCh, ErrCancelled)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "result of a cancelled session is discarded")
	assert.Equal(t, PhaseIdle, w.Phase())
}
