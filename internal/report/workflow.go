// Package report coordinates one issue-reporting session from arming
// through location pick to transaction submission.
package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cityfix/cityfix/internal/filter"
	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/render"
	"github.com/cityfix/cityfix/internal/store"
	"github.com/cityfix/cityfix/internal/wfs"
)

// Phase is the state of the reporting session.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseArmed      Phase = "armed"
	PhaseLocated    Phase = "located"
	PhaseSubmitting Phase = "submitting"
)

var (
	// ErrNoLocation rejects a submit before any location was picked. This
	// is a guard the UI should prevent, not a transient condition.
	ErrNoLocation = errors.New("no location picked")

	// ErrSubmissionInProgress rejects arming or submitting while a
	// submission is in flight. Only one session is active at a time.
	ErrSubmissionInProgress = errors.New("submission in progress")

	// ErrNotReporting rejects draft edits outside an active session.
	ErrNotReporting = errors.New("no active reporting session")

	// ErrCancelled marks a submission whose session was torn down while
	// the transaction was in flight. The result is discarded.
	ErrCancelled = errors.New("reporting session cancelled")
)

// Submitter sends one issue to the remote service. *wfs.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, issue models.Issue) wfs.Result
}

// Coordinate is a WGS84 location pick.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Draft holds the form fields of the pending report.
type Draft struct {
	Category    models.Category `json:"category"`
	Severity    int             `json:"severity"`
	Description string          `json:"description"`
}

func defaultDraft() Draft {
	return Draft{Category: models.CategoryBrokenLight, Severity: 1}
}

// Session is a snapshot of the workflow state.
type Session struct {
	Phase    Phase       `json:"phase"`
	Location *Coordinate `json:"location,omitempty"`
	Draft    Draft       `json:"draft"`
}

// Workflow is the reporting state machine:
// Idle → Armed → Located → Submitting → {Idle on success, Located on failure}.
// It is the only writer that adds issues to the store outside bulk load.
type Workflow struct {
	store     store.Store
	engine    *filter.Engine
	submitter Submitter

	mu         sync.Mutex
	phase      Phase
	pending    *Coordinate
	draft      Draft
	generation int
}

// NewWorkflow creates an idle workflow.
func NewWorkflow(s store.Store, e *filter.Engine, sub Submitter) *Workflow {
	return &Workflow{
		store:     s,
		engine:    e,
		submitter: sub,
		phase:     PhaseIdle,
		draft:     defaultDraft(),
	}
}

// Phase returns the current phase.
func (w *Workflow) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// State returns a snapshot of the session.
func (w *Workflow) State() Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Session{Phase: w.phase, Draft: w.draft}
	if w.pending != nil {
		loc := *w.pending
		s.Location = &loc
	}
	return s
}

// Arm starts (or restarts) a reporting session: stale pending locations are
// discarded and the draft reset to defaults. Rejected while a submission is
// in flight.
func (w *Workflow) Arm() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase == PhaseSubmitting {
		return ErrSubmissionInProgress
	}
	w.generation++
	w.phase = PhaseArmed
	w.pending = nil
	w.draft = defaultDraft()
	return nil
}

// Pick records a location pick. Picks outside an armed session are ignored;
// repeated picks simply replace the pending location. Returns whether the
// pick was accepted.
func (w *Workflow) Pick(c Coordinate) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != PhaseArmed && w.phase != PhaseLocated {
		return false
	}
	w.pending = &c
	w.phase = PhaseLocated
	return true
}

// SetDraft updates the form fields of the active session.
func (w *Workflow) SetDraft(d Draft) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != PhaseArmed && w.phase != PhaseLocated {
		return ErrNotReporting
	}
	if !models.ValidCategory(d.Category) {
		return fmt.Errorf("unknown category: %q", d.Category)
	}
	if d.Severity < 1 || d.Severity > 5 {
		return fmt.Errorf("severity %d out of range 1-5", d.Severity)
	}
	w.draft = d
	return nil
}

// Cancel tears down the session from any state without contacting the
// service. A submission still in flight is discarded when it resolves.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	w.phase = PhaseIdle
	w.pending = nil
	w.draft = defaultDraft()
}

// Submit sends the pending report. On success the new issue (status open)
// is registered with a fresh marker, current filters decide its visibility,
// and the session ends. On failure the session returns to Located with the
// pending location and draft retained for retry.
func (w *Workflow) Submit(ctx context.Context) (*models.Issue, error) {
	w.mu.Lock()
	if w.phase == PhaseSubmitting {
		w.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	if w.phase != PhaseLocated || w.pending == nil {
		w.mu.Unlock()
		return nil, ErrNoLocation
	}

	issue := models.Issue{
		ID:          models.NewIssueID(),
		Category:    w.draft.Category,
		Status:      models.StatusOpen,
		Severity:    w.draft.Severity,
		Description: w.draft.Description,
		Timestamp:   models.FormatTimestamp(time.Now()),
		Latitude:    w.pending.Lat,
		Longitude:   w.pending.Lon,
	}
	gen := w.generation
	w.phase = PhaseSubmitting
	w.mu.Unlock()

	// The only suspend point of the session.
	res := w.submitter.Submit(ctx, issue)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.generation != gen {
		return nil, ErrCancelled
	}

	if !res.OK() {
		w.phase = PhaseLocated
		return nil, fmt.Errorf("submit issue: %s", res.Message)
	}

	if err := w.store.Add(ctx, &issue, render.NewMarker(issue)); err != nil {
		w.phase = PhaseLocated
		return nil, fmt.Errorf("register issue: %w", err)
	}

	w.generation++
	w.phase = PhaseIdle
	w.pending = nil
	w.draft = defaultDraft()

	if err := w.engine.Recompute(ctx); err != nil {
		return nil, fmt.Errorf("apply filters: %w", err)
	}
	return &issue, nil
}
