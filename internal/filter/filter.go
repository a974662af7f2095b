// Package filter decides which stored features are visible and keeps the
// rendering collaborator in sync. Visibility is the conjunction of two
// independently toggleable predicate sets, one over categories and one
// over statuses.
package filter

import (
	"context"
	"fmt"
	"sync"

	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/render"
	"github.com/cityfix/cityfix/internal/store"
)

// Dimension selects which predicate set a toggle targets.
type Dimension string

const (
	DimCategory Dimension = "category"
	DimStatus   Dimension = "status"
)

// Engine owns the filter state. It reads the store, never mutates issue
// data, and only flips attachment state on the canvas.
type Engine struct {
	store  store.Store
	canvas render.Canvas

	mu         sync.Mutex
	categories map[models.Category]bool
	statuses   map[models.Status]bool
	attached   map[string]bool
}

// NewEngine creates an engine with every tag enabled.
func NewEngine(s store.Store, canvas render.Canvas) *Engine {
	e := &Engine{
		store:      s,
		canvas:     canvas,
		categories: make(map[models.Category]bool),
		statuses:   make(map[models.Status]bool),
		attached:   make(map[string]bool),
	}
	for _, c := range models.Categories() {
		e.categories[c] = true
	}
	for _, s := range models.Statuses() {
		e.statuses[s] = true
	}
	return e
}

// Visible reports whether the issue passes both predicate sets.
func (e *Engine) Visible(issue *models.Issue) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visibleLocked(issue)
}

func (e *Engine) visibleLocked(issue *models.Issue) bool {
	return e.categories[issue.Category] && e.statuses[issue.Status]
}

// Toggle enables or disables one tag and recomputes visibility. It is the
// sole mutator of the filter state. Enabling a present tag or disabling an
// absent one leaves the set unchanged.
func (e *Engine) Toggle(ctx context.Context, dim Dimension, tag string, enabled bool) error {
	e.mu.Lock()
	switch dim {
	case DimCategory:
		c := models.Category(tag)
		if !models.ValidCategory(c) {
			e.mu.Unlock()
			return fmt.Errorf("unknown category tag: %q", tag)
		}
		if enabled {
			e.categories[c] = true
		} else {
			delete(e.categories, c)
		}
	case DimStatus:
		s := models.Status(tag)
		if !models.ValidStatus(s) {
			e.mu.Unlock()
			return fmt.Errorf("unknown status tag: %q", tag)
		}
		if enabled {
			e.statuses[s] = true
		} else {
			delete(e.statuses, s)
		}
	default:
		e.mu.Unlock()
		return fmt.Errorf("unknown filter dimension: %q", dim)
	}
	err := e.recomputeLocked(ctx)
	e.mu.Unlock()
	return err
}

// Recompute re-evaluates visibility for every stored feature and attaches
// or detaches handles whose visibility flipped. It runs to completion
// before returning; no partial visibility is observable.
func (e *Engine) Recompute(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recomputeLocked(ctx)
}

func (e *Engine) recomputeLocked(ctx context.Context) error {
	entries, err := e.store.All(ctx)
	if err != nil {
		return fmt.Errorf("read feature registry: %w", err)
	}
	for _, entry := range entries {
		want := e.visibleLocked(entry.Issue)
		have := e.attached[entry.Issue.ID]
		switch {
		case want && !have:
			e.canvas.Attach(entry.Handle)
			e.attached[entry.Issue.ID] = true
		case !want && have:
			e.canvas.Detach(entry.Handle)
			delete(e.attached, entry.Issue.ID)
		}
	}
	return nil
}

// Attached reports whether the issue's handle is currently on the canvas.
func (e *Engine) Attached(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attached[id]
}

// State is a snapshot of the enabled tags in both dimensions.
type State struct {
	Categories []string `json:"categories"`
	Statuses   []string `json:"statuses"`
}

// Enabled returns the enabled tags in display order.
func (e *Engine) Enabled() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	var st State
	for _, c := range models.Categories() {
		if e.categories[c] {
			st.Categories = append(st.Categories, string(c))
		}
	}
	for _, s := range models.Statuses() {
		if e.statuses[s] {
			st.Statuses = append(st.Statuses, string(s))
		}
	}
	return st
}
