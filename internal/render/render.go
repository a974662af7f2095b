// Package render is the boundary to the map-rendering collaborator. The
// client never draws anything itself; it hands marker handles to a Canvas
// and attaches or detaches them as filter visibility changes.
package render

import (
	"fmt"
	"strings"

	"github.com/cityfix/cityfix/internal/models"
	"github.com/cityfix/cityfix/internal/severity"
)

// Handle is one renderable marker paired with a stored issue. Every stored
// issue owns exactly one handle; the two are created and destroyed together.
type Handle interface {
	IssueID() string
}

// Canvas is the rendering collaborator markers attach to.
type Canvas interface {
	Attach(h Handle)
	Detach(h Handle)
}

// Marker is the default Handle implementation: a point marker with the
// issue's popup text.
type Marker struct {
	issue models.Issue
}

// NewMarker creates the marker handle for an issue.
func NewMarker(issue models.Issue) *Marker {
	return &Marker{issue: issue}
}

// IssueID returns the id of the paired issue.
func (m *Marker) IssueID() string { return m.issue.ID }

// Popup returns the text shown when the marker is selected.
func (m *Marker) Popup() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", m.issue.Category)
	fmt.Fprintf(&sb, "ID: %s\n", m.issue.ID)
	fmt.Fprintf(&sb, "Status: %s\n", m.issue.Status)
	fmt.Fprintf(&sb, "Severity: %d (%s)\n", m.issue.Severity, severity.Classify(m.issue.Severity))
	fmt.Fprintf(&sb, "Description: %s\n", m.issue.Description)
	fmt.Fprintf(&sb, "Time: %s", m.issue.Timestamp)
	return sb.String()
}

// NopCanvas discards attach/detach calls. Used when no live map is
// connected, e.g. CLI runs where the browser does the actual drawing.
type NopCanvas struct{}

func (NopCanvas) Attach(Handle) {}
func (NopCanvas) Detach(Handle) {}
