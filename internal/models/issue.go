package models

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Category identifies the kind of municipal problem an issue reports.
type Category string

const (
	CategoryBrokenLight Category = "broken_light"
	CategoryRoadwork    Category = "roadwork"
	CategoryBlockage    Category = "blockage"
)

// Categories lists all valid categories in display order.
func Categories() []Category {
	return []Category{CategoryBrokenLight, CategoryRoadwork, CategoryBlockage}
}

// ValidCategory reports whether c is one of the known categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryBrokenLight, CategoryRoadwork, CategoryBlockage:
		return true
	}
	return false
}

// Status represents the lifecycle state of an issue.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// Statuses lists all valid statuses in display order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusResolved}
}

// ValidStatus reports whether s is one of the known statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved:
		return true
	}
	return false
}

// DescriptionMaxLen is the service-side field length limit for descriptions.
const DescriptionMaxLen = 254

// Issue represents a reported municipal problem with a point location.
type Issue struct {
	ID          string
	Category    Category
	Status      Status
	Severity    int // 1-5
	Description string
	Timestamp   string // ISO-8601, whole seconds, no zone suffix
	Latitude    float64
	Longitude   float64
}

// TruncatedDescription returns the description cut to the wire field limit.
func (i *Issue) TruncatedDescription() string {
	if len(i.Description) > DescriptionMaxLen {
		return i.Description[:DescriptionMaxLen]
	}
	return i.Description
}

// timestampLayout is the wire timestamp format: ISO-8601 truncated to whole
// seconds with no timezone suffix.
const timestampLayout = "2006-01-02T15:04:05"

// FormatTimestamp renders t in the wire timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// NewIssueID generates a client-side issue id: "issue_" + millisecond
// timestamp + random suffix. The service assigns its own ids on reload;
// within one session the timestamp+entropy combination is unique for
// practical purposes.
func NewIssueID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	suffix := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
	return fmt.Sprintf("issue_%d_%s", time.Now().UnixMilli(), suffix)
}
