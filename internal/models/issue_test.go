package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIssueID(t *testing.T) {
	id := NewIssueID()

	assert.True(t, strings.HasPrefix(id, "issue_"), id)
	parts := strings.SplitN(id, "_", 3)
	require.Len(t, parts, 3)
	assert.Regexp(t, `^\d+$`, parts[1], "millisecond timestamp")
	assert.Len(t, parts[2], 26, "ULID suffix")

	assert.NotEqual(t, id, NewIssueID())
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	ts := time.Date(2026, 8, 30, 14, 5, 9, 123456789, loc)

	got := FormatTimestamp(ts)
	assert.Equal(t, "2026-08-30T12:05:09", got, "UTC, whole seconds, no zone suffix")
}

func TestTruncatedDescription(t *testing.T) {
	short := Issue{Description: "lamp out"}
	assert.Equal(t, "lamp out", short.TruncatedDescription())

	long := Issue{Description: strings.Repeat("x", DescriptionMaxLen+40)}
	assert.Len(t, long.TruncatedDescription(), DescriptionMaxLen)
}

func TestValidGeometry(t *testing.T) {
	tests := []struct {
		name   string
		coords []float64
		valid  bool
	}{
		{"point", []float64{7.62, 51.96}, true},
		{"nil", nil, false},
		{"short", []float64{7.62}, false},
		{"long", []float64{7.62, 51.96, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Feature{Coords: tt.coords}
			assert.Equal(t, tt.valid, f.ValidGeometry())
		})
	}
}

func TestValidCategoryAndStatus(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, ValidCategory(c))
	}
	assert.False(t, ValidCategory("graffiti"))

	for _, s := range Statuses() {
		assert.True(t, ValidStatus(s))
	}
	assert.False(t, ValidStatus("done"))
}
