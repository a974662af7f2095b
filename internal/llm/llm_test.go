package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	system, user := buildPrompt("streetlight flickering near the station")

	assert.Contains(t, system, "JSON")
	assert.Contains(t, system, `"broken_light"`)
	assert.Contains(t, system, `"roadwork"`)
	assert.Contains(t, system, `"blockage"`)
	assert.Contains(t, system, `"severity"`)

	assert.Contains(t, user, "streetlight flickering near the station")
}
