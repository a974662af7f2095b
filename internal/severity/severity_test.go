package severity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Tiers(t *testing.T) {
	assert.Equal(t, TierMinor, Classify(1))
	assert.Equal(t, TierModerate, Classify(2))
	assert.Equal(t, TierModerate, Classify(3))
	assert.Equal(t, TierSevere, Classify(4))
	assert.Equal(t, TierSevere, Classify(5))
}

func TestClassify_OutOfRange(t *testing.T) {
	// Nominal range is 1-5, but the mapping is total over integers.
	assert.Equal(t, TierMinor, Classify(0))
	assert.Equal(t, TierMinor, Classify(-3))
	assert.Equal(t, TierSevere, Classify(99), "open-ended above 5")
}

func TestClassify_Boundaries(t *testing.T) {
	for s := -10; s <= 10; s++ {
		tier := Classify(s)
		switch {
		case s >= 4:
			assert.Equal(t, TierSevere, tier, "severity %d", s)
		case s >= 2:
			assert.Equal(t, TierModerate, tier, "severity %d", s)
		default:
			assert.Equal(t, TierMinor, tier, "severity %d", s)
		}
	}
}
