package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConverterBoundaries(t *testing.T) {
	c := NewConverter(5)

	assert.Equal(t, 0, c.Convert(0))
	assert.Equal(t, 5, c.Convert(10))
}

func TestConverterHalfUpRounding(t *testing.T) {
	c := NewConverter(5)

	// 7 * 0.5 = 3.5 rounds up, not to even.
	assert.Equal(t, 4, c.Convert(7))
	assert.Equal(t, 1, c.Convert(1)) // 0.5 rounds up
	assert.Equal(t, 3, c.Convert(5)) // 2.5 rounds up
}

func TestConverterMonotonic(t *testing.T) {
	c := NewConverter(5)

	prev := c.Convert(0)
	for rating := 1; rating <= 10; rating++ {
		cur := c.Convert(rating)
		assert.GreaterOrEqual(t, cur, prev, "conversion must be monotonic at %d", rating)
		prev = cur
	}
}

func TestConverterClampsOutOfRange(t *testing.T) {
	c := NewConverter(5)

	assert.Equal(t, 0, c.Convert(-3))
	assert.Equal(t, 5, c.Convert(12))
}

func TestConverterIdentityScale(t *testing.T) {
	c := NewConverter(10)

	for rating := 0; rating <= 10; rating++ {
		assert.Equal(t, rating, c.Convert(rating))
	}
}

func TestConverterInvalidMaxFallsBack(t *testing.T) {
	c := NewConverter(0)

	assert.Equal(t, 10, c.Max())
	assert.Equal(t, 7, c.Convert(7))
}
