package sync

// Converter rescales ratings from the 0-10 source scale to a 0-N destination
// scale. Pure and total; callers validate the input range.
type Converter struct {
	max int
}

// NewConverter creates a converter targeting a [0, max] destination scale.
// A non-positive max falls back to the source scale itself.
func NewConverter(max int) Converter {
	if max <= 0 {
		max = 10
	}
	return Converter{max: max}
}

// Max returns the destination scale maximum.
func (c Converter) Max() int {
	return c.max
}

// Convert maps a source rating to the destination scale using half-up
// rounding, clamped to [0, max].
func (c Converter) Convert(rating int) int {
	if rating < 0 {
		return 0
	}
	converted := (rating*c.max + 5) / 10
	if converted > c.max {
		return c.max
	}
	return converted
}
