package crystal

import (
	"fmt"

	"mandexing/pkg/geometry"
)

// Reflection is one predicted reciprocal-lattice point.
type Reflection struct {
	HKL [3]int

	// Miller is the reciprocal-space position after cell, rotation and nudge.
	Miller geometry.Vec3

	// Screen is the beam-centred detector position, written by the detector.
	// Only meaningful when Projected is true.
	Screen    geometry.Vec3
	Projected bool

	// Weight is 0 on the Ewald sphere and 1 at the shell edge or beyond.
	Weight  float64
	OnImage bool
	Watched bool
}

// String formats the reflection as "h k l".
func (r Reflection) String() string {
	return fmt.Sprintf("%d %d %d", r.HKL[0], r.HKL[1], r.HKL[2])
}

// Count returns the number of reflections in the current generation.
func (c *Crystal) Count() int {
	return len(c.reflections)
}

// Reflection returns a copy of reflection i.
func (c *Crystal) Reflection(i int) (Reflection, error) {
	if i < 0 || i >= len(c.reflections) {
		return Reflection{}, fmt.Errorf("%w: %d of %d", ErrReflectionIndex, i, len(c.reflections))
	}
	return c.reflections[i], nil
}

// Reflections returns a copy of the current generation. Ids are slice indices.
func (c *Crystal) Reflections() []Reflection {
	out := make([]Reflection, len(c.reflections))
	copy(out, c.reflections)
	return out
}

// FindHKL returns the id of the reflection generated from (h, k, l).
func (c *Crystal) FindHKL(h, k, l int) (int, bool) {
	for i := range c.reflections {
		if c.reflections[i].HKL == [3]int{h, k, l} {
			return i, true
		}
	}
	return -1, false
}

// SetScreenPosition records the detector position of reflection i.
func (c *Crystal) SetScreenPosition(i int, pos geometry.Vec3, projected bool) error {
	if i < 0 || i >= len(c.reflections) {
		return fmt.Errorf("%w: %d of %d", ErrReflectionIndex, i, len(c.reflections))
	}
	c.reflections[i].Screen = pos
	c.reflections[i].Projected = projected
	return nil
}

// ToggleWatched flips the watched flag of reflection i.
func (c *Crystal) ToggleWatched(i int) error {
	if i < 0 || i >= len(c.reflections) {
		return fmt.Errorf("%w: %d of %d", ErrReflectionIndex, i, len(c.reflections))
	}
	c.reflections[i].Watched = !c.reflections[i].Watched
	return nil
}

// SetWatched sets the watched flag of reflection i.
func (c *Crystal) SetWatched(i int, watched bool) error {
	if i < 0 || i >= len(c.reflections) {
		return fmt.Errorf("%w: %d of %d", ErrReflectionIndex, i, len(c.reflections))
	}
	c.reflections[i].Watched = watched
	return nil
}

// ClearWatched clears every watched flag.
func (c *Crystal) ClearWatched() {
	for i := range c.reflections {
		c.reflections[i].Watched = false
	}
}

// WatchedCount returns the number of watched reflections.
func (c *Crystal) WatchedCount() int {
	n := 0
	for i := range c.reflections {
		if c.reflections[i].Watched {
			n++
		}
	}
	return n
}
