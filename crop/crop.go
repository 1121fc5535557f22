// Package crop holds the axis-aligned sub-volume that the compositing
// shader keeps at full brightness.
package crop

import (
	"errors"
	"fmt"
	"math"
)

// Unset is the bound value that disables cropping. It is also what the
// shader receives for every bound when no crop is active.
const Unset = -1

// ErrBounds is returned for crop bounds outside [0,1], reversed bounds, or
// a partially unset set.
var ErrBounds = errors.New("crop: invalid bounds")

// Coords are normalized volume-space bounds. Either all six are Unset or
// all six lie in [0,1] with start <= end.
type Coords struct {
	StartX, EndX float32
	StartY, EndY float32
	StartZ, EndZ float32
}

// None returns coordinates with cropping disabled.
func None() Coords {
	return Coords{Unset, Unset, Unset, Unset, Unset, Unset}
}

// NewCoords validates and returns a crop region.
func NewCoords(startX, endX, startY, endY, startZ, endZ float32) (Coords, error) {
	c := Coords{startX, endX, startY, endY, startZ, endZ}
	return c, c.Validate()
}

// Validate enforces the all-or-nothing Unset rule and range of each bound.
func (c Coords) Validate() error {
	v := c.Uniforms()
	var unset int
	for i, f := range v {
		if math.IsNaN(float64(f)) {
			return fmt.Errorf("%w: bound %v is NaN", ErrBounds, i)
		}
		if f == Unset {
			unset++
		}
	}
	switch unset {
	case 0:
	case len(v):
		return nil
	default:
		return fmt.Errorf("%w: %v of 6 bounds unset", ErrBounds, unset)
	}

	for i := 0; i < len(v); i += 2 {
		start, end := v[i], v[i+1]
		if start < 0 || end > 1 || start > end {
			return fmt.Errorf("%w: %v axis [%v,%v]", ErrBounds, "XYZ"[i/2:i/2+1], start, end)
		}
	}
	return nil
}

// Active reports whether the coordinates describe a crop.
func (c Coords) Active() bool {
	return c.StartX != Unset
}

// Uniforms returns the bounds in shader push order:
// startX, endX, startY, endY, startZ, endZ.
func (c Coords) Uniforms() [6]float32 {
	return [6]float32{c.StartX, c.EndX, c.StartY, c.EndY, c.StartZ, c.EndZ}
}

// Contains reports whether the normalized point lies inside the crop
// region, matching the shader's test. Every point is inside an inactive
// crop.
func (c Coords) Contains(x, y, z float32) bool {
	if !c.Active() {
		return true
	}
	return x >= c.StartX && x <= c.EndX &&
		y >= c.StartY && y <= c.EndY &&
		z >= c.StartZ && z <= c.EndZ
}

func (c Coords) String() string {
	if !c.Active() {
		return "none"
	}
	return fmt.Sprintf("x[%v,%v] y[%v,%v] z[%v,%v]", c.StartX, c.EndX, c.StartY, c.EndY, c.StartZ, c.EndZ)
}

// DefaultOutLevel is the brightness of voxels outside an active crop.
const DefaultOutLevel = 0.0

// Set is the crop state of one view: the coordinates being edited, the
// out-of-crop brightness, and the crops the user has accepted so far.
type Set struct {
	current  Coords
	outLevel float32
	accepted []Coords
}

// NewSet returns a set with cropping disabled.
func NewSet() *Set {
	return &Set{current: None(), outLevel: DefaultOutLevel}
}

// Coords returns the current coordinates.
func (s *Set) Coords() Coords { return s.current }

// IsActive reports whether a crop is currently applied.
func (s *Set) IsActive() bool { return s.current.Active() }

// SetCoords replaces all six bounds at once. Invalid coordinates leave the
// set unchanged.
func (s *Set) SetCoords(c Coords) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.current = c
	return nil
}

// Clear disables cropping. Accepted crops are kept.
func (s *Set) Clear() {
	s.current = None()
}

// OutLevel returns the out-of-crop brightness.
func (s *Set) OutLevel() float32 { return s.outLevel }

// SetOutLevel sets the out-of-crop brightness, which must be in [0,1].
func (s *Set) SetOutLevel(level float32) error {
	if math.IsNaN(float64(level)) || level < 0 || level > 1 {
		return fmt.Errorf("%w: out level %v", ErrBounds, level)
	}
	s.outLevel = level
	return nil
}

// Accept records the current crop in the history. Accepting an inactive
// crop is a no-op that returns false.
func (s *Set) Accept() bool {
	if !s.current.Active() {
		return false
	}
	s.accepted = append(s.accepted, s.current)
	return true
}

// Accepted returns the accepted crops, oldest first.
func (s *Set) Accepted() []Coords {
	return append([]Coords(nil), s.accepted...)
}
