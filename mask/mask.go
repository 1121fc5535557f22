// Package mask assigns the small integer indices that identify anatomical
// structures inside a mask volume, and keeps the color lookup table that
// the compositing shader addresses by those indices.
package mask

import (
	"errors"
	"fmt"
	"image/color"
	"sort"
	"sync"
)

// ErrCapacity is returned when every row of the color lookup table is in
// use.
var ErrCapacity = errors.New("mask: color table is full")

// TableWidth is the number of texels per row of the packed color lookup
// texture.
const TableWidth = 256

// Flag bits stored in the alpha channel of each color table texel.
const (
	FlagVisible     = 1 << 0
	FlagCompartment = 1 << 1
	FlagInherit     = 1 << 2
)

// RenderMode selects how voxels of a structure are composited.
type RenderMode int

const (
	Normal RenderMode = iota
	Compartment
	NonRendering
)

func (m RenderMode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Compartment:
		return "compartment"
	case NonRendering:
		return "non-rendering"
	}
	return fmt.Sprintf("RenderMode(%d)", int(m))
}

// Entry is one renderable structure's row in the color table.
type Entry struct {
	Index       int
	StructureID int64
	Color       color.RGBA
	// Inherit means the structure takes its color from the signal.
	Inherit bool
	Mode    RenderMode
}

// texel packs the entry as RGBA with flag bits in alpha.
func (e *Entry) texel() [4]byte {
	var flags byte
	switch e.Mode {
	case Normal:
		flags |= FlagVisible
	case Compartment:
		flags |= FlagVisible | FlagCompartment
	}
	if e.Inherit {
		flags |= FlagInherit
		return [4]byte{0, 0, 0, flags}
	}
	return [4]byte{e.Color.R, e.Color.G, e.Color.B, flags}
}

// ColorSource is the external color/visibility assignment table.
type ColorSource interface {
	// ColorOf returns the user-chosen color, or false for automatic.
	ColorOf(structureID int64) (color.RGBA, bool)
	Visible(structureID int64) bool
}

// Tracker hands out dense, stable indices in [1, rows). Index 0 is the
// unlabeled background. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	rows    int
	next    int   // lowest never-assigned index
	free    []int // released indices below next, sorted ascending
	byID    map[int64]int
	entries map[int]*Entry
}

// NewTracker returns a tracker for a color table of the given row count.
func NewTracker(rows int) *Tracker {
	if rows < 2 {
		rows = 2
	}
	return &Tracker{
		rows:    rows,
		next:    1,
		byID:    map[int64]int{},
		entries: map[int]*Entry{},
	}
}

// Capacity returns the number of structures the table can hold.
func (t *Tracker) Capacity() int {
	return t.rows - 1
}

// Len returns the number of assigned structures.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Assign returns the index of structureID, assigning the lowest free
// index if it has none.
func (t *Tracker) Assign(structureID int64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.byID[structureID]; ok {
		return idx, nil
	}
	return t.assignLowest(structureID)
}

// AssignPreferred is like Assign but takes preferred (for example an index
// already baked into a mask file) when it is in range and free. A
// collision falls back to the lowest free index.
func (t *Tracker) AssignPreferred(structureID int64, preferred int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.byID[structureID]; ok {
		return idx, nil
	}
	if preferred < 1 || preferred >= t.rows {
		return t.assignLowest(structureID)
	}
	if _, taken := t.entries[preferred]; taken {
		return t.assignLowest(structureID)
	}

	if preferred >= t.next {
		for i := t.next; i < preferred; i++ {
			t.free = append(t.free, i)
		}
		t.next = preferred + 1
	} else {
		t.removeFree(preferred)
	}
	t.add(structureID, preferred)
	return preferred, nil
}

func (t *Tracker) assignLowest(structureID int64) (int, error) {
	var idx int
	switch {
	case len(t.free) > 0:
		idx = t.free[0]
		t.free = t.free[1:]
	case t.next < t.rows:
		idx = t.next
		t.next++
	default:
		return 0, fmt.Errorf("%w: %v structures assigned", ErrCapacity, len(t.entries))
	}
	t.add(structureID, idx)
	return idx, nil
}

func (t *Tracker) add(structureID int64, idx int) {
	t.byID[structureID] = idx
	t.entries[idx] = &Entry{Index: idx, StructureID: structureID, Inherit: true, Mode: Normal}
}

func (t *Tracker) removeFree(idx int) {
	i := sort.SearchInts(t.free, idx)
	if i < len(t.free) && t.free[i] == idx {
		t.free = append(t.free[:i], t.free[i+1:]...)
	}
}

// Release frees the index held by structureID. Releasing an unknown
// structure is a no-op.
func (t *Tracker) Release(structureID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.byID[structureID]
	if !ok {
		return
	}
	delete(t.byID, structureID)
	delete(t.entries, idx)

	if idx == t.next-1 {
		// Shrink the high-water mark so trailing free indices collapse.
		t.next--
		for len(t.free) > 0 && t.free[len(t.free)-1] == t.next-1 {
			t.free = t.free[:len(t.free)-1]
			t.next--
		}
		return
	}
	i := sort.SearchInts(t.free, idx)
	t.free = append(t.free, 0)
	copy(t.free[i+1:], t.free[i:])
	t.free[i] = idx
}

// IndexOf returns the index assigned to structureID.
func (t *Tracker) IndexOf(structureID int64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.byID[structureID]
	return idx, ok
}

// ColorFor returns a copy of the entry at index.
func (t *Tracker) ColorFor(index int) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[index]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// SetColor gives structureID an explicit color.
func (t *Tracker) SetColor(structureID int64, c color.RGBA) error {
	return t.update(structureID, func(e *Entry) {
		e.Color = c
		e.Inherit = false
	})
}

// SetInherit makes structureID take its color from the signal.
func (t *Tracker) SetInherit(structureID int64) error {
	return t.update(structureID, func(e *Entry) {
		e.Color = color.RGBA{}
		e.Inherit = true
	})
}

// SetMode changes how structureID is composited.
func (t *Tracker) SetMode(structureID int64, mode RenderMode) error {
	return t.update(structureID, func(e *Entry) { e.Mode = mode })
}

func (t *Tracker) update(structureID int64, f func(e *Entry)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.byID[structureID]
	if !ok {
		return fmt.Errorf("mask: structure %v has no index", structureID)
	}
	f(t.entries[idx])
	return nil
}

// Sync refreshes colors and visibility of every assigned structure from
// src. Hidden structures become NonRendering; a hidden structure that is
// shown again returns to Normal, while Compartment is kept.
func (t *Tracker) Sync(src ColorSource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, idx := range t.byID {
		e := t.entries[idx]
		if c, ok := src.ColorOf(id); ok {
			e.Color, e.Inherit = c, false
		} else {
			e.Color, e.Inherit = color.RGBA{}, true
		}
		switch visible := src.Visible(id); {
		case !visible:
			e.Mode = NonRendering
		case e.Mode == NonRendering:
			e.Mode = Normal
		}
	}
}

// TableRows returns the number of TableWidth-texel rows in Table.
func (t *Tracker) TableRows() int {
	return (t.rows + TableWidth - 1) / TableWidth
}

// Table packs the color lookup table as RGBA8 texels, TableWidth texels
// per row. Texel i describes mask index i; unassigned indices are zero
// (not visible).
func (t *Tracker) Table() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, t.TableRows()*TableWidth*4)
	for idx, e := range t.entries {
		texel := e.texel()
		copy(out[idx*4:], texel[:])
	}
	return out
}
