package voxels

import (
	"fmt"
	"image"

	"github.com/gmlewis/volrender/slicer"
)

// Components returns the number of 6-connected pieces that structure index
// is split into. A well formed anatomical structure has exactly one.
func Components(s Slicer, index uint32) (int, error) {
	l := &labeler{parent: []int{0}}
	if err := s.RenderMaskZSlices(index, l, slicer.MinToMax); err != nil {
		return 0, fmt.Errorf("RenderMaskZSlices: %w", err)
	}
	var n int
	for label := 1; label < len(l.parent); label++ {
		if l.find(label) == label {
			n++
		}
	}
	return n, nil
}

// labeler is a two-pass connected component labeler that keeps only the
// labels of the previous slice, with union-find equivalences.
type labeler struct {
	parent []int // parent[0] is unused
	prev   []int
}

// labeler implements the ZSliceProcessor interface.
var _ slicer.ZSliceProcessor = &labeler{}

func (l *labeler) ProcessZSlice(sliceNum int, z, voxelRadius float32, img image.Image) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	cur := make([]int, w*h)
	for v := 0; v < h; v++ {
		for u := 0; u < w; u++ {
			if r, _, _, _ := img.At(b.Min.X+u, b.Min.Y+v).RGBA(); r == 0 {
				continue
			}
			i := v*w + u
			var neighbors [3]int
			if u > 0 {
				neighbors[0] = cur[i-1]
			}
			if v > 0 {
				neighbors[1] = cur[i-w]
			}
			if len(l.prev) == len(cur) {
				neighbors[2] = l.prev[i]
			}

			label := 0
			for _, n := range neighbors {
				if n == 0 {
					continue
				}
				if label == 0 {
					label = n
					continue
				}
				l.union(label, n)
			}
			if label == 0 {
				label = len(l.parent)
				l.parent = append(l.parent, label)
			}
			cur[i] = label
		}
	}
	l.prev = cur
	return nil
}

func (l *labeler) find(x int) int {
	for l.parent[x] != x {
		l.parent[x] = l.parent[l.parent[x]]
		x = l.parent[x]
	}
	return x
}

func (l *labeler) union(a, b int) {
	ra, rb := l.find(a), l.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		l.parent[rb] = ra
	} else {
		l.parent[ra] = rb
	}
}
