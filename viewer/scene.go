package viewer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/volrender/config"
	"github.com/gmlewis/volrender/crop"
	"github.com/gmlewis/volrender/internal/gpu"
	"github.com/gmlewis/volrender/ktx"
	"github.com/gmlewis/volrender/loader"
	"github.com/gmlewis/volrender/mask"
	"github.com/gmlewis/volrender/shader"
	"github.com/gmlewis/volrender/slicer"
	"github.com/gmlewis/volrender/texture"
)

type mesh struct {
	vao   uint32
	count int32
}

// Scene owns every GPU resource of one view. It must only be used on the
// rendering thread.
type Scene struct {
	Volume  *shader.VolumeComposite
	Overlay *shader.Overlay
	Camera  *Camera
	Tracker *mask.Tracker
	Crop    *crop.Set

	signal, mask, colorMap *texture.Mediator
	maskIDs                []int64
	extent                 mgl32.Vec3
	slices, box            mesh
}

// NewScene links the programs on g and applies the render defaults of cfg.
func NewScene(g gpu.GL, cfg *config.Config, aspect float32) (*Scene, error) {
	vol, err := shader.NewVolumeComposite(g)
	if err != nil {
		return nil, err
	}
	overlay, err := shader.NewOverlay(g)
	if err != nil {
		vol.Delete()
		return nil, err
	}

	s := &Scene{
		Volume:   vol,
		Overlay:  overlay,
		Camera:   NewCamera(aspect),
		Tracker:  cfg.NewTracker(),
		Crop:     crop.NewSet(),
		signal:   texture.New(g, texture.Signal),
		mask:     texture.New(g, texture.Mask),
		colorMap: texture.New(g, texture.ColorMap),
		extent:   mgl32.Vec3{1, 1, 1},
	}
	if err := s.Crop.SetOutLevel(cfg.Render.CropOutLevel); err != nil {
		s.Delete()
		return nil, err
	}
	vol.Gamma = cfg.Render.Gamma
	vol.WhiteBackground = cfg.Render.WhiteBackground
	vol.Crop = s.Crop
	vol.Signal, vol.Mask, vol.ColorMap = s.signal, s.mask, s.colorMap

	overlay.Color0 = mgl32.Vec4{0.6, 0.6, 0.6, 1}
	overlay.Color1 = mgl32.Vec4{1, 1, 0.4, 1}
	return s, nil
}

// SetGeometry records the vertex arrays built from SliceStack and
// BoxLines.
func (s *Scene) SetGeometry(slicesVAO uint32, sliceVertices int32, boxVAO uint32, boxVertices int32) {
	s.slices = mesh{vao: slicesVAO, count: sliceVertices}
	s.box = mesh{vao: boxVAO, count: boxVertices}
}

// SetSignal replaces the signal volume.
func (s *Scene) SetSignal(v *loader.Volume) error {
	s.signal.Release()
	if err := s.signal.UploadVolume(v.Header, v.Levels); err != nil {
		return fmt.Errorf("%v: %w", v.ID, err)
	}
	s.extent = Extent(v.Header.LevelDims(0))
	return nil
}

// SetMask replaces the mask volume and assigns a color table index to
// every structure it contains. Structures keep the index stored in the
// file whenever the table has room for it; otherwise the uploaded voxels
// are rewritten to the index the structure received.
func (s *Scene) SetMask(v *loader.Volume) error {
	vol, err := slicer.New(v.Header, v.Levels, 0)
	if err != nil {
		return fmt.Errorf("%v: %w", v.ID, err)
	}
	for _, id := range s.maskIDs {
		s.Tracker.Release(id)
	}
	s.maskIDs = s.maskIDs[:0]

	lut := map[uint32]uint32{}
	moved := false
	for _, idx := range vol.Indices() {
		id := int64(idx)
		got, err := s.Tracker.AssignPreferred(id, int(idx))
		if errors.Is(err, mask.ErrCapacity) {
			log.Warnf("%v: structure %v dropped: %v", v.ID, idx, err)
			lut[idx] = 0
			moved = true
			continue
		}
		if err != nil {
			return err
		}
		if got != int(idx) {
			log.Warnf("%v: structure %v moved to color index %v", v.ID, idx, got)
			moved = true
		}
		lut[idx] = uint32(got)
		s.maskIDs = append(s.maskIDs, id)
	}

	levels := v.Levels
	if moved {
		levels = remapLevels(v.Header, v.Levels, lut)
	}
	s.mask.Release()
	if err := s.mask.UploadVolume(v.Header, levels); err != nil {
		return fmt.Errorf("%v: %w", v.ID, err)
	}
	return s.uploadTable()
}

// remapLevels returns copies of levels with every voxel value replaced by
// its entry in lut. Values missing from lut become background.
func remapLevels(h *ktx.Header, levels []ktx.Level, lut map[uint32]uint32) []ktx.Level {
	order := h.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}
	size := int(h.GLTypeSize)
	if size != 2 && size != 4 {
		size = 1
	}
	out := make([]ktx.Level, len(levels))
	for i, level := range levels {
		data := make([]byte, len(level.Data))
		for off := 0; off+size <= len(data); off += size {
			switch size {
			case 2:
				order.PutUint16(data[off:], uint16(lut[uint32(order.Uint16(level.Data[off:]))]))
			case 4:
				order.PutUint32(data[off:], lut[order.Uint32(level.Data[off:])])
			default:
				data[off] = uint8(lut[uint32(level.Data[off])])
			}
		}
		out[i] = ktx.NewLevel(data)
	}
	return out
}

// Sync pulls colors and visibility from src and refreshes the color table.
func (s *Scene) Sync(src mask.ColorSource) error {
	s.Tracker.Sync(src)
	return s.uploadTable()
}

func (s *Scene) uploadTable() error {
	s.colorMap.Release()
	return s.colorMap.UploadColorMap(s.Tracker.Table(), mask.TableWidth)
}

// Draw renders the volume, if one is loaded, and its bounding box.
func (s *Scene) Draw() error {
	if s.signal.Uploaded() {
		s.Volume.MVP = s.Camera.SliceMVP()
		s.Volume.TextureMVP = s.Camera.TextureMVP(s.extent)
		if err := s.Volume.Render(s.slices.vao, gpu.Triangles, s.slices.count); err != nil {
			return err
		}
	}
	s.Overlay.MVP = s.Camera.BoxMVP(s.extent)
	return s.Overlay.Render(s.box.vao, gpu.Lines, s.box.count)
}

// ToggleCrop switches between no crop and the central half of the volume.
func (s *Scene) ToggleCrop() error {
	if s.Crop.IsActive() {
		s.Crop.Clear()
		return nil
	}
	c, err := crop.NewCoords(0.25, 0.75, 0.25, 0.75, 0.25, 0.75)
	if err != nil {
		return err
	}
	return s.Crop.SetCoords(c)
}

// Delete frees every texture and program.
func (s *Scene) Delete() {
	s.signal.Release()
	s.mask.Release()
	s.colorMap.Release()
	s.Volume.Delete()
	s.Overlay.Delete()
}
