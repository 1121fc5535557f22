// Package viewer shows a signal volume, optionally colored by a mask
// volume, in a glfw window.
package viewer

import (
	"context"
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	log "github.com/sirupsen/logrus"

	"github.com/gmlewis/volrender/config"
	"github.com/gmlewis/volrender/internal/gpu/glnative"
	"github.com/gmlewis/volrender/loader"
	"github.com/gmlewis/volrender/mask"
)

// numSlices is the depth of the view-aligned slice stack.
const numSlices = 256

func init() {
	// GLFW event handling must run on the main OS thread.
	runtime.LockOSThread()
}

// Options selects what Run shows.
type Options struct {
	SignalID string
	// MaskID may be empty.
	MaskID string
	// Colors, if set, supplies structure colors and visibility.
	Colors mask.ColorSource
}

// Run opens a window and renders until it is closed or ctx is done. The
// volumes are loaded in the background; the window shows the bounding box
// until they arrive. Run must be called from the main goroutine.
func Run(ctx context.Context, cfg *config.Config, l *loader.Loader, opts Options) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw.Init: %w", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		return fmt.Errorf("glfw.CreateWindow: %w", err)
	}
	defer win.Destroy()
	win.MakeContextCurrent()
	glfw.SwapInterval(1)

	g, err := glnative.Init()
	if err != nil {
		return err
	}
	log.Infof("OpenGL version %v", glnative.Version())
	glnative.EnableBlending()

	scene, err := NewScene(g, cfg, float32(cfg.Window.Width)/float32(cfg.Window.Height))
	if err != nil {
		return err
	}
	defer scene.Delete()

	slices, box := SliceStack(numSlices), BoxLines()
	scene.SetGeometry(
		glnative.NewVertexArray(slices, SliceStackSizes...), vertexCount(slices, SliceStackSizes),
		glnative.NewVertexArray(box, BoxLinesSizes...), vertexCount(box, BoxLinesSizes),
	)

	win.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action == glfw.Release {
			return
		}
		if key == glfw.KeyEscape {
			w.SetShouldClose(true)
			return
		}
		handleKey(scene, key)
	})
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		glnative.Viewport(width, height)
		if height > 0 {
			scene.Camera.Aspect = float32(width) / float32(height)
		}
	})
	fbw, fbh := win.GetFramebufferSize()
	glnative.Viewport(fbw, fbh)

	ids := []string{opts.SignalID}
	if opts.MaskID != "" {
		ids = append(ids, opts.MaskID)
	}
	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := l.Start(loadCtx, ids...)

	for !win.ShouldClose() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if ok {
				if err := apply(scene, res, opts.Colors); err != nil {
					return err
				}
			}
			results = nil
		default:
		}

		if scene.Volume.WhiteBackground {
			glnative.Clear(1, 1, 1, 1)
		} else {
			glnative.Clear(0, 0, 0, 1)
		}
		if err := scene.Draw(); err != nil {
			return err
		}
		win.SwapBuffers()
		glfw.PollEvents()
	}
	return nil
}

// apply uploads a finished background load. A failed load ends the
// viewer, since partial volumes are never shown.
func apply(scene *Scene, res loader.Result, colors mask.ColorSource) error {
	if res.Err != nil {
		return res.Err
	}
	if err := scene.SetSignal(res.Volumes[0]); err != nil {
		return err
	}
	if len(res.Volumes) < 2 {
		return nil
	}
	if err := scene.SetMask(res.Volumes[1]); err != nil {
		return err
	}
	log.Infof("%v: %v structures", res.Volumes[1].ID, scene.Tracker.Len())
	if colors != nil {
		return scene.Sync(colors)
	}
	return nil
}

const rotateStep = 0.05

// handleKey applies one key press to the scene.
func handleKey(scene *Scene, key glfw.Key) {
	v := scene.Volume
	switch key {
	case glfw.KeyLeft:
		scene.Camera.Rotate(-rotateStep, 0)
	case glfw.KeyRight:
		scene.Camera.Rotate(rotateStep, 0)
	case glfw.KeyUp:
		scene.Camera.Rotate(0, -rotateStep)
	case glfw.KeyDown:
		scene.Camera.Rotate(0, rotateStep)
	case glfw.KeyEqual:
		v.Gamma += 0.1
	case glfw.KeyMinus:
		if v.Gamma > 0.15 {
			v.Gamma -= 0.1
		}
	case glfw.KeyB:
		v.WhiteBackground = !v.WhiteBackground
	case glfw.KeyC:
		if err := scene.ToggleCrop(); err != nil {
			log.Errorf("crop: %v", err)
		}
	case glfw.KeyA:
		if scene.Crop.Accept() {
			log.Infof("accepted crop %v", scene.Crop.Coords())
		}
	}
}
