package renderer

import (
	"fmt"

	"github.com/spaghettifunk/foveal/engine/core"
	"github.com/spaghettifunk/foveal/engine/math"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// DefaultPresentModes is the preference order used when the caller has no
// opinion: triple buffering first, immediate last.
var DefaultPresentModes = []metadata.PresentMode{
	metadata.PresentModeMailbox,
	metadata.PresentModeFifoRelaxed,
	metadata.PresentModeFifo,
	metadata.PresentModeImmediate,
}

// PresentationSurface owns the current swapchain generation. A swapchain
// must be destroyed before its replacement is created.
type PresentationSurface struct {
	backend SwapchainBackend

	preferSRGB      bool
	presentModes    []metadata.PresentMode
	requestedImages uint32
	// Reported by the surface when the live generation was created.
	supportedModes []metadata.PresentMode

	state      *metadata.SwapchainState
	generation uint64
}

func NewPresentationSurface(backend SwapchainBackend, preferSRGB bool, presentModes []metadata.PresentMode, requestedImages uint32) *PresentationSurface {
	if len(presentModes) == 0 {
		presentModes = DefaultPresentModes
	}
	return &PresentationSurface{
		backend:         backend,
		preferSRGB:      preferSRGB,
		presentModes:    presentModes,
		requestedImages: requestedImages,
	}
}

// SetPreferences changes what the next Create will ask for. The live
// swapchain is untouched until it is recreated.
func (s *PresentationSurface) SetPreferences(preferSRGB bool, presentModes []metadata.PresentMode, requestedImages uint32) {
	if len(presentModes) == 0 {
		presentModes = DefaultPresentModes
	}
	s.preferSRGB = preferSRGB
	s.presentModes = presentModes
	s.requestedImages = requestedImages
}

// Create builds a new swapchain for the given window extent.
func (s *PresentationSurface) Create(window metadata.Extent) (*metadata.SwapchainState, error) {
	if s.state != nil {
		return nil, core.Errorf("swapchain generation %d must be destroyed before it is recreated", s.state.Generation)
	}

	support, err := s.backend.QuerySurfaceSupport()
	if err != nil {
		return nil, err
	}

	format, err := ChooseSurfaceFormat(support.Formats, s.preferSRGB)
	if err != nil {
		return nil, err
	}
	mode, err := ChoosePresentMode(support.PresentModes, s.presentModes)
	if err != nil {
		return nil, err
	}
	s.supportedModes = support.PresentModes
	extent := ChooseExtent(support.Capabilities, window)
	if extent.IsZero() {
		return nil, core.Errorf("cannot create a swapchain with extent %s", extent)
	}
	imageCount := ChooseImageCount(support.Capabilities, s.requestedImages)

	state, err := s.backend.CreateSwapchain(metadata.SwapchainConfig{
		Format:      format,
		PresentMode: mode,
		Extent:      extent,
		ImageCount:  imageCount,
	})
	if err != nil {
		return nil, err
	}

	s.generation++
	state.Generation = s.generation
	s.state = state

	core.LogInfo("swapchain generation %d created: %s %s, %s, %d images", state.Generation, state.Extent, state.Format.Format, state.PresentMode, state.ImageCount)
	return state, nil
}

// State returns the live swapchain or nil.
func (s *PresentationSurface) State() *metadata.SwapchainState {
	return s.state
}

// AcquireNextImage signals the semaphore once the returned image is ready to
// be rendered to.
func (s *PresentationSurface) AcquireNextImage(signal *metadata.Semaphore) (uint32, metadata.Status, error) {
	if s.state == nil {
		return 0, metadata.StatusOutOfDate, nil
	}
	index, status, err := s.backend.AcquireNextImage(s.state, signal)
	if err != nil {
		return 0, status, err
	}
	if status != metadata.StatusOutOfDate && index >= s.state.ImageCount {
		return 0, status, core.NewFatalError("vkAcquireNextImageKHR", fmt.Sprintf("image index %d out of range [0, %d)", index, s.state.ImageCount))
	}
	return index, status, nil
}

func (s *PresentationSurface) Present(imageIndex uint32, wait []*metadata.Semaphore) (metadata.Status, error) {
	if s.state == nil {
		return metadata.StatusOutOfDate, nil
	}
	return s.backend.Present(s.state, imageIndex, wait)
}

// Destroy releases the image views and then the swapchain. Calling it with
// no live swapchain is a no-op.
func (s *PresentationSurface) Destroy() error {
	if s.state == nil {
		return nil
	}
	state := s.state
	s.state = nil
	return s.backend.DestroySwapchain(state)
}

// ImageIndexForFrame maps a frame, optionally offset, to one of the
// swapchain images. Negative offsets address previous frames.
func (s *PresentationSurface) ImageIndexForFrame(frame uint64, offset int64) uint32 {
	if s.state == nil || s.state.ImageCount == 0 {
		return 0
	}
	return wrapIndex(frame, offset, s.state.ImageCount)
}

func wrapIndex(frame uint64, offset int64, count uint32) uint32 {
	n := int64(count)
	idx := (int64(frame%uint64(count)) + offset%n) % n
	if idx < 0 {
		idx += n
	}
	return uint32(idx)
}

// ChooseSurfaceFormat picks the first format matching the sRGB preference.
// A surface reporting only an undefined format accepts anything.
func ChooseSurfaceFormat(formats []metadata.SurfaceFormat, preferSRGB bool) (metadata.SurfaceFormat, error) {
	if len(formats) == 0 {
		return metadata.SurfaceFormat{}, core.MarkFatal(core.ErrNoSurfaceFormat, "surface format selection")
	}
	if len(formats) == 1 && formats[0].Format == metadata.FormatUndefined {
		return metadata.SurfaceFormat{
			Format:     metadata.FormatB8G8R8A8Unorm,
			ColorSpace: metadata.ColorSpaceSrgbNonlinear,
		}, nil
	}
	for _, f := range formats {
		if f.Format.IsSRGB() == preferSRGB {
			return f, nil
		}
	}
	core.LogWarn("no surface format with srgb=%t, falling back to %s", preferSRGB, formats[0].Format)
	return formats[0], nil
}

// ChoosePresentMode returns the first preferred mode the surface supports.
func ChoosePresentMode(supported []metadata.PresentMode, preferences []metadata.PresentMode) (metadata.PresentMode, error) {
	if len(supported) == 0 {
		return 0, core.MarkFatal(core.ErrNoPresentMode, "present mode selection")
	}
	for _, want := range preferences {
		for _, have := range supported {
			if want == have {
				return want, nil
			}
		}
	}
	core.LogWarn("none of the requested present modes %v is supported, falling back to %s", preferences, supported[0])
	return supported[0], nil
}

// ChooseExtent uses the surface extent when the surface dictates one,
// otherwise the window extent clamped to what the surface allows.
func ChooseExtent(caps metadata.SurfaceCapabilities, window metadata.Extent) metadata.Extent {
	if caps.CurrentExtent.Width != metadata.UndefinedExtent {
		return caps.CurrentExtent
	}
	return metadata.Extent{
		Width:  math.Clamp(window.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(window.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ChooseImageCount clamps the requested count to [min+1, max]. A zero
// request means min+1 and a zero max means unbounded.
func ChooseImageCount(caps metadata.SurfaceCapabilities, requested uint32) uint32 {
	count := math.Max(requested, caps.MinImageCount+1)
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// NextPresentMode returns the supported mode that follows current in
// DefaultPresentModes, wrapping around.
func (s *PresentationSurface) NextPresentMode(current metadata.PresentMode) metadata.PresentMode {
	start := 0
	for i, m := range DefaultPresentModes {
		if m == current {
			start = i + 1
			break
		}
	}
	for i := 0; i < len(DefaultPresentModes); i++ {
		candidate := DefaultPresentModes[(start+i)%len(DefaultPresentModes)]
		for _, have := range s.supportedModes {
			if have == candidate {
				return candidate
			}
		}
	}
	return current
}
