package metadata

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// UndefinedExtent is reported by surfaces whose size is decided by the
// swapchain instead of the window.
const UndefinedExtent uint32 = 0xFFFFFFFF

type Extent struct {
	Width  uint32
	Height uint32
}

// IsZero reports a minimized window.
func (e Extent) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}

// ImageFormat values are the Vulkan format numbers.
type ImageFormat uint32

const (
	FormatUndefined       ImageFormat = 0
	FormatR8Uint          ImageFormat = 13
	FormatR8G8B8A8Unorm   ImageFormat = 37
	FormatR8G8B8A8Srgb    ImageFormat = 43
	FormatB8G8R8A8Unorm   ImageFormat = 44
	FormatB8G8R8A8Srgb    ImageFormat = 50
	FormatD24UnormS8Uint  ImageFormat = 129
	FormatD32Sfloat       ImageFormat = 126
	FormatD32SfloatS8Uint ImageFormat = 130
)

// IsSRGB reports formats whose color attachment writes are sRGB encoded.
func (f ImageFormat) IsSRGB() bool {
	switch f {
	case FormatR8G8B8A8Srgb, FormatB8G8R8A8Srgb:
		return true
	}
	return false
}

func (f ImageFormat) String() string {
	switch f {
	case FormatUndefined:
		return "UNDEFINED"
	case FormatR8Uint:
		return "R8_UINT"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatR8G8B8A8Srgb:
		return "R8G8B8A8_SRGB"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatB8G8R8A8Srgb:
		return "B8G8R8A8_SRGB"
	case FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	case FormatD32Sfloat:
		return "D32_SFLOAT"
	case FormatD32SfloatS8Uint:
		return "D32_SFLOAT_S8_UINT"
	}
	return fmt.Sprintf("FORMAT(%d)", uint32(f))
}

type ColorSpace uint32

const (
	ColorSpaceSrgbNonlinear ColorSpace = 0
)

type SurfaceFormat struct {
	Format     ImageFormat
	ColorSpace ColorSpace
}

// PresentMode values are the Vulkan present mode numbers.
type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return fmt.Sprintf("present_mode(%d)", uint32(m))
}

// ParsePresentMode accepts the Vulkan names as well as the buffering
// strategy they stand for.
func ParsePresentMode(s string) (PresentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate":
		return PresentModeImmediate, nil
	case "mailbox", "triple_buffering":
		return PresentModeMailbox, nil
	case "fifo", "vsync":
		return PresentModeFifo, nil
	case "fifo_relaxed", "double_buffering":
		return PresentModeFifoRelaxed, nil
	}
	return PresentModeFifo, errors.Newf("unknown present mode %q", s)
}

func (m *PresentMode) UnmarshalText(text []byte) error {
	mode, err := ParsePresentMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func (m PresentMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

type SurfaceCapabilities struct {
	MinImageCount uint32
	// 0 means there is no upper bound.
	MaxImageCount  uint32
	CurrentExtent  Extent
	MinImageExtent Extent
	MaxImageExtent Extent
}

// SurfaceSupport is everything the device reports about a surface.
type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

// SwapchainConfig is the chosen configuration handed to the backend.
type SwapchainConfig struct {
	Format      SurfaceFormat
	PresentMode PresentMode
	Extent      Extent
	ImageCount  uint32
}

/** @brief Immutable description of one swapchain generation. */
type SwapchainState struct {
	Format      SurfaceFormat
	PresentMode PresentMode
	Extent      Extent
	/** @brief The number of images actually created by the driver. */
	ImageCount uint32
	/** @brief Incremented every time the swapchain is recreated. */
	Generation uint64
	/** @brief Backend images, in presentation order. */
	Images []interface{}
	/** @brief Backend image views, one per image. */
	ImageViews []interface{}
	/** @brief Backend swapchain handle. */
	InternalData interface{}
}

// Status is the outcome of acquire and present calls.
type Status int

const (
	StatusSuccess Status = iota
	StatusSuboptimal
	StatusOutOfDate
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out_of_date"
	}
	return "unknown"
}
