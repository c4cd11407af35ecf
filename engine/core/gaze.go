package core

import (
	"github.com/spaghettifunk/foveal/engine/math"
	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

// GazeProvider reports where the viewer is looking, in normalized window
// coordinates where (0,0) is the top left corner and (1,1) the bottom right.
type GazeProvider interface {
	Gaze() metadata.EyeTrackingData
}

// MouseGazeProvider uses the cursor as a stand-in for an eye tracker.
// Cursor positions are in screen coordinates, so windowSize must report the
// window size and not the framebuffer size, which differ on HiDPI displays.
type MouseGazeProvider struct {
	input      *Input
	windowSize func() metadata.Extent
}

func NewMouseGazeProvider(input *Input, windowSize func() metadata.Extent) *MouseGazeProvider {
	return &MouseGazeProvider{
		input:      input,
		windowSize: windowSize,
	}
}

func (p *MouseGazeProvider) Gaze() metadata.EyeTrackingData {
	e := p.windowSize()
	if e.IsZero() {
		return metadata.EyeTrackingData{PositionX: 0.5, PositionY: 0.5}
	}
	x, y := p.input.MousePosition()
	return metadata.EyeTrackingData{
		PositionX: math.Clamp(float32(x/float64(e.Width)), 0, 1),
		PositionY: math.Clamp(float32(y/float64(e.Height)), 0, 1),
	}
}

// FixedGazeProvider always looks at the same point.
type FixedGazeProvider struct {
	Point metadata.EyeTrackingData
}

func NewFixedGazeProvider(x, y float32) *FixedGazeProvider {
	return &FixedGazeProvider{
		Point: metadata.EyeTrackingData{
			PositionX: math.Clamp(x, 0, 1),
			PositionY: math.Clamp(y, 0, 1),
		},
	}
}

func (p *FixedGazeProvider) Gaze() metadata.EyeTrackingData {
	return p.Point
}
