package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/foveal/engine/renderer/metadata"
)

func TestInputApply(t *testing.T) {
	in := NewInput()
	in.Apply(Event{Code: EVENT_CODE_KEY_PRESSED, KeyCode: KEY_ESCAPE})
	in.Apply(Event{Code: EVENT_CODE_BUTTON_PRESSED, Button: BUTTON_LEFT})
	in.Apply(Event{Code: EVENT_CODE_MOUSE_MOVED, X: 320, Y: 240})

	assert.True(t, in.IsKeyDown(KEY_ESCAPE))
	assert.False(t, in.WasKeyDown(KEY_ESCAPE))
	assert.True(t, in.IsButtonDown(BUTTON_LEFT))
	x, y := in.MousePosition()
	assert.Equal(t, 320.0, x)
	assert.Equal(t, 240.0, y)

	in.Update()
	in.Apply(Event{Code: EVENT_CODE_KEY_RELEASED, KeyCode: KEY_ESCAPE})
	assert.True(t, in.IsKeyUp(KEY_ESCAPE))
	assert.True(t, in.WasKeyDown(KEY_ESCAPE))
}

func TestMouseGazeProviderNormalizes(t *testing.T) {
	in := NewInput()
	extent := metadata.Extent{Width: 800, Height: 400}
	gaze := NewMouseGazeProvider(in, func() metadata.Extent { return extent })

	in.Apply(Event{Code: EVENT_CODE_MOUSE_MOVED, X: 200, Y: 300})
	assert.InDelta(t, 0.25, gaze.Gaze().PositionX, 1e-6)
	assert.InDelta(t, 0.75, gaze.Gaze().PositionY, 1e-6)

	in.Apply(Event{Code: EVENT_CODE_MOUSE_MOVED, X: -50, Y: 9000})
	assert.Equal(t, metadata.EyeTrackingData{PositionX: 0, PositionY: 1}, gaze.Gaze())

	extent = metadata.Extent{}
	assert.Equal(t, metadata.EyeTrackingData{PositionX: 0.5, PositionY: 0.5}, gaze.Gaze())
}

func TestMouseGazeProviderOnScaledDisplay(t *testing.T) {
	// A 640x360 window backed by a 1280x720 framebuffer reports the cursor
	// in window coordinates.
	in := NewInput()
	gaze := NewMouseGazeProvider(in, func() metadata.Extent { return metadata.Extent{Width: 640, Height: 360} })

	in.Apply(Event{Code: EVENT_CODE_MOUSE_MOVED, X: 320, Y: 180})
	assert.InDelta(t, 0.5, gaze.Gaze().PositionX, 1e-6)
	assert.InDelta(t, 0.5, gaze.Gaze().PositionY, 1e-6)

	in.Apply(Event{Code: EVENT_CODE_MOUSE_MOVED, X: 640, Y: 360})
	assert.Equal(t, metadata.EyeTrackingData{PositionX: 1, PositionY: 1}, gaze.Gaze())
}

func TestFixedGazeProviderClamps(t *testing.T) {
	g := NewFixedGazeProvider(1.5, 0.3)
	assert.Equal(t, float32(1), g.Gaze().PositionX)
	assert.Equal(t, float32(0.3), g.Gaze().PositionY)
}

func TestMetricsReportsOncePerSecond(t *testing.T) {
	m := NewMetrics()
	reported := 0
	for i := 0; i < 32; i++ {
		if m.Update(0.125) {
			reported++
		}
	}
	assert.Equal(t, 4, reported)
	assert.Equal(t, 8.0, m.FPS())
	assert.Equal(t, 125.0, m.FrameTime())
}

func TestMetricsAveragesFenceWait(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.RecordFenceWait(2 * time.Millisecond)
		m.Update(0.016)
	}
	assert.InDelta(t, 2.0, m.FenceWait(), 1e-9)

	for i := 0; i < int(AVG_COUNT); i++ {
		m.RecordFenceWait(0)
		m.Update(0.016)
	}
	assert.Equal(t, 0.0, m.FenceWait())
}
