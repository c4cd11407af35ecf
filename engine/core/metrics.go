package core

import "time"

const AVG_COUNT uint8 = 30

// Metrics keeps rolling frame time and fence wait averages and the frames
// counted during the last full second.
type Metrics struct {
	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	fenceWaitTimes     [AVG_COUNT]float64
	fenceWaitAvg       float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Update records one frame. It returns true when a full second has been
// accumulated and FPS was refreshed.
func (m *Metrics) Update(frameElapsedTime float64) bool {
	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		m.msAvg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.msAvg += m.msTimes[i]
		}
		m.msAvg /= float64(AVG_COUNT)

		m.fenceWaitAvg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.fenceWaitAvg += m.fenceWaitTimes[i]
		}
		m.fenceWaitAvg /= float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	// Count all frames.
	m.frames++

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS >= 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
		return true
	}
	return false
}

// RecordFenceWait stores how long the frame about to be passed to Update
// waited for the GPU.
func (m *Metrics) RecordFenceWait(wait time.Duration) {
	m.fenceWaitTimes[m.frameAVGCounter] = float64(wait) / float64(time.Millisecond)
}

// FenceWait is the rolling average fence wait in milliseconds.
func (m *Metrics) FenceWait() float64 {
	return m.fenceWaitAvg
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	return m.msAvg
}

func (m *Metrics) Frame() (float64, float64) {
	return m.fps, m.msAvg
}
