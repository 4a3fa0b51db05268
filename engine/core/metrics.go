package core

import "time"

const AVG_COUNT uint8 = 30

// FrameMetrics keeps the frame statistics of one render surface. It is
// fed with the delta between two consecutive ticks.
type FrameMetrics struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		MStimes: [AVG_COUNT]float64{0},
	}
}

// Update records one frame. It returns true once per elapsed second, when
// the FPS value has been refreshed. A zero delta counts the frame but
// does not advance time, so the first frame never divides by zero.
func (m *FrameMetrics) Update(delta time.Duration) bool {
	frameMS := float64(delta) / float64(time.Millisecond)

	// Calculate frame ms average
	m.MStimes[m.FrameAVGCounter] = frameMS
	if m.FrameAVGCounter == AVG_COUNT-1 {
		sum := 0.0
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += m.MStimes[i]
		}
		m.MSavg = sum / float64(AVG_COUNT)
	}
	m.FrameAVGCounter++
	m.FrameAVGCounter %= AVG_COUNT

	// Count all Frames.
	m.Frames++

	// Calculate Frames per second.
	m.AccumulatedFrameMS += frameMS
	if m.AccumulatedFrameMS >= 1000 {
		m.FPS = float64(m.Frames) * 1000 / m.AccumulatedFrameMS
		m.AccumulatedFrameMS = 0
		m.Frames = 0
		return true
	}
	return false
}

func (m *FrameMetrics) Frame() (float64, float64) {
	return m.FPS, m.MSavg
}
