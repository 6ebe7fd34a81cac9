package core

import "sync"

const AVG_COUNT uint8 = 30

type MetricsState struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64

	// Flushes counts transform pool flushes in the current one second window.
	Flushes         int32
	FlushesPerSec   float64
	TotalFlushCount uint64
}

var metricsMutex sync.Mutex
var metricsState *MetricsState = nil

func MetricsInitialize() error {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	metricsState = &MetricsState{
		MStimes: [AVG_COUNT]float64{0},
	}
	return nil
}

func MetricsUpdate(frame_elapsed_time float64) {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	if metricsState == nil {
		return
	}

	// Calculate frame ms average
	frame_ms := (frame_elapsed_time * 1000.0)
	metricsState.MStimes[metricsState.FrameAVGCounter] = frame_ms
	if metricsState.FrameAVGCounter == AVG_COUNT-1 {
		metricsState.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			metricsState.MSavg += metricsState.MStimes[i]
		}

		metricsState.MSavg /= float64(AVG_COUNT)
	}
	metricsState.FrameAVGCounter++
	metricsState.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	metricsState.AccumulatedFrameMS += frame_ms
	if metricsState.AccumulatedFrameMS > 1000 {
		metricsState.FPS = float64(metricsState.Frames)
		metricsState.FlushesPerSec = float64(metricsState.Flushes)
		metricsState.AccumulatedFrameMS -= 1000
		metricsState.Frames = 0
		metricsState.Flushes = 0
	}

	// Count all Frames.
	metricsState.Frames++
}

// MetricsFlush records one batched transform flush.
func MetricsFlush() {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	if metricsState == nil {
		return
	}
	metricsState.Flushes++
	metricsState.TotalFlushCount++
}

func MetricsFPS() float64 {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	if metricsState == nil {
		return 0
	}
	return metricsState.FPS
}

func MetricsFrameTime() float64 {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	if metricsState == nil {
		return 0
	}
	return metricsState.MSavg
}

// MetricsFrame returns the frames per second, the average frame time in ms and
// the flushes per second.
func MetricsFrame() (float64, float64, float64) {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	if metricsState == nil {
		return 0, 0, 0
	}
	return metricsState.FPS, metricsState.MSavg, metricsState.FlushesPerSec
}

func MetricsTotalFlushes() uint64 {
	metricsMutex.Lock()
	defer metricsMutex.Unlock()
	if metricsState == nil {
		return 0
	}
	return metricsState.TotalFlushCount
}
