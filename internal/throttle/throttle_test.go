package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karnali/wildguard-go/internal/conf"
	"github.com/karnali/wildguard-go/internal/inference"
)

func testSettings() conf.ThrottleSettings {
	return conf.ThrottleSettings{
		InitialInterval:   15,
		MinInterval:       5,
		MaxInterval:       30,
		ForceAfterMs:      2000,
		SlowThresholdMs:   100,
		FastThresholdMs:   30,
		GrowStep:          5,
		ShrinkStep:        1,
		ViewerLatencyHigh: 150,
		ViewerLatencyLow:  50,
	}
}

func TestColdStartAlwaysRuns(t *testing.T) {
	controller := NewController(testSettings(), nil)
	assert.Equal(t, Run, controller.Gate("cam-1"))
}

func TestFrameCounterGatesOnInterval(t *testing.T) {
	controller := NewController(testSettings(), nil)

	require.Equal(t, Run, controller.Gate("cam-1"))
	controller.RecordInference("cam-1", 50*time.Millisecond, nil, 0, 0)
	require.Equal(t, 15, controller.Interval("cam-1"))

	// Frames 2..14 are cached, frame 15 lands on the interval
	for frame := 2; frame < 15; frame++ {
		assert.Equal(t, Cache, controller.Gate("cam-1"), "frame %d", frame)
	}
	assert.Equal(t, Run, controller.Gate("cam-1"))
}

func TestElapsedTimeForcesRun(t *testing.T) {
	controller := NewController(testSettings(), nil)

	require.Equal(t, Run, controller.Gate("cam-1"))
	controller.RecordInference("cam-1", 50*time.Millisecond, nil, 0, 0)

	// Age the last inference past the forced bound
	controller.mu.Lock()
	controller.cameras["cam-1"].lastInference = time.Now().Add(-3 * time.Second)
	controller.mu.Unlock()

	assert.Equal(t, Run, controller.Gate("cam-1"))
}

func TestSlowInferenceGrowsInterval(t *testing.T) {
	controller := NewController(testSettings(), nil)

	controller.RecordInference("cam-1", 150*time.Millisecond, nil, 0, 0)
	assert.Equal(t, 20, controller.Interval("cam-1"))

	// Repeated slow runs stop at the maximum
	for i := 0; i < 10; i++ {
		controller.RecordInference("cam-1", 150*time.Millisecond, nil, 0, 0)
	}
	assert.Equal(t, 30, controller.Interval("cam-1"))
}

func TestFastInferenceShrinksInterval(t *testing.T) {
	controller := NewController(testSettings(), nil)

	controller.RecordInference("cam-1", 10*time.Millisecond, nil, 0, 0)
	assert.Equal(t, 14, controller.Interval("cam-1"))

	// Repeated fast runs stop at the minimum
	for i := 0; i < 20; i++ {
		controller.RecordInference("cam-1", 10*time.Millisecond, nil, 0, 0)
	}
	assert.Equal(t, 5, controller.Interval("cam-1"))
}

func TestMidRangeLatencyLeavesIntervalAlone(t *testing.T) {
	controller := NewController(testSettings(), nil)
	controller.RecordInference("cam-1", 60*time.Millisecond, nil, 0, 0)
	assert.Equal(t, 15, controller.Interval("cam-1"))
}

func TestViewerFeedbackPerturbsInterval(t *testing.T) {
	controller := NewController(testSettings(), nil)
	controller.RecordInference("cam-1", 60*time.Millisecond, nil, 0, 0)

	controller.ApplyViewerFeedback("cam-1", 200, 0)
	assert.Equal(t, 18, controller.Interval("cam-1"))

	controller.ApplyViewerFeedback("cam-1", 40, 2)
	assert.Equal(t, 17, controller.Interval("cam-1"))

	// Low latency with heavy frame drops does not tighten
	controller.ApplyViewerFeedback("cam-1", 40, 9)
	assert.Equal(t, 17, controller.Interval("cam-1"))

	// Mid-range latency leaves the interval alone
	controller.ApplyViewerFeedback("cam-1", 100, 0)
	assert.Equal(t, 17, controller.Interval("cam-1"))
}

func TestIntervalNeverLeavesBounds(t *testing.T) {
	controller := NewController(testSettings(), nil)

	for i := 0; i < 50; i++ {
		controller.ApplyViewerFeedback("cam-1", 500, 0)
	}
	assert.Equal(t, 30, controller.Interval("cam-1"))

	for i := 0; i < 100; i++ {
		controller.ApplyViewerFeedback("cam-1", 10, 0)
	}
	assert.Equal(t, 5, controller.Interval("cam-1"))
}

func TestCachedDetectionsRoundTrip(t *testing.T) {
	controller := NewController(testSettings(), nil)

	_, ok := controller.Cached("cam-1")
	assert.False(t, ok)

	detections := []inference.Detection{{ClassName: "tiger", Confidence: 0.8}}
	controller.RecordInference("cam-1", 40*time.Millisecond, detections, 640, 480)

	cached, ok := controller.Cached("cam-1")
	require.True(t, ok)
	assert.Equal(t, detections, cached.Detections)
	assert.Equal(t, 640, cached.Width)
	assert.Equal(t, 480, cached.Height)
}

func TestStatsSnapshot(t *testing.T) {
	controller := NewController(testSettings(), nil)

	stats := controller.Stats("cam-1", false)
	assert.Equal(t, 15, stats.InferenceInterval)
	assert.False(t, stats.Active)

	controller.Gate("cam-1")
	controller.RecordInference("cam-1", 40*time.Millisecond, nil, 0, 0)
	controller.Gate("cam-1")
	controller.Gate("cam-1")

	stats = controller.Stats("cam-1", true)
	assert.Equal(t, 3, stats.FrameCount)
	assert.Equal(t, 2, stats.FramesSinceInference)
	assert.True(t, stats.Active)
}

func TestRemoveClearsState(t *testing.T) {
	controller := NewController(testSettings(), nil)

	controller.Gate("cam-1")
	controller.RecordInference("cam-1", 40*time.Millisecond, nil, 0, 0)
	controller.Remove("cam-1")

	_, ok := controller.Cached("cam-1")
	assert.False(t, ok)
	assert.Equal(t, Run, controller.Gate("cam-1"), "removed camera cold-starts again")
}
