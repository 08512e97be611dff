package inference

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records results delivered by the pool.
type captureSink struct {
	mu      sync.Mutex
	results []Result
}

func (c *captureSink) HandleResult(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// slowDetector sleeps per call to simulate a loaded backend.
type slowDetector struct {
	delay time.Duration
	inner StaticDetector
}

func (s *slowDetector) Detect(ctx context.Context, payload []byte) ([]Detection, error) {
	time.Sleep(s.delay)
	return s.inner.Detect(ctx, payload)
}

func TestPoolConsumesEveryTaskExactlyOnce(t *testing.T) {
	sink := &captureSink{}
	detector := &slowDetector{delay: 10 * time.Millisecond}
	pool := NewPool(1, detector, nil, sink, nil)
	pool.Start(context.Background())

	for i := 0; i < 50; i++ {
		pool.SubmitClip("cam-1", []byte{byte(i)}, i)
	}

	// Queue must rise then drain to zero once workers catch up
	assert.Greater(t, pool.QueueDepth(), 0)

	pool.Stop()

	assert.Equal(t, 0, pool.QueueDepth())
	assert.Equal(t, 50, sink.count())
	assert.Equal(t, 50, detector.inner.Calls())
	assert.Equal(t, uint64(50), pool.GetStats().Processed)
}

func TestPoolIsolatesFailedTasks(t *testing.T) {
	sink := &captureSink{}
	detector := &StaticDetector{Err: errors.New("backend unavailable")}
	pool := NewPool(2, detector, nil, sink, nil)
	pool.Start(context.Background())

	pool.SubmitClip("cam-1", []byte("bad"), 1)
	pool.SubmitClip("cam-1", []byte("bad"), 2)
	pool.Stop()

	stats := pool.GetStats()
	assert.Equal(t, uint64(2), stats.Failed)
	assert.Equal(t, uint64(0), stats.Processed)
	assert.Equal(t, 0, sink.count())

	// Workers survive failures: a healthy task after the bad ones still runs
	detector.Err = nil
	pool2 := NewPool(1, detector, nil, sink, nil)
	pool2.Start(context.Background())
	pool2.SubmitClip("cam-1", []byte("good"), 3)
	pool2.Stop()
	assert.Equal(t, 1, sink.count())
}

func TestPoolForwardsDetectionsToSink(t *testing.T) {
	sink := &captureSink{}
	detector := &StaticDetector{Detections: []Detection{
		{ClassID: 2, ClassName: "rhino", Confidence: 0.9, X1: 10, Y1: 10, X2: 50, Y2: 50},
	}}
	pool := NewPool(1, detector, nil, sink, nil)
	pool.Start(context.Background())

	pool.SubmitClip("cam-7", []byte("clip-bytes"), 42)
	pool.Stop()

	require.Equal(t, 1, sink.count())
	result := sink.results[0]
	assert.Equal(t, "cam-7", result.Task.CameraToken)
	assert.Equal(t, TaskClip, result.Task.Kind)
	assert.Equal(t, 42, result.Task.Sequence)
	assert.Equal(t, []byte("clip-bytes"), result.Annotated)
	require.Len(t, result.Detections, 1)
	assert.Equal(t, "rhino", result.Detections[0].ClassName)
	assert.NotEmpty(t, result.Task.ID)
}

func TestPoolDropsTasksAfterStop(t *testing.T) {
	sink := &captureSink{}
	pool := NewPool(1, &StaticDetector{}, nil, sink, nil)
	pool.Start(context.Background())
	pool.Stop()

	pool.SubmitClip("cam-1", []byte("late"), 1)
	assert.Equal(t, 0, pool.QueueDepth())
	assert.Equal(t, 0, sink.count())
}

func TestAnnotatePassesThroughNonImagePayload(t *testing.T) {
	annotator := NewAnnotator(0.25)
	payload := []byte("not a jpeg")

	out, width, height, err := annotator.Annotate(payload, []Detection{
		{ClassName: "tiger", Confidence: 0.9, X1: 0, Y1: 0, X2: 10, Y2: 10},
	})

	require.NoError(t, err)
	assert.Equal(t, payload, out)
	assert.Equal(t, 0, width)
	assert.Equal(t, 0, height)
}

func TestLabelTextUsesTwoDecimals(t *testing.T) {
	text := labelText(Detection{ClassName: "leopard", Confidence: 0.8765})
	assert.Equal(t, "leopard 0.88", text)
}
