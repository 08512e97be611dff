package inference

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/karnali/wildguard-go/internal/logging"
	"github.com/karnali/wildguard-go/internal/observability/metrics"
)

// TaskKind distinguishes single frames from assembled clips.
type TaskKind string

const (
	TaskFrame TaskKind = "frame"
	TaskClip  TaskKind = "clip"
)

// Task is one immutable unit of inference work. Tasks are consumed exactly
// once and never retried.
type Task struct {
	ID          string
	CameraToken string
	Kind        TaskKind
	Payload     []byte
	Sequence    int
	SubmittedAt time.Time
}

// Result carries a completed inference: the annotated artifact for output
// distribution and the raw detections for alert triage.
type Result struct {
	Task       Task
	Annotated  []byte
	Detections []Detection
	Width      int
	Height     int
	Latency    time.Duration
}

// ResultSink receives completed results. The pipeline wiring implements this.
type ResultSink interface {
	HandleResult(result Result)
}

// Stats is a snapshot of pool counters for the status endpoint.
type Stats struct {
	Processed  uint64 `json:"processed"`
	Failed     uint64 `json:"failed"`
	QueueDepth int    `json:"queue_depth"`
	Workers    int    `json:"workers"`
}

// Pool runs a fixed number of workers over an unbounded task queue. The
// queue depth is observable so upstream throttling can react to overload.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool

	workers   int
	detector  Detector
	annotator *Annotator
	sink      ResultSink

	processed atomic.Uint64
	failed    atomic.Uint64

	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *metrics.PipelineMetrics
}

// NewPool creates a pool of workerCount workers running detector. Results go
// to sink. pipelineMetrics may be nil in tests.
func NewPool(workerCount int, detector Detector, annotator *Annotator, sink ResultSink, pipelineMetrics *metrics.PipelineMetrics) *Pool {
	p := &Pool{
		workers:   workerCount,
		detector:  detector,
		annotator: annotator,
		sink:      sink,
		logger:    logging.ForService("inference"),
		metrics:   pipelineMetrics,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers. ctx cancellation is passed through to backend
// calls; use Stop to drain and terminate the pool.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logInfo("inference pool started", "workers", p.workers)
}

// Stop closes the queue and waits for workers to drain remaining tasks.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
	p.logInfo("inference pool stopped",
		"processed", p.processed.Load(), "failed", p.failed.Load())
}

// SubmitClip enqueues an assembled clip. Implements the clip submitter.
func (p *Pool) SubmitClip(cameraToken string, payload []byte, sequence int) {
	p.submit(Task{
		ID:          uuid.New().String(),
		CameraToken: cameraToken,
		Kind:        TaskClip,
		Payload:     payload,
		Sequence:    sequence,
		SubmittedAt: time.Now(),
	})
}

// SubmitFrame enqueues one frame for inference.
func (p *Pool) SubmitFrame(cameraToken string, payload []byte, sequence int) {
	p.submit(Task{
		ID:          uuid.New().String(),
		CameraToken: cameraToken,
		Kind:        TaskFrame,
		Payload:     payload,
		Sequence:    sequence,
		SubmittedAt: time.Now(),
	})
}

func (p *Pool) submit(task Task) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logWarn("task submitted after pool close, dropped",
			"token", task.CameraToken, "kind", string(task.Kind))
		return
	}
	p.queue = append(p.queue, task)
	depth := len(p.queue)
	p.mu.Unlock()

	p.cond.Signal()
	if p.metrics != nil {
		p.metrics.UpdateQueueDepth(depth)
	}
}

// QueueDepth returns the number of tasks waiting for a worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// GetStats returns a snapshot of the pool counters.
func (p *Pool) GetStats() Stats {
	return Stats{
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		QueueDepth: p.QueueDepth(),
		Workers:    p.workers,
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		task, ok := p.dequeue()
		if !ok {
			return
		}
		p.process(ctx, task)
	}
}

// dequeue blocks until a task is available or the pool is closed and drained.
func (p *Pool) dequeue() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 {
		if p.closed {
			return Task{}, false
		}
		p.cond.Wait()
	}
	task := p.queue[0]
	p.queue = p.queue[1:]
	depth := len(p.queue)
	if p.metrics != nil {
		p.metrics.UpdateQueueDepth(depth)
	}
	return task, true
}

// process runs one task end to end. A failure is logged and counted; the
// worker moves on to the next task.
func (p *Pool) process(ctx context.Context, task Task) {
	start := time.Now()
	detections, err := p.detector.Detect(ctx, task.Payload)
	latency := time.Since(start)

	if err != nil {
		p.failed.Add(1)
		if p.metrics != nil {
			p.metrics.IncrementInferenceFailures("backend")
		}
		p.logWarn("inference failed, task dropped",
			"token", task.CameraToken, "kind", string(task.Kind),
			"sequence", task.Sequence, "error", err)
		return
	}

	annotated := task.Payload
	width, height := 0, 0
	if p.annotator != nil {
		annotated, width, height, err = p.annotator.Annotate(task.Payload, detections)
		if err != nil {
			p.failed.Add(1)
			if p.metrics != nil {
				p.metrics.IncrementInferenceFailures("annotate")
			}
			p.logWarn("annotation failed, task dropped",
				"token", task.CameraToken, "sequence", task.Sequence, "error", err)
			return
		}
	}

	p.processed.Add(1)
	if p.metrics != nil {
		p.metrics.ObserveInferenceDuration(latency.Seconds())
	}

	p.sink.HandleResult(Result{
		Task:       task,
		Annotated:  annotated,
		Detections: detections,
		Width:      width,
		Height:     height,
		Latency:    latency,
	})
}

func (p *Pool) logInfo(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pool) logWarn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
