// Package clip reassembles bounded video clips from the chunked camera
// ingestion protocol and hands completed buffers to the inference pipeline.
package clip

import (
	"bytes"
	"log/slog"
	"sync"
	"time"

	"github.com/karnali/wildguard-go/internal/errors"
	"github.com/karnali/wildguard-go/internal/logging"
	"github.com/karnali/wildguard-go/internal/observability/metrics"
)

// Discard reasons reported to metrics and logs.
const (
	DiscardSequenceMismatch   = "sequence_mismatch"
	DiscardChunkCountMismatch = "chunk_count_mismatch"
	DiscardSizeMismatch       = "size_mismatch"
	DiscardOversize           = "oversize"
	DiscardDisconnect         = "disconnect"
	DiscardRestarted          = "restarted"
)

// Submitter receives completed clip buffers. The inference worker pool
// implements this.
type Submitter interface {
	SubmitClip(cameraToken string, payload []byte, sequence int)
}

// pendingClip is one in-progress assembly for a camera token.
type pendingClip struct {
	sequence       int
	declaredSize   int
	declaredChunks int
	chunks         [][]byte
	receivedBytes  int
	startedAt      time.Time
}

// Assembler reconstructs clips per camera token. Each token moves through
// IDLE, RECEIVING and back to IDLE when a clip completes or is discarded.
type Assembler struct {
	mu           sync.Mutex
	pending      map[string]*pendingClip
	maxClipBytes int
	sink         Submitter
	logger       *slog.Logger
	metrics      *metrics.PipelineMetrics
}

// NewAssembler creates an assembler submitting completed clips to sink.
// maxClipBytes bounds assembly memory per camera; larger clips are discarded.
// pipelineMetrics may be nil in tests.
func NewAssembler(sink Submitter, maxClipBytes int, pipelineMetrics *metrics.PipelineMetrics) *Assembler {
	return &Assembler{
		pending:      make(map[string]*pendingClip),
		maxClipBytes: maxClipBytes,
		sink:         sink,
		logger:       logging.ForService("clip"),
		metrics:      pipelineMetrics,
	}
}

// Begin opens a new pending clip for token. A clip already receiving for the
// same token is discarded first, the camera has moved on.
func (a *Assembler) Begin(token string, sequence, declaredSize int) {
	a.mu.Lock()
	if _, exists := a.pending[token]; exists {
		a.discardLocked(token, DiscardRestarted)
	}
	a.pending[token] = &pendingClip{
		sequence:     sequence,
		declaredSize: declaredSize,
		startedAt:    time.Now(),
	}
	a.mu.Unlock()

	a.logDebug("clip started", "token", token, "sequence", sequence, "declared_size", declaredSize)
}

// DeclareChunkCount records the expected chunk count for the open clip. The
// count is verified at completion when present.
func (a *Assembler) DeclareChunkCount(token string, sequence, totalChunks int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	clip := a.pending[token]
	if clip == nil || clip.sequence != sequence {
		return
	}
	clip.declaredChunks = totalChunks
}

// AppendChunk appends one binary chunk to the open clip in arrival order.
// A chunk with no open clip is a protocol error and is dropped.
func (a *Assembler) AppendChunk(token string, chunk []byte) error {
	a.mu.Lock()
	clip := a.pending[token]
	if clip == nil {
		a.mu.Unlock()
		return errors.Newf("received chunk with no open clip").
			Component("clip").
			Category(errors.CategoryProtocol).
			Context("token", token).
			Context("chunk_bytes", len(chunk)).
			Build()
	}

	if a.maxClipBytes > 0 && clip.receivedBytes+len(chunk) > a.maxClipBytes {
		a.discardLocked(token, DiscardOversize)
		a.mu.Unlock()
		return errors.Newf("clip exceeds maximum size %d bytes", a.maxClipBytes).
			Component("clip").
			Category(errors.CategoryLimit).
			Context("token", token).
			Context("received_bytes", clip.receivedBytes).
			Build()
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	clip.chunks = append(clip.chunks, buf)
	clip.receivedBytes += len(buf)
	a.mu.Unlock()
	return nil
}

// End completes the open clip for token. The sequence number must match the
// pending clip, and when the camera declared a chunk count or total size they
// must match what arrived. Any mismatch discards the clip without submitting
// a task. On success the concatenated buffer is handed to the submitter and
// the token returns to idle.
func (a *Assembler) End(token string, sequence int) error {
	a.mu.Lock()
	clip := a.pending[token]
	if clip == nil {
		a.mu.Unlock()
		return errors.Newf("clip_end with no open clip").
			Component("clip").
			Category(errors.CategoryProtocol).
			Context("token", token).
			Build()
	}

	if clip.sequence != sequence {
		a.discardLocked(token, DiscardSequenceMismatch)
		a.mu.Unlock()
		return errors.Newf("clip sequence mismatch: open %d, end %d", clip.sequence, sequence).
			Component("clip").
			Category(errors.CategoryProtocol).
			Context("token", token).
			Build()
	}

	if clip.declaredChunks > 0 && len(clip.chunks) != clip.declaredChunks {
		a.discardLocked(token, DiscardChunkCountMismatch)
		a.mu.Unlock()
		return errors.Newf("clip chunk count mismatch: declared %d, received %d", clip.declaredChunks, len(clip.chunks)).
			Component("clip").
			Category(errors.CategoryClipAssembly).
			Context("token", token).
			Build()
	}

	if clip.declaredSize > 0 && clip.receivedBytes != clip.declaredSize {
		a.discardLocked(token, DiscardSizeMismatch)
		a.mu.Unlock()
		return errors.Newf("clip size mismatch: declared %d, received %d", clip.declaredSize, clip.receivedBytes).
			Component("clip").
			Category(errors.CategoryClipAssembly).
			Context("token", token).
			Build()
	}

	delete(a.pending, token)
	payload := bytes.Join(clip.chunks, nil)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.RecordClipAssembled(len(payload))
	}
	a.logDebug("clip assembled", "token", token, "sequence", sequence,
		"bytes", len(payload), "chunks", len(clip.chunks),
		"assembly_ms", time.Since(clip.startedAt).Milliseconds())

	a.sink.SubmitClip(token, payload, sequence)
	return nil
}

// Discard drops any pending clip for token, used when the camera disconnects
// mid-clip.
func (a *Assembler) Discard(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.pending[token]; exists {
		a.discardLocked(token, DiscardDisconnect)
	}
}

// Receiving reports whether token has an open clip.
func (a *Assembler) Receiving(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending[token] != nil
}

// discardLocked removes the pending clip for token. Caller holds the mutex.
func (a *Assembler) discardLocked(token, reason string) {
	clip := a.pending[token]
	delete(a.pending, token)
	if a.metrics != nil {
		a.metrics.IncrementClipsDiscarded(reason)
	}
	if a.logger != nil && clip != nil {
		a.logger.Warn("clip discarded", "token", token, "reason", reason,
			"sequence", clip.sequence, "received_bytes", clip.receivedBytes)
	}
}

func (a *Assembler) logDebug(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
