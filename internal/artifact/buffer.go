// Package artifact retains recently completed inference artifacts per camera
// for viewers polling over request/response instead of holding a socket.
package artifact

import (
	"sync"
	"time"
)

// Artifact is one completed, annotated output unit.
type Artifact struct {
	Sequence    int       `json:"sequence"`
	ContentType string    `json:"content_type"`
	SizeBytes   int       `json:"size_bytes"`
	Detections  int       `json:"detections"`
	ProducedAt  time.Time `json:"produced_at"`
	Payload     []byte    `json:"-"`
}

// Buffer keeps the most recent artifacts per camera token in a fixed-size
// ring. Older entries are evicted as new ones arrive.
type Buffer struct {
	mu    sync.RWMutex
	rings map[string][]Artifact
	size  int
}

// NewBuffer creates a buffer retaining size artifacts per camera. size must
// be at least 2 because polling viewers read one behind the latest.
func NewBuffer(size int) *Buffer {
	if size < 2 {
		size = 2
	}
	return &Buffer{
		rings: make(map[string][]Artifact),
		size:  size,
	}
}

// Add appends artifact for token, evicting the oldest entry when full.
func (b *Buffer) Add(token string, artifact Artifact) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ring := b.rings[token]
	ring = append(ring, artifact)
	if len(ring) > b.size {
		ring = ring[len(ring)-b.size:]
	}
	b.rings[token] = ring
}

// Next returns the second-most-recent artifact for token. Serving one behind
// the latest gives polling viewers a smoother playback buffer. With only one
// artifact available, that one is returned.
func (b *Buffer) Next(token string) (Artifact, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ring := b.rings[token]
	switch len(ring) {
	case 0:
		return Artifact{}, false
	case 1:
		return ring[0], true
	default:
		return ring[len(ring)-2], true
	}
}

// BySequence returns the retained artifact with the given sequence number.
func (b *Buffer) BySequence(token string, sequence int) (Artifact, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, artifact := range b.rings[token] {
		if artifact.Sequence == sequence {
			return artifact, true
		}
	}
	return Artifact{}, false
}

// Count returns how many artifacts are retained for token.
func (b *Buffer) Count(token string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rings[token])
}

// Remove drops all retained artifacts for token.
func (b *Buffer) Remove(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rings, token)
}
