// Package inference runs object detection over ingested frames and clips
// through an opaque backend, annotates the results, and fans them out.
package inference

import (
	"context"
	"sync"
)

// Detection is one object found by the backend. Box coordinates are pixels
// in the source image.
type Detection struct {
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
	Confidence float64 `json:"confidence"`
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
}

// Detector is the capability interface over the detection backend. The
// backend is opaque: bytes in, detections out.
type Detector interface {
	Detect(ctx context.Context, payload []byte) ([]Detection, error)
}

// StaticDetector returns canned detections for every call. It exists so
// pipeline tests never depend on a real model.
type StaticDetector struct {
	mu         sync.Mutex
	Detections []Detection
	Err        error
	calls      int
}

// Detect returns the configured detections or error.
func (s *StaticDetector) Detect(ctx context.Context, payload []byte) ([]Detection, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]Detection, len(s.Detections))
	copy(out, s.Detections)
	return out, nil
}

// Calls returns how many times Detect has been invoked.
func (s *StaticDetector) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
