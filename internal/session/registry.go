// Package session tracks camera and viewer connections per camera token and
// owns broadcast fan-out to viewers.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/karnali/wildguard-go/internal/logging"
	"github.com/karnali/wildguard-go/internal/observability/metrics"
)

// CameraSession holds the live connections for one camera token. At most one
// camera transport is live per token at any instant.
type CameraSession struct {
	Token     string
	Camera    Transport
	Viewers   []Transport
	CreatedAt time.Time
}

// Registry is the lock-protected connection map shared by all session loops.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*CameraSession
	logger   *slog.Logger
	metrics  *metrics.SessionMetrics
}

// NewRegistry creates an empty registry. metrics may be nil in tests.
func NewRegistry(sessionMetrics *metrics.SessionMetrics) *Registry {
	return &Registry{
		sessions: make(map[string]*CameraSession),
		logger:   logging.ForService("session"),
		metrics:  sessionMetrics,
	}
}

// ConnectCamera installs transport as the live camera connection for token.
// An existing camera connection for the same token is closed with the
// superseded code before the new one is installed.
func (r *Registry) ConnectCamera(token string, transport Transport) {
	var superseded Transport

	r.mu.Lock()
	session := r.sessions[token]
	if session == nil {
		session = &CameraSession{Token: token, CreatedAt: time.Now()}
		r.sessions[token] = session
	}
	superseded = session.Camera
	session.Camera = transport
	r.mu.Unlock()

	if superseded != nil {
		// Close outside the lock, the write can block for the send timeout
		_ = superseded.Close(CloseSuperseded, "camera connection superseded")
		if r.metrics != nil {
			r.metrics.IncrementCamerasSuperseded()
		}
		r.logInfo("camera connection superseded", "token", token)
	} else {
		r.logInfo("camera connected", "token", token)
	}

	r.updateGauges()
}

// ConnectViewer appends transport to the viewer set for token, creating the
// session entry if absent. A live camera is not required.
func (r *Registry) ConnectViewer(token string, transport Transport) {
	r.mu.Lock()
	session := r.sessions[token]
	if session == nil {
		session = &CameraSession{Token: token, CreatedAt: time.Now()}
		r.sessions[token] = session
	}
	session.Viewers = append(session.Viewers, transport)
	viewerCount := len(session.Viewers)
	r.mu.Unlock()

	r.logInfo("viewer connected", "token", token, "viewers", viewerCount)
	r.updateGauges()
}

// DisconnectCamera removes transport as the camera connection for token and
// reports whether it was removed. The removal applies only while transport is
// still the registered connection, so a superseded connection's cleanup
// cannot tear down its replacement. The session entry is pruned once neither
// camera nor viewers remain.
func (r *Registry) DisconnectCamera(token string, transport Transport) bool {
	r.mu.Lock()
	session := r.sessions[token]
	if session == nil || session.Camera != transport {
		r.mu.Unlock()
		return false
	}
	session.Camera = nil
	if len(session.Viewers) == 0 {
		delete(r.sessions, token)
	}
	r.mu.Unlock()

	r.logInfo("camera disconnected", "token", token)
	r.updateGauges()
	return true
}

// DisconnectViewer removes transport from the viewer set for token. Removing
// a transport that is already gone is a no-op.
func (r *Registry) DisconnectViewer(token string, transport Transport) {
	r.mu.Lock()
	session := r.sessions[token]
	if session == nil {
		r.mu.Unlock()
		return
	}
	removed := false
	for i, viewer := range session.Viewers {
		if viewer == transport {
			session.Viewers = append(session.Viewers[:i], session.Viewers[i+1:]...)
			removed = true
			break
		}
	}
	if session.Camera == nil && len(session.Viewers) == 0 {
		delete(r.sessions, token)
	}
	r.mu.Unlock()

	if removed {
		r.logInfo("viewer disconnected", "token", token)
		r.updateGauges()
	}
}

// Broadcast sends payload to every viewer currently registered for token.
// A failed send removes that viewer and delivery continues to the rest.
// Returns the number of successful deliveries.
func (r *Registry) Broadcast(token string, payload []byte, binary bool) int {
	r.mu.RLock()
	session := r.sessions[token]
	if session == nil {
		r.mu.RUnlock()
		return 0
	}
	viewers := make([]Transport, len(session.Viewers))
	copy(viewers, session.Viewers)
	r.mu.RUnlock()

	delivered := 0
	var failed []Transport
	for _, viewer := range viewers {
		if err := viewer.Send(payload, binary); err != nil {
			failed = append(failed, viewer)
			if r.metrics != nil {
				r.metrics.IncrementBroadcastFailures()
			}
			r.logWarn("viewer send failed, removing viewer", "token", token, "error", err)
			continue
		}
		delivered++
	}

	for _, viewer := range failed {
		r.DisconnectViewer(token, viewer)
		_ = viewer.Close(CloseShutdown, "send failed")
	}

	if delivered > 0 && r.metrics != nil {
		r.metrics.IncrementFramesRelayed()
	}
	return delivered
}

// CameraConnected reports whether a live camera transport exists for token.
func (r *Registry) CameraConnected(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session := r.sessions[token]
	return session != nil && session.Camera != nil
}

// ViewerCount returns the number of viewers registered for token.
func (r *Registry) ViewerCount(token string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session := r.sessions[token]
	if session == nil {
		return 0
	}
	return len(session.Viewers)
}

// Shutdown closes every camera and viewer transport with the shutdown code
// and clears all state. Used once at process teardown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*CameraSession)
	r.mu.Unlock()

	for token, session := range sessions {
		if session.Camera != nil {
			_ = session.Camera.Close(CloseShutdown, "server shutdown")
		}
		for _, viewer := range session.Viewers {
			_ = viewer.Close(CloseShutdown, "server shutdown")
		}
		r.logInfo("session closed", "token", token, "viewers", len(session.Viewers))
	}
	r.updateGauges()
}

func (r *Registry) updateGauges() {
	if r.metrics == nil {
		return
	}
	r.mu.RLock()
	cameras := 0
	viewers := 0
	for _, session := range r.sessions {
		if session.Camera != nil {
			cameras++
		}
		viewers += len(session.Viewers)
	}
	r.mu.RUnlock()
	r.metrics.UpdateActiveCameras(cameras)
	r.metrics.UpdateActiveViewers(viewers)
}

func (r *Registry) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Registry) logWarn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
