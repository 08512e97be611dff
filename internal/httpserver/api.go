package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/karnali/wildguard-go/internal/throttle"
)

// statusResponse is the pull-mode status query reply.
type statusResponse struct {
	CameraConnected bool                 `json:"camera_connected"`
	ViewerCount     int                  `json:"viewer_count"`
	QueueSize       int                  `json:"queue_size"`
	ProcessingStats processingStats      `json:"processing_stats"`
	ThrottleStats   throttle.CameraStats `json:"throttle"`
}

type processingStats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Workers   int    `json:"workers"`
}

// handleStatus reports connection and pipeline state for one camera.
func (s *Server) handleStatus(c echo.Context) error {
	token := c.Param("token")
	poolStats := s.pool.GetStats()
	connected := s.registry.CameraConnected(token)

	return c.JSON(http.StatusOK, statusResponse{
		CameraConnected: connected,
		ViewerCount:     s.registry.ViewerCount(token),
		QueueSize:       poolStats.QueueDepth,
		ProcessingStats: processingStats{
			Processed: poolStats.Processed,
			Failed:    poolStats.Failed,
			Workers:   poolStats.Workers,
		},
		ThrottleStats: s.throttle.Stats(token, connected),
	})
}

// handleNextArtifact returns metadata for the second-most-recent artifact,
// one behind the latest for smoother playback buffering.
func (s *Server) handleNextArtifact(c echo.Context) error {
	token := c.Param("token")
	next, ok := s.artifacts.Next(token)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no artifacts available"})
	}
	return c.JSON(http.StatusOK, next)
}

// handleArtifactBySequence streams the raw artifact bytes.
func (s *Server) handleArtifactBySequence(c echo.Context) error {
	token := c.Param("token")
	sequence, err := strconv.Atoi(c.Param("sequence"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sequence must be an integer"})
	}

	stored, ok := s.artifacts.BySequence(token, sequence)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "artifact not found"})
	}
	return c.Blob(http.StatusOK, stored.ContentType, stored.Payload)
}
