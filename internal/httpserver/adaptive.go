package httpserver

// Adaptive streaming bounds suggested back to cameras and viewers.
const (
	adaptiveMinFPS      = 5
	adaptiveMaxFPS      = 30
	adaptiveLatencyHigh = 200.0
	adaptiveLatencyLow  = 50.0
)

// performanceFeedback is the report either side sends about its observed
// playback conditions.
type performanceFeedback struct {
	Type       string  `json:"type"`
	LatencyMs  float64 `json:"latency"`
	FPS        float64 `json:"fps"`
	FrameDrops int     `json:"frameDrops"`
	QueueDepth int     `json:"queueDepth"`
}

// adaptiveStreaming is the server's answer: suggested capture settings plus
// the current inference interval.
type adaptiveStreaming struct {
	Type              string  `json:"type"`
	FPS               float64 `json:"fps"`
	Quality           float64 `json:"quality"`
	InferenceInterval int     `json:"inference_interval"`
}

// suggestStreaming maps reported conditions to capture suggestions: high
// latency backs the sender off, a healthy fast link speeds it up.
func suggestStreaming(feedback performanceFeedback, inferenceInterval int) adaptiveStreaming {
	fps := feedback.FPS
	quality := 0.7

	switch {
	case feedback.LatencyMs > adaptiveLatencyHigh:
		fps -= 5
		quality = 0.6
	case feedback.LatencyMs < adaptiveLatencyLow && feedback.FPS > 25:
		fps += 2
		quality = 0.8
	}

	if fps < adaptiveMinFPS {
		fps = adaptiveMinFPS
	}
	if fps > adaptiveMaxFPS {
		fps = adaptiveMaxFPS
	}

	return adaptiveStreaming{
		Type:              "adaptive_streaming",
		FPS:               fps,
		Quality:           quality,
		InferenceInterval: inferenceInterval,
	}
}
