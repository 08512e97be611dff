package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karnali/wildguard-go/internal/artifact"
	"github.com/karnali/wildguard-go/internal/clip"
	"github.com/karnali/wildguard-go/internal/conf"
	"github.com/karnali/wildguard-go/internal/inference"
	"github.com/karnali/wildguard-go/internal/session"
	"github.com/karnali/wildguard-go/internal/throttle"
	"github.com/karnali/wildguard-go/internal/triage"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent [][]byte
}

func (f *fakeTransport) Send(payload []byte, binary bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.sent = append(f.sent, buf)
	return nil
}

func (f *fakeTransport) Close(closeCode int, reason string) error { return nil }

func (f *fakeTransport) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

func testServerSettings() *conf.Settings {
	return &conf.Settings{
		Stream: conf.StreamSettings{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			SendTimeoutMs:    1000,
			KeepaliveSeconds: 1,
			ArtifactRingSize: 4,
		},
		Throttle: conf.ThrottleSettings{
			InitialInterval: 15, MinInterval: 5, MaxInterval: 30,
			ForceAfterMs: 2000, SlowThresholdMs: 100, FastThresholdMs: 30,
			GrowStep: 5, ShrinkStep: 1,
			ViewerLatencyHigh: 150, ViewerLatencyLow: 50,
		},
		WebServer: conf.WebServerSettings{Port: "8080"},
	}
}

func newTestServer(t *testing.T) (*Server, *inference.Pool) {
	t.Helper()
	settings := testServerSettings()
	registry := session.NewRegistry(nil)
	controller := throttle.NewController(settings.Throttle, nil)
	artifacts := artifact.NewBuffer(settings.Stream.ArtifactRingSize)
	relay := NewRelay(registry, controller, artifacts, nil)
	pool := inference.NewPool(1, &inference.StaticDetector{}, nil, relay, nil)
	assembler := clip.NewAssembler(pool, 0, nil)
	server := New(settings, registry, assembler, pool, controller, artifacts,
		inference.NewAnnotator(0.25), nil, nil)
	return server, pool
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	server.registry.ConnectViewer("tok-1", &fakeTransport{})
	server.registry.ConnectCamera("tok-1", &fakeTransport{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cameras/tok-1/status", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.CameraConnected)
	assert.Equal(t, 1, status.ViewerCount)
	assert.Equal(t, 0, status.QueueSize)
	assert.Equal(t, 15, status.ThrottleStats.InferenceInterval)
}

func TestNextArtifactServesOneBehindLatest(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cameras/tok-1/artifacts/next", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	server.artifacts.Add("tok-1", artifact.Artifact{Sequence: 1, ContentType: "image/jpeg"})
	server.artifacts.Add("tok-1", artifact.Artifact{Sequence: 2, ContentType: "image/jpeg"})
	server.artifacts.Add("tok-1", artifact.Artifact{Sequence: 3, ContentType: "image/jpeg"})

	rec = httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var next artifact.Artifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.Equal(t, 2, next.Sequence)
}

func TestArtifactBySequenceStreamsBytes(t *testing.T) {
	server, _ := newTestServer(t)
	server.artifacts.Add("tok-1", artifact.Artifact{
		Sequence:    7,
		ContentType: "video/mp4",
		Payload:     []byte("mp4-bytes"),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cameras/tok-1/artifacts/7", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "mp4-bytes", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cameras/tok-1/artifacts/99", nil)
	rec = httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/cameras/tok-1/artifacts/abc", nil)
	rec = httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRelayBroadcastsAnnotatedFrames(t *testing.T) {
	registry := session.NewRegistry(nil)
	controller := throttle.NewController(testServerSettings().Throttle, nil)
	artifacts := artifact.NewBuffer(4)
	relay := NewRelay(registry, controller, artifacts, nil)

	viewer := &fakeTransport{}
	registry.ConnectViewer("tok-1", viewer)

	relay.HandleResult(inference.Result{
		Task: inference.Task{
			CameraToken: "tok-1",
			Kind:        inference.TaskFrame,
			Sequence:    12,
		},
		Annotated:  []byte("jpeg"),
		Detections: []inference.Detection{{ClassName: "tiger", Confidence: 0.9}},
		Width:      640,
		Height:     480,
		Latency:    40 * time.Millisecond,
	})

	messages := viewer.messages()
	require.Len(t, messages, 2, "metadata then frame bytes")

	var meta frameBroadcastMeta
	require.NoError(t, json.Unmarshal(messages[0], &meta))
	assert.Equal(t, "frame_metadata", meta.Type)
	assert.Equal(t, 12, meta.FrameNumber)
	assert.True(t, meta.YoloProcessed)
	assert.False(t, meta.Cached)
	assert.Equal(t, 1, meta.Detections)
	assert.Equal(t, []byte("jpeg"), messages[1])

	// Result feeds the throttle cache and the pull buffer
	cached, ok := controller.Cached("tok-1")
	require.True(t, ok)
	assert.Len(t, cached.Detections, 1)
	assert.Equal(t, 1, artifacts.Count("tok-1"))
}

func TestCameraReconnectSupersedesCleanly(t *testing.T) {
	server, _ := newTestServer(t)
	httpSrv := httptest.NewServer(server.echo)
	defer httpSrv.Close()

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/camera/tok-1"

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()

	// The first connection is closed with the superseded code
	_, _, err = first.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, session.CloseSuperseded), "unexpected close: %v", err)

	// The first connection's server-side cleanup must not deregister the
	// replacement or wipe its pipeline state
	time.Sleep(200 * time.Millisecond)
	assert.True(t, server.registry.CameraConnected("tok-1"), "replacement camera should stay registered")

	require.NoError(t, second.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"clip_begin","clipNumber":1,"size":0}`)))
	assert.Eventually(t, func() bool {
		return server.assembler.Receiving("tok-1")
	}, time.Second, 10*time.Millisecond, "replacement camera should still be serviced")
}

type fakeVoiceSender struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeVoiceSender) SendVoiceAlert(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, message)
	return nil
}

func (f *fakeVoiceSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeMessageSender struct {
	mu    sync.Mutex
	sends []string
}

func (f *fakeMessageSender) UploadVideo(ctx context.Context, video []byte, filename string) (string, error) {
	return "media-1", nil
}

func (f *fakeMessageSender) SendTemplate(ctx context.Context, toPhone string, variables []string, mediaID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, toPhone)
	return nil
}

func (f *fakeMessageSender) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...)
}

func TestRelayRoutesClipDetectionsToTriage(t *testing.T) {
	registry := session.NewRegistry(nil)
	controller := throttle.NewController(testServerSettings().Throttle, nil)
	artifacts := artifact.NewBuffer(4)

	voice := &fakeVoiceSender{}
	message := &fakeMessageSender{}
	engine := triage.NewEngine(conf.AlertSettings{
		CooldownMinutes:     5,
		DangerousThreshold:  0.50,
		EndangeredThreshold: 0.50,
		OfficialRecipients:  []string{"+977100000001"},
		Evidence:            conf.EvidenceSettings{MaxVideoMB: 15},
	}, nil, voice, message, nil, nil, nil, nil)
	engine.Start(context.Background())

	relay := NewRelay(registry, controller, artifacts, engine)

	clipResult := inference.Result{
		Task: inference.Task{
			CameraToken: "tok-1",
			Kind:        inference.TaskClip,
			Sequence:    3,
		},
		Annotated:  []byte("mp4"),
		Detections: []inference.Detection{{ClassID: 3, ClassName: "tiger", Confidence: 0.9}},
		Latency:    80 * time.Millisecond,
	}
	relay.HandleResult(clipResult)
	// A second clip inside the cooldown window must not alert again
	relay.HandleResult(clipResult)
	engine.Stop()

	assert.Equal(t, 1, voice.count(), "one civilian voice alert within the window")
	assert.Equal(t, []string{"+977100000001"}, message.recipients(), "one official message within the window")

	got, ok := artifacts.BySequence("tok-1", 3)
	require.True(t, ok)
	assert.Equal(t, "video/mp4", got.ContentType)
}

func TestSuggestStreaming(t *testing.T) {
	// High latency backs the sender off
	reply := suggestStreaming(performanceFeedback{LatencyMs: 250, FPS: 30}, 15)
	assert.Equal(t, 25.0, reply.FPS)
	assert.Equal(t, 0.6, reply.Quality)
	assert.Equal(t, 15, reply.InferenceInterval)

	// Fast healthy link speeds up, capped at the maximum
	reply = suggestStreaming(performanceFeedback{LatencyMs: 20, FPS: 29}, 7)
	assert.Equal(t, 30.0, reply.FPS)
	assert.Equal(t, 0.8, reply.Quality)
	assert.Equal(t, 7, reply.InferenceInterval)

	// Mid-range latency keeps the current rate
	reply = suggestStreaming(performanceFeedback{LatencyMs: 100, FPS: 20}, 15)
	assert.Equal(t, 20.0, reply.FPS)
	assert.Equal(t, 0.7, reply.Quality)

	// FPS never falls below the floor
	reply = suggestStreaming(performanceFeedback{LatencyMs: 500, FPS: 6}, 15)
	assert.Equal(t, 5.0, reply.FPS)
}

type clockedTransport struct {
	fakeTransport
	lastSend time.Time
}

func (c *clockedTransport) LastSendAt() time.Time { return c.lastSend }

func TestKeepaliveOnlyWhenIdle(t *testing.T) {
	idleWindow := time.Second

	busy := &clockedTransport{lastSend: time.Now()}
	assert.False(t, keepaliveDue(busy, idleWindow), "recent traffic suppresses the keepalive")

	quiet := &clockedTransport{lastSend: time.Now().Add(-2 * time.Second)}
	assert.True(t, keepaliveDue(quiet, idleWindow))

	// Transports without send tracking are always pinged
	assert.True(t, keepaliveDue(&fakeTransport{}, idleWindow))
}

func TestCameraControlMessages(t *testing.T) {
	server, pool := newTestServer(t)
	transport := &fakeTransport{}

	// A full clip protocol exchange submits one task
	var pending *controlMessage
	pending = server.handleCameraControl("tok-1", transport,
		[]byte(`{"type":"clip_begin","clipNumber":3,"size":6}`), pending)
	require.Nil(t, pending)
	assert.True(t, server.assembler.Receiving("tok-1"))

	pending = server.handleCameraBinary("tok-1", []byte("chu"), pending)
	pending = server.handleCameraBinary("tok-1", []byte("nks"), pending)
	pending = server.handleCameraControl("tok-1", transport,
		[]byte(`{"type":"clip_end","clipNumber":3}`), pending)
	require.Nil(t, pending)

	assert.Equal(t, 1, pool.QueueDepth())
	assert.False(t, server.assembler.Receiving("tok-1"))

	// Malformed JSON is discarded without state changes
	pending = server.handleCameraControl("tok-1", transport, []byte(`{broken`), pending)
	assert.Nil(t, pending)

	// frame_metadata arms the next binary message as a frame
	pending = server.handleCameraControl("tok-1", transport,
		[]byte(`{"type":"frame_metadata","frameNumber":1,"width":640,"height":480}`), pending)
	require.NotNil(t, pending)
	assert.Equal(t, 1, pending.FrameNumber)

	pending = server.handleCameraBinary("tok-1", []byte("frame-bytes"), pending)
	assert.Nil(t, pending)
	assert.Equal(t, 2, pool.QueueDepth(), "cold-start frame goes to inference")
}

func TestFeedbackGetsAdaptiveReply(t *testing.T) {
	server, _ := newTestServer(t)
	transport := &fakeTransport{}

	server.handleCameraControl("tok-1", transport,
		[]byte(`{"type":"performance_feedback","latency":300,"fps":30,"frameDrops":8}`), nil)

	messages := transport.messages()
	require.Len(t, messages, 1)

	var reply adaptiveStreaming
	require.NoError(t, json.Unmarshal(messages[0], &reply))
	assert.Equal(t, "adaptive_streaming", reply.Type)
	assert.Equal(t, 25.0, reply.FPS)
	assert.Equal(t, 18, reply.InferenceInterval, "high viewer latency widened the interval")
}
