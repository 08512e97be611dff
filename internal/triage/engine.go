package triage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karnali/wildguard-go/internal/conf"
	"github.com/karnali/wildguard-go/internal/datastore"
	"github.com/karnali/wildguard-go/internal/errors"
	"github.com/karnali/wildguard-go/internal/evidence"
	"github.com/karnali/wildguard-go/internal/inference"
	"github.com/karnali/wildguard-go/internal/logging"
	"github.com/karnali/wildguard-go/internal/observability/metrics"
)

// alertQueueSize bounds the dispatch queue. Submissions beyond it are
// dropped so a slow notification API can never stall the inference path.
const alertQueueSize = 16

// Alert is one triaged detection handed to the dispatch worker.
type Alert struct {
	Token      string
	Species    Species
	Confidence float64
	Video      []byte
	At         time.Time
}

// DispatchRecord is the outcome of one channel call for one recipient.
type DispatchRecord struct {
	Channel   string
	Recipient string
	Success   bool
	Err       error
}

// DispatchOutcome aggregates all channel calls for one alert. Success is
// true when at least one recipient was reached.
type DispatchOutcome struct {
	Records      []DispatchRecord
	Success      bool
	EvidencePath string
}

// cameraLookup is the directory subset the engine needs.
type cameraLookup interface {
	CameraByToken(token string) (*datastore.Camera, error)
}

// Engine selects alert-worthy detections and dispatches them through the
// configured channels on a dedicated worker, decoupled from inference.
type Engine struct {
	settings   conf.AlertSettings
	cooldowns  *CooldownStore
	directory  cameraLookup
	voice      VoiceSender
	message    MessageSender
	push       PushSender
	store      evidence.Store
	transcoder Transcoder

	jobs    chan Alert
	dropped atomic.Uint64
	wg      sync.WaitGroup

	logger  *slog.Logger
	metrics *metrics.AlertMetrics
}

// NewEngine wires the triage engine. Any of voice, message, push, store and
// transcoder may be nil when the corresponding channel is disabled.
func NewEngine(settings conf.AlertSettings, directory cameraLookup, voice VoiceSender, message MessageSender, push PushSender, store evidence.Store, transcoder Transcoder, alertMetrics *metrics.AlertMetrics) *Engine {
	return &Engine{
		settings:   settings,
		cooldowns:  NewCooldownStore(time.Duration(settings.CooldownMinutes) * time.Minute),
		directory:  directory,
		voice:      voice,
		message:    message,
		push:       push,
		store:      store,
		transcoder: transcoder,
		jobs:       make(chan Alert, alertQueueSize),
		logger:     logging.ForService("triage"),
		metrics:    alertMetrics,
	}
}

// Start launches the dispatch worker.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for alert := range e.jobs {
			e.Dispatch(ctx, alert)
		}
	}()
}

// Stop drains queued alerts and stops the worker.
func (e *Engine) Stop() {
	close(e.jobs)
	e.wg.Wait()
	if dropped := e.dropped.Load(); dropped > 0 {
		e.logWarn("alerts dropped under dispatch backpressure", "dropped", dropped)
	}
}

// SelectCandidate picks the single alert-worthy detection: detections are
// bucketed by tier, anything below its tier threshold is dropped, and the
// highest-confidence survivor wins with dangerous taking precedence over
// endangered.
func (e *Engine) SelectCandidate(detections []inference.Detection) (Species, float64, bool) {
	var (
		bestDangerous     Species
		bestDangerousConf float64
		haveDangerous     bool

		bestEndangered     Species
		bestEndangeredConf float64
		haveEndangered     bool
	)

	for _, det := range detections {
		species := LookupSpecies(det.ClassID)
		switch species.Tier {
		case TierDangerous:
			if det.Confidence >= e.settings.DangerousThreshold &&
				(!haveDangerous || det.Confidence > bestDangerousConf) {
				bestDangerous, bestDangerousConf, haveDangerous = species, det.Confidence, true
			}
		case TierEndangered:
			if det.Confidence >= e.settings.EndangeredThreshold &&
				(!haveEndangered || det.Confidence > bestEndangeredConf) {
				bestEndangered, bestEndangeredConf, haveEndangered = species, det.Confidence, true
			}
		}
	}

	if haveDangerous {
		return bestDangerous, bestDangerousConf, true
	}
	if haveEndangered {
		return bestEndangered, bestEndangeredConf, true
	}
	return Species{}, 0, false
}

// Submit triages the detection list for token and, when an alert-worthy
// candidate exists, hands it to the dispatch worker without blocking. Under
// backpressure the alert is dropped and counted.
func (e *Engine) Submit(token string, detections []inference.Detection, video []byte) {
	species, confidence, ok := e.SelectCandidate(detections)
	if !ok {
		return
	}

	alert := Alert{
		Token:      token,
		Species:    species,
		Confidence: confidence,
		Video:      video,
		At:         time.Now(),
	}

	select {
	case e.jobs <- alert:
	default:
		e.dropped.Add(1)
		e.logWarn("alert dropped, dispatch queue full",
			"token", token, "species", species.English)
	}
}

// Dispatch runs one alert through the cooldown gates and channels. Dangerous
// species fan out to civilian and official channels, endangered species to
// officials only, each channel gated by its own per-location cooldown.
func (e *Engine) Dispatch(ctx context.Context, alert Alert) DispatchOutcome {
	start := time.Now()
	var outcome DispatchOutcome

	camera := e.lookupCamera(alert.Token)
	location := camera.Location
	if location == "" {
		location = "अज्ञात स्थान"
	}

	video, mediaID := e.prepareEvidence(ctx, alert)

	// A channel with no configured sender must not consume its cooldown
	// window, the gate only arms when an attempt can actually be made.
	if alert.Species.Tier == TierDangerous && e.civilianConfigured() {
		if e.cooldowns.Allow(ChannelCivilian, location) {
			e.dispatchCivilian(ctx, alert, camera, location, mediaID, &outcome)
		} else {
			e.recordSuppressed(ChannelCivilian, location)
		}
	}

	if e.officialConfigured() {
		if e.cooldowns.Allow(ChannelOfficial, location) {
			e.dispatchOfficial(ctx, alert, camera, location, mediaID, &outcome)
		} else {
			e.recordSuppressed(ChannelOfficial, location)
		}
	}

	for _, record := range outcome.Records {
		if record.Success {
			outcome.Success = true
		}
		if e.metrics != nil {
			e.metrics.RecordDispatchAttempt(record.Channel, record.Success)
		}
	}

	if outcome.Success {
		outcome.EvidencePath = e.persistEvidence(ctx, alert, video)
	}

	if e.metrics != nil {
		e.metrics.ObserveDispatchDuration(time.Since(start).Seconds())
	}
	e.logInfo("alert dispatched",
		"token", alert.Token, "species", alert.Species.English,
		"tier", string(alert.Species.Tier), "confidence", alert.Confidence,
		"location", location, "success", outcome.Success,
		"attempts", len(outcome.Records))
	return outcome
}

// civilianConfigured reports whether any civilian-channel sender exists.
func (e *Engine) civilianConfigured() bool {
	return e.voice != nil || e.message != nil
}

// officialConfigured reports whether any official-channel sender exists.
func (e *Engine) officialConfigured() bool {
	return e.message != nil || e.push != nil
}

// lookupCamera loads directory metadata for token, falling back to a bare
// record when the directory has no entry.
func (e *Engine) lookupCamera(token string) *datastore.Camera {
	if e.directory == nil {
		return &datastore.Camera{Token: token}
	}
	camera, err := e.directory.CameraByToken(token)
	if err != nil {
		if !errors.Is(err, datastore.ErrCameraNotFound) {
			e.logWarn("camera directory lookup failed", "token", token, "error", err)
		}
		return &datastore.Camera{Token: token}
	}
	return camera
}

// prepareEvidence shrinks the clip below the channel size bound and uploads
// it once for reuse across recipients. Either step failing degrades the
// alert to text-only rather than blocking it.
func (e *Engine) prepareEvidence(ctx context.Context, alert Alert) (video []byte, mediaID string) {
	video = alert.Video
	if len(video) == 0 {
		return nil, ""
	}

	maxBytes := e.settings.Evidence.MaxVideoMB * 1024 * 1024
	if len(video) > maxBytes {
		if e.metrics != nil {
			e.metrics.IncrementTranscodeRetries()
		}
		shrunk, err := FitToSize(ctx, e.transcoder, video, maxBytes)
		if err != nil {
			e.logWarn("evidence transcode failed, sending without video",
				"token", alert.Token, "bytes", len(video), "error", err)
			return video, ""
		}
		video = shrunk
	}

	if e.message != nil {
		id, err := e.message.UploadVideo(ctx, video, "wildlife_alert.mp4")
		if err != nil {
			e.logWarn("evidence upload failed, sending without video",
				"token", alert.Token, "error", err)
			return video, ""
		}
		mediaID = id
	}
	return video, mediaID
}

// dispatchCivilian sends the voice campaign and the template message to the
// camera's own recipients.
func (e *Engine) dispatchCivilian(ctx context.Context, alert Alert, camera *datastore.Camera, location, mediaID string, outcome *DispatchOutcome) {
	if e.voice != nil {
		err := e.voice.SendVoiceAlert(ctx, voiceMessage(alert.Species))
		outcome.Records = append(outcome.Records, DispatchRecord{
			Channel:   "voice",
			Recipient: "campaign",
			Success:   err == nil,
			Err:       err,
		})
		if err != nil {
			e.logWarn("voice alert failed", "token", alert.Token, "error", err)
		}
	}

	if e.message != nil {
		variables := templateVariables(alert, location)
		for _, phone := range camera.PhoneNumbers() {
			err := e.message.SendTemplate(ctx, phone, variables, mediaID)
			outcome.Records = append(outcome.Records, DispatchRecord{
				Channel:   "message",
				Recipient: phone,
				Success:   err == nil,
				Err:       err,
			})
			if err != nil {
				e.logWarn("civilian message failed",
					"token", alert.Token, "recipient", phone, "error", err)
			}
		}
	}
}

// dispatchOfficial sends the template message to the official recipients and
// the supplementary push notification.
func (e *Engine) dispatchOfficial(ctx context.Context, alert Alert, camera *datastore.Camera, location, mediaID string, outcome *DispatchOutcome) {
	if e.message != nil {
		variables := templateVariables(alert, location)
		for _, phone := range e.settings.OfficialRecipients {
			err := e.message.SendTemplate(ctx, phone, variables, mediaID)
			outcome.Records = append(outcome.Records, DispatchRecord{
				Channel:   "message",
				Recipient: phone,
				Success:   err == nil,
				Err:       err,
			})
			if err != nil {
				e.logWarn("official message failed",
					"token", alert.Token, "recipient", phone, "error", err)
			}
		}
	}

	if e.push != nil {
		err := e.push.Push("वन्यजन्तु अलर्ट", officialMessage(alert, camera, location))
		outcome.Records = append(outcome.Records, DispatchRecord{
			Channel:   "push",
			Recipient: "operators",
			Success:   err == nil,
			Err:       err,
		})
		if err != nil {
			e.logWarn("push alert failed", "token", alert.Token, "error", err)
		}
	}
}

// persistEvidence stores the clip keyed by tier, token, class and timestamp.
func (e *Engine) persistEvidence(ctx context.Context, alert Alert, video []byte) string {
	if e.store == nil || len(video) == 0 {
		return ""
	}
	key := evidence.Key{
		Tier:        string(alert.Species.Tier),
		CameraToken: alert.Token,
		ClassName:   alert.Species.English,
		Timestamp:   alert.At,
	}
	path, err := e.store.Save(ctx, key, video)
	if err != nil {
		e.logWarn("evidence persistence failed", "token", alert.Token, "error", err)
		return ""
	}
	if e.metrics != nil {
		e.metrics.ObserveEvidenceBytes(int64(len(video)))
	}
	return path
}

func (e *Engine) recordSuppressed(channel, location string) {
	if e.metrics != nil {
		e.metrics.IncrementCooldownSuppressed()
	}
	e.logInfo("alert suppressed by cooldown", "channel", channel, "location", location)
}

// voiceMessage synthesizes the Nepali voice text for the campaign call.
func voiceMessage(species Species) string {
	return fmt.Sprintf("यस क्षेत्रमा, हामीले एक %s %s भेट्यौं, हामीले व्हाट्सएपमा भिडियो र विवरणहरू पठाएका छौं।",
		TierLabelNepali(species.Tier), species.Nepali)
}

// templateVariables fills the species alert template: animal, confidence,
// location, time.
func templateVariables(alert Alert, location string) []string {
	return []string{
		alert.Species.Nepali,
		fmt.Sprintf("%.2f", alert.Confidence),
		location,
		alert.At.Format("2006-01-02 15:04:05"),
	}
}

// officialMessage renders the rich official alert body.
func officialMessage(alert Alert, camera *datastore.Camera, location string) string {
	cameraName := camera.Name
	if cameraName == "" {
		cameraName = alert.Token
	}
	return fmt.Sprintf(
		"🚨 आधिकारिक वन्यजन्तु अलर्ट 🚨\n\n"+
			"📅 पत्ता लगाएको समय: %s\n"+
			"🐾 जनावरको नाम: %s (%s)\n"+
			"📊 पहिचान विश्वसनीयता: %.2f\n"+
			"📍 स्थान: %s\n"+
			"🏠 क्यामेरा: %s\n\n"+
			"तत्काल कार्रवाई आवश्यक छ।",
		alert.At.Format("2006-01-02 15:04:05"),
		alert.Species.Nepali, alert.Species.English,
		alert.Confidence, location, cameraName)
}

func (e *Engine) logInfo(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logWarn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}
