package triage

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"

	"github.com/karnali/wildguard-go/internal/errors"
)

// Quality back-off bounds for oversized evidence.
const (
	initialCRF        = 28
	maxCRF            = 35
	crfStep           = 4
	maxTranscodeTries = 3
)

// Transcoder re-encodes a video at the given constant rate factor. Higher
// CRF means smaller output and lower quality.
type Transcoder interface {
	Transcode(ctx context.Context, video []byte, crf int) ([]byte, error)
}

// FFmpegTranscoder shells out to ffmpeg over stdin/stdout.
type FFmpegTranscoder struct {
	Binary string
}

// NewFFmpegTranscoder uses the ffmpeg binary found on PATH.
func NewFFmpegTranscoder() *FFmpegTranscoder {
	return &FFmpegTranscoder{Binary: "ffmpeg"}
}

// Transcode re-encodes video with libx264 at crf.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, video []byte, crf int) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.Binary,
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-crf", strconv.Itoa(crf),
		"-preset", "fast",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"pipe:1")

	cmd.Stdin = bytes.NewReader(video)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.New(err).
			Component("triage").
			Category(errors.CategoryTranscode).
			Context("crf", crf).
			Context("stderr", truncate(stderr.String(), 512)).
			Build()
	}
	return out.Bytes(), nil
}

// FitToSize returns video shrunk below maxBytes, re-encoding with rising CRF
// until it fits or the retry budget is spent.
func FitToSize(ctx context.Context, transcoder Transcoder, video []byte, maxBytes int) ([]byte, error) {
	if len(video) <= maxBytes {
		return video, nil
	}
	if transcoder == nil {
		return nil, errors.Newf("evidence is %d bytes, limit %d, and no transcoder is configured", len(video), maxBytes).
			Component("triage").
			Category(errors.CategoryTranscode).
			Build()
	}

	crf := initialCRF
	for attempt := 0; attempt < maxTranscodeTries; attempt++ {
		encoded, err := transcoder.Transcode(ctx, video, crf)
		if err != nil {
			return nil, err
		}
		if len(encoded) <= maxBytes {
			return encoded, nil
		}
		if crf >= maxCRF {
			break
		}
		crf += crfStep
		if crf > maxCRF {
			crf = maxCRF
		}
	}

	return nil, errors.Newf("evidence still exceeds %d bytes after quality back-off", maxBytes).
		Component("triage").
		Category(errors.CategoryTranscode).
		Context("original_bytes", len(video)).
		Build()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
