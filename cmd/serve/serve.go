// Package serve implements the serve command, running the full streaming
// relay until interrupted.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/karnali/wildguard-go/internal/artifact"
	"github.com/karnali/wildguard-go/internal/clip"
	"github.com/karnali/wildguard-go/internal/conf"
	"github.com/karnali/wildguard-go/internal/datastore"
	"github.com/karnali/wildguard-go/internal/evidence"
	"github.com/karnali/wildguard-go/internal/httpserver"
	"github.com/karnali/wildguard-go/internal/inference"
	"github.com/karnali/wildguard-go/internal/logging"
	"github.com/karnali/wildguard-go/internal/observability"
	"github.com/karnali/wildguard-go/internal/session"
	"github.com/karnali/wildguard-go/internal/throttle"
	"github.com/karnali/wildguard-go/internal/triage"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the camera relay and alert server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}
}

func runServer(settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}
	if settings.Main.Log.Enabled {
		fileLogger, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "main",
			slog.LevelInfo, logging.FileLoggerOptions{
				MaxSizeMB:  settings.Main.Log.MaxSizeMB,
				MaxBackups: settings.Main.Log.MaxBackups,
				MaxAgeDays: settings.Main.Log.MaxAgeDays,
			})
		if err != nil {
			return fmt.Errorf("failed to open main log file: %w", err)
		}
		defer closeLog() //nolint:errcheck
		fileLogger.Info("wildguard starting", "node", settings.Main.Name)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	directory, err := datastore.Open(settings.Directory.Path)
	if err != nil {
		return fmt.Errorf("failed to open camera directory: %w", err)
	}
	defer func() {
		if err := directory.Close(); err != nil {
			logging.Warn("camera directory close failed", "error", err)
		}
	}()

	engine, err := buildTriageEngine(ctx, settings, directory, metrics)
	if err != nil {
		return err
	}

	registry := session.NewRegistry(metrics.Session)
	controller := throttle.NewController(settings.Throttle, metrics.Pipeline)
	artifacts := artifact.NewBuffer(settings.Stream.ArtifactRingSize)
	annotator := inference.NewAnnotator(settings.Inference.DrawThreshold)

	relay := httpserver.NewRelay(registry, controller, artifacts, engine)
	detector := inference.NewBackendClient(settings.Inference.BackendURL,
		time.Duration(settings.Inference.RequestTimeoutMs)*time.Millisecond)
	pool := inference.NewPool(settings.Inference.Workers, detector, annotator, relay, metrics.Pipeline)
	assembler := clip.NewAssembler(pool, settings.Stream.MaxClipBytes, metrics.Pipeline)

	server := httpserver.New(settings, registry, assembler, pool, controller,
		artifacts, annotator, directory, metrics)

	pool.Start(ctx)
	if engine != nil {
		engine.Start(ctx)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Start(groupCtx)
	})

	err = group.Wait()

	if engine != nil {
		engine.Stop()
	}
	pool.Stop()
	logging.Info("server stopped")
	return err
}

// buildTriageEngine wires the alert channels that are enabled in settings.
func buildTriageEngine(ctx context.Context, settings *conf.Settings, directory datastore.Store, metrics *observability.Metrics) (*triage.Engine, error) {
	alerts := settings.Alerts

	var voice triage.VoiceSender
	if alerts.Voice.Enabled {
		voice = triage.NewVoiceClient(alerts.Voice.BaseURL, alerts.Voice.CampaignID,
			alerts.Voice.Token, time.Duration(alerts.Voice.TimeoutMs)*time.Millisecond)
	}

	var message triage.MessageSender
	if alerts.Message.Enabled {
		message = triage.NewMessageClient(alerts.Message.BaseURL, alerts.Message.PhoneNumberID,
			alerts.Message.Token, alerts.Message.TemplateName, alerts.Message.LanguageCode,
			time.Duration(alerts.Message.TimeoutMs)*time.Millisecond, alerts.Message.RatePerMinute)
	}

	var push triage.PushSender
	if alerts.Push.Enabled && len(alerts.Push.URLs) > 0 {
		sender, err := triage.NewShoutrrrPush(alerts.Push.URLs)
		if err != nil {
			return nil, fmt.Errorf("failed to create push sender: %w", err)
		}
		push = sender
	}

	var store evidence.Store
	if alerts.Evidence.UseS3 {
		s3Store, err := evidence.NewS3Store(ctx, alerts.Evidence.S3Endpoint,
			alerts.Evidence.S3AccessKey, alerts.Evidence.S3SecretKey,
			alerts.Evidence.S3Bucket, alerts.Evidence.S3UseSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 evidence store: %w", err)
		}
		store = s3Store
	} else {
		fsStore, err := evidence.NewFilesystemStore(alerts.Evidence.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create evidence store: %w", err)
		}
		store = fsStore
	}

	return triage.NewEngine(alerts, directory, voice, message, push, store,
		triage.NewFFmpegTranscoder(), metrics.Alert), nil
}
