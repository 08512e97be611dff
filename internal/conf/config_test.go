package conf

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings(t *testing.T) *Settings {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, initViper())
	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))
	return settings
}

func TestDefaultsProduceValidSettings(t *testing.T) {
	settings := defaultSettings(t)
	require.NoError(t, ValidateSettings(settings))

	assert.Equal(t, "8080", settings.WebServer.Port)
	assert.Equal(t, 15, settings.Throttle.InitialInterval)
	assert.Equal(t, 5, settings.Throttle.MinInterval)
	assert.Equal(t, 30, settings.Throttle.MaxInterval)
	assert.Equal(t, 2000, settings.Throttle.ForceAfterMs)
	assert.Equal(t, 0.50, settings.Alerts.DangerousThreshold)
	assert.Equal(t, 5, settings.Alerts.CooldownMinutes)
	assert.Equal(t, 15, settings.Alerts.Evidence.MaxVideoMB)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("WILDGUARD_WEBSERVER_PORT", "9090")

	settings := defaultSettings(t)
	assert.Equal(t, "9090", settings.WebServer.Port)
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(s *Settings) {},
		},
		{
			name:    "zero inference workers",
			mutate:  func(s *Settings) { s.Inference.Workers = 0 },
			wantErr: "inference.workers",
		},
		{
			name:    "missing backend URL",
			mutate:  func(s *Settings) { s.Inference.BackendURL = "" },
			wantErr: "inference.backendurl",
		},
		{
			name:    "draw threshold above one",
			mutate:  func(s *Settings) { s.Inference.DrawThreshold = 1.5 },
			wantErr: "inference.drawthreshold",
		},
		{
			name:    "interval bounds inverted",
			mutate:  func(s *Settings) { s.Throttle.MaxInterval = 2 },
			wantErr: "throttle.maxinterval",
		},
		{
			name: "initial interval outside bounds",
			mutate: func(s *Settings) {
				s.Throttle.InitialInterval = 50
			},
			wantErr: "throttle.initialinterval",
		},
		{
			name:    "forced interval must be positive",
			mutate:  func(s *Settings) { s.Throttle.ForceAfterMs = 0 },
			wantErr: "throttle.forceafterms",
		},
		{
			name:    "negative cooldown",
			mutate:  func(s *Settings) { s.Alerts.CooldownMinutes = -1 },
			wantErr: "alerts.cooldownminutes",
		},
		{
			name:    "dangerous threshold above one",
			mutate:  func(s *Settings) { s.Alerts.DangerousThreshold = 1.2 },
			wantErr: "alerts.dangerousthreshold",
		},
		{
			name:    "evidence size cap must be positive",
			mutate:  func(s *Settings) { s.Alerts.Evidence.MaxVideoMB = 0 },
			wantErr: "alerts.evidence.maxvideomb",
		},
		{
			name:    "artifact ring too small",
			mutate:  func(s *Settings) { s.Stream.ArtifactRingSize = 1 },
			wantErr: "stream.artifactringsize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := defaultSettings(t)
			tt.mutate(settings)

			err := ValidateSettings(settings)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
