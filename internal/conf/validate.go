package conf

import (
	"fmt"
)

// ValidateSettings checks the loaded settings for values that would break the
// pipeline at runtime. It returns the first problem found.
func ValidateSettings(s *Settings) error {
	if err := validateInference(&s.Inference); err != nil {
		return err
	}
	if err := validateThrottle(&s.Throttle); err != nil {
		return err
	}
	if err := validateAlerts(&s.Alerts); err != nil {
		return err
	}
	if s.Stream.SendTimeoutMs <= 0 {
		return fmt.Errorf("stream.sendtimeoutms must be positive, got %d", s.Stream.SendTimeoutMs)
	}
	if s.Stream.ArtifactRingSize < 2 {
		// The pull API serves the second-most-recent artifact, so two slots minimum
		return fmt.Errorf("stream.artifactringsize must be at least 2, got %d", s.Stream.ArtifactRingSize)
	}
	return nil
}

func validateInference(s *InferenceSettings) error {
	if s.Workers < 1 {
		return fmt.Errorf("inference.workers must be at least 1, got %d", s.Workers)
	}
	if s.BackendURL == "" {
		return fmt.Errorf("inference.backendurl must be set")
	}
	if s.DrawThreshold < 0 || s.DrawThreshold > 1 {
		return fmt.Errorf("inference.drawthreshold must be between 0 and 1, got %f", s.DrawThreshold)
	}
	return nil
}

func validateThrottle(s *ThrottleSettings) error {
	if s.MinInterval < 1 {
		return fmt.Errorf("throttle.mininterval must be at least 1, got %d", s.MinInterval)
	}
	if s.MaxInterval < s.MinInterval {
		return fmt.Errorf("throttle.maxinterval (%d) must not be below throttle.mininterval (%d)",
			s.MaxInterval, s.MinInterval)
	}
	if s.InitialInterval < s.MinInterval || s.InitialInterval > s.MaxInterval {
		return fmt.Errorf("throttle.initialinterval (%d) must be within [%d, %d]",
			s.InitialInterval, s.MinInterval, s.MaxInterval)
	}
	if s.ForceAfterMs <= 0 {
		return fmt.Errorf("throttle.forceafterms must be positive, got %d", s.ForceAfterMs)
	}
	return nil
}

func validateAlerts(s *AlertSettings) error {
	if s.CooldownMinutes < 0 {
		return fmt.Errorf("alerts.cooldownminutes must not be negative, got %d", s.CooldownMinutes)
	}
	for name, threshold := range map[string]float64{
		"alerts.dangerousthreshold":  s.DangerousThreshold,
		"alerts.endangeredthreshold": s.EndangeredThreshold,
	} {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, threshold)
		}
	}
	if s.Evidence.MaxVideoMB <= 0 {
		return fmt.Errorf("alerts.evidence.maxvideomb must be positive, got %d", s.Evidence.MaxVideoMB)
	}
	return nil
}
