// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/tphakala/fretlab/internal/logger"
)

const (
	maxFrameSize = 1 << 15
	maxTickRate  = 240

	// lowE2 is the lowest string of standard tuning.
	lowE2 = 82.41
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateTunerSettings(&s.Tuner) },
		func(s *Settings) error { return validateAudioSettings(&s.Audio, &s.Tuner) },
		func(s *Settings) error { return validateWebServerSettings(&s.WebServer) },
		func(s *Settings) error { return validateMQTTSettings(&s.MQTT) },
		func(s *Settings) error { return validateTelemetrySettings(&s.Telemetry) },
		func(s *Settings) error { return validateSentrySettings(&s.Sentry) },
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func joinErrs(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings errors: %s", section, strings.Join(errs, "; "))
}

func validateTunerSettings(t *TunerSettings) error {
	var errs []string

	if t.MinLag < 2 {
		errs = append(errs, fmt.Sprintf("minlag must be at least 2, got %d", t.MinLag))
	}
	if t.FrameSize/2 <= t.MinLag {
		errs = append(errs, fmt.Sprintf("framesize %d leaves no lags above minlag %d", t.FrameSize, t.MinLag))
	}
	if t.FrameSize > maxFrameSize {
		errs = append(errs, fmt.Sprintf("framesize must not exceed %d, got %d", maxFrameSize, t.FrameSize))
	}
	if !(t.PeakThreshold > 0 && t.PeakThreshold <= 1) {
		errs = append(errs, fmt.Sprintf("peakthreshold must be in (0, 1], got %v", t.PeakThreshold))
	}
	if t.TickRate < 1 || t.TickRate > maxTickRate {
		errs = append(errs, fmt.Sprintf("tickrate must be between 1 and %d, got %d", maxTickRate, t.TickRate))
	}
	switch t.Estimator {
	case "direct", "fft":
	default:
		errs = append(errs, fmt.Sprintf("estimator must be direct or fft, got %q", t.Estimator))
	}

	return joinErrs("tuner", errs)
}

func validateAudioSettings(a *AudioSettings, t *TunerSettings) error {
	var errs []string

	switch a.Source {
	case SourceMalgo:
		if a.Device == "" {
			errs = append(errs, "device must be set for malgo source, use sysdefault for the default device")
		}
	case SourceFile:
		if a.File.Path == "" {
			errs = append(errs, "file.path is required for file source")
		}
	case SourceTone:
		if a.Tone.Note == "" && a.Tone.Frequency <= 0 {
			errs = append(errs, "tone.frequency must be positive when tone.note is empty")
		}
		if a.Tone.SampleRate <= 0 {
			errs = append(errs, "tone.samplerate must be positive")
		}
		if a.Tone.Amplitude <= 0 || a.Tone.Amplitude > 1 {
			errs = append(errs, fmt.Sprintf("tone.amplitude must be in (0, 1], got %v", a.Tone.Amplitude))
		}
	default:
		errs = append(errs, fmt.Sprintf("source must be one of malgo, file, tone; got %q", a.Source))
	}

	if a.SampleRate < 0 {
		errs = append(errs, "samplerate must not be negative")
	}
	if a.BufferSeconds <= 0 {
		errs = append(errs, "bufferseconds must be positive")
	}

	if rate := a.SampleRate; rate > 0 && t.FrameSize > 1 {
		if lowest := float64(rate) / float64(t.FrameSize/2); lowest > lowE2 {
			logger.Global().Module("conf").Warn("frame size too small to detect low E",
				logger.Int("frame_size", t.FrameSize),
				logger.Int("sample_rate", rate),
				logger.Float64("lowest_hz", lowest))
		}
	}

	return joinErrs("audio", errs)
}

func validateWebServerSettings(w *WebServerSettings) error {
	if !w.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(w.Listen); err != nil {
		return joinErrs("webserver", []string{fmt.Sprintf("invalid listen address %q: %v", w.Listen, err)})
	}
	return nil
}

func validateMQTTSettings(m *MQTTSettings) error {
	if !m.Enabled {
		return nil
	}

	var errs []string
	if m.Broker == "" {
		errs = append(errs, "broker URL is required")
	} else if u, err := url.Parse(m.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("invalid broker URL %q", m.Broker))
	}
	if m.Topic == "" {
		errs = append(errs, "topic is required")
	}
	if m.QoS < 0 || m.QoS > 2 {
		errs = append(errs, fmt.Sprintf("qos must be 0, 1 or 2, got %d", m.QoS))
	}
	if m.Interval < 0 {
		errs = append(errs, "interval must not be negative")
	}

	return joinErrs("mqtt", errs)
}

func validateTelemetrySettings(t *TelemetrySettings) error {
	if !t.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(t.Listen); err != nil {
		return joinErrs("telemetry", []string{fmt.Sprintf("invalid listen address %q: %v", t.Listen, err)})
	}
	return nil
}

func validateSentrySettings(s *SentrySettings) error {
	if s.Enabled && s.DSN == "" {
		return joinErrs("sentry", []string{"dsn is required when sentry is enabled"})
	}
	return nil
}
