// Package conf loads, validates and persists fretlab settings.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options.
type Settings struct {
	Debug bool `yaml:"debug"` // true to enable debug mode

	Logging   logger.LoggingConfig `yaml:"logging"`
	Tuner     TunerSettings        `yaml:"tuner"`
	Audio     AudioSettings        `yaml:"audio"`
	WebServer WebServerSettings    `yaml:"webserver"`
	MQTT      MQTTSettings         `yaml:"mqtt"`
	Telemetry TelemetrySettings    `yaml:"telemetry"`
	Sentry    SentrySettings       `yaml:"sentry"`
}

// TunerSettings controls frame analysis.
type TunerSettings struct {
	FrameSize     int     `yaml:"framesize"`     // samples per analysed frame
	MinLag        int     `yaml:"minlag"`        // smallest autocorrelation lag
	PeakThreshold float64 `yaml:"peakthreshold"` // fraction of the best correlation a shorter lag must reach
	TickRate      int     `yaml:"tickrate"`      // analysis ticks per second
	Estimator     string  `yaml:"estimator"`     // direct or fft
}

// TickInterval returns the time between analysis ticks.
func (t TunerSettings) TickInterval() time.Duration {
	if t.TickRate <= 0 {
		return time.Second / DefaultTickRate
	}
	return time.Second / time.Duration(t.TickRate)
}

// AudioSettings selects and configures the capture source.
type AudioSettings struct {
	Source        string             `yaml:"source"`        // malgo, file or tone
	Device        string             `yaml:"device"`        // capture device name or id, "sysdefault" for the default
	SampleRate    int                `yaml:"samplerate"`    // requested device rate, 0 for native
	BufferSeconds float64            `yaml:"bufferseconds"` // capture ring buffer length
	File          FileSourceSettings `yaml:"file"`
	Tone          ToneSourceSettings `yaml:"tone"`
}

// FileSourceSettings configures playback of a WAV or FLAC file as input.
type FileSourceSettings struct {
	Path string `yaml:"path"`
	Loop bool   `yaml:"loop"`
}

// ToneSourceSettings configures the synthetic sine source.
type ToneSourceSettings struct {
	Note       string  `yaml:"note"`      // scientific pitch name, overrides frequency when set
	Frequency  float64 `yaml:"frequency"` // Hz
	SampleRate int     `yaml:"samplerate"`
	Amplitude  float64 `yaml:"amplitude"`
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // host:port
	Debug   bool   `yaml:"debug"`  // log every request
}

// MQTTSettings configures note publishing to an MQTT broker.
type MQTTSettings struct {
	Enabled  bool          `yaml:"enabled"`
	Broker   string        `yaml:"broker"` // tcp://host:1883
	Topic    string        `yaml:"topic"`  // base topic, "note" and "state" are appended
	ClientID string        `yaml:"clientid"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	QoS      int           `yaml:"qos"`
	Retain   bool          `yaml:"retain"`
	Interval time.Duration `yaml:"interval"` // minimum time between unchanged updates
}

// TelemetrySettings configures the Prometheus metrics endpoint.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables. When
// configFile is empty the default search paths are used and a default file
// is created if none exists.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// initViper sets defaults and environment binding, then reads the config file.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("FRETLAB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(fmt.Errorf("error reading config file %s: %w", configFile, err)).
				Component("configuration").
				Category(errors.CategoryConfiguration).
				FileContext(configFile).
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// DefaultConfigYAML returns the embedded default configuration.
func DefaultConfigYAML() ([]byte, error) {
	return fs.ReadFile(configFiles, "config.yaml")
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically.
// Comments and ordering of an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := MarshalYAML(settings)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// MarshalYAML renders settings as YAML. Call Redacted first for display.
func MarshalYAML(settings *Settings) ([]byte, error) {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}

// Redacted returns a copy of settings with credentials replaced.
func (s *Settings) Redacted() *Settings {
	c := *s
	if c.MQTT.Password != "" {
		c.MQTT.Password = "[REDACTED]"
	}
	if c.Sentry.DSN != "" {
		c.Sentry.DSN = "[REDACTED]"
	}
	return &c
}
