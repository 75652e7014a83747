// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults shared with validation and command line flags.
const (
	DefaultFrameSize     = 2048
	DefaultMinLag        = 40
	DefaultPeakThreshold = 0.9
	DefaultTickRate      = 60
	DefaultEstimator     = "direct"

	SourceMalgo = "malgo"
	SourceFile  = "file"
	SourceTone  = "tone"
)

// setDefaultConfig sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/fretlab.log")
	viper.SetDefault("logging.file_output.level", "debug")

	viper.SetDefault("tuner.framesize", DefaultFrameSize)
	viper.SetDefault("tuner.minlag", DefaultMinLag)
	viper.SetDefault("tuner.peakthreshold", DefaultPeakThreshold)
	viper.SetDefault("tuner.tickrate", DefaultTickRate)
	viper.SetDefault("tuner.estimator", DefaultEstimator)

	viper.SetDefault("audio.source", SourceMalgo)
	viper.SetDefault("audio.device", "sysdefault")
	viper.SetDefault("audio.samplerate", 0)
	viper.SetDefault("audio.bufferseconds", 1.0)
	viper.SetDefault("audio.file.path", "")
	viper.SetDefault("audio.file.loop", true)
	viper.SetDefault("audio.tone.note", "")
	viper.SetDefault("audio.tone.frequency", 110.0)
	viper.SetDefault("audio.tone.samplerate", 48000)
	viper.SetDefault("audio.tone.amplitude", 0.5)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", "127.0.0.1:8080")
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "fretlab/tuner")
	viper.SetDefault("mqtt.clientid", "")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.qos", 0)
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.interval", 250*time.Millisecond)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "127.0.0.1:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
}
