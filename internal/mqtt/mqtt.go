// Package mqtt publishes tuner updates to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/logger"
)

// Client is the broker connection used by Publisher.
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
	IsConnected() bool
	// Disconnect closes the connection and stops reconnect attempts.
	Disconnect()
}

// Config holds broker credentials and client timings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte

	// ReconnectCooldown is the minimum time between two Connect calls.
	ReconnectCooldown time.Duration
	// ReconnectDelay is the wait after a lost connection before retrying.
	ReconnectDelay    time.Duration
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns the client timings used by fretlab.
func DefaultConfig() Config {
	return Config{
		ReconnectCooldown: 5 * time.Second,
		ReconnectDelay:    time.Second,
		ConnectTimeout:    10 * time.Second,
		PublishTimeout:    2 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings applies the mqtt settings to DefaultConfig. An empty
// client id is replaced by a random one.
func ConfigFromSettings(settings *conf.Settings) Config {
	config := DefaultConfig()
	config.Broker = settings.MQTT.Broker
	config.ClientID = settings.MQTT.ClientID
	config.Username = settings.MQTT.Username
	config.Password = settings.MQTT.Password
	config.QoS = byte(settings.MQTT.QoS)
	if config.ClientID == "" {
		config.ClientID = "fretlab-" + uuid.NewString()[:8]
	}
	return config
}

// GetLogger returns the mqtt module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
