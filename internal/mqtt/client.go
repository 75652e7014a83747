// client.go: paho backed implementation of Client.
package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/errors"
	"github.com/tphakala/fretlab/internal/logger"
	"github.com/tphakala/fretlab/internal/observability/metrics"
)

const maxReconnectBackoff = 5 * time.Minute

var errTimeout = errors.NewStd("timed out")

type client struct {
	config  Config
	metrics *metrics.MQTTMetrics

	mu          sync.Mutex
	conn        paho.Client
	lastAttempt time.Time
	retry       *time.Timer

	stop     chan struct{}
	stopOnce sync.Once
}

// NewClient returns a Client for the broker in settings. Nothing is dialled
// until Connect.
func NewClient(settings *conf.Settings, m *metrics.MQTTMetrics) (Client, error) {
	if m == nil {
		return nil, clientError(errors.NewStd("mqtt client requires metrics"), errors.CategoryValidation)
	}
	return &client{
		config:  ConfigFromSettings(settings),
		metrics: m,
		stop:    make(chan struct{}),
	}, nil
}

func clientError(err error, category errors.ErrorCategory) error {
	return errors.New(err).Component("mqtt").Category(category).Build()
}

// Connect dials the broker. Calls closer together than ReconnectCooldown
// fail without dialling.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("last connection attempt was %v ago", since.Round(time.Millisecond)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	c.lastAttempt = time.Now()

	if err := c.resolveBroker(ctx); err != nil {
		return err
	}

	c.conn = paho.NewClient(c.options())
	if err := c.wait(ctx, c.conn.Connect(), c.config.ConnectTimeout); err != nil {
		c.metrics.IncrementErrors()
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnection).
			Context("broker", c.config.Broker).
			Build()
	}

	c.metrics.UpdateConnectionStatus(true)
	return nil
}

// resolveBroker fails fast on a malformed URL or an unknown host instead of
// waiting for the connect timeout.
func (c *client) resolveBroker(ctx context.Context) error {
	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", c.config.Broker).
			Build()
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryNetwork).
			Context("host", host).
			Build()
	}
	return nil
}

func (c *client) options() *paho.ClientOptions {
	return paho.NewClientOptions().
		AddBroker(c.config.Broker).
		SetClientID(c.config.ClientID).
		SetUsername(c.config.Username).
		SetPassword(c.config.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetOnConnectHandler(func(paho.Client) {
			GetLogger().Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
			c.metrics.UpdateConnectionStatus(true)
		}).
		SetConnectionLostHandler(c.connectionLost)
}

// wait blocks until token completes, timeout passes or ctx is done.
func (c *client) wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish sends payload to topic with the configured QoS.
func (c *client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected() {
		return clientError(errors.NewStd("not connected to MQTT broker"), errors.CategoryMQTTPublish)
	}

	timer := c.metrics.StartPublishTimer()
	defer timer.ObserveDuration()

	if err := c.wait(ctx, c.conn.Publish(topic, c.config.QoS, retain, payload), c.config.PublishTimeout); err != nil {
		c.metrics.IncrementErrors()
		GetLogger().Warn("publish failed", logger.String("topic", topic), logger.Error(err))
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	c.metrics.IncrementMessagesDelivered()
	c.metrics.ObserveMessageSize(float64(len(payload)))
	return nil
}

func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected()
}

func (c *client) connected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Disconnect closes the connection and cancels any pending reconnect.
func (c *client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retry != nil {
		c.retry.Stop()
	}
	if c.connected() {
		c.conn.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.UpdateConnectionStatus(false)
	}
}

func (c *client) connectionLost(_ paho.Client, err error) {
	GetLogger().Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
	c.metrics.IncrementErrors()

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.stop:
		return
	default:
	}
	c.retry = time.AfterFunc(c.config.ReconnectDelay, c.reconnect)
}

// reconnect retries Connect with exponential backoff, never faster than the
// connect cooldown, until it succeeds or Disconnect is called.
func (c *client) reconnect() {
	backoff := max(c.config.ReconnectCooldown, time.Second)
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		c.metrics.IncrementReconnectAttempts()
		ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			GetLogger().Info("reconnected to MQTT broker")
			return
		}

		GetLogger().Warn("failed to reconnect to MQTT broker",
			logger.Error(err),
			logger.Duration("retry_in", backoff))

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnectBackoff)
		case <-c.stop:
			return
		}
	}
}
