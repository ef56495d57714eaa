package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/rsas-protocol/rsas-go/pkg/log"
)

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout for each connection attempt. Default is 5s.
	ConnectTimeout time.Duration

	// ReconnectDelay between connection attempts. Default is 3s.
	ReconnectDelay time.Duration

	InsecureSkipVerify bool

	// StatusTopic, when set, carries "online" while connected and a retained
	// "offline" will message.
	StatusTopic string

	Logger log.Logger
}

// Validate checks the broker URL.
func (c *MQTTConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	if _, err := url.Parse(c.BrokerURL); err != nil {
		return err
	}
	return nil
}

// MQTTClient publishes over a reconnecting paho connection.
type MQTTClient struct {
	cfg    MQTTConfig
	logger log.Logger
	cm     *autopaho.ConnectionManager
}

// NewMQTTClient validates cfg and applies defaults. Call Start to connect.
func NewMQTTClient(cfg MQTTConfig) (*MQTTClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 60
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithName("mqtt")
	}
	return &MQTTClient{cfg: cfg, logger: logger}, nil
}

// Start begins connecting in the background. The connection lives until ctx
// is done or Disconnect is called.
func (c *MQTTClient) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(c.cfg.BrokerURL) // validated in NewMQTTClient

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectDelay),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		TlsCfg:                        &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify}, //nolint:gosec
		WillMessage:                   c.willMessage(),
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError:                c.onConnectError,
		ClientConfig: paho.ClientConfig{
			ClientID:           c.cfg.ClientID,
			OnClientError:      c.onClientError,
			OnServerDisconnect: c.onServerDisconnect,
		},
	}

	c.logger.Info("starting MQTT client", "broker", c.cfg.BrokerURL, "client_id", c.cfg.ClientID)

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

// Disconnect closes the connection.
func (c *MQTTClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if c.cfg.StatusTopic != "" {
		_ = c.Publish(ctx, c.cfg.StatusTopic, 1, true, []byte("offline"))
	}
	_ = c.cm.Disconnect(ctx)
	c.logger.Info("MQTT client disconnected")
}

// Publish implements Publisher. It waits for a connection until ctx is done.
func (c *MQTTClient) Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	if c.cm == nil {
		return errors.New("client not started")
	}
	if err := c.cm.AwaitConnection(ctx); err != nil {
		return err
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retain,
		Payload: payload,
	})
	return err
}

func (c *MQTTClient) willMessage() *paho.WillMessage {
	if c.cfg.StatusTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.StatusTopic,
		Payload: []byte("offline"),
		QoS:     1,
		Retain:  true,
	}
}

func (c *MQTTClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.logger.Info("MQTT connection established")
	if c.cfg.StatusTopic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   c.cfg.StatusTopic,
		QoS:     1,
		Retain:  true,
		Payload: []byte("online"),
	}); err != nil {
		c.logger.Error(err, "publish status", "topic", c.cfg.StatusTopic)
	}
}

func (c *MQTTClient) onConnectError(err error) {
	c.logger.Error(err, "MQTT connection failed, retrying")
}

func (c *MQTTClient) onClientError(err error) {
	c.logger.Error(err, "MQTT client error")
}

func (c *MQTTClient) onServerDisconnect(d *paho.Disconnect) {
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.logger.Warn("MQTT server requested disconnect", "reason", reason)
}

var _ Publisher = (*MQTTClient)(nil)
