package options

import (
	"errors"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/rsas-protocol/rsas-go/pkg/notify"
)

var _ IOptions = (*MQTTOptions)(nil)

// MQTTOptions configures the optional MQTT notifier.
type MQTTOptions struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`

	// InsecureSkipVerify disables broker certificate verification.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// TopicRoot prefixes every topic: {TopicRoot}/devices/<esn>.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`

	QoS int `json:"qos" mapstructure:"qos"`
}

// NewMQTTOptions creates MQTTOptions with default parameters.
func NewMQTTOptions() *MQTTOptions {
	return &MQTTOptions{
		Broker:         "mqtt://127.0.0.1:1883",
		ClientID:       "rsas-discovery",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 5 * time.Second,
		TopicRoot:      "rsas",
		QoS:            1,
	}
}

// Validate checks the broker URL and QoS when enabled.
func (o *MQTTOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	var errs []error
	if u, err := url.Parse(o.Broker); err != nil || u.Host == "" {
		errs = append(errs, errors.New("mqtt.broker must be a URL such as mqtt://host:1883"))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errs = append(errs, errors.New("mqtt.qos must be 0, 1 or 2"))
	}
	if o.TopicRoot == "" {
		errs = append(errs, errors.New("mqtt.topic-root must not be empty"))
	}
	return errs
}

// AddFlags adds flags for MQTTOptions to fs.
func (o *MQTTOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "mqtt.enabled", o.Enabled, "Publish device and activation events to MQTT.")
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "MQTT client ID.")
	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT keep alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing the MQTT connection.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "Skip TLS certificate verification of the broker.")
	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Topic prefix for published events.")
	fs.IntVar(&o.QoS, "mqtt.qos", o.QoS, "QoS level for published events.")
}

// ToClientConfig returns the MQTT client configuration.
func (o *MQTTOptions) ToClientConfig() notify.MQTTConfig {
	return notify.MQTTConfig{
		BrokerURL:          o.Broker,
		ClientID:           o.ClientID,
		Username:           o.Username,
		Password:           o.Password,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		ConnectTimeout:     o.ConnectTimeout,
		InsecureSkipVerify: o.InsecureSkipVerify,
		StatusTopic:        o.TopicRoot + "/status",
	}
}
