package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/registry"
)

// Notifier is told about registry changes and finished activations. Calls
// must not block the caller for long.
type Notifier interface {
	DeviceChanged(c registry.Change)
	ActivationCompleted(a Activation)
}

// Nop discards everything.
type Nop struct{}

func (Nop) DeviceChanged(registry.Change)  {}
func (Nop) ActivationCompleted(Activation) {}

// Activation is the published record of one activation attempt.
type Activation struct {
	DeviceID        string    `json:"device_id,omitempty"`
	Target          string    `json:"target"`
	Success         bool      `json:"success"`
	RIDID           string    `json:"rid_id,omitempty"`
	LooksSuccessful bool      `json:"looks_successful"`
	Error           string    `json:"error,omitempty"`
	At              time.Time `json:"at"`
}

// NewActivation builds the record for req's outcome.
func NewActivation(req activation.Request, res activation.Result, err error, at time.Time) Activation {
	a := Activation{
		DeviceID:        req.DeviceID,
		Target:          req.Target.String(),
		Success:         err == nil && res.Accepted,
		RIDID:           res.RIDID,
		LooksSuccessful: res.LooksSuccessful,
		At:              at,
	}
	if a.DeviceID == "" {
		a.DeviceID = req.ESN
	}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Publisher sends one MQTT message. MQTTClient implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
}

// Topics builds topic names under a root.
type Topics struct {
	Root string
}

// Device is the retained topic carrying a module's registry entry.
func (t Topics) Device(esn string) string {
	return t.Root + "/devices/" + topicSegment(esn)
}

// Activation is the topic activation records are published to.
func (t Topics) Activation(esn string) string {
	return t.Root + "/activations/" + topicSegment(esn)
}

// topicSegment keeps an identifier from introducing levels or wildcards.
func topicSegment(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}

type message struct {
	topic   string
	retain  bool
	payload []byte
}

// PublisherConfig configures a PublishingNotifier.
type PublisherConfig struct {
	Publisher Publisher
	Topics    Topics
	QoS       byte

	// QueueSize bounds messages waiting for the broker. Further messages are
	// dropped while the queue is full.
	QueueSize int

	// PublishTimeout bounds each publish.
	PublishTimeout time.Duration

	Logger log.Logger
}

// PublishingNotifier turns notifications into MQTT messages delivered by a
// background loop, so registry writers never wait on the broker.
type PublishingNotifier struct {
	cfg    PublisherConfig
	logger log.Logger
	queue  chan message

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPublishingNotifier creates a notifier. Publisher is required.
func NewPublishingNotifier(cfg PublisherConfig) *PublishingNotifier {
	if cfg.Topics.Root == "" {
		cfg.Topics.Root = "rsas"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithName("notify")
	}
	return &PublishingNotifier{cfg: cfg, logger: logger, queue: make(chan message, cfg.QueueSize)}
}

// Start launches the delivery loop.
func (n *PublishingNotifier) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		return
	}
	ctx, n.cancel = context.WithCancel(ctx)
	n.done = make(chan struct{})
	go n.run(ctx, n.done)
}

// Stop halts the delivery loop. Queued messages are discarded.
func (n *PublishingNotifier) Stop() {
	n.mu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (n *PublishingNotifier) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-n.queue:
			pctx, cancel := context.WithTimeout(ctx, n.cfg.PublishTimeout)
			err := n.cfg.Publisher.Publish(pctx, m.topic, n.cfg.QoS, m.retain, m.payload)
			cancel()
			if err != nil && ctx.Err() == nil {
				n.logger.Warn("publish failed", "topic", m.topic, "error", err)
			}
		}
	}
}

func (n *PublishingNotifier) enqueue(m message) {
	select {
	case n.queue <- m:
	default:
		n.logger.Warn("notification queue full, dropping message", "topic", m.topic)
	}
}

// DeviceChanged publishes the device under its retained topic. Removal and
// expiry publish an empty retained payload, which clears the topic.
func (n *PublishingNotifier) DeviceChanged(c registry.Change) {
	m := message{topic: n.cfg.Topics.Device(c.Device.ID), retain: true}
	if c.Kind == registry.ChangeAdded || c.Kind == registry.ChangeUpdated {
		payload, err := json.Marshal(c.Device)
		if err != nil {
			n.logger.Error(err, "encode device", "esn", c.Device.ID)
			return
		}
		m.payload = payload
	}
	n.enqueue(m)
}

// ActivationCompleted publishes an activation record.
func (n *PublishingNotifier) ActivationCompleted(a Activation) {
	payload, err := json.Marshal(a)
	if err != nil {
		n.logger.Error(err, "encode activation", "device", a.DeviceID)
		return
	}
	n.enqueue(message{topic: n.cfg.Topics.Activation(a.DeviceID), payload: payload})
}

var (
	_ Notifier = Nop{}
	_ Notifier = (*PublishingNotifier)(nil)
)
