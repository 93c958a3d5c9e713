// Package mqttbridge connects the live state to an MQTT broker: sensor
// readings on one topic become state updates, and every state push is
// republished, retained, on another.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/i474232898/irrigation-assistant/internal/livestate"
)

// StateService is the slice of livestate.Service the bridge needs.
type StateService interface {
	Update(partial map[string]json.RawMessage, source string) (map[string]any, error)
	Join(obs livestate.Observer) (string, <-chan error, error)
	Leave(id string)
	Done(id string) <-chan struct{}
}

// Options configures the broker connection.
type Options struct {
	Broker      string
	ClientID    string
	SensorTopic string
	StateTopic  string
	// RejoinDelay is the wait before registering again after the hub dropped
	// the bridge's observer. Defaults to 5s.
	RejoinDelay time.Duration
	Logger      *slog.Logger
}

const (
	qos                = 1
	connectTimeout     = 10 * time.Second
	defaultRejoinDelay = 5 * time.Second
)

var (
	errPublishTimeout = errors.New("mqtt publish timed out")
	errStopped        = errors.New("mqtt bridge stopped")
)

type Bridge struct {
	opts   Options
	state  StateService
	logger *slog.Logger

	client  mqtt.Client
	publish func(ctx context.Context, payload []byte) error

	joinMu     sync.Mutex
	mu         sync.Mutex
	observerID string
	stopping   chan struct{}
	stopOnce   sync.Once
}

func New(opts Options, state StateService) *Bridge {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RejoinDelay <= 0 {
		opts.RejoinDelay = defaultRejoinDelay
	}
	b := &Bridge{opts: opts, state: state, logger: opts.Logger, stopping: make(chan struct{})}
	b.publish = b.publishToBroker
	return b
}

// Start dials the broker. Subscription and observer registration happen in
// the connect handler so they are restored after every reconnect.
func (b *Bridge) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.opts.Broker).
		SetClientID(b.opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost, will reconnect", "error", err)
			b.leave()
		})

	b.client = mqtt.NewClient(opts)
	tok := b.client.Connect()
	if ok := tok.WaitTimeout(connectTimeout); !ok {
		return fmt.Errorf("MQTT connect timed out")
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("MQTT connect: %w", err)
	}
	return nil
}

// Stop unregisters the observer and disconnects.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.stopping) })
	b.leave()
	if b.client != nil {
		b.client.Disconnect(250)
	}
}

func (b *Bridge) onConnect(c mqtt.Client) {
	b.logger.Info("connected to MQTT broker", "broker", b.opts.Broker)

	tok := c.Subscribe(b.opts.SensorTopic, qos, b.handleSensor)
	if ok := tok.WaitTimeout(connectTimeout); !ok {
		b.logger.Warn("subscribe timed out after connect", "topic", b.opts.SensorTopic)
	} else if err := tok.Error(); err != nil {
		b.logger.Error("subscribe failed after connect", "topic", b.opts.SensorTopic, "error", err)
	} else {
		b.logger.Info("subscribed to MQTT topic", "topic", b.opts.SensorTopic, "qos", qos)
	}

	if err := b.join(); err != nil {
		b.logger.Error("registering MQTT state observer failed", "error", err)
	}
}

// join registers the bridge as a state observer, replacing any previous
// registration. If the hub later drops the observer, the bridge joins again.
func (b *Bridge) join() error {
	b.joinMu.Lock()
	defer b.joinMu.Unlock()
	select {
	case <-b.stopping:
		return errStopped
	default:
	}
	b.leave()

	id, _, err := b.state.Join(livestate.ObserverFunc(b.publish))
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.observerID = id
	b.mu.Unlock()

	go b.watch(id, b.state.Done(id))
	return nil
}

// watch rejoins after RejoinDelay when observer id disappears while it is
// still the bridge's current registration.
func (b *Bridge) watch(id string, done <-chan struct{}) {
	select {
	case <-done:
	case <-b.stopping:
		return
	}
	if !b.isCurrent(id) {
		return
	}
	b.logger.Warn("MQTT state observer dropped, rejoining", "observer", id, "delay", b.opts.RejoinDelay)

	select {
	case <-time.After(b.opts.RejoinDelay):
	case <-b.stopping:
		return
	}
	if !b.isCurrent(id) {
		return
	}
	if err := b.join(); err != nil {
		b.logger.Error("rejoining MQTT state observer failed", "error", err)
	}
}

func (b *Bridge) isCurrent(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observerID == id
}

func (b *Bridge) leave() {
	b.mu.Lock()
	id := b.observerID
	b.observerID = ""
	b.mu.Unlock()
	if id != "" {
		b.state.Leave(id)
	}
}

// handleSensor applies a JSON object payload as a partial state update.
func (b *Bridge) handleSensor(_ mqtt.Client, msg mqtt.Message) {
	var partial map[string]json.RawMessage
	if err := json.Unmarshal(msg.Payload(), &partial); err != nil || partial == nil {
		b.logger.Warn("ignoring malformed sensor message", "topic", msg.Topic(), "error", err)
		return
	}

	accepted, err := b.state.Update(partial, livestate.SourceMQTT)
	if err != nil {
		b.logger.Error("applying sensor message failed", "topic", msg.Topic(), "error", err)
		return
	}
	b.logger.Debug("sensor message applied", "topic", msg.Topic(), "accepted", len(accepted))
}

func (b *Bridge) publishToBroker(ctx context.Context, payload []byte) error {
	tok := b.client.Publish(b.opts.StateTopic, qos, true, payload)

	wait := connectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if ok := tok.WaitTimeout(wait); !ok {
		return errPublishTimeout
	}
	return tok.Error()
}
