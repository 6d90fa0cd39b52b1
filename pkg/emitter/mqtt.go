// Package emitter publishes marker detections to an MQTT broker.
//
// Topics follow the EasyMQTT device layout, all under "<type>/<id>/":
//
//	register  retained JSON describing the device
//	status    retained {"online":...}; the broker sends the offline form as the will
//	markers   one JSON event per frame with detections
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/markercam/internal/log"
	"github.com/teslashibe/markercam/pkg/scanner"
)

// Topic suffixes under the device prefix.
const (
	TopicRegister = "register"
	TopicStatus   = "status"
	TopicMarkers  = "markers"
)

const (
	statusOnline  = `{"online":true,"locked":false}`
	statusOffline = `{"online":false}`

	publishTimeout = 2 * time.Second
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt: timeout")

// Config holds broker and device identity settings.
type Config struct {
	Broker         string        // host:port or scheme://host:port
	DeviceType     string        // first topic level, "camera" by default
	DeviceID       string        // second topic level, the run session by default
	Dictionary     string        // advertised in the register payload
	QoS            byte          // for marker events
	Buffer         int           // queued events before drops
	ConnectTimeout time.Duration
}

// DefaultConfig returns a config for broker with the given device id.
func DefaultConfig(broker, deviceID string) Config {
	return Config{
		Broker:         broker,
		DeviceType:     "camera",
		DeviceID:       deviceID,
		Buffer:         64,
		ConnectTimeout: 5 * time.Second,
	}
}

// BrokerURL adds the tcp:// scheme when broker has none.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Stats contains emitter counters.
type Stats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

// Emitter queues detection events and publishes them from Run, so the
// scanner loop never waits on the network.
type Emitter struct {
	cfg    Config
	client mqtt.Client
	prefix string
	logger *slog.Logger
	queue  chan []byte

	published atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64

	closeOnce sync.Once
}

// New wraps an existing client. Dial is the usual constructor.
func New(cfg Config, client mqtt.Client) *Emitter {
	if cfg.DeviceType == "" {
		cfg.DeviceType = "camera"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Emitter{
		cfg:    cfg,
		client: client,
		prefix: cfg.DeviceType + "/" + cfg.DeviceID + "/",
		logger: log.Component("mqtt").With("device", cfg.DeviceType+"/"+cfg.DeviceID),
		queue:  make(chan []byte, cfg.Buffer),
	}
}

// Dial connects to the broker. The device announces itself on every
// (re)connect and the broker marks it offline if the connection drops.
func Dial(cfg Config) (*Emitter, error) {
	e := New(cfg, nil)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(cfg.Broker))
	opts.SetClientID("markercam-" + cfg.DeviceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(e.Topic(TopicStatus), statusOffline, 0, true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		e.logger.Info("mqtt connection established", "broker", cfg.Broker)
		if err := e.Announce(); err != nil {
			e.logger.Warn("device registration failed", "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		e.logger.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	})

	e.client = mqtt.NewClient(opts)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	e.logger.Info("connecting to mqtt broker", "broker", cfg.Broker)
	token := e.client.Connect()
	if !token.WaitTimeout(timeout) {
		e.client.Disconnect(0)
		return nil, fmt.Errorf("%w: connect to %s", ErrTimeout, cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return e, nil
}

// Topic returns the full topic for suffix.
func (e *Emitter) Topic(suffix string) string {
	return e.prefix + suffix
}

// Announce publishes the retained register document and online status.
func (e *Emitter) Announce() error {
	reg, err := json.Marshal(map[string]any{
		"id":         e.cfg.DeviceID,
		"type":       e.cfg.DeviceType,
		"actions":    []string{},
		"sensors":    []string{TopicMarkers},
		"dictionary": e.cfg.Dictionary,
	})
	if err != nil {
		return err
	}
	if err := e.send(TopicRegister, 1, true, reg); err != nil {
		return err
	}
	return e.send(TopicStatus, 1, true, []byte(statusOnline))
}

// Publish queues ev for Run. It never blocks; a full queue drops the event.
// Its signature matches scanner.WithObserver.
func (e *Emitter) Publish(ev scanner.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		e.errors.Add(1)
		return
	}
	select {
	case e.queue <- payload:
	default:
		e.dropped.Add(1)
	}
}

// Run publishes queued events until ctx is cancelled.
func (e *Emitter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-e.queue:
			if err := e.send(TopicMarkers, e.cfg.QoS, false, payload); err != nil {
				e.logger.Debug("publish failed", "error", err)
			}
		}
	}
}

func (e *Emitter) send(suffix string, qos byte, retained bool, payload []byte) error {
	token := e.client.Publish(e.Topic(suffix), qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.errors.Add(1)
		return fmt.Errorf("%w: publish %s", ErrTimeout, suffix)
	}
	if err := token.Error(); err != nil {
		e.errors.Add(1)
		return fmt.Errorf("mqtt: publish %s: %w", suffix, err)
	}
	e.published.Add(1)
	return nil
}

// Close marks the device offline and disconnects. Safe to call more than once.
func (e *Emitter) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.client == nil || !e.client.IsConnected() {
			return
		}
		err = e.send(TopicStatus, 1, true, []byte(statusOffline))
		e.client.Disconnect(250)
		e.logger.Info("mqtt disconnected")
	})
	return err
}

// Stats returns a snapshot of the counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Connected: e.client != nil && e.client.IsConnected(),
		Published: e.published.Load(),
		Dropped:   e.dropped.Load(),
		Errors:    e.errors.Load(),
	}
}
