package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andresmejia3/kiosk/internal/types"
)

var (
	// ErrNotConnected is returned by Deliver before Connect succeeds or after the link drops.
	ErrNotConnected = errors.New("mqtt not connected")
	// ErrQueueFull is returned by Deliver when the broker falls too far behind.
	ErrQueueFull = errors.New("mqtt publish queue full")
)

const (
	publishQueueSize = 64
	publishTimeout   = 2 * time.Second
)

// MQTTSink publishes every toast as a JSON event on a broker topic.
// Deliver only enqueues; a single goroutine publishes and waits on the broker.
type MQTTSink struct {
	broker   string
	topic    string
	clientID string
	logger   *zap.Logger

	queue     chan types.Toast
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	client    mqtt.Client
	connected bool
	published uint64
	errors    uint64
}

// attendanceEvent is the MQTT payload.
type attendanceEvent struct {
	Type      string    `json:"type"`
	ToastID   string    `json:"toast_id"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMQTTSink(broker, topic string, logger *zap.Logger) *MQTTSink {
	m := &MQTTSink{
		broker:   broker,
		topic:    topic,
		clientID: "kiosk-" + uuid.NewString()[:8],
		logger:   logger.Named("mqtt"),
		queue:    make(chan types.Toast, publishQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.publishLoop()
	return m
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return fmt.Sprintf("tcp://%s", broker)
}

// Connect establishes the broker connection. The client reconnects on its own afterwards.
func (m *MQTTSink) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(m.broker))
	opts.SetClientID(m.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		m.setConnected(true)
		m.logger.Info("mqtt connection established", zap.String("broker", m.broker), zap.String("client_id", m.clientID))
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		m.setConnected(false)
		m.logger.Warn("mqtt connection lost, will auto-reconnect", zap.String("broker", m.broker), zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	m.logger.Info("connecting to mqtt broker", zap.String("broker", m.broker))

	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return errors.New("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	m.setConnected(true)
	return nil
}

func (m *MQTTSink) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// Deliver implements Sink. It never waits for the broker.
func (m *MQTTSink) Deliver(toast types.Toast) error {
	m.mu.RLock()
	client, connected := m.client, m.connected
	m.mu.RUnlock()

	if !connected || client == nil {
		m.countError()
		return ErrNotConnected
	}

	select {
	case m.queue <- toast:
		return nil
	default:
		m.countError()
		return ErrQueueFull
	}
}

func (m *MQTTSink) publishLoop() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			return
		case toast := <-m.queue:
			if err := m.publish(toast); err != nil {
				m.countError()
				m.logger.Warn("mqtt publish failed", zap.String("toast_id", toast.ID), zap.Error(err))
				continue
			}
			m.mu.Lock()
			m.published++
			m.mu.Unlock()
		}
	}
}

func (m *MQTTSink) publish(toast types.Toast) error {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return ErrNotConnected
	}

	payload, err := encodeEvent(toast)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	token := client.Publish(m.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-time.After(publishTimeout):
		return errors.New("publish timeout")
	case <-m.stop:
		return errors.New("sink closed")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

func (m *MQTTSink) countError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

// Stats returns published and failed publish counts.
func (m *MQTTSink) Stats() (published, failed uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.published, m.errors
}

// Close stops publishing and disconnects from the broker. Queued toasts are dropped.
func (m *MQTTSink) Close() {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.done

	m.mu.Lock()
	client := m.client
	m.connected = false
	m.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		m.logger.Info("mqtt disconnected")
	}
}

func encodeEvent(toast types.Toast) ([]byte, error) {
	return json.Marshal(attendanceEvent{
		Type:      "new_attendance",
		ToastID:   toast.ID,
		Name:      toast.Name,
		Message:   toast.Message,
		Timestamp: toast.CreatedAt,
	})
}
