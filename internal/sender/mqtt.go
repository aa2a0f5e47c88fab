package sender

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/smartcare/schedd/internal/schedule"
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	ClientIDPrefix string
	Keepalive      int
	TLS            bool
}

// MQTTSender publishes job payloads to an MQTT broker over one shared
// client. The broker link is maintained in the background; a send that finds
// it down makes a single reconnect attempt before failing.
type MQTTSender struct {
	client mqtt.Client
	ready  atomic.Bool
	logger *slog.Logger
}

// NewMQTT creates the broker client and starts the initial connect. A broker
// that is down at startup is tolerated; sends retry the connection.
func NewMQTT(cfg MQTTConfig, logger *slog.Logger) *MQTTSender {
	s := &MQTTSender{logger: logger}

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	keepalive := cfg.Keepalive
	if keepalive <= 0 {
		keepalive = 30
	}
	prefix := cfg.ClientIDPrefix
	if prefix == "" {
		prefix = "sched-"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)).
		SetClientID(prefix + uuid.NewString()[:8]).
		SetKeepAlive(time.Duration(keepalive) * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.ready.Store(true)
		logger.Info("mqtt connected", "broker", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.ready.Store(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		logger.Warn("mqtt initial connect failed, will retry on send", "error", token.Error())
	}
	return s
}

// Send publishes one message. Success reports broker code 0.
func (m *MQTTSender) Send(ctx context.Context, job *schedule.Job) schedule.SendResult {
	topic := strings.TrimSpace(deref(job.MQTTTopic))
	if topic == "" {
		return schedule.SendResult{Detail: "Missing mqtt_topic"}
	}

	// One reconnect attempt per send. The token result is authoritative;
	// the ready flag flips asynchronously in the OnConnect callback.
	if !m.ready.Load() {
		token := m.client.Connect()
		if !token.WaitTimeout(job.Timeout()) || token.Error() != nil {
			return schedule.SendResult{Detail: truncateDetail(connectError(token.Error()))}
		}
	}

	qos := job.QoS
	if qos < 0 || qos > 2 {
		qos = 0
	}
	token := m.client.Publish(topic, byte(qos), job.Retained, job.PayloadString())
	if !token.WaitTimeout(job.Timeout()) {
		return schedule.SendResult{Detail: "publish timed out"}
	}
	if err := token.Error(); err != nil {
		return schedule.SendResult{Detail: truncateDetail(err.Error())}
	}

	code := 0
	return schedule.SendResult{OK: true, Code: &code, Detail: "published"}
}

// Close disconnects from the broker, allowing queued packets to flush.
func (m *MQTTSender) Close() {
	m.client.Disconnect(250)
}

func connectError(err error) string {
	if err == nil {
		return "MQTT not connected"
	}
	return "MQTT not connected: " + err.Error()
}
