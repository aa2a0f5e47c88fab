package sender

import (
	"context"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcare/schedd/internal/schedule"
	"github.com/smartcare/schedd/internal/testutil"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// fakeMQTTClient stands in for the broker link; only Connect and Publish
// matter to the sender.
type fakeMQTTClient struct {
	published []string
}

func (c *fakeMQTTClient) IsConnected() bool      { return true }
func (c *fakeMQTTClient) IsConnectionOpen() bool { return true }
func (c *fakeMQTTClient) Connect() mqtt.Token    { return &fakeToken{} }
func (c *fakeMQTTClient) Disconnect(uint)        {}
func (c *fakeMQTTClient) Publish(topic string, _ byte, _ bool, _ interface{}) mqtt.Token {
	c.published = append(c.published, topic)
	return &fakeToken{}
}
func (c *fakeMQTTClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (c *fakeMQTTClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &fakeToken{}
}
func (c *fakeMQTTClient) Unsubscribe(...string) mqtt.Token     { return &fakeToken{} }
func (c *fakeMQTTClient) AddRoute(string, mqtt.MessageHandler) {}
func (c *fakeMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Broker config pointing at a closed port: connect attempts fail fast with
// connection refused.
func deadBroker(t *testing.T) *MQTTSender {
	t.Helper()
	return NewMQTT(MQTTConfig{Host: "127.0.0.1", Port: 1}, testutil.DiscardLogger())
}

func TestMQTTMissingTopic(t *testing.T) {
	m := deadBroker(t)
	defer m.Close()

	res := m.Send(context.Background(), &schedule.Job{Channel: "MQTT", TimeoutSec: 1})
	require.False(t, res.OK)
	assert.Equal(t, "Missing mqtt_topic", res.Detail)
}

func TestMQTTBrokerUnreachable(t *testing.T) {
	m := deadBroker(t)
	defer m.Close()

	job := &schedule.Job{Channel: "MQTT", MQTTTopic: strptr("devices/1/cmd"), TimeoutSec: 1}
	res := m.Send(context.Background(), job)
	require.False(t, res.OK)
	assert.Contains(t, res.Detail, "MQTT not connected")
}

func TestMQTTSendRightAfterReconnect(t *testing.T) {
	// The ready flag flips in the OnConnect callback, which may not have
	// fired yet when a send's reconnect succeeds. The token result alone
	// decides; the publish must go through.
	client := &fakeMQTTClient{}
	m := &MQTTSender{client: client, logger: testutil.DiscardLogger()}

	job := &schedule.Job{Channel: "MQTT", MQTTTopic: strptr("devices/1/cmd"), TimeoutSec: 1}
	res := m.Send(context.Background(), job)
	require.True(t, res.OK)
	require.NotNil(t, res.Code)
	assert.Equal(t, 0, *res.Code)
	assert.Equal(t, []string{"devices/1/cmd"}, client.published)
}
