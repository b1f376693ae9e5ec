package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

const mqttTimeout = 10 * time.Second

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes retained QoS 1 messages so new subscribers see the
// latest snapshot at once.
type MQTT struct {
	client mqttClient
	topic  string
}

func DialMQTT(broker, topic, clientID string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})
	c := mqtt.NewClient(opts)
	if err := wait(c.Connect()); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", broker, err)
	}
	log.Info().Str("broker", broker).Str("topic", topic).Msg("mqtt publisher connected")
	return &MQTT{client: c, topic: topic}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Publish(ctx context.Context, payload []byte) error {
	tok := m.client.Publish(m.topic, 1, true, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mqttTimeout):
		return fmt.Errorf("mqtt publish %s: timed out", m.topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", m.topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

func wait(tok mqtt.Token) error {
	if !tok.WaitTimeout(mqttTimeout) {
		return errors.New("timed out")
	}
	return tok.Error()
}
