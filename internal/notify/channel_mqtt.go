package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"tamgiao-hitl/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTChannel pushes alerts to the on-call roster topic. On-call clinician
// apps subscribe to the topic and ring on every message; QoS 1 gives
// at-least-once delivery to the broker.
type MQTTChannel struct {
	client mqtt.Client
	topic  string
}

// NewMQTTChannel wraps an established broker connection. A nil client marks
// the channel unconfigured (dispatch records skipped outcomes).
func NewMQTTChannel(client mqtt.Client, topic string) *MQTTChannel {
	return &MQTTChannel{
		client: client,
		topic:  topic,
	}
}

func (c *MQTTChannel) Name() string { return "roster" }

func (c *MQTTChannel) Configured() bool {
	return c.client != nil && c.topic != ""
}

func (c *MQTTChannel) Send(ctx context.Context, alert *models.CriticalAlert, escalated bool) error {
	payload, err := json.Marshal(payloadFor(alert, escalated))
	if err != nil {
		return fmt.Errorf("failed to marshal roster payload: %w", err)
	}

	token := c.client.Publish(c.topic, 1, false, payload)

	// paho tokens have no context support; wait on both.
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("roster publish cancelled: %w", ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to roster topic %s: %w", c.topic, err)
	}
	return nil
}
