package notify

import (
	"context"
	"fmt"
	"time"

	"tamgiao-hitl/internal/models"

	"github.com/go-resty/resty/v2"
)

// webhookChannel posts the alert payload as JSON to an HTTP endpoint.
// Both the email relay and the SMS gateway speak this shape.
type webhookChannel struct {
	name   string
	url    string
	client *resty.Client
}

func newWebhookChannel(name, url string, timeout time.Duration) *webhookChannel {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &webhookChannel{
		name:   name,
		url:    url,
		client: client,
	}
}

// NewEmailChannel posts alerts to the email relay webhook.
func NewEmailChannel(url string, timeout time.Duration) Channel {
	return newWebhookChannel("email", url, timeout)
}

// NewSMSChannel posts alerts to the SMS gateway.
func NewSMSChannel(url string, timeout time.Duration) Channel {
	return newWebhookChannel("sms", url, timeout)
}

func (c *webhookChannel) Name() string { return c.name }

func (c *webhookChannel) Configured() bool { return c.url != "" }

func (c *webhookChannel) Send(ctx context.Context, alert *models.CriticalAlert, escalated bool) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payloadFor(alert, escalated)).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("failed to post %s notification: %w", c.name, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s endpoint returned %d: %s", c.name, resp.StatusCode(), resp.String())
	}
	return nil
}
