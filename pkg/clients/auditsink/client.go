// Package auditsink forwards audit entries to an external webhook. Where the
// receiver stores them is not the engine's concern.
package auditsink

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/showbarn/growthengine/internal/config"
	"github.com/showbarn/growthengine/internal/domain/models"
)

// Sink exposes the audit forwarding operation used by the ledger service.
type Sink interface {
	Send(ctx context.Context, entry models.AuditEntry) error
}

// WebhookSink is a resty-backed implementation of Sink.
type WebhookSink struct {
	httpClient *resty.Client
}

// NewWebhookSink builds an audit webhook client from the provided configuration.
func NewWebhookSink(cfg config.AuditConfig) *WebhookSink {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(cfg.WebhookURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)
	if cfg.AuthToken != "" {
		restyClient.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.AuthToken))
	}

	return &WebhookSink{httpClient: restyClient}
}

// apiError represents an error payload returned by the webhook receiver.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts the audit entry as JSON to the configured webhook.
func (c *WebhookSink) Send(ctx context.Context, entry models.AuditEntry) error {
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(entry).
		SetError(apiErr).
		Post("")
	if err != nil {
		return fmt.Errorf("forward audit entry: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		message := ""
		code := resp.StatusCode()
		if apiErr != nil {
			message = apiErr.Error.Message
			if apiErr.Error.Code != 0 {
				code = apiErr.Error.Code
			}
		}
		return fmt.Errorf("audit webhook error: code=%d, message=%s", code, message)
	}

	return nil
}
