package notification

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"beautyhub-controlplane/pkg/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type attachmentBody struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"` // base64
}

type sendRequest struct {
	From        address          `json:"from"`
	To          []address        `json:"to"`
	Subject     string           `json:"subject"`
	HTML        string           `json:"html"`
	Attachments []attachmentBody `json:"attachments,omitempty"`
}

type sendResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// HTTPMailer posts messages to a transactional mail API with bearer auth.
type HTTPMailer struct {
	client *resty.Client
	from   address
}

func NewHTTPMailer(cfg *config.Config) *HTTPMailer {
	client := resty.New().
		SetBaseURL(cfg.Mail.APIURL).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(3*time.Second).
		SetAuthToken(cfg.Mail.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPMailer{
		client: client,
		from:   address{Email: cfg.Mail.FromAddress, Name: cfg.Mail.FromName},
	}
}

func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("mail %q has no recipient", msg.Subject)
	}

	body := sendRequest{
		From:    m.from,
		To:      []address{{Email: msg.To}},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	}
	for _, a := range msg.Attachments {
		body.Attachments = append(body.Attachments, attachmentBody{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
		})
	}

	var out sendResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/send")
	if err != nil {
		return fmt.Errorf("failed to call mail API: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("mail API returned %d: %s", resp.StatusCode(), out.Message)
	}

	zap.L().Debug("mail sent", zap.String("message_id", out.ID), zap.String("subject", msg.Subject))
	return nil
}
