package notification

//go:generate mockgen -source=mailer.go -destination=mock_mailer.go -package=notification

import (
	"context"
	"fmt"

	"beautyhub-controlplane/pkg/config"
	"beautyhub-controlplane/pkg/task"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewMailer),
)

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
}

type Message struct {
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// Secret marks a message carrying a credential. It is never written to
	// the task queue.
	Secret bool `json:"-"`
}

// Mailer sends one message. Call sites own the failure boundary: a Send error
// is logged there and never aborts the surrounding operation.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type Params struct {
	fx.In
	Config   *config.Config
	Enqueuer task.Enqueuer `optional:"true"`
}

// NewMailer picks the delivery configured in MAIL.DELIVERY.
func NewMailer(p Params) (Mailer, error) {
	switch p.Config.Mail.Delivery {
	case "direct":
		return NewHTTPMailer(p.Config), nil
	case "queue":
		if p.Enqueuer == nil {
			return nil, fmt.Errorf("mail delivery %q requires a task queue", p.Config.Mail.Delivery)
		}
		return NewQueueMailer(p.Enqueuer, NewHTTPMailer(p.Config)), nil
	case "", "log":
		zap.L().Warn("mail delivery not configured, messages are only logged")
		return LogMailer{}, nil
	default:
		return nil, fmt.Errorf("unknown mail delivery %q", p.Config.Mail.Delivery)
	}
}

// LogMailer drops messages after logging them; used when no provider is configured.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	zap.L().Info("mail not delivered",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}
