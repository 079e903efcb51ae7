package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"beautyhub-controlplane/pkg/task"
	"beautyhub-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// QueueMailer hands messages to the worker through asynq so the webhook
// response never waits on the mail provider. Secret messages skip the queue
// and go through direct.
type QueueMailer struct {
	enqueuer task.Enqueuer
	direct   Mailer
}

func NewQueueMailer(e task.Enqueuer, direct Mailer) *QueueMailer {
	return &QueueMailer{enqueuer: e, direct: direct}
}

func (m *QueueMailer) Send(ctx context.Context, msg Message) error {
	if msg.Secret {
		if m.direct == nil {
			return errors.New("no direct mailer for a secret message")
		}
		return m.direct.Send(ctx, msg)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode mail task: %w", err)
	}

	_, err = m.enqueuer.Enqueue(ctx,
		asynq.NewTask(taskname.MailSend, payload),
		asynq.Queue(task.QueueNotifications),
		asynq.MaxRetry(8),
	)
	return err
}

// Worker delivers queued mail through the HTTP provider.
var Worker = fx.Module("notification.worker",
	fx.Provide(NewHTTPMailer, NewSendHandler),
	fx.Invoke(RegisterHandlers),
)

type SendHandler struct {
	mailer Mailer
}

func NewSendHandler(m *HTTPMailer) *SendHandler {
	return &SendHandler{mailer: m}
}

func RegisterHandlers(mux *asynq.ServeMux, h *SendHandler) {
	mux.HandleFunc(taskname.MailSend, h.ProcessTask)
}

func (h *SendHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		// malformed payloads never succeed on retry
		return fmt.Errorf("invalid mail payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := h.mailer.Send(ctx, msg); err != nil {
		zap.L().Warn("mail delivery failed, will retry", zap.String("subject", msg.Subject), zap.Error(err))
		return err
	}
	return nil
}
