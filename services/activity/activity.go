package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"beautyhub-controlplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var Module = fx.Module("activity",
	fx.Provide(NewRecorder),
)

// Actions written by the webhook pipeline.
const (
	TenantStatusChanged       = "tenant.status_changed"
	TenantTransitionRefused   = "tenant.transition_refused"
	TenantPlanChanged         = "tenant.plan_changed"
	SubscriptionEventStale    = "billing.subscription_event_stale"
	TenantProvisioned         = "tenant.provisioned"
	ProvisioningStepFailed    = "provisioning.step_failed"
	InvoiceRecorded           = "billing.invoice_recorded"
	BillingSideEffectFailed   = "billing.side_effect_failed"
	PaymentGracePeriod        = "billing.grace_period"
	AccountCapabilitiesSynced = "connect.account_updated"
	ReservationPaid           = "connect.reservation_paid"
	GiftCardPaid              = "connect.gift_card_paid"
)

const SystemActor = "system:webhook"

// Entry is append-only.
type Entry struct {
	ID        string         `gorm:"column:id;primaryKey"`
	TenantID  string         `gorm:"column:tenant_id;index"`
	Action    string         `gorm:"column:action;not null;index"`
	Actor     string         `gorm:"column:actor;not null"`
	Details   datatypes.JSON `gorm:"column:details"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (Entry) TableName() string {
	return "activity_logs"
}

type Recorder interface {
	Record(ctx context.Context, tenantID, action string, details map[string]any) error
}

type recorder struct {
	node *snowflake.Node
	repo repository.Repository[Entry]
}

type Params struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewRecorder(p Params) Recorder {
	return &recorder{
		node: p.Node,
		repo: repository.ProvideStore[Entry](p.DB),
	}
}

// Record persists an audit entry. Callers treat failures as non-fatal; the
// error is logged here and returned for tests.
func (r *recorder) Record(ctx context.Context, tenantID, action string, details map[string]any) error {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)

	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode activity details: %w", err)
	}

	entry := &Entry{
		ID:       r.node.Generate().String(),
		TenantID: tenantID,
		Action:   action,
		Actor:    SystemActor,
		Details:  datatypes.JSON(raw),
	}

	if err := r.repo.Create(ctx, entry); err != nil {
		zapLog.Error("failed to write activity log",
			zap.String("tenant_id", tenantID),
			zap.String("action", action),
			zap.Error(err),
		)
		return err
	}

	return nil
}
