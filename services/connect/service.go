package connect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"beautyhub-controlplane/pkg/logger"
	"beautyhub-controlplane/pkg/repository"
	"beautyhub-controlplane/services/activity"
	"beautyhub-controlplane/services/tenant"

	"github.com/stripe/stripe-go/v83"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("connect",
	fx.Provide(NewService),
)

var ErrUnknownKind = errors.New("unknown sub-account payment kind")

type Kind string

const (
	GiftCardPayment    Kind = "gift_card"
	ReservationPayment Kind = "reservation"
)

// Payment is a checkout completed on a tenant's connected sub-account.
type Payment struct {
	Kind            Kind
	EntityID        string
	TenantID        string
	PaymentIntentID string
}

type Service struct {
	tenants      *tenant.Store
	reservations repository.Repository[Reservation]
	giftCards    repository.Repository[GiftCard]
	activity     activity.Recorder
	now          func() time.Time
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Tenants  *tenant.Store
	Activity activity.Recorder
}

func NewService(p ServiceParams) *Service {
	return &Service{
		tenants:      p.Tenants,
		reservations: repository.ProvideStore[Reservation](p.DB),
		giftCards:    repository.ProvideStore[GiftCard](p.DB),
		activity:     p.Activity,
		now:          time.Now,
	}
}

// AccountUpdated copies the sub-account capabilities onto its tenant.
func (s *Service) AccountUpdated(ctx context.Context, acct *stripe.Account) error {
	zapLog := logger.FromContext(ctx).With(zap.String("account_id", acct.ID))

	t, err := s.tenants.FindByAccountID(ctx, acct.ID)
	if err != nil {
		return err
	}
	if t == nil {
		zapLog.Warn("account updated for unknown tenant, ignoring")
		return nil
	}

	if err := s.tenants.Update(ctx, t.ID, map[string]any{
		"details_submitted": acct.DetailsSubmitted,
		"charges_enabled":   acct.ChargesEnabled,
		"payouts_enabled":   acct.PayoutsEnabled,
	}); err != nil {
		return fmt.Errorf("failed to update account capabilities: %w", err)
	}

	_ = s.activity.Record(ctx, t.ID, activity.AccountCapabilitiesSynced, map[string]any{
		"account_id":        acct.ID,
		"details_submitted": acct.DetailsSubmitted,
		"charges_enabled":   acct.ChargesEnabled,
		"payouts_enabled":   acct.PayoutsEnabled,
	})
	return nil
}

// PaymentCompleted settles the reservation or gift card the payment was for.
func (s *Service) PaymentCompleted(ctx context.Context, p Payment) error {
	switch p.Kind {
	case ReservationPayment:
		return s.settleReservation(ctx, p)
	case GiftCardPayment:
		return s.settleGiftCard(ctx, p)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, p.Kind)
	}
}

func (s *Service) settleReservation(ctx context.Context, p Payment) error {
	zapLog := logger.FromContext(ctx).With(zap.String("reservation_id", p.EntityID))

	r, err := s.reservations.FindOne(ctx, &Reservation{ID: p.EntityID})
	if err != nil {
		return err
	}
	if r == nil || (p.TenantID != "" && r.TenantID != p.TenantID) {
		zapLog.Warn("payment completed for unknown reservation, ignoring", zap.String("tenant_id", p.TenantID))
		return nil
	}
	if r.PaymentStatus == PaymentPaid {
		zapLog.Info("reservation already paid")
		return nil
	}

	now := s.now().UTC()
	if err := s.reservations.Update(ctx, r.ID, map[string]any{
		"payment_status":    PaymentPaid,
		"payment_intent_id": p.PaymentIntentID,
		"paid_at":           now,
	}); err != nil {
		return fmt.Errorf("failed to settle reservation: %w", err)
	}

	_ = s.activity.Record(ctx, r.TenantID, activity.ReservationPaid, map[string]any{
		"reservation_id":    r.ID,
		"payment_intent_id": p.PaymentIntentID,
	})
	return nil
}

func (s *Service) settleGiftCard(ctx context.Context, p Payment) error {
	zapLog := logger.FromContext(ctx).With(zap.String("gift_card_id", p.EntityID))

	g, err := s.giftCards.FindOne(ctx, &GiftCard{ID: p.EntityID})
	if err != nil {
		return err
	}
	if g == nil || (p.TenantID != "" && g.TenantID != p.TenantID) {
		zapLog.Warn("payment completed for unknown gift card, ignoring", zap.String("tenant_id", p.TenantID))
		return nil
	}
	if g.PaymentStatus == PaymentPaid {
		zapLog.Info("gift card already paid")
		return nil
	}

	now := s.now().UTC()
	fields := map[string]any{
		"status":            GiftCardActive,
		"payment_status":    PaymentPaid,
		"payment_intent_id": p.PaymentIntentID,
		"paid_at":           now,
	}
	if g.Balance == "" {
		fields["balance"] = g.Amount
	}
	if err := s.giftCards.Update(ctx, g.ID, fields); err != nil {
		return fmt.Errorf("failed to settle gift card: %w", err)
	}

	_ = s.activity.Record(ctx, g.TenantID, activity.GiftCardPaid, map[string]any{
		"gift_card_id":      g.ID,
		"payment_intent_id": p.PaymentIntentID,
	})
	return nil
}
