package tenant

import (
	"context"
	"fmt"

	"beautyhub-controlplane/pkg/repository"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("tenant",
	fx.Provide(NewStore),
)

type Store struct {
	db   *gorm.DB
	repo repository.Repository[Tenant]
}

type StoreParams struct {
	fx.In
	DB *gorm.DB
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:   p.DB,
		repo: repository.ProvideStore[Tenant](p.DB),
	}
}

// Get returns nil, nil when the tenant does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Tenant, error) {
	if id == "" {
		return nil, nil
	}
	return s.repo.FindOne(ctx, &Tenant{ID: id})
}

func (s *Store) FindByAccountID(ctx context.Context, accountID string) (*Tenant, error) {
	if accountID == "" {
		return nil, nil
	}
	return s.repo.FindOne(ctx, &Tenant{StripeAccountID: accountID})
}

// Ref carries every identifier a billing event may use to point at a tenant.
type Ref struct {
	CustomerID     string
	SubscriptionID string
	TenantID       string
}

// Resolve tries the customer id, then the subscription id, then the tenant id.
func (s *Store) Resolve(ctx context.Context, ref Ref) (*Tenant, error) {
	queries := []*Tenant{}
	if ref.CustomerID != "" {
		queries = append(queries, &Tenant{StripeCustomerID: ref.CustomerID})
	}
	if ref.SubscriptionID != "" {
		queries = append(queries, &Tenant{StripeSubscriptionID: ref.SubscriptionID})
	}
	if ref.TenantID != "" {
		queries = append(queries, &Tenant{ID: ref.TenantID})
	}

	for _, q := range queries {
		t, err := s.repo.FindOne(ctx, q)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}

// Update writes fields without touching status.
func (s *Store) Update(ctx context.Context, id string, fields map[string]any) error {
	delete(fields, "status")
	if len(fields) == 0 {
		return nil
	}
	return s.repo.Update(ctx, id, fields)
}

// Transition moves t to status `to` and writes fields in the same statement.
// The write only applies while the row still has t.Status; on success t is
// updated in place.
func (s *Store) Transition(ctx context.Context, t *Tenant, to Status, fields map[string]any) error {
	span := trace.SpanFromContext(ctx)
	zapLog := zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("tenant_id", t.ID),
	)

	if !CanTransition(t.Status, to) {
		zapLog.Warn("refusing tenant status transition",
			zap.String("from", string(t.Status)),
			zap.String("to", string(to)),
		)
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.Status, to)
	}

	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).
		Model(&Tenant{}).
		Where("id = ? AND status = ?", t.ID, t.Status).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update tenant status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}

	if t.Status != to {
		zapLog.Info("tenant status changed",
			zap.String("from", string(t.Status)),
			zap.String("to", string(to)),
		)
	}
	t.Status = to
	return nil
}
