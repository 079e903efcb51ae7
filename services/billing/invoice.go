package billing

import (
	"context"
	"errors"
	"fmt"

	"beautyhub-controlplane/pkg/db/option"
	"beautyhub-controlplane/pkg/errutil"

	"gorm.io/gorm/clause"
)

// ErrMissingExternalID rejects processor objects that carry no id to key on.
var ErrMissingExternalID = errors.New("missing external id")

// UpsertInvoice creates the invoice or updates the row with the same
// external id. A PAID invoice is never downgraded by a late failure event.
// Number and Document are only filled when still empty.
func (s *Service) UpsertInvoice(ctx context.Context, in *Invoice) (*Invoice, error) {
	if in.ExternalID == "" {
		return nil, errutil.BadRequest("invoice without external id", ErrMissingExternalID)
	}

	existing, err := s.invoices.FindOne(ctx, &Invoice{ExternalID: in.ExternalID})
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice %s: %w", in.ExternalID, err)
	}

	if existing == nil {
		in.ID = s.node.Generate().String()
		res := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
			Create(in)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to create invoice %s: %w", in.ExternalID, res.Error)
		}
		if res.RowsAffected == 1 {
			return in, nil
		}

		// lost a race with a concurrent delivery
		existing, err = s.invoices.FindOne(ctx, &Invoice{ExternalID: in.ExternalID})
		if err != nil {
			return nil, fmt.Errorf("failed to reload invoice %s: %w", in.ExternalID, err)
		}
		if existing == nil {
			return nil, fmt.Errorf("invoice %s not found after insert conflict", in.ExternalID)
		}
	}

	if existing.Status == Paid && in.Status == Failed {
		return existing, nil
	}

	fields := map[string]any{
		"status":   in.Status,
		"amount":   in.Amount,
		"currency": in.Currency,
	}
	if in.PaidAt != nil {
		fields["paid_at"] = in.PaidAt
	}
	if existing.Number == "" && in.Number != "" {
		fields["number"] = in.Number
	}
	if existing.Document == "" && in.Document != "" {
		fields["document"] = in.Document
	}

	if err := s.invoices.Update(ctx, existing.ID, fields); err != nil {
		return nil, fmt.Errorf("failed to update invoice %s: %w", in.ExternalID, err)
	}

	return s.invoices.FindOne(ctx, &Invoice{ID: existing.ID}, option.WithLimit(1))
}
