package document

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSequence struct {
	n   int
	err error
}

func (f *fakeSequence) NextInvoiceNumber(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.n++
	return fmt.Sprintf("INV-2601-%04d", f.n), nil
}

func (f *fakeSequence) NextContractNumber(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.n++
	return fmt.Sprintf("CTR-2601-%04d", f.n), nil
}

type fakeStore struct {
	objects map[string][]byte
	err     error
}

func (f *fakeStore) Put(_ context.Context, key, _ string, body []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = body
	return "documents/" + key, nil
}

func invoiceInput() InvoiceInput {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	return InvoiceInput{
		TenantID:         "t1",
		Customer:         Party{Name: "Belle Peau", City: "Lyon"},
		Plan:             "SOLO",
		Amount:           decimal.RequireFromString("39"),
		Currency:         "eur",
		PaymentReference: "pi_123",
		PeriodStart:      start,
		PeriodEnd:        start.AddDate(0, 1, 0),
	}
}

func TestGenerateInvoiceStoresDocument(t *testing.T) {
	store := &fakeStore{}
	g := New(&fakeSequence{}, store)

	doc, err := g.GenerateInvoice(context.Background(), invoiceInput())
	require.NoError(t, err)
	require.Equal(t, "INV-2601-0001", doc.Number)
	require.Equal(t, "documents/tenants/t1/invoices/INV-2601-0001.html", doc.Location)
	require.Contains(t, string(doc.Content), "39.00 eur")
	require.Contains(t, string(doc.Content), "2026-01-10 to 2026-02-10")
	require.Contains(t, store.objects, "tenants/t1/invoices/INV-2601-0001.html")
}

func TestGenerateContractWithoutStore(t *testing.T) {
	g := New(&fakeSequence{}, nil)

	doc, err := g.GenerateContract(context.Background(), ContractInput{
		TenantID:     "t1",
		Customer:     Party{Name: "Belle Peau", Email: "owner@example.com"},
		OwnerName:    "Ana",
		Plan:         "SOLO",
		MonthlyPrice: decimal.RequireFromString("39"),
		Currency:     "eur",
		StartsAt:     time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, "CTR-2601-0001", doc.Number)
	require.Empty(t, doc.Location)
	require.Contains(t, string(doc.Content), "39.00 eur per month")
}

func TestStorageFailureKeepsDocument(t *testing.T) {
	g := New(&fakeSequence{}, &fakeStore{err: errors.New("bucket gone")})

	doc, err := g.GenerateInvoice(context.Background(), invoiceInput())
	require.NoError(t, err)
	require.Empty(t, doc.Location)
	require.NotEmpty(t, doc.Content)
}

func TestSequenceFailure(t *testing.T) {
	g := New(&fakeSequence{err: errors.New("redis down")}, nil)

	_, err := g.GenerateInvoice(context.Background(), invoiceInput())
	require.Error(t, err)
}
