package document

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	objectstore "beautyhub-controlplane/pkg/minio"
	"beautyhub-controlplane/pkg/sequence"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("document",
	fx.Provide(NewGenerator),
)

const contentType = "text/html; charset=utf-8"

// Document is a rendered billing or legal document.
type Document struct {
	Number   string
	Filename string
	Content  []byte
	// Location is the object key in document storage, empty when storage is disabled.
	Location string
}

func (d *Document) ContentType() string {
	return contentType
}

type Party struct {
	Name        string
	Email       string
	AddressLine string
	PostalCode  string
	City        string
	Country     string
}

type InvoiceInput struct {
	TenantID         string
	Customer         Party
	Plan             string
	Amount           decimal.Decimal
	Currency         string
	PaymentReference string
	PeriodStart      time.Time
	PeriodEnd        time.Time
}

type ContractInput struct {
	TenantID     string
	Customer     Party
	OwnerName    string
	Subdomain    string
	Plan         string
	MonthlyPrice decimal.Decimal
	Currency     string
	StartsAt     time.Time
}

type Generator interface {
	GenerateInvoice(ctx context.Context, in InvoiceInput) (*Document, error)
	GenerateContract(ctx context.Context, in ContractInput) (*Document, error)
}

type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type htmlGenerator struct {
	seq   sequence.Generator
	store ObjectStore
	now   func() time.Time
}

type Params struct {
	fx.In
	Seq    sequence.Generator
	Bucket *objectstore.Bucket `optional:"true"`
}

func NewGenerator(p Params) Generator {
	g := &htmlGenerator{seq: p.Seq, now: time.Now}
	if p.Bucket != nil {
		g.store = p.Bucket
	}
	return g
}

// New builds a generator from explicit collaborators; store may be nil.
func New(seq sequence.Generator, store ObjectStore) Generator {
	return &htmlGenerator{seq: seq, store: store, now: time.Now}
}

func (g *htmlGenerator) GenerateInvoice(ctx context.Context, in InvoiceInput) (*Document, error) {
	number, err := g.seq.NextInvoiceNumber(ctx)
	if err != nil {
		return nil, err
	}

	view := struct {
		InvoiceInput
		Number   string
		IssuedAt string
		Amount   string
	}{
		InvoiceInput: in,
		Number:       number,
		IssuedAt:     g.now().UTC().Format("2006-01-02"),
		Amount:       in.Amount.StringFixed(2),
	}

	return g.render(ctx, invoiceTemplate, in.TenantID, "invoices", number, view)
}

func (g *htmlGenerator) GenerateContract(ctx context.Context, in ContractInput) (*Document, error) {
	number, err := g.seq.NextContractNumber(ctx)
	if err != nil {
		return nil, err
	}

	view := struct {
		ContractInput
		Number       string
		StartsAt     string
		MonthlyPrice string
	}{
		ContractInput: in,
		Number:        number,
		StartsAt:      in.StartsAt.UTC().Format("2006-01-02"),
		MonthlyPrice:  in.MonthlyPrice.StringFixed(2),
	}

	return g.render(ctx, contractTemplate, in.TenantID, "contracts", number, view)
}

func (g *htmlGenerator) render(ctx context.Context, tmpl *template.Template, tenantID, folder, number string, view any) (*Document, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", number, err)
	}

	doc := &Document{
		Number:   number,
		Filename: number + ".html",
		Content:  buf.Bytes(),
	}

	if g.store == nil {
		return doc, nil
	}

	key := fmt.Sprintf("tenants/%s/%s/%s", tenantID, folder, doc.Filename)
	location, err := g.store.Put(ctx, key, contentType, doc.Content)
	if err != nil {
		// the rendered document is still usable as an attachment
		span := trace.SpanFromContext(ctx)
		zap.L().With(
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
		).Warn("failed to store document", zap.String("number", number), zap.Error(err))
		return doc, nil
	}
	doc.Location = location

	return doc, nil
}

var invoiceTemplate = template.Must(template.New("invoice").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Invoice {{.Number}}</title></head>
<body>
<h1>Invoice {{.Number}}</h1>
<p>Issued {{.IssuedAt}}</p>
<p><strong>{{.Customer.Name}}</strong><br>{{.Customer.AddressLine}}<br>{{.Customer.PostalCode}} {{.Customer.City}}<br>{{.Customer.Country}}</p>
<table>
<tr><th>Description</th><th>Period</th><th>Amount</th></tr>
<tr><td>BeautyHub {{.Plan}} subscription</td><td>{{.PeriodStart.Format "2006-01-02"}} to {{.PeriodEnd.Format "2006-01-02"}}</td><td>{{.Amount}} {{.Currency}}</td></tr>
</table>
<p>Payment reference: {{.PaymentReference}}</p>
</body></html>`))

var contractTemplate = template.Must(template.New("contract").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Contract {{.Number}}</title></head>
<body>
<h1>Service agreement {{.Number}}</h1>
<p>Between BeautyHub and <strong>{{.Customer.Name}}</strong>, represented by {{.OwnerName}} ({{.Customer.Email}}).</p>
<p>{{.Customer.AddressLine}}, {{.Customer.PostalCode}} {{.Customer.City}}, {{.Customer.Country}}</p>
<h2>Subscription</h2>
<p>Plan {{.Plan}} at {{.MonthlyPrice}} {{.Currency}} per month, billed monthly, starting {{.StartsAt}}.</p>
<p>The institute website is published at {{.Subdomain}}.</p>
<h2>Term</h2>
<p>The agreement renews monthly until cancelled by either party. Cancellation takes effect at the end of the current billing period.</p>
</body></html>`))
