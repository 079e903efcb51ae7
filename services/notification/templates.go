package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

type Kind string

const (
	Welcome               Kind = "welcome"
	OperatorNewTenant     Kind = "operator_new_tenant"
	PaymentConfirmed      Kind = "payment_confirmed"
	PaymentFailed         Kind = "payment_failed"
	SubscriptionCancelled Kind = "subscription_cancelled"
	InvoicePaymentFailed  Kind = "invoice_payment_failed"
)

// Data feeds every template; each template reads the fields it needs.
type Data struct {
	TenantID       string
	InstituteName  string
	OwnerName      string
	OwnerEmail     string
	Plan           string
	Subdomain      string
	LoginURL       string
	Credential     string
	Amount         string
	Currency       string
	InvoiceNumber  string
	ContractNumber string
	NextBillingAt  string
	PortalURL      string
	Reason         string
}

type emailTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

const layout = `<!doctype html><html><body style="font-family:sans-serif;color:#222">{{template "content" .}}<p style="color:#888;font-size:12px">BeautyHub</p></body></html>`

func mustTemplate(kind Kind, subject, content string) emailTemplate {
	body := htmltemplate.Must(htmltemplate.New(string(kind)).Parse(layout))
	htmltemplate.Must(body.New("content").Parse(content))
	return emailTemplate{
		subject: texttemplate.Must(texttemplate.New(string(kind)).Parse(subject)),
		body:    body,
	}
}

var templates = map[Kind]emailTemplate{
	Welcome: mustTemplate(Welcome,
		`Welcome to BeautyHub, {{.InstituteName}}`,
		`<p>Hello {{.OwnerName}},</p>
<p>Your institute <strong>{{.InstituteName}}</strong> is ready on the {{.Plan}} plan at <a href="https://{{.Subdomain}}">{{.Subdomain}}</a>.</p>
<p>Sign in at <a href="{{.LoginURL}}">{{.LoginURL}}</a> with:</p>
<ul><li>Email: {{.OwnerEmail}}</li><li>Temporary password: <code>{{.Credential}}</code></li></ul>
<p>You will be asked to choose a new password on first sign-in.</p>
{{if .InvoiceNumber}}<p>Your invoice {{.InvoiceNumber}}{{if .ContractNumber}} and contract {{.ContractNumber}}{{end}} are attached.</p>{{end}}`),

	OperatorNewTenant: mustTemplate(OperatorNewTenant,
		`New institute: {{.InstituteName}} ({{.Plan}})`,
		`<p>A new institute was provisioned.</p>
<ul><li>Tenant: {{.TenantID}}</li><li>Name: {{.InstituteName}}</li><li>Owner: {{.OwnerName}} &lt;{{.OwnerEmail}}&gt;</li><li>Plan: {{.Plan}}</li><li>Subdomain: {{.Subdomain}}</li></ul>`),

	PaymentConfirmed: mustTemplate(PaymentConfirmed,
		`Payment received for {{.InstituteName}}`,
		`<p>We received your payment of {{.Amount}} {{.Currency}}.</p>
{{if .InvoiceNumber}}<p>Invoice: {{.InvoiceNumber}}</p>{{end}}
{{if .NextBillingAt}}<p>Next billing date: {{.NextBillingAt}}</p>{{end}}`),

	PaymentFailed: mustTemplate(PaymentFailed,
		`Payment failed for {{.InstituteName}}`,
		`<p>Your last payment could not be processed{{if .Reason}} ({{.Reason}}){{end}}. Your institute has been suspended until payment succeeds.</p>
{{if .PortalURL}}<p><a href="{{.PortalURL}}">Update your payment details</a></p>{{end}}`),

	SubscriptionCancelled: mustTemplate(SubscriptionCancelled,
		`Your BeautyHub subscription was cancelled`,
		`<p>The subscription for <strong>{{.InstituteName}}</strong> has been cancelled. Your public site is no longer available.</p>`),

	InvoicePaymentFailed: mustTemplate(InvoicePaymentFailed,
		`Action required: invoice {{.InvoiceNumber}} is unpaid`,
		`<p>We could not collect {{.Amount}} {{.Currency}} for {{.InstituteName}}.</p>
<p><a href="{{.PortalURL}}">Update your payment details</a> to avoid interruption.</p>`),
}

// Compose renders kind for the given recipient.
func Compose(kind Kind, to string, data Data, attachments ...Attachment) (Message, error) {
	tmpl, ok := templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", kind)
	}

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s subject: %w", kind, err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s body: %w", kind, err)
	}

	return Message{
		To:          to,
		Subject:     subject.String(),
		HTML:        body.String(),
		Attachments: attachments,
		Secret:      kind == Welcome,
	}, nil
}
