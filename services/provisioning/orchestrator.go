package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"beautyhub-controlplane/pkg/config"
	"beautyhub-controlplane/pkg/logger"
	"beautyhub-controlplane/pkg/security"
	"beautyhub-controlplane/services/activity"
	"beautyhub-controlplane/services/billing"
	"beautyhub-controlplane/services/content"
	"beautyhub-controlplane/services/document"
	"beautyhub-controlplane/services/notification"
	"beautyhub-controlplane/services/plan"
	"beautyhub-controlplane/services/tenant"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("provisioning",
	fx.Provide(
		NewSubscriptionFetcher,
		NewOrchestrator,
	),
)

var tracer = otel.Tracer("beautyhub-controlplane/services/provisioning")

type InvoiceRecorder interface {
	UpsertInvoice(ctx context.Context, in *billing.Invoice) (*billing.Invoice, error)
}

type Orchestrator struct {
	db            *gorm.DB
	node          *snowflake.Node
	config        *config.Config
	catalog       plan.Catalog
	subscriptions SubscriptionFetcher
	seeder        content.Seeder
	docs          document.Generator
	invoices      InvoiceRecorder
	mailer        notification.Mailer
	activity      activity.Recorder
	now           func() time.Time
	steps         []Step
}

type Params struct {
	fx.In
	DB            *gorm.DB
	Node          *snowflake.Node
	Config        *config.Config
	Catalog       plan.Catalog
	Subscriptions SubscriptionFetcher
	Seeder        content.Seeder
	Docs          document.Generator
	Billing       *billing.Service
	Mailer        notification.Mailer
	Activity      activity.Recorder
}

func NewOrchestrator(p Params) *Orchestrator {
	return newOrchestrator(p, p.Billing)
}

func newOrchestrator(p Params, invoices InvoiceRecorder) *Orchestrator {
	o := &Orchestrator{
		db:            p.DB,
		node:          p.Node,
		config:        p.Config,
		catalog:       p.Catalog,
		subscriptions: p.Subscriptions,
		seeder:        p.Seeder,
		docs:          p.Docs,
		invoices:      invoices,
		mailer:        p.Mailer,
		activity:      p.Activity,
		now:           time.Now,
	}
	o.steps = []Step{
		{Name: StepResolvePlan, Critical: true, Run: o.resolvePlan},
		{Name: StepGenerateCredential, Critical: true, Run: o.generateCredential},
		{Name: StepCreateTenant, Critical: true, Run: o.createTenant},
		{Name: StepCreateInitialService, Run: o.createInitialService},
		{Name: StepSeedContent, Run: o.seedContent},
		{Name: StepInvoiceDocument, Run: o.invoiceDocument},
		{Name: StepContractDocument, Run: o.contractDocument},
		{Name: StepNotifyOwner, Run: o.notifyOwner},
		{Name: StepNotifyOperator, Run: o.notifyOperator},
	}
	return o
}

// state is shared by the steps of one run.
type state struct {
	in         Onboarding
	tier       plan.Tier
	credential *security.OneTimeCredential
	tenant     *tenant.Tenant
	duplicate  bool
	startedAt  time.Time
	invoice    *document.Document
	contract   *document.Document
}

// Provision runs every step in order. An error is returned only when a
// critical step fails; in that case nothing was committed and the event may
// be redelivered.
func (o *Orchestrator) Provision(ctx context.Context, in Onboarding) (*Report, error) {
	ctx, span := tracer.Start(ctx, "provisioning.Provision")
	defer span.End()
	span.SetAttributes(attribute.String("checkout_session_id", in.CheckoutSessionID))

	zapLog := logger.FromContext(ctx).With(zap.String("checkout_session_id", in.CheckoutSessionID))

	st := &state{in: in, startedAt: o.now().UTC()}
	report := &Report{}

	for _, step := range o.steps {
		err := step.Run(ctx, st)
		if st.tenant != nil {
			report.TenantID = st.tenant.ID
		}

		if err != nil && step.Critical {
			zapLog.Error("provisioning aborted", zap.String("step", step.Name), zap.Error(err))
			span.RecordError(err)
			return report, fmt.Errorf("provisioning step %s: %w", step.Name, err)
		}

		if err != nil {
			zapLog.Warn("provisioning step failed", zap.String("tenant_id", report.TenantID), zap.String("step", step.Name), zap.Error(err))
			report.StepErrors = append(report.StepErrors, StepError{Step: step.Name, Err: err})
			_ = o.activity.Record(ctx, report.TenantID, activity.ProvisioningStepFailed, map[string]any{
				"step":                step.Name,
				"error":               err.Error(),
				"checkout_session_id": in.CheckoutSessionID,
			})
		}

		if st.duplicate {
			zapLog.Info("checkout session already provisioned, skipping", zap.String("tenant_id", report.TenantID))
			report.Duplicate = true
			return report, nil
		}
	}

	_ = o.activity.Record(ctx, report.TenantID, activity.TenantProvisioned, map[string]any{
		"plan":                st.tier,
		"checkout_session_id": in.CheckoutSessionID,
		"result":              report.String(),
	})
	zapLog.Info("tenant provisioned",
		zap.String("tenant_id", report.TenantID),
		zap.String("plan", string(st.tier)),
		zap.String("result", report.String()),
	)

	return report, nil
}

func (o *Orchestrator) resolvePlan(ctx context.Context, st *state) error {
	if tier, ok := plan.ParseTier(st.in.Plan); ok {
		st.tier = tier
		return nil
	}

	if st.in.SubscriptionID == "" || o.subscriptions == nil {
		return ErrPlanUnresolved
	}

	sub, err := o.subscriptions.GetSubscription(ctx, st.in.SubscriptionID)
	if err != nil {
		return fmt.Errorf("failed to fetch subscription %s: %w", st.in.SubscriptionID, err)
	}

	if tier, ok := plan.ParseTier(sub.Metadata["plan"]); ok {
		st.tier = tier
		return nil
	}
	return ErrPlanUnresolved
}

func (o *Orchestrator) generateCredential(_ context.Context, st *state) error {
	cred, err := security.NewOneTimeCredential()
	if err != nil {
		return err
	}
	st.credential = cred
	return nil
}

// createTenant reserves the checkout session and inserts tenant, main
// location and owner in one transaction.
func (o *Orchestrator) createTenant(ctx context.Context, st *state) error {
	in := st.in
	if in.CheckoutSessionID == "" {
		return ErrMissingSession
	}
	if in.OwnerEmail == "" || in.InstituteName == "" {
		return ErrMissingIdentity
	}

	tenantID := o.node.Generate().String()
	next := st.startedAt.AddDate(0, 1, 0)

	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&Record{
			CheckoutSessionID: in.CheckoutSessionID,
			TenantID:          tenantID,
		})
		if res.Error != nil {
			return fmt.Errorf("failed to reserve checkout session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var existing Record
			if err := tx.First(&existing, "checkout_session_id = ?", in.CheckoutSessionID).Error; err != nil {
				return fmt.Errorf("failed to load provisioning record: %w", err)
			}
			st.duplicate = true
			st.tenant = &tenant.Tenant{ID: existing.TenantID}
			return nil
		}

		slugName, err := uniqueValue(tx, "slug", slug.Make(firstNonEmpty(in.Slug, in.InstituteName)), tenantID)
		if err != nil {
			return err
		}
		subdomain, err := uniqueValue(tx, "subdomain", o.subdomain(in.Subdomain, slugName), tenantID)
		if err != nil {
			return err
		}

		t := &tenant.Tenant{
			ID:                   tenantID,
			Name:                 in.InstituteName,
			Slug:                 slugName,
			Subdomain:            subdomain,
			Plan:                 st.tier,
			Status:               tenant.Active,
			OwnerName:            in.OwnerName,
			OwnerEmail:           in.OwnerEmail,
			Phone:                in.Phone,
			AddressLine:          in.Address.Line,
			PostalCode:           in.Address.PostalCode,
			City:                 in.Address.City,
			Country:              in.Address.Country,
			StripeCustomerID:     in.CustomerID,
			StripeSubscriptionID: in.SubscriptionID,
			LastPaymentAt:        &st.startedAt,
			NextBillingAt:        &next,
			Features:             o.catalog.FeaturesFor(st.tier),
		}
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}

		location := &tenant.Location{
			ID:          o.node.Generate().String(),
			TenantID:    tenantID,
			Name:        "Main location",
			IsMain:      true,
			AddressLine: in.Address.Line,
			PostalCode:  in.Address.PostalCode,
			City:        in.Address.City,
			Country:     in.Address.Country,
		}
		if err := tx.Create(location).Error; err != nil {
			return fmt.Errorf("failed to create main location: %w", err)
		}

		admin := &tenant.Administrator{
			ID:                 o.node.Generate().String(),
			TenantID:           tenantID,
			Email:              strings.ToLower(in.OwnerEmail),
			Name:               in.OwnerName,
			Role:               tenant.Owner,
			Scopes:             pq.StringArray{"*"},
			PasswordHash:       st.credential.Hash,
			MustRotatePassword: true,
		}
		if err := tx.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create administrator: %w", err)
		}

		st.tenant = t
		return nil
	})
}

func (o *Orchestrator) createInitialService(ctx context.Context, st *state) error {
	if st.in.InitialService == nil {
		return nil
	}
	svc := *st.in.InitialService
	if svc.Currency == "" {
		svc.Currency = o.currency(st)
	}
	return o.seeder.CreateInitialService(ctx, st.tenant.ID, svc)
}

func (o *Orchestrator) seedContent(ctx context.Context, st *state) error {
	return o.seeder.SeedInitialContent(ctx, content.SeedInput{
		TenantID:      st.tenant.ID,
		InstituteName: st.tenant.Name,
		Plan:          st.tier,
		TemplateID:    st.in.TemplateID,
		Design:        st.in.Design,
	})
}

func (o *Orchestrator) invoiceDocument(ctx context.Context, st *state) error {
	amount := billing.FromMinorUnits(st.in.AmountTotal, st.in.Currency)
	if st.in.AmountTotal == 0 {
		amount = o.catalog.PriceOf(st.tier)
	}

	doc, err := o.docs.GenerateInvoice(ctx, document.InvoiceInput{
		TenantID:         st.tenant.ID,
		Customer:         party(st.tenant),
		Plan:             string(st.tier),
		Amount:           amount,
		Currency:         o.currency(st),
		PaymentReference: st.in.PaymentReference,
		PeriodStart:      st.startedAt,
		PeriodEnd:        st.startedAt.AddDate(0, 1, 0),
	})
	if err != nil {
		return err
	}
	st.invoice = doc

	if _, err := o.invoices.UpsertInvoice(ctx, &billing.Invoice{
		TenantID:   st.tenant.ID,
		ExternalID: firstNonEmpty(st.in.PaymentReference, st.in.CheckoutSessionID),
		Number:     doc.Number,
		Status:     billing.Paid,
		Plan:       st.tier,
		Amount:     amount.StringFixed(2),
		Currency:   o.currency(st),
		Document:   doc.Location,
		PaidAt:     &st.startedAt,
	}); err != nil {
		return err
	}

	return o.db.WithContext(ctx).Model(&tenant.Tenant{}).Where("id = ?", st.tenant.ID).Updates(map[string]any{
		"invoice_number":   doc.Number,
		"invoice_document": doc.Location,
	}).Error
}

func (o *Orchestrator) contractDocument(ctx context.Context, st *state) error {
	price := o.catalog.PriceOf(st.tier)

	doc, err := o.docs.GenerateContract(ctx, document.ContractInput{
		TenantID:     st.tenant.ID,
		Customer:     party(st.tenant),
		OwnerName:    st.tenant.OwnerName,
		Subdomain:    st.tenant.Subdomain,
		Plan:         string(st.tier),
		MonthlyPrice: price,
		Currency:     o.currency(st),
		StartsAt:     st.startedAt,
	})
	if err != nil {
		return err
	}
	st.contract = doc

	contract := &Contract{
		ID:           o.node.Generate().String(),
		TenantID:     st.tenant.ID,
		Number:       doc.Number,
		Plan:         string(st.tier),
		MonthlyPrice: price.StringFixed(2),
		Currency:     o.currency(st),
		Document:     doc.Location,
		StartsAt:     st.startedAt,
	}
	if err := o.db.WithContext(ctx).Create(contract).Error; err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}

	return o.db.WithContext(ctx).Model(&tenant.Tenant{}).Where("id = ?", st.tenant.ID).Updates(map[string]any{
		"contract_number":   doc.Number,
		"contract_document": doc.Location,
	}).Error
}

func (o *Orchestrator) notifyOwner(ctx context.Context, st *state) error {
	data := o.mailData(st)
	data.Credential = st.credential.Plaintext

	var attachments []notification.Attachment
	for _, doc := range []*document.Document{st.invoice, st.contract} {
		if doc == nil {
			continue
		}
		attachments = append(attachments, notification.Attachment{
			Filename:    doc.Filename,
			ContentType: doc.ContentType(),
			Content:     doc.Content,
		})
	}

	msg, err := notification.Compose(notification.Welcome, st.tenant.OwnerEmail, data, attachments...)
	if err != nil {
		return err
	}
	return o.mailer.Send(ctx, msg)
}

func (o *Orchestrator) notifyOperator(ctx context.Context, st *state) error {
	if o.config.Mail.OperatorAddress == "" {
		return nil
	}
	msg, err := notification.Compose(notification.OperatorNewTenant, o.config.Mail.OperatorAddress, o.mailData(st))
	if err != nil {
		return err
	}
	return o.mailer.Send(ctx, msg)
}

func (o *Orchestrator) mailData(st *state) notification.Data {
	data := notification.Data{
		TenantID:      st.tenant.ID,
		InstituteName: st.tenant.Name,
		OwnerName:     st.tenant.OwnerName,
		OwnerEmail:    st.tenant.OwnerEmail,
		Plan:          string(st.tier),
		Subdomain:     st.tenant.Subdomain,
		LoginURL:      firstNonEmpty(o.config.Mail.LoginURL, "https://"+st.tenant.Subdomain+"/admin"),
	}
	if st.invoice != nil {
		data.InvoiceNumber = st.invoice.Number
	}
	if st.contract != nil {
		data.ContractNumber = st.contract.Number
	}
	return data
}

func (o *Orchestrator) subdomain(requested, slugName string) string {
	label := slug.Make(requested)
	if label == "" {
		label = slugName
	}
	if o.config.RootDomain == "" {
		return label
	}
	return label + "." + o.config.RootDomain
}

func (o *Orchestrator) currency(st *state) string {
	return strings.ToLower(firstNonEmpty(st.in.Currency, o.config.Billing.Currency))
}

// uniqueValue suffixes value with part of id when another tenant already uses it.
func uniqueValue(tx *gorm.DB, column, value, id string) (string, error) {
	var n int64
	if err := tx.Model(&tenant.Tenant{}).Where(column+" = ?", value).Count(&n).Error; err != nil {
		return "", fmt.Errorf("failed to check %s: %w", column, err)
	}
	if n == 0 {
		return value, nil
	}

	suffix := id
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	if head, tail, ok := strings.Cut(value, "."); ok && column == "subdomain" {
		return head + "-" + suffix + "." + tail, nil
	}
	return value + "-" + suffix, nil
}

func party(t *tenant.Tenant) document.Party {
	return document.Party{
		Name:        t.Name,
		Email:       t.OwnerEmail,
		AddressLine: t.AddressLine,
		PostalCode:  t.PostalCode,
		City:        t.City,
		Country:     t.Country,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
