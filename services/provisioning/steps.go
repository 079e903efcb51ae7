package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPlanUnresolved  = errors.New("no plan in checkout or subscription metadata")
	ErrMissingSession  = errors.New("onboarding checkout has no session id")
	ErrMissingIdentity = errors.New("onboarding checkout has no owner email or institute name")
)

const (
	StepResolvePlan          = "resolve_plan"
	StepGenerateCredential   = "generate_credential"
	StepCreateTenant         = "create_tenant"
	StepCreateInitialService = "create_initial_service"
	StepSeedContent          = "seed_content"
	StepInvoiceDocument      = "invoice_document"
	StepContractDocument     = "contract_document"
	StepNotifyOwner          = "notify_owner"
	StepNotifyOperator       = "notify_operator"
)

// Step is one unit of provisioning. Only critical steps may fail the run;
// the others are reported and skipped past.
type Step struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context, st *state) error
}

type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e StepError) Unwrap() error {
	return e.Err
}

// Report describes one provisioning run.
type Report struct {
	TenantID string
	// Duplicate is set when the checkout session had already been provisioned.
	Duplicate  bool
	StepErrors []StepError
}

func (r *Report) Failed(step string) bool {
	for _, e := range r.StepErrors {
		if e.Step == step {
			return true
		}
	}
	return false
}

func (r *Report) String() string {
	if len(r.StepErrors) == 0 {
		return "ok"
	}
	names := make([]string, 0, len(r.StepErrors))
	for _, e := range r.StepErrors {
		names = append(names, e.Step)
	}
	return "failed: " + strings.Join(names, ",")
}
