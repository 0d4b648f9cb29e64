package service

import (
	"context"
	"strings"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var onboardingTracer = otel.Tracer("service/onboarding")

// Onboarding flows.
const (
	FlowCompany = "company"
	FlowTalent  = "talent"
)

var flowSteps = map[string][]string{
	FlowCompany: {"company-info", "company-details", "team", "review"},
	FlowTalent:  {"personal-info", "professional", "skills", "review"},
}

// Draft fields copied to the created company or the profile on Complete.
var (
	companyDraftFields = []string{"name", "description", "website", "industry", "size", "country", "city"}
	talentDraftFields  = []string{"full_name", "phone", "country", "city"}
)

// OnboardingService drives the company and talent wizards. Position and
// draft live in the client namespace, so a wizard survives reloads.
type OnboardingService struct {
	logger *zap.Logger
}

func NewOnboardingService(logger *zap.Logger) *OnboardingService {
	return &OnboardingService{logger: logger}
}

// Steps returns the ordered steps of flow.
func Steps(flow string) ([]string, bool) {
	steps, ok := flowSteps[flow]
	return steps, ok
}

func (s *OnboardingService) State(ctx context.Context, acct Account, flow string) (*domain.OnboardingState, error) {
	steps, err := s.authorize(acct, flow)
	if err != nil {
		return nil, err
	}
	ns := acct.Namespace()

	step, _, err := kv.Get(ctx, ns, kv.OnboardingStep(flow))
	if err != nil {
		return nil, err
	}
	draft, _, err := kv.Get(ctx, ns, kv.OnboardingDraft(flow))
	if err != nil {
		return nil, err
	}
	return newState(flow, steps, step, draft), nil
}

// SaveDraft merges fields into the flow draft.
func (s *OnboardingService) SaveDraft(ctx context.Context, acct Account, flow string, fields map[string]any) (*domain.OnboardingState, error) {
	if _, err := s.authorize(acct, flow); err != nil {
		return nil, err
	}
	ns := acct.Namespace()

	draft, _, err := kv.Get(ctx, ns, kv.OnboardingDraft(flow))
	if err != nil {
		return nil, err
	}
	if draft == nil {
		draft = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		draft[k] = v
	}
	if err := kv.Set(ctx, ns, kv.OnboardingDraft(flow), draft); err != nil {
		return nil, err
	}
	return s.State(ctx, acct, flow)
}

// Advance moves to the next step; the last step is sticky.
func (s *OnboardingService) Advance(ctx context.Context, acct Account, flow string) (*domain.OnboardingState, error) {
	return s.move(ctx, acct, flow, 1)
}

// Back moves to the previous step; the first step is sticky.
func (s *OnboardingService) Back(ctx context.Context, acct Account, flow string) (*domain.OnboardingState, error) {
	return s.move(ctx, acct, flow, -1)
}

func (s *OnboardingService) move(ctx context.Context, acct Account, flow string, delta int) (*domain.OnboardingState, error) {
	steps, err := s.authorize(acct, flow)
	if err != nil {
		return nil, err
	}
	ns := acct.Namespace()

	step, _, err := kv.Get(ctx, ns, kv.OnboardingStep(flow))
	if err != nil {
		return nil, err
	}
	step = clampStep(step+delta, len(steps))
	if err := kv.Set(ctx, ns, kv.OnboardingStep(flow), step); err != nil {
		return nil, err
	}
	return s.State(ctx, acct, flow)
}

// Complete turns the draft into a company (company flow) or profile
// changes (talent flow) and clears the wizard.
func (s *OnboardingService) Complete(ctx context.Context, acct Account, flow string) (*domain.OnboardingResult, error) {
	ctx, span := onboardingTracer.Start(ctx, "OnboardingService.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("flow", flow))

	if _, err := s.authorize(acct, flow); err != nil {
		return nil, err
	}
	ns := acct.Namespace()
	draft, _, err := kv.Get(ctx, ns, kv.OnboardingDraft(flow))
	if err != nil {
		return nil, err
	}

	result := &domain.OnboardingResult{}
	switch flow {
	case FlowCompany:
		req := companyRequestFromDraft(draft)
		if req.Name == nil {
			return nil, &domain.ErrValidation{Field: "name", Message: "El nombre de la empresa es obligatorio"}
		}
		company, err := acct.CreateCompany(ctx, req)
		if err != nil {
			return nil, err
		}
		result.Company = company
		result.RedirectTo = "/business-dashboard"
	case FlowTalent:
		updates := pick(draft, talentDraftFields)
		if len(updates) > 0 {
			profile, err := acct.PatchProfile(ctx, updates)
			if err != nil {
				return nil, err
			}
			result.Profile = profile
		}
		result.RedirectTo = "/talent-dashboard"
	}

	_ = kv.Remove(ctx, ns, kv.OnboardingStep(flow))
	_ = kv.Remove(ctx, ns, kv.OnboardingDraft(flow))
	s.logger.Info("onboarding completed", zap.String("flow", flow), zap.String("client_id", ns.ID()))
	return result, nil
}

func (s *OnboardingService) authorize(acct Account, flow string) ([]string, error) {
	steps, ok := Steps(flow)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "onboarding_flow", ID: flow}
	}
	snap, err := requireUser(acct)
	if err != nil {
		return nil, err
	}
	if flow == FlowCompany && !snap.UserRole.IsBusiness() {
		return nil, &domain.ErrForbidden{Action: "el registro de empresa requiere un perfil de empresa"}
	}
	return steps, nil
}

func newState(flow string, steps []string, step int, draft map[string]any) *domain.OnboardingState {
	step = clampStep(step, len(steps))
	if draft == nil {
		draft = map[string]any{}
	}
	return &domain.OnboardingState{
		Flow:        flow,
		Steps:       steps,
		CurrentStep: step,
		StepName:    steps[step],
		Draft:       draft,
	}
}

func clampStep(step, n int) int {
	if step < 0 {
		return 0
	}
	if step >= n {
		return n - 1
	}
	return step
}

// pick keeps the non-empty string values of fields.
func pick(draft map[string]any, fields []string) map[string]any {
	out := map[string]any{}
	for _, f := range fields {
		if v, ok := draft[f].(string); ok && strings.TrimSpace(v) != "" {
			out[f] = strings.TrimSpace(v)
		}
	}
	return out
}

func companyRequestFromDraft(draft map[string]any) *domain.CompanyRequest {
	values := pick(draft, companyDraftFields)
	get := func(k string) *string {
		if v, ok := values[k].(string); ok {
			return &v
		}
		return nil
	}
	return &domain.CompanyRequest{
		Name:        get("name"),
		Description: get("description"),
		Website:     get("website"),
		Industry:    get("industry"),
		Size:        get("size"),
		Country:     get("country"),
		City:        get("city"),
	}
}
