package service

import (
	"context"
	"errors"
	"strings"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var opportunityTracer = otel.Tracer("service/opportunity")

const secondaryCategoryColumn = "secondary_category_id"

// OpportunityService manages the opportunities of the caller's company.
type OpportunityService struct {
	store   port.OpportunityStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewOpportunityService(store port.OpportunityStore, metrics *observability.Metrics, logger *zap.Logger) *OpportunityService {
	return &OpportunityService{store: store, metrics: metrics, logger: logger}
}

// List returns opportunities of companyID. Business users default to their
// active company; talents see active opportunities of every company.
func (s *OpportunityService) List(ctx context.Context, acct Account, companyID, status string) ([]domain.Opportunity, error) {
	ctx, span := opportunityTracer.Start(ctx, "OpportunityService.List")
	defer span.End()

	snap, err := requireUser(acct)
	if err != nil {
		return nil, err
	}
	if companyID == "" && snap.UserRole.IsBusiness() && snap.Company != nil {
		companyID = snap.Company.ID
	}
	if !snap.UserRole.IsBusiness() && !operates(snap, companyID) {
		status = domain.OpportunityActive
	}
	span.SetAttributes(attribute.String("company.id", companyID), attribute.String("status", status))

	return s.store.ListOpportunities(ctx, companyID, status)
}

func (s *OpportunityService) Get(ctx context.Context, acct Account, id string) (*domain.Opportunity, error) {
	ctx, span := opportunityTracer.Start(ctx, "OpportunityService.Get")
	defer span.End()

	if _, err := requireUser(acct); err != nil {
		return nil, err
	}
	o, err := s.store.GetOpportunity(ctx, id)
	return found(o, err, "opportunity", id)
}

// Create publishes an opportunity for the active company and discards the
// unsaved draft.
func (s *OpportunityService) Create(ctx context.Context, acct Account, req *domain.OpportunityRequest) (*domain.Opportunity, error) {
	ctx, span := opportunityTracer.Start(ctx, "OpportunityService.Create")
	defer span.End()

	snap, err := requireBusiness(acct)
	if err != nil {
		return nil, err
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "El título es obligatorio"}
	}
	if err := validateSalary(req); err != nil {
		return nil, err
	}

	o := &domain.Opportunity{CompanyID: snap.Company.ID, Status: domain.OpportunityDraft}
	applyOpportunityRequest(o, req)

	created, err := s.store.CreateOpportunity(ctx, o)
	if isSecondaryCategoryViolation(err) && o.SecondaryCategoryID != nil {
		s.logger.Warn("secondary category rejected, retrying without it",
			zap.String("company_id", o.CompanyID),
			zap.String("secondary_category_id", *o.SecondaryCategoryID),
		)
		o.SecondaryCategoryID = nil
		created, err = s.store.CreateOpportunity(ctx, o)
	}
	if err != nil {
		return nil, err
	}

	if err := kv.Remove(ctx, acct.Namespace(), kv.OpportunityDraft("new")); err != nil {
		s.logger.Warn("failed to discard opportunity draft", zap.Error(err))
	}
	s.logger.Info("opportunity created",
		zap.String("opportunity_id", created.ID),
		zap.String("company_id", created.CompanyID),
	)
	return created, nil
}

// Update edits an opportunity of a company the caller operates.
func (s *OpportunityService) Update(ctx context.Context, acct Account, id string, req *domain.OpportunityRequest) (*domain.Opportunity, error) {
	ctx, span := opportunityTracer.Start(ctx, "OpportunityService.Update")
	defer span.End()

	if _, err := s.owned(ctx, acct, id); err != nil {
		return nil, err
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "El título es obligatorio"}
	}
	if err := validateSalary(req); err != nil {
		return nil, err
	}
	if req.Status != nil && !validOpportunityStatus(*req.Status) {
		return nil, &domain.ErrValidation{Field: "status", Message: "Estado no válido"}
	}

	updates := opportunityUpdates(req)
	if len(updates) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "No hay cambios para guardar"}
	}

	updated, err := s.store.UpdateOpportunity(ctx, id, updates)
	if _, ok := updates[secondaryCategoryColumn]; ok && isSecondaryCategoryViolation(err) {
		s.logger.Warn("secondary category rejected, retrying without it", zap.String("opportunity_id", id))
		updates[secondaryCategoryColumn] = nil
		updated, err = s.store.UpdateOpportunity(ctx, id, updates)
	}
	if err != nil {
		return nil, err
	}

	if err := kv.Remove(ctx, acct.Namespace(), kv.OpportunityDraft(id)); err != nil {
		s.logger.Warn("failed to discard opportunity draft", zap.Error(err))
	}
	return updated, nil
}

// Close stops an opportunity from receiving applications.
func (s *OpportunityService) Close(ctx context.Context, acct Account, id string) (*domain.Opportunity, error) {
	status := domain.OpportunityClosed
	return s.Update(ctx, acct, id, &domain.OpportunityRequest{Status: &status})
}

func (s *OpportunityService) Delete(ctx context.Context, acct Account, id string) error {
	ctx, span := opportunityTracer.Start(ctx, "OpportunityService.Delete")
	defer span.End()

	if _, err := s.owned(ctx, acct, id); err != nil {
		return err
	}
	if err := s.store.DeleteOpportunity(ctx, id); err != nil {
		return err
	}
	_ = kv.Remove(ctx, acct.Namespace(), kv.OpportunityDraft(id))
	s.logger.Info("opportunity deleted", zap.String("opportunity_id", id))
	return nil
}

// ============================================================
// Drafts (client namespace)
// ============================================================

// SaveDraft keeps the unsaved form of opportunity id ("new" for one not
// created yet).
func (s *OpportunityService) SaveDraft(ctx context.Context, acct Account, id string, req *domain.OpportunityRequest) (*domain.Opportunity, error) {
	snap, err := requireBusiness(acct)
	if err != nil {
		return nil, err
	}
	draft := domain.Opportunity{CompanyID: snap.Company.ID, Status: domain.OpportunityDraft}
	if id != "new" {
		existing, err := s.owned(ctx, acct, id)
		if err != nil {
			return nil, err
		}
		draft = *existing
	}
	applyOpportunityRequest(&draft, req)

	if err := kv.Set(ctx, acct.Namespace(), kv.OpportunityDraft(id), draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// GetDraft returns the saved draft of id, or ErrNotFound.
func (s *OpportunityService) GetDraft(ctx context.Context, acct Account, id string) (*domain.Opportunity, error) {
	if _, err := requireBusiness(acct); err != nil {
		return nil, err
	}
	draft, ok, err := kv.Get(ctx, acct.Namespace(), kv.OpportunityDraft(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "opportunity_draft", ID: id}
	}
	return &draft, nil
}

func (s *OpportunityService) DiscardDraft(ctx context.Context, acct Account, id string) error {
	if _, err := requireBusiness(acct); err != nil {
		return err
	}
	return kv.Remove(ctx, acct.Namespace(), kv.OpportunityDraft(id))
}

// ============================================================
// Helpers
// ============================================================

// owned loads id and checks the caller operates its company.
func (s *OpportunityService) owned(ctx context.Context, acct Account, id string) (*domain.Opportunity, error) {
	snap, err := requireBusiness(acct)
	if err != nil {
		return nil, err
	}
	o, err := s.store.GetOpportunity(ctx, id)
	if o, err = found(o, err, "opportunity", id); err != nil {
		return nil, err
	}
	if !operates(snap, o.CompanyID) {
		return nil, &domain.ErrForbidden{Action: "modificar oportunidades de otra empresa"}
	}
	return o, nil
}

func isSecondaryCategoryViolation(err error) bool {
	var fk *domain.ErrForeignKey
	return errors.As(err, &fk) && fk.Column == secondaryCategoryColumn
}

func validOpportunityStatus(s string) bool {
	switch s {
	case domain.OpportunityDraft, domain.OpportunityActive, domain.OpportunityClosed:
		return true
	}
	return false
}

func validateSalary(req *domain.OpportunityRequest) error {
	if req.SalaryMin != nil && *req.SalaryMin < 0 {
		return &domain.ErrValidation{Field: "salary_min", Message: "El salario no puede ser negativo"}
	}
	if req.SalaryMin != nil && req.SalaryMax != nil && *req.SalaryMax < *req.SalaryMin {
		return &domain.ErrValidation{Field: "salary_max", Message: "El salario máximo debe ser mayor al mínimo"}
	}
	return nil
}

func applyOpportunityRequest(o *domain.Opportunity, req *domain.OpportunityRequest) {
	str := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	str(&o.Title, req.Title)
	str(&o.Description, req.Description)
	str(&o.Location, req.Location)
	str(&o.Type, req.Type)
	str(&o.Currency, req.Currency)
	if req.Status != nil && validOpportunityStatus(*req.Status) {
		o.Status = *req.Status
	}
	if req.CategoryID != nil {
		o.CategoryID = req.CategoryID
	}
	if req.SecondaryCategoryID != nil {
		o.SecondaryCategoryID = req.SecondaryCategoryID
	}
	if req.SalaryMin != nil {
		o.SalaryMin = req.SalaryMin
	}
	if req.SalaryMax != nil {
		o.SalaryMax = req.SalaryMax
	}
	if req.Skills != nil {
		o.Skills = req.Skills
	}
	if req.Deadline != nil {
		o.Deadline = req.Deadline
	}
}

func opportunityUpdates(req *domain.OpportunityRequest) map[string]any {
	updates := map[string]any{}
	setTrimmed := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	setTrimmed("title", req.Title)
	setTrimmed("description", req.Description)
	setTrimmed("location", req.Location)
	setTrimmed("type", req.Type)
	setTrimmed("currency", req.Currency)
	setTrimmed("status", req.Status)
	if req.CategoryID != nil {
		updates["category_id"] = *req.CategoryID
	}
	if req.SecondaryCategoryID != nil {
		updates[secondaryCategoryColumn] = *req.SecondaryCategoryID
	}
	if req.SalaryMin != nil {
		updates["salary_min"] = *req.SalaryMin
	}
	if req.SalaryMax != nil {
		updates["salary_max"] = *req.SalaryMax
	}
	if req.Skills != nil {
		updates["skills"] = req.Skills
	}
	if req.Deadline != nil {
		updates["deadline"] = *req.Deadline
	}
	return updates
}
