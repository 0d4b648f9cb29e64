package service

import (
	"context"
	"errors"
	"strings"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var applicationTracer = otel.Tracer("service/application")

const maxCoverLetterLength = 5000

// ApplicationService handles talents applying to opportunities and
// companies reviewing the applications.
type ApplicationService struct {
	applications  port.ApplicationStore
	opportunities port.OpportunityStore
	metrics       *observability.Metrics
	logger        *zap.Logger
}

func NewApplicationService(applications port.ApplicationStore, opportunities port.OpportunityStore, metrics *observability.Metrics, logger *zap.Logger) *ApplicationService {
	return &ApplicationService{applications: applications, opportunities: opportunities, metrics: metrics, logger: logger}
}

// Apply files the caller's application to an active opportunity.
func (s *ApplicationService) Apply(ctx context.Context, acct Account, opportunityID string, req *domain.ApplyRequest) (*domain.Application, error) {
	ctx, span := applicationTracer.Start(ctx, "ApplicationService.Apply")
	defer span.End()

	snap, err := requireTalent(acct)
	if err != nil {
		return nil, err
	}
	letter := strings.TrimSpace(req.CoverLetter)
	if len([]rune(letter)) > maxCoverLetterLength {
		return nil, &domain.ErrValidation{Field: "cover_letter", Message: "La carta de presentación es demasiado larga"}
	}

	o, err := s.opportunities.GetOpportunity(ctx, opportunityID)
	if o, err = found(o, err, "opportunity", opportunityID); err != nil {
		return nil, err
	}
	if o.Status != domain.OpportunityActive {
		return nil, &domain.ErrConflict{Message: "Esta oportunidad ya no recibe postulaciones"}
	}

	a, err := s.applications.CreateApplication(ctx, &domain.Application{
		OpportunityID: opportunityID,
		UserID:        snap.User.ID,
		CoverLetter:   letter,
		Status:        domain.ApplicationPending,
	})
	if err != nil {
		var dup *domain.ErrDuplicate
		if errors.As(err, &dup) {
			return nil, &domain.ErrDuplicate{Key: "applications:" + opportunityID, Message: "Ya te postulaste a esta oportunidad"}
		}
		return nil, err
	}

	s.logger.Info("application created",
		zap.String("opportunity_id", opportunityID),
		zap.String("user_id", snap.User.ID),
	)
	return a, nil
}

// ListMine returns the caller's applications.
func (s *ApplicationService) ListMine(ctx context.Context, acct Account) ([]domain.Application, error) {
	ctx, span := applicationTracer.Start(ctx, "ApplicationService.ListMine")
	defer span.End()

	snap, err := requireUser(acct)
	if err != nil {
		return nil, err
	}
	return s.applications.ListApplicationsByUser(ctx, snap.User.ID)
}

// ListForOpportunity returns the applications of an opportunity of the
// caller's company.
func (s *ApplicationService) ListForOpportunity(ctx context.Context, acct Account, opportunityID string) ([]domain.Application, error) {
	ctx, span := applicationTracer.Start(ctx, "ApplicationService.ListForOpportunity")
	defer span.End()

	if err := s.requireReviewer(ctx, acct, opportunityID); err != nil {
		return nil, err
	}
	return s.applications.ListApplicationsByOpportunity(ctx, opportunityID)
}

// UpdateStatus moves an application through review.
func (s *ApplicationService) UpdateStatus(ctx context.Context, acct Account, applicationID, status string) error {
	ctx, span := applicationTracer.Start(ctx, "ApplicationService.UpdateStatus")
	defer span.End()

	if !domain.ValidApplicationStatus(status) {
		return &domain.ErrValidation{Field: "status", Message: "Estado no válido"}
	}
	a, err := s.applications.GetApplication(ctx, applicationID)
	if a, err = found(a, err, "application", applicationID); err != nil {
		return err
	}
	if err := s.requireReviewer(ctx, acct, a.OpportunityID); err != nil {
		return err
	}

	if err := s.applications.UpdateApplicationStatus(ctx, applicationID, status); err != nil {
		return err
	}
	s.logger.Info("application status updated",
		zap.String("application_id", applicationID),
		zap.String("from", a.Status),
		zap.String("to", status),
	)
	return nil
}

func (s *ApplicationService) requireReviewer(ctx context.Context, acct Account, opportunityID string) error {
	snap, err := requireBusiness(acct)
	if err != nil {
		return err
	}
	o, err := s.opportunities.GetOpportunity(ctx, opportunityID)
	if o, err = found(o, err, "opportunity", opportunityID); err != nil {
		return err
	}
	if !operates(snap, o.CompanyID) {
		return &domain.ErrForbidden{Action: "revisar postulaciones de otra empresa"}
	}
	return nil
}
