package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var companyTracer = otel.Tracer("service/company")

// CompanyService manages memberships, join requests, invitations and
// company media.
type CompanyService struct {
	store      port.MembershipStore
	media      port.MediaStorage
	logoBucket string
	metrics    *observability.Metrics
	logger     *zap.Logger
}

func NewCompanyService(store port.MembershipStore, media port.MediaStorage, logoBucket string, metrics *observability.Metrics, logger *zap.Logger) *CompanyService {
	return &CompanyService{store: store, media: media, logoBucket: logoBucket, metrics: metrics, logger: logger}
}

// ListMembers returns the memberships of a company the caller belongs to.
func (s *CompanyService) ListMembers(ctx context.Context, acct Account, companyID string) ([]domain.Membership, error) {
	ctx, span := companyTracer.Start(ctx, "CompanyService.ListMembers")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID))

	snap, err := requireUser(acct)
	if err != nil {
		return nil, err
	}
	if !operates(snap, companyID) {
		return nil, &domain.ErrForbidden{Action: "ver los miembros de esta empresa"}
	}
	return s.store.ListCompanyMembers(ctx, companyID)
}

// RequestJoin files a pending membership of the caller in companyID.
func (s *CompanyService) RequestJoin(ctx context.Context, acct Account, companyID string) (*domain.Membership, error) {
	ctx, span := companyTracer.Start(ctx, "CompanyService.RequestJoin")
	defer span.End()

	snap, err := requireUser(acct)
	if err != nil {
		return nil, err
	}
	userID := snap.User.ID

	company, err := s.getCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company.UserID == userID {
		return nil, &domain.ErrConflict{Message: "Ya eres el dueño de esta empresa"}
	}

	existing, err := s.store.GetMembership(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case domain.MembershipPending:
			return nil, duplicateJoinRequest(companyID)
		case domain.MembershipAccepted:
			return nil, &domain.ErrConflict{Message: "Ya eres miembro de esta empresa"}
		}
	}

	m, err := s.store.CreateMembership(ctx, &domain.Membership{
		CompanyID: companyID,
		UserID:    userID,
		Role:      domain.MembershipViewer,
		Status:    domain.MembershipPending,
	})
	if err != nil {
		var dup *domain.ErrDuplicate
		if errors.As(err, &dup) {
			return nil, duplicateJoinRequest(companyID)
		}
		return nil, err
	}

	s.logger.Info("join request created",
		zap.String("company_id", companyID),
		zap.String("user_id", userID),
	)
	return m, nil
}

func duplicateJoinRequest(companyID string) error {
	return &domain.ErrDuplicate{Key: "company_user_roles:" + companyID, Message: "Ya enviaste una solicitud para unirte a esta empresa"}
}

// AcceptInvitation binds the caller to the membership behind token.
func (s *CompanyService) AcceptInvitation(ctx context.Context, acct Account, token string) (*domain.Membership, error) {
	ctx, span := companyTracer.Start(ctx, "CompanyService.AcceptInvitation")
	defer span.End()

	snap, err := requireUser(acct)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, &domain.ErrInvalidInvitation{Token: token}
	}

	inv, err := s.store.GetInvitation(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, &domain.ErrInvalidInvitation{Token: token}
	}
	if inv.InvitedEmail != "" && !strings.EqualFold(inv.InvitedEmail, snap.User.Email) {
		return nil, &domain.ErrForbidden{Action: "aceptar una invitación enviada a otro correo"}
	}

	if err := s.store.AcceptInvitation(ctx, inv.ID, snap.User.ID); err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return nil, &domain.ErrInvalidInvitation{Token: token}
		}
		return nil, err
	}

	inv.UserID = snap.User.ID
	inv.Status = domain.MembershipAccepted
	inv.InvitationToken = ""
	acct.Refetch()

	s.logger.Info("invitation accepted",
		zap.String("company_id", inv.CompanyID),
		zap.String("user_id", snap.User.ID),
	)
	return inv, nil
}

// Approve accepts a pending join request; owners and admins only.
func (s *CompanyService) Approve(ctx context.Context, acct Account, companyID, userID string) error {
	return s.decide(ctx, acct, companyID, userID, domain.MembershipAccepted)
}

// Decline rejects a pending join request; owners and admins only.
func (s *CompanyService) Decline(ctx context.Context, acct Account, companyID, userID string) error {
	return s.decide(ctx, acct, companyID, userID, domain.MembershipDeclined)
}

func (s *CompanyService) decide(ctx context.Context, acct Account, companyID, userID string, status domain.MembershipStatus) error {
	ctx, span := companyTracer.Start(ctx, "CompanyService.decide")
	defer span.End()
	span.SetAttributes(attribute.String("company.id", companyID), attribute.String("status", string(status)))

	snap, err := requireBusiness(acct)
	if err != nil {
		return err
	}
	if err := s.requireManager(ctx, snap.User.ID, companyID); err != nil {
		return err
	}

	m, err := s.store.GetMembership(ctx, companyID, userID)
	if err != nil {
		return err
	}
	if m == nil {
		return &domain.ErrNotFound{Resource: "join_request", ID: userID}
	}
	if m.Status != domain.MembershipPending {
		return &domain.ErrConflict{Message: "Esta solicitud ya fue respondida"}
	}

	if err := s.store.UpdateMembershipStatus(ctx, m.ID, status); err != nil {
		s.logger.Error("failed to update membership",
			zap.String("membership_id", m.ID),
			zap.Error(err),
		)
		return err
	}
	s.logger.Info("join request answered",
		zap.String("company_id", companyID),
		zap.String("user_id", userID),
		zap.String("status", string(status)),
	)
	return nil
}

func (s *CompanyService) getCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	c, err := s.store.GetCompany(ctx, companyID)
	return found(c, err, "company", companyID)
}

// requireManager checks the caller owns companyID or administers it.
func (s *CompanyService) requireManager(ctx context.Context, callerID, companyID string) error {
	company, err := s.getCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if company.UserID == callerID {
		return nil
	}
	memberships, err := s.store.ListMemberships(ctx, callerID)
	if err != nil {
		return err
	}
	for i := range memberships {
		if memberships[i].CompanyID == companyID && memberships[i].CanManage() {
			return nil
		}
	}
	return &domain.ErrForbidden{Action: "administrar esta empresa"}
}

// UploadLogo stores a logo image and sets it on the company.
func (s *CompanyService) UploadLogo(ctx context.Context, acct Account, companyID, filename, contentType string, body io.Reader) (*domain.Company, error) {
	ctx, span := companyTracer.Start(ctx, "CompanyService.UploadLogo")
	defer span.End()

	snap, err := requireBusiness(acct)
	if err != nil {
		return nil, err
	}
	if err := s.requireManager(ctx, snap.User.ID, companyID); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, &domain.ErrValidation{Field: "file", Message: "El logo debe ser una imagen"}
	}

	url, err := s.media.UploadFile(ctx, s.logoBucket, "companies/"+companyID, filename, contentType, body)
	if err != nil {
		return nil, err
	}
	company, err := s.store.UpdateCompany(ctx, companyID, map[string]any{"logo_url": url})
	if err != nil {
		return nil, err
	}
	acct.Refetch()
	return company, nil
}
