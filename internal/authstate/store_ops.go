package authstate

import (
	"context"
	"strings"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Sign up / sign in / sign out
// ============================================================

func (s *Store) SignUp(ctx context.Context, req *domain.SignUpRequest) (*domain.SignUpResponse, error) {
	ctx, span := tracer.Start(ctx, "Store.SignUp")
	defer span.End()

	if err := validateCredentials(req.Email, req.Password); err != nil {
		return nil, err
	}
	if req.UserType == "" {
		req.UserType = string(domain.RoleTalent)
	}
	target, ok := domain.IntentRole(req.UserType)
	if !ok {
		return nil, &domain.ErrValidation{Field: "userType", Message: "Tipo de usuario no válido"}
	}
	span.SetAttributes(attribute.String("user_type", req.UserType))

	if err := kv.Set(ctx, s.ns, kv.PendingUserType, req.UserType); err != nil {
		s.logger.Warn("store: failed to store pending user type", zap.Error(err))
	}

	meta := map[string]any{
		domain.MetaFullName: strings.TrimSpace(req.FullName),
		domain.MetaUserType: req.UserType,
	}
	if target == domain.RoleAcademyPremium {
		meta[domain.MetaOriginalUserType] = req.UserType
	}

	session, user, err := s.idp.SignUp(ctx, strings.TrimSpace(req.Email), req.Password, meta)
	if err != nil {
		return nil, err
	}
	s.logger.Info("store: user signed up", zap.String("user_id", user.ID), zap.Bool("confirmation_required", session == nil))

	if session != nil {
		if err := s.session.SetSession(ctx, session, domain.EventSignedIn); err != nil {
			return nil, err
		}
	}
	return &domain.SignUpResponse{User: user, ConfirmationRequired: session == nil}, nil
}

func (s *Store) SignIn(ctx context.Context, req *domain.SignInRequest) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Store.SignIn")
	defer span.End()

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "Correo y contraseña son obligatorios"}
	}

	session, err := s.idp.SignInWithPassword(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return nil, err
	}
	if err := s.session.SetSession(ctx, session, domain.EventSignedIn); err != nil {
		return nil, err
	}
	s.logger.Info("store: user signed in", zap.String("user_id", session.User.ID))
	return &session.User, nil
}

// SignInWithOAuth stores the signup intent and the PKCE verifier and
// returns the provider URL to redirect the browser to.
func (s *Store) SignInWithOAuth(ctx context.Context, req *domain.OAuthStartRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "Store.SignInWithOAuth")
	defer span.End()

	if req.Provider == "" {
		return "", &domain.ErrValidation{Field: "provider", Message: "Proveedor obligatorio"}
	}
	span.SetAttributes(attribute.String("provider", req.Provider))

	if req.UserType != "" {
		if _, ok := domain.IntentRole(req.UserType); !ok {
			return "", &domain.ErrValidation{Field: "userType", Message: "Tipo de usuario no válido"}
		}
		if err := kv.Set(ctx, s.ns, kv.PendingUserType, req.UserType); err != nil {
			return "", err
		}
	}

	challenge, err := s.session.StartPKCE(ctx)
	if err != nil {
		return "", err
	}
	redirectTo := req.RedirectTo
	if redirectTo == "" {
		redirectTo = s.siteURL + "/auth/callback"
	}
	return s.idp.AuthorizeURL(req.Provider, redirectTo, challenge), nil
}

// CompleteOAuth exchanges the callback code. recovery marks password-reset links.
func (s *Store) CompleteOAuth(ctx context.Context, code string, recovery bool) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Store.CompleteOAuth")
	defer span.End()

	if code == "" {
		return nil, &domain.ErrValidation{Field: "code", Message: "Código de autorización obligatorio"}
	}
	event := domain.EventSignedIn
	if recovery {
		event = domain.EventPasswordRecovery
	}
	session, err := s.session.ExchangeCode(ctx, code, event)
	if err != nil {
		return nil, err
	}
	return &session.User, nil
}

// SignOut always ends signed out with an empty client namespace, even
// when the remote call fails, and returns where the browser must go.
func (s *Store) SignOut(ctx context.Context) domain.SignOutResponse {
	ctx, span := tracer.Start(ctx, "Store.SignOut")
	defer span.End()

	if err := s.session.SignOut(ctx); err != nil {
		s.logger.Warn("store: remote sign-out failed, clearing local state anyway", zap.Error(err))
	}

	// A pipeline run still committing for the old session finishes first;
	// later ones find no session and back off.
	s.commitMu.Lock()
	s.watcher.Stop()
	if err := s.ns.Clear(ctx); err != nil {
		s.logger.Error("store: failed to clear client storage", zap.Error(err))
	}
	s.publish(signedOut)
	s.commitMu.Unlock()

	return domain.SignOutResponse{RedirectTo: s.siteURL + "/"}
}

func (s *Store) Refresh(ctx context.Context) error {
	_, err := s.session.Refresh(ctx)
	return err
}

// ============================================================
// Password
// ============================================================

func (s *Store) ResetPassword(ctx context.Context, req *domain.PasswordResetRequest) error {
	ctx, span := tracer.Start(ctx, "Store.ResetPassword")
	defer span.End()

	if !strings.Contains(req.Email, "@") {
		return &domain.ErrValidation{Field: "email", Message: "Correo no válido"}
	}
	redirectTo := req.RedirectTo
	if redirectTo == "" {
		redirectTo = s.siteURL + "/reset-password"
	}
	return s.idp.ResetPasswordForEmail(ctx, strings.TrimSpace(req.Email), redirectTo)
}

func (s *Store) UpdatePassword(ctx context.Context, req *domain.PasswordUpdateRequest) error {
	ctx, span := tracer.Start(ctx, "Store.UpdatePassword")
	defer span.End()

	if _, err := s.requireUser(); err != nil {
		return err
	}
	if len(req.Password) < minPasswordLength {
		return &domain.ErrValidation{Field: "password", Message: "La contraseña debe tener al menos 6 caracteres"}
	}
	_, err := s.session.UpdateUser(ctx, &domain.UserAttributes{Password: req.Password})
	return err
}

// ============================================================
// Profile
// ============================================================

func (s *Store) UpdateProfile(ctx context.Context, req *domain.UpdateProfileRequest) (*domain.Profile, error) {
	updates := map[string]any{}
	setIf(updates, "full_name", req.FullName)
	setIf(updates, "phone", req.Phone)
	setIf(updates, "country", req.Country)
	setIf(updates, "city", req.City)
	if len(updates) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "No hay cambios para guardar"}
	}
	return s.PatchProfile(ctx, updates)
}

// PatchProfile writes profile columns, recomputing completeness, and
// publishes the stored row.
func (s *Store) PatchProfile(ctx context.Context, updates map[string]any) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Store.PatchProfile")
	defer span.End()

	snap, err := s.requireUser()
	if err != nil {
		return nil, err
	}

	merged := domain.Profile{ID: snap.User.ID}
	if snap.Profile != nil {
		merged = *snap.Profile
	}
	for col, v := range updates {
		str, _ := v.(string)
		switch col {
		case "full_name":
			merged.FullName = str
		case "phone":
			merged.Phone = str
		case "country":
			merged.Country = str
		case "city":
			merged.City = str
		case "avatar_url":
			merged.AvatarURL = str
		case "video_url":
			merged.VideoURL = str
		}
	}
	updates["profile_completeness"] = merged.ComputeCompleteness()

	profile, err := s.data.UpdateProfile(ctx, snap.User.ID, updates)
	if err != nil {
		return nil, err
	}
	s.publish(func(snap *domain.AuthSnapshot) {
		if snap.IsAuthenticated {
			snap.Profile = profile
		}
	})
	return profile, nil
}

// ============================================================
// Companies
// ============================================================

func (s *Store) CreateCompany(ctx context.Context, req *domain.CompanyRequest) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Store.CreateCompany")
	defer span.End()

	snap, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if !snap.UserRole.IsBusiness() {
		return nil, &domain.ErrForbidden{Action: "crear una empresa requiere un perfil de empresa"}
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "El nombre de la empresa es obligatorio"}
	}

	c := &domain.Company{UserID: snap.User.ID}
	applyCompanyRequest(c, req)
	created, err := s.data.CreateCompany(ctx, c)
	if err != nil {
		return nil, err
	}

	s.commitFor(snap.User.ID, func(*domain.Session) {
		if err := kv.Set(ctx, s.ns, kv.ActiveCompanyID, created.ID); err != nil {
			s.logger.Warn("store: failed to persist active company", zap.Error(err))
		}
		s.publish(func(snap *domain.AuthSnapshot) {
			companies := make([]domain.Company, 0, len(snap.UserCompanies)+1)
			companies = append(companies, snap.UserCompanies...)
			snap.UserCompanies = append(companies, *created)
			snap.Company = created
			snap.ActiveCompanyID = created.ID
		})
	})
	s.logger.Info("store: company created", zap.String("company_id", created.ID))
	return created, nil
}

// UpdateCompany edits the active company; owners and admins only.
func (s *Store) UpdateCompany(ctx context.Context, req *domain.CompanyRequest) (*domain.Company, error) {
	ctx, span := tracer.Start(ctx, "Store.UpdateCompany")
	defer span.End()

	snap, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if snap.Company == nil {
		return nil, &domain.ErrNotFound{Resource: "company", ID: "active"}
	}
	if ok, err := s.canManage(ctx, snap.User.ID, snap.Company); err != nil {
		return nil, err
	} else if !ok {
		return nil, &domain.ErrForbidden{Action: "editar esta empresa"}
	}

	updates := companyUpdates(req)
	if len(updates) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "No hay cambios para guardar"}
	}
	updated, err := s.data.UpdateCompany(ctx, snap.Company.ID, updates)
	if err != nil {
		return nil, err
	}

	s.publish(func(snap *domain.AuthSnapshot) {
		companies := make([]domain.Company, len(snap.UserCompanies))
		copy(companies, snap.UserCompanies)
		for i := range companies {
			if companies[i].ID == updated.ID {
				companies[i] = *updated
			}
		}
		snap.UserCompanies = companies
		if snap.Company != nil && snap.Company.ID == updated.ID {
			snap.Company = updated
		}
	})
	return updated, nil
}

func (s *Store) canManage(ctx context.Context, userID string, c *domain.Company) (bool, error) {
	if c.UserID == userID {
		return true, nil
	}
	memberships, err := s.data.ListMemberships(ctx, userID)
	if err != nil {
		return false, err
	}
	for i := range memberships {
		if memberships[i].CompanyID == c.ID && memberships[i].CanManage() {
			return true, nil
		}
	}
	return false, nil
}

// SwitchCompany makes companyID active. Only ids listed in
// UserCompanies are accepted; pending memberships never are.
func (s *Store) SwitchCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	snap, err := s.requireUser()
	if err != nil {
		return nil, err
	}

	var target *domain.Company
	for i := range snap.UserCompanies {
		if snap.UserCompanies[i].ID == companyID {
			c := snap.UserCompanies[i]
			target = &c
			break
		}
	}
	if target == nil {
		return nil, &domain.ErrForbidden{Action: "cambiar a una empresa a la que no perteneces"}
	}

	var setErr error
	switched := s.commitFor(snap.User.ID, func(*domain.Session) {
		if setErr = kv.Set(ctx, s.ns, kv.ActiveCompanyID, target.ID); setErr != nil {
			return
		}
		s.publish(func(snap *domain.AuthSnapshot) {
			snap.Company = target
			snap.ActiveCompanyID = target.ID
		})
	})
	if setErr != nil {
		return nil, setErr
	}
	if !switched {
		return nil, &domain.ErrUnauthorized{Message: "Debes iniciar sesión"}
	}
	return target, nil
}

// ============================================================
// User type
// ============================================================

// SwitchUserType persists a new role, syncs metadata and reloads user data.
func (s *Store) SwitchUserType(ctx context.Context, req *domain.SwitchUserTypeRequest) (*domain.SwitchUserTypeResponse, error) {
	ctx, span := tracer.Start(ctx, "Store.SwitchUserType")
	defer span.End()

	snap, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	target, ok := domain.IntentRole(req.UserType)
	if !ok {
		return nil, &domain.ErrValidation{Field: "userType", Message: "Tipo de usuario no válido"}
	}

	if target != snap.UserRole {
		if err := s.data.UpdateRole(ctx, snap.User.ID, target); err != nil {
			return nil, err
		}
		meta := map[string]any{domain.MetaUserType: string(target)}
		if orig := snap.User.MetadataString(domain.MetaOriginalUserType); orig != "" && orig != string(target) {
			meta[domain.MetaOriginalUserType] = nil
		}
		if _, err := s.session.UpdateUser(ctx, &domain.UserAttributes{Data: meta}); err != nil {
			s.logger.Warn("store: failed to sync user type metadata", zap.Error(err))
		}
		s.logger.Info("store: user type switched",
			zap.String("user_id", snap.User.ID),
			zap.String("from", string(snap.UserRole)),
			zap.String("to", string(target)),
		)
	}

	data := s.fetcher.Fetch(ctx, snap.User)
	data.Role = target
	var active *domain.Company
	s.commitFor(snap.User.ID, func(*domain.Session) {
		active = s.resolveActiveCompany(ctx, data)
		s.publish(func(snap *domain.AuthSnapshot) {
			if !snap.IsAuthenticated {
				return
			}
			snap.UserRole = target
			snap.Profile = data.Profile
			snap.UserCompanies = data.Companies
			snap.Company = active
			snap.ActiveCompanyID = ""
			if active != nil {
				snap.ActiveCompanyID = active.ID
			}
		})
	})

	return &domain.SwitchUserTypeResponse{UserRole: target, RedirectTo: target.Dashboard(active != nil)}, nil
}

// ============================================================
// Helpers
// ============================================================

func (s *Store) requireUser() (domain.AuthSnapshot, error) {
	snap := s.Snapshot()
	if !snap.IsAuthenticated || snap.User == nil {
		return snap, &domain.ErrUnauthorized{Message: "Debes iniciar sesión"}
	}
	return snap, nil
}

func validateCredentials(email, password string) error {
	if !strings.Contains(email, "@") {
		return &domain.ErrValidation{Field: "email", Message: "Correo no válido"}
	}
	if len(password) < minPasswordLength {
		return &domain.ErrValidation{Field: "password", Message: "La contraseña debe tener al menos 6 caracteres"}
	}
	return nil
}

func setIf(m map[string]any, key string, v *string) {
	if v != nil {
		m[key] = strings.TrimSpace(*v)
	}
}

func companyUpdates(req *domain.CompanyRequest) map[string]any {
	updates := map[string]any{}
	setIf(updates, "name", req.Name)
	setIf(updates, "description", req.Description)
	setIf(updates, "website", req.Website)
	setIf(updates, "industry", req.Industry)
	setIf(updates, "size", req.Size)
	setIf(updates, "country", req.Country)
	setIf(updates, "city", req.City)
	return updates
}

func applyCompanyRequest(c *domain.Company, req *domain.CompanyRequest) {
	get := func(v *string) string {
		if v == nil {
			return ""
		}
		return strings.TrimSpace(*v)
	}
	c.Name = get(req.Name)
	c.Description = get(req.Description)
	c.Website = get(req.Website)
	c.Industry = get(req.Industry)
	c.Size = get(req.Size)
	c.Country = get(req.Country)
	c.City = get(req.City)
}
