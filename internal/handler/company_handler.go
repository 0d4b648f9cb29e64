package handler

import (
	"net/http"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 4. Empresas y membresías
// ============================================================

func listCompaniesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := StoreFromContext(r.Context()).Snapshot()
		companies := snap.UserCompanies
		if companies == nil {
			companies = []domain.Company{}
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Company]{Data: companies, Total: len(companies)})
	}
}

func createCompanyHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/companies")
		defer span.End()

		var req domain.CompanyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		company, err := StoreFromContext(ctx).CreateCompany(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, company)
	}
}

func switchCompanyHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/companies/active")
		defer span.End()

		var req domain.SwitchCompanyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		company, err := StoreFromContext(ctx).SwitchCompany(ctx, req.CompanyID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, company)
	}
}

// updateCompanyHandler edits the active company; other ids must be
// switched to first.
func updateCompanyHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/companies/{companyId}")
		defer span.End()

		store := StoreFromContext(ctx)
		if companyID := chi.URLParam(r, "companyId"); companyID != store.Snapshot().ActiveCompanyID {
			handleServiceError(w, &domain.ErrConflict{Message: "Cambia a esta empresa antes de editarla"}, logger)
			return
		}

		var req domain.CompanyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		company, err := store.UpdateCompany(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, company)
	}
}

func uploadLogoHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/companies/{companyId}/logo")
		defer span.End()

		file, header, ok := formFile(w, r)
		if !ok {
			return
		}
		defer file.Close()

		company, err := svc.UploadLogo(ctx, StoreFromContext(ctx), chi.URLParam(r, "companyId"),
			header.Filename, header.Header.Get("Content-Type"), file)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, company)
	}
}

func listMembersHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/companies/{companyId}/members")
		defer span.End()

		members, err := svc.ListMembers(ctx, StoreFromContext(ctx), chi.URLParam(r, "companyId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if members == nil {
			members = []domain.Membership{}
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Membership]{Data: members, Total: len(members)})
	}
}

func requestJoinHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/companies/{companyId}/join-requests")
		defer span.End()

		membership, err := svc.RequestJoin(ctx, StoreFromContext(ctx), chi.URLParam(r, "companyId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, membership)
	}
}

func approveMemberHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/companies/{companyId}/members/{userId}/approve")
		defer span.End()

		if err := svc.Approve(ctx, StoreFromContext(ctx), chi.URLParam(r, "companyId"), chi.URLParam(r, "userId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Solicitud aprobada"})
	}
}

func declineMemberHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/companies/{companyId}/members/{userId}/decline")
		defer span.End()

		if err := svc.Decline(ctx, StoreFromContext(ctx), chi.URLParam(r, "companyId"), chi.URLParam(r, "userId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Solicitud rechazada"})
	}
}

func acceptInvitationHandler(svc *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/invitations/{token}/accept")
		defer span.End()

		membership, err := svc.AcceptInvitation(ctx, StoreFromContext(ctx), chi.URLParam(r, "token"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, membership)
	}
}
