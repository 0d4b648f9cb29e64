package handler

import (
	"net/http"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 5. Oportunidades
// ============================================================

func listOpportunitiesHandler(svc *service.OpportunityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/opportunities")
		defer span.End()

		q := r.URL.Query()
		list, err := svc.List(ctx, StoreFromContext(ctx), q.Get("companyId"), q.Get("status"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if list == nil {
			list = []domain.Opportunity{}
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Opportunity]{Data: list, Total: len(list)})
	}
}

func getOpportunityHandler(svc *service.OpportunityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/opportunities/{opportunityId}")
		defer span.End()

		o, err := svc.Get(ctx, StoreFromContext(ctx), chi.URLParam(r, "opportunityId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, o)
	}
}

func createOpportunityHandler(svc *service.OpportunityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/opportunities")
		defer span.End()

		var req domain.OpportunityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		o, err := svc.Create(ctx, StoreFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, o)
	}
}

func updateOpportunityHandler(svc *service.OpportunityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/opportunities/{opportunityId}")
		defer span.End()

		var req domain.OpportunityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		o, err := svc.Update(ctx, StoreFromContext(ctx), chi.URLParam(r, "opportunityId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, o)
	}
}

func deleteOpportunityHandler(svc *service.OpportunityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/opportunities/{opportunityId}")
		defer span.End()

		if err := svc.Delete(ctx, StoreFromContext(ctx), chi.URLParam(r, "opportunityId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func closeOpportunityHandler(svc *service.OpportunityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/opportunities/{opportunityId}/close")
		defer span.End()

		o, err := svc.Close(ctx, StoreFromContext(ctx), chi.URLParam(r, "opportunityId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, o)
	}
}

// Drafts use the id "new" for opportunities that were never saved.

func getDraftHandler(svc *service.OpportunityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		draft, err := svc.GetDraft(ctx, StoreFromContext(ctx), chi.URLParam(r, "opportunityId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

func saveDraftHandler(svc *service.OpportunityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.OpportunityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		ctx := r.Context()
		draft, err := svc.SaveDraft(ctx, StoreFromContext(ctx), chi.URLParam(r, "opportunityId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

func discardDraftHandler(svc *service.OpportunityService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := svc.DiscardDraft(ctx, StoreFromContext(ctx), chi.URLParam(r, "opportunityId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// 6. Postulaciones
// ============================================================

func applyHandler(svc *service.ApplicationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/opportunities/{opportunityId}/applications")
		defer span.End()

		var req domain.ApplyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		a, err := svc.Apply(ctx, StoreFromContext(ctx), chi.URLParam(r, "opportunityId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, a)
	}
}

func listApplicationsHandler(svc *service.ApplicationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/opportunities/{opportunityId}/applications")
		defer span.End()

		list, err := svc.ListForOpportunity(ctx, StoreFromContext(ctx), chi.URLParam(r, "opportunityId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeApplications(w, list)
	}
}

func myApplicationsHandler(svc *service.ApplicationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/me/applications")
		defer span.End()

		list, err := svc.ListMine(ctx, StoreFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeApplications(w, list)
	}
}

func writeApplications(w http.ResponseWriter, list []domain.Application) {
	if list == nil {
		list = []domain.Application{}
	}
	writeJSON(w, http.StatusOK, domain.ListResponse[domain.Application]{Data: list, Total: len(list)})
}

func updateApplicationStatusHandler(svc *service.ApplicationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/applications/{applicationId}/status")
		defer span.End()

		var req domain.ApplicationStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := svc.UpdateStatus(ctx, StoreFromContext(ctx), chi.URLParam(r, "applicationId"), req.Status); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Estado actualizado"})
	}
}
