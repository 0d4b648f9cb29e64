package handler

import (
	"context"
	"net/http"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 9. Onboarding
// ============================================================

type stepFunc func(ctx context.Context, acct service.Account, flow string) (*domain.OnboardingState, error)

func onboardingStateHandler(svc *service.OnboardingService, logger *zap.Logger) http.HandlerFunc {
	return onboardingStepHandler(svc.State, logger)
}

func onboardingAdvanceHandler(svc *service.OnboardingService, logger *zap.Logger) http.HandlerFunc {
	return onboardingStepHandler(svc.Advance, logger)
}

func onboardingBackHandler(svc *service.OnboardingService, logger *zap.Logger) http.HandlerFunc {
	return onboardingStepHandler(svc.Back, logger)
}

func onboardingStepHandler(step stepFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		state, err := step(ctx, StoreFromContext(ctx), chi.URLParam(r, "flow"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func onboardingDraftHandler(svc *service.OnboardingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]any
		if !decodeJSON(w, r, &fields) {
			return
		}

		ctx := r.Context()
		state, err := svc.SaveDraft(ctx, StoreFromContext(ctx), chi.URLParam(r, "flow"), fields)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func onboardingCompleteHandler(svc *service.OnboardingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/onboarding/{flow}/complete")
		defer span.End()

		result, err := svc.Complete(ctx, StoreFromContext(ctx), chi.URLParam(r, "flow"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}
