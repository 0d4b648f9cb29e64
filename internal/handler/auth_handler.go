package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/authstate"
	"github.com/boddenberg/marketplace-bff-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// 2. Autenticación
// ============================================================

func signUpHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/signup")
		defer span.End()

		var req domain.SignUpRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		resp, err := StoreFromContext(ctx).SignUp(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, resp)
	}
}

func signInHandler(wait time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/signin")
		defer span.End()

		var req domain.SignInRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		store := StoreFromContext(ctx)
		user, err := store.SignIn(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, awaitSession(ctx, store, user.ID, wait))
	}
}

func signOutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/signout")
		defer span.End()

		writeJSON(w, http.StatusOK, StoreFromContext(ctx).SignOut(ctx))
	}
}

func refreshHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/refresh")
		defer span.End()

		if err := StoreFromContext(ctx).Refresh(ctx); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func oauthStartHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/oauth/start")
		defer span.End()

		var req domain.OAuthStartRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		url, err := StoreFromContext(ctx).SignInWithOAuth(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.OAuthStartResponse{URL: url})
	}
}

// oauthCallbackHandler exchanges the provider code; type=recovery marks
// password-reset links.
func oauthCallbackHandler(wait time.Duration, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/auth/oauth/callback")
		defer span.End()

		q := r.URL.Query()
		if desc := q.Get("error_description"); desc != "" {
			logger.Warn("oauth: provider returned an error", zap.String("error", desc))
			writeError(w, http.StatusBadRequest, desc)
			return
		}
		recovery := q.Get("type") == "recovery"

		store := StoreFromContext(ctx)
		user, err := store.CompleteOAuth(ctx, q.Get("code"), recovery)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp := awaitSession(ctx, store, user.ID, wait)
		if recovery {
			resp.RedirectTo = "/reset-password"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// oauthWaitHandler blocks until a session is established or wait elapses.
func oauthWaitHandler(wait time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, awaitSession(r.Context(), StoreFromContext(r.Context()), "", wait))
	}
}

func awaitSession(ctx context.Context, store *authstate.Store, userID string, wait time.Duration) sessionResponse {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	snap, err := store.AwaitReady(ctx, userID)
	resp := newSessionResponse(snap)
	if err != nil {
		resp.TimedOut = true
		if !snap.IsAuthenticated {
			resp.RedirectTo = "/login"
		}
	}
	return resp
}

func passwordResetHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/password/reset")
		defer span.End()

		var req domain.PasswordResetRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := StoreFromContext(ctx).ResetPassword(ctx, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Te enviamos un correo para restablecer tu contraseña"})
	}
}

func passwordUpdateHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/auth/password")
		defer span.End()

		var req domain.PasswordUpdateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := StoreFromContext(ctx).UpdatePassword(ctx, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "Contraseña actualizada"})
	}
}
