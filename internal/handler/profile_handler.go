package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// 3. Perfil y tipo de usuario
// ============================================================

func updateProfileHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/profile")
		defer span.End()

		var req domain.UpdateProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		profile, err := StoreFromContext(ctx).UpdateProfile(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

type uploadFunc func(ctx context.Context, acct service.Account, filename, contentType string, body io.Reader) (*domain.Profile, error)

func uploadAvatarHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return profileUploadHandler("POST /v1/profile/avatar", svc.UploadAvatar, logger)
}

func uploadVideoHandler(svc *service.ProfileService, logger *zap.Logger) http.HandlerFunc {
	return profileUploadHandler("POST /v1/profile/video", svc.UploadVideo, logger)
}

func profileUploadHandler(route string, upload uploadFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), route)
		defer span.End()

		file, header, ok := formFile(w, r)
		if !ok {
			return
		}
		defer file.Close()

		profile, err := upload(ctx, StoreFromContext(ctx), header.Filename, header.Header.Get("Content-Type"), file)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

// formFile reads the "file" part of a multipart upload; it writes the 400 itself.
func formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "El archivo es demasiado grande o no es válido")
		return nil, nil, false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Falta el archivo")
		return nil, nil, false
	}
	return file, header, true
}

func switchUserTypeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/user-type")
		defer span.End()

		var req domain.SwitchUserTypeRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		resp, err := StoreFromContext(ctx).SwitchUserType(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
