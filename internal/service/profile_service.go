package service

import (
	"context"
	"io"
	"strings"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var profileTracer = otel.Tracer("service/profile")

// ProfileService uploads profile media and stores the public URLs on the
// caller's profile.
type ProfileService struct {
	media        port.MediaStorage
	avatarBucket string
	mediaBucket  string
	logger       *zap.Logger
}

func NewProfileService(media port.MediaStorage, avatarBucket, mediaBucket string, logger *zap.Logger) *ProfileService {
	return &ProfileService{media: media, avatarBucket: avatarBucket, mediaBucket: mediaBucket, logger: logger}
}

func (s *ProfileService) UploadAvatar(ctx context.Context, acct Account, filename, contentType string, body io.Reader) (*domain.Profile, error) {
	ctx, span := profileTracer.Start(ctx, "ProfileService.UploadAvatar")
	defer span.End()

	if !strings.HasPrefix(contentType, "image/") {
		return nil, &domain.ErrValidation{Field: "file", Message: "La foto debe ser una imagen"}
	}
	return s.upload(ctx, acct, s.avatarBucket, "avatar_url", filename, contentType, body)
}

func (s *ProfileService) UploadVideo(ctx context.Context, acct Account, filename, contentType string, body io.Reader) (*domain.Profile, error) {
	ctx, span := profileTracer.Start(ctx, "ProfileService.UploadVideo")
	defer span.End()

	if !strings.HasPrefix(contentType, "video/") {
		return nil, &domain.ErrValidation{Field: "file", Message: "El archivo debe ser un video"}
	}
	return s.upload(ctx, acct, s.mediaBucket, "video_url", filename, contentType, body)
}

func (s *ProfileService) upload(ctx context.Context, acct Account, bucket, column, filename, contentType string, body io.Reader) (*domain.Profile, error) {
	snap, err := requireUser(acct)
	if err != nil {
		return nil, err
	}

	url, err := s.media.UploadFile(ctx, bucket, snap.User.ID, filename, contentType, body)
	if err != nil {
		s.logger.Error("profile upload failed",
			zap.String("user_id", snap.User.ID),
			zap.String("bucket", bucket),
			zap.Error(err),
		)
		return nil, err
	}
	return acct.PatchProfile(ctx, map[string]any{column: url})
}
