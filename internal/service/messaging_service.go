package service

import (
	"context"
	"errors"
	"strings"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var messagingTracer = otel.Tracer("service/messaging")

const (
	maxMessageLength    = 5000
	defaultMessageLimit = 100
)

// MessagingService manages one-to-one conversations.
type MessagingService struct {
	store   port.MessagingStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewMessagingService(store port.MessagingStore, metrics *observability.Metrics, logger *zap.Logger) *MessagingService {
	return &MessagingService{store: store, metrics: metrics, logger: logger}
}

func (s *MessagingService) ListConversations(ctx context.Context, acct Account) ([]domain.Conversation, error) {
	ctx, span := messagingTracer.Start(ctx, "MessagingService.ListConversations")
	defer span.End()

	snap, err := requireUser(acct)
	if err != nil {
		return nil, err
	}
	return s.store.ListConversations(ctx, snap.User.ID)
}

// Start returns the conversation between the caller and otherUserID,
// creating it when none exists.
func (s *MessagingService) Start(ctx context.Context, acct Account, otherUserID string) (*domain.Conversation, error) {
	ctx, span := messagingTracer.Start(ctx, "MessagingService.Start")
	defer span.End()

	snap, err := requireUser(acct)
	if err != nil {
		return nil, err
	}
	if otherUserID == "" || otherUserID == snap.User.ID {
		return nil, &domain.ErrValidation{Field: "userId", Message: "Elige a otra persona para conversar"}
	}

	existing, err := s.store.FindConversation(ctx, snap.User.ID, otherUserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	conv, err := s.store.CreateConversation(ctx, &domain.Conversation{
		Participant1ID: snap.User.ID,
		Participant2ID: otherUserID,
	})
	var dup *domain.ErrDuplicate
	if errors.As(err, &dup) {
		// Created concurrently by the other participant.
		conv, err = s.store.FindConversation(ctx, snap.User.ID, otherUserID)
		return found(conv, err, "conversation", otherUserID)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("conversation created", zap.String("conversation_id", conv.ID))
	return conv, nil
}

func (s *MessagingService) ListMessages(ctx context.Context, acct Account, conversationID string, limit int) ([]domain.Message, error) {
	ctx, span := messagingTracer.Start(ctx, "MessagingService.ListMessages")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	if _, err := s.participant(ctx, acct, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultMessageLimit {
		limit = defaultMessageLimit
	}
	return s.store.ListMessages(ctx, conversationID, limit)
}

func (s *MessagingService) Send(ctx context.Context, acct Account, conversationID, content string) (*domain.Message, error) {
	ctx, span := messagingTracer.Start(ctx, "MessagingService.Send")
	defer span.End()

	userID, err := s.participant(ctx, acct, conversationID)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "El mensaje está vacío"}
	}
	if len([]rune(content)) > maxMessageLength {
		return nil, &domain.ErrValidation{Field: "content", Message: "El mensaje es demasiado largo"}
	}

	return s.store.CreateMessage(ctx, &domain.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        content,
	})
}

// MarkRead marks the other participant's messages as read.
func (s *MessagingService) MarkRead(ctx context.Context, acct Account, conversationID string) error {
	ctx, span := messagingTracer.Start(ctx, "MessagingService.MarkRead")
	defer span.End()

	userID, err := s.participant(ctx, acct, conversationID)
	if err != nil {
		return err
	}
	return s.store.MarkConversationRead(ctx, conversationID, userID)
}

// participant returns the caller's id once they are known to take part in
// the conversation.
func (s *MessagingService) participant(ctx context.Context, acct Account, conversationID string) (string, error) {
	snap, err := requireUser(acct)
	if err != nil {
		return "", err
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if conv, err = found(conv, err, "conversation", conversationID); err != nil {
		return "", err
	}
	if !conv.HasParticipant(snap.User.ID) {
		// Not revealing foreign conversations.
		return "", &domain.ErrNotFound{Resource: "conversation", ID: conversationID}
	}
	return snap.User.ID, nil
}
