package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/service"

	"go.uber.org/zap"
)

func newMessagingService(store *mockMessaging) *service.MessagingService {
	return service.NewMessagingService(store, observability.NewMetrics(), zap.NewNop())
}

func TestStartConversation_ReusesExisting(t *testing.T) {
	store := newMockMessaging()
	store.conversations["c1"] = &domain.Conversation{ID: "c1", Participant1ID: "u2", Participant2ID: "u1"}
	svc := newMessagingService(store)

	conv, err := svc.Start(context.Background(), newAccount(domain.RoleFreemiumTalent), "u2")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if conv.ID != "c1" || len(store.conversations) != 1 {
		t.Errorf("expected the existing conversation, got %+v", conv)
	}
}

func TestStartConversation_CreatesAndRejectsSelf(t *testing.T) {
	store := newMockMessaging()
	svc := newMessagingService(store)
	acct := newAccount(domain.RoleFreemiumTalent)

	conv, err := svc.Start(context.Background(), acct, "u2")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if conv.Participant1ID != "u1" || conv.Participant2ID != "u2" {
		t.Errorf("unexpected participants %+v", conv)
	}

	_, err = svc.Start(context.Background(), acct, "u1")
	var valErr *domain.ErrValidation
	if !errors.As(err, &valErr) {
		t.Errorf("expected ErrValidation for a self conversation, got %v", err)
	}
}

func TestSendMessage(t *testing.T) {
	store := newMockMessaging()
	store.conversations["c1"] = &domain.Conversation{ID: "c1", Participant1ID: "u1", Participant2ID: "u2"}
	store.conversations["c2"] = &domain.Conversation{ID: "c2", Participant1ID: "u3", Participant2ID: "u4"}
	svc := newMessagingService(store)
	acct := newAccount(domain.RoleFreemiumTalent)
	ctx := context.Background()

	msg, err := svc.Send(ctx, acct, "c1", " hola ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.SenderID != "u1" || msg.Content != "hola" {
		t.Errorf("unexpected message %+v", msg)
	}

	var valErr *domain.ErrValidation
	if _, err := svc.Send(ctx, acct, "c1", "   "); !errors.As(err, &valErr) {
		t.Errorf("expected ErrValidation for empty content, got %v", err)
	}
	if _, err := svc.Send(ctx, acct, "c1", strings.Repeat("a", 5001)); !errors.As(err, &valErr) {
		t.Errorf("expected ErrValidation for long content, got %v", err)
	}

	var notFound *domain.ErrNotFound
	if _, err := svc.Send(ctx, acct, "c2", "hola"); !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound for a foreign conversation, got %v", err)
	}
}

func TestMarkConversationRead(t *testing.T) {
	store := newMockMessaging()
	store.conversations["c1"] = &domain.Conversation{ID: "c1", Participant1ID: "u1", Participant2ID: "u2"}
	svc := newMessagingService(store)

	if err := svc.MarkRead(context.Background(), newAccount(domain.RoleFreemiumTalent), "c1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(store.readMarks) != 1 || store.readMarks[0] != "c1:u1" {
		t.Errorf("unexpected read marks %v", store.readMarks)
	}
}
