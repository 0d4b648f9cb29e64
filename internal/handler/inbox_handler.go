package handler

import (
	"net/http"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 7. Notificaciones
// ============================================================

func listNotificationsHandler(svc *service.NotificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/notifications")
		defer span.End()

		list, err := svc.List(ctx, StoreFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Notification]{Data: list, Total: len(list)})
	}
}

func unreadCountHandler(svc *service.NotificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/notifications/unread-count")
		defer span.End()

		n, err := svc.UnreadCount(ctx, StoreFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.UnreadCount{Count: n})
	}
}

func markReadHandler(svc *service.NotificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/notifications/{notificationId}/read")
		defer span.End()

		if err := svc.MarkRead(ctx, StoreFromContext(ctx), chi.URLParam(r, "notificationId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func markAllReadHandler(svc *service.NotificationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/notifications/read-all")
		defer span.End()

		if err := svc.MarkAllRead(ctx, StoreFromContext(ctx)); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// 8. Mensajes
// ============================================================

func listConversationsHandler(svc *service.MessagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/conversations")
		defer span.End()

		list, err := svc.ListConversations(ctx, StoreFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if list == nil {
			list = []domain.Conversation{}
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Conversation]{Data: list, Total: len(list)})
	}
}

func startConversationHandler(svc *service.MessagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/conversations")
		defer span.End()

		var req domain.StartConversationRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		conv, err := svc.Start(ctx, StoreFromContext(ctx), req.UserID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, conv)
	}
}

func listMessagesHandler(svc *service.MessagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/conversations/{conversationId}/messages")
		defer span.End()

		list, err := svc.ListMessages(ctx, StoreFromContext(ctx), chi.URLParam(r, "conversationId"), parseLimit(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if list == nil {
			list = []domain.Message{}
		}

		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Message]{Data: list, Total: len(list)})
	}
}

func sendMessageHandler(svc *service.MessagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/conversations/{conversationId}/messages")
		defer span.End()

		var req domain.SendMessageRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		msg, err := svc.Send(ctx, StoreFromContext(ctx), chi.URLParam(r, "conversationId"), req.Content)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, msg)
	}
}

func markConversationReadHandler(svc *service.MessagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/conversations/{conversationId}/read")
		defer span.End()

		if err := svc.MarkRead(ctx, StoreFromContext(ctx), chi.URLParam(r, "conversationId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
