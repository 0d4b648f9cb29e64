package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/domain"

	"go.uber.org/zap"
)

func (c *Client) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListConversations")
	defer span.End()

	var list []domain.Conversation
	err := c.execute(ctx, "conversations", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf(
			"conversations?or=(participant1_id.%s,participant2_id.%s)&select=*&order=last_message_at.desc.nullslast",
			eq(userID), eq(userID)))
		if err != nil {
			return err
		}
		list, err = decodeRows[domain.Conversation](body, "conversations")
		return err
	})
	return list, err
}

func (c *Client) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetConversation")
	defer span.End()

	var conv *domain.Conversation
	err := c.execute(ctx, "conversations", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("conversations?id=%s&select=*", eq(id)))
		if err != nil {
			return err
		}
		conv, err = decodeFirst[domain.Conversation](body, "conversation")
		return err
	})
	return conv, err
}

// FindConversation looks up the thread between two users in either order.
func (c *Client) FindConversation(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindConversation")
	defer span.End()

	var conv *domain.Conversation
	err := c.execute(ctx, "conversations", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf(
			"conversations?or=(and(participant1_id.%s,participant2_id.%s),and(participant1_id.%s,participant2_id.%s))&select=*&limit=1",
			eq(userA), eq(userB), eq(userB), eq(userA)))
		if err != nil {
			return err
		}
		conv, err = decodeFirst[domain.Conversation](body, "conversation")
		return err
	})
	return conv, err
}

func (c *Client) CreateConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateConversation")
	defer span.End()

	row, err := insertPayload(conv)
	if err != nil {
		return nil, err
	}

	var created *domain.Conversation
	err = c.execute(ctx, "conversations", func() error {
		body, err := c.doPost(ctx, "conversations", row, false)
		if err != nil {
			return err
		}
		created, err = decodeFirst[domain.Conversation](body, "conversation")
		return err
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, &domain.ErrExternalService{Service: "supabase/conversations", Err: fmt.Errorf("empty insert response")}
	}
	return created, nil
}

// ListMessages returns the newest limit messages, oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListMessages")
	defer span.End()

	var msgs []domain.Message
	err := c.execute(ctx, "messages", func() error {
		body, err := c.doGet(ctx, fmt.Sprintf("messages?conversation_id=%s&select=*&order=created_at.desc&limit=%d", eq(conversationID), limit))
		if err != nil {
			return err
		}
		msgs, err = decodeRows[domain.Message](body, "messages")
		return err
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CreateMessage inserts the message and bumps the conversation's last_message_at.
func (c *Client) CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateMessage")
	defer span.End()

	row, err := insertPayload(m)
	if err != nil {
		return nil, err
	}

	var created *domain.Message
	err = c.execute(ctx, "messages", func() error {
		body, err := c.doPost(ctx, "messages", row, false)
		if err != nil {
			return err
		}
		created, err = decodeFirst[domain.Message](body, "message")
		return err
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = m
	}

	err = c.execute(ctx, "conversations", func() error {
		_, err := c.doPatch(ctx, fmt.Sprintf("conversations?id=%s", eq(m.ConversationID)),
			map[string]any{"last_message_at": time.Now().UTC()})
		return err
	})
	if err != nil {
		c.logger.Warn("supabase: failed to bump conversation last_message_at",
			zap.String("conversation_id", m.ConversationID),
			zap.Error(err),
		)
	}
	return created, nil
}

// MarkConversationRead marks every message not sent by readerID as read.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.MarkConversationRead")
	defer span.End()

	return c.execute(ctx, "messages", func() error {
		_, err := c.doPatch(ctx, fmt.Sprintf("messages?conversation_id=%s&sender_id=neq.%s&read=eq.false",
			eq(conversationID), readerID), map[string]any{"read": true})
		return err
	})
}
