package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lyink/relay-service/internal/events"
	"lyink/relay-service/internal/models"
	"lyink/relay-service/internal/repository"
)

// Pusher is the live-channel side of the presence registry. A missing
// recipient is normal: EmitToUser reports false and delivery carries on.
type Pusher interface {
	EmitToUser(userID string, env events.Envelope) bool
	BroadcastAll(env events.Envelope)
}

type DeliveryService interface {
	Send(ctx context.Context, senderID, receiverID, body string) (*models.Message, error)
	GetConversation(ctx context.Context, userID, otherUserID string) ([]*models.Message, error)
	UpdateMessage(ctx context.Context, messageID, requesterID, body string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) error
	DeleteConversation(ctx context.Context, userID, otherUserID string) error
}

type deliveryService struct {
	repository repository.MessageRepository
	pusher     Pusher
	reads      ReadService
	logger     *logrus.Logger
}

func NewDeliveryService(repo repository.MessageRepository, pusher Pusher, reads ReadService, logger *logrus.Logger) DeliveryService {
	return &deliveryService{
		repository: repo,
		pusher:     pusher,
		reads:      reads,
		logger:     logger,
	}
}

// Send persists a message and pushes it to both sides. Persistence comes
// first: a client never sees a push for a message that failed to store. The
// sender always gets the persisted message back as an echo so other tabs and
// the optimistic client state converge on the server-assigned id.
func (s *deliveryService) Send(ctx context.Context, senderID, receiverID, body string) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}
	if senderID == receiverID {
		return nil, ErrSelfConversation
	}

	conv, err := s.repository.FindOrCreateConversation(ctx, senderID, receiverID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to resolve conversation")
		return nil, fmt.Errorf("resolve conversation: %w", err)
	}

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           body,
		Read:           false,
	}

	if err := s.repository.CreateMessage(ctx, msg); err != nil {
		s.logger.WithError(err).Error("Failed to persist message")
		return nil, fmt.Errorf("persist message: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"message_id":      msg.ID,
		"conversation_id": conv.ID,
		"sender_id":       senderID,
		"receiver_id":     receiverID,
	}).Info("Message sent")

	env := events.NewMessageEvent(msg)
	s.pusher.EmitToUser(receiverID, env)
	s.pusher.EmitToUser(senderID, env)

	return msg, nil
}

// GetConversation returns the thread in chronological order and, as a side
// effect, marks messages addressed to the requester as read.
func (s *deliveryService) GetConversation(ctx context.Context, userID, otherUserID string) ([]*models.Message, error) {
	conv, err := s.repository.FindConversationByParticipants(ctx, userID, otherUserID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return []*models.Message{}, nil
		}
		return nil, err
	}

	if err := s.reads.MarkConversationRead(ctx, userID, conv.ID); err != nil {
		return nil, err
	}

	messages, err := s.repository.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return messages, nil
}

func (s *deliveryService) UpdateMessage(ctx context.Context, messageID, requesterID, body string) (*models.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := s.repository.FindMessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, ErrForbidden
	}

	updated, err := s.repository.UpdateMessageBody(ctx, messageID, body)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		s.logger.WithError(err).Error("Failed to update message")
		return nil, err
	}

	env := events.MessageUpdatedEvent(updated)
	s.pusher.EmitToUser(updated.ReceiverID, env)
	s.pusher.EmitToUser(updated.SenderID, env)

	return updated, nil
}

func (s *deliveryService) DeleteMessage(ctx context.Context, messageID, requesterID string) error {
	msg, err := s.repository.FindMessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if msg.SenderID != requesterID {
		return ErrForbidden
	}

	if err := s.repository.DeleteMessage(ctx, messageID); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"message_id": messageID,
		"sender_id":  requesterID,
	}).Info("Message deleted")

	return nil
}

func (s *deliveryService) DeleteConversation(ctx context.Context, userID, otherUserID string) error {
	conv, err := s.repository.FindConversationByParticipants(ctx, userID, otherUserID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return ErrConversationNotFound
		}
		return err
	}

	if err := s.repository.DeleteConversation(ctx, conv.ID); err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return ErrConversationNotFound
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"user_id":         userID,
		"other_user_id":   otherUserID,
	}).Info("Conversation deleted")

	return nil
}
