package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"lyink/relay-service/internal/events"
	"lyink/relay-service/internal/repository"
)

type ReadService interface {
	// MarkConversationRead flips every unread message addressed to the
	// requester in the conversation, notifying each original sender.
	MarkConversationRead(ctx context.Context, requesterID, conversationID string) error
	// MarkMessageRead acknowledges a single message on behalf of its receiver.
	MarkMessageRead(ctx context.Context, messageID string) error
	// PushUnreadCounts recomputes the per-sender unread map for a user and
	// pushes it to their own connections. Best-effort: failures are logged,
	// never surfaced, because the read-marking already committed.
	PushUnreadCounts(ctx context.Context, userID string)
}

type readService struct {
	repository repository.MessageRepository
	pusher     Pusher
	logger     *logrus.Logger
}

func NewReadService(repo repository.MessageRepository, pusher Pusher, logger *logrus.Logger) ReadService {
	return &readService{
		repository: repo,
		pusher:     pusher,
		logger:     logger,
	}
}

func (s *readService) MarkConversationRead(ctx context.Context, requesterID, conversationID string) error {
	unread, err := s.repository.ListUnreadMessages(ctx, conversationID, requesterID)
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		return nil
	}

	for _, msg := range unread {
		if err := s.repository.MarkMessageRead(ctx, msg.ID); err != nil {
			return err
		}
		s.pusher.EmitToUser(msg.SenderID, events.MessageReadEvent(msg.ID))
	}

	s.logger.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"requester_id":    requesterID,
		"marked":          len(unread),
	}).Debug("Marked conversation read")

	s.PushUnreadCounts(ctx, requesterID)
	return nil
}

func (s *readService) MarkMessageRead(ctx context.Context, messageID string) error {
	msg, err := s.repository.FindMessageByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		return err
	}

	if err := s.repository.MarkMessageRead(ctx, messageID); err != nil {
		return err
	}

	s.pusher.EmitToUser(msg.SenderID, events.MessageReadEvent(msg.ID))
	s.PushUnreadCounts(ctx, msg.ReceiverID)
	return nil
}

func (s *readService) PushUnreadCounts(ctx context.Context, userID string) {
	counts, err := s.repository.AggregateUnreadBySender(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to aggregate unread counts")
		return
	}
	s.pusher.EmitToUser(userID, events.UnreadCountsEvent(counts))
}
