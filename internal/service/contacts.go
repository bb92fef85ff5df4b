package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"lyink/relay-service/internal/models"
	"lyink/relay-service/internal/repository"
)

// ContactService backs the sidebar: every user except the requester. User
// rows themselves are created by the external signup service; this core only
// reads them.
type ContactService interface {
	ListContacts(ctx context.Context, requesterID string) ([]*models.User, error)
}

type contactService struct {
	repository repository.MessageRepository
	logger     *logrus.Logger
}

func NewContactService(repo repository.MessageRepository, logger *logrus.Logger) ContactService {
	return &contactService{
		repository: repo,
		logger:     logger,
	}
}

func (s *contactService) ListContacts(ctx context.Context, requesterID string) ([]*models.User, error) {
	users, err := s.repository.ListContacts(ctx, requesterID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list contacts")
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}
