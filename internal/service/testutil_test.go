package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"lyink/relay-service/internal/events"
	"lyink/relay-service/internal/models"
	"lyink/relay-service/internal/repository"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// fakeRepo is an in-memory stand-in for the PostgreSQL repository.
type fakeRepo struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      map[string]*models.Message

	failCreateMessage bool
	failAggregate     bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string]*models.Message),
	}
}

func (r *fakeRepo) FindConversationByParticipants(_ context.Context, a, b string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	low, high := models.CanonicalPair(a, b)
	for _, conv := range r.conversations {
		if conv.UserLow == low && conv.UserHigh == high {
			return conv, nil
		}
	}
	return nil, repository.ErrConversationNotFound
}

func (r *fakeRepo) FindOrCreateConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	if conv, err := r.FindConversationByParticipants(ctx, a, b); err == nil {
		return conv, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	low, high := models.CanonicalPair(a, b)
	conv := &models.Conversation{
		ID:        uuid.New().String(),
		UserLow:   low,
		UserHigh:  high,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.conversations[conv.ID] = conv
	return conv, nil
}

func (r *fakeRepo) DeleteConversation(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[id]; !ok {
		return repository.ErrConversationNotFound
	}
	delete(r.conversations, id)
	for msgID, msg := range r.messages {
		if msg.ConversationID == id {
			delete(r.messages, msgID)
		}
	}
	return nil
}

func (r *fakeRepo) CreateMessage(_ context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateMessage {
		return fmt.Errorf("store unavailable")
	}
	stored := *msg
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	r.messages[msg.ID] = &stored
	msg.CreatedAt = stored.CreatedAt
	msg.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *fakeRepo) FindMessageByID(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, repository.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

func (r *fakeRepo) ListMessages(_ context.Context, conversationID string) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID {
			copied := *msg
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) ListUnreadMessages(_ context.Context, conversationID, receiverID string) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID && msg.ReceiverID == receiverID && !msg.Read {
			copied := *msg
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) UpdateMessageBody(_ context.Context, id, body string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok {
		return nil, repository.ErrMessageNotFound
	}
	msg.Body = body
	msg.UpdatedAt = time.Now()
	copied := *msg
	return &copied, nil
}

func (r *fakeRepo) MarkMessageRead(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.messages[id]; ok && !msg.Read {
		msg.Read = true
		msg.UpdatedAt = time.Now()
	}
	return nil
}

func (r *fakeRepo) DeleteMessage(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[id]; !ok {
		return repository.ErrMessageNotFound
	}
	delete(r.messages, id)
	return nil
}

func (r *fakeRepo) CountUnread(_ context.Context, receiverID, senderID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, msg := range r.messages {
		if msg.ReceiverID == receiverID && msg.SenderID == senderID && !msg.Read {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) AggregateUnreadBySender(_ context.Context, receiverID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAggregate {
		return nil, fmt.Errorf("aggregate failed")
	}
	counts := make(map[string]int)
	for _, msg := range r.messages {
		if msg.ReceiverID == receiverID && !msg.Read {
			counts[msg.SenderID]++
		}
	}
	return counts, nil
}

func (r *fakeRepo) ListContacts(_ context.Context, excludeUserID string) ([]*models.User, error) {
	return nil, nil
}

func (r *fakeRepo) InitializeTables() error {
	return nil
}

// fakePusher records every emitted event per user.
type fakePusher struct {
	mu     sync.Mutex
	online map[string]bool
	events map[string][]events.Envelope
}

func newFakePusher(onlineUsers ...string) *fakePusher {
	online := make(map[string]bool)
	for _, id := range onlineUsers {
		online[id] = true
	}
	return &fakePusher{
		online: online,
		events: make(map[string][]events.Envelope),
	}
}

func (p *fakePusher) EmitToUser(userID string, env events.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return false
	}
	p.events[userID] = append(p.events[userID], env)
	return true
}

func (p *fakePusher) BroadcastAll(env events.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for userID := range p.online {
		p.events[userID] = append(p.events[userID], env)
	}
}

func (p *fakePusher) eventsFor(userID string) []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Envelope(nil), p.events[userID]...)
}

func (p *fakePusher) eventsNamed(userID, name string) []events.Envelope {
	var out []events.Envelope
	for _, env := range p.eventsFor(userID) {
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}
