package service

import (
	"lyink/relay-service/internal/events"
)

// TypingService relays start/stop-typing signals between two users. Nothing
// is persisted and no state is tracked: each signal is a single ephemeral
// event, dropped silently when the receiver has no live connection. Flood
// control is the sending client's job.
type TypingService interface {
	Typing(senderID, receiverID string)
	StopTyping(senderID, receiverID string)
}

type typingService struct {
	pusher Pusher
}

func NewTypingService(pusher Pusher) TypingService {
	return &typingService{pusher: pusher}
}

func (s *typingService) Typing(senderID, receiverID string) {
	s.pusher.EmitToUser(receiverID, events.TypingEvent(senderID))
}

func (s *typingService) StopTyping(senderID, receiverID string) {
	s.pusher.EmitToUser(receiverID, events.StopTypingEvent(senderID))
}
