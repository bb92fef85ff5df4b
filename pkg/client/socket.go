package client

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/fasthttp/websocket"

	"lyink/relay-service/internal/events"
)

// Socket is a live-channel connection for a client. Every received envelope
// is folded into the attached Conversation; send helpers stay inside the
// closed event set.
type Socket struct {
	conv *Conversation

	writeMu sync.Mutex
	conn    *websocket.Conn

	done chan struct{}
}

// Dial connects to the relay's websocket endpoint, joins as userID and
// starts the receive loop.
func Dial(endpoint, userID string, conv *Conversation) (*Socket, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	s := &Socket{
		conv: conv,
		conn: conn,
		done: make(chan struct{}),
	}

	if err := s.Join(userID); err != nil {
		conn.Close()
		return nil, err
	}

	go s.readLoop()
	return s, nil
}

func (s *Socket) readLoop() {
	defer close(s.done)
	for {
		var env events.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			return
		}
		s.conv.ApplyEvent(env)
	}
}

func (s *Socket) send(event string, data any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: event, Data: data})
}

func (s *Socket) Join(userID string) error {
	return s.send(events.Join, events.JoinPayload{UserID: userID})
}

func (s *Socket) SendMessage(receiverID, text string) error {
	return s.send(events.SendMessage, events.SendMessagePayload{
		ReceiverID: receiverID,
		Message:    text,
	})
}

func (s *Socket) MarkMessageAsRead(messageID string) error {
	return s.send(events.MarkMessageAsRead, events.MarkReadPayload{MessageID: messageID})
}

func (s *Socket) Typing(receiverID string) error {
	return s.send(events.Typing, events.TypingPayload{ReceiverID: receiverID})
}

func (s *Socket) StopTyping(receiverID string) error {
	return s.send(events.StopTyping, events.TypingPayload{ReceiverID: receiverID})
}

// Close tears the connection down and waits for the receive loop to exit.
func (s *Socket) Close() error {
	err := s.conn.Close()
	<-s.done
	return err
}
