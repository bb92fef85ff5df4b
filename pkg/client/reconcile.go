package client

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"lyink/relay-service/internal/events"
	"lyink/relay-service/internal/models"
)

var ErrEmptyMessage = errors.New("message cannot be empty")

// Entry is one row of the visible message list. While Pending it exists only
// locally under a temporary id; confirmation swaps in the server message.
type Entry struct {
	Message models.Message
	Pending bool
	TempID  string
}

// Conversation reconciles three independently-arriving signals into one
// duplicate-free message list: locally-optimistic sends, the HTTP response
// confirming them, and live-pushed events (which include the sender's own
// echo and may arrive before the HTTP response).
type Conversation struct {
	mu      sync.Mutex
	selfID  string
	peerID  string
	entries []Entry

	unread     map[string]int
	online     map[string]bool
	peerTyping bool
}

func NewConversation(selfID string) *Conversation {
	return &Conversation{
		selfID: selfID,
		unread: make(map[string]int),
		online: make(map[string]bool),
	}
}

// Open switches the view to a peer, replacing the visible list with the
// fetched history. Any still-pending optimistic entries belong to the
// previous view and are dropped with it.
func (c *Conversation) Open(peerID string, history []*models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.peerID = peerID
	c.peerTyping = false
	c.entries = c.entries[:0]
	for _, msg := range history {
		c.entries = append(c.entries, Entry{Message: *msg})
	}
}

// Submit inserts an optimistic entry and returns its temporary id. The
// caller issues the persistence request and reports back via ConfirmSend or
// FailSend.
func (c *Conversation) Submit(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tempID := uuid.New().String()
	c.entries = append(c.entries, Entry{
		Message: models.Message{
			ID:         tempID,
			SenderID:   c.selfID,
			ReceiverID: c.peerID,
			Body:       text,
		},
		Pending: true,
		TempID:  tempID,
	})
	return tempID, nil
}

// ConfirmSend replaces the optimistic entry with the server-confirmed
// message. If the live echo already claimed the entry, the confirmation
// deduplicates against the server id instead.
func (c *Conversation) ConfirmSend(tempID string, msg *models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].Pending && c.entries[i].TempID == tempID {
			c.entries[i] = Entry{Message: *msg}
			return
		}
	}
	if c.indexByID(msg.ID) < 0 {
		c.entries = append(c.entries, Entry{Message: *msg})
	}
}

// FailSend rolls back an optimistic entry after a failed persistence call.
func (c *Conversation) FailSend(tempID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].Pending && c.entries[i].TempID == tempID {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return
		}
	}
}

// ApplyEvent folds one live-channel event into the local state. Unknown
// events are ignored rather than rejected: the server may be newer.
func (c *Conversation) ApplyEvent(env events.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.Event {
	case events.NewMessage:
		var msg models.Message
		if json.Unmarshal(env.Data, &msg) != nil {
			return
		}
		c.applyNewMessage(&msg)

	case events.MessageUpdated:
		var msg models.Message
		if json.Unmarshal(env.Data, &msg) != nil {
			return
		}
		if i := c.indexByID(msg.ID); i >= 0 {
			c.entries[i].Message = msg
		}

	case events.MessageRead:
		var p events.MessageReadPayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		if i := c.indexByID(p.MessageID); i >= 0 {
			c.entries[i].Message.Read = true
		}

	case events.UnreadCounts:
		var counts map[string]int
		if json.Unmarshal(env.Data, &counts) != nil {
			return
		}
		c.unread = counts

	case events.Typing:
		var p events.TypingPayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		if p.SenderID == c.peerID {
			c.peerTyping = true
		}

	case events.StopTyping:
		var p events.TypingPayload
		if json.Unmarshal(env.Data, &p) != nil {
			return
		}
		if p.SenderID == c.peerID {
			c.peerTyping = false
		}

	case events.OnlineUsers:
		var ids []string
		if json.Unmarshal(env.Data, &ids) != nil {
			return
		}
		online := make(map[string]bool, len(ids))
		for _, id := range ids {
			online[id] = true
		}
		c.online = online
	}
}

func (c *Conversation) applyNewMessage(msg *models.Message) {
	// Relevance: the event must involve us at all, and if a conversation is
	// open it must belong to that pair.
	if msg.SenderID != c.selfID && msg.ReceiverID != c.selfID {
		return
	}
	if c.peerID != "" {
		if msg.SenderID != c.peerID && msg.ReceiverID != c.peerID {
			return
		}
	}

	// An echo can beat the HTTP response: claim the matching optimistic
	// entry in place instead of appending a duplicate.
	for i := range c.entries {
		if c.entries[i].Pending && c.entries[i].Message.SenderID == msg.SenderID && c.entries[i].Message.Body == msg.Body {
			c.entries[i] = Entry{Message: *msg}
			return
		}
	}

	// Duplicate delivery guard: the same server id arrives via both the
	// HTTP response and the live push.
	if c.indexByID(msg.ID) >= 0 {
		return
	}

	c.entries = append(c.entries, Entry{Message: *msg})
}

// indexByID is a linear scan; visible lists are small. Callers hold c.mu.
func (c *Conversation) indexByID(id string) int {
	for i := range c.entries {
		if !c.entries[i].Pending && c.entries[i].Message.ID == id {
			return i
		}
	}
	return -1
}

// Messages returns a snapshot of the visible list.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Message, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Message
	}
	return out
}

// UnreadCounts returns the latest per-sender unread map pushed by the server.
func (c *Conversation) UnreadCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int, len(c.unread))
	for k, v := range c.unread {
		out[k] = v
	}
	return out
}

func (c *Conversation) IsOnline(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online[userID]
}

func (c *Conversation) PeerTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerTyping
}
