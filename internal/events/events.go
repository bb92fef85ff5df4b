package events

import (
	"encoding/json"
	"fmt"

	"lyink/relay-service/internal/models"
)

// Event names form a closed set; anything else is rejected at the transport
// boundary before it reaches a handler.
const (
	// Server to client.
	NewMessage     = "newMessage"
	MessageUpdated = "messageUpdated"
	MessageRead    = "messageRead"
	UnreadCounts   = "unreadCounts"
	Typing         = "typing"
	StopTyping     = "stopTyping"
	OnlineUsers    = "getOnlineUsers"
	Error          = "error"

	// Client to server.
	Join              = "join"
	SendMessage       = "sendMessage"
	MarkMessageAsRead = "markMessageAsRead"
)

// Envelope is the wire frame exchanged on the live channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Payload shapes, one fixed struct per event kind.

type JoinPayload struct {
	UserID string `json:"userId"`
}

type SendMessagePayload struct {
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	// SenderID is optional; the connection's bound user is the fallback.
	SenderID string `json:"senderId,omitempty"`
}

type MarkReadPayload struct {
	MessageID string `json:"messageId"`
}

type TypingPayload struct {
	SenderID   string `json:"senderId,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
}

type MessageReadPayload struct {
	MessageID string `json:"messageId"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// Inbound is a decoded client frame. Exactly one payload field is set,
// matching Event.
type Inbound struct {
	Event    string
	Join     *JoinPayload
	Send     *SendMessagePayload
	MarkRead *MarkReadPayload
	Typing   *TypingPayload
}

// Decode parses and validates a client frame. Unknown event names and
// malformed payloads fail here so handlers only ever see well-formed input.
func Decode(raw []byte) (*Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	in := &Inbound{Event: env.Event}
	switch env.Event {
	case Join:
		var p JoinPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		in.Join = &p
	case SendMessage:
		var p SendMessagePayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ReceiverID == "" {
			return nil, fmt.Errorf("sendMessage: missing receiverId")
		}
		in.Send = &p
	case MarkMessageAsRead:
		var p MarkReadPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.MessageID == "" {
			return nil, fmt.Errorf("markMessageAsRead: missing messageId")
		}
		in.MarkRead = &p
	case Typing, StopTyping:
		var p TypingPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ReceiverID == "" {
			return nil, fmt.Errorf("%s: missing receiverId", env.Event)
		}
		in.Typing = &p
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}

	return in, nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

func envelope(event string, v any) Envelope {
	data, err := json.Marshal(v)
	if err != nil {
		// All payload types marshal cleanly; this indicates a programming error.
		panic(fmt.Sprintf("events: marshal %s payload: %v", event, err))
	}
	return Envelope{Event: event, Data: data}
}

// Outbound constructors. Using these keeps every server push inside the
// closed event set.

func NewMessageEvent(msg *models.Message) Envelope {
	return envelope(NewMessage, msg)
}

func MessageUpdatedEvent(msg *models.Message) Envelope {
	return envelope(MessageUpdated, msg)
}

func MessageReadEvent(messageID string) Envelope {
	return envelope(MessageRead, MessageReadPayload{MessageID: messageID})
}

func UnreadCountsEvent(counts map[string]int) Envelope {
	return envelope(UnreadCounts, counts)
}

func TypingEvent(senderID string) Envelope {
	return envelope(Typing, TypingPayload{SenderID: senderID})
}

func StopTypingEvent(senderID string) Envelope {
	return envelope(StopTyping, TypingPayload{SenderID: senderID})
}

func OnlineUsersEvent(userIDs []string) Envelope {
	return envelope(OnlineUsers, userIDs)
}

func ErrorEvent(message string) Envelope {
	return envelope(Error, ErrorPayload{Error: message})
}
