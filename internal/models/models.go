package models

import (
	"time"
)

// User is read-only to the relay: rows are created by the signup service.
type User struct {
	ID        string    `json:"id"`
	FullName  string    `json:"fullName"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	PublicKey string    `json:"publicKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Conversation is the thread between exactly two users. The participant
// pair is stored canonically ordered (UserLow < UserHigh) so the store can
// enforce at most one conversation per unordered pair.
type Conversation struct {
	ID        string    `json:"id"`
	UserLow   string    `json:"-"`
	UserHigh  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Participants returns the pair in storage order.
func (c *Conversation) Participants() (string, string) {
	return c.UserLow, c.UserHigh
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.UserLow == userID || c.UserHigh == userID
}

// Message body is opaque to the relay; it may be ciphertext. Read transitions
// false to true exactly once and never reverts.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Body           string    `json:"message"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// CanonicalPair orders two user ids for conversation lookup and storage.
func CanonicalPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}
