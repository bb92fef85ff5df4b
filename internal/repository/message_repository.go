package repository

import (
	"context"
	"database/sql"
	"fmt"

	"lyink/relay-service/internal/models"
)

var (
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrMessageNotFound      = fmt.Errorf("message not found")
)

type MessageRepository interface {
	FindConversationByParticipants(ctx context.Context, userA, userB string) (*models.Conversation, error)
	FindOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error

	CreateMessage(ctx context.Context, msg *models.Message) error
	FindMessageByID(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	ListUnreadMessages(ctx context.Context, conversationID, receiverID string) ([]*models.Message, error)
	UpdateMessageBody(ctx context.Context, id, body string) (*models.Message, error)
	MarkMessageRead(ctx context.Context, id string) error
	DeleteMessage(ctx context.Context, id string) error

	CountUnread(ctx context.Context, receiverID, senderID string) (int, error)
	AggregateUnreadBySender(ctx context.Context, receiverID string) (map[string]int, error)

	ListContacts(ctx context.Context, excludeUserID string) ([]*models.User, error)

	InitializeTables() error
}

type messageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

func (r *messageRepository) InitializeTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		full_name TEXT NOT NULL,
		username TEXT NOT NULL UNIQUE,
		avatar_url TEXT NOT NULL DEFAULT '',
		public_key TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_low UUID NOT NULL,
		user_high UUID NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		UNIQUE(user_low, user_high)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL,
		receiver_id UUID NOT NULL,
		body TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_messages_receiver_unread ON messages(receiver_id) WHERE NOT read;
	CREATE INDEX IF NOT EXISTS idx_conversations_user_low ON conversations(user_low);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_high ON conversations(user_high);
	`

	_, err := r.db.Exec(query)
	return err
}

func (r *messageRepository) FindConversationByParticipants(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	low, high := models.CanonicalPair(userA, userB)

	query := `
	SELECT id, user_low, user_high, created_at, updated_at
	FROM conversations
	WHERE user_low = $1 AND user_high = $2
	`

	var conv models.Conversation
	err := r.db.QueryRowContext(ctx, query, low, high).Scan(
		&conv.ID, &conv.UserLow, &conv.UserHigh, &conv.CreatedAt, &conv.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	return &conv, nil
}

// FindOrCreateConversation resolves the conversation for an unordered pair,
// creating it on first contact. The canonical pair ordering plus the unique
// constraint guarantees concurrent first sends from both sides converge on a
// single row: the loser of the insert race re-reads the winner's row.
func (r *messageRepository) FindOrCreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	low, high := models.CanonicalPair(userA, userB)

	query := `
	INSERT INTO conversations (user_low, user_high)
	VALUES ($1, $2)
	ON CONFLICT (user_low, user_high) DO NOTHING
	RETURNING id, user_low, user_high, created_at, updated_at
	`

	var conv models.Conversation
	err := r.db.QueryRowContext(ctx, query, low, high).Scan(
		&conv.ID, &conv.UserLow, &conv.UserHigh, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err == nil {
		return &conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// Row already existed; DO NOTHING returns nothing.
	return r.FindConversationByParticipants(ctx, userA, userB)
}

func (r *messageRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	// Messages go with it via ON DELETE CASCADE.
	query := `DELETE FROM conversations WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, conversationID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrConversationNotFound
	}

	return nil
}

func (r *messageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
	INSERT INTO messages (id, conversation_id, sender_id, receiver_id, body, read)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Body, msg.Read,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return err
	}

	updateConvQuery := `UPDATE conversations SET updated_at = NOW() WHERE id = $1`
	r.db.ExecContext(ctx, updateConvQuery, msg.ConversationID)

	return nil
}

func (r *messageRepository) FindMessageByID(ctx context.Context, id string) (*models.Message, error) {
	query := `
	SELECT id, conversation_id, sender_id, receiver_id, body, read, created_at, updated_at
	FROM messages
	WHERE id = $1
	`

	var msg models.Message
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID,
		&msg.Body, &msg.Read, &msg.CreatedAt, &msg.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	return &msg, nil
}

func (r *messageRepository) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	query := `
	SELECT id, conversation_id, sender_id, receiver_id, body, read, created_at, updated_at
	FROM messages
	WHERE conversation_id = $1
	ORDER BY created_at ASC, id ASC
	`

	return r.queryMessages(ctx, query, conversationID)
}

func (r *messageRepository) ListUnreadMessages(ctx context.Context, conversationID, receiverID string) ([]*models.Message, error) {
	query := `
	SELECT id, conversation_id, sender_id, receiver_id, body, read, created_at, updated_at
	FROM messages
	WHERE conversation_id = $1 AND receiver_id = $2 AND NOT read
	ORDER BY created_at ASC, id ASC
	`

	return r.queryMessages(ctx, query, conversationID, receiverID)
}

func (r *messageRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID,
			&msg.Body, &msg.Read, &msg.CreatedAt, &msg.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

func (r *messageRepository) UpdateMessageBody(ctx context.Context, id, body string) (*models.Message, error) {
	query := `
	UPDATE messages
	SET body = $2, updated_at = NOW()
	WHERE id = $1
	RETURNING id, conversation_id, sender_id, receiver_id, body, read, created_at, updated_at
	`

	var msg models.Message
	err := r.db.QueryRowContext(ctx, query, id, body).Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.ReceiverID,
		&msg.Body, &msg.Read, &msg.CreatedAt, &msg.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	return &msg, nil
}

// MarkMessageRead is monotonic: it only ever flips read to true. Marking an
// already-read message is a no-op, not an error.
func (r *messageRepository) MarkMessageRead(ctx context.Context, id string) error {
	query := `
	UPDATE messages
	SET read = TRUE, updated_at = NOW()
	WHERE id = $1 AND NOT read
	`

	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *messageRepository) DeleteMessage(ctx context.Context, id string) error {
	query := `DELETE FROM messages WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrMessageNotFound
	}

	return nil
}

func (r *messageRepository) CountUnread(ctx context.Context, receiverID, senderID string) (int, error) {
	query := `
	SELECT COUNT(*)
	FROM messages
	WHERE receiver_id = $1 AND sender_id = $2 AND NOT read
	`

	var count int
	err := r.db.QueryRowContext(ctx, query, receiverID, senderID).Scan(&count)
	return count, err
}

func (r *messageRepository) AggregateUnreadBySender(ctx context.Context, receiverID string) (map[string]int, error) {
	query := `
	SELECT sender_id, COUNT(*)
	FROM messages
	WHERE receiver_id = $1 AND NOT read
	GROUP BY sender_id
	`

	rows, err := r.db.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var senderID string
		var count int
		if err := rows.Scan(&senderID, &count); err != nil {
			return nil, err
		}
		counts[senderID] = count
	}

	return counts, rows.Err()
}

func (r *messageRepository) ListContacts(ctx context.Context, excludeUserID string) ([]*models.User, error) {
	query := `
	SELECT id, full_name, username, avatar_url, public_key, created_at, updated_at
	FROM users
	WHERE id != $1
	ORDER BY full_name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, excludeUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var user models.User
		err := rows.Scan(
			&user.ID, &user.FullName, &user.Username, &user.AvatarURL,
			&user.PublicKey, &user.CreatedAt, &user.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}
