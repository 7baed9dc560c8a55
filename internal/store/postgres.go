package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsai/pulsai/pkg/models"
)

// PostgresStore implements ConversationStore on database/sql.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) FindActive(ctx context.Context, userID string, channel models.Channel) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, user_id, channel, stage, created_at, updated_at
        FROM conversations
        WHERE user_id=$1 AND channel=$2 AND stage<>$3
        ORDER BY updated_at DESC
        LIMIT 1
    `, userID, string(channel), string(models.StageCompleted))

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find active conversation", err)
	}
	return conv, nil
}

func (s *PostgresStore) Create(ctx context.Context, userID string, channel models.Channel) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:      uuid.NewString(),
		UserID:  userID,
		Channel: channel,
		Stage:   models.StageGreeting,
	}
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO conversations (id, user_id, channel, stage)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at, updated_at
    `, conv.ID, conv.UserID, string(conv.Channel), string(conv.Stage)).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, storeErr("create conversation", err)
	}
	return conv, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID, role, content string, channel models.Channel) (*models.Message, error) {
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Channel:        channel,
	}
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO messages (id, conversation_id, role, content, channel)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at
    `, msg.ID, msg.ConversationID, msg.Role, msg.Content, string(msg.Channel)).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, storeErr("append message", err)
	}

	if _, err := s.db.ExecContext(ctx, `
        UPDATE conversations SET updated_at=now() WHERE id=$1
    `, conversationID); err != nil {
		return nil, storeErr("touch conversation", err)
	}
	return msg, nil
}

func (s *PostgresStore) SetStage(ctx context.Context, conversationID string, stage models.Stage) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE conversations SET stage=$1, updated_at=now() WHERE id=$2
    `, string(stage), conversationID)
	if err != nil {
		return storeErr("set stage", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storeErr("set stage", fmt.Errorf("conversation %s not found", conversationID))
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, userID string, channel models.Channel, limit int) ([]models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id FROM conversations
        WHERE user_id=$1 AND channel=$2
        ORDER BY updated_at DESC
        LIMIT 1
    `, userID, string(channel))

	var convID string
	if err := row.Scan(&convID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Message{}, nil
		}
		return nil, storeErr("find conversation for history", err)
	}

	// Newest `limit` rows, then reversed so callers get ascending order.
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, conversation_id, role, content, channel, created_at
        FROM messages
        WHERE conversation_id=$1
        ORDER BY created_at DESC
        LIMIT $2
    `, convID, positiveLimit(limit))
	if err != nil {
		return nil, storeErr("list history", err)
	}
	defer rows.Close()

	out := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		var ch string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &ch, &m.CreatedAt); err != nil {
			return nil, storeErr("scan history row", err)
		}
		m.Channel = models.Channel(ch)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate history", err)
	}

	reverse(out)
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	var channel, stage string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&c.ID, &c.UserID, &channel, &stage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Channel = models.Channel(channel)
	c.Stage = models.Stage(stage)
	c.CreatedAt = createdAt
	c.UpdatedAt = updatedAt
	return &c, nil
}

func positiveLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrPersistence, err)
}
