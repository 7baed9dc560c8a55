// Package store persists conversations and their message transcripts.
//
// A (user, channel) pair owns at most one active conversation: completed
// conversations are invisible to FindActive, so the next inbound message
// after a purchase starts a fresh funnel run at the greeting stage.
package store

import (
	"context"

	"github.com/pulsai/pulsai/pkg/models"
)

// ConversationStore is the persistence contract the orchestrator depends on.
// Every method wraps storage faults in models.ErrPersistence.
type ConversationStore interface {
	// FindActive returns the newest non-terminal conversation for the pair,
	// or (nil, nil) when there is none.
	FindActive(ctx context.Context, userID string, channel models.Channel) (*models.Conversation, error)

	// Create starts a conversation at the greeting stage.
	Create(ctx context.Context, userID string, channel models.Channel) (*models.Conversation, error)

	// AppendMessage adds a turn to the transcript and bumps the
	// conversation's updated_at. Messages are never mutated or deleted.
	AppendMessage(ctx context.Context, conversationID, role, content string, channel models.Channel) (*models.Message, error)

	// SetStage moves the conversation to the given stage.
	SetStage(ctx context.Context, conversationID string, stage models.Stage) error

	// History returns the newest conversation's messages for the pair in
	// ascending chronological order, truncated to the most recent limit
	// entries. Unlike FindActive it also sees completed conversations, so a
	// returning buyer can still read their transcript.
	History(ctx context.Context, userID string, channel models.Channel, limit int) ([]models.Message, error)
}
