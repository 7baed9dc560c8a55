package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsai/pulsai/pkg/models"
)

// MemoryStore is an in-process ConversationStore with the same semantics as
// the Postgres one. It backs tests and keyless local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message // conversationID -> ordered turns
	seq           int64                       // breaks ties when clock resolution collapses timestamps
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

func (s *MemoryStore) FindActive(ctx context.Context, userID string, channel models.Channel) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv := s.newestLocked(userID, channel, false)
	if conv == nil {
		return nil, nil
	}
	copied := *conv
	return &copied, nil
}

func (s *MemoryStore) Create(ctx context.Context, userID string, channel models.Channel) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Channel:   channel,
		Stage:     models.StageGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	copied := *conv
	return &copied, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, conversationID, role, content string, channel models.Channel) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, storeErr("append message", fmt.Errorf("conversation %s not found", conversationID))
	}

	s.seq++
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Channel:        channel,
		CreatedAt:      time.Now().Add(time.Duration(s.seq) * time.Nanosecond),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	conv.UpdatedAt = msg.CreatedAt

	copied := msg
	return &copied, nil
}

func (s *MemoryStore) SetStage(ctx context.Context, conversationID string, stage models.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return storeErr("set stage", fmt.Errorf("conversation %s not found", conversationID))
	}
	conv.Stage = stage
	conv.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) History(ctx context.Context, userID string, channel models.Channel, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv := s.newestLocked(userID, channel, true)
	if conv == nil {
		return []models.Message{}, nil
	}

	msgs := s.messages[conv.ID]
	n := positiveLimit(limit)
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}

	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// newestLocked returns the most recently updated conversation for the pair.
// includeTerminal distinguishes History (true) from FindActive (false).
func (s *MemoryStore) newestLocked(userID string, channel models.Channel, includeTerminal bool) *models.Conversation {
	candidates := make([]*models.Conversation, 0, 2)
	for _, conv := range s.conversations {
		if conv.UserID != userID || conv.Channel != channel {
			continue
		}
		if !includeTerminal && conv.Stage.Terminal() {
			continue
		}
		candidates = append(candidates, conv)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].UpdatedAt.After(candidates[j].UpdatedAt)
	})
	return candidates[0]
}
