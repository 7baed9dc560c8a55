package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/pulsai/pulsai/internal/funnel"
	"github.com/pulsai/pulsai/pkg/models"
)

// Complete sends the system prompt and the conversation turns to the model
// and returns the raw completion text. Any transport or provider fault is
// reported as models.ErrModelUnavailable so the orchestrator can degrade.
func (c *Connector) Complete(ctx context.Context, systemPrompt string, turns []funnel.Turn) (string, error) {
	content := make([]llms.MessageContent, 0, len(turns)+1)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	for _, t := range turns {
		content = append(content, llms.TextParts(chatRole(t.Role), t.Content))
	}

	resp, err := c.llm.GenerateContent(ctx, content, c.callOptions()...)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrModelUnavailable, c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", models.ErrModelUnavailable, c.provider)
	}
	return resp.Choices[0].Content, nil
}

func chatRole(role string) llms.ChatMessageType {
	if role == models.RoleAssistant {
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}
