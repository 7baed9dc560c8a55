package funnel

import (
	"strings"
	"testing"

	"github.com/pulsai/pulsai/pkg/models"
)

func TestBuildSystemPrompt_IncludesChannelStageAndUser(t *testing.T) {
	p := BuildSystemPrompt(models.ChannelWhatsApp, models.StageQualification, "u-42")

	for _, want := range []string{"WHATSAPP", "qualification", "u-42", "GENERATE"} {
		if !strings.Contains(p, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestBuildSystemPrompt_UnknownChannelUsesWebTone(t *testing.T) {
	p := BuildSystemPrompt(models.Channel("pigeon"), models.StageGreeting, "u-1")

	if !strings.Contains(p, channelTone[models.ChannelWeb]) {
		t.Error("unknown channel should fall back to the web tone")
	}
}

func TestBuildWindow_AppendsNewUserTurn(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "salut"},
		{Role: models.RoleAssistant, Content: "bonjour"},
	}

	turns := BuildWindow(history, "je veux un abonnement")

	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	last := turns[len(turns)-1]
	if last.Role != models.RoleUser || last.Content != "je veux un abonnement" {
		t.Errorf("last turn must be the new user message, got %+v", last)
	}
}

func TestBuildWindow_TruncatesToRecentTurns(t *testing.T) {
	history := make([]models.Message, 25)
	for i := range history {
		history[i] = models.Message{Role: models.RoleUser, Content: string(rune('a' + i))}
	}

	turns := BuildWindow(history, "nouveau")

	if len(turns) != maxHistoryTurns+1 {
		t.Fatalf("expected %d turns, got %d", maxHistoryTurns+1, len(turns))
	}
	// Truncation keeps the tail: the first remaining turn is history[15].
	if turns[0].Content != history[len(history)-maxHistoryTurns].Content {
		t.Errorf("truncation must keep the most recent turns, got first=%q", turns[0].Content)
	}
}

func TestBuildWindow_EmptyHistory(t *testing.T) {
	turns := BuildWindow(nil, "premier message")

	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Content != "premier message" {
		t.Errorf("unexpected turn content %q", turns[0].Content)
	}
}
