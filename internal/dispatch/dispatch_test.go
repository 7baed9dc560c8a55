package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsai/pulsai/internal/channels"
	"github.com/pulsai/pulsai/pkg/models"
)

type recordingSender struct {
	userID string
	text   string
	err    error
}

func (r *recordingSender) Send(_ context.Context, userID, text string) error {
	r.userID = userID
	r.text = text
	return r.err
}

func newJob(args SendJobArgs) *river.Job[SendJobArgs] {
	return &river.Job[SendJobArgs]{
		JobRow: &rivertype.JobRow{Attempt: 1},
		Args:   args,
	}
}

func TestSendWorker_Delivers(t *testing.T) {
	sender := &recordingSender{}
	registry := channels.NewRegistry()
	registry.Register(models.ChannelWhatsApp, sender)

	worker := &SendWorker{registry: registry, limiters: defaultLimiters()}

	err := worker.Work(context.Background(), newJob(SendJobArgs{
		UserID:  "+22959085540",
		Channel: "whatsapp",
		Text:    "Bonjour !",
	}))
	require.NoError(t, err)
	assert.Equal(t, "+22959085540", sender.userID)
	assert.Equal(t, "Bonjour !", sender.text)
}

func TestSendWorker_SendFaultIsRetryable(t *testing.T) {
	sender := &recordingSender{err: errors.New("rate limited")}
	registry := channels.NewRegistry()
	registry.Register(models.ChannelWhatsApp, sender)

	worker := &SendWorker{registry: registry, limiters: defaultLimiters()}

	err := worker.Work(context.Background(), newJob(SendJobArgs{
		UserID: "x", Channel: "whatsapp", Text: "y",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deliver to whatsapp", "transient faults must stay retryable")
}

func TestSendWorker_UnknownChannelCancels(t *testing.T) {
	worker := &SendWorker{registry: channels.NewRegistry(), limiters: defaultLimiters()}

	err := worker.Work(context.Background(), newJob(SendJobArgs{
		UserID: "x", Channel: "telegram", Text: "y",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")
}

func TestSendWorker_MissingSenderCancels(t *testing.T) {
	worker := &SendWorker{registry: channels.NewRegistry(), limiters: defaultLimiters()}

	err := worker.Work(context.Background(), newJob(SendJobArgs{
		UserID: "x", Channel: "whatsapp", Text: "y",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sender registered")
}
