// Package dispatch delivers assistant replies to external channel APIs
// through a persistent job queue. Sends are at-least-once: a failed delivery
// is retried by the queue with backoff instead of being lost with the
// request that produced it.
package dispatch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/pulsai/pulsai/internal/channels"
	"github.com/pulsai/pulsai/pkg/models"
)

// SendJobArgs is one outbound reply to deliver.
type SendJobArgs struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// Kind returns the job kind for River.
func (SendJobArgs) Kind() string { return "outbound_send" }

// SendWorker delivers queued replies, throttled per channel so a burst of
// conversations cannot trip provider rate limits.
type SendWorker struct {
	river.WorkerDefaults[SendJobArgs]
	registry *channels.Registry
	limiters map[models.Channel]*rate.Limiter
}

func (w *SendWorker) Work(ctx context.Context, job *river.Job[SendJobArgs]) error {
	channel, ok := models.ParseChannel(job.Args.Channel)
	if !ok {
		// A bad channel never becomes deliverable; cancel instead of retrying.
		return river.JobCancel(fmt.Errorf("unknown channel %q", job.Args.Channel))
	}

	sender, ok := w.registry.Lookup(channel)
	if !ok {
		return river.JobCancel(fmt.Errorf("no sender registered for channel %s", channel))
	}

	if limiter, ok := w.limiters[channel]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if err := sender.Send(ctx, job.Args.UserID, job.Args.Text); err != nil {
		return fmt.Errorf("deliver to %s: %w", channel, err)
	}

	log.Debug().
		Str("user_id", job.Args.UserID).
		Str("channel", channel.String()).
		Int("attempt", job.Attempt).
		Msg("outbound reply delivered")
	return nil
}

// Dispatcher owns the River client and its workers.
type Dispatcher struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
}

// Options tunes the queue.
type Options struct {
	// MaxWorkers bounds concurrent deliveries. Zero means 10.
	MaxWorkers int
}

// NewDispatcher builds the queue on the given pool and sender registry.
func NewDispatcher(pool *pgxpool.Pool, registry *channels.Registry, opts Options) (*Dispatcher, error) {
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &SendWorker{
		registry: registry,
		limiters: defaultLimiters(),
	})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create queue client: %w", err)
	}

	return &Dispatcher{client: client, pool: pool}, nil
}

// defaultLimiters returns conservative per-channel send rates. Web chat has
// no limiter because web replies ride the HTTP response, not the queue.
func defaultLimiters() map[models.Channel]*rate.Limiter {
	return map[models.Channel]*rate.Limiter{
		models.ChannelWhatsApp:  rate.NewLimiter(rate.Limit(1), 3),
		models.ChannelMessenger: rate.NewLimiter(rate.Limit(2), 5),
		models.ChannelInstagram: rate.NewLimiter(rate.Limit(2), 5),
		models.ChannelEmail:     rate.NewLimiter(rate.Limit(0.5), 2),
	}
}

// Start launches the queue workers.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.client.Start(ctx)
}

// Stop drains in-flight jobs and stops the workers.
func (d *Dispatcher) Stop(ctx context.Context) error {
	return d.client.Stop(ctx)
}

// Enqueue schedules one reply for delivery.
func (d *Dispatcher) Enqueue(ctx context.Context, userID string, channel models.Channel, text string) error {
	_, err := d.client.Insert(ctx, SendJobArgs{
		UserID:  userID,
		Channel: channel.String(),
		Text:    text,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue outbound send: %w", err)
	}
	return nil
}
