package funnel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulsai/pulsai/internal/store"
	"github.com/pulsai/pulsai/pkg/models"
)

// Completer is the black-box model call: a system prompt plus ordered turns
// in, raw text out. Implementations wrap transport faults and timeouts in
// models.ErrModelUnavailable.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, turns []Turn) (string, error)
}

// apologyText is the degraded reply when the model cannot be reached. It is
// handled exactly like a parse-failure fallback: stage stays put and the
// turn is still recorded.
const apologyText = "Désolé, je rencontre un souci technique. Pouvez-vous réessayer dans un instant ?"

// Orchestrator runs the full pipeline for one inbound event: store,
// context window, model call, directive parsing, stage move, payment
// trigger, reply.
type Orchestrator struct {
	store      store.ConversationStore
	completer  Completer
	payments   LinkGenerator
	timeout    time.Duration
	parserOpts ParserOptions
	locks      *keyedMutex
}

// Options tunes orchestration.
type Options struct {
	// ModelTimeout bounds each model call. Zero means 30s.
	ModelTimeout time.Duration
	// RepairJSON enables the jsonrepair pass in directive parsing.
	RepairJSON bool
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(st store.ConversationStore, completer Completer, payments LinkGenerator, opts Options) *Orchestrator {
	timeout := opts.ModelTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Orchestrator{
		store:      st,
		completer:  completer,
		payments:   payments,
		timeout:    timeout,
		parserOpts: ParserOptions{Repair: opts.RepairJSON},
		locks:      newKeyedMutex(),
	}
}

// HandleEvent processes one canonical inbound event and returns the reply.
//
// All processing for a (user, channel) pair is serialized for the duration
// of the pass; distinct pairs proceed in parallel. A payment gateway fault
// returns both the reply composed so far (without the payment line) and a
// models.ErrPaymentGateway error, so the caller can deliver the text and
// still observe the fault. A persistence fault returns a nil reply: there is
// no safe partial state to present.
func (o *Orchestrator) HandleEvent(ctx context.Context, event models.InboundEvent) (*models.OutboundReply, error) {
	unlock := o.locks.Lock(lockKey(event.UserID, event.Channel))
	defer unlock()

	conv, err := o.loadOrCreate(ctx, event.UserID, event.Channel)
	if err != nil {
		return nil, err
	}

	// Prior turns, fetched before the inbound message is written so the
	// window builder can append the new turn itself.
	history, err := o.store.History(ctx, event.UserID, event.Channel, maxHistoryTurns)
	if err != nil {
		return nil, err
	}

	if _, err := o.store.AppendMessage(ctx, conv.ID, models.RoleUser, event.Text, event.Channel); err != nil {
		return nil, err
	}

	directive := o.converse(ctx, conv, event, history)

	var paymentURL string
	var paymentErr error
	switch directive.Payment.Kind {
	case models.PaymentGenerate:
		paymentURL, paymentErr = ExecutePaymentTrigger(ctx, o.payments, directive, event.UserID)
		if paymentErr == nil {
			directive.Text += paymentLine(paymentURL)
		} else {
			log.Error().Err(paymentErr).
				Str("user_id", event.UserID).
				Str("channel", event.Channel.String()).
				Msg("payment link generation failed; replying without payment line")
			if !errors.Is(paymentErr, models.ErrPaymentGateway) {
				paymentErr = fmt.Errorf("%w: %w", models.ErrPaymentGateway, paymentErr)
			}
		}
	case models.PaymentURL:
		// The model resolved a URL on its own; pass it through.
		paymentURL = directive.Payment.URL
	}

	if _, err := o.store.AppendMessage(ctx, conv.ID, models.RoleAssistant, directive.Text, event.Channel); err != nil {
		return nil, err
	}
	if err := o.store.SetStage(ctx, conv.ID, directive.Stage); err != nil {
		return nil, err
	}

	reply := &models.OutboundReply{
		Text:       directive.Text,
		From:       "ia",
		Stage:      directive.Stage,
		Timestamp:  time.Now().UnixMilli(),
		PaymentURL: paymentURL,
		Actions:    directive.Actions,
	}
	return reply, paymentErr
}

// converse runs the model call and resolves its output into a directive.
// It cannot fail: an unreachable model degrades to the apology fallback with
// the stage unchanged, the same shape a parse failure takes.
func (o *Orchestrator) converse(ctx context.Context, conv *models.Conversation, event models.InboundEvent, history []models.Message) models.Directive {
	system := BuildSystemPrompt(event.Channel, conv.Stage, event.UserID)
	turns := BuildWindow(history, event.Text)

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	raw, err := o.completer.Complete(callCtx, system, turns)
	if err != nil {
		log.Warn().Err(err).
			Str("user_id", event.UserID).
			Str("channel", event.Channel.String()).
			Str("stage", conv.Stage.String()).
			Msg("model call failed; degrading to apology reply")
		return models.Directive{
			Text:    apologyText,
			Stage:   conv.Stage,
			Payment: models.PaymentDirective{Kind: models.PaymentNone},
			Actions: []string{},
		}
	}

	return ParseDirective(raw, conv.Stage, o.parserOpts)
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, userID string, channel models.Channel) (*models.Conversation, error) {
	conv, err := o.store.FindActive(ctx, userID, channel)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}
	return o.store.Create(ctx, userID, channel)
}

func lockKey(userID string, channel models.Channel) string {
	return userID + ":" + channel.String()
}
