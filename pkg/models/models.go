package models

import (
	"strings"
	"time"
)

// Channel identifies the messaging surface a user is on.
type Channel string

const (
	ChannelWeb       Channel = "web"
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelEmail     Channel = "email"
	ChannelMessenger Channel = "messenger"
	ChannelInstagram Channel = "instagram"
)

// AllChannels lists the supported channels in catalog order.
var AllChannels = []Channel{ChannelWeb, ChannelWhatsApp, ChannelEmail, ChannelMessenger, ChannelInstagram}

// ParseChannel returns the channel for a raw token, or false if unknown.
func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllChannels {
		if c == known {
			return c, true
		}
	}
	return "", false
}

func (c Channel) String() string { return string(c) }

// Stage is the funnel position of a conversation. It is a flat label: the
// model proposes the next stage and the orchestrator trusts it, so there is
// no transition table here.
type Stage string

const (
	StageGreeting      Stage = "greeting"
	StageQualification Stage = "qualification"
	StagePresentation  Stage = "presentation"
	StageObjection     Stage = "objection"
	StagePayment       Stage = "payment"
	StageCompleted     Stage = "completed"
)

// AllStages lists the funnel stages in intended forward order.
var AllStages = []Stage{StageGreeting, StageQualification, StagePresentation, StageObjection, StagePayment, StageCompleted}

// ParseStage returns the stage for a raw token, or false if unknown.
func ParseStage(s string) (Stage, bool) {
	st := Stage(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllStages {
		if st == known {
			return st, true
		}
	}
	return "", false
}

func (s Stage) String() string { return string(s) }

// Terminal reports whether the conversation is finished. A terminal
// conversation is never resumed; the next inbound event starts a new one.
func (s Stage) Terminal() bool { return s == StageCompleted }

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is one funnel run for a (user, channel) pair. A user has at
// most one non-terminal conversation per channel.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Channel   Channel   `json:"channel" db:"channel"`
	Stage     Stage     `json:"stage" db:"stage"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Message is a single turn in a conversation. Messages are append-only and
// ordered by creation time.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Role           string    `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	Channel        Channel   `json:"channel" db:"channel"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// InboundEvent is the canonical form of one user message, whatever channel
// it arrived on.
type InboundEvent struct {
	UserID   string            `json:"userId"`
	Channel  Channel           `json:"channel"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundReply is what the orchestrator hands back to channel adapters.
// From is "ia" to match the widget protocol inherited from the web client.
type OutboundReply struct {
	Text       string   `json:"text"`
	From       string   `json:"from_"`
	Stage      Stage    `json:"stage"`
	Timestamp  int64    `json:"timestamp"`
	PaymentURL string   `json:"payment_url,omitempty"`
	Actions    []string `json:"actions"`
}

// HistoryEntry is the transcript view returned to clients: role collapsed to
// the widget's user/ia tags, timestamp in epoch milliseconds.
type HistoryEntry struct {
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// PaymentKind distinguishes what the model asked for in payment_url. The
// wire value "GENERATE" is a loosely typed protocol with the model; it is
// lifted into this tagged form at the parser boundary and never propagated
// as a string.
type PaymentKind int

const (
	PaymentNone PaymentKind = iota
	PaymentGenerate
	PaymentURL
)

// PaymentDirective is the parsed payment_url field of a model response.
type PaymentDirective struct {
	Kind PaymentKind
	URL  string // set only for PaymentURL
}

// Directive is the validated result of one model call. It lives for a single
// turn: the stage policy and payment resolver consume it, then it is gone.
type Directive struct {
	Text    string
	Stage   Stage
	Payment PaymentDirective
	Actions []string
}

// PaymentLinkRequest is what the payment trigger resolver hands to the link
// generator. Amount is in minor currency units (FCFA).
type PaymentLinkRequest struct {
	Amount int
	Reason string
	UserID string
	Name   string
	Email  string
}
