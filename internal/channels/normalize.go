package channels

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pulsai/pulsai/pkg/models"
)

// Meta webhook payload shapes. WhatsApp Business nests messages under
// entry[].changes[].value.messages[]; Messenger and Instagram use
// entry[].messaging[]. Only text messages are normalized; other types
// (media, reactions, delivery receipts) are skipped.

// MetaWebhook is the envelope Meta posts for WhatsApp, Messenger and
// Instagram events.
type MetaWebhook struct {
	Object string      `json:"object"`
	Entry  []MetaEntry `json:"entry"`
}

type MetaEntry struct {
	ID        string          `json:"id"`
	Changes   []MetaChange    `json:"changes"`
	Messaging []MetaMessaging `json:"messaging"`
}

type MetaChange struct {
	Field string    `json:"field"`
	Value MetaValue `json:"value"`
}

type MetaValue struct {
	MessagingProduct string        `json:"messaging_product"`
	Contacts         []MetaContact `json:"contacts"`
	Messages         []MetaMessage `json:"messages"`
}

type MetaContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type MetaMessage struct {
	From string `json:"from"`
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
}

type MetaMessaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message struct {
		MID  string `json:"mid"`
		Text string `json:"text"`
	} `json:"message"`
}

// NormalizeWhatsApp flattens a WhatsApp Business webhook into canonical
// events, one per inbound text message.
func NormalizeWhatsApp(payload MetaWebhook) []models.InboundEvent {
	var events []models.InboundEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				if contact.Profile.Name != "" {
					names[contact.WaID] = contact.Profile.Name
				}
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.From == "" || msg.Text.Body == "" {
					log.Debug().
						Str("message_id", msg.ID).
						Str("type", msg.Type).
						Msg("skipping non-text whatsapp message")
					continue
				}
				metadata := map[string]string{"message_id": msg.ID}
				if name := names[msg.From]; name != "" {
					metadata["profile_name"] = name
				}
				events = append(events, models.InboundEvent{
					UserID:   msg.From,
					Channel:  models.ChannelWhatsApp,
					Text:     msg.Text.Body,
					Metadata: metadata,
				})
			}
		}
	}
	return events
}

// NormalizeMessenger flattens a Messenger or Instagram webhook. The channel
// is decided by the envelope's object field: "page" means Messenger,
// anything else is Instagram.
func NormalizeMessenger(payload MetaWebhook) []models.InboundEvent {
	channel := models.ChannelInstagram
	if payload.Object == "page" {
		channel = models.ChannelMessenger
	}

	var events []models.InboundEvent
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			if m.Sender.ID == "" || m.Message.Text == "" {
				log.Debug().
					Str("message_id", m.Message.MID).
					Str("channel", channel.String()).
					Msg("skipping messaging event without text")
				continue
			}
			events = append(events, models.InboundEvent{
				UserID:  m.Sender.ID,
				Channel: channel,
				Text:    m.Message.Text,
				Metadata: map[string]string{
					"message_id": m.Message.MID,
				},
			})
		}
	}
	return events
}

// NormalizeTwilioForm turns a Twilio inbound form post (From, Body) into a
// canonical WhatsApp event. Twilio prefixes numbers with "whatsapp:", which
// is stripped so the user id is the bare phone number.
func NormalizeTwilioForm(form url.Values) (models.InboundEvent, bool) {
	from := strings.TrimPrefix(form.Get("From"), "whatsapp:")
	body := form.Get("Body")
	if from == "" || body == "" {
		return models.InboundEvent{}, false
	}
	return models.InboundEvent{
		UserID:  from,
		Channel: models.ChannelWhatsApp,
		Text:    body,
		Metadata: map[string]string{
			"message_sid": form.Get("MessageSid"),
		},
	}, true
}

// NormalizeEmailForm turns an inbound-parse form post (SendGrid or Mailgun
// shape) into a canonical email event. The sender address is the user id.
func NormalizeEmailForm(form url.Values) (models.InboundEvent, bool) {
	from := form.Get("from")
	body := form.Get("text")
	if body == "" {
		body = form.Get("body-plain")
	}
	if from == "" || body == "" {
		return models.InboundEvent{}, false
	}
	return models.InboundEvent{
		UserID:  from,
		Channel: models.ChannelEmail,
		Text:    body,
		Metadata: map[string]string{
			"subject":    form.Get("subject"),
			"message_id": form.Get("Message-Id"),
		},
	}, true
}
