package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulsai/pulsai/pkg/models"
)

// Sender pushes an assistant reply out over one channel.
type Sender interface {
	Send(ctx context.Context, userID, text string) error
}

// TwilioSender delivers WhatsApp messages through the Twilio REST API.
type TwilioSender struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	BaseURL    string
	httpClient *http.Client
}

// NewTwilioSender builds a sender for the given Twilio account. fromNumber
// is the sandbox or business number in "whatsapp:+.." form.
func NewTwilioSender(accountSID, authToken, fromNumber string) *TwilioSender {
	return &TwilioSender{
		AccountSID: accountSID,
		AuthToken:  authToken,
		FromNumber: fromNumber,
		BaseURL:    "https://api.twilio.com",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *TwilioSender) Send(ctx context.Context, userID, text string) error {
	to := userID
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}

	form := url.Values{}
	form.Set("From", s.FromNumber)
	form.Set("To", to)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.BaseURL, s.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}
	req.SetBasicAuth(s.AccountSID, s.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("twilio send: status %d: %s", resp.StatusCode, string(body))
	}

	log.Info().Str("to", to).Msg("whatsapp message sent")
	return nil
}

// MetaSender delivers Messenger and Instagram replies through the Graph API
// Send endpoint using a page access token.
type MetaSender struct {
	PageToken  string
	BaseURL    string
	httpClient *http.Client
}

// NewMetaSender builds a Graph API sender.
func NewMetaSender(pageToken string) *MetaSender {
	return &MetaSender{
		PageToken:  pageToken,
		BaseURL:    "https://graph.facebook.com/v19.0",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *MetaSender) Send(ctx context.Context, userID, text string) error {
	payload := map[string]any{
		"recipient": map[string]string{"id": userID},
		"message":   map[string]string{"text": text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("graph send: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", s.BaseURL, url.QueryEscape(s.PageToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("graph send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph send: status %d: %s", resp.StatusCode, string(respBody))
	}

	log.Info().Str("recipient", userID).Msg("graph message sent")
	return nil
}

// MailgunSender delivers email replies through the Mailgun messages API.
type MailgunSender struct {
	Domain      string
	APIKey      string
	FromAddress string
	BaseURL     string
	httpClient  *http.Client
}

// NewMailgunSender builds a sender for the given Mailgun domain. fromAddress
// is the mailbox replies are sent from, e.g. "assistant@mg.example.com".
func NewMailgunSender(domain, apiKey, fromAddress string) *MailgunSender {
	return &MailgunSender{
		Domain:      domain,
		APIKey:      apiKey,
		FromAddress: fromAddress,
		BaseURL:     "https://api.mailgun.net",
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *MailgunSender) Send(ctx context.Context, userID, text string) error {
	form := url.Values{}
	form.Set("from", s.FromAddress)
	form.Set("to", userID)
	form.Set("subject", "Re: votre conversation")
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/v3/%s/messages", s.BaseURL, s.Domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("mailgun request: %w", err)
	}
	req.SetBasicAuth("api", s.APIKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mailgun send: status %d: %s", resp.StatusCode, string(body))
	}

	log.Info().Str("to", userID).Msg("email reply sent")
	return nil
}

// Registry routes outbound replies to the sender for their channel.
// Channels without a registered sender (web chat reads replies off the HTTP
// response) are simply skipped.
type Registry struct {
	senders map[models.Channel]Sender
}

// NewRegistry builds an empty sender registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[models.Channel]Sender)}
}

// Register binds a sender to a channel.
func (r *Registry) Register(ch models.Channel, s Sender) {
	r.senders[ch] = s
}

// Lookup returns the sender for a channel, if any.
func (r *Registry) Lookup(ch models.Channel) (Sender, bool) {
	s, ok := r.senders[ch]
	return s, ok
}

// Len reports how many channels have a sender registered.
func (r *Registry) Len() int {
	return len(r.senders)
}
