// Package payment integrates the KKiaPay gateway: widget payment links,
// transaction verification, and webhook signature checks.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pulsai/pulsai/pkg/models"
)

const (
	widgetBaseURL  = "https://widget.kkiapay.me"
	apiBaseURL     = "https://api.kkiapay.me"
	sandboxBaseURL = "https://api-sandbox.kkiapay.me"
)

// Config holds the KKiaPay credentials. BaseURL overrides the API host and
// is normally left empty so sandbox/live selection applies.
type Config struct {
	PublicKey  string
	PrivateKey string
	SecretKey  string
	Sandbox    bool
	BaseURL    string
}

// Client talks to KKiaPay.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a KKiaPay client.
func NewClient(config Config) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// GenerateLink builds a hosted widget payment URL for the request. The
// amount rides in FCFA minor units and the user id is passed through the
// widget's data field so the webhook can correlate the payer.
func (c *Client) GenerateLink(ctx context.Context, req models.PaymentLinkRequest) (string, error) {
	if req.Amount <= 0 {
		return "", fmt.Errorf("%w: non-positive amount %d", models.ErrPaymentGateway, req.Amount)
	}

	params := url.Values{}
	params.Set("amount", fmt.Sprintf("%d", req.Amount))
	params.Set("reason", req.Reason)
	params.Set("key", c.config.PublicKey)
	params.Set("data", req.UserID)
	params.Set("name", req.Name)
	params.Set("email", req.Email)
	params.Set("theme", "#0055FF")
	if c.config.Sandbox {
		params.Set("sandbox", "1")
	}

	link := widgetBaseURL + "?" + params.Encode()
	log.Info().
		Str("user_id", req.UserID).
		Int("amount", req.Amount).
		Bool("sandbox", c.config.Sandbox).
		Msg("payment link generated")
	return link, nil
}

// TransactionStatus is KKiaPay's verdict on one transaction.
type TransactionStatus struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Amount        int    `json:"amount"`
	Data          string `json:"data"` // userId passed at link creation
}

// Succeeded reports whether the gateway confirmed the payment.
func (t TransactionStatus) Succeeded() bool { return t.Status == "SUCCESS" }

// VerifyTransaction asks KKiaPay for the status of a transaction.
func (c *Client) VerifyTransaction(ctx context.Context, transactionID string) (*TransactionStatus, error) {
	payload, err := json.Marshal(map[string]string{"transactionId": transactionID})
	if err != nil {
		return nil, fmt.Errorf("marshal verify payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/transactions/status", c.baseURL())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("x-private-key", c.config.PrivateKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: verify transaction: %w", models.ErrPaymentGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: kkiapay API error (status %d): %s", models.ErrPaymentGateway, resp.StatusCode, string(body))
	}

	var status TransactionStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}
	if status.TransactionID == "" {
		status.TransactionID = transactionID
	}
	return &status, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature KKiaPay sends with
// every webhook delivery.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.config.SecretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Client) baseURL() string {
	if c.config.BaseURL != "" {
		return c.config.BaseURL
	}
	if c.config.Sandbox {
		return sandboxBaseURL
	}
	return apiBaseURL
}
