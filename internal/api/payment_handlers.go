package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/pulsai/pulsai/internal/payment"
	"github.com/pulsai/pulsai/pkg/models"
)

type paymentCreateRequest struct {
	UserID string `json:"userId" validate:"required"`
	Amount int    `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

type paymentVerifyRequest struct {
	TransactionID string `json:"transactionId" validate:"required"`
}

// createPayment builds a hosted payment link on demand, for the frontend or
// an operator closing a sale by hand.
func (s *Server) createPayment(c echo.Context) error {
	var req paymentCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	url, err := s.payments.GenerateLink(c.Request().Context(), models.PaymentLinkRequest{
		Amount: req.Amount,
		Reason: req.Reason,
		UserID: req.UserID,
		Name:   req.Name,
		Email:  req.Email,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"payment_url": url,
		"amount":      req.Amount,
		"reason":      req.Reason,
		"currency":    "FCFA",
	})
}

func (s *Server) verifyPayment(c echo.Context) error {
	var req paymentVerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	status, err := s.payments.VerifyTransaction(c.Request().Context(), req.TransactionID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":        status.Succeeded(),
		"status":         status.Status,
		"amount":         status.Amount,
		"transaction_id": req.TransactionID,
	})
}

// paymentWebhookPayload is the gateway's confirmation callback body. The
// data field carries back the user id passed at link creation.
type paymentWebhookPayload struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	Amount        int    `json:"amount"`
	Data          string `json:"data"`
}

// paymentWebhook handles the gateway's server-to-server confirmations. The
// body is HMAC-signed; a bad signature is rejected, unlike channel webhooks.
func (s *Server) paymentWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	signature := c.Request().Header.Get("x-kkiapay-signature")
	if !s.payments.VerifyWebhookSignature(body, signature) {
		return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
	}

	var payload paymentWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	evt := log.Info().
		Str("transaction_id", payload.TransactionID).
		Str("status", payload.Status).
		Int("amount", payload.Amount).
		Str("user_id", payload.Data)
	if payload.Status == "SUCCESS" {
		evt.Msg("payment confirmed")
	} else {
		evt.Msg("payment notification received")
	}

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) listPlans(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"plans": payment.Plans(),
	})
}
