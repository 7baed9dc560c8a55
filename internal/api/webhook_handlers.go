package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/pulsai/pulsai/internal/channels"
	"github.com/pulsai/pulsai/pkg/models"
)

// Webhook delivery is decoupled from processing: Meta and Twilio retry on
// non-2xx, and a poison payload retried forever helps nobody, so the POST
// handlers always ack and log processing faults instead of surfacing them.

func (s *Server) verifyWhatsAppWebhook(c echo.Context) error {
	return s.verifyMetaSubscription(c, s.channelsCfg.WhatsAppVerifyToken)
}

func (s *Server) verifyMessengerWebhook(c echo.Context) error {
	return s.verifyMetaSubscription(c, s.channelsCfg.MessengerVerifyToken)
}

// verifyMetaSubscription answers Meta's hub.challenge handshake.
func (s *Server) verifyMetaSubscription(c echo.Context, expectedToken string) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && token == expectedToken {
		return c.String(http.StatusOK, challenge)
	}
	return echo.NewHTTPError(http.StatusForbidden, "invalid verify token")
}

func (s *Server) whatsappWebhook(c echo.Context) error {
	var payload channels.MetaWebhook
	if err := c.Bind(&payload); err != nil {
		log.Warn().Err(err).Msg("undecodable whatsapp webhook payload")
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}

	for _, event := range channels.NormalizeWhatsApp(payload) {
		s.processInbound(c.Request().Context(), event)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) messengerWebhook(c echo.Context) error {
	var payload channels.MetaWebhook
	if err := c.Bind(&payload); err != nil {
		log.Warn().Err(err).Msg("undecodable messenger webhook payload")
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}

	for _, event := range channels.NormalizeMessenger(payload) {
		s.processInbound(c.Request().Context(), event)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// twilioWebhook accepts Twilio's inbound WhatsApp form posts as an
// alternative to the Meta Business webhook.
func (s *Server) twilioWebhook(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		log.Warn().Err(err).Msg("undecodable twilio webhook form")
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}

	if event, ok := channels.NormalizeTwilioForm(form); ok {
		s.processInbound(c.Request().Context(), event)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) emailWebhook(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		log.Warn().Err(err).Msg("undecodable email webhook form")
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "received": false})
	}

	if event, ok := channels.NormalizeEmailForm(form); ok {
		s.processInbound(c.Request().Context(), event)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "received": true})
}

// processInbound runs one webhook-originated event through the pipeline and
// queues the reply for delivery on its channel.
func (s *Server) processInbound(ctx context.Context, event models.InboundEvent) {
	reply, err := s.orchestrator.HandleEvent(ctx, event)
	if err != nil && (reply == nil || !isPaymentFault(err)) {
		log.Error().Err(err).
			Str("user_id", event.UserID).
			Str("channel", event.Channel.String()).
			Msg("webhook event processing failed")
		return
	}
	if err != nil {
		log.Error().Err(err).
			Str("user_id", event.UserID).
			Str("channel", event.Channel.String()).
			Msg("reply queued without payment link")
	}

	if s.queue == nil {
		log.Warn().Str("channel", event.Channel.String()).Msg("no outbound queue configured, reply not delivered")
		return
	}
	if err := s.queue.Enqueue(ctx, event.UserID, event.Channel, reply.Text); err != nil {
		log.Error().Err(err).
			Str("user_id", event.UserID).
			Str("channel", event.Channel.String()).
			Msg("failed to queue outbound reply")
	}
}

func isPaymentFault(err error) bool {
	return errors.Is(err, models.ErrPaymentGateway)
}
