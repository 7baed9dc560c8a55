package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/pulsai/pulsai/pkg/models"
)

// aiMessageRequest is the web chat request body. History and stage are
// accepted for compatibility with older widget builds but ignored: the
// server-side transcript and stage are authoritative.
type aiMessageRequest struct {
	UserID   string                `json:"userId" validate:"required"`
	Channel  string                `json:"channel" validate:"required"`
	Text     string                `json:"text" validate:"required"`
	Stage    string                `json:"stage"`
	History  []models.HistoryEntry `json:"history"`
	Metadata map[string]string     `json:"metadata"`
}

// postMessage is the web chat entry point: one user message in, the
// assistant reply out on the response.
func (s *Server) postMessage(c echo.Context) error {
	var req aiMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	channel, ok := models.ParseChannel(req.Channel)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown channel: "+req.Channel)
	}

	reply, err := s.orchestrator.HandleEvent(c.Request().Context(), models.InboundEvent{
		UserID:   req.UserID,
		Channel:  channel,
		Text:     req.Text,
		Metadata: req.Metadata,
	})
	if err != nil {
		// A gateway fault still produced a usable reply, just without the
		// payment link. Deliver it.
		if reply != nil && errors.Is(err, models.ErrPaymentGateway) {
			log.Error().Err(err).Str("user_id", req.UserID).Msg("reply delivered without payment link")
			return c.JSON(http.StatusOK, reply)
		}
		log.Error().Err(err).Str("user_id", req.UserID).Str("channel", req.Channel).Msg("message handling failed")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, reply)
}

// getMessages returns the stored transcript for a user on a channel in the
// widget's shape: from is "user" or "ia", timestamps in epoch milliseconds.
func (s *Server) getMessages(c echo.Context) error {
	userID := c.Param("userId")
	channel, ok := models.ParseChannel(c.Param("channel"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown channel: "+c.Param("channel"))
	}

	limit := 50
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	messages, err := s.store.History(c.Request().Context(), userID, channel, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	entries := make([]models.HistoryEntry, 0, len(messages))
	for _, m := range messages {
		from := "user"
		if m.Role == models.RoleAssistant {
			from = "ia"
		}
		entries = append(entries, models.HistoryEntry{
			From:      from,
			Text:      m.Content,
			Timestamp: m.CreatedAt.UnixMilli(),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"messages": entries,
		"userId":   userID,
		"channel":  channel.String(),
	})
}

// getStage reports the current funnel stage without creating state: a pair
// with no active conversation is at greeting, where its next conversation
// will start.
func (s *Server) getStage(c echo.Context) error {
	userID := c.Param("userId")
	channel, ok := models.ParseChannel(c.Param("channel"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown channel: "+c.Param("channel"))
	}

	stage := models.StageGreeting
	conv, err := s.store.FindActive(c.Request().Context(), userID, channel)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if conv != nil {
		stage = conv.Stage
	}

	return c.JSON(http.StatusOK, map[string]any{
		"userId":  userID,
		"channel": channel.String(),
		"stage":   stage,
	})
}
