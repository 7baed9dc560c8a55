// Package api exposes the conversation core over HTTP: the web chat
// endpoint, channel webhooks, payment endpoints and the catalog.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pulsai/pulsai/internal/config"
	"github.com/pulsai/pulsai/internal/payment"
	"github.com/pulsai/pulsai/internal/store"
	"github.com/pulsai/pulsai/pkg/models"
)

// Orchestrator is the conversation pipeline the handlers hand events to.
type Orchestrator interface {
	HandleEvent(ctx context.Context, event models.InboundEvent) (*models.OutboundReply, error)
}

// Enqueuer schedules outbound deliveries for webhook-originated replies.
// Web chat does not use it; the reply rides the HTTP response.
type Enqueuer interface {
	Enqueue(ctx context.Context, userID string, channel models.Channel, text string) error
}

// Server represents the API server.
type Server struct {
	echo         *echo.Echo
	port         int
	orchestrator Orchestrator
	store        store.ConversationStore
	payments     *payment.Client
	queue        Enqueuer
	channelsCfg  config.ChannelsConfig
}

// requestValidator adapts go-playground/validator to echo's Validator hook.
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// NewServer creates the API server. queue may be nil when outbound delivery
// is disabled (no sender credentials configured).
func NewServer(cfg *config.Config, orchestrator Orchestrator, st store.ConversationStore, payments *payment.Client, queue Enqueuer) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = &requestValidator{validate: validator.New()}

	server := &Server{
		echo:         e,
		port:         cfg.Server.Port,
		orchestrator: orchestrator,
		store:        st,
		payments:     payments,
		queue:        queue,
		channelsCfg:  cfg.Channels,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	ai := s.echo.Group("/api/ai")
	ai.POST("/message", s.postMessage)
	ai.GET("/messages/:userId/:channel", s.getMessages)
	ai.GET("/stage/:userId/:channel", s.getStage)

	ch := s.echo.Group("/api/channels")
	ch.GET("", s.listChannels)
	ch.GET("/:channel/status", s.channelStatus)

	hooks := s.echo.Group("/api/webhooks")
	hooks.GET("/whatsapp", s.verifyWhatsAppWebhook)
	hooks.POST("/whatsapp", s.whatsappWebhook)
	hooks.POST("/twilio/whatsapp", s.twilioWebhook)
	hooks.GET("/messenger", s.verifyMessengerWebhook)
	hooks.POST("/messenger", s.messengerWebhook)
	hooks.POST("/email", s.emailWebhook)

	pay := s.echo.Group("/api/payment")
	pay.POST("/create", s.createPayment)
	pay.POST("/verify", s.verifyPayment)
	pay.POST("/webhook", s.paymentWebhook)
	pay.GET("/plans", s.listPlans)
}

// Start runs the server until an interrupt, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
