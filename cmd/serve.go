package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/pulsai/pulsai/internal/ai"
	"github.com/pulsai/pulsai/internal/api"
	"github.com/pulsai/pulsai/internal/channels"
	"github.com/pulsai/pulsai/internal/config"
	"github.com/pulsai/pulsai/internal/database"
	"github.com/pulsai/pulsai/internal/dispatch"
	"github.com/pulsai/pulsai/internal/funnel"
	"github.com/pulsai/pulsai/internal/payment"
	"github.com/pulsai/pulsai/internal/store"
	"github.com/pulsai/pulsai/pkg/models"
)

// ServeCommand returns the CLI command for starting the API server.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the PulsAI API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.Bool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}

	ctx := c.Context

	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := database.InitSchema(ctx, db); err != nil {
		return err
	}
	conversationStore := store.NewPostgresStore(db)

	connector, err := ai.NewConnector(ctx, ai.ConnectorOptions{
		Provider:    ai.Provider(cfg.AI.Provider),
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize model connector: %w", err)
	}
	completer := ai.NewResilientCompleter(connector)

	payClient := payment.NewClient(payment.Config{
		PublicKey:  cfg.Payment.PublicKey,
		PrivateKey: cfg.Payment.PrivateKey,
		SecretKey:  cfg.Payment.SecretKey,
		Sandbox:    cfg.Payment.Sandbox,
	})

	orchestrator := funnel.NewOrchestrator(conversationStore, completer, payClient, funnel.Options{
		ModelTimeout: time.Duration(cfg.AI.TimeoutSec) * time.Second,
		RepairJSON:   cfg.AI.RepairJSON,
	})

	dispatcher, err := startDispatcher(ctx, cfg)
	if err != nil {
		return err
	}
	var queue api.Enqueuer
	if dispatcher != nil {
		defer dispatcher.Stop(context.Background())
		queue = dispatcher
	}

	log.Info().
		Int("port", cfg.Server.Port).
		Str("provider", cfg.AI.Provider).
		Str("model", cfg.AI.Model).
		Msg("starting PulsAI server")

	server := api.NewServer(cfg, orchestrator, conversationStore, payClient, queue)
	return server.Start()
}

// startDispatcher brings up the outbound delivery queue when at least one
// channel has send credentials. Without any, webhook replies are processed
// and stored but not pushed anywhere, which is the web-only deployment.
func startDispatcher(ctx context.Context, cfg *config.Config) (*dispatch.Dispatcher, error) {
	registry := channels.NewRegistry()

	if cfg.Channels.TwilioAccountSID != "" && cfg.Channels.TwilioAuthToken != "" {
		sender := channels.NewTwilioSender(
			cfg.Channels.TwilioAccountSID,
			cfg.Channels.TwilioAuthToken,
			cfg.Channels.TwilioWhatsAppNumber,
		)
		registry.Register(models.ChannelWhatsApp, sender)
	}
	if cfg.Channels.MetaPageToken != "" {
		sender := channels.NewMetaSender(cfg.Channels.MetaPageToken)
		registry.Register(models.ChannelMessenger, sender)
		registry.Register(models.ChannelInstagram, sender)
	}
	if cfg.Channels.MailgunDomain != "" && cfg.Channels.MailgunAPIKey != "" {
		from := cfg.Channels.EmailFrom
		if from == "" {
			from = "assistant@" + cfg.Channels.MailgunDomain
		}
		sender := channels.NewMailgunSender(cfg.Channels.MailgunDomain, cfg.Channels.MailgunAPIKey, from)
		registry.Register(models.ChannelEmail, sender)
	}

	if registry.Len() == 0 {
		log.Warn().Msg("no channel send credentials configured, outbound delivery disabled")
		return nil, nil
	}

	dbURL, err := database.ResolveURL(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue pool: %w", err)
	}
	if err := dispatch.Migrate(ctx, pool); err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.NewDispatcher(pool, registry, dispatch.Options{})
	if err != nil {
		return nil, err
	}
	if err := dispatcher.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start queue workers: %w", err)
	}
	return dispatcher, nil
}
