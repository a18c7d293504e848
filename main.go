package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cppla/gqlbbs/config"
	"github.com/cppla/gqlbbs/mailqueue"
	"github.com/cppla/gqlbbs/metrics"
	"github.com/cppla/gqlbbs/routes"
	"github.com/cppla/gqlbbs/services"
	"github.com/cppla/gqlbbs/stores"
	"github.com/cppla/gqlbbs/utils"
)

func main() {
	var worker bool
	cmd := &cobra.Command{
		Use:           "gqlbbs",
		Short:         "GraphQL discussion board server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			// Initialize logger early
			if err := utils.InitLogger(cfg); err != nil {
				return err
			}
			defer func() { _ = utils.Logger.Sync() }()

			if worker {
				return runWorker(cfg)
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().BoolVar(&worker, "worker", false, "consume the mail queue instead of serving HTTP")

	if err := cmd.Execute(); err != nil {
		utils.Sugar.Fatalf("gqlbbs stopped with error: %v", err)
	}
}

func runServer(cfg config.AppConfig) error {
	db := config.InitDatabase()
	rdb := utils.GetRedis()

	mailer, closeMailer, err := newMailer(cfg)
	if err != nil {
		return err
	}

	users := stores.NewUserStore(db)
	auth := services.NewAuthService(users, stores.NewSessionStore(rdb), utils.NewPasswordHasher(), mailer, services.AuthConfig{
		FrontendURL: cfg.FrontendURL,
	})
	posts := services.NewPostService(stores.NewPostStore(db), users, utils.NewCache(rdb))

	r, err := routes.SetupRouter(cfg, routes.Dependencies{
		Auth:        auth,
		Posts:       posts,
		OAuthStates: stores.NewOAuthStateStore(rdb),
		Metrics:     metrics.NewRegistry(),
	})
	if err != nil {
		return err
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	return utils.GraceServer(":"+cfg.AppPort, r, closeMailer, func() {
		if err := rdb.Close(); err != nil {
			utils.Sugar.Warnw("close redis failed", "error", err)
		}
	})
}

// newMailer queues mail when a broker is configured and sends inline otherwise.
func newMailer(cfg config.AppConfig) (services.Mailer, func(), error) {
	if cfg.RabbitMQURL != "" {
		broker, err := mailqueue.Dial(cfg.RabbitMQURL, cfg.MailQueueName)
		if err != nil {
			return nil, nil, err
		}
		return broker, broker.Close, nil
	}
	return directSender(cfg), func() {}, nil
}

func directSender(cfg config.AppConfig) services.Mailer {
	smtp := mailqueue.NewSMTPSender(cfg)
	if smtp.Configured() {
		return smtp
	}
	utils.Sugar.Warn("smtp not configured, reset mail will only be logged")
	return mailqueue.LogSender{}
}

func runWorker(cfg config.AppConfig) error {
	if cfg.RabbitMQURL == "" {
		return errors.New("worker needs RABBITMQ_URL")
	}
	broker, err := mailqueue.Dial(cfg.RabbitMQURL, cfg.MailQueueName)
	if err != nil {
		return err
	}
	defer broker.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return broker.Consume(ctx, directSender(cfg))
}
