package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantum-lens/lens/internal/auth"
	"github.com/quantum-lens/lens/internal/chat"
	"github.com/quantum-lens/lens/internal/config"
	"github.com/quantum-lens/lens/internal/llm"
	"github.com/quantum-lens/lens/internal/pipeline"
	"github.com/quantum-lens/lens/internal/project"
	"github.com/quantum-lens/lens/internal/sandbox"
	"github.com/quantum-lens/lens/internal/server"
	"github.com/quantum-lens/lens/internal/store"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if verbose {
				cfg.Verbose = true
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := newLogger()

			appStore, err := store.Open(cfg.Database.DSN())
			if err != nil {
				return err
			}
			defer func() { _ = appStore.Close() }()

			if err := appStore.Migrate(); err != nil {
				return err
			}

			client := llm.NewClient(llm.Config{
				APIKey:    cfg.LLM.APIKey,
				Model:     cfg.LLM.Model,
				BaseURL:   cfg.LLM.BaseURL,
				SiteURL:   cfg.LLM.SiteURL,
				SiteName:  cfg.LLM.SiteName,
				Timeout:   cfg.LLM.Timeout(),
				MaxTokens: cfg.LLM.MaxTokens,
			}, logger)
			gateway := llm.NewGateway(client, logger)

			manager := sandbox.NewManager(logger)
			pipe := pipeline.New(gateway, pipeline.NewManagerPool(manager), logger)

			srv := server.New(server.Config{
				Server:   cfg.Server,
				Auth:     auth.NewService(appStore, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL(), logger),
				Projects: project.NewService(appStore, logger),
				Chat:     chat.NewService(appStore, gateway, logger),
				Pipeline: pipe,
				Logger:   logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Serve(ctx)
		},
	}
}
