package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/briefwire/briefwire/internal/acquire"
	"github.com/briefwire/briefwire/internal/api"
	"github.com/briefwire/briefwire/internal/budget"
	"github.com/briefwire/briefwire/internal/compose"
	"github.com/briefwire/briefwire/internal/config"
	"github.com/briefwire/briefwire/internal/llm"
	"github.com/briefwire/briefwire/internal/mail"
	"github.com/briefwire/briefwire/internal/pipeline"
	"github.com/briefwire/briefwire/internal/source"
	"github.com/briefwire/briefwire/internal/storage"
	"github.com/briefwire/briefwire/internal/tool"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the briefwire HTTP and MCP servers (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

// buildRuntime wires the acquisition and composition stack from config. The
// serve and generate commands share it.
func buildRuntime(cfg config.Config, logger *slog.Logger) (*pipeline.Runner, *tool.Executor, error) {
	deps := source.Deps{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Limiter:    budget.NewRateLimiter(0),
	}
	feeds := source.NewFeedAdapter(deps)
	news := source.NewNewsAdapter(deps, cfg.Sources.NewsBaseURL, cfg.Sources.NewsAPIKey)
	social := source.NewSocialAdapter(deps, cfg.Sources.SocialBaseURL, cfg.Sources.SocialBearerToken)
	web := source.NewWebSearchAdapter(deps, cfg.Sources.WebSearchBaseURL, cfg.Sources.WebSearchAPIKey)

	exec, err := api.RegisterSourceTools(tool.NewRegistry(), feeds, news, social, web)
	if err != nil {
		return nil, nil, fmt.Errorf("registering source tools: %w", err)
	}

	providers := acquire.Providers{
		News:      news.Configured(),
		Social:    social.Configured(),
		WebSearch: web.Configured(),
	}
	coordinator := acquire.New(exec, cfg.Sources.AllowedFeedDomains, providers, logger)

	model := llm.NewClient(cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Name)
	runner := pipeline.NewRunner(coordinator, compose.New(model), logger)
	return runner, exec, nil
}

func newSender(cfg config.Config, logger *slog.Logger) mail.Sender {
	if cfg.Mail.SMTPAddr != "" {
		return mail.NewSMTPSender(cfg.Mail.SMTPAddr, cfg.Mail.From, cfg.Mail.Username, cfg.Mail.Password)
	}
	return &mail.LogSender{Logger: logger}
}

func runServer(ctx context.Context) error {
	fmt.Fprintf(os.Stderr, "briefwire version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	token := cfg.Server.APIToken
	if token == "" {
		token = uuid.New().String()
		printWarning("BRIEFWIRE_API_TOKEN not set, generated session token %s", token)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	runner, exec, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Deps{
		Store:  store,
		Runner: runner,
		Mailer: newSender(cfg, logger),
		Token:  token,
		Logger: logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server over stdio, so local agents can call the acquisition tools.
	mcpSrv := api.NewMCPServer(exec)
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "briefwire listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
