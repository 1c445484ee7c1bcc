package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/briefwire/briefwire/internal/config"
)

// --- send-due ---

var sendDueCmd = &cobra.Command{
	Use:   "send-due",
	Short: "Run and deliver every due subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Triggering due subscriptions")
		resp, err := client.post(cmd.Context(), "/runs/send-due", nil)
		if err != nil {
			return err
		}

		var result struct {
			Triggered int `json:"triggered"`
			Sent      int `json:"sent"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Triggered %d runs, delivered %d", result.Triggered, result.Sent)
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show briefwire system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		client := &http.Client{Timeout: 2 * time.Second}

		resp, err := client.Get(serverURL + "/health")
		if err != nil {
			printStatus("Server", "stopped")
		} else {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				printStatus("Server", "running on port %d", cfg.Server.Port)
			} else {
				printStatus("Server", "error (HTTP %d)", resp.StatusCode)
			}
		}

		if cfg.Model.BaseURL != "" && cfg.Model.APIKey != "" {
			printStatus("Model", "%s via %s", cfg.Model.Name, cfg.Model.BaseURL)
		} else {
			printStatus("Model", "not configured (deterministic fallback)")
		}

		printStatus("News provider", "%s", configuredLabel(cfg.Sources.NewsAPIKey))
		printStatus("Social provider", "%s", configuredLabel(cfg.Sources.SocialBearerToken))
		printStatus("Web search", "%s", configuredLabel(cfg.Sources.WebSearchAPIKey))
		printStatus("Mail relay", "%s", configuredLabel(cfg.Mail.SMTPAddr))
		printStatus("Feed allow-list", "%d domains", len(cfg.Sources.AllowedFeedDomains))
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

func configuredLabel(credential string) string {
	if credential != "" {
		return "configured"
	}
	return "not configured"
}
