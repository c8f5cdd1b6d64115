// Package main is the entry point for the tgecho CLI.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/flemzord/tgecho/internal/config"
	"github.com/flemzord/tgecho/internal/telegram"
	"github.com/flemzord/tgecho/pkg/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tgecho",
		Short:         "A Telegram bot relay that echoes every text message back",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to an optional YAML configuration file")
	root.PersistentFlags().String("env-file", "", "Path to a dotenv file (default ./.env when present)")
	root.AddCommand(versionCmd(), startCmd(), configCmd(), webhookCmd(), secretCmd())
	return root
}

func runParams(cmd *cobra.Command) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	return app.RunParams{
		ConfigPath: cfgPath,
		EnvFile:    envFile,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tgecho %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Serve the webhook (or long-poll) and echo messages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), runParams(cmd))
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate configuration and print it with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(runParams(cmd))
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Configuration OK (mode: %s)\n\n", cfg.Mode())
			_, err = w.Write(out)
			return err
		},
	})
	return cmd
}

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Inspect or change the webhook registered with Telegram",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show the current webhook registration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := apiClient(cmd)
			if err != nil {
				return err
			}
			info, err := client.GetWebhookInfo(cmd.Context())
			if err != nil {
				return err
			}
			printWebhookInfo(cmd.OutOrStdout(), info)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Register WEBHOOK_URL with the configured secret token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cfg, err := apiClient(cmd)
			if err != nil {
				return err
			}
			if cfg.WebhookURL == "" {
				return errors.New("WEBHOOK_URL is not set")
			}
			if err := client.SetWebhook(cmd.Context(), telegram.SetWebhookRequest{
				URL:            cfg.WebhookURL,
				SecretToken:    cfg.WebhookSecret,
				AllowedUpdates: []string{"message"},
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook set to %s\n", cfg.WebhookURL)
			return nil
		},
	})

	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook registration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := apiClient(cmd)
			if err != nil {
				return err
			}
			drop, _ := cmd.Flags().GetBool("drop-pending")
			if err := client.DeleteWebhook(cmd.Context(), telegram.DeleteWebhookRequest{DropPendingUpdates: drop}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Webhook deleted")
			return nil
		},
	}
	del.Flags().Bool("drop-pending", false, "Also drop updates Telegram is still holding")
	cmd.AddCommand(del)

	return cmd
}

func printWebhookInfo(w io.Writer, info *telegram.WebhookInfo) {
	url := info.URL
	if url == "" {
		url = "(none, long-polling)"
	}
	fmt.Fprintf(w, "URL:             %s\n", url)
	fmt.Fprintf(w, "Pending updates: %d\n", info.PendingUpdateCount)
	if info.IPAddress != "" {
		fmt.Fprintf(w, "IP address:      %s\n", info.IPAddress)
	}
	if info.MaxConnections > 0 {
		fmt.Fprintf(w, "Max connections: %d\n", info.MaxConnections)
	}
	if info.LastErrorMessage != "" {
		fmt.Fprintf(w, "Last error:      %s (at %s)\n", info.LastErrorMessage, time.Unix(int64(info.LastErrorDate), 0).UTC().Format(time.RFC3339))
	}
}

func apiClient(cmd *cobra.Command) (*telegram.Client, *config.Config, error) {
	cfg, err := app.LoadConfig(runParams(cmd))
	if err != nil {
		return nil, nil, err
	}
	return app.NewClient(cfg), cfg, nil
}

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "set <account>",
		Short:     "Store a secret read from stdin (accounts: " + strings.Join(config.KeyringAccounts, ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.KeyringAccounts,
		RunE: func(cmd *cobra.Command, args []string) error {
			account := args[0]
			if !slices.Contains(config.KeyringAccounts, account) {
				return fmt.Errorf("unknown account %q (want one of %s)", account, strings.Join(config.KeyringAccounts, ", "))
			}
			value, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := config.SetSecret(account, value); err != nil {
				return fmt.Errorf("storing %s in keyring: %w", account, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in keyring service %q\n", account, config.KeyringService)
			return nil
		},
	})
	return cmd
}

// readSecret reads the first line of r, trimmed.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	value := strings.TrimSpace(line)
	if value == "" {
		return "", errors.New("empty secret on stdin")
	}
	return value, nil
}
