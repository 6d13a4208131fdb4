package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/notify"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Loan notification tools",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test email through the configured SMTP server",
	Long: `Send a single test message using SMTP_HOST, SMTP_PORT, SMTP_USERNAME,
SMTP_PASSWORD and SMTP_FROM. Loan notices use the same connection settings.

Examples:
  smart-library notify test --to librarian@example.com`,
	Args: cobra.NoArgs,
	RunE: runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)

	notifyTestCmd.Flags().String("to", "", "Recipient address (required)")
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	to := strings.TrimSpace(mustGetString(cmd, "to"))
	if to == "" {
		return errors.New("--to is required")
	}

	cfg := config.Load()
	if !cfg.SMTP.Enabled() {
		return errors.New("SMTP_HOST is not set")
	}

	mailer, err := notify.NewMailer(cfg.SMTP)
	if err != nil {
		return fmt.Errorf("set up mailer: %w", err)
	}
	defer mailer.Close()

	if err := mailer.SendTest(cmd.Context(), to); err != nil {
		return fmt.Errorf("send test email: %w", err)
	}
	fmt.Printf("Test email sent to %s via %s:%d\n", to, cfg.SMTP.Host, cfg.SMTP.Port)
	return nil
}
