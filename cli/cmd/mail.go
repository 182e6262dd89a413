package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/markwell-app/markwell/internal/email"
)

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Test the mail configuration",
}

var (
	mailTo      string
	mailSubject string
	mailBody    string
)

var mailSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a test message through the configured provider",
	Long: `Send a message through the configured email provider.

Examples:
  markwell mail send --to you@example.com
  markwell mail send --to you@example.com --subject "Hello" --html "<p>It works</p>"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		svc, err := email.NewService(&cfg.Email)
		if err != nil {
			return err
		}
		if !svc.Enabled() {
			return errors.New("email is disabled or the provider is missing credentials")
		}

		if err := svc.Send(cmd.Context(), email.Message{
			To:      mailTo,
			Subject: mailSubject,
			HTML:    mailBody,
		}); err != nil {
			return err
		}

		f, err := getFormatter()
		if err != nil {
			return err
		}
		f.PrintSuccess("Sent via " + svc.Provider())
		return nil
	},
}

func init() {
	mailSendCmd.Flags().StringVar(&mailTo, "to", "", "recipient address")
	mailSendCmd.Flags().StringVar(&mailSubject, "subject", "Markwell test message", "subject line")
	mailSendCmd.Flags().StringVar(&mailBody, "html", "<p>Your Markwell mail settings work.</p>", "HTML body")
	_ = mailSendCmd.MarkFlagRequired("to")

	mailCmd.AddCommand(mailSendCmd)
}
