// Package config implements the config command, printing the effective
// configuration after defaults, file, and environment are merged.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/karnali/wildguard-go/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printConfig(cmd, settings)
		},
	}
	return cmd
}

func printConfig(cmd *cobra.Command, settings *conf.Settings) error {
	redacted := *settings
	redacted.Alerts.Voice.Token = redactSecret(redacted.Alerts.Voice.Token)
	redacted.Alerts.Message.Token = redactSecret(redacted.Alerts.Message.Token)
	redacted.Alerts.Evidence.S3SecretKey = redactSecret(redacted.Alerts.Evidence.S3SecretKey)

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

// redactSecret keeps a short prefix so operators can tell which credential is
// loaded without exposing it.
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}
