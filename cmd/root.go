// Package cmd assembles the wildguard command line interface.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/karnali/wildguard-go/cmd/config"
	"github.com/karnali/wildguard-go/cmd/serve"
	"github.com/karnali/wildguard-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wildguard",
		Short: "WildGuard wildlife camera relay and alert server",
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		configcmd.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVarP(&settings.WebServer.Port, "port", "p", viper.GetString("webserver.port"), "Web server listen port")
}
