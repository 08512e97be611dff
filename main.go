package main

import (
	"fmt"
	"os"

	"github.com/karnali/wildguard-go/cmd"
	"github.com/karnali/wildguard-go/internal/conf"
	"github.com/karnali/wildguard-go/internal/logging"
)

func main() {
	logging.Init()

	settings := conf.Setting()
	if settings == nil {
		fmt.Fprintf(os.Stderr, "Error loading settings\n")
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Command execution error: %v\n", err)
		os.Exit(1)
	}
}
