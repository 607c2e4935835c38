package main

//go:generate swag init -g cmd/papertrade/main.go -o docs

// @title           Paper Trade Risk API
// @version         0.1.0
// @description     Leveraged paper positions, wallets and liquidation monitoring.
// @host            localhost:8080
// @BasePath        /
// @schemes         http

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envOnly bool
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "papertrade",
		Short:        "Paper trading risk engine for leveraged positions",
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath(), "config file")
	rootCmd.PersistentFlags().BoolVar(&envOnly, "env-only", defaultEnvOnly(), "read configuration from PT_* environment only")

	rootCmd.AddCommand(serveCmd(), migrateCmd(), provisionCmd(), sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("PT_CONFIG"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func defaultEnvOnly() bool {
	raw := os.Getenv("PT_ENV_ONLY")
	return strings.EqualFold(raw, "true") || raw == "1"
}
