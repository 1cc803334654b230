package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	apiToken   string
	configPath string
	timeout    time.Duration
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "docqa-cli",
	Short: "A CLI client for the document question answering service",
	Long: `A command-line interface for asking questions about documents, either through a
running docqa service or by running the pipeline locally.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("DOCQA_SERVER", "http://localhost:8000"), "base URL of the docqa service")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("HACKRX_API_KEY"), "bearer token for the service")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "configuration file for local runs")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "overall request timeout")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "print raw JSON")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
