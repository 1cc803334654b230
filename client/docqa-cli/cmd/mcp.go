package cmd

import (
	"os"

	"docqa/internal/bootstrap"
	"docqa/internal/config"
	"docqa/internal/mcp"
	"docqa/pkg/logger"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the pipeline as MCP tools over stdio",
	Long: `Start an MCP server on stdin/stdout exposing answer_questions and
extract_document. Logs are written to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		level, _ := logger.ParseLevel(cfg.Logger.Level)
		log := logger.New("docqa-cli", level, os.Stderr)

		app, err := bootstrap.Build(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer app.Close()

		s := mcp.NewServer(mcp.NewHandler(app.Service, app.Fetcher, app.Extractor), cfg.App.Version)
		return server.ServeStdio(s)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
