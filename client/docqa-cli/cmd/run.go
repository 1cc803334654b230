package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"docqa/internal/bootstrap"
	"docqa/internal/config"
	"docqa/internal/models"
	"docqa/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	runQuestions []string
	runLocal     bool
)

var runCmd = &cobra.Command{
	Use:   "run [document-url]",
	Short: "Answer questions about a document",
	Long: `Answer one or more questions about a document.

By default the request goes to the service given by --server. With --local the
pipeline runs in-process using --config and the provider keys in the environment.

Examples:
  docqa-cli run https://example.com/policy.pdf -q "What is the grace period?" -q "Is maternity covered?"
  docqa-cli run --local https://example.com/policy.pdf -q "What is the waiting period?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		req := &models.RunRequest{Documents: args[0], Questions: runQuestions}
		var (
			resp *models.RunResponse
			err  error
		)
		if runLocal {
			resp, err = runLocally(ctx, req)
		} else {
			resp, err = newAPIClient(serverURL, apiToken).Run(ctx, req)
		}
		if resp != nil {
			if perr := printRun(cmd.OutOrStdout(), req.Questions, resp); perr != nil {
				return perr
			}
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayVarP(&runQuestions, "question", "q", nil, "question to ask (repeatable)")
	runCmd.Flags().BoolVar(&runLocal, "local", false, "run the pipeline in-process instead of calling the service")
	_ = runCmd.MarkFlagRequired("question")
}

func runLocally(ctx context.Context, req *models.RunRequest) (*models.RunResponse, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	level, _ := logger.ParseLevel(cfg.Logger.Level)
	app, err := bootstrap.Build(ctx, cfg, logger.New("docqa-cli", level, io.Discard))
	if err != nil {
		return nil, err
	}
	defer app.Close()
	return app.Service.Run(ctx, req)
}

func printRun(w io.Writer, questions []string, resp *models.RunResponse) error {
	if outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if !resp.Success {
		_, err := fmt.Fprintf(w, "Run failed after %.2fs: %s\n", resp.ProcessingTime, resp.Error)
		return err
	}
	for i, answer := range resp.Answers {
		q := ""
		if i < len(questions) {
			q = questions[i]
		}
		if _, err := fmt.Fprintf(w, "Q%d: %s\nA%d: %s\n\n", i+1, q, i+1, answer); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Answered %d question(s) in %.2fs\n", len(resp.Answers), resp.ProcessingTime)
	return err
}
