package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the service is up",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		info, err := newAPIClient(serverURL, apiToken).Health(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if outputJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(out, "status:      %s\n", info.Status)
		fmt.Fprintf(out, "credentials: %t\n", info.CredentialsConfigured)
		fmt.Fprintf(out, "llm:         %s\n", info.LLMProvider)
		fmt.Fprintf(out, "embedding:   %s\n", info.EmbeddingProvider)
		fmt.Fprintf(out, "ocr:         %s\n", info.OCRProvider)
		fmt.Fprintf(out, "index:       %s\n", info.IndexBackend)
		fmt.Fprintf(out, "uptime:      %s\n", info.Uptime)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
