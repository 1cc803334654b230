package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"docqa/internal/config"
	"docqa/internal/ocr"
	"docqa/internal/rag/extractor"
	"docqa/internal/rag/fetcher"
	"docqa/internal/rag/schema"
	"docqa/pkg/logger"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [url-or-path]",
	Short: "Print the text extracted from a document",
	Long: `Run only the fetch and extraction stages and print the result.
Useful for checking which PDF strategy (layout, simple text or OCR) a document needs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cfg, err := loadOrDefault(configPath)
		if err != nil {
			return err
		}
		return extract(ctx, cmd.OutOrStdout(), cfg, args[0])
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

// loadOrDefault falls back to defaults when the configuration file does not exist.
func loadOrDefault(path string) (*config.AppConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

func extract(ctx context.Context, w io.Writer, cfg *config.AppConfig, source string) error {
	log := logger.Nop()
	if cfg.Extractor.UnidocLicenseKey != "" {
		_ = extractor.RegisterUnidocLicense(cfg.Extractor.UnidocLicenseKey)
	}
	engine, err := ocr.New(cfg.Extractor.OCR)
	if err != nil {
		return err
	}

	var doc *schema.SourceDocument
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		doc, err = fetcher.New(cfg.Fetcher, nil, log).Fetch(ctx, source)
	} else {
		doc, err = fetcher.Open(source)
	}
	if err != nil {
		return err
	}
	defer func() { _ = doc.Release() }()

	res := extractor.NewDefault(cfg.Extractor, engine, log, nil).Extract(ctx, doc)
	if outputJSON {
		out := map[string]interface{}{"kind": doc.Kind, "status": res.Status.String(), "reason": res.Reason}
		if res.Text != nil {
			out["strategy"] = res.Text.Strategy
			out["segments"] = res.Text.Segments
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	if err := res.Err(); err != nil {
		return err
	}
	fmt.Fprintf(w, "# kind=%s strategy=%s segments=%d\n", doc.Kind, res.Text.Strategy, len(res.Text.Segments))
	_, err = fmt.Fprintln(w, res.Text.Text())
	return err
}
