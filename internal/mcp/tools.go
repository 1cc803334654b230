// Package mcp exposes the question answering pipeline as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"docqa/internal/models"
	"docqa/internal/rag/extractor"
	"docqa/internal/rag/fetcher"
	"docqa/internal/rag/interfaces"
	"docqa/internal/rag/schema"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ToolAnswerQuestions = "answer_questions"
	ToolExtractDocument = "extract_document"

	defaultMaxChars = 20000
)

// Runner answers a run request. *service.Service implements it.
type Runner interface {
	Run(ctx context.Context, req *models.RunRequest) (*models.RunResponse, error)
}

// Extractor is the tagged-result extractor. *extractor.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, doc *schema.SourceDocument) extractor.Result
}

// Handler serves the tool calls.
type Handler struct {
	runner    Runner
	fetcher   interfaces.Fetcher
	extractor Extractor
}

func NewHandler(runner Runner, f interfaces.Fetcher, ex Extractor) *Handler {
	return &Handler{runner: runner, fetcher: f, extractor: ex}
}

// NewServer registers every tool on a new MCP server.
func NewServer(h *Handler, version string) *server.MCPServer {
	s := server.NewMCPServer("docqa", version, server.WithToolCapabilities(false), server.WithRecovery())
	s.AddTools(h.Tools()...)
	return s
}

// Tools describes the tools served by h.
func (h *Handler) Tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolAnswerQuestions,
				mcp.WithDescription("Answers questions about a remote document (PDF, DOCX, XLSX, HTML, email or text). Answers are returned in question order."),
				mcp.WithString("document", mcp.Required(), mcp.Description("http(s) URL of the document.")),
				mcp.WithArray("questions", mcp.Required(), mcp.WithStringItems(), mcp.MinItems(1), mcp.Description("Questions to answer.")),
			),
			Handler: h.HandleAnswerQuestions,
		},
		{
			Tool: mcp.NewTool(ToolExtractDocument,
				mcp.WithDescription("Extracts the text of a document from a URL or a local path, using OCR for scanned PDFs when configured."),
				mcp.WithString("source", mcp.Required(), mcp.Description("http(s) URL or local file path.")),
				mcp.WithNumber("max_chars", mcp.Description("Truncate the returned text to this many characters. Defaults to 20000.")),
			),
			Handler: h.HandleExtractDocument,
		},
	}
}

func (h *Handler) HandleAnswerQuestions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	document, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	questions, err := req.RequireStringSlice("questions")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := h.runner.Run(ctx, &models.RunRequest{Documents: document, Questions: questions})
	if err != nil {
		return mcp.NewToolResultErrorFromErr("run failed", err), nil
	}

	var sb strings.Builder
	for i, a := range resp.Answers {
		if i < len(questions) {
			fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, questions[i], a)
		}
	}
	return mcp.NewToolResultStructured(resp, strings.TrimRight(sb.String(), "\n")), nil
}

func (h *Handler) HandleExtractDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	maxChars := req.GetInt("max_chars", defaultMaxChars)

	var doc *schema.SourceDocument
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		doc, err = h.fetcher.Fetch(ctx, source)
	} else {
		doc, err = fetcher.Open(source)
	}
	if err != nil {
		return mcp.NewToolResultErrorFromErr("could not read document", err), nil
	}
	defer func() { _ = doc.Release() }()

	res := h.extractor.Extract(ctx, doc)
	if res.Status != extractor.StatusOK {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", res.Status, res.Reason)), nil
	}

	text := res.Text.Text()
	truncated := false
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = string([]rune(text)[:maxChars])
		truncated = true
	}
	meta, _ := json.Marshal(map[string]interface{}{
		"kind":      doc.Kind,
		"strategy":  res.Text.Strategy,
		"segments":  len(res.Text.Segments),
		"truncated": truncated,
	})
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
			mcp.TextContent{Type: "text", Text: string(meta)},
		},
	}, nil
}
