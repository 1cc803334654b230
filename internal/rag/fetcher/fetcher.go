// Package fetcher downloads documents into scoped temporary files and classifies them.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"docqa/internal/config"
	"docqa/internal/rag/interfaces"
	"docqa/internal/rag/schema"
	"docqa/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
)

// ErrTooLarge is returned when a download exceeds the configured size limit.
var ErrTooLarge = errors.New("document exceeds maximum size")

// Doer executes HTTP requests. *http.Client and the circuit breaker client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetchError describes a failed download. StatusCode is 0 for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPFetcher performs a single GET per document and streams the body to disk.
type HTTPFetcher struct {
	client    Doer
	timeout   time.Duration
	maxBytes  int64
	userAgent string
	tempDir   string
	log       *logger.Logger
}

// New creates an HTTPFetcher.
func New(cfg config.FetcherConfig, client Doer, log *logger.Logger) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		client:    client,
		timeout:   config.Duration(cfg.Timeout),
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
		tempDir:   cfg.TempDir,
		log:       log.With("component", "fetcher"),
	}
}

// Fetch downloads rawURL. On success the caller must Release the returned document;
// on failure no temporary file is left behind.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*schema.SourceDocument, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	ext := strings.ToLower(path.Ext(u.Path))
	tmp, err := os.CreateTemp(f.tempDir, "docqa-*"+ext)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	size, err := io.Copy(tmp, body)
	if err != nil {
		cleanup()
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if f.maxBytes > 0 && size > f.maxBytes {
		cleanup()
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("%w: limit %d bytes", ErrTooLarge, f.maxBytes)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("close temp file: %w", err)}
	}

	kind, ext, mime := classifyFile(tmpPath, ext)
	f.log.WithFields(map[string]interface{}{
		"url":         rawURL,
		"kind":        string(kind),
		"mime":        mime,
		"bytes":       size,
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("document fetched")

	return schema.NewSourceDocument(rawURL, tmpPath, ext, kind, size, mime, true), nil
}

// Open wraps a local file. The file is not copied and Release leaves it in place.
func Open(p string) (*schema.SourceDocument, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, &FetchError{URL: p, Err: err}
	}
	if info.IsDir() {
		return nil, &FetchError{URL: p, Err: fmt.Errorf("%s is a directory", p)}
	}
	kind, ext, mime := classifyFile(p, strings.ToLower(filepath.Ext(p)))
	return schema.NewSourceDocument(p, p, ext, kind, info.Size(), mime, false), nil
}

// Classify maps a file suffix to a document kind. Unknown suffixes are treated as text.
func Classify(ext string) schema.Kind {
	switch strings.ToLower(ext) {
	case ".pdf":
		return schema.KindPDF
	case ".docx":
		return schema.KindDOCX
	case ".xlsx":
		return schema.KindXLSX
	case ".html", ".htm":
		return schema.KindHTML
	case ".eml":
		return schema.KindEmail
	default:
		return schema.KindText
	}
}

// KindFromMIME maps a sniffed media type to a document kind.
func KindFromMIME(m *mimetype.MIME) schema.Kind {
	switch {
	case m == nil:
		return schema.KindText
	case m.Is("application/pdf"):
		return schema.KindPDF
	case m.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
		return schema.KindDOCX
	case m.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"):
		return schema.KindXLSX
	case m.Is("text/html"):
		return schema.KindHTML
	case m.Is("message/rfc822"):
		return schema.KindEmail
	default:
		return schema.KindText
	}
}

// classifyFile uses the suffix when there is one and falls back to content sniffing.
func classifyFile(p, ext string) (schema.Kind, string, string) {
	m, err := mimetype.DetectFile(p)
	var mime string
	if err == nil {
		mime = m.String()
	}
	if ext != "" {
		return Classify(ext), ext, mime
	}
	if err != nil {
		return schema.KindText, ext, mime
	}
	return KindFromMIME(m), m.Extension(), mime
}

var _ interfaces.Fetcher = (*HTTPFetcher)(nil)
