package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"unicode/utf8"

	"docqa/internal/rag/schema"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gabriel-vasile/mimetype"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextExtractor passes text through and rejects binary content.
type TextExtractor struct{}

func (t *TextExtractor) Extract(ctx context.Context, doc *schema.SourceDocument) (*schema.ExtractedText, error) {
	data, err := doc.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrNoText)
	}
	if !isText(data) {
		return nil, fmt.Errorf("%w: binary content (%s)", ErrUnsupportedFormat, mimetype.Detect(data).String())
	}
	return single(doc, "text", string(bytes.TrimPrefix(data, utf8BOM)), nil), nil
}

// isText accepts valid UTF-8 without NUL bytes, or anything mimetype places under text/plain.
func isText(data []byte) bool {
	if utf8.Valid(data) && !bytes.ContainsRune(data, 0) {
		return true
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// HTMLExtractor converts HTML to Markdown, keeping headings, lists and emphasis.
type HTMLExtractor struct{}

func (h *HTMLExtractor) Extract(ctx context.Context, doc *schema.SourceDocument) (*schema.ExtractedText, error) {
	data, err := doc.ReadAll()
	if err != nil {
		return nil, err
	}
	md, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return nil, fmt.Errorf("convert html: %w", err)
	}
	return single(doc, "html", md, nil), nil
}

// EmailExtractor reads RFC 5322 messages, preferring the text/plain body over HTML.
type EmailExtractor struct{}

func (e *EmailExtractor) Extract(ctx context.Context, doc *schema.SourceDocument) (*schema.ExtractedText, error) {
	data, err := doc.ReadAll()
	if err != nil {
		return nil, err
	}
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: not an email message: %v", ErrUnsupportedFormat, err)
	}

	dec := new(mime.WordDecoder)
	header := func(key string) string {
		v := msg.Header.Get(key)
		if decoded, err := dec.DecodeHeader(v); err == nil {
			return decoded
		}
		return v
	}

	var b mailBody
	if err := b.walk(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body); err != nil {
		return nil, err
	}
	body := b.plain
	if strings.TrimSpace(body) == "" && b.html != "" {
		md, err := htmltomarkdown.ConvertString(b.html)
		if err != nil {
			return nil, fmt.Errorf("convert html body: %w", err)
		}
		body = md
	}

	subject := header("Subject")
	var sb strings.Builder
	for _, key := range []string{"Subject", "From", "To", "Date"} {
		if v := header(key); v != "" {
			sb.WriteString(key + ": " + v + "\n")
		}
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimSpace(body))

	var md map[string]interface{}
	if subject != "" {
		md = map[string]interface{}{schema.MetadataKeySection: subject}
	}
	return single(doc, "email", sb.String(), md), nil
}

// mailBody collects the first text/plain and text/html parts of a message.
type mailBody struct {
	plain string
	html  string
}

func (b *mailBody) walk(contentType, encoding string, r io.Reader) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || contentType == "" {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read multipart: %w", err)
			}
			if strings.HasPrefix(part.Header.Get("Content-Disposition"), "attachment") {
				continue
			}
			if err := b.walk(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part); err != nil {
				return err
			}
		}
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return nil
	}
	raw, err := io.ReadAll(decodeTransfer(encoding, r))
	if err != nil {
		return fmt.Errorf("decode %s part: %w", mediaType, err)
	}
	if mediaType == "text/plain" && b.plain == "" {
		b.plain = string(raw)
	}
	if mediaType == "text/html" && b.html == "" {
		b.html = string(raw)
	}
	return nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}

