package schema

import (
	"os"
	"strings"
	"sync"
)

// Kind is the document format the extractor dispatches on.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindDOCX  Kind = "docx"
	KindXLSX  Kind = "xlsx"
	KindHTML  Kind = "html"
	KindEmail Kind = "email"
	KindText  Kind = "text"
)

const (
	// MetadataKeySource is the key for the origin URL or path of a chunk.
	MetadataKeySource = "source"
	// MetadataKeyPage is the key for the 1-based page number, 0 when unknown.
	MetadataKeyPage = "page"
	// MetadataKeyChunkIndex is the key for the chunk ordinal inside its document.
	MetadataKeyChunkIndex = "chunk_index"
	// MetadataKeyStartOffset is the key for the rune offset of the chunk in the extracted text.
	MetadataKeyStartOffset = "start_offset"
	// MetadataKeySection is the key for a section label such as a sheet name or mail subject.
	MetadataKeySection = "section"
	// MetadataKeyImage holds raw image bytes; it never survives metadata sanitization.
	MetadataKeyImage = "image"
)

// SourceDocument is a fetched document backed by a local file.
// It is immutable once created; Release removes any temporary storage.
type SourceDocument struct {
	// Origin is the URL or path the document came from.
	Origin string
	// Path is the local file holding the bytes.
	Path string
	// Extension is the lower-cased suffix including the dot, empty when unknown.
	Extension string
	Kind      Kind
	Size      int64
	// MIME is the sniffed media type, when known.
	MIME string

	releaseOnce sync.Once
	temporary   bool
	releaseErr  error
}

// NewSourceDocument describes a document. When temporary is true, Release deletes Path.
func NewSourceDocument(origin, path, ext string, kind Kind, size int64, mime string, temporary bool) *SourceDocument {
	return &SourceDocument{
		Origin:    origin,
		Path:      path,
		Extension: strings.ToLower(ext),
		Kind:      kind,
		Size:      size,
		MIME:      mime,
		temporary: temporary,
	}
}

// ReadAll returns the document bytes.
func (d *SourceDocument) ReadAll() ([]byte, error) {
	return os.ReadFile(d.Path)
}

// Temporary reports whether the backing file is owned by this document.
func (d *SourceDocument) Temporary() bool {
	return d.temporary
}

// Release deletes the temporary backing file. It is safe to call more than once.
func (d *SourceDocument) Release() error {
	if d == nil {
		return nil
	}
	d.releaseOnce.Do(func() {
		if !d.temporary || d.Path == "" {
			return
		}
		if err := os.Remove(d.Path); err != nil && !os.IsNotExist(err) {
			d.releaseErr = err
		}
	})
	return d.releaseErr
}

// Segment is one unit of extracted text such as a page, a sheet or the body of a mail.
type Segment struct {
	Text string
	// Page is 1-based; 0 means unknown.
	Page     int
	Metadata map[string]interface{}
}

// ExtractedText is the ordered output of a successful extraction.
type ExtractedText struct {
	Source   string
	Kind     Kind
	Strategy string
	Segments []Segment
}

// SegmentSeparator joins segments when the text is viewed as one string.
const SegmentSeparator = "\n\n"

// Text joins all segments in order.
func (e *ExtractedText) Text() string {
	parts := make([]string, 0, len(e.Segments))
	for _, s := range e.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, SegmentSeparator)
}

// IsBlank reports whether every segment is empty after trimming whitespace.
func (e *ExtractedText) IsBlank() bool {
	if e == nil {
		return true
	}
	for _, s := range e.Segments {
		if strings.TrimSpace(s.Text) != "" {
			return false
		}
	}
	return true
}
