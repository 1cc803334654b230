package schema

// Chunk is a bounded span of extracted text, the unit of retrieval.
type Chunk struct {
	ID     string
	Text   string
	Source string
	// Page is 1-based; 0 means unknown.
	Page int
	// Start is the rune offset of Text inside ExtractedText.Text().
	Start int
	// Index is the position of the chunk in document order.
	Index int
	// Metadata only holds strings, numbers and booleans.
	Metadata map[string]interface{}
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// RetrievalResult is ordered by descending score; equal scores keep insertion order.
type RetrievalResult []ScoredChunk

// Chunks returns the chunks without scores.
func (r RetrievalResult) Chunks() []Chunk {
	out := make([]Chunk, len(r))
	for i, sc := range r {
		out[i] = sc.Chunk
	}
	return out
}

// SanitizeMetadata keeps only primitive values. Nil maps yield an empty map.
func SanitizeMetadata(md map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(md))
	for k, v := range md {
		if IsPrimitive(v) {
			out[k] = v
		}
	}
	return out
}

// IsPrimitive reports whether v is a string, bool or number.
func IsPrimitive(v interface{}) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
