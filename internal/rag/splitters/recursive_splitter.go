package splitters

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"unicode"
	"unicode/utf8"

	"docqa/internal/rag/interfaces"
	"docqa/internal/rag/schema"

	"github.com/google/uuid"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var (
	// ErrInvalidOptions is returned for a non-positive size or an overlap outside [0, size).
	ErrInvalidOptions = errors.New("invalid chunking options")
	// ErrEmptyText is returned when there is nothing to split.
	ErrEmptyText = errors.New("no text to split")
)

// sentenceEnd matches terminal punctuation, optional closing quotes or brackets, and the following whitespace.
var sentenceEnd = regexp.MustCompile(`[.!?]["')\]]*\s+`)

type level int

const (
	levelParagraph level = iota
	levelLine
	levelSentence
	levelWord
	levelChar
)

// RecursiveSplitter cuts text at the coarsest boundary that keeps pieces within
// the chunk size (paragraph, line, sentence, word, character), then merges
// pieces greedily with a bounded overlap. Sizes are counted in runes.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
}

// Option configures a RecursiveSplitter.
type Option func(*RecursiveSplitter)

// WithChunkSize sets the maximum chunk length in runes.
func WithChunkSize(size int) Option {
	return func(s *RecursiveSplitter) { s.chunkSize = size }
}

// WithOverlap sets the maximum number of runes shared by consecutive chunks.
func WithOverlap(overlap int) Option {
	return func(s *RecursiveSplitter) { s.chunkOverlap = overlap }
}

// NewRecursiveSplitter validates the options; defaults are 1000 and 200.
func NewRecursiveSplitter(opts ...Option) (*RecursiveSplitter, error) {
	s := &RecursiveSplitter{chunkSize: DefaultChunkSize, chunkOverlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidOptions, s.chunkSize)
	}
	if s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidOptions, s.chunkOverlap, s.chunkSize)
	}
	return s, nil
}

// piece is a span of the joined text, in runes.
type piece struct {
	start int
	text  []rune
}

// Split returns chunks in document order. Start offsets are rune offsets into text.Text().
func (s *RecursiveSplitter) Split(ctx context.Context, text *schema.ExtractedText) ([]schema.Chunk, error) {
	if text.IsBlank() {
		return nil, ErrEmptyText
	}

	joined := []rune(text.Text())
	segStarts := segmentStarts(text)

	pieces, err := s.splitRecursive(ctx, joined, 0, levelParagraph)
	if err != nil {
		return nil, err
	}
	spans, err := s.merge(ctx, pieces, len(joined))
	if err != nil {
		return nil, err
	}

	chunks := make([]schema.Chunk, 0, len(spans))
	for _, sp := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start, end := trimSpan(joined, sp[0], sp[1])
		if start >= end {
			continue
		}
		// A span whose leading whitespace swallowed the overlap starts where its
		// predecessor does and extends it, so it replaces the predecessor.
		index := len(chunks)
		if index > 0 && start <= chunks[index-1].Start {
			index--
			chunks = chunks[:index]
		}

		segment := text.Segments[segmentAt(segStarts, start)]
		md := schema.SanitizeMetadata(segment.Metadata)
		md[schema.MetadataKeySource] = text.Source
		md[schema.MetadataKeyPage] = segment.Page
		md[schema.MetadataKeyChunkIndex] = index
		md[schema.MetadataKeyStartOffset] = start

		chunks = append(chunks, schema.Chunk{
			ID:       uuid.New().String(),
			Text:     string(joined[start:end]),
			Source:   text.Source,
			Page:     segment.Page,
			Start:    start,
			Index:    index,
			Metadata: md,
		})
	}
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}
	return chunks, nil
}

// splitRecursive tiles runes with pieces no longer than the chunk size.
func (s *RecursiveSplitter) splitRecursive(ctx context.Context, runes []rune, offset int, lvl level) ([]piece, error) {
	if len(runes) <= s.chunkSize {
		return []piece{{start: offset, text: runes}}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lvl == levelChar {
		var out []piece
		for i := 0; i < len(runes); i += s.chunkSize {
			end := min(i+s.chunkSize, len(runes))
			out = append(out, piece{start: offset + i, text: runes[i:end]})
		}
		return out, nil
	}

	var out []piece
	pos := 0
	for _, part := range cut(runes, lvl) {
		sub, err := s.splitRecursive(ctx, part, offset+pos, lvl+1)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
		pos += len(part)
	}
	return out, nil
}

// cut splits runes after each separator of the given level. The parts tile the input.
func cut(runes []rune, lvl level) [][]rune {
	var ends []int
	switch lvl {
	case levelParagraph:
		ends = afterRunes(runes, []rune("\n\n"))
	case levelLine:
		ends = afterRunes(runes, []rune("\n"))
	case levelSentence:
		s := string(runes)
		// Rune positions are counted forward from the previous match.
		byteEnd, runeEnd := 0, 0
		for _, m := range sentenceEnd.FindAllStringIndex(s, -1) {
			runeEnd += utf8.RuneCountInString(s[byteEnd:m[1]])
			byteEnd = m[1]
			ends = append(ends, runeEnd)
		}
	case levelWord:
		ends = afterRunes(runes, []rune(" "))
	}

	parts := make([][]rune, 0, len(ends)+1)
	prev := 0
	for _, e := range ends {
		if e > prev && e < len(runes) {
			parts = append(parts, runes[prev:e])
			prev = e
		}
	}
	return append(parts, runes[prev:])
}

// afterRunes returns the index just past each non-overlapping occurrence of sep.
func afterRunes(runes, sep []rune) []int {
	var out []int
	for i := 0; i+len(sep) <= len(runes); {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			i += len(sep)
			out = append(out, i)
			continue
		}
		i++
	}
	return out
}

// merge groups consecutive pieces into [start, end) spans of at most chunkSize
// runes. Each span after the first starts at the earliest piece boundary that
// repeats no more than chunkOverlap runes of its predecessor.
func (s *RecursiveSplitter) merge(ctx context.Context, pieces []piece, total int) ([][2]int, error) {
	startOf := func(i int) int {
		if i == len(pieces) {
			return total
		}
		return pieces[i].start
	}

	var spans [][2]int
	for i := 0; i < len(pieces); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		j, length := i, 0
		for j < len(pieces) && length+len(pieces[j].text) <= s.chunkSize {
			length += len(pieces[j].text)
			j++
		}
		spans = append(spans, [2]int{startOf(i), startOf(j)})
		if j == len(pieces) {
			break
		}
		k := j
		for k-1 > i && startOf(j)-startOf(k-1) <= s.chunkOverlap {
			k--
		}
		i = k
	}
	return spans, nil
}

// trimSpan narrows [start, end) to exclude leading and trailing whitespace.
func trimSpan(runes []rune, start, end int) (int, int) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return start, end
}

// segmentStarts returns the rune offset of each segment inside the joined text.
func segmentStarts(text *schema.ExtractedText) []int {
	sepLen := utf8.RuneCountInString(schema.SegmentSeparator)
	starts := make([]int, len(text.Segments))
	pos := 0
	for i, seg := range text.Segments {
		starts[i] = pos
		pos += utf8.RuneCountInString(seg.Text) + sepLen
	}
	return starts
}

// segmentAt finds the segment whose span contains offset.
func segmentAt(starts []int, offset int) int {
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset })
	if i == 0 {
		return 0
	}
	return i - 1
}

var _ interfaces.Splitter = (*RecursiveSplitter)(nil)
