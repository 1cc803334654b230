package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Confidence is the model's self-reported certainty.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// ParseConfidence normalizes case; unknown values return "".
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	case "low":
		return ConfidenceLow
	default:
		return ""
	}
}

// UnmarshalJSON accepts any casing and drops unknown values instead of failing.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*c = ""
		return nil
	}
	*c = ParseConfidence(s)
	return nil
}

// PageRef is a page label that models emit either as a number or as a string.
type PageRef string

// UnmarshalJSON accepts numbers, strings and null.
func (p *PageRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PageRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*p = PageRef(n.String())
		return nil
	}
	return fmt.Errorf("page must be a number or string, got %s", string(data))
}

// Reference points at the passage an answer relies on.
type Reference struct {
	Page    PageRef `json:"page,omitempty"`
	Section string  `json:"section,omitempty"`
	Excerpt string  `json:"excerpt,omitempty"`
}

// StructuredAnswer is the schema-constrained output requested from the LLM.
// When the output cannot be decoded only Answer is set.
type StructuredAnswer struct {
	Answer     string      `json:"answer"`
	Conditions []string    `json:"conditions,omitempty"`
	References []Reference `json:"references,omitempty"`
	Rationale  string      `json:"rationale,omitempty"`
	Confidence Confidence  `json:"confidence,omitempty"`
	// Structured is false when Answer holds the raw model output.
	Structured bool `json:"-"`
}

// Answer render formats.
const (
	FormatAnswer   = "answer"
	FormatDetailed = "detailed"
	FormatJSON     = "json"
)

// Render turns the answer into the string placed in the response.
func (a *StructuredAnswer) Render(format string) string {
	switch format {
	case FormatJSON:
		out, err := json.Marshal(a)
		if err != nil {
			return a.Answer
		}
		return string(out)
	case FormatDetailed:
		var sb strings.Builder
		sb.WriteString(strings.TrimSpace(a.Answer))
		if len(a.Conditions) > 0 {
			sb.WriteString("\nConditions: ")
			sb.WriteString(strings.Join(a.Conditions, "; "))
		}
		if a.Rationale != "" {
			sb.WriteString("\nRationale: ")
			sb.WriteString(a.Rationale)
		}
		for _, ref := range a.References {
			if ref.Excerpt == "" {
				continue
			}
			sb.WriteString("\nSource")
			if ref.Page != "" {
				sb.WriteString(" (page " + string(ref.Page) + ")")
			}
			sb.WriteString(": " + strconv.Quote(ref.Excerpt))
		}
		if a.Confidence != "" {
			sb.WriteString("\nConfidence: " + string(a.Confidence))
		}
		return sb.String()
	default:
		return strings.TrimSpace(a.Answer)
	}
}
