package synthesizer

import (
	"fmt"
	"strings"

	"docqa/internal/rag/schema"
)

var domainInstructions = map[Domain]string{
	DomainInsurance: "You are an insurance policy analyst. Focus on coverage, exclusions, waiting periods, " +
		"limits, sub-limits, grace periods and the conditions a claim must satisfy.",
	DomainLegal: "You are a legal document analyst. Focus on obligations, rights, defined terms, " +
		"liabilities, termination conditions and governing clauses.",
	DomainHR: "You are an HR policy analyst. Focus on eligibility, entitlements, leave rules, " +
		"notice periods and the procedures employees must follow.",
	DomainCompliance: "You are a compliance analyst. Focus on regulatory requirements, deadlines, " +
		"reporting duties and penalties for non-compliance.",
	DomainGeneral: "You are a careful document analyst. Answer using only the facts stated in the document.",
}

const schemaDirective = `Respond with a single JSON object and nothing else, using exactly these fields:
{
  "answer": "direct answer to the question in one or two sentences",
  "conditions": ["each condition, limit or exception that applies"],
  "references": [{"page": "page number", "section": "section or clause name", "excerpt": "short verbatim quote"}],
  "rationale": "how the context supports the answer",
  "confidence": "High, Medium or Low"
}
If the context does not contain the answer, say so in "answer" and set "confidence" to "Low".`

// buildPrompt lays out instructions, the numbered context blocks, the question
// and the output schema. Blocks are added in rank order until the token budget
// is spent; the first block is always kept. budget <= 0 disables the limit.
func buildPrompt(domain Domain, question string, passages schema.RetrievalResult, counter *TokenCounter, budget int) (string, int) {
	var sb strings.Builder
	sb.WriteString(domainInstructions[domain])
	sb.WriteString("\n\nDocument context:\n")

	used, included := 0, 0
	for _, sc := range passages {
		block := contextBlock(included+1, sc.Chunk)
		cost := counter.Count(block)
		if budget > 0 && included > 0 && used+cost > budget {
			break
		}
		sb.WriteString(block)
		used += cost
		included++
	}
	if included == 0 {
		sb.WriteString("(no relevant passages were found)\n")
	}

	sb.WriteString("\nQuestion: ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n\n")
	sb.WriteString(schemaDirective)
	return sb.String(), included
}

func contextBlock(n int, c schema.Chunk) string {
	header := fmt.Sprintf("[%d]", n)
	if c.Page > 0 {
		header += fmt.Sprintf(" (page %d)", c.Page)
	}
	if section, ok := c.Metadata[schema.MetadataKeySection].(string); ok && section != "" {
		header += " " + section
	}
	return header + "\n" + strings.TrimSpace(c.Text) + "\n---\n"
}
