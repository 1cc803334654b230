package synthesizer

import (
	"strings"
	"unicode"
)

// Domain selects the instructions placed at the top of the prompt.
type Domain int

const (
	DomainGeneral Domain = iota
	DomainInsurance
	DomainLegal
	DomainHR
	DomainCompliance
)

func (d Domain) String() string {
	switch d {
	case DomainInsurance:
		return "insurance"
	case DomainLegal:
		return "legal"
	case DomainHR:
		return "hr"
	case DomainCompliance:
		return "compliance"
	default:
		return "general"
	}
}

// Classifier picks a domain for a question.
type Classifier interface {
	Classify(question string) Domain
}

// KeywordClassifier counts keyword hits per domain. The domain with the most
// hits wins; ties go to the earlier domain in Order; no hits means DomainGeneral.
type KeywordClassifier struct {
	Order    []Domain
	Keywords map[Domain][]string
}

// NewKeywordClassifier returns the default keyword sets.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		Order: []Domain{DomainInsurance, DomainLegal, DomainHR, DomainCompliance},
		Keywords: map[Domain][]string{
			DomainInsurance: {
				"policy", "premium", "claim", "coverage", "cover", "covered", "insured", "insurer",
				"deductible", "exclusion", "waiting period", "grace period", "sum insured",
				"hospitalization", "maternity", "pre-existing", "co-payment", "ncd", "ayush",
			},
			DomainLegal: {
				"contract", "clause", "agreement", "liability", "jurisdiction", "court",
				"indemnity", "breach", "termination", "arbitration", "statute", "plaintiff",
			},
			DomainHR: {
				"employee", "employer", "leave", "salary", "payroll", "benefits", "onboarding",
				"appraisal", "resignation", "notice period", "probation", "hr",
			},
			DomainCompliance: {
				"compliance", "regulation", "regulatory", "audit", "gdpr", "kyc", "aml",
				"reporting requirement", "irdai", "sanction", "disclosure", "hipaa",
			},
		},
	}
}

// Classify matches keywords on word boundaries, case-insensitively.
func (k *KeywordClassifier) Classify(question string) Domain {
	text := " " + normalizeWords(question) + " "
	best, bestHits := DomainGeneral, 0
	for _, d := range k.Order {
		hits := 0
		for _, kw := range k.Keywords[d] {
			hits += strings.Count(text, " "+kw+" ")
		}
		if hits > bestHits {
			best, bestHits = d, hits
		}
	}
	return best
}

// normalizeWords lowercases and replaces punctuation other than hyphens with spaces.
func normalizeWords(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	return strings.Join(fields, " ")
}
