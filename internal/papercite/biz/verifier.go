package biz

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kart-io/logger"

	"github.com/papercite/papercite/internal/papercite/store"
	"github.com/papercite/papercite/internal/pkg/textutil"
)

// Unverified-quote policies.
const (
	// PolicyRemove deletes unverified quotes and their citations.
	// Fail-closed: an unverifiable quote is never presented as fact.
	PolicyRemove = "remove"
	// PolicyFlag keeps unverified quotes but marks them in place.
	PolicyFlag = "flag"
)

// RemovedQuoteMarker replaces quotes deleted under PolicyRemove.
const RemovedQuoteMarker = "[unverified quote removed]"

// unverifiedNote is appended to an answer once when any quote was removed.
const unverifiedNote = "Note: some quoted text could not be verified against the source documents and was removed."

// VerifierConfig configures quote verification.
type VerifierConfig struct {
	// Threshold is the minimum similarity ratio for a fuzzy match.
	Threshold float64
	// Policy is what to do with unverified quotes: PolicyRemove
	// (default) or PolicyFlag.
	Policy string
}

// DefaultVerifierConfig returns the default verification parameters.
func DefaultVerifierConfig() *VerifierConfig {
	return &VerifierConfig{
		Threshold: 0.85,
		Policy:    PolicyRemove,
	}
}

// VerificationReport summarizes what the verifier did to an answer.
type VerificationReport struct {
	// Quotes is the number of quoted spans found in the answer.
	Quotes int `json:"quotes"`
	// Verified is the number of quotes matched to a source chunk.
	Verified int `json:"verified"`
	// Unverified lists the quotes that matched no source.
	Unverified []string `json:"unverified,omitempty"`
	// AllVerified is true when every quote checked out.
	AllVerified bool `json:"all_verified"`
}

// Verifier checks every quoted span in an answer against the retrieved
// source text and edits the answer per policy.
type Verifier struct {
	config *VerifierConfig
}

// NewVerifier creates a verifier.
func NewVerifier(config *VerifierConfig) (*Verifier, error) {
	if config == nil {
		config = DefaultVerifierConfig()
	}
	if config.Threshold <= 0 || config.Threshold > 1 {
		return nil, fmt.Errorf("%w: verification threshold must be in (0, 1], got %v", ErrInvalidConfig, config.Threshold)
	}
	switch config.Policy {
	case "":
		config.Policy = PolicyRemove
	case PolicyRemove, PolicyFlag:
	default:
		return nil, fmt.Errorf("%w: unknown verification policy %q", ErrInvalidConfig, config.Policy)
	}
	return &Verifier{config: config}, nil
}

var (
	doubleQuoteRegex = regexp.MustCompile(`"([^"]+)"`)
	// Single-quoted spans shorter than 10 characters are skipped so
	// contractions don't register as quotes.
	singleQuoteRegex = regexp.MustCompile(`'([^']{10,})'`)
)

// ExtractQuotes returns every quoted span in the text.
func ExtractQuotes(text string) []string {
	var quotes []string
	for _, m := range doubleQuoteRegex.FindAllStringSubmatch(text, -1) {
		quotes = append(quotes, m[1])
	}
	for _, m := range singleQuoteRegex.FindAllStringSubmatch(text, -1) {
		quotes = append(quotes, m[1])
	}
	return quotes
}

// Verify checks the answer's quotes against the source chunks, edits the
// text per policy, stamps each citation's status, and drops citations
// whose snippet failed verification. A refused answer passes through
// untouched. Verification mismatches are data, not errors.
func (v *Verifier) Verify(answer *Answer, sources []*store.SearchResult) *VerificationReport {
	if answer.Refused {
		return &VerificationReport{AllVerified: true}
	}

	quotes := ExtractQuotes(answer.Text)
	report := &VerificationReport{
		Quotes:      len(quotes),
		AllVerified: true,
	}
	if len(quotes) == 0 {
		// Nothing to verify; citations without quotes keep their
		// chunk-derived snippets, which come from source text directly.
		for _, c := range answer.Citations {
			c.Status = CitationVerified
		}
		return report
	}

	unverified := make(map[string]struct{})
	for _, quote := range quotes {
		if v.quoteMatchesSource(quote, sources) {
			report.Verified++
			continue
		}
		if _, ok := unverified[quote]; !ok {
			unverified[quote] = struct{}{}
			report.Unverified = append(report.Unverified, quote)
		}
	}

	if len(unverified) == 0 {
		for _, c := range answer.Citations {
			c.Status = CitationVerified
		}
		return report
	}

	report.AllVerified = false
	logger.Warnw("answer contains unverified quotes",
		"total", report.Quotes,
		"unverified", len(report.Unverified),
		"policy", v.config.Policy,
	)

	answer.Text = v.editText(answer.Text, report.Unverified)
	answer.Citations = v.editCitations(answer.Citations, unverified)

	if v.config.Policy == PolicyRemove {
		answer.Text = strings.TrimRight(answer.Text, "\n") + "\n\n" + unverifiedNote
	}

	return report
}

// quoteMatchesSource reports whether the quote appears in any source
// chunk, exactly or within the fuzzy-match tolerance.
func (v *Verifier) quoteMatchesSource(quote string, sources []*store.SearchResult) bool {
	normalizedQuote := textutil.NormalizeText(quote)
	if normalizedQuote == "" {
		return false
	}

	for _, src := range sources {
		normalizedSource := textutil.NormalizeText(src.Content)

		if strings.Contains(normalizedSource, normalizedQuote) {
			return true
		}

		if v.slidingWindowMatch(normalizedQuote, normalizedSource) {
			return true
		}
	}
	return false
}

// slidingWindowMatch compares the quote against every quote-length window
// of the source, looking for one within the similarity threshold.
func (v *Verifier) slidingWindowMatch(quote, source string) bool {
	quoteRunes := []rune(quote)
	sourceRunes := []rune(source)
	if len(quoteRunes) > len(sourceRunes) {
		return false
	}

	for i := 0; i+len(quoteRunes) <= len(sourceRunes); i++ {
		window := string(sourceRunes[i : i+len(quoteRunes)])
		if textutil.SimilarityRatio(quote, window) >= v.config.Threshold {
			return true
		}
	}
	return false
}

// editText removes or flags each unverified quote in the answer text,
// including any canonical citation marker built around it.
func (v *Verifier) editText(text string, unverified []string) string {
	for _, quote := range unverified {
		// Strip whole citation markers carrying the failed snippet first,
		// so the replacement below cannot leave marker fragments behind.
		markerTail := fmt.Sprintf(", %q]", quote)
		for {
			idx := strings.Index(text, markerTail)
			if idx < 0 {
				break
			}
			start := strings.LastIndex(text[:idx], "[Source:")
			if start < 0 {
				break
			}
			text = text[:start] + text[idx+len(markerTail):]
		}

		replacement := RemovedQuoteMarker
		if v.config.Policy == PolicyFlag {
			replacement = `"` + quote + `" [unverified]`
		}
		// The quote came out of the answer text verbatim, so the search
		// key is the literal quoted form, not the %q escape of it.
		text = strings.ReplaceAll(text, `"`+quote+`"`, replacement)
		text = strings.ReplaceAll(text, "'"+quote+"'", replacement)
	}
	return text
}

// editCitations stamps statuses and, under PolicyRemove, drops citations
// whose snippet failed verification so every surviving citation is backed
// by source text.
func (v *Verifier) editCitations(citations []*Citation, unverified map[string]struct{}) []*Citation {
	kept := make([]*Citation, 0, len(citations))
	for _, c := range citations {
		if _, bad := unverified[c.Snippet]; !bad {
			c.Status = CitationVerified
			kept = append(kept, c)
			continue
		}
		if v.config.Policy == PolicyFlag {
			c.Status = CitationFlagged
			kept = append(kept, c)
			continue
		}
		c.Status = CitationRemoved
	}
	return kept
}
