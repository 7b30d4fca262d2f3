package biz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifierValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  *VerifierConfig
		wantErr bool
	}{
		{name: "nil config", config: nil},
		{name: "flag policy", config: &VerifierConfig{Threshold: 0.9, Policy: PolicyFlag}},
		{name: "empty policy defaults to remove", config: &VerifierConfig{Threshold: 0.85}},
		{name: "zero threshold", config: &VerifierConfig{Threshold: 0}, wantErr: true},
		{name: "threshold above one", config: &VerifierConfig{Threshold: 1.5}, wantErr: true},
		{name: "unknown policy", config: &VerifierConfig{Threshold: 0.85, Policy: "shrug"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, v)
		})
	}
}

func TestExtractQuotes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "double quotes",
			text: `He said "hello there" and "goodbye".`,
			want: []string{"hello there", "goodbye"},
		},
		{
			name: "short single quotes skipped",
			text: `It's a 'test' of contractions.`,
			want: nil,
		},
		{
			name: "long single quotes kept",
			text: `The report noted 'revenue velocity improved' last year.`,
			want: []string{"revenue velocity improved"},
		},
		{
			name: "no quotes",
			text: "Nothing quoted here.",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractQuotes(tt.text))
		})
	}
}

func TestVerifyExactQuotePasses(t *testing.T) {
	v, err := NewVerifier(nil)
	require.NoError(t, err)

	answer := &Answer{
		Text: `The report states "sales grew by 25%" in the third quarter.`,
		Citations: []*Citation{
			{DocID: "doc.pdf", Page: 1, Snippet: "sales grew by 25%"},
		},
	}

	report := v.Verify(answer, salesResults())

	assert.True(t, report.AllVerified)
	assert.Equal(t, 1, report.Quotes)
	assert.Equal(t, 1, report.Verified)
	assert.Contains(t, answer.Text, `"sales grew by 25%"`)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, CitationVerified, answer.Citations[0].Status)
}

// Case and whitespace differences are normalized away before matching.
func TestVerifyNormalizedMatch(t *testing.T) {
	v, err := NewVerifier(nil)
	require.NoError(t, err)

	answer := &Answer{Text: `It says "Sales  GREW by 25%" there.`}
	report := v.Verify(answer, salesResults())

	assert.True(t, report.AllVerified)
}

// A quote with a small transcription error still verifies through the
// fuzzy sliding-window match.
func TestVerifyFuzzyMatch(t *testing.T) {
	v, err := NewVerifier(&VerifierConfig{Threshold: 0.85, Policy: PolicyRemove})
	require.NoError(t, err)

	answer := &Answer{Text: `It says "sales grew by 25% in Q3!" there.`}
	report := v.Verify(answer, salesResults())

	assert.True(t, report.AllVerified, "one-character drift should stay within the 0.85 tolerance")
}

// An invented quote is removed from the text, its citation dropped, and
// the advisory note appended.
func TestVerifyRemovesInventedQuote(t *testing.T) {
	v, err := NewVerifier(nil)
	require.NoError(t, err)

	answer := &Answer{
		Text: `True: "sales grew by 25%". False: "profits doubled overnight".`,
		Citations: []*Citation{
			{DocID: "doc.pdf", Page: 1, Snippet: "sales grew by 25%"},
			{DocID: "doc.pdf", Page: 1, Snippet: "profits doubled overnight"},
		},
	}

	report := v.Verify(answer, salesResults())

	assert.False(t, report.AllVerified)
	assert.Equal(t, 2, report.Quotes)
	assert.Equal(t, 1, report.Verified)
	assert.Equal(t, []string{"profits doubled overnight"}, report.Unverified)

	assert.NotContains(t, answer.Text, "profits doubled overnight")
	assert.Contains(t, answer.Text, RemovedQuoteMarker)
	assert.Contains(t, answer.Text, unverifiedNote)
	assert.Contains(t, answer.Text, `"sales grew by 25%"`)

	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "sales grew by 25%", answer.Citations[0].Snippet)
}

// A quote containing backslashes is excised verbatim; escaping in the
// replacement key must not let the quote survive next to the removal note.
func TestVerifyRemovesQuoteWithBackslash(t *testing.T) {
	v, err := NewVerifier(nil)
	require.NoError(t, err)

	answer := &Answer{
		Text: `The doc says "totally \invented claim" here.`,
	}

	report := v.Verify(answer, salesResults())

	assert.False(t, report.AllVerified)
	assert.Equal(t, []string{`totally \invented claim`}, report.Unverified)

	assert.NotContains(t, answer.Text, `totally \invented claim`)
	assert.Contains(t, answer.Text, RemovedQuoteMarker)
	assert.Contains(t, answer.Text, unverifiedNote)
}

// Removing an unverified snippet also removes the canonical citation
// marker wrapped around it, leaving no marker fragments.
func TestVerifyRemovesMarkerAroundFailedSnippet(t *testing.T) {
	v, err := NewVerifier(nil)
	require.NoError(t, err)

	answer := &Answer{
		Text: `Profits soared [Source: doc.pdf, Page 1, "profits doubled overnight"].`,
		Citations: []*Citation{
			{DocID: "doc.pdf", Page: 1, Snippet: "profits doubled overnight"},
		},
	}

	report := v.Verify(answer, salesResults())

	assert.False(t, report.AllVerified)
	assert.NotContains(t, answer.Text, "[Source:")
	assert.NotContains(t, answer.Text, "profits doubled overnight")
	assert.Empty(t, answer.Citations)
}

func TestVerifyFlagPolicyKeepsQuote(t *testing.T) {
	v, err := NewVerifier(&VerifierConfig{Threshold: 0.85, Policy: PolicyFlag})
	require.NoError(t, err)

	answer := &Answer{
		Text: `False: "profits doubled overnight".`,
		Citations: []*Citation{
			{DocID: "doc.pdf", Page: 1, Snippet: "profits doubled overnight"},
		},
	}

	report := v.Verify(answer, salesResults())

	assert.False(t, report.AllVerified)
	assert.Contains(t, answer.Text, `"profits doubled overnight" [unverified]`)
	assert.NotContains(t, answer.Text, unverifiedNote)

	require.Len(t, answer.Citations, 1)
	assert.Equal(t, CitationFlagged, answer.Citations[0].Status)
}

func TestVerifyRefusedAnswerPassesThrough(t *testing.T) {
	v, err := NewVerifier(nil)
	require.NoError(t, err)

	answer := &Answer{Text: RefusalText, Refused: true}
	report := v.Verify(answer, nil)

	assert.True(t, report.AllVerified)
	assert.Equal(t, RefusalText, answer.Text)
}

func TestVerifyNoQuotesStampsCitations(t *testing.T) {
	v, err := NewVerifier(nil)
	require.NoError(t, err)

	answer := &Answer{
		Text: "Sales went up in the third quarter.",
		Citations: []*Citation{
			{DocID: "doc.pdf", Page: 1, Snippet: "The sales grew by 25% in Q3."},
		},
	}

	report := v.Verify(answer, salesResults())

	assert.True(t, report.AllVerified)
	assert.Equal(t, 0, report.Quotes)
	assert.Equal(t, CitationVerified, answer.Citations[0].Status)
}
