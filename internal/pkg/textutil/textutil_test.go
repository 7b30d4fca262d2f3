package textutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/papercite/papercite/internal/pkg/textutil"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{
			name:     "identical vectors",
			a:        []float32{1.0, 0.0, 0.0},
			b:        []float32{1.0, 0.0, 0.0},
			expected: 1.0,
		},
		{
			name:     "orthogonal vectors",
			a:        []float32{1.0, 0.0, 0.0},
			b:        []float32{0.0, 1.0, 0.0},
			expected: 0.0,
		},
		{
			name:     "opposite vectors",
			a:        []float32{1.0, 0.0, 0.0},
			b:        []float32{-1.0, 0.0, 0.0},
			expected: -1.0,
		},
		{
			name:     "empty vectors",
			a:        []float32{},
			b:        []float32{},
			expected: 0.0,
		},
		{
			name:     "length mismatch",
			a:        []float32{1.0, 2.0},
			b:        []float32{1.0},
			expected: 0.0,
		},
		{
			name:     "zero vector",
			a:        []float32{0.0, 0.0},
			b:        []float32{1.0, 1.0},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := textutil.CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.expected, result, 0.0001)
		})
	}
}

func TestSplitIntoChunks(t *testing.T) {
	t.Run("short text yields a single chunk", func(t *testing.T) {
		chunks := textutil.SplitIntoChunks("hello world", 500, 50)
		assert.Equal(t, []string{"hello world"}, chunks)
	})

	t.Run("empty text yields no chunks", func(t *testing.T) {
		assert.Empty(t, textutil.SplitIntoChunks("", 500, 50))
	})

	t.Run("chunks overlap by the configured amount", func(t *testing.T) {
		text := strings.Repeat("a", 10) + strings.Repeat("b", 10)
		chunks := textutil.SplitIntoChunks(text, 10, 3)

		assert.True(t, len(chunks) >= 2)
		for i := 1; i < len(chunks); i++ {
			prev := []rune(chunks[i-1])
			curr := []rune(chunks[i])
			tail := string(prev[len(prev)-3:])
			head := string(curr[:3])
			assert.Equal(t, tail, head, "chunk %d should start with the previous chunk's tail", i)
		}
	})

	t.Run("chunks are rune-based for multi-byte text", func(t *testing.T) {
		text := strings.Repeat("日本語のテキスト", 20)
		chunks := textutil.SplitIntoChunks(text, 30, 5)
		for _, c := range chunks {
			assert.True(t, len([]rune(c)) <= 30)
			assert.NotEmpty(t, c)
		}
	})

	t.Run("concatenation with overlap removed reconstructs the text", func(t *testing.T) {
		text := "The quick brown fox jumps over the lazy dog, again and again and again."
		overlap := 7
		chunks := textutil.SplitIntoChunks(text, 20, overlap)

		var sb strings.Builder
		for i, c := range chunks {
			runes := []rune(c)
			if i == 0 {
				sb.WriteString(c)
				continue
			}
			sb.WriteString(string(runes[overlap:]))
		}
		assert.Equal(t, text, sb.String())
	})

	t.Run("no empty final chunk", func(t *testing.T) {
		// Text length is an exact multiple of the step size.
		text := strings.Repeat("x", 30)
		chunks := textutil.SplitIntoChunks(text, 10, 0)
		for _, c := range chunks {
			assert.NotEmpty(t, c)
		}
	})
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"collapses whitespace", "a  b\t\nc", "a b c"},
		{"trims", "  padded  ", "padded"},
		{"empty", "", ""},
		{"mixed", "  Sales  GREW\nby 25%  ", "sales grew by 25%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.NormalizeText(tt.input))
		})
	}
}

func TestSimilarityRatio(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		min  float64
		max  float64
	}{
		{"identical", "sales grew by 25%", "sales grew by 25%", 1.0, 1.0},
		{"both empty", "", "", 1.0, 1.0},
		{"disjoint", "abc", "xyz", 0.0, 0.0},
		{"near match", "sales grew by 25%", "sales grew by 25%.", 0.9, 1.0},
		{"one typo", "revenue increased sharply", "revenue increesed sharply", 0.85, 1.0},
		{"unrelated sentences", "the cat sat on the mat", "quarterly revenue projections", 0.0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := textutil.SimilarityRatio(tt.a, tt.b)
			assert.GreaterOrEqual(t, got, tt.min)
			assert.LessOrEqual(t, got, tt.max)
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "hello", textutil.TruncateString("hello", 10))
	assert.Equal(t, "hel", textutil.TruncateString("hello", 3))
	assert.Equal(t, "日本語", textutil.TruncateString("日本語のテキスト", 3))
}

func TestHashString(t *testing.T) {
	h1 := textutil.HashString("content")
	h2 := textutil.HashString("content")
	h3 := textutil.HashString("other")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 32)
}
