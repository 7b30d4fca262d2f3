package biz

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunkerValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  *ChunkerConfig
		wantErr bool
	}{
		{
			name:   "nil config uses defaults",
			config: nil,
		},
		{
			name:   "valid config",
			config: &ChunkerConfig{ChunkSize: 100, ChunkOverlap: 10},
		},
		{
			name:    "zero chunk size",
			config:  &ChunkerConfig{ChunkSize: 0, ChunkOverlap: 0},
			wantErr: true,
		},
		{
			name:    "negative overlap",
			config:  &ChunkerConfig{ChunkSize: 100, ChunkOverlap: -1},
			wantErr: true,
		},
		{
			name:    "overlap equals size",
			config:  &ChunkerConfig{ChunkSize: 100, ChunkOverlap: 100},
			wantErr: true,
		},
		{
			name:    "overlap exceeds size",
			config:  &ChunkerConfig{ChunkSize: 100, ChunkOverlap: 150},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChunker(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestChunkPagesShortPage(t *testing.T) {
	c, err := NewChunker(&ChunkerConfig{ChunkSize: 500, ChunkOverlap: 50})
	require.NoError(t, err)

	chunks := c.ChunkPages("doc.pdf", []Page{{Number: 1, Text: "short page"}})

	require.Len(t, chunks, 1)
	assert.Equal(t, "doc.pdf__p1__c0", chunks[0].ID)
	assert.Equal(t, "short page", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].Start)
}

func TestChunkPagesEmptyPageYieldsNothing(t *testing.T) {
	c, err := NewChunker(nil)
	require.NoError(t, err)

	chunks := c.ChunkPages("doc.pdf", []Page{
		{Number: 1, Text: ""},
		{Number: 2, Text: "content"},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, "doc.pdf__p2__c0", chunks[0].ID)
}

func TestChunkPagesNeverCrossesPageBoundary(t *testing.T) {
	c, err := NewChunker(&ChunkerConfig{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)

	pages := []Page{
		{Number: 1, Text: repeatText("alpha ", 250)},
		{Number: 3, Text: repeatText("beta ", 120)},
	}
	chunks := c.ChunkPages("report.pdf", pages)

	for _, chunk := range chunks {
		assert.Contains(t, []int{1, 3}, chunk.Page)
		if chunk.Page == 1 {
			assert.NotContains(t, chunk.Content, "beta")
		} else {
			assert.NotContains(t, chunk.Content, "alpha")
		}
	}
	// Page numbering gaps are preserved, not renumbered.
	assert.Equal(t, "report.pdf__p3__c0", chunks[len(chunks)-2].ID)
}

func TestChunkPagesIDsAreSequential(t *testing.T) {
	c, err := NewChunker(&ChunkerConfig{ChunkSize: 100, ChunkOverlap: 20})
	require.NoError(t, err)

	chunks := c.ChunkPages("doc", []Page{{Number: 1, Text: repeatText("x", 300)}})

	require.True(t, len(chunks) > 1)
	assert.Equal(t, []string{"doc__p1__c0", "doc__p1__c1", "doc__p1__c2", "doc__p1__c3"}[:len(chunks)], chunkIDs(chunks))
}

// Dropping each chunk's leading overlap and concatenating the rest must
// reproduce the original page text exactly.
func TestChunkReconstruction(t *testing.T) {
	const size, overlap = 100, 20
	c, err := NewChunker(&ChunkerConfig{ChunkSize: size, ChunkOverlap: overlap})
	require.NoError(t, err)

	original := repeatText("The quick brown fox jumps over the lazy dog. ", 987)
	chunks := c.ChunkPages("doc", []Page{{Number: 1, Text: original}})
	require.True(t, len(chunks) > 1)

	var sb strings.Builder
	for i, chunk := range chunks {
		runes := []rune(chunk.Content)
		if i == 0 {
			sb.WriteString(chunk.Content)
			continue
		}
		sb.WriteString(string(runes[overlap:]))
	}
	assert.Equal(t, original, sb.String())

	// Overlap property: each chunk's tail is the next chunk's head.
	for i := 0; i+1 < len(chunks); i++ {
		cur := []rune(chunks[i].Content)
		next := []rune(chunks[i+1].Content)
		assert.Equal(t, string(cur[len(cur)-overlap:]), string(next[:overlap]))
	}
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "paper.pdf__p12__c3", ChunkID("paper.pdf", 12, 3))
}
