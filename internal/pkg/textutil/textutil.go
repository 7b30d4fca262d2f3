// Package textutil provides text processing helpers shared by the
// ingestion and answering pipelines.
package textutil

import (
	"crypto/md5"
	"encoding/hex"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// CosineSimilarity computes the cosine similarity of two vectors.
// The result is in [-1, 1]; mismatched or empty vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HashString computes the MD5 hash of a string, hex encoded.
func HashString(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

// TruncateString truncates a string to at most maxLen Unicode characters.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// SplitIntoChunks splits text into overlapping chunks. chunkSize and
// overlap are measured in Unicode characters, so multi-byte text never
// gets cut mid-character. The final chunk may be shorter than chunkSize;
// a chunk is never empty.
func SplitIntoChunks(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	step := chunkSize - overlap

	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeText lowercases text, collapses all whitespace runs to single
// spaces, and trims the ends. Quote comparison works on normalized text so
// that case and formatting differences do not fail verification.
func NormalizeText(text string) string {
	text = strings.ToLower(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SimilarityRatio computes the similarity of two strings as
// 2*M / (len(a)+len(b)), where M is the total number of matched
// characters across recursively-found longest common substrings. Both
// identical strings score 1.0, disjoint strings 0.0.
func SimilarityRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	matches := matchingRunes(ra, rb)
	return 2.0 * float64(matches) / float64(total)
}

// matchingRunes counts matched characters: it finds the longest common
// substring, then recurses into the unmatched pieces on either side.
func matchingRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	aStart, bStart, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}

	matches := size
	matches += matchingRunes(a[:aStart], b[:bStart])
	matches += matchingRunes(a[aStart+size:], b[bStart+size:])
	return matches
}

// longestCommonSubstring returns the start offsets and length of the
// longest run of characters common to a and b.
func longestCommonSubstring(a, b []rune) (aStart, bStart, size int) {
	// prev[j] holds the match run length ending at a[i-1], b[j-1].
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > size {
					size = curr[j]
					aStart = i - size
					bStart = j - size
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}

	return aStart, bStart, size
}

// ContainsString reports whether a string slice contains an element.
func ContainsString(slice []string, item string) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}
