package ingest

import (
	"strings"
	"unicode/utf8"
)

// separators is the priority order tried when splitting text: paragraph
// break, line break, word boundary, and finally a hard character cut.
var separators = []string{"\n\n", "\n", " ", ""}

// Splitter splits document text into overlapping chunks. Splitting is
// recursive: it tries the largest separator that keeps each piece within the
// chunk size, falling through to smaller separators only for oversized
// pieces. The same input with the same settings always yields the same
// chunk sequence.
type Splitter struct {
	// ChunkSize is the maximum chunk length in characters, overlap included.
	ChunkSize int

	// ChunkOverlap is the number of characters each chunk shares with the
	// end of its predecessor.
	ChunkOverlap int
}

// NewSplitter constructs a Splitter, applying defaults for zero values and
// clamping an overlap that would swallow the whole chunk.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &Splitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
}

// Split returns the chunk sequence for text. Each chunk after the first
// begins with the last ChunkOverlap characters of the previous chunk,
// except where the text is too short for a full overlap. All lengths are
// counted in runes so multibyte text is never cut mid-character.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Pieces are built to ChunkSize-ChunkOverlap so the prepended overlap
	// never pushes a chunk past ChunkSize.
	target := s.ChunkSize - s.ChunkOverlap
	if target <= 0 {
		target = s.ChunkSize
	}

	pieces := split(text, target, separators)

	if s.ChunkOverlap == 0 || len(pieces) < 2 {
		return pieces
	}

	chunks := make([]string, 0, len(pieces))
	for i, piece := range pieces {
		if i == 0 {
			chunks = append(chunks, piece)
			continue
		}
		chunks = append(chunks, overlapTail(chunks[i-1], s.ChunkOverlap)+piece)
	}
	return chunks
}

// overlapTail returns the last n runes of s, or all of s when shorter.
func overlapTail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// split recursively cuts text into pieces of at most target runes, trying
// each separator in order and merging adjacent small parts back together.
func split(text string, target int, seps []string) []string {
	if utf8.RuneCountInString(text) <= target {
		return []string{text}
	}

	sep := seps[0]
	if sep == "" {
		// No separator left: hard cut at the rune boundary.
		runes := []rune(text)
		var out []string
		for start := 0; start < len(runes); start += target {
			end := start + target
			if end > len(runes) {
				end = len(runes)
			}
			out = append(out, string(runes[start:end]))
		}
		return out
	}

	parts := strings.Split(text, sep)
	sepLen := utf8.RuneCountInString(sep)
	var out []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, part := range parts {
		if part == "" {
			continue
		}
		partLen := utf8.RuneCountInString(part)
		if partLen > target {
			flush()
			out = append(out, split(part, target, seps[1:])...)
			continue
		}
		need := partLen
		if curLen > 0 {
			need += sepLen
		}
		if curLen+need > target {
			flush()
		}
		if curLen > 0 {
			cur.WriteString(sep)
			curLen += sepLen
		}
		cur.WriteString(part)
		curLen += partLen
	}
	flush()

	return out
}
