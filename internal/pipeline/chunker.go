package pipeline

import (
	"strings"
	"unicode/utf8"
)

// separators is the boundary-preference order for splitting: paragraph
// breaks first, then line breaks, then word breaks, then raw characters.
var separators = []string{"\n\n", "\n", " ", ""}

// Chunk is one bounded, overlapping segment of source text. Index is the
// global order of the chunk across the whole document; PageNumber is the
// 1-indexed page the chunk was cut from; Length counts characters, not
// bytes.
type Chunk struct {
	Index      int
	PageNumber int
	Text       string
	Length     int
}

// Chunker splits page text into overlapping fixed-size segments. Splitting
// is purely a function of (text, size, overlap): identical input always
// yields identical chunk boundaries and count.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a Chunker with the given target chunk size and
// overlap, both bounding the UTF-8 byte length of a chunk. Cut points
// always fall on rune boundaries, so every chunk is valid UTF-8.
// Overlap is clamped below size.
func NewChunker(size, overlap int) *Chunker {
	if size < 1 {
		size = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// ChunkPages splits each page independently and numbers the resulting
// chunks sequentially across the document, preserving source order.
func (c *Chunker) ChunkPages(pages []Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		for _, text := range c.splitText(page.Text, separators) {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				Index:      len(chunks),
				PageNumber: page.Number,
				Text:       text,
				Length:     utf8.RuneCountInString(text),
			})
		}
	}
	return chunks
}

// splitText recursively splits text at the most natural boundary available,
// then merges the pieces back into chunks no longer than the target size,
// seeding each chunk after the first with the tail of its predecessor.
func (c *Chunker) splitText(text string, seps []string) []string {
	if len(text) <= c.size {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	sep, rest := pickSeparator(text, seps)
	pieces := splitKeepSeparator(text, sep)

	// Pieces still longer than the chunk size fall through to the next,
	// less preferred separator.
	var flat []string
	for _, piece := range pieces {
		if len(piece) > c.size && len(rest) > 0 {
			flat = append(flat, c.splitText(piece, rest)...)
		} else {
			flat = append(flat, piece)
		}
	}

	return c.merge(flat)
}

// merge combines consecutive pieces into chunks of at most the target size.
// When a chunk closes, the next one starts with the previous chunk's last
// pieces up to the configured overlap, so context is preserved across
// chunk boundaries.
func (c *Chunker) merge(pieces []string) []string {
	var (
		chunks  []string
		current []string
		curLen  int
	)

	flush := func() {
		if curLen == 0 {
			return
		}
		chunk := strings.Join(current, "")
		chunks = append(chunks, chunk)

		// Carry trailing pieces into the next chunk as overlap.
		var (
			kept    []string
			keptLen int
		)
		for i := len(current) - 1; i >= 0; i-- {
			if keptLen+len(current[i]) > c.overlap {
				break
			}
			kept = append([]string{current[i]}, kept...)
			keptLen += len(current[i])
		}
		current = kept
		curLen = keptLen
	}

	for _, piece := range pieces {
		if piece == "" {
			continue
		}
		if curLen+len(piece) > c.size && curLen > 0 {
			flush()
		}
		if len(piece) > c.size {
			// Character-level remainder: hard-cut it, never mid-rune.
			for len(piece) > c.size {
				cut := c.size
				for cut > 0 && !utf8.RuneStart(piece[cut]) {
					cut--
				}
				if cut == 0 {
					// A single rune wider than the chunk size.
					_, cut = utf8.DecodeRuneInString(piece)
				}
				current = append(current, piece[:cut])
				curLen += cut
				flush()
				piece = piece[hardCutResume(piece, cut, c.overlap):]
			}
		}
		current = append(current, piece)
		curLen += len(piece)
	}
	if curLen > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}

	return chunks
}

// hardCutResume finds where the next hard-cut chunk starts: back from the
// cut by the overlap, then forward to the nearest rune boundary. Always at
// least one byte past the previous start, so the cut loop makes progress.
func hardCutResume(piece string, cut, overlap int) int {
	resume := cut - min(overlap, cut-1)
	for resume < len(piece) && !utf8.RuneStart(piece[resume]) {
		resume++
	}
	return resume
}

// pickSeparator returns the first separator present in the text along with
// the remaining, less preferred separators. The empty separator always
// matches, so the fallback is character-level splitting.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			return sep, nil
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

// splitKeepSeparator splits text on sep, keeping the separator attached to
// the end of the preceding piece so no characters are lost.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		// Character-level split is handled by the hard cut in merge.
		return []string{text}
	}

	parts := strings.Split(text, sep)
	pieces := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}
