package chunk

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// Options configures the chunker behavior.
type Options struct {
	// MaxChars is the upper bound per chunk (default: DefaultMaxChars).
	MaxChars int
	// Overlap is the shared span between consecutive chunks (default: DefaultOverlap).
	Overlap int
	// Boundary selects where splits are allowed (default: BoundaryParagraph).
	Boundary Boundary
}

// Chunker splits document text into ordered chunks.
// Chunking is pure: identical content always yields the identical sequence
// of (sequence_index, text) pairs.
type Chunker struct {
	opts Options
}

// paragraphSep matches one or more blank lines.
var paragraphSep = regexp.MustCompile(`\n[ \t]*\n+`)

// NewChunker creates a chunker with default options.
func NewChunker() *Chunker {
	return NewChunkerWithOptions(Options{})
}

// NewChunkerWithOptions creates a chunker with custom options.
func NewChunkerWithOptions(opts Options) *Chunker {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	// Overlap must stay below MaxChars for the window to advance
	if opts.Overlap >= opts.MaxChars {
		opts.Overlap = opts.MaxChars / 10
	}
	if opts.Boundary == "" {
		opts.Boundary = BoundaryParagraph
	}
	return &Chunker{opts: opts}
}

// Chunk splits content into ordered chunks for a document.
// Whitespace-only content yields no chunks; no chunk is ever empty, and
// trailing content smaller than the overlap still becomes its own final chunk.
func (c *Chunker) Chunk(documentID, content string) ([]*Chunk, error) {
	text := strings.ReplaceAll(content, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var pieces []string
	switch c.opts.Boundary {
	case BoundaryFixed:
		pieces = c.fixedSplit(strings.TrimSpace(text))
	case BoundarySentence:
		pieces = c.pack(splitSentences(text), " ", c.fixedSplit)
	case BoundaryParagraph:
		pieces = c.pack(splitParagraphs(text), "\n\n", c.sentenceSplit)
	default:
		return nil, syncerrors.ChunkingError(
			fmt.Sprintf("unknown boundary strategy: %s", c.opts.Boundary), nil)
	}

	chunks := make([]*Chunk, 0, len(pieces))
	for _, piece := range pieces {
		// Fixed windows over sparse text can land on pure whitespace
		if strings.TrimSpace(piece) == "" {
			continue
		}
		chunks = append(chunks, New(documentID, len(chunks), piece))
	}
	return chunks, nil
}

// sentenceSplit packs the sentences of one oversized paragraph.
func (c *Chunker) sentenceSplit(paragraph string) []string {
	return c.pack(splitSentences(paragraph), " ", c.fixedSplit)
}

// fixedSplit cuts text into windows of MaxChars runes, sliding by
// MaxChars-Overlap so consecutive windows share Overlap runes.
func (c *Chunker) fixedSplit(text string) []string {
	runes := []rune(text)
	max := c.opts.MaxChars
	step := max - c.opts.Overlap

	var parts []string
	for start := 0; ; start += step {
		end := start + max
		if end >= len(runes) {
			parts = append(parts, string(runes[start:]))
			break
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

// pack greedily joins units into pieces of at most MaxChars runes.
// Units larger than MaxChars are handed to splitOversize and emitted as
// standalone pieces. When a piece fills up, the trailing units that fit the
// overlap budget are carried into the next piece.
func (c *Chunker) pack(units []string, sep string, splitOversize func(string) []string) []string {
	var pieces []string
	var cur []string
	fresh := false // cur holds at least one unit not yet emitted

	sepLen := len([]rune(sep))
	joinedLen := func(us []string) int {
		n := 0
		for i, u := range us {
			if i > 0 {
				n += sepLen
			}
			n += len([]rune(u))
		}
		return n
	}

	for _, unit := range units {
		unitLen := len([]rune(unit))

		if unitLen > c.opts.MaxChars {
			if fresh {
				pieces = append(pieces, strings.Join(cur, sep))
			}
			cur, fresh = nil, false
			pieces = append(pieces, splitOversize(unit)...)
			continue
		}

		if len(cur) > 0 && joinedLen(cur)+sepLen+unitLen > c.opts.MaxChars {
			if fresh {
				pieces = append(pieces, strings.Join(cur, sep))
			}
			cur = c.carryTail(cur, sepLen)
			fresh = false
			// The carry plus the new unit may still overflow
			if len(cur) > 0 && joinedLen(cur)+sepLen+unitLen > c.opts.MaxChars {
				cur = nil
			}
		}

		cur = append(cur, unit)
		fresh = true
	}

	if fresh {
		pieces = append(pieces, strings.Join(cur, sep))
	}
	return pieces
}

// carryTail returns the trailing units whose joined length fits the overlap.
func (c *Chunker) carryTail(units []string, sepLen int) []string {
	if c.opts.Overlap <= 0 {
		return nil
	}
	total := 0
	i := len(units)
	for i > 0 {
		add := len([]rune(units[i-1]))
		if i < len(units) {
			add += sepLen
		}
		if total+add > c.opts.Overlap {
			break
		}
		total += add
		i--
	}
	if i == len(units) {
		return nil
	}
	return append([]string(nil), units[i:]...)
}

// splitParagraphs splits text on blank lines into trimmed paragraphs.
func splitParagraphs(text string) []string {
	parts := paragraphSep.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// sentenceClosers may trail a terminator before the sentence actually ends.
const sentenceClosers = `"')]` + "`"

// splitSentences splits text after sentence terminators and line breaks.
func splitSentences(text string) []string {
	var units []string
	var b strings.Builder

	flush := func() {
		if trimmed := strings.TrimSpace(b.String()); trimmed != "" {
			units = append(units, trimmed)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			flush()
			continue
		}
		b.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Consume closing quotes or brackets after the terminator
		j := i + 1
		for j < len(runes) && strings.ContainsRune(sentenceClosers, runes[j]) {
			b.WriteRune(runes[j])
			j++
		}
		// Only a terminator followed by whitespace (or EOF) ends the
		// sentence; "3.14" and "v1.2" stay intact.
		if j >= len(runes) || unicode.IsSpace(runes[j]) {
			flush()
			i = j
		} else {
			i = j - 1
		}
	}
	flush()

	return units
}
