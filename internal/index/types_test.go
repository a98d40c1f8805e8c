package index

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Metadata Sanitization Tests
// =============================================================================

func TestSanitizeMetadata_PassesThroughScalars(t *testing.T) {
	out := SanitizeMetadata(map[string]any{
		MetaDocumentID:    "contracts/nda.md",
		MetaSequenceIndex: 3,
		"score":           0.5,
		"published":       true,
		"tags":            []string{"legal", "nda"},
	})

	assert.Equal(t, "contracts/nda.md", out[MetaDocumentID])
	assert.Equal(t, 3, out[MetaSequenceIndex])
	assert.Equal(t, 0.5, out["score"])
	assert.Equal(t, true, out["published"])
	assert.Equal(t, []string{"legal", "nda"}, out["tags"])
}

func TestSanitizeMetadata_NilValueBecomesEmptyString(t *testing.T) {
	out := SanitizeMetadata(map[string]any{"author": nil})

	v, ok := out["author"]
	assert.True(t, ok, "key must survive sanitization")
	assert.Equal(t, "", v)
}

func TestSanitizeMetadata_NilMapStaysNil(t *testing.T) {
	assert.Nil(t, SanitizeMetadata(nil))
}

func TestSanitizeMetadata_ClampsText(t *testing.T) {
	long := strings.Repeat("a", MaxMetadataTextBytes+500)

	out := SanitizeMetadata(map[string]any{MetaText: long})

	assert.Len(t, out[MetaText], MaxMetadataTextBytes)
}

func TestSanitizeMetadata_ClampNeverSplitsRune(t *testing.T) {
	// Three-byte runes put the byte limit mid-rune (2000 % 3 != 0), so the
	// clamp has to back up to the previous boundary.
	long := strings.Repeat("€", MaxMetadataTextBytes)

	out := SanitizeMetadata(map[string]any{MetaText: long})

	text := out[MetaText].(string)
	assert.Less(t, len(text), MaxMetadataTextBytes)
	assert.True(t, utf8.ValidString(text))
	assert.Zero(t, len(text)%3, "only whole runes survive")
}

func TestSanitizeMetadata_ShortTextUntouched(t *testing.T) {
	out := SanitizeMetadata(map[string]any{MetaText: "termination clause"})

	assert.Equal(t, "termination clause", out[MetaText])
}

func TestSanitizeMetadata_UnknownTypesStringify(t *testing.T) {
	out := SanitizeMetadata(map[string]any{"odd": []int{1, 2}})

	assert.Equal(t, "[1 2]", out["odd"])
}
