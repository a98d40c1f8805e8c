package corpus

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToMarkdown_ConvertsBasicStructure(t *testing.T) {
	html := `<html><body>
<h1>Data Protection Act</h1>
<p>Section one applies to controllers.</p>
<ul><li>first duty</li><li>second duty</li></ul>
</body></html>`

	md := HTMLToMarkdown(html)

	assert.Contains(t, md, "# Data Protection Act")
	assert.Contains(t, md, "Section one applies to controllers.")
	assert.Contains(t, md, "first duty")
}

func TestHTMLToMarkdown_CollapsesBlankRuns(t *testing.T) {
	html := "<p>one</p>\n\n\n\n<p>two</p>"

	md := HTMLToMarkdown(html)

	// Paragraph boundaries survive but runs of blanks collapse
	assert.Contains(t, md, "one")
	assert.Contains(t, md, "two")
	assert.NotContains(t, md, "\n\n\n")
}

func TestHTMLToMarkdown_PreservesParagraphBoundary(t *testing.T) {
	md := HTMLToMarkdown("<p>alpha</p><p>beta</p>")
	parts := strings.Split(md, "\n\n")
	assert.GreaterOrEqual(t, len(parts), 2)
}

func TestIsHTMLPath(t *testing.T) {
	assert.True(t, isHTMLPath("docs/page.html"))
	assert.True(t, isHTMLPath("PAGE.HTM"))
	assert.False(t, isHTMLPath("readme.md"))
	assert.False(t, isHTMLPath("no-extension"))
}
