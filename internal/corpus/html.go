package corpus

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// htmlExtensions are converted to markdown before chunking.
var htmlExtensions = map[string]bool{
	".html": true,
	".htm":  true,
}

// isHTMLPath reports whether path has an HTML extension.
func isHTMLPath(path string) bool {
	dot := strings.LastIndex(path, ".")
	if dot < 0 {
		return false
	}
	return htmlExtensions[strings.ToLower(path[dot:])]
}

// HTMLToMarkdown converts HTML content to markdown text.
// Excessive blank lines are collapsed so paragraph chunking sees clean
// boundaries. On conversion failure the raw input is returned unchanged.
func HTMLToMarkdown(html string) string {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return html
	}

	lines := strings.Split(markdown, "\n")
	var result []string
	blank := false
	for _, line := range lines {
		if trimmed := strings.TrimRight(line, " \t"); trimmed != "" {
			result = append(result, trimmed)
			blank = false
		} else if !blank {
			result = append(result, "")
			blank = true
		}
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}
