package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// PassInfo summarizes the most recent reindex pass.
type PassInfo struct {
	FinishedAt time.Time `json:"finished_at"`
	Added      int       `json:"added"`
	Changed    int       `json:"changed"`
	Removed    int       `json:"removed"`
	Unchanged  int       `json:"unchanged"`
	Failed     int       `json:"failed"`
}

// StatusInfo contains index and registry health information.
type StatusInfo struct {
	// Index
	IndexName   string `json:"index_name"`
	Provider    string `json:"provider"`
	Namespace   string `json:"namespace,omitempty"`
	Dimensions  int    `json:"dimensions,omitempty"`
	VectorCount int    `json:"vector_count"`
	IndexSize   int64  `json:"index_size,omitempty"` // local provider only

	// Registry
	RegistryBackend string `json:"registry_backend"`
	Documents       int    `json:"documents"`
	RegistrySize    int64  `json:"registry_size,omitempty"`

	// Most recent pass, if any
	LastPass *PassInfo `json:"last_pass,omitempty"`

	// Embedder
	EmbedderBackend string `json:"embedder_backend"`
	EmbedderModel   string `json:"embedder_model,omitempty"`
	EmbedderStatus  string `json:"embedder_status"` // "ready", "offline", "error"
}

// StatusRenderer displays index and registry status.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.IndexName))

	// Index
	_, _ = fmt.Fprintf(r.out, "  Provider:   %s\n", info.Provider)
	if info.Namespace != "" {
		_, _ = fmt.Fprintf(r.out, "  Namespace:  %s\n", info.Namespace)
	}
	if info.Dimensions > 0 {
		_, _ = fmt.Fprintf(r.out, "  Dimensions: %d\n", info.Dimensions)
	}
	_, _ = fmt.Fprintf(r.out, "  Vectors:    %d\n", info.VectorCount)
	if info.IndexSize > 0 {
		_, _ = fmt.Fprintf(r.out, "  Index size: %s\n", FormatBytes(info.IndexSize))
	}
	_, _ = fmt.Fprintln(r.out)

	// Registry
	_, _ = fmt.Fprintln(r.out, "  Registry:")
	_, _ = fmt.Fprintf(r.out, "    Backend:   %s\n", info.RegistryBackend)
	_, _ = fmt.Fprintf(r.out, "    Documents: %d\n", info.Documents)
	if info.RegistrySize > 0 {
		_, _ = fmt.Fprintf(r.out, "    Size:      %s\n", FormatBytes(info.RegistrySize))
	}
	_, _ = fmt.Fprintln(r.out)

	// Last pass
	if p := info.LastPass; p != nil && !p.FinishedAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last pass: %s\n", formatTime(p.FinishedAt))
		counts := fmt.Sprintf("%d added, %d changed, %d removed, %d unchanged",
			p.Added, p.Changed, p.Removed, p.Unchanged)
		if p.Failed > 0 {
			counts += r.styles.Error.Render(fmt.Sprintf(", %d failed", p.Failed))
		}
		_, _ = fmt.Fprintf(r.out, "    %s\n", counts)
		_, _ = fmt.Fprintln(r.out)
	}

	// Embedder
	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Backend: %s\n", info.EmbedderBackend)
	if info.EmbedderModel != "" {
		_, _ = fmt.Fprintf(r.out, "    Model:   %s\n", info.EmbedderModel)
	}
	_, _ = fmt.Fprintf(r.out, "    Status:  %s\n", r.renderStatus(info.EmbedderStatus))

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready", "running":
		return r.styles.Success.Render(status)
	case "offline", "stopped":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
