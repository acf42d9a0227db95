package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/illarion/vaultx/internal/core"
)

const maxTitleWidth = 40

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	footerStyle = lipgloss.NewStyle().Faint(true)
)

// List prints every record in the working set
func List(ctx context.Context, v *Vault, w io.Writer) error {
	if v.Session.State() != core.Unlocked {
		if _, err := v.Unlock(ctx); err != nil {
			return err
		}
	}
	renderRecords(w, v.Session.Records())
	renderFooter(w, v.Session.LastLoad())
	return nil
}

// Search prints records whose title or username contains query
func Search(ctx context.Context, v *Vault, w io.Writer, query string) error {
	if v.Session.State() != core.Unlocked {
		if _, err := v.Unlock(ctx); err != nil {
			return err
		}
	}
	matches := v.Session.Search(query)
	if len(matches) == 0 {
		fmt.Fprintf(w, "No records match %q\n", query)
		return nil
	}
	renderRecords(w, matches)
	fmt.Fprintln(w, footerStyle.Render(fmt.Sprintf("%d of %d records", len(matches), v.Session.LastLoad().Opened)))
	return nil
}

func renderRecords(w io.Writer, records []core.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No records")
		return
	}

	titleWidth, userWidth := len("TITLE"), len("USERNAME")
	for _, r := range records {
		titleWidth = max(titleWidth, min(lipgloss.Width(r.Title), maxTitleWidth))
		userWidth = max(userWidth, min(lipgloss.Width(r.Username), maxTitleWidth))
	}

	title := lipgloss.NewStyle().Width(titleWidth + 2)
	user := lipgloss.NewStyle().Width(userWidth + 2)

	fmt.Fprintln(w, headerStyle.Render(title.Render("TITLE")+user.Render("USERNAME")+"ID"))
	for _, r := range records {
		fmt.Fprintln(w, title.Render(truncate(r.Title, titleWidth))+
			user.Render(truncate(r.Username, userWidth))+
			idStyle.Render(r.ID))
	}
}

func renderFooter(w io.Writer, report core.LoadReport) {
	line := fmt.Sprintf("%d records", report.Opened)
	if report.Opened == 1 {
		line = "1 record"
	}
	if report.Dropped > 0 {
		line += fmt.Sprintf(" (%d unreadable)", report.Dropped)
	}
	fmt.Fprintln(w, footerStyle.Render(line))
}

// truncate shortens s to width display cells, marking the cut with an
// ellipsis
func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if lipgloss.Width(b.String()+string(r)) > width-1 {
			break
		}
		b.WriteRune(r)
	}
	return b.String() + "…"
}

// formatSize formats bytes as a human-readable string
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
