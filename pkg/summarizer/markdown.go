package summarizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// MarkdownFormatter renders a Summary as Markdown.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	var b strings.Builder

	b.WriteString("# Export Summary\n\n")
	fmt.Fprintf(&b, "Generated %s\n\n", s.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Source\n\n")
	b.WriteString("| Item | Value |\n|---|---|\n")
	row(&b, "Name", s.Source.Name)
	row(&b, "Container", s.Source.Container)
	row(&b, "Codec", s.Source.Codec)
	if s.Source.Width > 0 {
		row(&b, "Size", fmt.Sprintf("%dx%d", s.Source.Width, s.Source.Height))
	}
	if s.Source.Duration > 0 {
		row(&b, "Duration", fmt.Sprintf("%.2f s", s.Source.Duration.Seconds()))
	}

	b.WriteString("\n## Export\n\n")
	b.WriteString("| Item | Value |\n|---|---|\n")
	row(&b, "Kind", s.Export.Kind)
	row(&b, "Archive", s.Export.ArchiveName)
	row(&b, "Location", s.Export.Location)
	if s.Export.End > s.Export.Start {
		row(&b, "Interval", fmt.Sprintf("%.2f s to %.2f s", s.Export.Start.Seconds(), s.Export.End.Seconds()))
	}
	if s.Export.Rate > 0 {
		rate := fmt.Sprintf("%d fps", s.Export.Rate)
		if s.Export.RateMethod != "" {
			rate += " (" + s.Export.RateMethod + ")"
		}
		row(&b, "Frame rate", rate)
	}
	row(&b, "Frames", humanize.Comma(int64(s.Export.Entries)))
	if s.Export.Skipped > 0 {
		row(&b, "Skipped", humanize.Comma(int64(s.Export.Skipped)))
	}
	if s.Export.Conflicts > 0 {
		row(&b, "Duplicate names", humanize.Comma(int64(s.Export.Conflicts)))
	}
	row(&b, "Size", humanize.Bytes(uint64(s.Export.Bytes)))
	if s.Export.Elapsed > 0 {
		row(&b, "Elapsed", s.Export.Elapsed.Round(time.Millisecond).String())
	}

	b.WriteString("\n## Settings\n\n")
	b.WriteString("| Item | Value |\n|---|---|\n")
	row(&b, "Format", s.Settings.Format)
	if s.Settings.Quality > 0 {
		row(&b, "Quality", fmt.Sprintf("%.0f%%", s.Settings.Quality*100))
	}
	row(&b, "Resize", s.Settings.Resize)
	row(&b, "Source mode", s.Settings.Mode)

	return b.String()
}

// row skips empty values.
func row(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "| %s | %s |\n", key, strings.ReplaceAll(value, "|", "\\|"))
}
