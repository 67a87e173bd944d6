package prettyterm

import (
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/user/framegrab/pkg/ports"
)

// WriteHistory renders job records as a table.
func WriteHistory(out io.Writer, records []ports.JobRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Finished", "Kind", "Archive", "Entries", "Skipped", "Size", "State"})

	for _, rec := range records {
		state := string(rec.State)
		if rec.Error != "" {
			state += ": " + rec.Error
		}
		name := rec.ArchiveName
		if name == "" {
			name = rec.Description
		}
		t.AppendRow(table.Row{
			humanize.Time(rec.FinishedAt),
			rec.Kind,
			name,
			rec.Entries,
			rec.Skipped,
			humanize.Bytes(uint64(rec.Bytes)),
			state,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", len(records)})
	t.Render()
}
