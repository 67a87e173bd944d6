package prettyterm

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/user/framegrab/pkg/ports"
)

// WriteContainer renders probe results. rate is zero when no frame rate
// could be derived.
func WriteContainer(out io.Writer, path string, info ports.ContainerInfo, rate int, method string) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetTitle(path)

	t.AppendRow(table.Row{"Container", info.Container})
	t.AppendRow(table.Row{"Media type", info.MediaType})
	t.AppendRow(table.Row{"Codec", info.Codec})
	t.AppendRow(table.Row{"Size", fmt.Sprintf("%dx%d", info.Width, info.Height)})
	t.AppendRow(table.Row{"Duration", fmt.Sprintf("%.3f s", info.Duration.Seconds())})
	t.AppendRow(table.Row{"Samples", len(info.SampleTimes)})
	if info.DeclaredFPS > 0 {
		t.AppendRow(table.Row{"Declared fps", fmt.Sprintf("%.3f", info.DeclaredFPS)})
	}
	if rate > 0 {
		t.AppendRow(table.Row{"Frame rate", fmt.Sprintf("%d fps (%s)", rate, method)})
	}
	t.Render()
}
