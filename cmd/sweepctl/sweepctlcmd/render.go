package sweepctlcmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"go.livesweep.dev/core/games"
	"go.livesweep.dev/core/minesweeper"
)

// writeBoard renders |g| as a table of cells, having row and column indices.
func writeBoard(w io.Writer, g *minesweeper.Game) error {
	var revealed, flagged = g.Counts()
	fmt.Fprintf(w, "%s: %dx%d, %d bombs, %d revealed, %d flagged\n",
		g.State, g.Size.Rows, g.Size.Cols, g.Size.Bombs, revealed, flagged)

	var table = tablewriter.NewWriter(w)

	var headers = []string{""}
	for c := 0; c != g.Size.Cols; c++ {
		headers = append(headers, strconv.Itoa(c))
	}
	table.Header(headers)

	for r, cells := range g.Board {
		var row = []string{strconv.Itoa(r)}
		for _, cell := range cells {
			row = append(row, minesweeper.Symbol(cell))
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// writePlayers renders |players| as a table. The player having ID |self|
// is marked.
func writePlayers(w io.Writer, players []games.Player, self string, now time.Time) error {
	var table = tablewriter.NewWriter(w)
	table.Header([]string{"Name", "Cursor", "Last Active", ""})

	for _, p := range players {
		var mark string
		if p.ID == self {
			mark = "(you)"
		}
		var row = []string{
			p.Name,
			fmt.Sprintf("%.0f,%.0f", p.X, p.Y),
			humanize.RelTime(games.FromMillis(p.LastActive), now, "ago", "from now"),
			mark,
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
