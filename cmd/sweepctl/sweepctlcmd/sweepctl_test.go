package sweepctlcmd

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.livesweep.dev/core/games"
	"go.livesweep.dev/core/minesweeper"
	"go.livesweep.dev/core/tree"
)

func TestDecodePatch(t *testing.T) {
	var patch, err = decodePatch([]byte(`
/games/ABCDE/state: lost
/games/ABCDE/players: null
/games/ABCDE/boardSize: {rows: 2, cols: 3, bombs: 1}
/games/ABCDE/board: ["0.1.", "*o1."]
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"/games/ABCDE/state":     "lost",
		"/games/ABCDE/players":   nil,
		"/games/ABCDE/boardSize": tree.Map{"rows": 2.0, "cols": 3.0, "bombs": 1.0},
		"/games/ABCDE/board":     tree.Map{"0": "0.1.", "1": "*o1."},
	}, patch)

	_, err = decodePatch([]byte("[1, 2]"))
	assert.Error(t, err)
}

func TestWriteValue(t *testing.T) {
	var v = tree.Map{"b": 1.0, "a": tree.Map{"c": "s"}}

	var buf bytes.Buffer
	require.NoError(t, writeValue(&buf, "yaml", v))
	assert.Equal(t, "a:\n  c: s\nb: 1\n", buf.String())

	buf.Reset()
	require.NoError(t, writeValue(&buf, "json", v))
	assert.Equal(t, "{\n  \"a\": {\n    \"c\": \"s\"\n  },\n  \"b\": 1\n}\n", buf.String())
}

func TestRenderTables(t *testing.T) {
	var row, err = minesweeper.DecodeRow("*f1o0o")
	require.NoError(t, err)
	var g = &minesweeper.Game{
		State: minesweeper.Play,
		Size:  minesweeper.BoardSize{Rows: 1, Cols: 3, Bombs: 1},
		Board: [][]minesweeper.Cell{row},
	}

	var buf bytes.Buffer
	require.NoError(t, writeBoard(&buf, g))
	assert.Contains(t, buf.String(), "play: 1x3, 1 bombs, 2 revealed, 1 flagged\n")
	assert.Contains(t, buf.String(), "F")

	var now = time.UnixMilli(1700000000000)
	buf.Reset()
	require.NoError(t, writePlayers(&buf, []games.Player{
		{ID: "p1", Name: "alice", X: 3, Y: 4, LastActive: games.Millis(now.Add(-2 * time.Second))},
	}, "p1", now))
	assert.Contains(t, buf.String(), "alice")
	assert.Contains(t, buf.String(), "3,4")
	assert.Contains(t, buf.String(), "2 seconds ago")
	assert.Contains(t, buf.String(), "(you)")
}

func TestServeMetrics(t *testing.T) {
	var addr, stop, err = serveMetrics("127.0.0.1:0")
	require.NoError(t, err)
	defer stop()

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "livesweep_livestate_registrations")

	// Servers are independent of one another.
	_, stop2, err := serveMetrics("127.0.0.1:0")
	require.NoError(t, err)
	stop2()
}
