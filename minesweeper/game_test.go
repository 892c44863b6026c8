package minesweeper

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.livesweep.dev/core/tree"
)

func TestGenerate(t *testing.T) {
	for _, size := range Sizes {
		var g = Generate(size, rand.New(rand.NewSource(1)))
		assert.Equal(t, Play, g.State)
		require.Len(t, g.Board, size.Rows)

		var bombs int
		for r, row := range g.Board {
			require.Len(t, row, size.Cols)
			for c, cell := range row {
				if cell.Bomb {
					bombs++
					continue
				}
				var expect int
				g.neighbours(r, c, func(nr, nc int) {
					if g.Board[nr][nc].Bomb {
						expect++
					}
				})
				assert.Equal(t, expect, cell.Adjacent)
			}
		}
		assert.Equal(t, size.Bombs, bombs, size.Name)
	}

	// Bombs are clamped to the number of cells.
	var g = Generate(BoardSize{Rows: 2, Cols: 2, Bombs: 9}, rand.New(rand.NewSource(1)))
	for _, row := range g.Board {
		for _, cell := range row {
			assert.True(t, cell.Bomb)
		}
	}
}

func TestRevealFloodFillAndWin(t *testing.T) {
	// One bomb in the corner:
	//   * 1 0 0
	//   1 1 0 0
	//   0 0 0 0
	var g = fixture(t, "*.1.0.0.", "1.1.0.0.", "0.0.0.0.")

	assert.False(t, g.Reveal(-1, 0))
	assert.False(t, g.Reveal(0, 4))

	// A flagged cell isn't revealed, and isn't flood-filled.
	assert.True(t, g.ToggleFlag(2, 0))
	assert.True(t, g.Reveal(2, 3))
	assert.Equal(t, []string{"*.1o0o0o", "1o1o0o0o", "0f0o0o0o"}, rows(g))
	assert.Equal(t, Play, g.State)
	assert.False(t, g.Reveal(2, 3), "already revealed")
	assert.False(t, g.ToggleFlag(2, 3), "revealed cells can't be flagged")

	// Clearing the flag and revealing the last safe cell wins.
	assert.True(t, g.ToggleFlag(2, 0))
	assert.True(t, g.Reveal(2, 0))
	assert.Equal(t, Won, g.State)

	// A finished game doesn't change.
	assert.False(t, g.Reveal(0, 0))
	assert.False(t, g.ToggleFlag(0, 0))

	var revealed, flagged = g.Counts()
	assert.Equal(t, 11, revealed)
	assert.Equal(t, 0, flagged)
}

func TestRevealBombLoses(t *testing.T) {
	var g = fixture(t, "*f1.", "1.1.")

	assert.False(t, g.Reveal(0, 0), "flagged")
	assert.True(t, g.ToggleFlag(0, 0))
	assert.True(t, g.Reveal(0, 0))

	assert.Equal(t, Lost, g.State)
	assert.Equal(t, []string{"*o1o", "1o1o"}, rows(g))
}

func TestTreeRoundTrip(t *testing.T) {
	var g = fixture(t, "*f1.", "1o1.")
	var v = g.ToTree()

	assert.Equal(t, tree.Map{
		"state":     "play",
		"boardSize": tree.Map{"rows": 2.0, "cols": 2.0, "bombs": 1.0},
		"board":     tree.Map{"0": "*f1.", "1": "1o1."},
	}, v)

	// Values round-trip through tree normalization (eg, as held by a store).
	var out, err = FromTree(tree.Normalize(v))
	require.NoError(t, err)
	assert.Equal(t, g, out)

	v["board"].(tree.Map)["1"] = "1o1"
	_, err = FromTree(v)
	assert.EqualError(t, err, "row 1: invalid row encoding length 3")

	v["board"].(tree.Map)["1"] = "1o9."
	_, err = FromTree(v)
	assert.EqualError(t, err, "row 1: invalid cell value '9'")

	v["state"] = "paused"
	_, err = FromTree(v)
	assert.EqualError(t, err, `invalid game state "paused"`)

	_, err = FromTree("nope")
	assert.EqualError(t, err, "game is not a container")
}

func TestSizesAndSymbols(t *testing.T) {
	var s, err = SizeByName("xl")
	require.NoError(t, err)
	assert.Equal(t, BoardSize{Name: "XL", Rows: 30, Cols: 20, Bombs: 150}, s)

	_, err = SizeByName("XXL")
	assert.EqualError(t, err, `unknown board size "XXL"`)

	assert.Equal(t, "#", Symbol(Cell{}))
	assert.Equal(t, "F", Symbol(Cell{Flagged: true}))
	assert.Equal(t, "*", Symbol(Cell{Bomb: true, Revealed: true}))
	assert.Equal(t, " ", Symbol(Cell{Revealed: true}))
	assert.Equal(t, "3", Symbol(Cell{Adjacent: 3, Revealed: true}))
}

// fixture builds a Game in Play from encoded rows.
func fixture(t *testing.T, encoded ...string) *Game {
	var g = &Game{State: Play}
	for _, enc := range encoded {
		var row, err = DecodeRow(enc)
		require.NoError(t, err)
		g.Board = append(g.Board, row)
	}
	g.Size = BoardSize{Rows: len(g.Board), Cols: len(g.Board[0])}
	for _, row := range g.Board {
		for _, cell := range row {
			if cell.Bomb {
				g.Size.Bombs++
			}
		}
	}
	return g
}

func rows(g *Game) []string {
	var out []string
	for _, row := range g.Board {
		out = append(out, EncodeRow(row))
	}
	return out
}
