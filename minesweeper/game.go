// Package minesweeper implements the rules of a minesweeper game, and its
// representation as a tree value.
package minesweeper

import (
	"math/rand"
	"strings"

	"github.com/pkg/errors"
)

// BoardSize is the dimension and bomb count of a board.
type BoardSize struct {
	Name  string `json:"-"`
	Rows  int    `json:"rows"`
	Cols  int    `json:"cols"`
	Bombs int    `json:"bombs"`
}

// Sizes are the preset BoardSizes.
var Sizes = []BoardSize{
	{Name: "S", Rows: 9, Cols: 9, Bombs: 10},
	{Name: "M", Rows: 16, Cols: 16, Bombs: 40},
	{Name: "L", Rows: 30, Cols: 16, Bombs: 99},
	{Name: "XL", Rows: 30, Cols: 20, Bombs: 150},
}

// SizeByName returns the preset BoardSize of |name|.
func SizeByName(name string) (BoardSize, error) {
	for _, s := range Sizes {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return BoardSize{}, errors.Errorf("unknown board size %q", name)
}

// Validate returns an error if the BoardSize is malformed.
func (s BoardSize) Validate() error {
	if s.Rows <= 0 || s.Cols <= 0 {
		return errors.Errorf("invalid board dimensions %dx%d", s.Rows, s.Cols)
	} else if s.Bombs < 0 {
		return errors.Errorf("invalid bomb count %d", s.Bombs)
	}
	return nil
}

// State of a Game.
type State string

const (
	Play State = "play"
	Won  State = "won"
	Lost State = "lost"
)

// Cell of a board.
type Cell struct {
	Bomb     bool
	Adjacent int // Number of adjacent bombs.
	Revealed bool
	Flagged  bool
}

// Game is a minesweeper game.
type Game struct {
	State State
	Size  BoardSize
	Board [][]Cell
}

// Generate a Game of |size|, having bombs placed by |rnd|. Bombs are
// clamped to the number of cells.
func Generate(size BoardSize, rnd *rand.Rand) *Game {
	var g = &Game{State: Play, Size: size, Board: make([][]Cell, size.Rows)}
	for r := range g.Board {
		g.Board[r] = make([]Cell, size.Cols)
	}

	var bombs = size.Bombs
	if n := size.Rows * size.Cols; bombs > n {
		bombs = n
	}
	for placed := 0; placed < bombs; {
		var row, col = rnd.Intn(size.Rows), rnd.Intn(size.Cols)
		if g.Board[row][col].Bomb {
			continue
		}
		g.Board[row][col].Bomb = true
		placed++

		g.neighbours(row, col, func(r, c int) { g.Board[r][c].Adjacent++ })
	}
	return g
}

// Reveal the cell at |row|, |col|. Revealing a cell having no adjacent bombs
// also reveals its neighbours. Revealing a bomb loses the game and reveals
// every cell. Cells out of range, already revealed, or flagged are not
// revealed, and a Game which isn't in Play is not changed. Reveal returns
// true if the Game changed.
func (g *Game) Reveal(row, col int) bool {
	if g.State != Play || !g.inRange(row, col) {
		return false
	}
	var cell = &g.Board[row][col]
	if cell.Revealed || cell.Flagged {
		return false
	}

	if cell.Bomb {
		g.State = Lost
		for r := range g.Board {
			for c := range g.Board[r] {
				g.Board[r][c].Revealed = true
			}
		}
		return true
	}
	g.flood(row, col)

	if g.cleared() {
		g.State = Won
	}
	return true
}

// ToggleFlag of the hidden cell at |row|, |col|, returning true if the
// Game changed.
func (g *Game) ToggleFlag(row, col int) bool {
	if g.State != Play || !g.inRange(row, col) || g.Board[row][col].Revealed {
		return false
	}
	g.Board[row][col].Flagged = !g.Board[row][col].Flagged
	return true
}

// Counts returns the number of revealed and flagged cells.
func (g *Game) Counts() (revealed, flagged int) {
	for _, row := range g.Board {
		for _, cell := range row {
			if cell.Revealed {
				revealed++
			} else if cell.Flagged {
				flagged++
			}
		}
	}
	return
}

func (g *Game) flood(row, col int) {
	var stack = [][2]int{{row, col}}
	for len(stack) != 0 {
		var p = stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var cell = &g.Board[p[0]][p[1]]
		if cell.Revealed || cell.Flagged || cell.Bomb {
			continue
		}
		cell.Revealed = true

		if cell.Adjacent == 0 {
			g.neighbours(p[0], p[1], func(r, c int) { stack = append(stack, [2]int{r, c}) })
		}
	}
}

func (g *Game) cleared() bool {
	for _, row := range g.Board {
		for _, cell := range row {
			if !cell.Bomb && !cell.Revealed {
				return false
			}
		}
	}
	return true
}

func (g *Game) inRange(row, col int) bool {
	return row >= 0 && row < len(g.Board) && col >= 0 && col < len(g.Board[row])
}

func (g *Game) neighbours(row, col int, fn func(r, c int)) {
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if (dr != 0 || dc != 0) && g.inRange(row+dr, col+dc) {
				fn(row+dr, col+dc)
			}
		}
	}
}
