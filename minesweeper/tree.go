package minesweeper

import (
	"strconv"

	"github.com/pkg/errors"
	"go.livesweep.dev/core/tree"
)

// Each board row is encoded as a string having two characters per cell.
// The first is the count of adjacent bombs ('0' through '8'), or CharBomb.
// The second is the cell's visibility: CharHidden, CharRevealed, or
// CharFlagged. Rows are keyed on their decimal index.
const (
	CharBomb     = '*'
	CharHidden   = '.'
	CharRevealed = 'o'
	CharFlagged  = 'f'
)

// ToTree returns the tree value of the Game.
func (g *Game) ToTree() tree.Map {
	var board = make(tree.Map, len(g.Board))
	for r, row := range g.Board {
		board[strconv.Itoa(r)] = EncodeRow(row)
	}
	return tree.Map{
		"state": string(g.State),
		"boardSize": tree.Map{
			"rows":  float64(g.Size.Rows),
			"cols":  float64(g.Size.Cols),
			"bombs": float64(g.Size.Bombs),
		},
		"board": board,
	}
}

// FromTree decodes a Game from tree value |v|, as produced by ToTree.
// Other keys of |v| (eg, players) are ignored.
func FromTree(v interface{}) (*Game, error) {
	var m, ok = v.(tree.Map)
	if !ok {
		return nil, errors.New("game is not a container")
	}
	var g = new(Game)

	if s, _ := m["state"].(string); s == string(Play) || s == string(Won) || s == string(Lost) {
		g.State = State(s)
	} else {
		return nil, errors.Errorf("invalid game state %q", s)
	}
	if err := tree.Decode(m["boardSize"], &g.Size); err != nil {
		return nil, errors.Wrap(err, "decoding boardSize")
	} else if err = g.Size.Validate(); err != nil {
		return nil, err
	}

	var board, _ = m["board"].(tree.Map)
	g.Board = make([][]Cell, g.Size.Rows)

	for r := range g.Board {
		var enc, _ = board[strconv.Itoa(r)].(string)
		var row, err = DecodeRow(enc)
		if err != nil {
			return nil, errors.WithMessagef(err, "row %d", r)
		} else if len(row) != g.Size.Cols {
			return nil, errors.Errorf("row %d has %d cells (expected %d)", r, len(row), g.Size.Cols)
		}
		g.Board[r] = row
	}
	return g, nil
}

// EncodeRow encodes a row of Cells.
func EncodeRow(row []Cell) string {
	var b = make([]byte, 0, 2*len(row))
	for _, cell := range row {
		if cell.Bomb {
			b = append(b, CharBomb)
		} else {
			b = append(b, byte('0'+cell.Adjacent))
		}
		switch {
		case cell.Revealed:
			b = append(b, CharRevealed)
		case cell.Flagged:
			b = append(b, CharFlagged)
		default:
			b = append(b, CharHidden)
		}
	}
	return string(b)
}

// DecodeRow decodes a row of Cells encoded by EncodeRow.
func DecodeRow(enc string) ([]Cell, error) {
	if len(enc)%2 != 0 {
		return nil, errors.Errorf("invalid row encoding length %d", len(enc))
	}
	var row = make([]Cell, len(enc)/2)

	for i := range row {
		switch v := enc[2*i]; {
		case v == CharBomb:
			row[i].Bomb = true
		case v >= '0' && v <= '8':
			row[i].Adjacent = int(v - '0')
		default:
			return nil, errors.Errorf("invalid cell value %q", v)
		}
		switch s := enc[2*i+1]; s {
		case CharRevealed:
			row[i].Revealed = true
		case CharFlagged:
			row[i].Flagged = true
		case CharHidden:
		default:
			return nil, errors.Errorf("invalid cell state %q", s)
		}
	}
	return row, nil
}

// Symbol returns a single-character rendering of |cell| as seen by a
// player: hidden cells are "#", flags "F", bombs "*", and revealed cells
// their adjacent bomb count (or blank for zero).
func Symbol(cell Cell) string {
	switch {
	case cell.Flagged && !cell.Revealed:
		return "F"
	case !cell.Revealed:
		return "#"
	case cell.Bomb:
		return "*"
	case cell.Adjacent == 0:
		return " "
	default:
		return strconv.Itoa(cell.Adjacent)
	}
}
