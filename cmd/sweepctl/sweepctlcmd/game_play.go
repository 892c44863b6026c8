package sweepctlcmd

import (
	"os"
	"time"

	"go.livesweep.dev/core/games"
	mbp "go.livesweep.dev/core/mainboilerplate"
)

type cmdGamePlay struct {
	GameConfig
	Row int `long:"row" short:"r" required:"true" description:"Row of the cell"`
	Col int `long:"col" required:"true" description:"Column of the cell"`

	flag bool
}

func init() {
	CommandRegistry.AddCommand("game", "reveal", "Reveal a cell", `
Reveal the cell at --row and --col of the game of --code, and print the
resulting board. Revealing a cell having no adjacent bombs also reveals its
neighbours, and revealing a bomb loses the game.
`, &cmdGamePlay{})

	CommandRegistry.AddCommand("game", "flag", "Toggle the flag of a cell", `
Toggle the flag of the hidden cell at --row and --col of the game of --code,
and print the resulting board. Flagged cells cannot be revealed.
`, &cmdGamePlay{flag: true})
}

func (cmd *cmdGamePlay) Execute([]string) error {
	var ctx, cancel = startup()
	defer cancel()

	var store, closeStore = mustStore(ctx)
	defer closeStore()

	var s, err = games.NewSession(ctx, store, cmd.Code, "")
	mbp.Must(err, "failed to start session")
	defer s.Close()

	_, err = s.Wait(ctx)
	mbp.Must(err, "failed to load game", "code", cmd.Code)

	if cmd.flag {
		err = s.ToggleFlag(cmd.Row, cmd.Col, time.Now()).Err()
	} else {
		err = s.Reveal(cmd.Row, cmd.Col, time.Now()).Err()
	}
	mbp.Must(err, "failed to write move")

	game, err := s.Game()
	mbp.Must(err, "failed to decode game")
	return writeBoard(os.Stdout, game)
}
