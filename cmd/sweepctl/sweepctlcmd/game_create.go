package sweepctlcmd

import (
	"fmt"
	"time"

	mbp "go.livesweep.dev/core/mainboilerplate"
	"go.livesweep.dev/core/minesweeper"
)

type cmdGameCreate struct {
	Size string `long:"size" short:"s" default:"S" choice:"S" choice:"M" choice:"L" choice:"XL" description:"Board size"`
}

type cmdGameReset struct {
	GameConfig
	Size string `long:"size" short:"s" default:"S" choice:"S" choice:"M" choice:"L" choice:"XL" description:"Board size"`
}

type cmdGameList struct{}

func init() {
	CommandRegistry.AddCommand("game", "create", "Create a new game", `
Create a new game having a board of --size, and print its code.

Board sizes are S (9x9, 10 bombs), M (16x16, 40 bombs), L (30x16, 99 bombs),
and XL (30x20, 150 bombs).
`, &cmdGameCreate{})

	CommandRegistry.AddCommand("game", "reset", "Reset a game to a new board", `
Reset the game of --code to a new board of --size. Players of the game are
removed, and will re-join upon their next heartbeat.
`, &cmdGameReset{})

	CommandRegistry.AddCommand("game", "list", "List codes of live games", "", &cmdGameList{})
}

func (cmd *cmdGameCreate) Execute([]string) error {
	var ctx, cancel = startup()
	defer cancel()

	var store, closeStore = mustStore(ctx)
	defer closeStore()

	var size, err = minesweeper.SizeByName(cmd.Size)
	mbp.Must(err, "invalid board size")

	code, err := newDirectory(store).Create(ctx, size, time.Now())
	mbp.Must(err, "failed to create game")

	fmt.Println(code)
	return nil
}

func (cmd *cmdGameReset) Execute([]string) error {
	var ctx, cancel = startup()
	defer cancel()

	var store, closeStore = mustStore(ctx)
	defer closeStore()

	var size, err = minesweeper.SizeByName(cmd.Size)
	mbp.Must(err, "invalid board size")

	return newDirectory(store).Reset(ctx, cmd.Code, size, time.Now())
}

func (cmd *cmdGameList) Execute([]string) error {
	var ctx, cancel = startup()
	defer cancel()

	var store, closeStore = mustStore(ctx)
	defer closeStore()

	var codes, err = newDirectory(store).Codes(ctx)
	mbp.Must(err, "failed to list codes")

	for _, code := range codes {
		fmt.Println(code)
	}
	return nil
}
