package sweepctlcmd

import (
	"fmt"
	"time"

	mbp "go.livesweep.dev/core/mainboilerplate"
)

type cmdGameCleanup struct {
	Code string `long:"code" short:"c" description:"Clean up idle players of this game, rather than idle games"`
}

func init() {
	CommandRegistry.AddCommand("game", "cleanup", "Clean up idle games or players", `
Remove games which haven't been modified within the game inactivity window,
along with dangling codes and games having no code. Cleanups are throttled,
and a cleanup which ran recently is skipped.

With --code, instead remove players of that game which haven't sent a
heartbeat within the player inactivity window.
`, &cmdGameCleanup{})
}

func (cmd *cmdGameCleanup) Execute([]string) error {
	var ctx, cancel = startup()
	defer cancel()

	var store, closeStore = mustStore(ctx)
	defer closeStore()

	var dir = newDirectory(store)

	if cmd.Code != "" {
		var n, err = dir.CleanupPlayers(ctx, cmd.Code, time.Now())
		mbp.Must(err, "failed to clean up players", "code", cmd.Code)
		fmt.Printf("removed %d players\n", n)
		return nil
	}

	var codes, games, err = dir.CleanupGames(ctx, time.Now())
	mbp.Must(err, "failed to clean up games")
	fmt.Printf("removed %d codes and %d games\n", codes, games)
	return nil
}
