package mainboilerplate

import (
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopCmd struct {
	Flag string `long:"flag"`
}

func (noopCmd) Execute([]string) error { return nil }

func TestCommandRegistryBuildsTree(t *testing.T) {
	var parser = flags.NewParser(nil, flags.None)
	var cr = NewCommandRegistry()

	// Registration order of parents and children doesn't matter.
	cr.AddCommand("game.players", "list", "List players", "", &noopCmd{})
	cr.AddCommand("", "game", "Games", "", &struct{}{})
	cr.AddCommand("game", "players", "Players", "", &struct{}{})
	cr.AddCommand("game", "create", "Create a game", "", &noopCmd{})

	require.NoError(t, cr.AddCommands("", parser.Command))

	var game = parser.Find("game")
	require.NotNil(t, game)
	assert.NotNil(t, game.Find("create"))
	require.NotNil(t, game.Find("players"))
	assert.NotNil(t, game.Find("players").Find("list"))

	var cmd noopCmd
	parser = flags.NewParser(nil, flags.None)
	cr = NewCommandRegistry()
	cr.AddCommand("", "noop", "", "", &cmd)
	require.NoError(t, cr.AddCommands("", parser.Command))

	var _, err = parser.ParseArgs([]string{"noop", "--flag", "value"})
	require.NoError(t, err)
	assert.Equal(t, "value", cmd.Flag)
}
