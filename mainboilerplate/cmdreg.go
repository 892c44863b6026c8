package mainboilerplate

import (
	"strings"

	"github.com/jessevdk/go-flags"
)

// AddCommandFunc adds a sub-command to a parent flags.Command.
type AddCommandFunc func(*flags.Command) error

// CommandRegistry builds a tree of go-flags commands. Commands register
// beneath a dot-separated parent name (eg "game" or "game.players") from
// init functions, and AddCommands then attaches them once every parent exists.
type CommandRegistry map[string][]AddCommandFunc

// NewCommandRegistry returns an empty CommandRegistry.
func NewCommandRegistry() CommandRegistry { return make(CommandRegistry) }

// AddCommand registers a flags.Command AddCommand of |data| beneath |parentName|.
func (cr CommandRegistry) AddCommand(parentName, command, short, long string, data interface{}) {
	cr[parentName] = append(cr[parentName], func(cmd *flags.Command) error {
		var _, err = cmd.AddCommand(command, short, long, data)
		return err
	})
}

// AddCommands adds commands registered beneath |rootName| to |rootCmd|, and
// then recursively adds commands registered beneath each of its sub-commands.
func (cr CommandRegistry) AddCommands(rootName string, rootCmd *flags.Command) error {
	for _, fn := range cr[rootName] {
		if err := fn(rootCmd); err != nil {
			return err
		}
	}
	for _, cmd := range rootCmd.Commands() {
		var name = cmd.Name
		if rootName != "" {
			name = strings.Join([]string{rootName, cmd.Name}, ".")
		}
		if err := cr.AddCommands(name, cmd); err != nil {
			return err
		}
	}
	return nil
}
