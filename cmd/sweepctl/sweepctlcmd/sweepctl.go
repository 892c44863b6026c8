// Package sweepctlcmd implements the sweepctl command-line tool.
package sweepctlcmd

import (
	"context"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.livesweep.dev/core/games"
	mbp "go.livesweep.dev/core/mainboilerplate"
	"go.livesweep.dev/core/remote"
	"go.livesweep.dev/core/remote/etcdstore"
	"go.livesweep.dev/core/remote/wsstore"
)

const iniFilename = "sweepctl.ini"

var (
	baseCfg = new(struct {
		Store StoreConfig    `group:"Store" namespace:"store" env-namespace:"STORE"`
		Etcd  mbp.EtcdConfig `group:"Etcd" namespace:"etcd" env-namespace:"ETCD"`
		Log   mbp.LogConfig  `group:"Logging" namespace:"log" env-namespace:"LOG"`
	})
	// CommandRegistry of sweepctl sub-commands, populated from init functions.
	CommandRegistry = mbp.NewCommandRegistry()
)

// StoreConfig configures the store which sweepctl operates against.
type StoreConfig struct {
	Backend string `long:"backend" env:"BACKEND" default:"websocket" choice:"websocket" choice:"etcd" description:"Store backend: a sweepd websocket endpoint, or Etcd directly"`
	Address string `long:"address" env:"ADDRESS" default:"ws://localhost:8080/store" description:"Websocket store endpoint of sweepd"`
}

// GameConfig is common configuration of commands operating on one game.
type GameConfig struct {
	Code string `long:"code" short:"c" required:"true" description:"Code of the game"`
}

// Execute sweepctl.
func Execute() {
	var parser = flags.NewParser(baseCfg, flags.Default)

	mbp.AddPrintConfigCmd(parser, iniFilename)
	parser.LongDescription = `sweepctl is a tool for playing and administering livesweep games.

	See --help pages of each sub-command for documentation and usage examples.
	Optionally configure sweepctl with a '` + iniFilename + `' file in the current working directory,
	or with '~/.config/livesweep/` + iniFilename + `'. Use the 'print-config' sub-command to inspect
	the tool's current configuration.
	`

	// Commands which exist solely to organize nested sub-commands.
	_ = mustAddCmd(parser.Command, "game", "Create, play, and administer games", "", &struct{}{})
	_ = mustAddCmd(parser.Command, "tree", "Read and patch raw document paths", "", &struct{}{})

	mbp.Must(CommandRegistry.AddCommands("", parser.Command), "could not add sub-command")
	mbp.MustParseConfig(parser, iniFilename)
}

func mustAddCmd(cmd *flags.Command, name, short, long string, cfg interface{}) *flags.Command {
	cmd, err := cmd.AddCommand(name, short, long, cfg)
	mbp.Must(err, "failed to add command")
	return cmd
}

// startup initializes logging and returns a context which is cancelled
// upon SIGINT or SIGTERM.
func startup() (context.Context, context.CancelFunc) {
	mbp.InitLog(baseCfg.Log)
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// mustStore connects to the configured store. The returned Store runs until
// |ctx| is done, or the returned func is called.
func mustStore(ctx context.Context) (remote.Store, func()) {
	switch baseCfg.Store.Backend {
	case "etcd":
		var etcd = baseCfg.Etcd.MustDial()
		var store = etcdstore.NewStore(etcd, baseCfg.Etcd.Prefix)
		mbp.Must(store.Load(ctx, 0), "failed to load document from Etcd")

		ctx, cancel := context.WithCancel(ctx)
		go func() {
			if err := store.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithField("err", err).Error("watching Etcd failed")
			}
		}()
		return store, func() { cancel(); _ = etcd.Close() }

	default:
		var client, err = wsstore.Dial(ctx, baseCfg.Store.Address)
		mbp.Must(err, "failed to dial store")
		return client, func() { _ = client.Close() }
	}
}

func newDirectory(store remote.Store) *games.Directory {
	return games.NewDirectory(store, rand.New(rand.NewSource(time.Now().UnixNano())))
}
