package main

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.livesweep.dev/core/games"
	"go.livesweep.dev/core/keepalive"
	mbp "go.livesweep.dev/core/mainboilerplate"
	"go.livesweep.dev/core/metrics"
	"go.livesweep.dev/core/remote"
	"go.livesweep.dev/core/remote/etcdstore"
	"go.livesweep.dev/core/remote/memstore"
	"go.livesweep.dev/core/remote/wsstore"
	"golang.org/x/sync/errgroup"
)

const iniFilename = "sweepd.ini"

// Config is the top-level configuration object of sweepd.
var Config = new(struct {
	Sweepd struct {
		mbp.ServiceConfig
		Store           string        `long:"store" env:"STORE" default:"memory" choice:"memory" choice:"etcd" description:"Backend of the served document"`
		StorePath       string        `long:"store-path" env:"STORE_PATH" default:"/store" description:"HTTP path of the websocket store endpoint"`
		CleanupInterval time.Duration `long:"cleanup-interval" env:"CLEANUP_INTERVAL" default:"1m" description:"Interval between attempts to clean up idle games. Zero disables cleanup"`
	} `group:"Sweepd" namespace:"sweepd" env-namespace:"SWEEPD"`

	Etcd        mbp.EtcdConfig        `group:"Etcd" namespace:"etcd" env-namespace:"ETCD"`
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`
})

type cmdServe struct{}

func (cmdServe) Execute(args []string) error {
	var mux = http.NewServeMux()
	defer mbp.InitDiagnosticsAndRecover(Config.Diagnostics, mux)()
	mbp.InitLog(Config.Log)
	Config.Sweepd.Resolve()

	log.WithFields(log.Fields{
		"config":    Config,
		"version":   mbp.Version,
		"buildDate": mbp.BuildDate,
	}).Info("starting sweepd")
	prometheus.MustRegister(metrics.StoreCollectors()...)

	var ctx, cancel = signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	var ln, err = keepalive.Listen(Config.Sweepd.ListenAddr(), 3*time.Minute)
	mbp.Must(err, "failed to listen", "addr", Config.Sweepd.ListenAddr())

	log.WithFields(log.Fields{
		"id":       Config.Sweepd.ID,
		"endpoint": Config.Sweepd.Endpoint(Config.Sweepd.StorePath),
	}).Info("serving store")

	if err = serve(ctx, mux, ln); err != nil && !errors.Is(err, context.Canceled) {
		mbp.Must(err, "sweepd task failed")
	}
	log.Info("goodbye")
	return nil
}

// serve the configured store to websocket clients of |mux|, upon |ln|, and
// run periodic cleanups until |ctx| is done.
func serve(ctx context.Context, mux *http.ServeMux, ln net.Listener) error {
	var tasks, tasksCtx = errgroup.WithContext(ctx)

	var store remote.Store
	switch Config.Sweepd.Store {
	case "memory":
		store = memstore.New(nil)
	case "etcd":
		var etcd = Config.Etcd.MustDial()
		var es = etcdstore.NewStore(etcd, Config.Etcd.Prefix)
		mbp.Must(es.Load(ctx, 0), "failed to load document from Etcd", "prefix", Config.Etcd.Prefix)

		tasks.Go(func() error { return errors.Wrap(es.Watch(tasksCtx), "watching Etcd") })
		store = es
	}
	mux.Handle(Config.Sweepd.StorePath, wsstore.NewHandler(store))

	var srv = &http.Server{Handler: mux}
	tasks.Go(func() error {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			return errors.Wrap(err, "serving HTTP")
		}
		return nil
	})
	tasks.Go(func() error {
		<-tasksCtx.Done()

		var shutdownCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if Config.Sweepd.CleanupInterval != 0 {
		var dir = games.NewDirectory(store, rand.New(rand.NewSource(time.Now().UnixNano())))
		tasks.Go(func() error {
			runCleanup(tasksCtx, dir, Config.Sweepd.CleanupInterval)
			return nil
		})
	}

	return tasks.Wait()
}

// runCleanup periodically cleans up idle games until |ctx| is done.
func runCleanup(ctx context.Context, dir *games.Directory, interval time.Duration) {
	var ticker = time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if _, _, err := dir.CleanupGames(ctx, now); err != nil && ctx.Err() == nil {
				log.WithField("err", err).Warn("failed to clean up games (will retry)")
			}
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	var parser = newParser()
	mbp.AddPrintConfigCmd(parser, iniFilename)
	mbp.MustParseConfig(parser, iniFilename)
}

func newParser() *flags.Parser {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve a livesweep document store", `
Serve a document store to websocket clients, and periodically clean up idle
games of the store, until signaled to exit (via SIGTERM or SIGINT).

The document is held in memory (--sweepd.store=memory), or beneath a key
prefix of an Etcd cluster (--sweepd.store=etcd) in which case multiple sweepd
processes may serve the same document.
`, &cmdServe{})

	return parser
}
