package sweepctlcmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.livesweep.dev/core/games"
	mbp "go.livesweep.dev/core/mainboilerplate"
	"go.livesweep.dev/core/metrics"
)

type cmdGameShow struct {
	GameConfig
}

type cmdGameWatch struct {
	GameConfig
	Name        string `long:"name" short:"n" description:"Player name. Generated if not set"`
	MetricsAddr string `long:"metrics-addr" description:"Address at which Prometheus metrics of the watched game are served. Disabled if not set"`
}

func init() {
	CommandRegistry.AddCommand("game", "show", "Show a game's board and players", `
Show the current board and active players of the game of --code.

Hidden cells are shown as "#", flags as "F", and revealed cells as their
count of adjacent bombs (or blank, if zero).
`, &cmdGameShow{})

	CommandRegistry.AddCommand("game", "watch", "Join a game and watch it live", `
Join the game of --code as a player, and re-print its board and players as
the game changes, until signaled to exit. The player sends heartbeats while
watching and cleans up idle players of the game, and leaves upon exit.
`, &cmdGameWatch{})
}

func (cmd *cmdGameShow) Execute([]string) error {
	var ctx, cancel = startup()
	defer cancel()

	var store, closeStore = mustStore(ctx)
	defer closeStore()

	var s, err = games.NewSession(ctx, store, cmd.Code, "")
	mbp.Must(err, "failed to start session")
	defer s.Close()

	game, err := s.Wait(ctx)
	mbp.Must(err, "failed to load game", "code", cmd.Code)

	mbp.Must(writeBoard(os.Stdout, game), "failed to write board")
	mbp.Must(writePlayers(os.Stdout, s.ActivePlayers(time.Now()), "", time.Now()),
		"failed to write players")
	return nil
}

func (cmd *cmdGameWatch) Execute([]string) error {
	var ctx, cancel = startup()
	defer cancel()

	var store, closeStore = mustStore(ctx)
	defer closeStore()

	if cmd.MetricsAddr != "" {
		var addr, stop, err = serveMetrics(cmd.MetricsAddr)
		mbp.Must(err, "failed to serve metrics")
		defer stop()

		log.WithField("addr", addr.String()).Info("serving metrics")
	}

	var s, err = games.NewSession(ctx, store, cmd.Code, cmd.Name)
	mbp.Must(err, "failed to start session")
	defer s.Close()

	_, err = s.Wait(ctx)
	mbp.Must(err, "failed to load game", "code", cmd.Code)

	var dir = newDirectory(store)
	var ticker = time.NewTicker(games.PlayerInactiveTime / 2)
	defer ticker.Stop()

	s.Heartbeat(time.Now())

	for {
		var updateCh = s.LiveState().Update()

		if game, err := s.Game(); err != nil {
			log.WithField("err", err).Warn("game is unavailable")
		} else {
			os.Stdout.WriteString("\033[H\033[2J") // Clear the terminal.
			mbp.Must(writeBoard(os.Stdout, game), "failed to write board")
			mbp.Must(writePlayers(os.Stdout, s.ActivePlayers(time.Now()), s.PlayerID, time.Now()),
				"failed to write players")
		}

		select {
		case <-updateCh:
		case now := <-ticker.C:
			s.Heartbeat(now)

			if _, err := dir.CleanupPlayers(ctx, cmd.Code, now); err != nil && ctx.Err() == nil {
				log.WithField("err", err).Warn("failed to clean up players")
			}
		case <-ctx.Done():
			return leave(s)
		}
	}
}

// leave removes the Session's player from its game, and awaits the write.
func leave(s *games.Session) error {
	var ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var op = s.Leave()
	select {
	case <-op.Done():
		return op.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serveMetrics serves LiveState metrics at /metrics of |addr|. It returns
// the bound address, and a func which stops the server.
func serveMetrics(addr string) (net.Addr, func(), error) {
	var ln, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.Wrap(err, "listening for metrics")
	}
	var reg = prometheus.NewRegistry()
	reg.MustRegister(metrics.LiveStateCollectors()...)

	var mux = http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	var srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("err", err).Warn("metrics server failed")
		}
	}()
	return ln.Addr(), func() { _ = srv.Close() }, nil
}
