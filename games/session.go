package games

import (
	"context"
	"sort"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.livesweep.dev/core/async"
	"go.livesweep.dev/core/livestate"
	"go.livesweep.dev/core/minesweeper"
	"go.livesweep.dev/core/remote"
	"go.livesweep.dev/core/tree"
)

// Player of a game.
type Player struct {
	ID         string  `json:"-"`
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	LastActive float64 `json:"lastActive"` // Unix milliseconds.
}

// Active returns whether the Player has had a heartbeat within
// PlayerInactiveTime of |now|.
func (p Player) Active(now time.Time) bool {
	return !FromMillis(p.LastActive).Add(PlayerInactiveTime).Before(now)
}

// Session of a player within a game. The Session mirrors the game through a
// livestate.LiveState, and plays by mutating the mirror.
type Session struct {
	Code     string
	PlayerID string
	Name     string

	ls *livestate.LiveState
}

// NewSession returns a Session of game |code| in |store|, for a new player
// of |name|. If |name| is empty, a name is generated. The Session runs until
// |ctx| is done or Close is called.
func NewSession(ctx context.Context, store remote.Store, code, name string) (*Session, error) {
	if err := ValidateCode(code); err != nil {
		return nil, err
	}
	if name == "" {
		name = petname.Generate(2, "-")
	}
	var s = &Session{
		Code:     code,
		PlayerID: uuid.NewString(),
		Name:     name,
		ls:       livestate.New(ctx, store),
	}
	if err := s.ls.Subscribe(GamePath(code)); err != nil {
		s.ls.Close()
		return nil, err
	}

	log.WithFields(log.Fields{"code": code, "player": s.PlayerID, "name": name}).Info("joined game")
	return s, nil
}

// LiveState returns the LiveState mirroring the game.
func (s *Session) LiveState() *livestate.LiveState { return s.ls }

// Game decodes the current mirrored game. It returns ErrNotFound if the
// game doesn't exist, or livestate.ErrNotSubscribed if the mirror isn't
// yet loaded.
func (s *Session) Game() (*minesweeper.Game, error) {
	var v, ok = s.ls.Value()
	if !ok {
		return nil, livestate.ErrNotSubscribed
	}
	return decodeGame(s.Code, v)
}

// Wait blocks until the mirror is loaded, and returns its game.
func (s *Session) Wait(ctx context.Context) (*minesweeper.Game, error) {
	for {
		var updateCh = s.ls.Update()

		if v, ok := s.ls.Value(); ok {
			return decodeGame(s.Code, v)
		}
		select {
		case <-updateCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.ls.Done():
			return nil, livestate.ErrClosed
		}
	}
}

// Reveal the cell at |row|, |col|.
func (s *Session) Reveal(row, col int, now time.Time) *async.AsyncOperation {
	return s.play(now, func(g *minesweeper.Game) bool { return g.Reveal(row, col) })
}

// ToggleFlag of the cell at |row|, |col|.
func (s *Session) ToggleFlag(row, col int, now time.Time) *async.AsyncOperation {
	return s.play(now, func(g *minesweeper.Game) bool { return g.ToggleFlag(row, col) })
}

// MoveCursor of the player to |x|, |y|, which also counts as a heartbeat.
func (s *Session) MoveCursor(x, y float64, now time.Time) *async.AsyncOperation {
	return s.updatePlayer(func(p *Player) {
		p.X, p.Y, p.LastActive = x, y, Millis(now)
	})
}

// Heartbeat marks the player as active at |now|.
func (s *Session) Heartbeat(now time.Time) *async.AsyncOperation {
	return s.updatePlayer(func(p *Player) { p.LastActive = Millis(now) })
}

// Leave removes the player from the game.
func (s *Session) Leave() *async.AsyncOperation {
	return s.ls.Mutate(func(prev interface{}) interface{} {
		if prev == nil {
			return nil
		}
		return tree.Set(prev, []string{"players", s.PlayerID}, nil)
	})
}

// ActivePlayers returns players of the mirrored game which are Active at
// |now|, ordered on name.
func (s *Session) ActivePlayers(now time.Time) []Player {
	var v, _ = s.ls.Value()
	var players, _ = tree.Get(v, []string{"players"})

	var out []Player
	for _, id := range tree.Keys(players) {
		var p Player
		var pv, _ = tree.Get(players, []string{id})

		if err := tree.Decode(pv, &p); err != nil {
			log.WithFields(log.Fields{"code": s.Code, "player": id, "err": err}).
				Warn("failed to decode player (skipping)")
			continue
		}
		if p.ID = id; p.Active(now) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close the Session and its LiveState. Close doesn't remove the player,
// which is instead cleaned up once idle (or see Leave).
func (s *Session) Close() { s.ls.Close() }

// play applies |fn| to the mirrored game, writing the changed game if it
// returns true.
func (s *Session) play(now time.Time, fn func(*minesweeper.Game) bool) *async.AsyncOperation {
	return s.ls.Mutate(func(prev interface{}) interface{} {
		var game, err = minesweeper.FromTree(prev)
		if err != nil {
			if prev != nil {
				log.WithFields(log.Fields{"code": s.Code, "err": err}).Warn("failed to decode game")
			}
			return prev
		} else if !fn(game) {
			return prev
		}

		var next = prev.(tree.Map)
		for k, v := range game.ToTree() {
			next[k] = v
		}
		next["lastModified"] = Millis(now)
		return next
	})
}

// updatePlayer applies |fn| to the player's entry. The name is always
// (re)written, so that an entry removed by cleanup is fully restored.
func (s *Session) updatePlayer(fn func(*Player)) *async.AsyncOperation {
	return s.ls.Mutate(func(prev interface{}) interface{} {
		if prev == nil {
			return nil // Game doesn't exist.
		}
		var path = []string{"players", s.PlayerID}
		var p Player

		if cur, ok := tree.Get(prev, path); ok {
			if err := tree.Decode(cur, &p); err != nil {
				log.WithFields(log.Fields{"code": s.Code, "err": err}).Warn("failed to decode own player")
			}
		}
		p.Name = s.Name
		fn(&p)

		return tree.Set(prev, path, tree.Normalize(p))
	})
}

func decodeGame(code string, v interface{}) (*minesweeper.Game, error) {
	if v == nil {
		return nil, errors.WithMessage(ErrNotFound, code)
	}
	return minesweeper.FromTree(v)
}
