// Package games manages minesweeper games held in a remote.Store. Games
// live at /games/<CODE>, and the directory of live codes at /codes:
//
//	/codes/<pushID>                  "<CODE>"
//	/games/<CODE>/{board,boardSize,state}
//	/games/<CODE>/lastModified       Unix milliseconds
//	/games/<CODE>/meta/lastPlayerCleanup
//	/games/<CODE>/players/<ID>/{name,x,y,lastActive}
//	/meta/lastCleanup
//
// A Directory creates, resets, and cleans up games, and a Session binds a
// livestate.LiveState to a single game on behalf of a player.
package games

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.livesweep.dev/core/metrics"
	"go.livesweep.dev/core/minesweeper"
	"go.livesweep.dev/core/remote"
	"go.livesweep.dev/core/tree"
	"go.livesweep.dev/core/treepath"
)

const (
	// CodesPath is the list of live game codes, keyed on push ID.
	CodesPath = "/codes"
	// GamesPath holds games, keyed on code.
	GamesPath = "/games"
	// MetaPath holds directory-wide metadata.
	MetaPath = "/meta"

	// CodeChars are the characters of a game code.
	CodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// CodeLength is the number of characters of a game code.
	CodeLength = 5

	// PlayerInactiveTime after which a player without a heartbeat is idle.
	PlayerInactiveTime = 8 * time.Second
	// PlayerCleanupTime is the minimum interval between player cleanups of a game.
	PlayerCleanupTime = 4 * time.Second
	// GameInactiveTime after which an unmodified game is removed.
	GameInactiveTime = time.Hour
)

// ErrNotFound is returned for operations of a game which doesn't exist.
var ErrNotFound = errors.New("game not found")

// GamePath returns the store path of the game having |code|.
func GamePath(code string) string { return treepath.Child(GamesPath, code) }

// ValidateCode returns an error if |code| is not a well-formed game code.
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return errors.Errorf("invalid code %q (expected %d characters)", code, CodeLength)
	}
	for _, r := range code {
		if !strings.ContainsRune(CodeChars, r) {
			return errors.Errorf("invalid code %q (unexpected character %q)", code, r)
		}
	}
	return nil
}

// Millis returns |t| as a stored timestamp, in Unix milliseconds.
func Millis(t time.Time) float64 { return float64(t.UnixMilli()) }

// FromMillis returns the time of stored timestamp |v|. Values which aren't
// timestamps are the zero Unix time.
func FromMillis(v interface{}) time.Time {
	var f, _ = v.(float64)
	return time.UnixMilli(int64(f))
}

// Directory of games held in a remote.Store.
type Directory struct {
	store remote.Store

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDirectory returns a Directory of |store|, which draws game codes and
// boards from |rnd|.
func NewDirectory(store remote.Store, rnd *rand.Rand) *Directory {
	return &Directory{store: store, rnd: rnd}
}

// Codes returns the sorted codes of live games.
func (d *Directory) Codes(ctx context.Context) ([]string, error) {
	var list, err = d.codeList(ctx)
	if err != nil {
		return nil, err
	}
	var out = make([]string, 0, len(list))
	for _, code := range list {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

// Exists returns whether |code| is a live game.
func (d *Directory) Exists(ctx context.Context, code string) (bool, error) {
	var list, err = d.codeList(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range list {
		if c == code {
			return true, nil
		}
	}
	return false, nil
}

// Create a new game of |size|, returning its code. The code is listed, and
// the game written, by a single patch.
func (d *Directory) Create(ctx context.Context, size minesweeper.BoardSize, now time.Time) (string, error) {
	if err := size.Validate(); err != nil {
		return "", err
	}
	var list, err = d.codeList(ctx)
	if err != nil {
		return "", err
	}
	var taken = make(map[string]bool, len(list))
	for _, c := range list {
		taken[c] = true
	}

	d.mu.Lock()
	var code string
	for code == "" || taken[code] {
		var b = make([]byte, CodeLength)
		for i := range b {
			b[i] = CodeChars[d.rnd.Intn(len(CodeChars))]
		}
		code = string(b)
	}
	var game = minesweeper.Generate(size, d.rnd)
	d.mu.Unlock()

	// Version 7 UUIDs are time-ordered, so codes list in order of creation.
	pushID, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "generating push ID")
	}
	if err = d.store.Patch(ctx, map[string]interface{}{
		treepath.Child(CodesPath, pushID.String()): code,
		GamePath(code): gameValue(game, now),
	}); err != nil {
		return "", errors.Wrapf(err, "creating game %s", code)
	}

	log.WithFields(log.Fields{"code": code, "size": size}).Info("created game")
	return code, nil
}

// Reset the game having |code| to a new board of |size|. Its players and
// metadata are removed.
func (d *Directory) Reset(ctx context.Context, code string, size minesweeper.BoardSize, now time.Time) error {
	if err := size.Validate(); err != nil {
		return err
	}
	if ok, err := d.Exists(ctx, code); err != nil {
		return err
	} else if !ok {
		return errors.WithMessage(ErrNotFound, code)
	}

	d.mu.Lock()
	var game = minesweeper.Generate(size, d.rnd)
	d.mu.Unlock()

	if err := d.store.Write(ctx, GamePath(code), gameValue(game, now)); err != nil {
		return errors.Wrapf(err, "resetting game %s", code)
	}
	log.WithFields(log.Fields{"code": code, "size": size}).Info("reset game")
	return nil
}

// CleanupPlayers removes players of game |code| which have been idle for
// longer than PlayerInactiveTime, and returns the number removed. Cleanups
// of a game run at most once per PlayerCleanupTime: throttled calls remove
// nothing.
func (d *Directory) CleanupPlayers(ctx context.Context, code string, now time.Time) (int, error) {
	var snap, err = d.store.Read(ctx, GamePath(code))
	if err != nil {
		return 0, err
	} else if !snap.Exists() {
		return 0, errors.WithMessage(ErrNotFound, code)
	}

	var lastCleanup = snap.Child("meta").Child("lastPlayerCleanup")
	if !FromMillis(lastCleanup.Val()).Add(PlayerCleanupTime).Before(now) {
		return 0, nil
	}

	var patch = map[string]interface{}{lastCleanup.Path(): Millis(now)}
	for _, player := range snap.Child("players").Children() {
		var lastActive = FromMillis(player.Child("lastActive").Val())
		if lastActive.Add(PlayerInactiveTime).Before(now) {
			patch[player.Path()] = nil
		}
	}
	if err = d.store.Patch(ctx, patch); err != nil {
		return 0, errors.Wrapf(err, "cleaning up players of %s", code)
	}

	var removed = len(patch) - 1
	metrics.GamesCleanedTotal.WithLabelValues("player").Add(float64(removed))

	if removed != 0 {
		log.WithFields(log.Fields{"code": code, "removed": removed}).Debug("cleaned up players")
	}
	return removed, nil
}

// CleanupGames removes codes which have no game, games which have no code,
// and games not modified within GameInactiveTime (along with their codes).
// It returns the number of codes and games removed. Cleanups run at most
// once per half of GameInactiveTime: throttled calls remove nothing.
func (d *Directory) CleanupGames(ctx context.Context, now time.Time) (codes, games int, err error) {
	var lastPath = treepath.Child(MetaPath, "lastCleanup")

	lastCleanup, err := d.store.Read(ctx, lastPath)
	if err != nil {
		return 0, 0, err
	} else if !FromMillis(lastCleanup.Val()).Add(GameInactiveTime / 2).Before(now) {
		return 0, 0, nil
	}

	codesSnap, err := d.store.Read(ctx, CodesPath)
	if err != nil {
		return 0, 0, err
	}
	gamesSnap, err := d.store.Read(ctx, GamesPath)
	if err != nil {
		return 0, 0, err
	}

	var patch = map[string]interface{}{lastPath: Millis(now)}
	var listed = make(map[string]bool)

	for _, entry := range codesSnap.Children() {
		var code, _ = entry.Val().(string)
		var game = gamesSnap.Child(code)

		if code == "" || !game.Exists() {
			patch[entry.Path()] = nil // Dangling code.
			codes++
		} else if FromMillis(game.Child("lastModified").Val()).Add(GameInactiveTime).Before(now) {
			patch[entry.Path()] = nil // Expired game.
			patch[game.Path()] = nil
			codes++
			games++
			listed[code] = true
		} else {
			listed[code] = true
		}
	}
	for _, game := range gamesSnap.Children() {
		if !listed[game.Key()] {
			patch[game.Path()] = nil // Orphaned game.
			games++
		}
	}

	if err = d.store.Patch(ctx, patch); err != nil {
		return 0, 0, errors.Wrap(err, "cleaning up games")
	}
	metrics.GamesCleanedTotal.WithLabelValues("code").Add(float64(codes))
	metrics.GamesCleanedTotal.WithLabelValues("game").Add(float64(games))

	log.WithFields(log.Fields{"codes": codes, "games": games}).Info("cleaned up games")
	return codes, games, nil
}

// codeList returns live codes, keyed on push ID.
func (d *Directory) codeList(ctx context.Context) (map[string]string, error) {
	var snap, err = d.store.Read(ctx, CodesPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading codes")
	}
	var out = make(map[string]string)
	for _, entry := range snap.Children() {
		if code, ok := entry.Val().(string); ok {
			out[entry.Key()] = code
		}
	}
	return out, nil
}

// gameValue returns the stored value of a new |game|.
func gameValue(game *minesweeper.Game, now time.Time) tree.Map {
	var v = game.ToTree()
	v["lastModified"] = Millis(now)
	return v
}
