// Package watcher guards the SQLite database file: if the file vanishes
// from disk while the service runs, the schema is recreated so the next
// query does not land on a missing database.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Rebuilder restores the schema after the database file disappears.
// The SQLite store's Migrate satisfies this.
type Rebuilder interface {
	Migrate() error
}

// Guard watches the database file's parent directory; fsnotify cannot
// watch a path that no longer exists, so deletions are observed from
// one level up.
type Guard struct {
	dbPath   string
	dir      string
	rebuild  Rebuilder
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewGuard creates a guard for the database at dbPath.
func NewGuard(dbPath string, rebuild Rebuilder, logger zerolog.Logger) (*Guard, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Guard{
		dbPath:   filepath.Clean(dbPath),
		dir:      filepath.Dir(dbPath),
		rebuild:  rebuild,
		watcher:  fsw,
		logger:   logger,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Run watches until the context is cancelled.
func (g *Guard) Run(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return nil
	}
	g.running = true
	ctx, g.cancel = context.WithCancel(ctx)
	g.mu.Unlock()

	if err := g.addWatch(); err != nil {
		g.logger.Warn().Err(err).Str("dir", g.dir).Msg("database directory watch failed")
	}

	defer g.watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-g.watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)

			switch {
			case name == g.dbPath && event.Op&fsnotify.Remove != 0:
				g.logger.Warn().Str("path", g.dbPath).Msg("database file deleted")
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(g.debounce, g.restore)

			case name == g.dbPath && event.Op&fsnotify.Create != 0:
				// The file came back on its own (restore, copy-in).
				if timer != nil {
					timer.Stop()
				}

			case name == g.dir && event.Op&fsnotify.Remove != 0:
				g.logger.Warn().Str("dir", g.dir).Msg("database directory deleted")
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(g.debounce, g.restore)

			case name == g.dir && event.Op&fsnotify.Create != 0:
				if err := g.addWatch(); err != nil {
					g.logger.Warn().Err(err).Str("dir", g.dir).Msg("re-watch failed")
				}
			}

		case err, ok := <-g.watcher.Errors:
			if !ok {
				return nil
			}
			g.logger.Error().Err(err).Msg("watch error")
		}
	}
}

// Stop cancels a running guard.
func (g *Guard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
}

func (g *Guard) addWatch() error {
	if _, err := os.Stat(g.dir); err != nil {
		return err
	}
	return g.watcher.Add(g.dir)
}

// restore recreates the directory and schema, then re-establishes the
// watch in case the directory itself was replaced.
func (g *Guard) restore() {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		g.logger.Error().Err(err).Str("dir", g.dir).Msg("recreate database directory")
		return
	}
	if err := g.rebuild.Migrate(); err != nil {
		g.logger.Error().Err(err).Msg("schema rebuild failed")
		return
	}
	g.logger.Info().Str("path", g.dbPath).Msg("schema rebuilt after deletion")

	if err := g.addWatch(); err != nil {
		g.logger.Warn().Err(err).Str("dir", g.dir).Msg("re-watch after rebuild failed")
	}
}
