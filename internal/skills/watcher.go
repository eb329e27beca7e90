package skills

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher re-runs the loader whenever a watched skill directory changes
// and hands the fresh set to the callback. Events are debounced so an
// editor save (often write + chmod + rename) triggers a single reload.
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	onReload func([]Skill)
	logger   zerolog.Logger
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

const defaultDebounce = 250 * time.Millisecond

// NewWatcher builds a watcher over the loader's directories. Directories
// that do not exist yet are skipped; they are picked up on the next
// construction, not dynamically.
func NewWatcher(loader *Loader, onReload func([]Skill), logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range loader.dirs {
		if err := fw.Add(dir); err != nil {
			logger.Debug().Str("dir", dir).Err(err).Msg("skill directory not watchable, skipping")
			continue
		}
		// Manifests live one level down; watch existing skill directories
		// so edits to their SKILL.md files are seen.
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				fw.Add(filepath.Join(dir, entry.Name()))
			}
		}
	}
	return &Watcher{
		loader:   loader,
		watcher:  fw,
		onReload: onReload,
		logger:   logger,
		debounce: defaultDebounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Calling Start twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.watcher.Add(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-fire
				}
				timer.Reset(w.debounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("skill watcher error")
		}
	}
}

func (w *Watcher) reload() {
	skills, err := w.loader.Load()
	if err != nil {
		// Keep serving the previous set until the directory parses again.
		w.logger.Error().Err(err).Msg("skill reload failed")
		return
	}
	w.logger.Info().Int("count", len(skills)).Msg("skills reloaded")
	w.onReload(skills)
}

// Stop stops watching and waits for the run loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}
