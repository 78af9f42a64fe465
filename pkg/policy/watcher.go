package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long the watcher waits after the last file event
// before firing, so editors that write in several steps trigger one reload.
const watchDebounce = 100 * time.Millisecond

var errWatcherClosed = errors.New("watcher channel closed")

// Watch implements Watchable for file sources. It blocks until the context
// is done, invoking onChange after each debounced batch of YAML changes
// under the source path.
func (s *FileSource) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &WatchError{Path: s.path, Cause: err}
	}
	defer watcher.Close()

	// Watch the directory containing a single pack file so renames and
	// atomic replaces are seen.
	target := s.path
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		target = filepath.Dir(target)
	}
	if err := watcher.Add(target); err != nil {
		return &WatchError{Path: target, Cause: err}
	}

	debounce := newDebouncer(watchDebounce)
	defer debounce.stop()

	s.logger.Info("watching policy pack", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return &WatchError{Path: target, Cause: errWatcherClosed}
			}
			if !relevantEvent(event) {
				continue
			}
			s.logger.Debug("policy file event", "path", event.Name, "op", event.Op.String())
			debounce.trigger(onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return &WatchError{Path: target, Cause: errWatcherClosed}
			}
			// Keep watching; transient fs errors must not kill hot reload.
			s.logger.Error("policy watcher error", "error", err)
		}
	}
}

// relevantEvent filters to YAML writes, creates, removes, and renames.
func relevantEvent(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// debouncer collapses rapid event bursts into one callback after a quiet
// period.
type debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	stopped  bool
}

func newDebouncer(interval time.Duration) *debouncer {
	return &debouncer{interval: interval}
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			fn()
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
