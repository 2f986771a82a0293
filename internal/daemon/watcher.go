package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"psorcast/internal/framecache"
	"psorcast/internal/logging"
	"psorcast/internal/study"
)

// FrameChange is one cached frame appearing or disappearing.
type FrameChange struct {
	Name     string
	Activity study.ActivityID
	Date     time.Time
	Removed  bool
}

// FrameWatcher reports frame file changes in the cache directory, batched
// per debounce window.
type FrameWatcher struct {
	dir       string
	watcher   *fsnotify.Watcher
	debouncer *changeDebouncer
	logger    *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewFrameWatcher watches dir and calls onFlush with the changes seen during
// each quiet period of length delay.
func NewFrameWatcher(dir string, delay time.Duration, onFlush func([]FrameChange), logger *slog.Logger) (*FrameWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &FrameWatcher{
		dir:       dir,
		watcher:   watcher,
		debouncer: newChangeDebouncer(delay, onFlush),
		logger:    logging.NewComponentLogger(logger, "frame-watcher"),
	}, nil
}

// Start begins watching. Stop must be called to release the watcher.
func (w *FrameWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.eventLoop(ctx)
	w.logger.Info("watching frame directory", logging.String("dir", w.dir))
	return nil
}

// Stop closes the watcher and drops pending changes.
func (w *FrameWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	_ = w.watcher.Close()
	w.debouncer.Stop()
	w.wg.Wait()
}

func (w *FrameWatcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if change, ok := classify(event); ok {
				w.logger.Debug("frame change",
					logging.String("name", change.Name),
					logging.Bool("removed", change.Removed),
				)
				w.debouncer.Add(change)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "frame watcher error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some frame changes may be missed until the next event"),
			)
		case <-ctx.Done():
			return
		}
	}
}

// classify maps an fsnotify event to a frame change. Partial writes, videos
// and unrelated files are ignored.
func classify(event fsnotify.Event) (FrameChange, bool) {
	name := filepath.Base(event.Name)
	if !strings.EqualFold(filepath.Ext(name), framecache.ImageExt) {
		return FrameChange{}, false
	}
	activity, date, ok := framecache.FilenameComponents(name)
	if !ok {
		return FrameChange{}, false
	}
	change := FrameChange{Name: name, Activity: activity, Date: date}
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		change.Removed = true
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
	default:
		return FrameChange{}, false
	}
	return change, true
}

type changeDebouncer struct {
	mu      sync.Mutex
	pending []FrameChange
	timer   *time.Timer
	delay   time.Duration
	onFlush func([]FrameChange)
	stopped bool
}

func newChangeDebouncer(delay time.Duration, onFlush func([]FrameChange)) *changeDebouncer {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &changeDebouncer{delay: delay, onFlush: onFlush}
}

// Add queues change and restarts the quiet-period timer.
func (d *changeDebouncer) Add(change FrameChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending = append(d.pending, change)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *changeDebouncer) flush() {
	d.mu.Lock()
	changes := d.pending
	d.pending = nil
	stopped := d.stopped
	d.mu.Unlock()

	if !stopped && len(changes) > 0 && d.onFlush != nil {
		d.onFlush(changes)
	}
}

func (d *changeDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
}
