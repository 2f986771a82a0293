package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"psorcast/internal/config"
	"psorcast/internal/logging"
	"psorcast/internal/reminders"
	"psorcast/internal/services"
	"psorcast/internal/study"
	"psorcast/internal/timeline"
	"psorcast/internal/video"
)

// Timeline is the subset of timeline.Manager the daemon drives.
type Timeline interface {
	CreateCurrentTreatmentVideo(ctx context.Context, activity study.ActivityID) error
	RecreateCurrentTreatmentVideo(ctx context.Context, activity study.ActivityID) (*video.Task, error)
	Subscribe(buffer int) (<-chan timeline.Event, func())
	Active() []string
	Close()
}

// TreatmentSource supplies the current treatment range.
type TreatmentSource interface {
	CurrentTreatmentRange(ctx context.Context) (study.TreatmentRange, bool, error)
}

// Daemon rebuilds treatment videos as frames arrive and enforces
// single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	timeline   Timeline
	treatments TreatmentSource
	notifier   reminders.Service
	clock      func() time.Time

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	watcher *FrameWatcher
	wg      sync.WaitGroup

	mu      sync.Mutex
	rebuilt int
	flushes atomic.Int64
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool     `json:"running"`
	LockFilePath string   `json:"lock_file"`
	FrameDir     string   `json:"frame_dir"`
	ActiveRender []string `json:"active_renders"`
	Rebuilds     int      `json:"rebuilds"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, tl Timeline, treatments TreatmentSource, notifier reminders.Service, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || tl == nil || treatments == nil {
		return nil, errors.New("daemon requires config, timeline manager, and treatment source")
	}
	if notifier == nil {
		notifier = reminders.NewService(nil, logger)
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		timeline:   tl,
		treatments: treatments,
		notifier:   notifier,
		clock:      time.Now,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the lock, starts the frame watcher, and relays finished
// videos to the reminder service.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another psorcast daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	watcher, err := NewFrameWatcher(d.cfg.Paths.FrameDir, d.cfg.Debounce(), func(changes []FrameChange) {
		d.handleChanges(runCtx, changes)
	}, d.logger)
	if err == nil {
		err = watcher.Start(runCtx)
	}
	if err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start frame watcher: %w", err)
	}
	d.watcher = watcher
	d.cancel = cancel

	events, unsubscribe := d.timeline.Subscribe(16)
	d.wg.Add(2)
	go d.relayEvents(runCtx, events, unsubscribe)
	go d.catchUp(runCtx)

	d.running.Store(true)
	d.logger.Info("psorcast daemon started", logging.String("lock", d.lockPath), logging.String("frame_dir", d.cfg.Paths.FrameDir))
	return nil
}

// Stop stops watching, cancels renders and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.watcher != nil {
		d.watcher.Stop()
		d.watcher = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.timeline.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("psorcast daemon stopped")
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	rebuilt := d.rebuilt
	d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		FrameDir:     d.cfg.Paths.FrameDir,
		ActiveRender: d.timeline.Active(),
		Rebuilds:     rebuilt,
	}
}

// handleChanges rebuilds one video per activity touched inside the current
// treatment range.
func (d *Daemon) handleChanges(ctx context.Context, changes []FrameChange) {
	r, ok, err := d.treatments.CurrentTreatmentRange(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "treatment lookup failed", "treatment_lookup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "frame changes ignored until the next event"),
		)
		return
	}
	if !ok {
		d.logger.Debug("frame changes ignored without a treatment", logging.Int("changes", len(changes)))
		return
	}

	now := d.clock()
	seen := make(map[study.ActivityID]bool)
	var activities []study.ActivityID
	for _, change := range changes {
		if seen[change.Activity] || !r.Contains(change.Date, now) {
			continue
		}
		seen[change.Activity] = true
		activities = append(activities, change.Activity)
	}

	ctx = services.WithRequestID(ctx, fmt.Sprintf("flush-%d", d.flushes.Add(1)))
	for _, activity := range activities {
		actx := services.WithActivity(ctx, string(activity))
		logger := logging.WithContext(actx, d.logger)
		_, err := d.timeline.RecreateCurrentTreatmentVideo(actx, activity)
		switch {
		case err == nil:
			d.mu.Lock()
			d.rebuilt++
			d.mu.Unlock()
			logger.Info("timeline rebuild scheduled")
		case errors.Is(err, video.ErrTooFewFrames):
			logger.Info("timeline rebuild skipped", logging.String("reason", err.Error()))
		default:
			logging.ErrorWithContext(logger, "timeline rebuild failed", "rebuild_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run psorcast video build to retry"),
			)
		}
	}
}

// catchUp makes sure every activity has a video for the current treatment,
// covering frames cached while the daemon was down.
func (d *Daemon) catchUp(ctx context.Context) {
	defer d.wg.Done()
	for _, activity := range study.AllActivities() {
		if ctx.Err() != nil {
			return
		}
		err := d.timeline.CreateCurrentTreatmentVideo(ctx, activity)
		if err == nil || errors.Is(err, video.ErrTooFewFrames) {
			continue
		}
		if errors.Is(err, services.ErrNotFound) {
			d.logger.Info("no treatment started; skipping startup rebuild")
			return
		}
		logging.WarnWithContext(d.logger, "startup rebuild failed", "rebuild_failed",
			logging.String(logging.FieldActivity, string(activity)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "video refreshes on the next frame change"),
		)
	}
}

func (d *Daemon) relayEvents(ctx context.Context, events <-chan timeline.Event, unsubscribe func()) {
	defer d.wg.Done()
	defer unsubscribe()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != timeline.EventVideoCreated {
				continue
			}
			d.logger.Info("timeline video ready", logging.String("output", ev.OutputPath))
			if err := d.notifier.NotifyVideoReady(ctx, ev); err != nil {
				logging.WarnWithContext(d.logger, "video ready notification failed", "notification_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "participant not notified about the new video"),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}
