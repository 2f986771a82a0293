package timeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"psorcast/internal/framecache"
	"psorcast/internal/logging"
	"psorcast/internal/services"
	"psorcast/internal/study"
	"psorcast/internal/video"
)

// TreatmentSource supplies the participant's current treatment range.
type TreatmentSource interface {
	CurrentTreatmentRange(ctx context.Context) (study.TreatmentRange, bool, error)
}

// HistoryRecorder persists measurements and export flags.
type HistoryRecorder interface {
	AddHistoryItem(ctx context.Context, item study.HistoryItem) (study.HistoryItem, error)
	DeleteHistoryItemByImage(ctx context.Context, imageName string) (bool, error)
	MarkActivityFinished(ctx context.Context, id study.ActivityID, at time.Time) error
	SetExportStatus(ctx context.Context, filename string, exported bool) error
	ExportStatus(ctx context.Context, filename string) (bool, error)
}

// Options wires a Manager.
type Options struct {
	Cache         *framecache.Cache
	Treatments    TreatmentSource
	History       HistoryRecorder
	Encoders      video.EncoderFactory
	Settings      video.RenderSettings
	CaptionLayout string
	Clock         func() time.Time
	Logger        *slog.Logger
}

// Manager owns the render registry for treatment timeline videos. At most
// one task renders a given output filename at a time.
type Manager struct {
	cache         *framecache.Cache
	treatments    TreatmentSource
	history       HistoryRecorder
	encoders      video.EncoderFactory
	settings      video.RenderSettings
	captionLayout string
	clock         func() time.Time
	logger        *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	tasks   map[string]*video.Task
	renders map[string]*sync.Mutex

	events *broker
}

// New validates opts and returns a Manager.
func New(opts Options) (*Manager, error) {
	if opts.Cache == nil {
		return nil, services.Wrap(services.ErrConfiguration, "timeline", "new manager", "frame cache required", nil)
	}
	if opts.Encoders == nil {
		return nil, services.Wrap(services.ErrConfiguration, "timeline", "new manager", "encoder factory required", nil)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.CaptionLayout == "" {
		opts.CaptionLayout = framecache.DefaultCaptionLayout
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		cache:         opts.Cache,
		treatments:    opts.Treatments,
		history:       opts.History,
		encoders:      opts.Encoders,
		settings:      opts.Settings,
		captionLayout: opts.CaptionLayout,
		clock:         opts.Clock,
		logger:        logging.NewComponentLogger(opts.Logger, "timeline"),
		baseCtx:       ctx,
		stop:          stop,
		tasks:         make(map[string]*video.Task),
		renders:       make(map[string]*sync.Mutex),
		events:        newBroker(),
	}, nil
}

// Subscribe returns a channel of timeline events and a function that
// unsubscribes and closes it.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.events.subscribe(buffer)
}

// CreateCurrentTreatmentVideo ensures the video for the current treatment
// range exists or is rendering.
func (m *Manager) CreateCurrentTreatmentVideo(ctx context.Context, activity study.ActivityID) error {
	r, err := m.currentRange(ctx)
	if err != nil {
		return err
	}
	return m.CreateTreatmentVideo(ctx, activity, r)
}

// CreateTreatmentVideo publishes an existing video, leaves an in-flight
// render alone, or starts a new render.
func (m *Manager) CreateTreatmentVideo(ctx context.Context, activity study.ActivityID, r study.TreatmentRange) error {
	filename := framecache.VideoFilename(activity, r.StartDate)
	unlock := m.lockRender(filename)
	if task, active := m.Task(filename); active && !task.Cancelled() {
		unlock()
		m.logger.Debug("render already in progress", logging.String("filename", filename))
		return nil
	}
	path, exists, err := m.cache.FindVideo(activity, r.StartDate)
	if err != nil {
		unlock()
		return err
	}
	if exists {
		unlock()
		m.events.publish(Event{Kind: EventVideoCreated, Activity: activity, Filename: filename, OutputPath: path})
		return nil
	}
	_, err = m.recreateLocked(ctx, activity, r)
	unlock()
	return err
}

// RecreateCurrentTreatmentVideo renders the current treatment video even if
// one already exists.
func (m *Manager) RecreateCurrentTreatmentVideo(ctx context.Context, activity study.ActivityID) (*video.Task, error) {
	r, err := m.currentRange(ctx)
	if err != nil {
		return nil, err
	}
	return m.recreate(ctx, activity, r)
}

func (m *Manager) currentRange(ctx context.Context) (study.TreatmentRange, error) {
	if m.treatments == nil {
		return study.TreatmentRange{}, services.Wrap(services.ErrConfiguration, "timeline", "current treatment", "no treatment source", nil)
	}
	r, ok, err := m.treatments.CurrentTreatmentRange(ctx)
	if err != nil {
		return study.TreatmentRange{}, err
	}
	if !ok {
		return study.TreatmentRange{}, services.Wrap(services.ErrNotFound, "timeline", "current treatment", "no treatment has been started", nil)
	}
	return r, nil
}

// lockRender serialises registry changes for one output file and returns
// the unlock function.
func (m *Manager) lockRender(filename string) func() {
	m.mu.Lock()
	lock, ok := m.renders[filename]
	if !ok {
		lock = &sync.Mutex{}
		m.renders[filename] = lock
	}
	m.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (m *Manager) recreate(ctx context.Context, activity study.ActivityID, r study.TreatmentRange) (*video.Task, error) {
	unlock := m.lockRender(framecache.VideoFilename(activity, r.StartDate))
	defer unlock()
	return m.recreateLocked(ctx, activity, r)
}

// recreateLocked replaces the render for activity and r. The caller holds
// the render lock for the output file, so the displaced task has fully
// stopped before the new one touches the file.
func (m *Manager) recreateLocked(ctx context.Context, activity study.ActivityID, r study.TreatmentRange) (*video.Task, error) {
	filename := framecache.VideoFilename(activity, r.StartDate)
	ctx = services.WithActivity(ctx, string(activity))
	logger := logging.WithContext(ctx, m.logger).With(logging.String("filename", filename))

	m.displace(filename)

	frames, err := m.cache.FindFrames(activity, r, m.clock(), m.captionLayout)
	if err != nil {
		return nil, err
	}
	if len(frames) < 2 {
		logger.Info("not enough frames for a timeline", logging.Int("frames", len(frames)))
		return nil, fmt.Errorf("%s: %w", filename, video.ErrTooFewFrames)
	}

	settings := m.settings
	settings.Dir = m.cache.Dir()
	settings.Ext = framecache.VideoExt
	settings.Filename = strings.TrimSuffix(filename, framecache.VideoExt)

	var task *video.Task
	sampler := logging.NewProgressSampler(10)
	observer := video.ObserverFuncs{
		OnProgress: func(taskID string, fraction float64) {
			if sampler.ShouldLog(fraction*100, filename) {
				logger.Info("timeline render progress", logging.String(logging.FieldTaskID, taskID), logging.Float64("percent", fraction*100))
			}
			m.events.publish(Event{Kind: EventVideoProgress, Activity: activity, Filename: filename, TaskID: taskID, Progress: fraction})
		},
		OnCompleted: func(taskID string, outputPath string) {
			m.unregister(filename, task)
			m.events.publish(Event{Kind: EventVideoCreated, Activity: activity, Filename: filename, OutputPath: outputPath, TaskID: taskID})
		},
	}
	task = video.NewTask(m.cache.Fs(), frames, settings, m.encoders(settings), observer, m.logger)

	if err := m.ResetExportStatus(ctx, filename); err != nil {
		logging.WarnWithContext(logger, "failed to reset export status", "export_status_reset_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "video may still be reported as exported"),
		)
	}

	m.mu.Lock()
	m.tasks[filename] = task
	m.mu.Unlock()

	if err := task.Start(m.baseCtx); err != nil {
		m.unregister(filename, task)
		return nil, err
	}
	go func() {
		<-task.Done()
		m.unregister(filename, task)
		if err := task.Err(); err != nil && !errors.Is(err, video.ErrCancelled) {
			logging.WarnWithContext(logger, "timeline render did not complete", "render_incomplete",
				logging.String(logging.FieldTaskID, task.ID()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "previous video remains deleted until the next frame arrives"),
			)
		}
	}()
	logger.Info("timeline render queued", logging.String(logging.FieldTaskID, task.ID()), logging.Int("frames", len(frames)))
	return task, nil
}

// unregister removes filename only if it still maps to task.
func (m *Manager) unregister(filename string, task *video.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.tasks[filename]; ok && current == task {
		delete(m.tasks, filename)
	}
}

// CancelVideoCreatorTask cancels and forgets any render for filename and
// waits for it to stop.
func (m *Manager) CancelVideoCreatorTask(filename string) {
	unlock := m.lockRender(filename)
	defer unlock()
	m.displace(filename)
}

// displace unregisters and cancels the render for filename, then waits for
// it to release the output. Cancellation is observed at the next frame
// boundary or encoder wait. The caller holds the render lock.
func (m *Manager) displace(filename string) {
	m.mu.Lock()
	task, ok := m.tasks[filename]
	delete(m.tasks, filename)
	m.mu.Unlock()
	if !ok {
		return
	}
	task.Cancel()
	<-task.Done()
	m.logger.Debug("cancelled render", logging.String("filename", filename), logging.String(logging.FieldTaskID, task.ID()))
}

// Task returns the active render for filename.
func (m *Manager) Task(filename string) (*video.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[filename]
	return task, ok
}

// Active lists filenames with a registered render.
func (m *Manager) Active() []string {
	m.mu.Lock()
	names := make([]string, 0, len(m.tasks))
	for name := range m.tasks {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Strings(names)
	return names
}

// Wait blocks until every currently registered render is terminal.
func (m *Manager) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		pending := make([]*video.Task, 0, len(m.tasks))
		for _, task := range m.tasks {
			pending = append(pending, task)
		}
		m.mu.Unlock()
		if len(pending) == 0 {
			return nil
		}
		for _, task := range pending {
			select {
			case <-task.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Close cancels every render and waits for them to stop.
func (m *Manager) Close() {
	m.stop()
	for _, name := range m.Active() {
		if task, ok := m.Task(name); ok {
			task.Cancel()
			<-task.Done()
		}
	}
}

// TaskResult is one finished measurement handed over by the activity flow.
type TaskResult struct {
	Activity         study.ActivityID
	SummaryImage     io.Reader
	FinishedAt       time.Time
	ReportIdentifier string
	Coverage         *float64
	JointCount       *int
	SelectedZone     string
	Rotations        *study.JarRotations
}

// ProcessTaskResult caches the summary image, records the history item,
// marks the activity finished, and rebuilds the current treatment video.
func (m *Manager) ProcessTaskResult(ctx context.Context, result TaskResult) (study.HistoryItem, error) {
	if m.history == nil {
		return study.HistoryItem{}, services.Wrap(services.ErrConfiguration, "timeline", "process result", "no history recorder", nil)
	}
	if !result.Activity.Known() {
		return study.HistoryItem{}, services.Wrap(services.ErrValidation, "timeline", "process result", fmt.Sprintf("unknown activity %q", result.Activity), nil)
	}
	at := result.FinishedAt
	if at.IsZero() {
		at = m.clock()
	}

	item := study.HistoryItem{
		TaskIdentifier:   result.Activity,
		ReportIdentifier: result.ReportIdentifier,
		Date:             at,
		Coverage:         result.Coverage,
		JointCount:       result.JointCount,
		SelectedZone:     result.SelectedZone,
		Rotations:        result.Rotations,
	}
	if result.SummaryImage != nil {
		name, err := m.cache.Ingest(result.SummaryImage, result.Activity, at)
		if err != nil {
			return study.HistoryItem{}, err
		}
		item.ImageName = name
	}

	saved, err := m.history.AddHistoryItem(ctx, item)
	if err != nil {
		if item.ImageName != "" {
			_ = m.cache.Remove(item.ImageName)
		}
		return study.HistoryItem{}, err
	}
	if err := m.history.MarkActivityFinished(ctx, result.Activity, at); err != nil {
		return saved, err
	}
	if saved.ImageName == "" {
		return saved, nil
	}

	m.events.publish(Event{Kind: EventImageFrameAdded, Activity: result.Activity, ImageName: saved.ImageName})
	if _, err := m.RecreateCurrentTreatmentVideo(ctx, result.Activity); err != nil && !isBenign(err) {
		return saved, err
	}
	return saved, nil
}

// DeleteFrame removes a cached frame and its history item, then rebuilds
// the current treatment video for that activity.
func (m *Manager) DeleteFrame(ctx context.Context, imageName string) error {
	activity, _, ok := framecache.FilenameComponents(imageName)
	if !ok {
		return services.Wrap(services.ErrValidation, "timeline", "delete frame", fmt.Sprintf("not a frame name: %q", imageName), nil)
	}
	if err := m.cache.Remove(imageName); err != nil {
		return err
	}
	if m.history != nil {
		if _, err := m.history.DeleteHistoryItemByImage(ctx, imageName); err != nil {
			return err
		}
	}

	r, err := m.currentRange(ctx)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil
		}
		return err
	}
	filename := framecache.VideoFilename(activity, r.StartDate)
	unlock := m.lockRender(filename)
	defer unlock()
	if _, err := m.recreateLocked(ctx, activity, r); err != nil {
		if errors.Is(err, video.ErrTooFewFrames) {
			return m.cache.Remove(filename)
		}
		return err
	}
	return nil
}

func isBenign(err error) bool {
	return errors.Is(err, video.ErrTooFewFrames) || errors.Is(err, services.ErrNotFound)
}

// MarkExported flags filename as exported.
func (m *Manager) MarkExported(ctx context.Context, filename string) error {
	return m.setExportStatus(ctx, filename, true)
}

// ResetExportStatus clears the exported flag for filename.
func (m *Manager) ResetExportStatus(ctx context.Context, filename string) error {
	return m.setExportStatus(ctx, filename, false)
}

// ExportStatus reports whether filename has been exported since it was rendered.
func (m *Manager) ExportStatus(ctx context.Context, filename string) (bool, error) {
	if m.history == nil {
		return false, nil
	}
	return m.history.ExportStatus(ctx, filename)
}

func (m *Manager) setExportStatus(ctx context.Context, filename string, exported bool) error {
	if m.history != nil {
		if err := m.history.SetExportStatus(ctx, filename, exported); err != nil {
			return err
		}
	}
	activity, _, _ := framecache.FilenameComponents(filename)
	m.events.publish(Event{Kind: EventExportStatusChanged, Activity: activity, Filename: filename, Exported: exported})
	return nil
}
