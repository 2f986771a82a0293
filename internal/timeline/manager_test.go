package timeline_test

import (
	"context"
	"errors"
	"image/color"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"psorcast/internal/framecache"
	"psorcast/internal/history"
	"psorcast/internal/services"
	"psorcast/internal/study"
	"psorcast/internal/testsupport"
	"psorcast/internal/timeline"
	"psorcast/internal/video"
)

const cacheDir = "/frames"

var treatmentStart = time.Date(2020, 3, 20, 0, 0, 0, 0, time.UTC)

type fixedTreatment struct {
	r  study.TreatmentRange
	ok bool
}

func (f fixedTreatment) CurrentTreatmentRange(context.Context) (study.TreatmentRange, bool, error) {
	return f.r, f.ok, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	items    []study.HistoryItem
	deleted  []string
	finished map[study.ActivityID]time.Time
	exported map[string]bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{finished: map[study.ActivityID]time.Time{}, exported: map[string]bool{}}
}

func (f *fakeRecorder) AddHistoryItem(_ context.Context, item study.HistoryItem) (study.HistoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ID = int64(len(f.items) + 1)
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeRecorder) DeleteHistoryItemByImage(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return true, nil
}

func (f *fakeRecorder) MarkActivityFinished(_ context.Context, id study.ActivityID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[id] = at
	return nil
}

func (f *fakeRecorder) SetExportStatus(_ context.Context, filename string, exported bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exported[filename] = exported
	return nil
}

func (f *fakeRecorder) ExportStatus(_ context.Context, filename string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exported[filename], nil
}

type harness struct {
	fs       afero.Fs
	cache    *framecache.Cache
	manager  *timeline.Manager
	recorder *fakeRecorder
	clock    *testsupport.Clock

	mu       sync.Mutex
	gate     chan struct{}
	encoders []*video.RecordingEncoder
}

func (h *harness) encoderCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.encoders)
}

func renderSettings() video.RenderSettings {
	s := video.DefaultRenderSettings()
	s.FPS = 10
	s.FramesPerImage = 2
	s.FramesPerTransition = 1
	s.FontSize = 12
	s.Padding = 4
	s.StallTimeout = 5 * time.Second
	return s
}

func newHarness(t *testing.T, treatments timeline.TreatmentSource, gate chan struct{}) *harness {
	t.Helper()
	h := &harness{
		fs:       afero.NewMemMapFs(),
		recorder: newFakeRecorder(),
		clock:    testsupport.FixedClock(time.Date(2020, 3, 30, 12, 0, 0, 0, time.UTC)),
		gate:     gate,
	}
	h.cache = framecache.New(h.fs, cacheDir, nil)
	manager, err := timeline.New(timeline.Options{
		Cache:      h.cache,
		Treatments: treatments,
		History:    h.recorder,
		Encoders: func(video.RenderSettings) video.Encoder {
			enc := video.NewRecordingEncoder()
			enc.Gate = h.gate
			h.mu.Lock()
			h.encoders = append(h.encoders, enc)
			h.mu.Unlock()
			return enc
		},
		Settings: renderSettings(),
		Clock:    h.clock.Now,
	})
	if err != nil {
		t.Fatalf("timeline.New: %v", err)
	}
	t.Cleanup(manager.Close)
	h.manager = manager
	return h
}

func openTreatment() fixedTreatment {
	return fixedTreatment{r: study.TreatmentRange{ID: 1, Treatments: []string{"Methotrexate"}, StartDate: treatmentStart}, ok: true}
}

func (h *harness) seed(t *testing.T, task study.ActivityID, days ...int) {
	t.Helper()
	for _, d := range days {
		when := time.Date(2020, 3, d, 9, 0, 0, 0, time.UTC)
		testsupport.WriteImage(t, h.fs, h.cache.Path(framecache.ImageFilename(task, when)), 200, 160, color.RGBA{R: uint8(d * 8), A: 255})
	}
}

func waitFor(t *testing.T, events <-chan timeline.Event, kind timeline.EventKind) timeline.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestNewRequiresCacheAndEncoders(t *testing.T) {
	if _, err := timeline.New(timeline.Options{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	cache := framecache.New(afero.NewMemMapFs(), cacheDir, nil)
	if _, err := timeline.New(timeline.Options{Cache: cache}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without encoders, got %v", err)
	}
}

func TestCreateCurrentTreatmentVideoRenders(t *testing.T) {
	h := newHarness(t, openTreatment(), nil)
	h.seed(t, study.Walking, 21, 24, 27)
	events, cancel := h.manager.Subscribe(64)
	defer cancel()

	if err := h.manager.CreateCurrentTreatmentVideo(context.Background(), study.Walking); err != nil {
		t.Fatalf("CreateCurrentTreatmentVideo: %v", err)
	}
	filename := framecache.VideoFilename(study.Walking, treatmentStart)

	reset := waitFor(t, events, timeline.EventExportStatusChanged)
	if reset.Filename != filename || reset.Exported {
		t.Fatalf("unexpected export reset %+v", reset)
	}
	created := waitFor(t, events, timeline.EventVideoCreated)
	if created.Filename != filename || created.OutputPath != h.cache.Path(filename) {
		t.Fatalf("unexpected created event %+v", created)
	}
	if err := h.manager.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if active := h.manager.Active(); len(active) != 0 {
		t.Fatalf("expected registry to be empty, got %v", active)
	}
	if h.encoderCount() != 1 {
		t.Fatalf("expected one render, got %d", h.encoderCount())
	}
	if !h.encoders[0].Finished() || len(h.encoders[0].Frames()) == 0 {
		t.Fatalf("encoder did not receive a complete render")
	}
}

func TestCreateTreatmentVideoSkipsActiveRender(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, openTreatment(), gate)
	h.seed(t, study.HandImaging, 21, 22)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.manager.CreateCurrentTreatmentVideo(ctx, study.HandImaging); err != nil {
			t.Fatalf("CreateCurrentTreatmentVideo #%d: %v", i, err)
		}
	}
	filename := framecache.VideoFilename(study.HandImaging, treatmentStart)
	if active := h.manager.Active(); !slices.Equal(active, []string{filename}) {
		t.Fatalf("Active = %v", active)
	}
	if h.encoderCount() != 1 {
		t.Fatalf("expected a single render, got %d", h.encoderCount())
	}

	close(gate)
	if err := h.manager.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(h.manager.Active()) != 0 {
		t.Fatalf("expected render to unregister")
	}
}

func TestRecreateCancelsPreviousRender(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, openTreatment(), gate)
	h.seed(t, study.FootImaging, 21, 22)
	ctx := context.Background()

	first, err := h.manager.RecreateCurrentTreatmentVideo(ctx, study.FootImaging)
	if err != nil {
		t.Fatalf("first recreate: %v", err)
	}
	second, err := h.manager.RecreateCurrentTreatmentVideo(ctx, study.FootImaging)
	if err != nil {
		t.Fatalf("second recreate: %v", err)
	}

	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("first render was not cancelled")
	}
	if first.State() != video.StateCancelled {
		t.Fatalf("first state = %s", first.State())
	}
	filename := framecache.VideoFilename(study.FootImaging, treatmentStart)
	if current, ok := h.manager.Task(filename); !ok || current != second {
		t.Fatalf("registry should hold the second render")
	}

	close(gate)
	if err := h.manager.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if second.State() != video.StateCompleted {
		t.Fatalf("second state = %s (%v)", second.State(), second.Err())
	}
}

func (h *harness) liveEncoders() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	live := 0
	for _, enc := range h.encoders {
		if !enc.Aborted() {
			live++
		}
	}
	return live
}

func TestConcurrentCreateStartsOneRender(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, openTreatment(), gate)
	h.seed(t, study.Walking, 21, 22, 23)
	ctx := context.Background()

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- h.manager.CreateCurrentTreatmentVideo(ctx, study.Walking)
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CreateCurrentTreatmentVideo: %v", err)
		}
	}

	if h.encoderCount() != 1 {
		t.Fatalf("expected one render for concurrent creates, got %d", h.encoderCount())
	}
	close(gate)
	if err := h.manager.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestConcurrentRecreateKeepsOneLiveRender(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, openTreatment(), gate)
	h.seed(t, study.FootImaging, 21, 22, 23)
	ctx := context.Background()
	filename := framecache.VideoFilename(study.FootImaging, treatmentStart)

	start := make(chan struct{})
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		tasks []*video.Task
		errs  []error
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			var (
				task *video.Task
				err  error
			)
			if i%3 == 0 {
				err = h.manager.CreateCurrentTreatmentVideo(ctx, study.FootImaging)
			} else {
				task, err = h.manager.RecreateCurrentTreatmentVideo(ctx, study.FootImaging)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if task != nil {
				tasks = append(tasks, task)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	if len(errs) != 0 {
		t.Fatalf("concurrent renders failed: %v", errs)
	}

	if active := h.manager.Active(); !slices.Equal(active, []string{filename}) {
		t.Fatalf("Active = %v", active)
	}
	current, ok := h.manager.Task(filename)
	if !ok || current.Cancelled() {
		t.Fatalf("registry should hold one live render")
	}
	for _, task := range tasks {
		if task == current {
			continue
		}
		select {
		case <-task.Done():
		default:
			t.Fatalf("displaced render %s still running", task.ID())
		}
		if task.State() != video.StateCancelled {
			t.Fatalf("displaced render %s state = %s", task.ID(), task.State())
		}
	}
	if live := h.liveEncoders(); live != 1 {
		t.Fatalf("expected exactly one live encoder, got %d of %d", live, h.encoderCount())
	}

	close(gate)
	if err := h.manager.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if current.State() != video.StateCompleted {
		t.Fatalf("surviving render state = %s (%v)", current.State(), current.Err())
	}
}

func TestExistingVideoIsPublishedWithoutRendering(t *testing.T) {
	h := newHarness(t, openTreatment(), nil)
	h.seed(t, study.Walking, 21, 22)
	filename := framecache.VideoFilename(study.Walking, treatmentStart)
	testsupport.WriteFile(t, h.fs, h.cache.Path(filename), 32)
	events, cancel := h.manager.Subscribe(4)
	defer cancel()

	if err := h.manager.CreateCurrentTreatmentVideo(context.Background(), study.Walking); err != nil {
		t.Fatalf("CreateCurrentTreatmentVideo: %v", err)
	}
	created := waitFor(t, events, timeline.EventVideoCreated)
	if created.OutputPath != h.cache.Path(filename) {
		t.Fatalf("OutputPath = %q", created.OutputPath)
	}
	if h.encoderCount() != 0 {
		t.Fatalf("expected no render, got %d", h.encoderCount())
	}
}

func TestTooFewFrames(t *testing.T) {
	h := newHarness(t, openTreatment(), nil)
	h.seed(t, study.Walking, 21)
	// Frames before the treatment started do not count.
	h.seed(t, study.Walking, 10)

	_, err := h.manager.RecreateCurrentTreatmentVideo(context.Background(), study.Walking)
	if !errors.Is(err, video.ErrTooFewFrames) {
		t.Fatalf("expected ErrTooFewFrames, got %v", err)
	}
	if len(h.manager.Active()) != 0 || h.encoderCount() != 0 {
		t.Fatalf("nothing should have been scheduled")
	}
}

func TestNoCurrentTreatment(t *testing.T) {
	h := newHarness(t, fixedTreatment{}, nil)
	err := h.manager.CreateCurrentTreatmentVideo(context.Background(), study.Walking)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelVideoCreatorTask(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, openTreatment(), gate)
	h.seed(t, study.Walking, 21, 22)

	task, err := h.manager.RecreateCurrentTreatmentVideo(context.Background(), study.Walking)
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	h.manager.CancelVideoCreatorTask(framecache.VideoFilename(study.Walking, treatmentStart))
	h.manager.CancelVideoCreatorTask("unknown.mp4")

	<-task.Done()
	if !task.Cancelled() || !errors.Is(task.Err(), video.ErrCancelled) {
		t.Fatalf("task not cancelled: %s %v", task.State(), task.Err())
	}
	if len(h.manager.Active()) != 0 {
		t.Fatalf("registry should be empty")
	}
}

func TestExportStatusFlow(t *testing.T) {
	h := newHarness(t, openTreatment(), nil)
	events, cancel := h.manager.Subscribe(4)
	defer cancel()
	ctx := context.Background()
	filename := framecache.VideoFilename(study.Walking, treatmentStart)

	if err := h.manager.MarkExported(ctx, filename); err != nil {
		t.Fatalf("MarkExported: %v", err)
	}
	ev := waitFor(t, events, timeline.EventExportStatusChanged)
	if !ev.Exported || ev.Activity != study.Walking {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ok, err := h.manager.ExportStatus(ctx, filename); err != nil || !ok {
		t.Fatalf("ExportStatus = %v, %v", ok, err)
	}
	if err := h.manager.ResetExportStatus(ctx, filename); err != nil {
		t.Fatalf("ResetExportStatus: %v", err)
	}
	if ok, _ := h.manager.ExportStatus(ctx, filename); ok {
		t.Fatalf("expected export flag to be cleared")
	}
}

func TestDeleteFrameRemovesStaleVideo(t *testing.T) {
	h := newHarness(t, openTreatment(), nil)
	h.seed(t, study.Walking, 21, 22)
	filename := framecache.VideoFilename(study.Walking, treatmentStart)
	testsupport.WriteFile(t, h.fs, h.cache.Path(filename), 32)

	frame := framecache.ImageFilename(study.Walking, time.Date(2020, 3, 22, 9, 0, 0, 0, time.UTC))
	if err := h.manager.DeleteFrame(context.Background(), frame); err != nil {
		t.Fatalf("DeleteFrame: %v", err)
	}
	if ok, _ := afero.Exists(h.fs, h.cache.Path(frame)); ok {
		t.Fatalf("frame still cached")
	}
	if ok, _ := afero.Exists(h.fs, h.cache.Path(filename)); ok {
		t.Fatalf("stale video should be removed when fewer than two frames remain")
	}
	if !slices.Equal(h.recorder.deleted, []string{frame}) {
		t.Fatalf("deleted = %v", h.recorder.deleted)
	}

	if err := h.manager.DeleteFrame(context.Background(), "not-a-frame.txt"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteFrameRebuildsVideo(t *testing.T) {
	h := newHarness(t, openTreatment(), nil)
	h.seed(t, study.Walking, 21, 22, 23)
	events, cancel := h.manager.Subscribe(64)
	defer cancel()

	frame := framecache.ImageFilename(study.Walking, time.Date(2020, 3, 23, 9, 0, 0, 0, time.UTC))
	if err := h.manager.DeleteFrame(context.Background(), frame); err != nil {
		t.Fatalf("DeleteFrame: %v", err)
	}
	waitFor(t, events, timeline.EventVideoCreated)
	if h.encoderCount() != 1 {
		t.Fatalf("expected a rebuild, got %d renders", h.encoderCount())
	}
}

func TestProcessTaskResultWithStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.StartTreatment(t, store, treatmentStart)

	fs := afero.NewMemMapFs()
	cache := framecache.New(fs, cacheDir, nil)
	clock := testsupport.FixedClock(time.Date(2020, 3, 30, 12, 0, 0, 0, time.UTC))
	manager, err := timeline.New(timeline.Options{
		Cache:      cache,
		Treatments: store,
		History:    store,
		Encoders:   func(video.RenderSettings) video.Encoder { return video.NewRecordingEncoder() },
		Settings:   renderSettings(),
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatalf("timeline.New: %v", err)
	}
	t.Cleanup(manager.Close)
	events, cancel := manager.Subscribe(64)
	defer cancel()

	earlier := time.Date(2020, 3, 22, 9, 0, 0, 0, time.UTC)
	testsupport.WriteImage(t, fs, cache.Path(framecache.ImageFilename(study.PsoriasisDraw, earlier)), 200, 160, color.White)

	src := afero.NewMemMapFs()
	testsupport.WriteImage(t, src, "/summary.jpg", 200, 160, color.Black)
	f, err := src.Open("/summary.jpg")
	if err != nil {
		t.Fatalf("open summary: %v", err)
	}
	defer f.Close()

	coverage := 0.12
	finished := time.Date(2020, 3, 29, 10, 30, 0, 0, time.UTC)
	item, err := manager.ProcessTaskResult(context.Background(), timeline.TaskResult{
		Activity:     study.PsoriasisDraw,
		SummaryImage: f,
		FinishedAt:   finished,
		Coverage:     &coverage,
	})
	if err != nil {
		t.Fatalf("ProcessTaskResult: %v", err)
	}
	if item.ImageName != framecache.ImageFilename(study.PsoriasisDraw, finished) {
		t.Fatalf("ImageName = %q", item.ImageName)
	}

	added := waitFor(t, events, timeline.EventImageFrameAdded)
	if added.ImageName != item.ImageName {
		t.Fatalf("frame event %+v", added)
	}
	created := waitFor(t, events, timeline.EventVideoCreated)
	if created.Activity != study.PsoriasisDraw {
		t.Fatalf("created event %+v", created)
	}

	items, err := store.HistoryItems(context.Background(), history.ItemFilter{Task: study.PsoriasisDraw})
	if err != nil || len(items) != 1 {
		t.Fatalf("HistoryItems = %v, %v", items, err)
	}
	activities, err := store.Activities(context.Background())
	if err != nil {
		t.Fatalf("Activities: %v", err)
	}
	for _, a := range activities {
		if a.Identifier == study.PsoriasisDraw && (a.FinishedOn == nil || !a.FinishedOn.Equal(finished)) {
			t.Fatalf("activity not marked finished: %+v", a)
		}
	}
}

func TestProcessTaskResultWithoutImage(t *testing.T) {
	h := newHarness(t, openTreatment(), nil)
	joints := 4
	item, err := h.manager.ProcessTaskResult(context.Background(), timeline.TaskResult{
		Activity:   study.JointCounting,
		JointCount: &joints,
	})
	if err != nil {
		t.Fatalf("ProcessTaskResult: %v", err)
	}
	if item.HasImage() || !item.Date.Equal(h.clock.Now()) {
		t.Fatalf("unexpected item %+v", item)
	}
	if _, ok := h.recorder.finished[study.JointCounting]; !ok {
		t.Fatalf("activity not marked finished")
	}
	if h.encoderCount() != 0 {
		t.Fatalf("no render expected without an image")
	}

	if _, err := h.manager.ProcessTaskResult(context.Background(), timeline.TaskResult{Activity: "bogus"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
