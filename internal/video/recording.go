package video

import (
	"context"
	"image"
	"image/color"
	"sync"
)

// RecordedFrame is one Append captured by RecordingEncoder.
type RecordedFrame struct {
	PTS    int64
	Center color.RGBA
}

// RecordingEncoder keeps presentation times and centre samples in memory
// instead of encoding. It backs the package tests and the timeline tests.
type RecordingEncoder struct {
	// Gate, when set, must yield a value before each WaitReady returns.
	Gate      chan struct{}
	StartErr  error
	FinishErr error

	mu       sync.Mutex
	size     image.Point
	frames   []RecordedFrame
	reserved int
	started  bool
	finished bool
	aborted  bool
}

// NewRecordingEncoder returns an encoder that never blocks.
func NewRecordingEncoder() *RecordingEncoder {
	return &RecordingEncoder{}
}

func (r *RecordingEncoder) Start(_ context.Context, size image.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.StartErr != nil {
		return r.StartErr
	}
	r.size = size
	r.started = true
	return nil
}

func (r *RecordingEncoder) WaitReady(ctx context.Context) error {
	if r.Gate != nil {
		select {
		case <-r.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.reserved++
	r.mu.Unlock()
	return nil
}

func (r *RecordingEncoder) Append(frame *image.RGBA, pts int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reserved == 0 {
		return ErrNotReady
	}
	r.reserved--
	b := frame.Bounds()
	center := frame.RGBAAt(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)
	r.frames = append(r.frames, RecordedFrame{PTS: pts, Center: center})
	return nil
}

func (r *RecordingEncoder) Finish(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FinishErr != nil {
		return r.FinishErr
	}
	r.finished = true
	return nil
}

func (r *RecordingEncoder) Abort() {
	r.mu.Lock()
	r.aborted = true
	r.mu.Unlock()
}

// Size is the canvas passed to Start.
func (r *RecordingEncoder) Size() image.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Frames returns a copy of every recorded append.
func (r *RecordingEncoder) Frames() []RecordedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedFrame(nil), r.frames...)
}

func (r *RecordingEncoder) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

func (r *RecordingEncoder) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

func (r *RecordingEncoder) Aborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}
