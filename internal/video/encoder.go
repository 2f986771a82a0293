package video

import (
	"context"
	"image"
)

// Encoder consumes composited frames. Callers must obtain a slot with
// WaitReady before each Append. Append copies the frame before returning, so
// callers may reuse the buffer.
type Encoder interface {
	Start(ctx context.Context, size image.Point) error
	WaitReady(ctx context.Context) error
	Append(frame *image.RGBA, pts int64) error
	Finish(ctx context.Context) error
	Abort()
}

// EncoderFactory builds an encoder for one render.
type EncoderFactory func(settings RenderSettings) Encoder
