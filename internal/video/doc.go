// Package video composes a participant's dated frames into a timeline MP4.
//
// A Task lays out a fixed canvas from the frame headers, then walks the
// frames in order: each frame is held for FramesPerImage ticks and, when
// crossfading, blended into the next over FramesPerTransition ticks. Frames
// are handed to an Encoder which applies backpressure through WaitReady.
// FFmpegEncoder pipes raw RGBA into ffmpeg; RecordingEncoder keeps
// presentation times in memory.
//
// Tasks run on their own goroutine, can be cancelled at any frame boundary,
// and report progress and completion through an Observer.
package video
