// Package ffprobe inspects rendered timeline videos.
//
// Inspect runs ffprobe and decodes its JSON report; Verify compares the
// first video stream against the dimensions, frame rate and minimum
// duration the renderer was asked for.
package ffprobe
