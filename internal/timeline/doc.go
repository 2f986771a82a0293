// Package timeline keeps one treatment timeline video per activity and
// treatment range up to date.
//
// The Manager registers at most one render per output filename; asking for a
// video that is already rendering is a no-op, while recreating one cancels
// the previous render first. Progress, completion, new frames and export
// flag changes are published to subscribers as Events.
package timeline
