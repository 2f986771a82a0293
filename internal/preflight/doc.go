// Package preflight reports whether the study directories, the ffmpeg
// toolchain and the ntfy server are usable.
//
// The CLI "psorcast status" command prints every Result; the daemon refuses
// to start when a required check fails.
package preflight
