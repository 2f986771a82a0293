// Package framecache manages the directory holding captured measurement
// frames and the timeline videos rendered from them.
//
// Filenames carry their own metadata: "{activity}_{timestamp}.jpg" for
// frames and "{activity}_{treatmentStart}.mp4" for videos, with timestamps in
// DateLayout. The cache works on any afero.Fs so tests run in memory.
package framecache
