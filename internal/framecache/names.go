package framecache

import (
	"path"
	"strings"
	"time"

	"psorcast/internal/study"
)

const (
	// DateLayout is the timestamp embedded in cached filenames.
	DateLayout = "2006-01-02T15:04:05.000-0700"
	// Separator joins the activity identifier and the timestamp.
	Separator = "_"
	ImageExt  = ".jpg"
	VideoExt  = ".mp4"
	// DefaultCaptionLayout formats the caption drawn above each frame.
	DefaultCaptionLayout = "Jan 02, 2006"
)

// ImageFilename names a frame captured for task at t.
func ImageFilename(task study.ActivityID, t time.Time) string {
	return string(task) + Separator + t.Format(DateLayout) + ImageExt
}

// VideoFilename names the timeline for task whose treatment started at start.
func VideoFilename(task study.ActivityID, start time.Time) string {
	return string(task) + Separator + start.Format(DateLayout) + VideoExt
}

// FilenameComponents splits a cached image or video name into its activity
// and timestamp. The activity is the first component and the timestamp the
// last, so extra components in between are tolerated.
func FilenameComponents(name string) (study.ActivityID, time.Time, bool) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	switch {
	case strings.HasSuffix(base, ImageExt):
		base = strings.TrimSuffix(base, ImageExt)
	case strings.HasSuffix(base, VideoExt):
		base = strings.TrimSuffix(base, VideoExt)
	default:
		return "", time.Time{}, false
	}
	parts := strings.Split(base, Separator)
	if len(parts) < 2 || parts[0] == "" {
		return "", time.Time{}, false
	}
	t, err := time.Parse(DateLayout, parts[len(parts)-1])
	if err != nil {
		return "", time.Time{}, false
	}
	return study.ActivityID(parts[0]), t, true
}
