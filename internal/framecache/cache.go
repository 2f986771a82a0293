package framecache

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"psorcast/internal/fileutil"
	"psorcast/internal/logging"
	"psorcast/internal/services"
	"psorcast/internal/study"
	"psorcast/internal/video"
)

// Cache stores captured frames and rendered videos in a single directory.
type Cache struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
}

// Entry is one cached frame.
type Entry struct {
	Name string
	Path string
	Task study.ActivityID
	Date time.Time
}

// New returns a cache rooted at dir on fs.
func New(fs afero.Fs, dir string, logger *slog.Logger) *Cache {
	return &Cache{fs: fs, dir: dir, logger: logging.NewComponentLogger(logger, "framecache")}
}

// Fs exposes the backing filesystem so renders read frames from the same place.
func (c *Cache) Fs() afero.Fs { return c.fs }

// Dir is the cache root.
func (c *Cache) Dir() string { return c.dir }

// Path returns the absolute location of name inside the cache.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.dir, filepath.Base(name))
}

// Entries lists cached frames for task, oldest first. An empty task lists
// every frame.
func (c *Cache) Entries(task study.ActivityID) ([]Entry, error) {
	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list frame cache: %w", err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), ImageExt) {
			continue
		}
		id, date, ok := FilenameComponents(info.Name())
		if !ok {
			continue
		}
		if task != "" && id != task {
			continue
		}
		entries = append(entries, Entry{Name: info.Name(), Path: c.Path(info.Name()), Task: id, Date: date})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})
	return entries, nil
}

// FindFrames returns the frames of task captured within r, oldest first,
// captioned with their capture date in captionLayout.
func (c *Cache) FindFrames(task study.ActivityID, r study.TreatmentRange, now time.Time, captionLayout string) ([]video.RenderFrameURL, error) {
	if captionLayout == "" {
		captionLayout = DefaultCaptionLayout
	}
	entries, err := c.Entries(task)
	if err != nil {
		return nil, err
	}
	frames := make([]video.RenderFrameURL, 0, len(entries))
	for _, entry := range entries {
		if !r.Contains(entry.Date, now) {
			continue
		}
		frames = append(frames, video.RenderFrameURL{Path: entry.Path, Text: entry.Date.Format(captionLayout)})
	}
	return frames, nil
}

// FindVideo returns the path of the rendered video for task and the
// treatment start, matching the start to the second.
func (c *Cache) FindVideo(task study.ActivityID, start time.Time) (string, bool, error) {
	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("list frame cache: %w", err)
	}
	want := start.Truncate(time.Second)
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), VideoExt) {
			continue
		}
		id, date, ok := FilenameComponents(info.Name())
		if !ok || id != task {
			continue
		}
		if date.Truncate(time.Second).Equal(want) {
			return c.Path(info.Name()), true, nil
		}
	}
	return "", false, nil
}

// Videos lists rendered timeline videos by name.
func (c *Cache) Videos() ([]string, error) {
	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list frame cache: %w", err)
	}
	var names []string
	for _, info := range infos {
		if !info.IsDir() && strings.HasSuffix(info.Name(), VideoExt) {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Ingest writes src into the cache as a frame of task captured at at and
// returns the cache filename.
func (c *Cache) Ingest(src io.Reader, task study.ActivityID, at time.Time) (string, error) {
	if !task.Known() {
		return "", services.Wrap(services.ErrValidation, "framecache", "ingest", fmt.Sprintf("unknown activity %q", task), nil)
	}
	name := ImageFilename(task, at)
	if _, err := fileutil.WriteAtomic(c.fs, c.Path(name), src, 0o644); err != nil {
		return "", fmt.Errorf("write frame %s: %w", name, err)
	}
	c.logger.Debug("frame cached", logging.String("name", name), logging.String(logging.FieldActivity, string(task)))
	return name, nil
}

// IngestFile copies path from srcFs into the cache with integrity checks.
func (c *Cache) IngestFile(srcFs afero.Fs, path string, task study.ActivityID, at time.Time) (string, error) {
	if !task.Known() {
		return "", services.Wrap(services.ErrValidation, "framecache", "ingest", fmt.Sprintf("unknown activity %q", task), nil)
	}
	name := ImageFilename(task, at)
	if err := fileutil.CopyFileVerified(srcFs, path, c.fs, c.Path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrNotFound, "framecache", "ingest", path, err)
		}
		return "", fmt.Errorf("copy frame %s: %w", path, err)
	}
	c.logger.Debug("frame cached", logging.String("name", name), logging.String("source", path))
	return name, nil
}

// Remove deletes name from the cache. Missing files are not an error.
func (c *Cache) Remove(name string) error {
	if err := c.fs.Remove(c.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
