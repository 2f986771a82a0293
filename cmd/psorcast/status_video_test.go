package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"psorcast/internal/framecache"
	"psorcast/internal/study"
	"psorcast/internal/testsupport"
)

func TestStatusReportsDaemonLock(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	report := statusJSON(t, env)
	if report.DaemonRunning {
		t.Fatal("expected daemon not running")
	}
	if report.LockFile != env.cfg.LockPath() {
		t.Fatalf("unexpected lock path %q", report.LockFile)
	}
	if len(report.Checks) == 0 {
		t.Fatal("expected preflight checks")
	}

	lock := flock.New(env.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("take lock: %v", err)
	}
	t.Cleanup(func() { _ = lock.Unlock() })

	if report := statusJSON(t, env); !report.DaemonRunning {
		t.Fatal("expected daemon running while the lock is held")
	}
}

func statusJSON(t *testing.T, env *cliTestEnv) statusReport {
	t.Helper()
	out, _, err := runCLI(t, env, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return report
}

func TestVideoListAndExport(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "video", "list")
	if err != nil {
		t.Fatalf("video list: %v", err)
	}
	requireContains(t, out, "No videos rendered")

	start := time.Date(2025, time.March, 3, 8, 0, 0, 0, time.Local)
	name := framecache.VideoFilename(study.PsoriasisAreaPhoto, start)
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.FrameDir, name), []byte("mp4"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}

	if _, _, err := runCLI(t, env, "video", "export", "missing.mp4"); err == nil {
		t.Fatal("expected export of a missing video to fail")
	}
	out, _, err = runCLI(t, env, "video", "export", name)
	if err != nil {
		t.Fatalf("video export: %v", err)
	}
	requireContains(t, out, "Marked "+name)

	out, _, err = runCLI(t, env, "video", "list", "--json")
	if err != nil {
		t.Fatalf("video list --json: %v", err)
	}
	var rows []struct {
		Filename string `json:"filename"`
		Activity string `json:"activity"`
		Exported bool   `json:"exported"`
	}
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0].Filename != name || !rows[0].Exported || rows[0].Activity != string(study.PsoriasisAreaPhoto) {
		t.Fatalf("unexpected listing %+v", rows)
	}
}

func TestVideoBuildWithoutTreatment(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "video", "build", string(study.HandImaging)); err == nil {
		t.Fatal("expected build without a treatment to fail")
	}
}

func TestParseTimeFlag(t *testing.T) {
	now := time.Date(2025, time.March, 12, 10, 0, 0, 0, time.Local)
	cases := map[string]time.Time{
		"":                          now,
		"2025-03-01":                time.Date(2025, time.March, 1, 0, 0, 0, 0, time.Local),
		"2025-03-01 14:30":          time.Date(2025, time.March, 1, 14, 30, 0, 0, time.Local),
		"2025-03-01T14:30":          time.Date(2025, time.March, 1, 14, 30, 0, 0, time.Local),
		"2025-03-01T14:30:00+00:00": time.Date(2025, time.March, 1, 14, 30, 0, 0, time.UTC),
	}
	for input, want := range cases {
		got, err := parseTimeFlag(input, now)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q = %v, want %v", input, got, want)
		}
	}
	if _, err := parseTimeFlag("yesterday", now); err == nil {
		t.Fatal("expected error")
	}
}

func TestProgressPrinterBuckets(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressPrinter(&buf, false)
	for _, f := range []float64{0.1, 0.26, 0.3, 0.55, 1} {
		p.update(f)
	}
	p.finish()
	want := "Progress: 0%\nProgress: 25%\nProgress: 50%\nProgress: 100%\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}

	buf.Reset()
	quiet := newProgressPrinter(&buf, true)
	quiet.update(0.5)
	quiet.finish()
	if buf.Len() != 0 {
		t.Fatalf("quiet printer wrote %q", buf.String())
	}
}
