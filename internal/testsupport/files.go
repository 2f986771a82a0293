package testsupport

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

// WriteImage encodes a solid w x h image at path on fs. The encoder is
// chosen from the extension: .png writes PNG, anything else JPEG.
func WriteImage(t testing.TB, fs afero.Fs, path string, w, h int, fill color.Color) {
	t.Helper()

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".png") {
		err = png.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// WriteFile writes size bytes of filler to path on fs. A size <= 0 writes a
// single byte.
func WriteFile(t testing.TB, fs afero.Fs, path string, size int) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := afero.WriteFile(fs, path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
