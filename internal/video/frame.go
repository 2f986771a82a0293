package video

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/spf13/afero"
)

// RenderFrameURL references one cached image and its caption.
type RenderFrameURL struct {
	Path string
	Text string
}

// RenderFrameImage is a decoded frame ready for compositing.
type RenderFrameImage struct {
	Image image.Image
	Text  string
}

// Load decodes the image at Path.
func (f RenderFrameURL) Load(fs afero.Fs) (RenderFrameImage, error) {
	file, err := fs.Open(f.Path)
	if err != nil {
		return RenderFrameImage{}, fmt.Errorf("open frame %s: %w", f.Path, err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return RenderFrameImage{}, fmt.Errorf("decode frame %s: %w", f.Path, err)
	}
	return RenderFrameImage{Image: img, Text: f.Text}, nil
}

// decodeConfig reads only the image header.
func (f RenderFrameURL) decodeConfig(fs afero.Fs) (image.Config, error) {
	file, err := fs.Open(f.Path)
	if err != nil {
		return image.Config{}, fmt.Errorf("open frame %s: %w", f.Path, err)
	}
	defer file.Close()
	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return image.Config{}, fmt.Errorf("read frame header %s: %w", f.Path, err)
	}
	return cfg, nil
}
