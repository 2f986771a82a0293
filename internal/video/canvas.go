package video

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/spf13/afero"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
)

// canvasLayout fixes the output geometry for every frame of a render.
type canvasLayout struct {
	size    image.Point
	header  image.Rectangle
	content image.Rectangle
	footer  image.Rectangle
}

func roundEven(v int) int {
	if v%2 != 0 {
		return v + 1
	}
	return v
}

// computeLayout derives the canvas from frame headers without decoding
// pixel data.
func computeLayout(fs afero.Fs, frames []RenderFrameURL, settings RenderSettings, face font.Face) (canvasLayout, error) {
	if len(frames) == 0 {
		return canvasLayout{}, ErrTooFewFrames
	}
	first, err := frames[0].decodeConfig(fs)
	if err != nil {
		return canvasLayout{}, err
	}
	if first.Width <= 0 || first.Height <= 0 {
		return canvasLayout{}, fmt.Errorf("frame %s has empty dimensions", frames[0].Path)
	}

	width := first.Width
	if settings.UseFixedSize {
		width = settings.Width
	}
	pad := settings.Padding
	textWidth := width - 2*pad
	if textWidth < 1 {
		textWidth = width
	}

	headerHeight := textBlockHeight(face, frames[0].Text, textWidth) + pad
	footerHeight := pad
	if settings.FooterText != "" {
		footerHeight += lineHeight(face)
	}

	maxScaled := first.Height * width / first.Width
	for _, frame := range frames[1:] {
		cfg, err := frame.decodeConfig(fs)
		if err != nil {
			continue
		}
		if cfg.Width <= 0 {
			continue
		}
		if scaled := cfg.Height * width / cfg.Width; scaled > maxScaled {
			maxScaled = scaled
		}
	}

	height := headerHeight + maxScaled + footerHeight
	if settings.UseFixedSize {
		height = settings.Height
	}
	size := image.Pt(roundEven(width), roundEven(height))

	contentBottom := size.Y - footerHeight
	if contentBottom < headerHeight {
		contentBottom = headerHeight
	}
	return canvasLayout{
		size:    size,
		header:  image.Rect(pad, pad/2, size.X-pad, headerHeight),
		content: image.Rect(0, headerHeight, size.X, contentBottom),
		footer:  image.Rect(pad, contentBottom+pad/2, size.X-pad, size.Y),
	}, nil
}

// fitRect scales src into bounds preserving aspect ratio, centred.
func fitRect(src image.Rectangle, bounds image.Rectangle) image.Rectangle {
	if src.Dx() == 0 || src.Dy() == 0 || bounds.Empty() {
		return image.Rectangle{}
	}
	w := bounds.Dx()
	h := src.Dy() * w / src.Dx()
	if h > bounds.Dy() {
		h = bounds.Dy()
		w = src.Dx() * h / src.Dy()
	}
	x := bounds.Min.X + (bounds.Dx()-w)/2
	y := bounds.Min.Y + (bounds.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// composePlate renders one frame onto a white canvas with its caption above
// and the footer below.
func composePlate(frame RenderFrameImage, layout canvasLayout, footerText string, face font.Face) *image.RGBA {
	plate := image.NewRGBA(image.Rectangle{Max: layout.size})
	draw.Draw(plate, plate.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	drawCentered(plate, face, frame.Text, layout.header)
	if target := fitRect(frame.Image.Bounds(), layout.content); !target.Empty() {
		xdraw.BiLinear.Scale(plate, target, frame.Image, frame.Image.Bounds(), xdraw.Over, nil)
	}
	drawCentered(plate, face, footerText, layout.footer)
	return plate
}
