package video

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	parseFontOnce sync.Once
	parsedFont    *opentype.Font
	parseFontErr  error
)

// newFace returns a fresh face. Faces cache glyphs and must not be shared
// between goroutines.
func newFace(size float64) (font.Face, error) {
	parseFontOnce.Do(func() {
		parsedFont, parseFontErr = opentype.Parse(goregular.TTF)
	})
	if parseFontErr != nil {
		return nil, fmt.Errorf("parse font: %w", parseFontErr)
	}
	if size <= 0 {
		size = DefaultRenderSettings().FontSize
	}
	return opentype.NewFace(parsedFont, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
}

func lineHeight(face font.Face) int {
	return face.Metrics().Height.Ceil()
}

// wrapText breaks text into lines no wider than maxWidth pixels. Words wider
// than maxWidth get a line of their own.
func wrapText(face font.Face, text string, maxWidth int) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			candidate := current + " " + word
			if font.MeasureString(face, candidate).Ceil() <= maxWidth {
				current = candidate
				continue
			}
			lines = append(lines, current)
			current = word
		}
		lines = append(lines, current)
	}
	return lines
}

func textBlockHeight(face font.Face, text string, maxWidth int) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return len(wrapText(face, text, maxWidth)) * lineHeight(face)
}

// drawCentered draws wrapped text horizontally centred in bounds, starting
// at bounds.Min.Y.
func drawCentered(dst *image.RGBA, face font.Face, text string, bounds image.Rectangle) {
	if strings.TrimSpace(text) == "" {
		return
	}
	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(color.Black), Face: face}
	ascent := face.Metrics().Ascent.Ceil()
	y := bounds.Min.Y
	for _, line := range wrapText(face, text, bounds.Dx()) {
		width := font.MeasureString(face, line).Ceil()
		x := bounds.Min.X + (bounds.Dx()-width)/2
		if x < bounds.Min.X {
			x = bounds.Min.X
		}
		drawer.Dot = fixed.P(x, y+ascent)
		drawer.DrawString(line)
		y += lineHeight(face)
	}
}
