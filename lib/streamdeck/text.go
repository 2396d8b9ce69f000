package streamdeck

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextImage renders centered lines of text on a square key of the given size.
func TextImage(size int, bg, fg color.Color, lines ...string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()
	startY := (size-lineHeight*len(lines))/2 + metrics.Ascent.Ceil()

	for i, line := range lines {
		width := font.MeasureString(face, line).Ceil()
		d := &font.Drawer{
			Dst:  img,
			Src:  &image.Uniform{fg},
			Face: face,
			Dot:  fixed.P((size-width)/2, startY+i*lineHeight),
		}
		d.DrawString(line)
	}
	return img
}

// textColor picks black or white, whichever reads better on bg.
func textColor(bg color.RGBA) color.Color {
	luma := 299*int(bg.R) + 587*int(bg.G) + 114*int(bg.B)
	if luma > 140_000 {
		return color.Black
	}
	return color.White
}
