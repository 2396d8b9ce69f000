// Package plot draws a compiled canvas as a heatmap: one row per DMX
// channel, time running left to right, brightness following the value.
package plot

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"slices"

	"github.com/fogleman/gg"

	"lightshow/lib/canvas"
	"lightshow/lib/fixture"
)

const (
	labelWidth = 110
	axisHeight = 16
)

type Options struct {
	// Channels to draw, 1-based. Empty means every channel that is ever
	// non-zero.
	Channels  []int
	Width     int
	RowHeight int
	// Labels and Tints are keyed by channel. See Describe.
	Labels map[int]string
	Tints  map[int]color.RGBA
}

var channelTints = map[string]color.RGBA{
	"red":     {255, 40, 40, 255},
	"green":   {40, 255, 40, 255},
	"blue":    {60, 90, 255, 255},
	"white":   {255, 255, 255, 255},
	"amber":   {255, 180, 0, 255},
	"uv":      {170, 60, 255, 255},
	"dimmer":  {255, 240, 200, 255},
	"shutter": {200, 200, 160, 255},
}

var defaultTint = color.RGBA{180, 180, 180, 255}

// Describe labels and tints channels after the roster's channel names.
func Describe(roster *fixture.Roster) (map[int]string, map[int]color.RGBA) {
	labels := map[int]string{}
	tints := map[int]color.RGBA{}
	for _, f := range roster.Fixtures() {
		for name, ch := range f.Channels {
			labels[ch] = f.ID + "." + name
			if t, ok := channelTints[name]; ok {
				tints[ch] = t
			}
		}
	}
	return labels, tints
}

// ActiveChannels lists the 1-based channels that are non-zero in any frame.
func ActiveChannels(c *canvas.Canvas) []int {
	var seen [canvas.FrameSize]bool
	for i := range c.TotalFrames() {
		for ch, v := range c.FrameView(i) {
			if v != 0 {
				seen[ch] = true
			}
		}
	}
	var out []int
	for ch, ok := range seen {
		if ok {
			out = append(out, ch+1)
		}
	}
	return out
}

func Render(c *canvas.Canvas, opts Options) (image.Image, error) {
	channels := slices.Clone(opts.Channels)
	if len(channels) == 0 {
		channels = ActiveChannels(c)
	}
	for _, ch := range channels {
		if ch < 1 || ch > canvas.FrameSize {
			return nil, fmt.Errorf("plot: channel %d out of range", ch)
		}
	}
	if opts.Width <= 0 {
		opts.Width = 1200
	}
	if opts.RowHeight <= 0 {
		opts.RowHeight = 12
	}

	frames := c.TotalFrames()
	cols := min(opts.Width, frames)
	w := labelWidth + cols
	h := axisHeight + max(1, len(channels))*opts.RowHeight

	dc := gg.NewContext(w, h)
	dc.SetRGB255(16, 16, 20)
	dc.Clear()

	for row, ch := range channels {
		tint, ok := opts.Tints[ch]
		if !ok {
			tint = defaultTint
		}
		y := axisHeight + row*opts.RowHeight
		for x := range cols {
			// Each column shows the brightest frame it covers.
			first := x * frames / cols
			last := max(first+1, (x+1)*frames/cols)
			var v byte
			for f := first; f < last; f++ {
				v = max(v, c.FrameView(f)[ch-1])
			}
			if v == 0 {
				continue
			}
			k := float64(v) / 255
			dc.SetRGB255(int(float64(tint.R)*k), int(float64(tint.G)*k), int(float64(tint.B)*k))
			dc.DrawRectangle(float64(labelWidth+x), float64(y), 1, float64(opts.RowHeight-1))
			dc.Fill()
		}

		label := opts.Labels[ch]
		if label == "" {
			label = fmt.Sprintf("ch %d", ch)
		}
		dc.SetRGB255(220, 220, 220)
		dc.DrawStringAnchored(truncate(label, 15), 4, float64(y)+float64(opts.RowHeight)/2, 0, 0.35)
	}

	drawSeconds(dc, c, cols, h)
	return dc.Image(), nil
}

func drawSeconds(dc *gg.Context, c *canvas.Canvas, cols, h int) {
	frames := c.TotalFrames()
	seconds := int(c.Duration())
	step := max(1, seconds/20)
	dc.SetRGBA255(255, 255, 255, 60)
	dc.SetLineWidth(1)
	for s := 0; s <= seconds; s += step {
		x := float64(labelWidth) + float64(s*c.FPS())*float64(cols)/float64(frames)
		dc.DrawLine(x, axisHeight, x, float64(h))
		dc.Stroke()
		dc.DrawStringAnchored(fmt.Sprintf("%ds", s), x+2, axisHeight/2, 0, 0.35)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "~"
}

func WritePNG(w io.Writer, c *canvas.Canvas, opts Options) error {
	img, err := Render(c, opts)
	if err != nil {
		return err
	}
	dc := gg.NewContextForImage(img)
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("plot: encode: %w", err)
	}
	return nil
}
