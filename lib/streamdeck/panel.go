package streamdeck

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"

	"lightshow/lib/fixture"
	"lightshow/lib/playback"
)

type Keypad interface {
	Keys() int
	KeySize() int
	SetKeyImage(key int, img image.Image) error
}

// Previewer is the part of the playback manager the panel drives.
type Previewer interface {
	StartPreview(ctx context.Context, req playback.PreviewRequest) (playback.PreviewResult, error)
	CancelPreview(ctx context.Context) error
	Fixtures() []*fixture.Fixture
	OutputUniverse() playback.Universe
	Status() playback.Status
}

// Binding puts one effect preview on a key.
type Binding struct {
	Label    string
	Fixture  string
	Effect   string
	Duration float64
	Data     map[string]any
}

func (b Binding) title() string {
	if b.Label != "" {
		return b.Label
	}
	return b.Effect
}

// Panel shows each bound fixture's current color on its key. Pressing a key
// starts its preview, or cancels it if that preview is already running.
type Panel struct {
	keypad   Keypad
	ctl      Previewer
	bindings []Binding
	log      *slog.Logger

	mu    sync.Mutex
	drawn []string
}

func NewPanel(keypad Keypad, ctl Previewer, bindings []Binding, log *slog.Logger) *Panel {
	if log == nil {
		log = slog.Default()
	}
	if len(bindings) > keypad.Keys() {
		log.Warn("more stream deck bindings than keys", "bindings", len(bindings), "keys", keypad.Keys())
		bindings = bindings[:keypad.Keys()]
	}
	return &Panel{
		keypad:   keypad,
		ctl:      ctl,
		bindings: bindings,
		log:      log,
		drawn:    make([]string, keypad.Keys()),
	}
}

func (p *Panel) Run(ctx context.Context, keys <-chan KeyEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-keys:
			if !ev.Pressed {
				continue
			}
			if err := p.Press(ctx, ev.Key); err != nil {
				p.log.Warn("stream deck key failed", "key", ev.Key, "error", err)
			}
		}
	}
}

func (p *Panel) Press(ctx context.Context, key int) error {
	if key < 0 || key >= len(p.bindings) {
		return nil
	}
	b := p.bindings[key]

	if p.running(b) {
		return p.ctl.CancelPreview(ctx)
	}
	res, err := p.ctl.StartPreview(ctx, playback.PreviewRequest{
		FixtureID: b.Fixture,
		Effect:    b.Effect,
		Duration:  b.Duration,
		Data:      b.Data,
	})
	if err != nil {
		return err
	}
	if !res.OK {
		p.log.Info("stream deck preview rejected", "key", key, "fixture", b.Fixture, "effect", b.Effect, "reason", res.Reason)
	}
	return p.Refresh()
}

func (p *Panel) running(b Binding) bool {
	pv := p.ctl.Status().Preview
	return pv != nil && pv.FixtureID == b.Fixture && pv.Effect == b.Effect
}

// Refresh redraws keys whose color, label or running state changed.
func (p *Panel) Refresh() error {
	u := p.ctl.OutputUniverse()
	byID := map[string]*fixture.Fixture{}
	for _, f := range p.ctl.Fixtures() {
		byID[f.ID] = f
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, b := range p.bindings {
		bg := color.RGBA{20, 20, 20, 255}
		if f, ok := byID[b.Fixture]; ok {
			bg = appearance(f, u[:])
		}
		running := p.running(b)
		state := fmt.Sprintf("%v|%v", bg, running)
		if p.drawn[key] == state {
			continue
		}

		lines := []string{b.title(), b.Fixture}
		if running {
			lines = append(lines, "> running")
		}
		img := TextImage(p.keypad.KeySize(), bg, textColor(bg), lines...)
		if err := p.keypad.SetKeyImage(key, img); err != nil {
			return err
		}
		p.drawn[key] = state
	}
	return nil
}

// appearance is roughly what the fixture looks like at universe: its color
// mix scaled by the dimmer, or plain gray for a dimmer alone.
func appearance(f *fixture.Fixture, universe []byte) color.RGBA {
	v := f.ChannelValues(universe)
	dim, hasDim := v["dimmer"]
	if !hasDim {
		dim = 255
	}
	r, hasR := v["red"]
	g, hasG := v["green"]
	b, hasB := v["blue"]
	if !hasR && !hasG && !hasB {
		if !hasDim {
			return color.RGBA{20, 20, 20, 255}
		}
		return color.RGBA{uint8(dim), uint8(dim), uint8(dim), 255}
	}
	if w, ok := v["white"]; ok {
		r, g, b = max(r, w), max(g, w), max(b, w)
	}
	scale := func(c int) uint8 { return uint8(c * dim / 255) }
	return color.RGBA{scale(r), scale(g), scale(b), 255}
}
