// Package fixture models lighting instruments: their DMX channel maps and the
// per-kind effect renderers that paint one frame of a cue into a universe.
//
// Rendering is permissive. An effect a fixture does not know, a channel it
// does not have, or a payload key it does not understand degrades to a no-op
// for that write. Nothing in this package returns an error while rendering.
package fixture

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

const MaxChannel = 512

type Kind string

const (
	Parcan     Kind = "parcan"
	MovingHead Kind = "moving_head"
)

type PanTilt struct {
	Pan  int `json:"pan"`
	Tilt int `json:"tilt"`
}

type Preset struct {
	Name   string         `json:"name"`
	POI    string         `json:"poi_id,omitempty"`
	Values map[string]int `json:"values,omitempty"`
}

type Fixture struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Type       Kind               `json:"type"`
	Channels   map[string]int     `json:"channels"`
	Arm        map[string]int     `json:"arm,omitempty"`
	Presets    []Preset           `json:"presets,omitempty"`
	POITargets map[string]PanTilt `json:"poi_targets,omitempty"`
	Effects    []string           `json:"effects,omitempty"`
	Meta       map[string]any     `json:"meta,omitempty"`
	Location   map[string]float64 `json:"location,omitempty"`
}

// Clone returns a copy of f that shares no maps or slices with it.
func (f *Fixture) Clone() *Fixture {
	c := *f
	c.Channels = maps.Clone(f.Channels)
	c.Arm = maps.Clone(f.Arm)
	c.POITargets = maps.Clone(f.POITargets)
	c.Effects = slices.Clone(f.Effects)
	c.Meta = maps.Clone(f.Meta)
	c.Location = maps.Clone(f.Location)
	if f.Presets != nil {
		c.Presets = make([]Preset, len(f.Presets))
		for i, p := range f.Presets {
			p.Values = maps.Clone(p.Values)
			c.Presets[i] = p
		}
	}
	return &c
}

func (f *Fixture) String() string {
	return fmt.Sprintf("[%s|%s]", f.Type, f.ID)
}

// Frame locates one render call inside a cue: the frame being painted and
// the cue's own start and end frames.
type Frame struct {
	Index int
	Start int
	End   int
	FPS   int
}

func (fr Frame) progress() float64 {
	span := max(1, fr.End-fr.Start)
	return clamp01(float64(fr.Index-fr.Start) / float64(span))
}

// State is the per-entry scratch space of one canvas build. Stateful effects
// cache their starting point here the first frame they are touched.
type State struct {
	Log    *slog.Logger
	values map[string]any
}

func NewState(log *slog.Logger) *State {
	if log == nil {
		log = slog.Default()
	}
	return &State{Log: log, values: map[string]any{}}
}

func (s *State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *State) Set(key string, v any) {
	s.values[key] = v
}

func (s *State) warnOnce(key, msg string, args ...any) {
	flag := "warned:" + key
	if _, done := s.values[flag]; done {
		return
	}
	s.values[flag] = true
	s.Log.Warn(msg, args...)
}

type effectFunc func(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State)

var parcanEffects = map[string]effectFunc{
	"set_channels": renderSetChannels,
	"full":         renderParcanFull,
	"flash":        renderFlash,
	"fade_in":      renderFadeIn,
	"strobe":       renderParcanStrobe,
}

var movingHeadEffects = map[string]effectFunc{
	"set_channels": renderSetChannels,
	"full":         renderBeamFull,
	"flash":        renderFlash,
	"strobe":       renderBeamStrobe,
	"move_to":      renderMoveTo,
	"seek":         renderSeek,
	"move_to_poi":  renderMoveToPOI,
	"sweep":        renderSweep,
}

var genericEffects = map[string]effectFunc{
	"set_channels": renderSetChannels,
}

func (k Kind) normalized() Kind {
	switch strings.ToLower(strings.TrimSpace(string(k))) {
	case "parcan", "rgb":
		return Parcan
	case "moving_head":
		return MovingHead
	}
	return k
}

func (k Kind) effects() map[string]effectFunc {
	switch k.normalized() {
	case Parcan:
		return parcanEffects
	case MovingHead:
		return movingHeadEffects
	}
	return genericEffects
}

func normalizeEffect(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SupportsEffect reports whether the fixture declares the effect, or, when it
// declares nothing, whether its kind knows how to render it.
func (f *Fixture) SupportsEffect(effect string) bool {
	effect = normalizeEffect(effect)
	if len(f.Effects) > 0 {
		return slices.ContainsFunc(f.Effects, func(e string) bool { return normalizeEffect(e) == effect })
	}
	_, ok := f.Type.effects()[effect]
	return ok
}

// EffectNames lists what the fixture's kind can render, sorted.
func (f *Fixture) EffectNames() []string {
	var names []string
	for name := range f.Type.effects() {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (f *Fixture) RenderEffect(universe []byte, effect string, fr Frame, data map[string]any, st *State) {
	fn, ok := f.Type.effects()[normalizeEffect(effect)]
	if !ok {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	fn(f, universe, fr, data, st)
}

func (f *Fixture) channel(name string) (int, bool) {
	ch, ok := f.Channels[name]
	return ch, ok
}

func (f *Fixture) hasChannels(names ...string) bool {
	for _, n := range names {
		if _, ok := f.Channels[n]; !ok {
			return false
		}
	}
	return true
}

func (f *Fixture) dimmerChannel() (string, bool) {
	for _, k := range []string{"dim", "dimmer", "intensity"} {
		if _, ok := f.Channels[k]; ok {
			return k, true
		}
	}
	return "", false
}

func (f *Fixture) read(universe []byte, name string) (int, bool) {
	ch, ok := f.channel(name)
	if !ok || ch < 1 || ch > len(universe) {
		return 0, false
	}
	return int(universe[ch-1]), true
}

func (f *Fixture) write(universe []byte, name string, value int) {
	ch, ok := f.channel(name)
	if !ok {
		return
	}
	writeChannel(universe, ch, value)
}

func writeChannel(universe []byte, ch int, value int) {
	if ch < 1 || ch > len(universe) {
		return
	}
	universe[ch-1] = byte(clampInt(value, 0, 255))
}

// ApplyArm writes the fixture's arm defaults into universe.
func (f *Fixture) ApplyArm(universe []byte) {
	for _, name := range sortedKeys(f.Arm) {
		f.write(universe, name, f.Arm[name])
	}
}

// ChannelValues reads every mapped channel of the fixture out of universe.
func (f *Fixture) ChannelValues(universe []byte) map[string]int {
	values := map[string]int{}
	for name := range f.Channels {
		if v, ok := f.read(universe, name); ok {
			values[name] = v
		}
	}
	return values
}

func renderSetChannels(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	if fr.Index != fr.Start {
		return
	}
	channels, ok := data["channels"].(map[string]any)
	if !ok {
		return
	}
	for _, name := range sortedKeys(channels) {
		f.write(universe, name, toInt(channels[name], 0))
	}
}
