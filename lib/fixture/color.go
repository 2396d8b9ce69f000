package fixture

import (
	"math"
)

var rgbChannels = []string{"red", "green", "blue"}

const (
	stateStartRGB = "start_rgb"
	stateOnRGB    = "on_rgb"
)

func renderParcanFull(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	if fr.Index != fr.Start {
		return
	}
	if unknown := unknownKeys(data, rgbChannels...); len(unknown) > 0 {
		st.warnOnce("unknown_keys", "full: ignoring unknown keys", "fixture", f.ID, "keys", unknown)
	}
	if !f.hasChannels(rgbChannels...) {
		st.warnOnce("no_rgb", "full: fixture has no RGB channels", "fixture", f.ID)
		return
	}

	explicit := false
	for _, c := range rgbChannels {
		if _, ok := data[c]; ok {
			explicit = true
		}
	}
	for _, c := range rgbChannels {
		v := 255
		if explicit {
			v = toInt(data[c], 0)
		}
		f.write(universe, c, v)
	}
}

func (f *Fixture) intensityChannels() []string {
	if f.Type.normalized() == Parcan && f.hasChannels(rgbChannels...) {
		return rgbChannels
	}
	if name, ok := f.dimmerChannel(); ok {
		return []string{name}
	}
	return nil
}

func renderFlash(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	level := int(math.Round(255 * (1 - fr.progress())))

	names := f.intensityChannels()
	if list, ok := data["channels"].([]any); ok {
		names = names[:0:0]
		for _, v := range list {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
		}
	}
	for _, name := range names {
		f.write(universe, name, level)
	}
}

func renderFadeIn(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	if unknown := unknownKeys(data, rgbChannels...); len(unknown) > 0 {
		st.warnOnce("unknown_keys", "fade_in: ignoring unknown keys", "fixture", f.ID, "keys", unknown)
	}
	targets := map[string]int{}
	for _, c := range rgbChannels {
		if v, ok := data[c]; ok {
			targets[c] = clampInt(toInt(v, 0), 0, 255)
		}
	}
	if len(targets) == 0 {
		st.warnOnce("no_rgb", "fade_in: no red/green/blue target given", "fixture", f.ID)
		return
	}

	if fr.End <= fr.Start {
		if fr.Index != fr.Start {
			return
		}
		for c, v := range targets {
			f.write(universe, c, v)
		}
		return
	}

	start := cacheRGB(f, universe, st, stateStartRGB)
	p := fr.progress()
	for c, target := range targets {
		from, ok := start[c]
		if !ok {
			continue
		}
		f.write(universe, c, lerp(from, target, p))
	}
}

func cacheRGB(f *Fixture, universe []byte, st *State, key string) map[string]int {
	if v, ok := st.Get(key); ok {
		return v.(map[string]int)
	}
	rgb := map[string]int{}
	for _, c := range rgbChannels {
		if v, ok := f.read(universe, c); ok {
			rgb[c] = v
		}
	}
	st.Set(key, rgb)
	return rgb
}

// strobeRate picks the toggle rate in Hz from "rate", or maps a 0-255
// "speed" onto 1-20 Hz.
func strobeRate(data map[string]any) float64 {
	var rate float64
	if v, ok := data["rate"]; ok {
		rate = floatOr(v, 10)
	} else {
		speed := clampInt(toInt(data["speed"], 255), 0, 255)
		rate = 1 + float64(speed)/255*19
	}
	if rate <= 0 || math.IsInf(rate, 0) {
		rate = 10
	}
	return rate
}

// strobeOn reports whether the strobe is in its lit half-period.
func strobeOn(fr Frame, rate float64) bool {
	// A half-period longer than the cue keeps it lit throughout.
	span := float64(max(1, fr.End-fr.Start+1))
	half := int(min(max(1, math.Round(float64(fr.FPS)/(rate*2))), span))
	elapsed := max(0, fr.Index-fr.Start)
	return (elapsed/half)%2 == 0
}

func renderParcanStrobe(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	if unknown := unknownKeys(data, "rate", "speed"); len(unknown) > 0 {
		st.warnOnce("unknown_keys", "strobe: ignoring unknown keys", "fixture", f.ID, "keys", unknown)
	}
	if !f.hasChannels(rgbChannels...) {
		st.warnOnce("no_rgb", "strobe: fixture has no RGB channels", "fixture", f.ID)
		return
	}
	rate := strobeRate(data)
	on := cacheRGB(f, universe, st, stateOnRGB)

	lit := fr.Index >= fr.End || strobeOn(fr, rate)
	for _, c := range rgbChannels {
		v := 0
		if lit {
			v = on[c]
		}
		f.write(universe, c, v)
	}
}
