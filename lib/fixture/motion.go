package fixture

import (
	"math"
	"strings"
)

const (
	maxU16           = 0xFFFF
	defaultAxisRange = 540

	stateMoveStart = "move_start"
)

// axis is one positioning channel of a moving head. Fine axes are patched as
// an MSB/LSB pair and carry 16-bit values; coarse axes are a single byte.
type axis struct {
	name string
	fine bool
}

func (f *Fixture) axis(name string) (axis, bool) {
	if f.hasChannels(name+"_msb", name+"_lsb") {
		return axis{name: name, fine: true}, true
	}
	if _, ok := f.Channels[name]; ok {
		return axis{name: name}, true
	}
	return axis{}, false
}

func (f *Fixture) panTiltAxes() (axis, axis, bool) {
	pan, ok := f.axis("pan")
	if !ok {
		return axis{}, axis{}, false
	}
	tilt, ok := f.axis("tilt")
	if !ok {
		return axis{}, axis{}, false
	}
	return pan, tilt, true
}

func (a axis) limit() int {
	if a.fine {
		return maxU16
	}
	return 0xFF
}

// fromU16 converts a 16-bit position into the axis' own units.
func (a axis) fromU16(v int) int {
	v = clampInt(v, 0, maxU16)
	if a.fine {
		return v
	}
	return v >> 8
}

func (f *Fixture) readAxis(universe []byte, a axis) int {
	if !a.fine {
		v, _ := f.read(universe, a.name)
		return v
	}
	msb, _ := f.read(universe, a.name+"_msb")
	lsb, _ := f.read(universe, a.name+"_lsb")
	return msb<<8 | lsb
}

func (f *Fixture) writeAxis(universe []byte, a axis, v int) {
	v = clampInt(v, 0, a.limit())
	if !a.fine {
		f.write(universe, a.name, v)
		return
	}
	f.write(universe, a.name+"_msb", v>>8)
	f.write(universe, a.name+"_lsb", v&0xFF)
}

func (f *Fixture) axisRange(name string) float64 {
	r := floatOr(f.Meta[name+"_range"], defaultAxisRange)
	if r <= 0 {
		return defaultAxisRange
	}
	return r
}

func (f *Fixture) degreesToByte(name string, deg float64) int {
	r := f.axisRange(name)
	return int(math.Round(math.Max(0, math.Min(r, deg)) * 255 / r))
}

// explicitAxis reads an axis target from a payload in the axis' own units.
// Fine axes take a 16-bit value under the axis name or an _msb/_lsb pair;
// coarse axes take a raw _byte or degrees under the axis name.
func (f *Fixture) explicitAxis(a axis, data map[string]any) (int, bool) {
	if a.fine {
		if v, ok := toFloat(data[a.name]); ok {
			return clampInt(int(math.Round(v)), 0, maxU16), true
		}
		msb, okM := toFloat(data[a.name+"_msb"])
		lsb, okL := toFloat(data[a.name+"_lsb"])
		if okM && okL {
			return clampInt(int(msb), 0, 0xFF)<<8 | clampInt(int(lsb), 0, 0xFF), true
		}
		return 0, false
	}
	if v, ok := toFloat(data[a.name+"_byte"]); ok {
		return clampInt(int(math.Round(v)), 0, 0xFF), true
	}
	if deg, ok := toFloat(data[a.name]); ok {
		return f.degreesToByte(a.name, deg), true
	}
	return 0, false
}

func (f *Fixture) preset(name string) (Preset, bool) {
	for _, p := range f.Presets {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Preset{}, false
}

// poiTarget looks up a 16-bit pan/tilt pair by point-of-interest id, falling
// back to a preset of that name that points at one.
func (f *Fixture) poiTarget(id string) (PanTilt, bool) {
	if pt, ok := f.POITargets[id]; ok {
		return pt, true
	}
	if p, ok := f.preset(id); ok && p.POI != "" {
		pt, ok := f.POITargets[p.POI]
		return pt, ok
	}
	return PanTilt{}, false
}

func poiName(data map[string]any) string {
	return stringOf(data, "target_POI", "poi", "POI")
}

// resolveTarget finds where a move should end, in axis units. A named preset
// wins over a point-of-interest, which wins over explicit values.
func (f *Fixture) resolveTarget(pan, tilt axis, data map[string]any) (int, int, bool) {
	if name := stringOf(data, "preset"); name != "" {
		p, ok := f.preset(name)
		if !ok {
			return 0, 0, false
		}
		if p.POI != "" {
			pt, ok := f.POITargets[p.POI]
			if !ok {
				return 0, 0, false
			}
			return pan.fromU16(pt.Pan), tilt.fromU16(pt.Tilt), true
		}
		values := make(map[string]any, len(p.Values))
		for k, v := range p.Values {
			values[k] = v
		}
		return f.explicitPanTilt(pan, tilt, values)
	}
	if id := poiName(data); id != "" {
		pt, ok := f.poiTarget(id)
		if !ok {
			return 0, 0, false
		}
		return pan.fromU16(pt.Pan), tilt.fromU16(pt.Tilt), true
	}
	return f.explicitPanTilt(pan, tilt, data)
}

func (f *Fixture) explicitPanTilt(pan, tilt axis, data map[string]any) (int, int, bool) {
	p, okP := f.explicitAxis(pan, data)
	t, okT := f.explicitAxis(tilt, data)
	return p, t, okP && okT
}

func (f *Fixture) moveStart(universe []byte, pan, tilt axis, st *State) [2]int {
	if v, ok := st.Get(stateMoveStart); ok {
		return v.([2]int)
	}
	start := [2]int{f.readAxis(universe, pan), f.readAxis(universe, tilt)}
	st.Set(stateMoveStart, start)
	return start
}

func (f *Fixture) renderMove(universe []byte, fr Frame, pan, tilt axis, toPan, toTilt int, st *State) {
	start := f.moveStart(universe, pan, tilt, st)
	p := fr.progress()
	if fr.End <= fr.Start {
		p = 1
	}
	f.writeAxis(universe, pan, lerp(start[0], toPan, p))
	f.writeAxis(universe, tilt, lerp(start[1], toTilt, p))
}

func renderMoveTo(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	pan, tilt, ok := f.panTiltAxes()
	if !ok {
		st.warnOnce("no_axes", "move_to: fixture has no pan/tilt channels", "fixture", f.ID)
		return
	}
	toPan, toTilt, ok := f.resolveTarget(pan, tilt, data)
	if !ok {
		st.warnOnce("no_target", "move_to: no resolvable target", "fixture", f.ID)
		return
	}
	f.renderMove(universe, fr, pan, tilt, toPan, toTilt, st)
}

func renderMoveToPOI(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	pan, tilt, ok := f.panTiltAxes()
	if !ok {
		return
	}
	pt, ok := f.poiTarget(poiName(data))
	if !ok {
		st.warnOnce("no_poi", "move_to_poi: unknown point of interest", "fixture", f.ID, "poi", poiName(data))
		return
	}
	f.renderMove(universe, fr, pan, tilt, pan.fromU16(pt.Pan), tilt.fromU16(pt.Tilt), st)
}

func renderSeek(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	if fr.Index != fr.Start {
		return
	}
	pan, tilt, ok := f.panTiltAxes()
	if !ok {
		return
	}
	toPan, toTilt, ok := f.resolveTarget(pan, tilt, data)
	if !ok {
		st.warnOnce("no_target", "seek: no resolvable target", "fixture", f.ID)
		return
	}
	f.writeAxis(universe, pan, toPan)
	f.writeAxis(universe, tilt, toTilt)
}
