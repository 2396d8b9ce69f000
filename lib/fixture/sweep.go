package fixture

import "math"

const (
	defaultArcStrength = 0.015
	maxArcAmplitude    = 220.0
	defaultCloseRatio  = 0.1
)

type point struct{ pan, tilt int }

func smoothstep(v float64) float64 {
	t := clamp01(v)
	return t * t * (3 - 2*t)
}

// ease blends linear progress toward smoothstep. The blend weight grows with
// the share of the motion spent easing in and out.
func ease(p, easing, duration float64) float64 {
	p = clamp01(p)
	if duration <= 0 || easing <= 0 {
		return p
	}
	blend := clamp01(2 * easing / duration)
	return (1-blend)*p + blend*smoothstep(p)
}

// arcLerp moves from a to b with a sinusoidal offset perpendicular to the
// straight line, zero at both ends.
func arcLerp(a, b point, t, strength float64) point {
	t = clamp01(t)
	pan := float64(lerp(a.pan, b.pan, t))
	tilt := float64(lerp(a.tilt, b.tilt, t))

	dp := float64(b.pan - a.pan)
	dt := float64(b.tilt - a.tilt)
	dist := math.Hypot(dp, dt)
	if dist <= 0 {
		return point{int(pan), int(tilt)}
	}
	amp := math.Min(maxArcAmplitude, dist*strength)
	off := math.Sin(math.Pi*t) * amp
	return point{
		pan:  int(math.Round(pan + (-dt/dist)*off)),
		tilt: int(math.Round(tilt + (dp/dist)*off)),
	}
}

// closeness is 1 at the subject and falls to 0 once the beam is further away
// than closeRatio of the approach distance on either axis.
func closeness(cur, subject, from point, closeRatio float64) float64 {
	totalPan := math.Abs(float64(subject.pan - from.pan))
	totalTilt := math.Abs(float64(subject.tilt - from.tilt))
	if totalPan <= 0 && totalTilt <= 0 {
		return 1
	}

	ratio := math.Max(0.01, math.Min(1, closeRatio))
	closePan := math.Max(6, totalPan*ratio)
	closeTilt := math.Max(6, totalTilt*ratio)

	remPan := math.Abs(float64(subject.pan - cur.pan))
	remTilt := math.Abs(float64(subject.tilt - cur.tilt))

	panF := clamp01((closePan - remPan) / closePan)
	tiltF := clamp01((closeTilt - remTilt) / closeTilt)
	if panF <= 0 || tiltF <= 0 {
		return 0
	}
	c := math.Min(panF, tiltF)

	nearPan := math.Max(2, closePan*0.4)
	nearTilt := math.Max(2, closeTilt*0.4)
	if remPan <= nearPan && remTilt <= nearTilt {
		mix := 1 - math.Max(remPan/nearPan, remTilt/nearTilt)
		c = math.Min(1, c*(1+0.35*clamp01(mix)))
	}
	return clamp01(c)
}

func mirror(subject, start point) point {
	return point{
		pan:  clampInt(2*subject.pan-start.pan, 0, maxU16),
		tilt: clampInt(2*subject.tilt-start.tilt, 0, maxU16),
	}
}

// renderSweep drives a spotlight pass start -> subject -> end. The beam is
// dark while travelling and brightest as it crosses the subject.
func renderSweep(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	pan, tilt, ok := f.panTiltAxes()
	if !ok {
		return
	}
	lookup := func(key string) (point, bool) {
		id := stringOf(data, key)
		if id == "" {
			return point{}, false
		}
		pt, ok := f.poiTarget(id)
		return point{clampInt(pt.Pan, 0, maxU16), clampInt(pt.Tilt, 0, maxU16)}, ok
	}
	start, okS := lookup("start_POI")
	subject, okJ := lookup("subject_POI")
	if !okS || !okJ {
		st.warnOnce("no_poi", "sweep: start_POI and subject_POI must name known points", "fixture", f.ID)
		return
	}
	end, ok := lookup("end_POI")
	if !ok {
		end = mirror(subject, start)
	}

	fps := max(1, fr.FPS)
	duration := floatOr(data["duration"], 0)
	if duration <= 0 {
		duration = math.Max(1/float64(fps), float64(fr.End-fr.Start)/float64(fps))
	}
	total := max(1, int(math.Round(duration*float64(fps))))
	progress := clamp01(float64(fr.Index-fr.Start) / float64(total))

	easing := math.Max(0, floatOr(data["easing"], 0))
	strength := floatOr(data["arc_strength"], defaultArcStrength)
	ratio := floatOr(data["subject_close_ratio"], defaultCloseRatio)

	moved := ease(progress, easing, duration)
	dimEasing := duration/2 - math.Max(0, math.Min(duration/2, easing))
	dimmed := ease(progress, dimEasing, duration)

	var cur point
	if moved <= 0.5 {
		cur = arcLerp(start, subject, moved*2, strength)
	} else {
		cur = arcLerp(subject, end, (moved-0.5)*2, strength)
	}
	cur.pan = clampInt(cur.pan, 0, maxU16)
	cur.tilt = clampInt(cur.tilt, 0, maxU16)

	dim := dimmed * 2
	if dimmed > 0.5 {
		dim = 1 - (dimmed-0.5)*2
	}
	dim *= closeness(cur, subject, start, ratio)

	maxDim := int(math.Round(clamp01(floatOr(data["max_dim"], 1)) * 255))
	level := clampInt(int(math.Round(float64(maxDim)*clamp01(dim))), 0, 255)

	f.writeAxis(universe, pan, pan.fromU16(cur.pan))
	f.writeAxis(universe, tilt, tilt.fromU16(cur.tilt))
	if name, ok := f.dimmerChannel(); ok {
		f.write(universe, name, level)
	}
	f.write(universe, "shutter", 255)
}
