package fixture

const stateBeamOn = "beam_on"

func renderBeamFull(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	if fr.Index != fr.Start {
		return
	}
	if name, ok := f.dimmerChannel(); ok {
		f.write(universe, name, 255)
	}
	f.write(universe, "shutter", 255)
}

// beamChannel is the channel a moving head strobes with: the shutter when it
// has one, otherwise its dimmer.
func (f *Fixture) beamChannel() (string, bool) {
	if _, ok := f.Channels["shutter"]; ok {
		return "shutter", true
	}
	return f.dimmerChannel()
}

func renderBeamStrobe(f *Fixture, universe []byte, fr Frame, data map[string]any, st *State) {
	name, ok := f.beamChannel()
	if !ok {
		st.warnOnce("no_beam", "strobe: fixture has no shutter or dimmer", "fixture", f.ID)
		return
	}

	settle, cached := st.Get(stateBeamOn)
	if !cached {
		v, _ := f.read(universe, name)
		settle = v
		st.Set(stateBeamOn, v)
	}

	if fr.Index >= fr.End {
		f.write(universe, name, settle.(int))
		return
	}
	v := 0
	if strobeOn(fr, strobeRate(data)) {
		v = 255
	}
	f.write(universe, name, v)
}
