package cuesheet

import (
	"fmt"
	"math/rand/v2"

	"lightshow/lib/fixture"
)

var parcanNamePool = []string{
	"Wash L", "Wash R", "Front", "Back", "Floor", "Side L", "Side R",
	"Uplight", "Cyc", "Drum Riser", "Keys", "Bass",
}

var headNamePool = []string{
	"Spot L", "Spot R", "Beam", "Mover", "Profile", "Truss",
}

var cueNamePool = []string{
	"Verse", "Chorus", "Bridge", "Drop", "Hit", "Build", "Outro",
	"Intro", "Break", "Solo", "Swell", "Blackout",
}

var colorPool = []map[string]any{
	{"red": 255, "green": 0, "blue": 0},
	{"red": 0, "green": 0, "blue": 255},
	{"red": 255, "green": 140, "blue": 0},
	{"red": 180, "green": 0, "blue": 255},
	{"red": 255, "green": 255, "blue": 255},
}

// GenerateMockSheet builds a deterministic rig of numFixtures fixtures and a
// sheet of numEntries cues spread over songLength seconds.
func GenerateMockSheet(numFixtures, numEntries int, songLength float64) (*Sheet, *fixture.Roster) {
	rng := rand.New(rand.NewPCG(42, 0))

	var fixtures []*fixture.Fixture
	ch := 1
	for i := range numFixtures {
		if rng.IntN(3) == 0 {
			fixtures = append(fixtures, &fixture.Fixture{
				ID:   fmt.Sprintf("head_%d", i),
				Name: headNamePool[rng.IntN(len(headNamePool))],
				Type: fixture.MovingHead,
				Channels: map[string]int{
					"pan_msb": ch, "pan_lsb": ch + 1, "tilt_msb": ch + 2, "tilt_lsb": ch + 3,
					"dimmer": ch + 4, "shutter": ch + 5,
				},
				Arm: map[string]int{"shutter": 255},
				POITargets: map[string]fixture.PanTilt{
					"stage_l": {Pan: rng.IntN(1 << 16), Tilt: rng.IntN(1 << 16)},
					"stage_r": {Pan: rng.IntN(1 << 16), Tilt: rng.IntN(1 << 16)},
					"center":  {Pan: rng.IntN(1 << 16), Tilt: rng.IntN(1 << 16)},
				},
			})
			ch += 6
		} else {
			fixtures = append(fixtures, &fixture.Fixture{
				ID:       fmt.Sprintf("parcan_%d", i),
				Name:     parcanNamePool[rng.IntN(len(parcanNamePool))],
				Type:     fixture.Parcan,
				Channels: map[string]int{"red": ch, "green": ch + 1, "blue": ch + 2},
			})
			ch += 3
		}
		if ch > fixture.MaxChannel-6 {
			ch = 1
		}
	}
	roster, err := fixture.NewRoster(fixtures)
	if err != nil {
		panic(err)
	}

	sheet := New("mock.mp3")
	if len(fixtures) == 0 {
		return sheet, roster
	}
	for range numEntries {
		f := fixtures[rng.IntN(len(fixtures))]
		e := &Entry{
			Time:      rng.Float64() * songLength,
			FixtureID: f.ID,
			Name:      cueNamePool[rng.IntN(len(cueNamePool))],
		}
		if f.Type == fixture.MovingHead {
			switch rng.IntN(4) {
			case 0:
				e.Effect, e.Duration = "move_to_poi", 0.5+rng.Float64()*2
				e.Data = map[string]any{"target_POI": []string{"stage_l", "stage_r", "center"}[rng.IntN(3)]}
			case 1:
				e.Effect, e.Duration = "sweep", 2+rng.Float64()*4
				e.Data = map[string]any{"start_POI": "stage_l", "subject_POI": "center", "easing": 0.5}
			case 2:
				e.Effect, e.Duration = "strobe", rng.Float64()*2
				e.Data = map[string]any{"rate": 5 + rng.IntN(10)}
			default:
				e.Effect, e.Duration = "full", 0
				e.Data = map[string]any{}
			}
		} else {
			switch rng.IntN(4) {
			case 0:
				e.Effect, e.Duration = "fade_in", rng.Float64()*3
				e.Data = colorPool[rng.IntN(len(colorPool))]
			case 1:
				e.Effect, e.Duration = "flash", 0.1+rng.Float64()
				e.Data = map[string]any{}
			case 2:
				e.Effect, e.Duration = "strobe", rng.Float64()*2
				e.Data = map[string]any{"speed": rng.IntN(256)}
			default:
				e.Effect, e.Duration = "set_channels", 0
				e.Data = map[string]any{"channels": colorPool[rng.IntN(len(colorPool))]}
			}
		}
		sheet.Entries = append(sheet.Entries, e)
	}
	sheet.Sort()
	return sheet, roster
}
