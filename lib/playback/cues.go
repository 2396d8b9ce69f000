package playback

import (
	"fmt"

	"lightshow/lib/cuesheet"
	"lightshow/lib/fixture"
	"lightshow/lib/show"
)

// AddCueEntry records the editor universe as one set_channels cue per
// fixture at the given time. The sheet is saved right away; the canvas is
// rebuilt now, or after playback stops if it is running.
func (m *Manager) AddCueEntry(seconds float64, name string) ([]*cuesheet.Entry, error) {
	m.mu.Lock()
	if m.sheet == nil {
		m.mu.Unlock()
		return nil, ErrNoSong
	}
	var entries []*cuesheet.Entry
	for _, f := range m.roster.Fixtures() {
		channels := map[string]any{}
		for ch, v := range f.ChannelValues(m.editor[:]) {
			channels[ch] = v
		}
		entries = append(entries, &cuesheet.Entry{
			Time:      seconds,
			FixtureID: f.ID,
			Effect:    "set_channels",
			Data:      map[string]any{"channels": channels},
			Name:      name,
		})
	}
	err := m.addEntriesLocked(entries)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.log.Info("recorded cue", "time", seconds, "name", name, "fixtures", len(entries))
	m.notify(UpdateCues)
	m.notify(UpdateStatus)
	return entries, nil
}

// InsertCueEntry adds a single authored entry to the current sheet.
func (m *Manager) InsertCueEntry(entry cuesheet.Entry) error {
	m.mu.Lock()
	if m.sheet == nil {
		m.mu.Unlock()
		return ErrNoSong
	}
	err := m.addEntriesLocked([]*cuesheet.Entry{&entry})
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.log.Info("inserted cue", "entry", entry.String())
	m.notify(UpdateCues)
	m.notify(UpdateStatus)
	return nil
}

// addEntriesLocked saves the sheet with entries added and only then makes it
// the live sheet, so a failed save leaves memory and the canvas as they were.
func (m *Manager) addEntriesLocked(entries []*cuesheet.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	next := m.sheet.Clone()
	if err := next.Add(entries...); err != nil {
		return err
	}
	if err := next.Save(cuesheet.Path(m.dataDir, show.SongName(m.song))); err != nil {
		return err
	}
	m.sheet = next
	return m.refreshCanvasLocked()
}

// SavePOITarget stores where a moving head points for a point of interest
// and writes the fixture file back. The roster in use is replaced only once
// the file is written.
func (m *Manager) SavePOITarget(fixtureID, poiID string, pan, tilt int) error {
	m.mu.Lock()
	if _, ok := m.pois.Find(poiID); !ok {
		m.mu.Unlock()
		return fmt.Errorf("playback: %q: %w", poiID, fixture.ErrPOINotFound)
	}
	next, err := m.roster.WithPOITarget(fixtureID, poiID, fixture.PanTilt{Pan: pan, Tilt: tilt})
	if err == nil {
		err = next.Save()
	}
	if err == nil {
		m.roster = next
		err = m.refreshCanvasLocked()
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.log.Info("saved poi target", "fixture", fixtureID, "poi", poiID, "pan", pan, "tilt", tilt)
	m.notify(UpdateFixtures)
	return nil
}
