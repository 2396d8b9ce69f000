package playback

import (
	"context"
	"fmt"
	"slices"

	"lightshow/lib/fixture"
	"lightshow/lib/show"
)

type EditResult struct {
	Applied bool `json:"applied"`
	// Live is set when the edit reached the output universe.
	Live   bool   `json:"live"`
	Reason string `json:"reason,omitempty"`
}

// UpdateDMXChannel sets one editor channel. Edits are refused while playing,
// and held back from the output while a preview runs.
func (m *Manager) UpdateDMXChannel(channel, value int) (EditResult, error) {
	if channel < 1 || channel > fixture.MaxChannel {
		return EditResult{}, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	if value < 0 || value > 255 {
		return EditResult{}, fmt.Errorf("%w: %d", ErrInvalidValue, value)
	}
	return m.edit(func(editor []byte) {
		editor[channel-1] = byte(value)
	})
}

// SetFixtureValues sets editor channels of one fixture by name. Names the
// fixture does not have are ignored and values are clamped to a byte.
func (m *Manager) SetFixtureValues(fixtureID string, values map[string]int) (EditResult, error) {
	m.mu.Lock()
	f, ok := m.roster.Get(fixtureID)
	m.mu.Unlock()
	if !ok {
		return EditResult{Reason: ReasonFixtureNotFound}, fmt.Errorf("playback: %q: %w", fixtureID, fixture.ErrFixtureNotFound)
	}
	return m.edit(func(editor []byte) {
		for name, v := range values {
			ch, ok := f.Channels[name]
			if !ok || ch < 1 || ch > len(editor) {
				continue
			}
			editor[ch-1] = byte(min(255, max(0, v)))
		}
	})
}

func (m *Manager) edit(apply func(editor []byte)) (EditResult, error) {
	m.mu.Lock()
	if m.playing {
		m.mu.Unlock()
		return EditResult{Reason: ReasonPlaybackActive}, nil
	}
	apply(m.editor[:])
	live := m.preview == nil
	if live {
		m.output = m.editor
	}
	m.mu.Unlock()

	if live {
		m.notify(UpdateUniverse)
	}
	return EditResult{Applied: true, Live: live}, nil
}

// SetPlaybackState starts or pauses playback. Starting cancels any running
// preview and waits for it to finish before the canvas takes over the
// output. Pausing hands the output back to the editor universe.
func (m *Manager) SetPlaybackState(ctx context.Context, playing bool) error {
	m.previewMu.Lock()
	defer m.previewMu.Unlock()

	if playing {
		if err := m.stopPreview(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	var err error
	if playing {
		err = m.startPlayingLocked()
	} else {
		err = m.pauseLocked()
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.log.Info("playback state", "playing", playing)
	m.notify(UpdateStatus)
	m.notify(UpdateUniverse)
	return nil
}

func (m *Manager) startPlayingLocked() error {
	if m.sheet == nil {
		return ErrNoSong
	}
	if m.dirty || m.canvas == nil {
		if err := m.rebuildLocked(); err != nil {
			return err
		}
	}
	m.playing = true
	m.frame = m.canvas.FrameIndex(m.timecode)
	copy(m.output[:], m.canvas.FrameView(m.frame))
	return nil
}

func (m *Manager) pauseLocked() error {
	wasPlaying := m.playing
	m.playing = false
	var err error
	if wasPlaying && m.dirty {
		err = m.rebuildLocked()
	}
	if m.preview == nil {
		m.output = m.editor
	}
	return err
}

// Stop pauses playback and rewinds to the start of the song.
func (m *Manager) Stop(ctx context.Context) error {
	if err := m.SetPlaybackState(ctx, false); err != nil {
		return err
	}
	return m.SeekTimecode(0)
}

// SeekTimecode moves the playhead. The output follows the canvas frame at the
// new position, except while a preview runs outside playback.
func (m *Manager) SeekTimecode(seconds float64) error {
	if !validTime(seconds) {
		return fmt.Errorf("%w: timecode %v", ErrInvalidValue, seconds)
	}
	seconds = max(0, seconds)

	m.mu.Lock()
	m.timecode = seconds
	var err error
	if !m.playing && m.dirty {
		err = m.rebuildLocked()
	}
	updated := false
	if m.canvas != nil {
		m.frame = m.canvas.FrameIndex(seconds)
		if m.playing || m.preview == nil {
			copy(m.output[:], m.canvas.FrameView(m.frame))
			updated = true
		}
	}
	m.mu.Unlock()

	m.notify(UpdateStatus)
	if updated {
		m.notify(UpdateUniverse)
	}
	return err
}

// SeekSection seeks to the start of a named song part.
func (m *Manager) SeekSection(name string) error {
	m.mu.Lock()
	sections := m.meta.Sections()
	m.mu.Unlock()

	i := slices.IndexFunc(sections, func(s show.Section) bool { return s.Name == name })
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownSection, name)
	}
	return m.SeekTimecode(sections[i].Start)
}

// UpdateTimecode follows the audio clock during playback. While not playing
// it only records the position.
func (m *Manager) UpdateTimecode(seconds float64) error {
	if !validTime(seconds) {
		return fmt.Errorf("%w: timecode %v", ErrInvalidValue, seconds)
	}
	seconds = max(0, seconds)

	m.mu.Lock()
	m.timecode = seconds
	updated := false
	if m.playing && m.canvas != nil {
		m.frame = m.canvas.FrameIndex(seconds)
		copy(m.output[:], m.canvas.FrameView(m.frame))
		updated = true
	}
	m.mu.Unlock()

	if updated {
		m.notify(UpdateUniverse)
	}
	return nil
}
