// Package cuesheet holds the timed cue entries of one song and compiles them
// into a canvas of fully rendered DMX frames.
package cuesheet

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"lightshow/lib/fixture"
)

var ErrInvalidEntry = errors.New("invalid cue entry")

type Entry struct {
	Time      float64        `json:"time"`
	FixtureID string         `json:"fixture_id"`
	Effect    string         `json:"effect"`
	Duration  float64        `json:"duration"`
	Data      map[string]any `json:"data"`
	Name      string         `json:"name,omitempty"`
}

func (e *Entry) String() string {
	return fmt.Sprintf("%s/%s@%.3f+%.3f", e.FixtureID, e.Effect, e.Time, e.Duration)
}

func (e *Entry) Validate() error {
	switch {
	case math.IsNaN(e.Time) || math.IsInf(e.Time, 0) || e.Time < 0:
		return fmt.Errorf("%w: %s: time must be a finite value >= 0", ErrInvalidEntry, e)
	case math.IsNaN(e.Duration) || math.IsInf(e.Duration, 0) || e.Duration < 0:
		return fmt.Errorf("%w: %s: duration must be a finite value >= 0", ErrInvalidEntry, e)
	case strings.TrimSpace(e.FixtureID) == "":
		return fmt.Errorf("%w: %s: missing fixture_id", ErrInvalidEntry, e)
	case strings.TrimSpace(e.Effect) == "":
		return fmt.Errorf("%w: %s: missing effect", ErrInvalidEntry, e)
	}
	return nil
}

// Frames returns the entry's first and last frame at fps.
func (e *Entry) Frames(fps int) (int, int) {
	start := int(math.Round(e.Time * float64(fps)))
	end := int(math.Round((e.Time + e.Duration) * float64(fps)))
	return start, end
}

// Compare orders entries by time, then fixture id, then effect name.
func Compare(a, b *Entry) int {
	if c := cmp.Compare(a.Time, b.Time); c != 0 {
		return c
	}
	if c := strings.Compare(a.FixtureID, b.FixtureID); c != 0 {
		return c
	}
	return strings.Compare(a.Effect, b.Effect)
}

type Sheet struct {
	SongFilename string   `json:"song_filename"`
	Entries      []*Entry `json:"entries"`
}

func New(song string) *Sheet {
	return &Sheet{SongFilename: song, Entries: []*Entry{}}
}

// Clone returns a sheet with its own entry list. The entries are shared.
func (s *Sheet) Clone() *Sheet {
	return &Sheet{SongFilename: s.SongFilename, Entries: slices.Clone(s.Entries)}
}

// Sort puts entries in render order. Entries that compare equal keep their
// relative order.
func (s *Sheet) Sort() {
	slices.SortStableFunc(s.Entries, Compare)
}

// Add validates and appends entries, then re-sorts the sheet. Nothing is
// added if any entry is invalid.
func (s *Sheet) Add(entries ...*Entry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if e.Data == nil {
			e.Data = map[string]any{}
		}
	}
	s.Entries = append(s.Entries, entries...)
	s.Sort()
	return nil
}

func (s *Sheet) Validate() error {
	if s == nil {
		return fmt.Errorf("cuesheet: sheet is nil")
	}
	for i, e := range s.Entries {
		if e == nil {
			return fmt.Errorf("cuesheet: entry %d: %w: null entry", i, ErrInvalidEntry)
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("cuesheet: entry %d: %w", i, err)
		}
	}
	return nil
}

// Lint reports entries that will render as no-ops against roster: unknown
// fixtures and effects the fixture does not support.
func (s *Sheet) Lint(roster *fixture.Roster) []string {
	var problems []string
	for i, e := range s.Entries {
		f, ok := roster.Get(e.FixtureID)
		if !ok {
			problems = append(problems, fmt.Sprintf("entry %d (%s): unknown fixture %q", i, e, e.FixtureID))
			continue
		}
		if !f.SupportsEffect(e.Effect) {
			problems = append(problems, fmt.Sprintf("entry %d (%s): %s does not support %q", i, e, f, e.Effect))
		}
	}
	return problems
}

// End is the time the last entry finishes.
func (s *Sheet) End() float64 {
	end := 0.0
	for _, e := range s.Entries {
		end = max(end, e.Time+e.Duration)
	}
	return end
}

func Path(dataDir, song string) string {
	return filepath.Join(dataDir, "cues", song+".cue.json")
}

func Load(path string) (*Sheet, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cuesheet: %w", err)
	}
	var s Sheet
	if err := json.Unmarshal(buf, &s); err != nil {
		return nil, fmt.Errorf("cuesheet: parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Entries == nil {
		s.Entries = []*Entry{}
	}
	s.Sort()
	return &s, nil
}

// LoadOrNew loads the sheet at path, or starts an empty one for song if the
// file does not exist yet.
func LoadOrNew(path, song string) (*Sheet, error) {
	s, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(song), nil
	}
	return s, err
}

func (s *Sheet) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cuesheet: %w", err)
	}
	buf, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("cuesheet: encode: %w", err)
	}
	if err := os.WriteFile(path, append(buf, '\n'), 0o644); err != nil {
		return fmt.Errorf("cuesheet: %w", err)
	}
	return nil
}
