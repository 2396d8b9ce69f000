package cuesheet

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"lightshow/lib/canvas"
	"lightshow/lib/fixture"
)

// TotalFrames is the number of frames a song of the given length needs,
// including a frame for its final instant.
func TotalFrames(songLength float64, fps int) int {
	if math.IsNaN(songLength) || math.IsInf(songLength, 0) || songLength < 0 {
		songLength = 0
	}
	return int(math.Ceil(songLength*float64(fps))) + 1
}

// renderEffect paints one frame of an entry. Tests swap it to inject failures.
var renderEffect = (*fixture.Fixture).RenderEffect

type scheduled struct {
	entry   *Entry
	fixture *fixture.Fixture
	order   int
	start   int
	end     int
	state   *fixture.State
}

// Render compiles sheet into a canvas covering songLength seconds. Every frame
// starts from the roster's arm defaults carried forward through the cues.
func Render(sheet *Sheet, roster *fixture.Roster, songLength float64, fps int, log *slog.Logger) (*canvas.Canvas, error) {
	base := make([]byte, canvas.FrameSize)
	roster.ApplyArm(base)
	var entries []*Entry
	if sheet != nil {
		entries = sheet.Entries
	}
	return RenderFrom(base, entries, roster, songLength, fps, log)
}

// RenderFrom compiles entries on top of base. Entries that reference unknown
// fixtures or fail validation are skipped. A panic inside one effect is
// logged and only costs that entry its write for that frame.
func RenderFrom(base []byte, entries []*Entry, roster *fixture.Roster, songLength float64, fps int, log *slog.Logger) (*canvas.Canvas, error) {
	if log == nil {
		log = slog.Default()
	}
	if len(base) != canvas.FrameSize {
		return nil, fmt.Errorf("cuesheet: base universe is %d bytes: %w", len(base), canvas.ErrInvalidArgument)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("cuesheet: fps %d: %w", fps, canvas.ErrInvalidArgument)
	}
	total := TotalFrames(songLength, fps)
	c, err := canvas.Allocate(fps, total)
	if err != nil {
		return nil, err
	}

	order := make([]int, 0, len(entries))
	for i, e := range entries {
		if e != nil {
			order = append(order, i)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int { return Compare(entries[a], entries[b]) })

	byStart := map[int][]*scheduled{}
	for rank, i := range order {
		e := entries[i]
		if err := e.Validate(); err != nil {
			log.Warn("skipping cue entry", "err", err)
			continue
		}
		f, ok := roster.Get(e.FixtureID)
		if !ok {
			log.Debug("cue entry references unknown fixture", "entry", e.String())
			continue
		}
		start, end := e.Frames(fps)
		if start >= total {
			continue
		}
		byStart[start] = append(byStart[start], &scheduled{entry: e, fixture: f, order: rank, start: start, end: end})
	}

	universe := slices.Clone(base)
	var active []*scheduled
	for frame := range total {
		if starting := byStart[frame]; len(starting) > 0 {
			for _, s := range starting {
				s.state = fixture.NewState(log.With("entry", s.entry.String()))
			}
			active = append(active, starting...)
			slices.SortFunc(active, func(a, b *scheduled) int { return a.order - b.order })
		}
		active = slices.DeleteFunc(active, func(s *scheduled) bool { return s.end < frame })

		for _, s := range active {
			s.render(universe, frame, fps)
		}
		if err := c.SetFrame(frame, universe); err != nil {
			return nil, fmt.Errorf("cuesheet: frame %d: %w", frame, err)
		}
	}
	return c, nil
}

func (s *scheduled) render(universe []byte, frame, fps int) {
	defer func() {
		if r := recover(); r != nil {
			s.state.Log.Warn("effect render failed", "frame", frame, "panic", r)
		}
	}()
	fr := fixture.Frame{Index: frame, Start: s.start, End: s.end, FPS: fps}
	renderEffect(s.fixture, universe, s.entry.Effect, fr, s.entry.Data, s.state)
}
