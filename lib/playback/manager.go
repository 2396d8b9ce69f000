// Package playback decides what the lighting rig outputs at any instant: the
// live editor universe, a frame of the compiled song canvas, or a frame of a
// short effect preview.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"lightshow/lib/canvas"
	"lightshow/lib/cuesheet"
	"lightshow/lib/fixture"
	"lightshow/lib/show"
)

var (
	ErrInvalidChannel  = errors.New("playback: channel out of range")
	ErrInvalidValue    = errors.New("playback: value out of range")
	ErrNoSong          = errors.New("playback: no song loaded")
	ErrInvalidDuration = errors.New("playback: invalid duration")
	ErrUnknownSection  = errors.New("playback: unknown section")
)

// Machine-readable reasons for rejected requests.
const (
	ReasonPlaybackActive     = "playback_active"
	ReasonFixtureNotFound    = "fixture_not_found"
	ReasonPOINotFound        = "poi_not_found"
	ReasonEffectNotSupported = "effect_not_supported"
	ReasonInvalidDuration    = "invalid_duration"
)

// Reason maps an error from the manager to its reason code, or "" if it has
// none.
func Reason(err error) string {
	switch {
	case errors.Is(err, fixture.ErrFixtureNotFound):
		return ReasonFixtureNotFound
	case errors.Is(err, fixture.ErrPOINotFound):
		return ReasonPOINotFound
	case errors.Is(err, ErrInvalidDuration):
		return ReasonInvalidDuration
	}
	return ""
}

const DefaultFPS = 60

type Universe = [canvas.FrameSize]byte

type Options struct {
	DataDir string
	FPS     int
	Log     *slog.Logger

	// Sleep paces preview frames. It must return early with an error once
	// ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Manager struct {
	// previewMu serializes preview start/stop against entering playback. It
	// is always taken before mu.
	previewMu sync.Mutex
	mu        sync.Mutex

	dataDir string
	fps     int
	log     *slog.Logger
	sleep   func(context.Context, time.Duration) error

	roster *fixture.Roster
	pois   fixture.POIList

	song         string
	meta         *show.Metadata
	sheet        *cuesheet.Sheet
	songLength   float64
	lengthSource string
	canvas       *canvas.Canvas
	dirty        bool

	playing  bool
	timecode float64
	frame    int

	editor Universe
	output Universe

	preview    *previewTask
	previewSeq int
	updates    chan Update
}

func New(opts Options) *Manager {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Manager{
		dataDir: opts.DataDir,
		fps:     opts.FPS,
		log:     opts.Log,
		sleep:   opts.Sleep,
		updates: make(chan Update, 64),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Update kinds.
const (
	UpdateStatus   = "status"
	UpdateUniverse = "universe"
	UpdateCues     = "cues"
	UpdateFixtures = "fixtures"
)

type Update struct {
	Kind string
}

// Updates delivers change notifications. Slow readers miss updates rather
// than block the manager.
func (m *Manager) Updates() <-chan Update {
	return m.updates
}

func (m *Manager) notify(kind string) {
	select {
	case m.updates <- Update{Kind: kind}:
	default:
	}
}

func (m *Manager) FPS() int {
	return m.fps
}

func (m *Manager) idleLocked() bool {
	return !m.playing && m.preview == nil
}

// LoadFixtures replaces the roster and writes its arm defaults into the
// editor universe.
func (m *Manager) LoadFixtures(path string) error {
	r, err := fixture.LoadRoster(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.roster = r
	r.ApplyArm(m.editor[:])
	if m.idleLocked() {
		m.output = m.editor
	}
	err = m.refreshCanvasLocked()
	m.mu.Unlock()

	m.log.Info("loaded fixtures", "path", path, "count", len(r.Fixtures()))
	m.notify(UpdateFixtures)
	m.notify(UpdateUniverse)
	return err
}

func (m *Manager) LoadPOIs(path string) error {
	pois, err := fixture.LoadPOIs(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.pois = pois
	m.mu.Unlock()

	m.log.Info("loaded points of interest", "path", path, "count", len(pois))
	m.notify(UpdateFixtures)
	return nil
}

// LoadSong makes name the current song: its analysis metadata, its cue sheet
// (empty if none was saved yet) and a freshly compiled canvas. Playback stops
// and the timecode returns to zero.
func (m *Manager) LoadSong(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("playback: empty song name")
	}
	songName := show.SongName(name)

	meta, err := show.LoadMetadata(show.MetadataPath(m.dataDir, name))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		m.log.Info("no analysis metadata for song", "song", name)
		meta = nil
	}
	sheet, err := cuesheet.LoadOrNew(cuesheet.Path(m.dataDir, songName), name)
	if err != nil {
		return err
	}
	length, source := show.ResolveLength(m.dataDir, name, meta, sheet.End())

	m.previewMu.Lock()
	defer m.previewMu.Unlock()
	if err := m.stopPreview(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.song = name
	m.meta = meta
	m.sheet = sheet
	m.songLength = length
	m.lengthSource = source
	m.playing = false
	m.timecode = 0
	m.frame = 0
	err = m.rebuildLocked()
	m.output = m.editor
	m.mu.Unlock()

	m.log.Info("loaded song", "song", name, "cues", len(sheet.Entries), "length", length, "length_source", source)
	m.notify(UpdateCues)
	m.notify(UpdateStatus)
	m.notify(UpdateUniverse)
	return err
}

// rebuildLocked recompiles the canvas from the current sheet and roster.
func (m *Manager) rebuildLocked() error {
	if m.sheet == nil {
		return nil
	}
	if m.lengthSource == show.LengthFromCues || m.lengthSource == show.LengthUnknown {
		m.songLength = m.sheet.End()
	}
	start := time.Now()
	c, err := cuesheet.Render(m.sheet, m.roster, m.songLength, m.fps, m.log)
	if err != nil {
		return fmt.Errorf("playback: rebuild canvas: %w", err)
	}
	m.canvas = c
	m.dirty = false
	m.frame = c.FrameIndex(m.timecode)
	m.log.Debug("rebuilt canvas", "frames", c.TotalFrames(), "took", time.Since(start))
	return nil
}

// refreshCanvasLocked rebuilds now when idle, or marks the canvas dirty for
// the next stop when playing.
func (m *Manager) refreshCanvasLocked() error {
	if m.sheet == nil {
		return nil
	}
	if m.playing {
		m.dirty = true
		return nil
	}
	return m.rebuildLocked()
}

// OutputUniverse returns a copy of what the transport should send now.
func (m *Manager) OutputUniverse() Universe {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output
}

func (m *Manager) EditorUniverse() Universe {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editor
}

type PreviewInfo struct {
	RequestID string  `json:"requestId"`
	FixtureID string  `json:"fixtureId"`
	Effect    string  `json:"effect"`
	Duration  float64 `json:"duration"`
}

type Status struct {
	IsPlaying     bool         `json:"isPlaying"`
	PreviewActive bool         `json:"previewActive"`
	Preview       *PreviewInfo `json:"preview,omitempty"`
	Song          string       `json:"song,omitempty"`
	SongLength    float64      `json:"songLength"`
	Timecode      float64      `json:"timecode"`
	Frame         int          `json:"frame"`
	TotalFrames   int          `json:"totalFrames"`
	CanvasDirty   bool         `json:"canvasDirty"`
	Section       string       `json:"section,omitempty"`
	BPM           float64      `json:"bpm,omitempty"`
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		IsPlaying:     m.playing,
		PreviewActive: m.preview != nil,
		Song:          m.song,
		SongLength:    m.songLength,
		Timecode:      m.timecode,
		Frame:         m.frame,
		CanvasDirty:   m.dirty,
		Section:       m.meta.SectionAt(m.timecode),
	}
	if m.preview != nil {
		info := m.preview.info
		st.Preview = &info
	}
	if m.canvas != nil {
		st.TotalFrames = m.canvas.TotalFrames()
	}
	if m.meta != nil {
		st.BPM = m.meta.BPM
	}
	return st
}

// Fixtures returns copies of the patched fixtures, safe to read without
// holding the manager.
func (m *Manager) Fixtures() []*fixture.Fixture {
	m.mu.Lock()
	defer m.mu.Unlock()
	fixtures := m.roster.Fixtures()
	out := make([]*fixture.Fixture, len(fixtures))
	for i, f := range fixtures {
		out[i] = f.Clone()
	}
	return out
}

func (m *Manager) POIs() fixture.POIList {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pois
}

func (m *Manager) Metadata() *show.Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta
}

// Canvas returns the compiled canvas of the current song, or nil. Canvases
// are replaced on rebuild, never modified, so the result stays valid.
func (m *Manager) Canvas() *canvas.Canvas {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canvas
}

// Cues returns a copy of the current cue sheet.
func (m *Manager) Cues() (cuesheet.Sheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sheet == nil {
		return cuesheet.Sheet{}, ErrNoSong
	}
	entries := make([]*cuesheet.Entry, len(m.sheet.Entries))
	for i, e := range m.sheet.Entries {
		c := *e
		entries[i] = &c
	}
	return cuesheet.Sheet{SongFilename: m.sheet.SongFilename, Entries: entries}, nil
}

func (m *Manager) Timeline() (cuesheet.Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sheet == nil {
		return cuesheet.Timeline{}, ErrNoSong
	}
	return cuesheet.BuildTimeline(m.sheet, m.roster, m.songLength, m.fps)
}

func validTime(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0)
}
