package cuesheet

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"lightshow/lib/canvas"
	"lightshow/lib/fixture"
)

func setupRoster(t testing.TB, fixtures ...*fixture.Fixture) *fixture.Roster {
	t.Helper()
	r, err := fixture.NewRoster(fixtures)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func parcan(id string, red int) *fixture.Fixture {
	return &fixture.Fixture{
		ID:       id,
		Type:     fixture.Parcan,
		Channels: map[string]int{"red": red, "green": red + 1, "blue": red + 2},
	}
}

func setChannels(t float64, id string, values map[string]any) *Entry {
	return &Entry{Time: t, FixtureID: id, Effect: "set_channels", Data: map[string]any{"channels": values}}
}

func render(t *testing.T, sheet *Sheet, r *fixture.Roster, length float64) *canvas.Canvas {
	t.Helper()
	c, err := Render(sheet, r, length, 60, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestTwoParcans(t *testing.T) {
	r := setupRoster(t, parcan("parcan_l", 2), parcan("parcan_r", 6))
	sheet := New("song.mp3")
	if err := sheet.Add(
		setChannels(0.5, "parcan_r", map[string]any{"blue": 255}),
		setChannels(0, "parcan_l", map[string]any{"blue": 255}),
	); err != nil {
		t.Fatal(err)
	}

	c := render(t, sheet, r, 2)
	if c.TotalFrames() != 121 {
		t.Fatalf("got %d frames, want 121", c.TotalFrames())
	}
	check := func(frame int, l, r byte) {
		t.Helper()
		f := c.FrameView(frame)
		if f[3] != l || f[7] != r {
			t.Errorf("frame %d: got [3]=%d [7]=%d, want %d %d", frame, f[3], f[7], l, r)
		}
	}
	check(0, 255, 0)
	check(29, 255, 0)
	check(30, 255, 255)
	check(c.TotalFrames()-1, 255, 255)
}

func TestFadeInOverOneSecond(t *testing.T) {
	r := setupRoster(t, parcan("p", 1))
	sheet := New("song.mp3")
	sheet.Add(&Entry{Time: 0, FixtureID: "p", Effect: "fade_in", Duration: 1, Data: map[string]any{"red": 255}})

	c := render(t, sheet, r, 3)
	if v := c.FrameView(0)[0]; v != 0 {
		t.Errorf("frame 0: red=%d, want 0", v)
	}
	if v := c.FrameView(30)[0]; v != 127 && v != 128 {
		t.Errorf("frame 30: red=%d, want 127 or 128", v)
	}
	if v := c.FrameView(60)[0]; v != 255 {
		t.Errorf("frame 60: red=%d, want 255", v)
	}
	if v := c.FrameView(61)[0]; v != 255 {
		t.Errorf("frame 61: red=%d, want 255", v)
	}
}

func TestEmptySheetRepeatsArm(t *testing.T) {
	p := parcan("p", 1)
	p.Arm = map[string]int{"green": 17}
	r := setupRoster(t, p)

	c := render(t, New("song.mp3"), r, 1)
	for i := range c.TotalFrames() {
		if v := c.FrameView(i)[1]; v != 17 {
			t.Fatalf("frame %d: green=%d, want 17", i, v)
		}
	}
}

func TestOverlapOrder(t *testing.T) {
	r := setupRoster(t, parcan("p", 1))
	sheet := New("song.mp3")
	sheet.Add(
		setChannels(0, "p", map[string]any{"red": 10}),
		&Entry{Time: 0, FixtureID: "p", Effect: "full", Data: map[string]any{}},
	)
	if sheet.Entries[0].Effect != "full" {
		t.Fatalf("sort order: first entry is %s", sheet.Entries[0])
	}

	a := render(t, sheet, r, 1)
	f := a.FrameView(0)
	if f[0] != 10 || f[1] != 255 {
		t.Errorf("got red=%d green=%d, want set_channels to win red", f[0], f[1])
	}

	b := render(t, sheet, r, 1)
	for i := range a.TotalFrames() {
		if !bytes.Equal(a.FrameView(i), b.FrameView(i)) {
			t.Fatalf("frame %d differs between builds", i)
		}
	}
}

func TestStrobeRestoresOnColor(t *testing.T) {
	r := setupRoster(t, parcan("p", 1))
	sheet := New("song.mp3")
	sheet.Add(
		setChannels(0, "p", map[string]any{"red": 200}),
		&Entry{Time: 0, FixtureID: "p", Effect: "strobe", Duration: 0.2, Data: map[string]any{"rate": 10}},
	)

	c := render(t, sheet, r, 1)
	if v := c.FrameView(3)[0]; v != 0 {
		t.Errorf("frame 3: red=%d, want dark", v)
	}
	if v := c.FrameView(12)[0]; v != 200 {
		t.Errorf("frame 12: red=%d, want 200", v)
	}
	if v := c.FrameView(13)[0]; v != 200 {
		t.Errorf("frame 13: red=%d, want 200", v)
	}
}

func TestMoveToBoundaries(t *testing.T) {
	head := &fixture.Fixture{
		ID:       "head",
		Type:     fixture.MovingHead,
		Channels: map[string]int{"pan_msb": 1, "pan_lsb": 2, "tilt_msb": 3, "tilt_lsb": 4},
	}
	r := setupRoster(t, head)
	sheet := New("song.mp3")
	sheet.Add(&Entry{Time: 1, FixtureID: "head", Effect: "move_to", Duration: 1, Data: map[string]any{"pan": 65535, "tilt": 1000}})

	c := render(t, sheet, r, 3)
	pan := func(i int) int { f := c.FrameView(i); return int(f[0])<<8 | int(f[1]) }
	if pan(60) != 0 {
		t.Errorf("start frame: pan=%d, want 0", pan(60))
	}
	if got := pan(90); got < 32767 || got > 32768 {
		t.Errorf("midpoint: pan=%d", got)
	}
	if pan(120) != 65535 || pan(180) != 65535 {
		t.Errorf("end: pan=%d then %d, want 65535", pan(120), pan(180))
	}
}

func TestEffectPanicKeepsBuilding(t *testing.T) {
	orig := renderEffect
	t.Cleanup(func() { renderEffect = orig })
	renderEffect = func(f *fixture.Fixture, u []byte, effect string, fr fixture.Frame, data map[string]any, st *fixture.State) {
		if effect == "explode" {
			panic("boom")
		}
		orig(f, u, effect, fr, data, st)
	}

	r := setupRoster(t, parcan("parcan_l", 2), parcan("parcan_r", 6))
	sheet := &Sheet{Entries: []*Entry{
		{Time: 0, FixtureID: "parcan_l", Effect: "explode", Duration: 1},
		setChannels(0, "parcan_r", map[string]any{"blue": 200}),
		setChannels(0.5, "parcan_l", map[string]any{"red": 90}),
	}}

	c := render(t, sheet, r, 1)
	first := c.FrameView(0)
	if first[7] != 200 {
		t.Errorf("frame 0: parcan_r blue=%d, want 200 despite the failing entry", first[7])
	}
	for _, frame := range []int{1, 30, c.TotalFrames() - 1} {
		f := c.FrameView(frame)
		if f[7] != 200 {
			t.Errorf("frame %d: parcan_r blue=%d, want 200 carried forward", frame, f[7])
		}
	}
	if got := c.FrameView(c.TotalFrames() - 1)[1]; got != 90 {
		t.Errorf("last frame: parcan_l red=%d, want 90", got)
	}
}

func TestNilEntriesSkipped(t *testing.T) {
	r := setupRoster(t, parcan("parcan_l", 2))
	entries := []*Entry{nil, setChannels(0, "parcan_l", map[string]any{"green": 7}), nil}

	c, err := RenderFrom(make([]byte, canvas.FrameSize), entries, r, 0.5, 60, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.FrameView(0)[2]; got != 7 {
		t.Errorf("green=%d, want 7", got)
	}
}

func TestUnknownFixtureIsNoop(t *testing.T) {
	r := setupRoster(t, parcan("p", 1))
	sheet := New("song.mp3")
	sheet.Add(setChannels(0, "ghost", map[string]any{"red": 255}))

	c := render(t, sheet, r, 1)
	if !bytes.Equal(c.FrameView(0), make([]byte, canvas.FrameSize)) {
		t.Error("unknown fixture wrote to the universe")
	}
	if problems := sheet.Lint(r); len(problems) != 1 {
		t.Errorf("got %d lint problems, want 1: %v", len(problems), problems)
	}
}

func TestCueAfterSongEndIsDropped(t *testing.T) {
	r := setupRoster(t, parcan("p", 1))
	sheet := New("song.mp3")
	sheet.Add(setChannels(5, "p", map[string]any{"red": 255}))

	c := render(t, sheet, r, 1)
	if v := c.FrameView(c.TotalFrames() - 1)[0]; v != 0 {
		t.Errorf("last frame red=%d, want 0", v)
	}
}

func TestRenderFromBase(t *testing.T) {
	r := setupRoster(t, parcan("p", 1))
	base := make([]byte, canvas.FrameSize)
	base[0] = 90
	base[100] = 7

	c, err := RenderFrom(base, []*Entry{{FixtureID: "p", Effect: "flash", Duration: 0.5}}, r, 0.5, 60, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.TotalFrames() != 31 {
		t.Fatalf("got %d frames, want 31", c.TotalFrames())
	}
	last := c.FrameView(30)
	if last[0] != 0 || last[100] != 7 {
		t.Errorf("got red=%d ch101=%d, want 0 7", last[0], last[100])
	}

	if _, err := RenderFrom(base[:10], nil, r, 1, 60, nil); !errors.Is(err, canvas.ErrInvalidArgument) {
		t.Errorf("short base: got %v", err)
	}
	if _, err := Render(New("x"), r, 1, 0, nil); !errors.Is(err, canvas.ErrInvalidArgument) {
		t.Errorf("fps 0: got %v", err)
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	sheet := New("song.mp3")
	err := sheet.Add(
		setChannels(0, "p", nil),
		&Entry{Time: -1, FixtureID: "p", Effect: "full"},
	)
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("got %v, want ErrInvalidEntry", err)
	}
	if len(sheet.Entries) != 0 {
		t.Errorf("sheet has %d entries after rejected add", len(sheet.Entries))
	}
	if err := sheet.Add(&Entry{Time: 1, FixtureID: "p", Effect: "full", Duration: -2}); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("negative duration: got %v", err)
	}
}

func TestSaveLoad(t *testing.T) {
	path := Path(t.TempDir(), "song")
	sheet := New("song.mp3")
	sheet.Add(
		setChannels(2, "b", map[string]any{"red": 1}),
		setChannels(1, "a", map[string]any{"red": 2}),
	)
	if err := sheet.Save(path); err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "song.cue.json" {
		t.Errorf("unexpected path %s", path)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.SongFilename != "song.mp3" || len(loaded.Entries) != 2 || loaded.Entries[0].FixtureID != "a" {
		t.Errorf("unexpected sheet %+v", loaded)
	}

	fresh, err := LoadOrNew(Path(t.TempDir(), "other"), "other.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.SongFilename != "other.mp3" || len(fresh.Entries) != 0 {
		t.Errorf("unexpected new sheet %+v", fresh)
	}
}

func TestBuildTimelineLanes(t *testing.T) {
	r := setupRoster(t, parcan("p", 1), parcan("q", 4))
	sheet := New("song.mp3")
	sheet.Add(
		&Entry{Time: 0, FixtureID: "p", Effect: "fade_in", Duration: 2, Data: map[string]any{"red": 255}},
		&Entry{Time: 1, FixtureID: "p", Effect: "strobe", Duration: 2},
		&Entry{Time: 2.5, FixtureID: "p", Effect: "flash", Duration: 1},
		&Entry{Time: 0, FixtureID: "ghost", Effect: "full"},
	)

	tl, err := BuildTimeline(sheet, r, 4, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(tl.Tracks) != 3 {
		t.Fatalf("got %d tracks, want 3", len(tl.Tracks))
	}
	p := tl.Tracks[0]
	if p.Lanes != 2 {
		t.Errorf("got %d lanes, want 2", p.Lanes)
	}
	if p.Blocks[1].Lane != 1 || p.Blocks[2].Lane != 0 {
		t.Errorf("lanes: %v %v %v", p.Blocks[0], p.Blocks[1], p.Blocks[2])
	}
	if tl.Tracks[1].Lanes != 1 || len(tl.Tracks[1].Blocks) != 0 {
		t.Errorf("empty track: %+v", tl.Tracks[1])
	}
	if !tl.Tracks[2].Unknown {
		t.Error("ghost track should be marked unknown")
	}
}

func TestMockSheet(t *testing.T) {
	sheet, r := GenerateMockSheet(24, 500, 180)
	if err := sheet.Validate(); err != nil {
		t.Fatalf("generated sheet failed validation: %v", err)
	}
	if len(sheet.Entries) != 500 {
		t.Errorf("got %d entries, want 500", len(sheet.Entries))
	}
	if problems := sheet.Lint(r); len(problems) != 0 {
		t.Errorf("lint: %v", problems)
	}
}

func BenchmarkRender(b *testing.B) {
	sheet, r := GenerateMockSheet(24, 1000, 180)
	if err := sheet.Validate(); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for range b.N {
		Render(sheet, r, 180, 60, nil)
	}
}
