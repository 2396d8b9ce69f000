package playback

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lightshow/lib/cuesheet"
	"lightshow/lib/fixture"
)

const testFixtures = `[
	{"id": "parcan_l", "name": "Parcan L", "type": "parcan", "channels": {"dimmer": 1, "red": 2, "green": 3, "blue": 4}},
	{"id": "parcan_r", "name": "Parcan R", "type": "parcan", "channels": {"dimmer": 5, "red": 6, "green": 7, "blue": 8}},
	{"id": "head", "name": "Head", "type": "moving_head", "channels": {"pan": 10, "tilt": 11, "dimmer": 12}, "arm": {"dimmer": 40}}
]`

const testPOIs = `[{"id": "piano", "name": "Piano"}, {"id": "drums", "name": "Drums"}]`

// immediate lets a preview run to completion without waiting.
func immediate(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// blocked holds a preview on its first frame until it is cancelled.
func blocked(ctx context.Context, d time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

// gated advances a preview one frame per value sent on step. Closing step
// lets the preview run to the end.
func gated(step <-chan struct{}) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-step:
			return nil
		}
	}
}

func setupTest(t *testing.T, sleep func(context.Context, time.Duration) error) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	fixtures := filepath.Join(dir, "fixtures.json")
	if err := os.WriteFile(fixtures, []byte(testFixtures), 0o644); err != nil {
		t.Fatal(err)
	}
	pois := filepath.Join(dir, "pois.json")
	if err := os.WriteFile(pois, []byte(testPOIs), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(Options{DataDir: dir, FPS: 10, Sleep: sleep})
	if err := m.LoadFixtures(fixtures); err != nil {
		t.Fatal(err)
	}
	if err := m.LoadPOIs(pois); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		m.CancelPreview(context.Background())
	})
	return m, dir
}

func loadSong(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.LoadSong(context.Background(), "song.mp3"); err != nil {
		t.Fatal(err)
	}
}

func waitPreview(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.WaitPreview(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestArmOnLoad(t *testing.T) {
	m, _ := setupTest(t, immediate)
	if got := m.EditorUniverse()[11]; got != 40 {
		t.Errorf("editor head dimmer=%d, want armed 40", got)
	}
	if got := m.OutputUniverse()[11]; got != 40 {
		t.Errorf("output head dimmer=%d, want armed 40", got)
	}
}

func TestLiveEdit(t *testing.T) {
	m, _ := setupTest(t, immediate)

	res, err := m.UpdateDMXChannel(4, 200)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied || !res.Live {
		t.Errorf("got %+v, want applied and live", res)
	}
	if m.OutputUniverse()[3] != 200 || m.EditorUniverse()[3] != 200 {
		t.Error("edit did not reach editor and output")
	}

	if _, err := m.UpdateDMXChannel(0, 1); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("channel 0: got %v", err)
	}
	if _, err := m.UpdateDMXChannel(513, 1); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("channel 513: got %v", err)
	}
	if _, err := m.UpdateDMXChannel(1, 256); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("value 256: got %v", err)
	}
}

func TestSetFixtureValues(t *testing.T) {
	m, _ := setupTest(t, immediate)

	res, err := m.SetFixtureValues("parcan_r", map[string]int{"red": 300, "blue": -4, "uv": 9})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied {
		t.Fatalf("got %+v", res)
	}
	u := m.OutputUniverse()
	if u[5] != 255 || u[7] != 0 {
		t.Errorf("red=%d blue=%d, want clamped 255 and 0", u[5], u[7])
	}

	res, err = m.SetFixtureValues("ghost", map[string]int{"red": 1})
	if !errors.Is(err, fixture.ErrFixtureNotFound) || res.Reason != ReasonFixtureNotFound {
		t.Errorf("got %+v, %v", res, err)
	}
}

func TestEditRejectedWhilePlaying(t *testing.T) {
	m, _ := setupTest(t, immediate)
	loadSong(t, m)
	ctx := context.Background()

	if err := m.SetPlaybackState(ctx, true); err != nil {
		t.Fatal(err)
	}
	before := m.OutputUniverse()
	res, err := m.UpdateDMXChannel(2, 99)
	if err != nil {
		t.Fatal(err)
	}
	if res.Applied || res.Reason != ReasonPlaybackActive {
		t.Errorf("got %+v, want playback_active rejection", res)
	}
	if m.EditorUniverse()[1] != 0 {
		t.Error("rejected edit reached the editor")
	}
	if m.OutputUniverse() != before {
		t.Error("rejected edit changed the output")
	}
}

func TestPlayWithoutSong(t *testing.T) {
	m, _ := setupTest(t, immediate)
	if err := m.SetPlaybackState(context.Background(), true); !errors.Is(err, ErrNoSong) {
		t.Errorf("got %v, want ErrNoSong", err)
	}
	if m.Status().IsPlaying {
		t.Error("playing without a song")
	}
}

func TestPreviewFoldsBack(t *testing.T) {
	m, _ := setupTest(t, immediate)
	m.UpdateDMXChannel(3, 50)

	res, err := m.StartPreview(context.Background(), PreviewRequest{
		FixtureID: "parcan_l",
		Effect:    "fade_in",
		Duration:  0.5,
		Data:      map[string]any{"red": 200},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.RequestID != "preview-1" || res.Frames != 6 {
		t.Fatalf("got %+v", res)
	}
	waitPreview(t, m)

	st := m.Status()
	if st.PreviewActive || st.Preview != nil {
		t.Errorf("preview still active: %+v", st)
	}
	ed := m.EditorUniverse()
	if ed[1] != 200 {
		t.Errorf("editor red=%d, want 200 folded back", ed[1])
	}
	if ed[2] != 50 {
		t.Errorf("editor green=%d, want untouched 50", ed[2])
	}
	if m.OutputUniverse() != ed {
		t.Error("output does not mirror editor after preview")
	}
}

func TestPreviewSteps(t *testing.T) {
	step := make(chan struct{})
	m, _ := setupTest(t, gated(step))

	_, err := m.StartPreview(context.Background(), PreviewRequest{
		FixtureID: "parcan_l",
		Effect:    "fade_in",
		Duration:  1,
		Data:      map[string]any{"red": 250},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := m.OutputUniverse()[1]; got != 0 {
		t.Errorf("frame 0 red=%d, want 0", got)
	}

	step <- struct{}{}
	step <- struct{}{}
	// The third send is only accepted once frame 2 has been written.
	step <- struct{}{}
	if got := m.OutputUniverse()[1]; got < 50 || got > 75 {
		t.Errorf("red=%d after two or three steps, want about 50-75", got)
	}
	if m.EditorUniverse()[1] != 0 {
		t.Error("running preview leaked into the editor")
	}

	// Edits while previewing go to the editor only.
	res, _ := m.UpdateDMXChannel(6, 123)
	if !res.Applied || res.Live {
		t.Errorf("got %+v, want applied but not live", res)
	}
	if m.OutputUniverse()[5] == 123 {
		t.Error("edit reached the output during a preview")
	}

	close(step)
	waitPreview(t, m)
	u := m.OutputUniverse()
	if u[1] != 250 {
		t.Errorf("final red=%d, want 250", u[1])
	}
	if u[5] != 123 {
		t.Errorf("edit made during preview lost: %d", u[5])
	}
}

func TestPreviewZeroDuration(t *testing.T) {
	m, _ := setupTest(t, blocked)
	res, err := m.StartPreview(context.Background(), PreviewRequest{FixtureID: "parcan_r", Effect: "full"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Frames != 1 {
		t.Fatalf("got %+v", res)
	}
	if m.Status().PreviewActive {
		t.Error("one-frame preview should finish at once")
	}
	ed := m.EditorUniverse()
	if ed[5] != 255 || ed[6] != 255 || ed[7] != 255 {
		t.Errorf("editor rgb=%v, want white", ed[5:8])
	}
}

func TestPreviewRejections(t *testing.T) {
	m, _ := setupTest(t, blocked)
	ctx := context.Background()

	cases := []struct {
		req  PreviewRequest
		want string
	}{
		{PreviewRequest{FixtureID: "ghost", Effect: "full", Duration: 1}, ReasonFixtureNotFound},
		{PreviewRequest{FixtureID: "parcan_l", Effect: "sweep", Duration: 1}, ReasonEffectNotSupported},
		{PreviewRequest{FixtureID: "parcan_l", Effect: "full", Duration: -1}, ReasonInvalidDuration},
		{PreviewRequest{FixtureID: "parcan_l", Effect: "full", Duration: math.NaN()}, ReasonInvalidDuration},
		{PreviewRequest{FixtureID: "parcan_l", Effect: "full", Duration: math.Inf(1)}, ReasonInvalidDuration},
	}
	for _, c := range cases {
		res, err := m.StartPreview(ctx, c.req)
		if err != nil {
			t.Fatal(err)
		}
		if res.OK || res.Reason != c.want {
			t.Errorf("%+v: got %+v, want reason %s", c.req, res, c.want)
		}
	}
	if m.Status().PreviewActive {
		t.Error("rejected preview became active")
	}
}

func TestPreviewRejectedWhilePlaying(t *testing.T) {
	m, _ := setupTest(t, blocked)
	loadSong(t, m)
	ctx := context.Background()

	if err := m.SetPlaybackState(ctx, true); err != nil {
		t.Fatal(err)
	}
	before := m.OutputUniverse()
	res, err := m.StartPreview(ctx, PreviewRequest{FixtureID: "parcan_l", Effect: "full", Duration: 1})
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Reason != ReasonPlaybackActive {
		t.Errorf("got %+v, want playback_active", res)
	}
	if m.OutputUniverse() != before {
		t.Error("rejected preview changed the output")
	}
}

func TestPlaybackCancelsPreview(t *testing.T) {
	m, _ := setupTest(t, blocked)
	loadSong(t, m)
	ctx := context.Background()

	if _, err := m.StartPreview(ctx, PreviewRequest{FixtureID: "parcan_l", Effect: "full", Duration: 2}); err != nil {
		t.Fatal(err)
	}
	if m.OutputUniverse()[1] != 255 {
		t.Fatal("preview frame 0 not on output")
	}

	if err := m.SetPlaybackState(ctx, true); err != nil {
		t.Fatal(err)
	}
	st := m.Status()
	if !st.IsPlaying || st.PreviewActive {
		t.Errorf("got %+v, want playing without preview", st)
	}
	if m.OutputUniverse()[1] != 0 {
		t.Error("canvas frame not on output after playback started")
	}
	if m.EditorUniverse()[1] != 0 {
		t.Error("cancelled preview was folded back")
	}
}

func TestNewPreviewReplacesOld(t *testing.T) {
	m, _ := setupTest(t, blocked)
	ctx := context.Background()

	if _, err := m.StartPreview(ctx, PreviewRequest{FixtureID: "parcan_l", Effect: "full", Duration: 2}); err != nil {
		t.Fatal(err)
	}
	res, err := m.StartPreview(ctx, PreviewRequest{FixtureID: "parcan_r", Effect: "full", Duration: 2})
	if err != nil {
		t.Fatal(err)
	}
	if res.RequestID != "preview-2" {
		t.Errorf("got request %q", res.RequestID)
	}
	st := m.Status()
	if st.Preview == nil || st.Preview.RequestID != "preview-2" || st.Preview.FixtureID != "parcan_r" {
		t.Errorf("got %+v", st.Preview)
	}
	u := m.OutputUniverse()
	if u[1] != 0 || u[5] != 255 {
		t.Errorf("left red=%d right red=%d, want 0 and 255", u[1], u[5])
	}

	if err := m.CancelPreview(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Status().PreviewActive || m.OutputUniverse()[5] != 0 {
		t.Error("cancel did not restore the editor universe")
	}
}

func writeSheet(t *testing.T, dir string, entries ...*cuesheet.Entry) {
	t.Helper()
	s := cuesheet.New("song.mp3")
	if err := s.Add(entries...); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(cuesheet.Path(dir, "song")); err != nil {
		t.Fatal(err)
	}
}

func TestSeekWhileIdle(t *testing.T) {
	m, dir := setupTest(t, blocked)
	writeSheet(t, dir, &cuesheet.Entry{
		Time:      0.5,
		FixtureID: "parcan_l",
		Effect:    "set_channels",
		Data:      map[string]any{"channels": map[string]any{"blue": 255}},
	})
	loadSong(t, m)

	if err := m.SeekTimecode(0.5); err != nil {
		t.Fatal(err)
	}
	if m.OutputUniverse()[3] != 255 {
		t.Error("seek did not output the canvas frame")
	}
	st := m.Status()
	if st.Frame != 5 || st.TotalFrames != 6 || st.IsPlaying {
		t.Errorf("got %+v", st)
	}

	if err := m.SeekTimecode(-3); err != nil {
		t.Fatal(err)
	}
	if m.Status().Timecode != 0 || m.OutputUniverse()[3] != 0 {
		t.Error("negative seek not clamped to the start")
	}
	if err := m.SeekTimecode(math.NaN()); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("got %v", err)
	}
}

func TestSeekDuringPreview(t *testing.T) {
	m, dir := setupTest(t, blocked)
	writeSheet(t, dir, &cuesheet.Entry{
		FixtureID: "parcan_r",
		Effect:    "set_channels",
		Data:      map[string]any{"channels": map[string]any{"blue": 255}},
	})
	loadSong(t, m)
	ctx := context.Background()

	if _, err := m.StartPreview(ctx, PreviewRequest{FixtureID: "parcan_l", Effect: "full", Duration: 2}); err != nil {
		t.Fatal(err)
	}
	if err := m.SeekTimecode(0); err != nil {
		t.Fatal(err)
	}
	u := m.OutputUniverse()
	if u[1] != 255 || u[7] != 0 {
		t.Error("seek stomped on the running preview")
	}
}

func TestUpdateTimecode(t *testing.T) {
	m, dir := setupTest(t, immediate)
	writeSheet(t, dir,
		&cuesheet.Entry{Time: 1, FixtureID: "parcan_l", Effect: "set_channels", Data: map[string]any{"channels": map[string]any{"red": 10}}},
		&cuesheet.Entry{Time: 2, FixtureID: "parcan_l", Effect: "set_channels", Data: map[string]any{"channels": map[string]any{"red": 20}}},
	)
	loadSong(t, m)
	ctx := context.Background()

	m.UpdateTimecode(1.5)
	if m.OutputUniverse()[1] != 0 {
		t.Error("timecode update while idle changed the output")
	}
	if m.Status().Timecode != 1.5 {
		t.Error("timecode not stored")
	}

	if err := m.SetPlaybackState(ctx, true); err != nil {
		t.Fatal(err)
	}
	if m.OutputUniverse()[1] != 10 {
		t.Errorf("red=%d at 1.5s, want 10", m.OutputUniverse()[1])
	}
	m.UpdateTimecode(2)
	if m.OutputUniverse()[1] != 20 {
		t.Errorf("red=%d at 2s, want 20", m.OutputUniverse()[1])
	}

	if err := m.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	st := m.Status()
	if st.IsPlaying || st.Timecode != 0 {
		t.Errorf("got %+v after stop", st)
	}
	if m.OutputUniverse()[1] != 0 {
		t.Errorf("output red=%d after stop, want canvas frame 0", m.OutputUniverse()[1])
	}
}

func TestAddCueWhilePlaying(t *testing.T) {
	m, dir := setupTest(t, immediate)
	loadSong(t, m)
	ctx := context.Background()

	m.UpdateDMXChannel(4, 255)
	if err := m.SetPlaybackState(ctx, true); err != nil {
		t.Fatal(err)
	}
	if m.OutputUniverse()[3] != 0 {
		t.Fatal("editor value leaked into playback")
	}

	entries, err := m.AddCueEntry(0, "blue wash")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("recorded %d entries, want one per fixture", len(entries))
	}
	if !m.Status().CanvasDirty {
		t.Error("canvas not marked dirty during playback")
	}
	if m.OutputUniverse()[3] != 0 {
		t.Error("canvas rebuilt during playback")
	}

	saved, err := cuesheet.Load(cuesheet.Path(dir, "song"))
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Entries) != 3 || saved.Entries[0].Name != "blue wash" {
		t.Errorf("saved %+v", saved.Entries)
	}

	if err := m.SetPlaybackState(ctx, false); err != nil {
		t.Fatal(err)
	}
	if m.Status().CanvasDirty {
		t.Error("canvas still dirty after pause")
	}
	if err := m.SetPlaybackState(ctx, true); err != nil {
		t.Fatal(err)
	}
	if m.OutputUniverse()[3] != 255 {
		t.Error("recorded cue missing from rebuilt canvas")
	}
}

func TestInsertCueWhileIdle(t *testing.T) {
	m, _ := setupTest(t, immediate)
	if err := m.InsertCueEntry(cuesheet.Entry{FixtureID: "parcan_r", Effect: "full"}); !errors.Is(err, ErrNoSong) {
		t.Errorf("got %v, want ErrNoSong", err)
	}
	loadSong(t, m)

	if err := m.InsertCueEntry(cuesheet.Entry{Time: -1, FixtureID: "parcan_r", Effect: "full"}); !errors.Is(err, cuesheet.ErrInvalidEntry) {
		t.Errorf("got %v, want ErrInvalidEntry", err)
	}
	if err := m.InsertCueEntry(cuesheet.Entry{Time: 1, FixtureID: "parcan_r", Effect: "full"}); err != nil {
		t.Fatal(err)
	}
	st := m.Status()
	if st.CanvasDirty || st.TotalFrames != 11 {
		t.Errorf("got %+v, want rebuilt 11-frame canvas", st)
	}
	if err := m.SeekTimecode(1); err != nil {
		t.Fatal(err)
	}
	if m.OutputUniverse()[5] != 255 {
		t.Error("inserted cue not rendered")
	}
	cues, err := m.Cues()
	if err != nil || len(cues.Entries) != 1 {
		t.Errorf("got %v, %v", cues, err)
	}
}

func TestSavePOITarget(t *testing.T) {
	m, dir := setupTest(t, immediate)

	err := m.SavePOITarget("head", "stage_door", 1, 2)
	if !errors.Is(err, fixture.ErrPOINotFound) || Reason(err) != ReasonPOINotFound {
		t.Errorf("got %v", err)
	}
	err = m.SavePOITarget("ghost", "piano", 1, 2)
	if !errors.Is(err, fixture.ErrFixtureNotFound) || Reason(err) != ReasonFixtureNotFound {
		t.Errorf("got %v", err)
	}

	if err := m.SavePOITarget("head", "piano", 30000, 12000); err != nil {
		t.Fatal(err)
	}
	r, err := fixture.LoadRoster(filepath.Join(dir, "fixtures.json"))
	if err != nil {
		t.Fatal(err)
	}
	f, _ := r.Get("head")
	if got := f.POITargets["piano"]; got.Pan != 30000 || got.Tilt != 12000 {
		t.Errorf("saved target %+v", got)
	}
}

func TestSavePOITargetWhileReadingFixtures(t *testing.T) {
	m, _ := setupTest(t, immediate)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 50 {
			m.SavePOITarget("head", "piano", i, i)
		}
	}()
	for {
		select {
		case <-done:
			for _, f := range m.Fixtures() {
				if f.ID == "head" && f.POITargets["piano"].Pan != 49 {
					t.Errorf("got %+v, want last saved target", f.POITargets["piano"])
				}
			}
			return
		default:
		}
		if _, err := json.Marshal(m.Fixtures()); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFixturesAreCopies(t *testing.T) {
	m, _ := setupTest(t, immediate)
	for _, f := range m.Fixtures() {
		f.Channels["red"] = 500
	}
	for _, f := range m.Fixtures() {
		if f.Channels["red"] == 500 {
			t.Fatalf("%s: edit leaked into the roster", f)
		}
	}
}

func TestFailedCueSaveKeepsSheet(t *testing.T) {
	m, dir := setupTest(t, immediate)
	loadSong(t, m)

	path := cuesheet.Path(dir, "song")
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddCueEntry(1, "lost"); err == nil {
		t.Fatal("save into a directory succeeded")
	}
	if err := m.InsertCueEntry(cuesheet.Entry{Time: 0, FixtureID: "parcan_r", Effect: "full"}); err == nil {
		t.Fatal("save into a directory succeeded")
	}
	cues, err := m.Cues()
	if err != nil {
		t.Fatal(err)
	}
	if len(cues.Entries) != 0 {
		t.Errorf("got %d entries after failed saves, want 0", len(cues.Entries))
	}
	if m.Status().CanvasDirty {
		t.Error("canvas marked dirty by a failed save")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := m.SeekTimecode(0); err != nil {
		t.Fatal(err)
	}
	if m.OutputUniverse()[5] != 0 {
		t.Error("failed cue rendered")
	}
	if err := m.InsertCueEntry(cuesheet.Entry{Time: 1, FixtureID: "parcan_l", Effect: "full"}); err != nil {
		t.Fatal(err)
	}
	cues, _ = m.Cues()
	if len(cues.Entries) != 1 {
		t.Errorf("got %d entries, want 1", len(cues.Entries))
	}
}

func TestFailedPOISaveKeepsRoster(t *testing.T) {
	m, dir := setupTest(t, immediate)

	path := filepath.Join(dir, "fixtures.json")
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.SavePOITarget("head", "piano", 100, 200); err == nil {
		t.Fatal("save into a directory succeeded")
	}
	for _, f := range m.Fixtures() {
		if _, ok := f.POITargets["piano"]; ok {
			t.Errorf("%s kept a target that was never saved", f)
		}
	}
}

func TestLoadSongStopsPlayback(t *testing.T) {
	m, _ := setupTest(t, blocked)
	loadSong(t, m)
	ctx := context.Background()

	if err := m.SetPlaybackState(ctx, true); err != nil {
		t.Fatal(err)
	}
	m.UpdateTimecode(0.2)
	loadSong(t, m)
	st := m.Status()
	if st.IsPlaying || st.Timecode != 0 || st.Song != "song.mp3" {
		t.Errorf("got %+v", st)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m, _ := setupTest(t, immediate)
	loadSong(t, m)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				switch (i + j) % 5 {
				case 0:
					m.UpdateDMXChannel(1+j%8, j)
				case 1:
					m.StartPreview(ctx, PreviewRequest{FixtureID: "parcan_l", Effect: "flash", Duration: 0.3})
				case 2:
					m.SetPlaybackState(ctx, j%2 == 0)
				case 3:
					m.SeekTimecode(float64(j) / 10)
				case 4:
					m.OutputUniverse()
					m.Status()
				}
			}
		}()
	}
	wg.Wait()

	if err := m.SetPlaybackState(ctx, false); err != nil {
		t.Fatal(err)
	}
	waitPreview(t, m)
	if m.Status().PreviewActive {
		t.Error("preview still running")
	}
}
