package streamdeck

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"lightshow/lib/fixture"
	"lightshow/lib/playback"
)

func TestKeyReports(t *testing.T) {
	data := make([]byte, 50)
	for i := range data {
		data[i] = byte(i)
	}
	reports := keyReports(5, data, 28)
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	for i, r := range reports {
		if len(r) != 28 {
			t.Errorf("report %d: length %d", i, len(r))
		}
		if r[2] != 5 || r[6] != byte(i) {
			t.Errorf("report %d: header % x", i, r[:8])
		}
	}
	if reports[0][3] != 0 || reports[2][3] != 1 {
		t.Error("last-page flag on the wrong report")
	}
	if reports[2][4] != 10 {
		t.Errorf("last chunk length %d, want 10", reports[2][4])
	}

	var joined []byte
	for _, r := range reports {
		joined = append(joined, r[8:8+int(r[4])]...)
	}
	if !bytes.Equal(joined, data) {
		t.Error("pages do not reassemble to the image")
	}
}

func TestKeyChanges(t *testing.T) {
	states := make([]byte, 4)
	evs := keyChanges([]byte{0, 0, 0, 0, 1, 0, 0}, states)
	if len(evs) != 1 || evs[0] != (KeyEvent{Key: 1, Pressed: true}) {
		t.Fatalf("got %v", evs)
	}
	if evs := keyChanges([]byte{0, 0, 0, 0, 1, 0, 0}, states); len(evs) != 0 {
		t.Errorf("repeat report produced %v", evs)
	}
	evs = keyChanges([]byte{0, 0, 0, 0, 0, 0, 0}, states)
	if len(evs) != 1 || evs[0].Pressed {
		t.Errorf("got %v", evs)
	}
	if evs := keyChanges([]byte{3, 0, 0, 1, 1}, states); evs != nil {
		t.Errorf("non-key report produced %v", evs)
	}
}

func TestEncodeKeyFlip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := range 10 {
		for x := range 5 {
			src.Set(x, y, color.White)
		}
	}
	data, err := encodeKey(src, 10, true)
	if err != nil {
		t.Fatal(err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 10 {
		t.Fatalf("size %v", img.Bounds())
	}
	// The white half moves to the right.
	if r, _, _, _ := img.At(8, 5).RGBA(); r>>8 < 200 {
		t.Errorf("right side r=%d", r>>8)
	}
	if r, _, _, _ := img.At(1, 5).RGBA(); r>>8 > 60 {
		t.Errorf("left side r=%d", r>>8)
	}
}

func TestAppearance(t *testing.T) {
	u := make([]byte, 512)
	par := &fixture.Fixture{ID: "par", Channels: map[string]int{"dimmer": 1, "red": 2, "green": 3, "blue": 4}}
	u[0], u[1], u[3] = 128, 255, 100
	if got := appearance(par, u); got != (color.RGBA{128, 0, 50, 255}) {
		t.Errorf("par: got %v", got)
	}
	dimmer := &fixture.Fixture{ID: "d", Channels: map[string]int{"dimmer": 1}}
	if got := appearance(dimmer, u); got != (color.RGBA{128, 128, 128, 255}) {
		t.Errorf("dimmer only: got %v", got)
	}
}

type fakeKeypad struct {
	mu     sync.Mutex
	images map[int]image.Image
	draws  int
}

func (k *fakeKeypad) Keys() int    { return 4 }
func (k *fakeKeypad) KeySize() int { return 72 }

func (k *fakeKeypad) SetKeyImage(key int, img image.Image) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.images[key] = img
	k.draws++
	return nil
}

func (k *fakeKeypad) corner(key int) color.RGBA {
	k.mu.Lock()
	defer k.mu.Unlock()
	return color.RGBAModel.Convert(k.images[key].At(0, 0)).(color.RGBA)
}

const testFixtures = `[
	{"id": "par", "name": "Par", "type": "parcan", "channels": {"red": 1, "green": 2, "blue": 3}}
]`

func setupTest(t *testing.T) (*playback.Manager, *Panel, *fakeKeypad) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fixtures.json")
	if err := os.WriteFile(path, []byte(testFixtures), 0o644); err != nil {
		t.Fatal(err)
	}
	// Previews hold their first frame until cancelled.
	hold := func(ctx context.Context, d time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}
	mgr := playback.New(playback.Options{DataDir: dir, FPS: 10, Sleep: hold})
	if err := mgr.LoadFixtures(path); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mgr.CancelPreview(context.Background()) })

	pad := &fakeKeypad{images: map[int]image.Image{}}
	panel := NewPanel(pad, mgr, []Binding{
		{Label: "red", Fixture: "par", Effect: "full", Duration: 2, Data: map[string]any{"red": 255}},
		{Fixture: "ghost", Effect: "full", Duration: 1},
	}, nil)
	return mgr, panel, pad
}

func TestPanelToggle(t *testing.T) {
	mgr, panel, pad := setupTest(t)
	ctx := context.Background()

	if err := panel.Refresh(); err != nil {
		t.Fatal(err)
	}
	if got := pad.corner(0); got.R != 0 {
		t.Errorf("idle key 0 = %v, want dark", got)
	}

	if err := panel.Press(ctx, 0); err != nil {
		t.Fatal(err)
	}
	st := mgr.Status()
	if st.Preview == nil || st.Preview.FixtureID != "par" {
		t.Fatalf("no preview running: %+v", st)
	}
	if got := pad.corner(0); got.R < 200 || got.G > 40 {
		t.Errorf("running key 0 = %v, want red", got)
	}

	if err := panel.Press(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if mgr.Status().PreviewActive {
		t.Error("second press did not cancel the preview")
	}
}

func TestPanelRejectsAndSkips(t *testing.T) {
	mgr, panel, pad := setupTest(t)
	ctx := context.Background()

	if err := panel.Press(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if mgr.Status().PreviewActive {
		t.Error("preview started for an unknown fixture")
	}
	if err := panel.Press(ctx, 3); err != nil {
		t.Fatal(err)
	}

	pad.mu.Lock()
	draws := pad.draws
	pad.mu.Unlock()
	if err := panel.Refresh(); err != nil {
		t.Fatal(err)
	}
	pad.mu.Lock()
	defer pad.mu.Unlock()
	if pad.draws != draws {
		t.Errorf("unchanged refresh redrew %d keys", pad.draws-draws)
	}
}
