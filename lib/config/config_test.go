package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lightshow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
data_dir: show
fixtures: /etc/lightshow/fixtures.json
pois: pois.json
fps: 30
artnet:
  target: 10.0.0.255
  universe: 2
xtouch:
  port: x-touch
  buttons:
    play: 10
streamdeck:
  enabled: true
  keys:
    - label: Blue
      fixture: parcan_l
      effect: full
      duration: 0.5
      data: {red: 0, green: 0, blue: 255}
analysis:
  timeout: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	if cfg.DataDir != filepath.Join(dir, "show") || cfg.POIs != filepath.Join(dir, "pois.json") {
		t.Errorf("relative paths not resolved: %q %q", cfg.DataDir, cfg.POIs)
	}
	if cfg.Fixtures != "/etc/lightshow/fixtures.json" {
		t.Errorf("absolute path changed: %q", cfg.Fixtures)
	}
	if cfg.FPS != 30 || cfg.ArtNet.Universe != 2 || cfg.ArtNet.Rate != 44 {
		t.Errorf("got fps=%d universe=%d rate=%d", cfg.FPS, cfg.ArtNet.Universe, cfg.ArtNet.Rate)
	}
	if cfg.XTouch.Buttons.Play != 10 || cfg.XTouch.Buttons.Stop != 93 {
		t.Errorf("buttons %+v", cfg.XTouch.Buttons)
	}
	if len(cfg.StreamDeck.Keys) != 1 || cfg.StreamDeck.Keys[0].Data["blue"] != 255 {
		t.Errorf("keys %+v", cfg.StreamDeck.Keys)
	}
	if cfg.Analysis.Timeout != 30*time.Second || cfg.Analysis.Interval != time.Second {
		t.Errorf("analysis %+v", cfg.Analysis)
	}
}

func TestLoadEmpty(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FPS != 60 || cfg.HTTP.Addr != ":8080" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadRejects(t *testing.T) {
	for _, content := range []string{
		"fps: 0\n",
		"colour: red\n",
		"log_level: loud\n",
		"streamdeck:\n  keys:\n    - label: x\n",
		"xtouch:\n  fader_bank: 600\n",
	} {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%q: no error", content)
		}
	}
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse([]string{"--fps=25", "--artnet", "192.168.1.50", "--streamdeck"}); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.HTTP.Addr = ":9000"
	if err := cfg.ApplyFlags(fs); err != nil {
		t.Fatal(err)
	}
	if cfg.FPS != 25 || cfg.ArtNet.Target != "192.168.1.50" || !cfg.StreamDeck.Enabled {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Error("unset flag overrode the config")
	}
}
