// Package config loads the daemon configuration: a YAML file, then
// command-line overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir  string `yaml:"data_dir"`
	Fixtures string `yaml:"fixtures"`
	POIs     string `yaml:"pois"`
	FPS      int    `yaml:"fps"`
	// Song is loaded at startup when set.
	Song     string `yaml:"song"`
	LogLevel string `yaml:"log_level"`

	HTTP       HTTPConfig       `yaml:"http"`
	OSC        OSCConfig        `yaml:"osc"`
	ArtNet     ArtNetConfig     `yaml:"artnet"`
	Enttec     EnttecConfig     `yaml:"enttec"`
	XTouch     XTouchConfig     `yaml:"xtouch"`
	StreamDeck StreamDeckConfig `yaml:"streamdeck"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type OSCConfig struct {
	Addr string `yaml:"addr"`
}

type ArtNetConfig struct {
	// Target is a node or broadcast address. Empty disables Art-Net.
	Target   string `yaml:"target"`
	Universe uint16 `yaml:"universe"`
	Rate     int    `yaml:"rate"`
	Sync     bool   `yaml:"sync"`
}

type EnttecConfig struct {
	// Port is a serial device such as /dev/ttyUSB0. Empty disables it.
	Port string `yaml:"port"`
	Rate int    `yaml:"rate"`
}

type XTouchConfig struct {
	// Port is a substring of the MIDI port name. Empty disables the surface.
	Port string `yaml:"port"`
	// FaderBank is the 1-based bank of eight channels on the faders.
	FaderBank int           `yaml:"fader_bank"`
	JogStep   float64       `yaml:"jog_step"`
	Buttons   XTouchButtons `yaml:"buttons"`
}

// XTouchButtons maps transport functions to button note numbers.
type XTouchButtons struct {
	Play      uint8 `yaml:"play"`
	Stop      uint8 `yaml:"stop"`
	Record    uint8 `yaml:"record"`
	BankLeft  uint8 `yaml:"bank_left"`
	BankRight uint8 `yaml:"bank_right"`
}

type StreamDeckConfig struct {
	Enabled    bool      `yaml:"enabled"`
	Brightness int       `yaml:"brightness"`
	Keys       []DeckKey `yaml:"keys"`
}

// DeckKey is one Stream Deck key bound to a preview effect.
type DeckKey struct {
	Label    string         `yaml:"label"`
	Fixture  string         `yaml:"fixture"`
	Effect   string         `yaml:"effect"`
	Duration float64        `yaml:"duration"`
	Data     map[string]any `yaml:"data"`
}

type AnalysisConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
}

func Default() *Config {
	return &Config{
		DataDir:  ".",
		Fixtures: "fixtures.json",
		FPS:      60,
		LogLevel: "info",
		HTTP:     HTTPConfig{Addr: ":8080"},
		OSC:      OSCConfig{Addr: ":53100"},
		ArtNet:   ArtNetConfig{Rate: 44},
		Enttec:   EnttecConfig{Rate: 40},
		XTouch: XTouchConfig{
			FaderBank: 1,
			JogStep:   0.25,
			Buttons:   XTouchButtons{Play: 94, Stop: 93, Record: 95, BankLeft: 46, BankRight: 47},
		},
		StreamDeck: StreamDeckConfig{Brightness: 60},
		Analysis:   AnalysisConfig{Timeout: 2 * time.Minute, Interval: time.Second},
	}
}

// Load reads path over the defaults. Relative file paths in the config are
// resolved against the config file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for _, p := range []*string{&cfg.DataDir, &cfg.Fixtures, &cfg.POIs} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.FPS <= 0 || c.FPS > 1000:
		return fmt.Errorf("fps must be 1-1000, got %d", c.FPS)
	case c.Fixtures == "":
		return fmt.Errorf("fixtures file is required")
	case c.ArtNet.Universe > 0x7FFF:
		return fmt.Errorf("artnet universe %d out of range", c.ArtNet.Universe)
	case c.XTouch.FaderBank < 1 || c.XTouch.FaderBank > 64:
		return fmt.Errorf("xtouch fader_bank must be 1-64, got %d", c.XTouch.FaderBank)
	case c.StreamDeck.Brightness < 0 || c.StreamDeck.Brightness > 100:
		return fmt.Errorf("streamdeck brightness must be 0-100, got %d", c.StreamDeck.Brightness)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	for i, k := range c.StreamDeck.Keys {
		if k.Fixture == "" || k.Effect == "" {
			return fmt.Errorf("streamdeck key %d needs a fixture and an effect", i)
		}
	}
	return nil
}

func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// AddFlags registers the command-line overrides.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("data-dir", "", "directory holding songs/, metadata/ and cues/")
	fs.String("fixtures", "", "fixture file")
	fs.String("pois", "", "points of interest file")
	fs.Int("fps", 0, "canvas frame rate")
	fs.String("song", "", "song to load at startup")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("http", "", "HTTP listen address")
	fs.String("osc", "", "OSC control listen address")
	fs.String("artnet", "", "Art-Net target address")
	fs.Uint16("universe", 0, "Art-Net universe")
	fs.String("enttec", "", "Enttec DMX USB Pro serial port")
	fs.String("xtouch", "", "X-Touch MIDI port name")
	fs.Bool("streamdeck", false, "enable the Stream Deck")
}

// ApplyFlags copies every flag that was set on the command line.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	strs := map[string]*string{
		"data-dir":  &c.DataDir,
		"fixtures":  &c.Fixtures,
		"pois":      &c.POIs,
		"song":      &c.Song,
		"log-level": &c.LogLevel,
		"http":      &c.HTTP.Addr,
		"osc":       &c.OSC.Addr,
		"artnet":    &c.ArtNet.Target,
		"enttec":    &c.Enttec.Port,
		"xtouch":    &c.XTouch.Port,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		v, err := fs.GetString(name)
		if err != nil {
			return fmt.Errorf("config: --%s: %w", name, err)
		}
		*dst = v
	}
	if fs.Changed("fps") {
		v, err := fs.GetInt("fps")
		if err != nil {
			return fmt.Errorf("config: --fps: %w", err)
		}
		c.FPS = v
	}
	if fs.Changed("universe") {
		v, err := fs.GetUint16("universe")
		if err != nil {
			return fmt.Errorf("config: --universe: %w", err)
		}
		c.ArtNet.Universe = v
	}
	if fs.Changed("streamdeck") {
		v, err := fs.GetBool("streamdeck")
		if err != nil {
			return fmt.Errorf("config: --streamdeck: %w", err)
		}
		c.StreamDeck.Enabled = v
	}
	return c.Validate()
}
