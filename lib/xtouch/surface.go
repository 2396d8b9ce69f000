package xtouch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gitlab.com/gomidi/midi/v2"

	"lightshow/lib/cuesheet"
	"lightshow/lib/playback"
)

// Controller is the part of the playback manager the console drives.
type Controller interface {
	UpdateDMXChannel(channel, value int) (playback.EditResult, error)
	SetPlaybackState(ctx context.Context, playing bool) error
	Stop(ctx context.Context) error
	SeekTimecode(seconds float64) error
	AddCueEntry(seconds float64, name string) ([]*cuesheet.Entry, error)
	Status() playback.Status
	OutputUniverse() playback.Universe
	EditorUniverse() playback.Universe
}

type Feedback interface {
	SetFader(fader, value uint8) error
	SetButtonLED(button uint8, state LEDState) error
	SetMeter(strip, value uint8) error
	SetLCD(strip uint8, color LCDColor, upper, lower string) error
}

// Buttons are the note numbers of the transport keys.
type Buttons struct {
	Play      uint8
	Stop      uint8
	Record    uint8
	BankLeft  uint8
	BankRight uint8
}

var DefaultButtons = Buttons{Play: 94, Stop: 93, Record: 95, BankLeft: 46, BankRight: 47}

type Options struct {
	// FaderBank is the 1-based bank of eight channels shown at start.
	FaderBank int
	JogStep   float64
	Buttons   Buttons
}

const banks = 512 / Strips

// Surface maps console strips onto a bank of eight DMX channels and the
// transport keys onto playback.
type Surface struct {
	ctl  Controller
	out  Feedback
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	bank    int
	touched [Strips]bool
	faders  [Strips]int
	lcds    [Strips]string
	leds    map[uint8]LEDState
}

func NewSurface(ctl Controller, out Feedback, opts Options, log *slog.Logger) *Surface {
	if log == nil {
		log = slog.Default()
	}
	if opts.JogStep <= 0 {
		opts.JogStep = 0.25
	}
	if opts.Buttons == (Buttons{}) {
		opts.Buttons = DefaultButtons
	}
	s := &Surface{
		ctl:  ctl,
		out:  out,
		opts: opts,
		log:  log,
		bank: min(max(opts.FaderBank-1, 0), banks-1),
		leds: map[uint8]LEDState{},
	}
	s.forgetLocked()
	return s
}

func (s *Surface) forgetLocked() {
	for i := range s.faders {
		s.faders[i] = -1
		s.lcds[i] = ""
	}
}

// FirstChannel is the 1-based DMX channel on strip 0.
func (s *Surface) FirstChannel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank*Strips + 1
}

// Listen is a midi.ListenTo callback.
func (s *Surface) Listen(ctx context.Context) func(msg midi.Message, timestampms int32) {
	return func(msg midi.Message, timestampms int32) {
		ev := Decode(msg)
		if ev == nil {
			return
		}
		if err := s.Handle(ctx, ev); err != nil {
			s.log.Warn("xtouch event failed", "event", ev.String(), "error", err)
		}
	}
}

func (s *Surface) Handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case FaderEvent:
		if e.Fader >= Strips {
			return nil
		}
		return s.setChannel(s.stripChannel(e.Fader), int(e.Value)*255/127)

	case FaderTouchEvent:
		if e.Fader < Strips {
			s.mu.Lock()
			s.touched[e.Fader] = e.Touched
			s.mu.Unlock()
		}
		return nil

	case EncoderEvent:
		ch := s.stripChannel(e.Encoder)
		cur := int(s.ctl.EditorUniverse()[ch-1])
		return s.setChannel(ch, min(max(cur+e.Delta, 0), 255))

	case JogEvent:
		st := s.ctl.Status()
		t := st.Timecode - s.opts.JogStep
		if e.Clockwise {
			t = st.Timecode + s.opts.JogStep
		}
		return s.ctl.SeekTimecode(max(t, 0))

	case ButtonEvent:
		if !e.Pressed {
			return nil
		}
		return s.press(ctx, e.Button)
	}
	return nil
}

func (s *Surface) stripChannel(strip uint8) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank*Strips + int(strip) + 1
}

func (s *Surface) setChannel(ch, value int) error {
	res, err := s.ctl.UpdateDMXChannel(ch, value)
	if err != nil {
		return err
	}
	if !res.Applied {
		s.log.Debug("xtouch edit rejected", "channel", ch, "reason", res.Reason)
	}
	return nil
}

func (s *Surface) press(ctx context.Context, button uint8) error {
	b := s.opts.Buttons
	switch button {
	case b.Play:
		return s.ctl.SetPlaybackState(ctx, !s.ctl.Status().IsPlaying)
	case b.Stop:
		return s.ctl.Stop(ctx)
	case b.Record:
		st := s.ctl.Status()
		entries, err := s.ctl.AddCueEntry(st.Timecode, fmt.Sprintf("xtouch %.2f", st.Timecode))
		if err != nil {
			return err
		}
		s.log.Info("recorded cue from console", "time", st.Timecode, "entries", len(entries))
		return nil
	case b.BankLeft, b.BankRight:
		s.mu.Lock()
		if button == b.BankLeft {
			s.bank = max(s.bank-1, 0)
		} else {
			s.bank = min(s.bank+1, banks-1)
		}
		s.forgetLocked()
		s.mu.Unlock()
		return s.Refresh()
	}
	return nil
}

// Refresh brings faders, meters, displays and transport LEDs in line with
// the output universe. Only changes are sent, and faders under a finger are
// left alone.
func (s *Surface) Refresh() error {
	u := s.ctl.OutputUniverse()
	st := s.ctl.Status()

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := range Strips {
		ch := s.bank*Strips + i + 1
		v := int(u[ch-1])
		pos := v * 127 / 255
		if !s.touched[i] && s.faders[i] != pos {
			errs = append(errs, s.out.SetFader(uint8(i), uint8(pos)))
			errs = append(errs, s.out.SetMeter(uint8(i), uint8(pos)))
			s.faders[i] = pos
		}
		upper, lower := fmt.Sprintf("ch %d", ch), fmt.Sprintf("%d", v)
		if key := upper + "|" + lower; s.lcds[i] != key {
			color := ColorBlue
			if v > 0 {
				color = ColorWhite
			}
			errs = append(errs, s.out.SetLCD(uint8(i), color, upper, lower))
			s.lcds[i] = key
		}
	}

	play := LEDOff
	switch {
	case st.IsPlaying:
		play = LEDOn
	case st.PreviewActive:
		play = LEDFlash
	}
	stop := LEDOff
	if !st.IsPlaying && st.Timecode == 0 {
		stop = LEDOn
	}
	errs = append(errs, s.setLEDLocked(s.opts.Buttons.Play, play))
	errs = append(errs, s.setLEDLocked(s.opts.Buttons.Stop, stop))

	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("xtouch: refresh: %w", err)
		}
	}
	return nil
}

func (s *Surface) setLEDLocked(button uint8, state LEDState) error {
	if cur, ok := s.leds[button]; ok && cur == state {
		return nil
	}
	s.leds[button] = state
	return s.out.SetButtonLED(button, state)
}
