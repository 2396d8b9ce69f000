// Package xtouch drives a Behringer X-Touch (or Extender) in MC-off MIDI
// mode as a hands-on console for the editor universe.
package xtouch

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

const (
	DeviceIDXTouch   = 0x14
	DeviceIDExtender = 0x15
)

const (
	ccFaderFirst   = 70
	ccFaderLast    = 77
	ccFaderMain    = 78
	ccEncoderFirst = 80
	ccEncoderLast  = 87
	ccJogWheel     = 88
	ccMeterFirst   = 90
)

const (
	noteButtonLast      = 103
	noteFaderTouchFirst = 110
	noteFaderTouchLast  = 117
	noteFaderTouchMain  = 118
)

// Strips is the number of channel strips; the main fader is strip 8.
const Strips = 8

const MainFader = Strips

type Event interface {
	String() string
}

type ButtonEvent struct {
	Button  uint8
	Pressed bool
}

func (e ButtonEvent) String() string {
	if e.Pressed {
		return fmt.Sprintf("button %d pressed", e.Button)
	}
	return fmt.Sprintf("button %d released", e.Button)
}

type FaderEvent struct {
	Fader uint8
	Value uint8
}

func (e FaderEvent) String() string {
	return fmt.Sprintf("%s = %d", faderLabel(e.Fader), e.Value)
}

type FaderTouchEvent struct {
	Fader   uint8
	Touched bool
}

func (e FaderTouchEvent) String() string {
	if e.Touched {
		return faderLabel(e.Fader) + " touched"
	}
	return faderLabel(e.Fader) + " released"
}

func faderLabel(fader uint8) string {
	if fader == MainFader {
		return "fader main"
	}
	return fmt.Sprintf("fader %d", fader)
}

// EncoderEvent is a relative turn of one strip's knob.
type EncoderEvent struct {
	Encoder uint8
	Delta   int
}

func (e EncoderEvent) String() string {
	return fmt.Sprintf("encoder %d %+d", e.Encoder, e.Delta)
}

type JogEvent struct {
	Clockwise bool
}

func (e JogEvent) String() string {
	if e.Clockwise {
		return "jog cw"
	}
	return "jog ccw"
}

// Decode turns one MIDI message from the console into an event, or nil if
// the message means nothing to us. Encoders must be set to relative mode.
func Decode(msg midi.Message) Event {
	var channel, a, b uint8
	switch {
	case msg.Is(midi.NoteOnMsg):
		msg.GetNoteOn(&channel, &a, &b)
		return decodeNote(a, b > 0)
	case msg.Is(midi.NoteOffMsg):
		msg.GetNoteOff(&channel, &a, &b)
		return decodeNote(a, false)
	case msg.Is(midi.ControlChangeMsg):
		msg.GetControlChange(&channel, &a, &b)
		return decodeCC(a, b)
	}
	return nil
}

func decodeNote(key uint8, on bool) Event {
	switch {
	case key <= noteButtonLast:
		return ButtonEvent{Button: key, Pressed: on}
	case key >= noteFaderTouchFirst && key <= noteFaderTouchLast:
		return FaderTouchEvent{Fader: key - noteFaderTouchFirst, Touched: on}
	case key == noteFaderTouchMain:
		return FaderTouchEvent{Fader: MainFader, Touched: on}
	}
	return nil
}

func decodeCC(cc, value uint8) Event {
	switch {
	case cc >= ccFaderFirst && cc <= ccFaderLast:
		return FaderEvent{Fader: cc - ccFaderFirst, Value: value}
	case cc == ccFaderMain:
		return FaderEvent{Fader: MainFader, Value: value}
	case cc >= ccEncoderFirst && cc <= ccEncoderLast:
		// Relative mode sends 65 for one step clockwise, 1 for one step back.
		delta := 0
		switch value {
		case 65:
			delta = 1
		case 1:
			delta = -1
		}
		return EncoderEvent{Encoder: cc - ccEncoderFirst, Delta: delta}
	case cc == ccJogWheel:
		return JogEvent{Clockwise: value == 65}
	}
	return nil
}

func portMatches(name, substr string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(substr))
}

func FindInPort(substr string) (drivers.In, error) {
	for _, port := range midi.GetInPorts() {
		if portMatches(port.String(), substr) {
			return port, nil
		}
	}
	return nil, fmt.Errorf("xtouch: no MIDI input port matching %q", substr)
}

func FindOutPort(substr string) (drivers.Out, error) {
	for _, port := range midi.GetOutPorts() {
		if portMatches(port.String(), substr) {
			return port, nil
		}
	}
	return nil, fmt.Errorf("xtouch: no MIDI output port matching %q", substr)
}
