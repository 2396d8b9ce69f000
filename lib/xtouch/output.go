package xtouch

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

type LCDColor uint8

const (
	ColorBlack LCDColor = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorMagenta
	ColorCyan
	ColorWhite
)

type LEDState uint8

const (
	LEDOff   LEDState = 0
	LEDFlash LEDState = 64
	LEDOn    LEDState = 127
)

// Output sends feedback to the console: motor faders, LEDs, meters and the
// scribble strip displays.
type Output struct {
	send     func(msg midi.Message) error
	deviceID uint8
}

func OpenOutput(port drivers.Out, deviceID uint8) (*Output, error) {
	send, err := midi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("xtouch: open output: %w", err)
	}
	return NewOutput(send, deviceID), nil
}

func NewOutput(send func(msg midi.Message) error, deviceID uint8) *Output {
	return &Output{send: send, deviceID: deviceID}
}

func (o *Output) SetFader(fader, value uint8) error {
	cc := ccFaderFirst + fader
	if fader == MainFader {
		cc = ccFaderMain
	}
	return o.send(midi.ControlChange(0, cc, value&0x7f))
}

func (o *Output) SetButtonLED(button uint8, state LEDState) error {
	return o.send(midi.NoteOn(0, button, uint8(state)))
}

func (o *Output) SetMeter(strip, value uint8) error {
	return o.send(midi.ControlChange(0, ccMeterFirst+strip, value&0x7f))
}

// SetLCD writes both 7-character lines of a scribble strip. The lower line
// is drawn inverted.
func (o *Output) SetLCD(strip uint8, color LCDColor, upper, lower string) error {
	data := []byte{0x00, 0x20, 0x32, o.deviceID, 0x4C, strip, uint8(color) | 0x20}
	data = append(data, lcdLine(upper)...)
	data = append(data, lcdLine(lower)...)
	return o.send(midi.SysEx(data))
}

func lcdLine(s string) []byte {
	line := []byte("       ")
	copy(line, s)
	for i, c := range line {
		if c > 0x7e || c < 0x20 {
			line[i] = '?'
		}
	}
	return line
}
