package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"lightshow/lib/xtouch"
)

var lcdColors = []xtouch.LCDColor{
	xtouch.ColorRed,
	xtouch.ColorGreen,
	xtouch.ColorYellow,
	xtouch.ColorBlue,
	xtouch.ColorMagenta,
	xtouch.ColorCyan,
	xtouch.ColorWhite,
}

// xtouchtest prints console events and echoes faders and encoders back to
// the motors and displays, to check wiring and MIDI mode before a show.
func main() {
	port := pflag.String("port", "x-touch", "MIDI port name substring")
	extender := pflag.Bool("extender", false, "device is an X-Touch Extender")
	pflag.Parse()

	defer midi.CloseDriver()

	inPort, err := xtouch.FindInPort(*port)
	if err != nil {
		fmt.Println("Available MIDI input ports:")
		for _, p := range midi.GetInPorts() {
			fmt.Printf("  %s\n", p)
		}
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		os.Exit(1)
	}
	outPort, err := xtouch.FindOutPort(*port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	deviceID := uint8(xtouch.DeviceIDXTouch)
	if *extender {
		deviceID = xtouch.DeviceIDExtender
	}
	out, err := xtouch.OpenOutput(outPort, deviceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var values [xtouch.Strips]int
	show := func(strip uint8) {
		v := values[strip]
		out.SetLCD(strip, lcdColors[v*len(lcdColors)/128], fmt.Sprintf("strip %d", strip+1), fmt.Sprintf("%d", v))
		out.SetMeter(strip, uint8(v))
	}
	for i := range uint8(xtouch.Strips) {
		show(i)
	}

	fmt.Printf("Listening on: %s\n", inPort)
	stop, err := midi.ListenTo(inPort, func(msg midi.Message, timestampms int32) {
		ev := xtouch.Decode(msg)
		if ev == nil {
			return
		}
		fmt.Println(ev)

		switch e := ev.(type) {
		case xtouch.FaderEvent:
			if e.Fader >= xtouch.Strips {
				return
			}
			values[e.Fader] = int(e.Value)
			show(e.Fader)
		case xtouch.EncoderEvent:
			values[e.Encoder] = min(max(values[e.Encoder]+e.Delta, 0), 127)
			out.SetFader(e.Encoder, uint8(values[e.Encoder]))
			show(e.Encoder)
		case xtouch.ButtonEvent:
			state := xtouch.LEDOff
			if e.Pressed {
				state = xtouch.LEDOn
			}
			out.SetButtonLED(e.Button, state)
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listening: %v\n", err)
		os.Exit(1)
	}
	defer stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println()
}
