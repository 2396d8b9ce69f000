// Package enttec drives an Enttec DMX USB Pro (or compatible) widget over
// its virtual serial port.
package enttec

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	startOfMessage = 0x7E
	endOfMessage   = 0xE7

	labelSendDMX = 6

	// The widget's virtual COM port ignores the baud rate.
	baudRate = 57600

	reopenDelay = 2 * time.Second
)

// buildPacket frames payload with the widget's message header and trailer.
func buildPacket(label byte, payload []byte) []byte {
	pkt := make([]byte, 0, len(payload)+5)
	pkt = append(pkt, startOfMessage, label, byte(len(payload)), byte(len(payload)>>8))
	pkt = append(pkt, payload...)
	return append(pkt, endOfMessage)
}

// dmxPacket builds a Send DMX message: start code 0 followed by the slots.
func dmxPacket(universe []byte) []byte {
	payload := make([]byte, 0, len(universe)+1)
	payload = append(payload, 0)
	payload = append(payload, universe...)
	return buildPacket(labelSendDMX, payload)
}

// Widget sends universes to a serial port, reopening it after failures.
type Widget struct {
	name string
	open func(name string) (io.WriteCloser, error)

	mu       sync.Mutex
	port     io.WriteCloser
	lastOpen time.Time
}

func openSerial(name string) (io.WriteCloser, error) {
	return serial.Open(name, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.TwoStopBits,
	})
}

// Open opens the named serial port, e.g. /dev/ttyUSB0.
func Open(name string) (*Widget, error) {
	w := &Widget{name: name, open: openSerial}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.reopenLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Widget) reopenLocked() error {
	w.lastOpen = time.Now()
	port, err := w.open(w.name)
	if err != nil {
		return fmt.Errorf("enttec: open %s: %w", w.name, err)
	}
	w.port = port
	return nil
}

func (w *Widget) Send(universe []byte) error {
	if len(universe) > 512 {
		return fmt.Errorf("enttec: universe is %d bytes", len(universe))
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.port == nil {
		if time.Since(w.lastOpen) < reopenDelay {
			return fmt.Errorf("enttec: %s: not connected", w.name)
		}
		if err := w.reopenLocked(); err != nil {
			return err
		}
	}
	if _, err := w.port.Write(dmxPacket(universe)); err != nil {
		w.port.Close()
		w.port = nil
		return fmt.Errorf("enttec: write %s: %w", w.name, err)
	}
	return nil
}

func (w *Widget) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.port == nil {
		return nil
	}
	err := w.port.Close()
	w.port = nil
	return err
}

// Ports lists the serial ports present on this machine.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("enttec: %w", err)
	}
	return ports, nil
}
