// Package streamdeck drives the keys of an Elgato Stream Deck over USB HID
// and binds them to effect previews.
package streamdeck

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
	"rafaelmartins.com/p/usbhid"
)

const elgatoVendorID = 0x0fd9

type Model struct {
	Name     string
	Keys     int
	Cols     int
	KeySize  int
	FlipKeys bool
}

var (
	ModelXL   = Model{Name: "XL", Keys: 32, Cols: 8, KeySize: 96, FlipKeys: true}
	ModelMK2  = Model{Name: "MK.2", Keys: 15, Cols: 5, KeySize: 72, FlipKeys: true}
	ModelPlus = Model{Name: "Plus", Keys: 8, Cols: 4, KeySize: 120}
)

var productModels = map[uint16]*Model{
	0x006c: &ModelXL,
	0x008f: &ModelXL,
	0x0080: &ModelMK2,
	0x0084: &ModelPlus,
}

type Device struct {
	dev   *usbhid.Device
	model *Model
}

// Open claims the first supported Stream Deck.
func Open() (*Device, error) {
	devices, err := usbhid.Enumerate(func(dev *usbhid.Device) bool {
		return dev.VendorId() == elgatoVendorID && productModels[dev.ProductId()] != nil
	})
	if err != nil {
		return nil, fmt.Errorf("streamdeck: enumerate: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("streamdeck: no device found")
	}
	dev := devices[0]
	if err := dev.Open(true); err != nil {
		return nil, fmt.Errorf("streamdeck: open: %w", err)
	}
	return &Device{dev: dev, model: productModels[dev.ProductId()]}, nil
}

func (d *Device) Model() *Model        { return d.model }
func (d *Device) Keys() int            { return d.model.Keys }
func (d *Device) KeySize() int         { return d.model.KeySize }
func (d *Device) Close() error         { return d.dev.Close() }
func (d *Device) Product() string      { return d.dev.Product() }
func (d *Device) SerialNumber() string { return d.dev.SerialNumber() }

func (d *Device) SetBrightness(percent int) error {
	pl := make([]byte, d.dev.GetFeatureReportLength())
	pl[0] = 0x08
	pl[1] = byte(min(max(percent, 0), 100))
	if err := d.dev.SetFeatureReport(3, pl); err != nil {
		return fmt.Errorf("streamdeck: brightness: %w", err)
	}
	return nil
}

func (d *Device) SetKeyImage(key int, img image.Image) error {
	if key < 0 || key >= d.model.Keys {
		return fmt.Errorf("streamdeck: invalid key %d", key)
	}
	data, err := encodeKey(img, d.model.KeySize, d.model.FlipKeys)
	if err != nil {
		return err
	}
	for _, report := range keyReports(byte(key), data, int(d.dev.GetOutputReportLength())) {
		if err := d.dev.SetOutputReport(2, report); err != nil {
			return fmt.Errorf("streamdeck: key %d: %w", key, err)
		}
	}
	return nil
}

// encodeKey scales img to the key and encodes it as the JPEG the device
// expects, rotated half a turn on models mounted upside down.
func encodeKey(img image.Image, size int, flip bool) ([]byte, error) {
	scaled := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.BiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	var src image.Image = scaled
	if flip {
		flipped := image.NewRGBA(scaled.Bounds())
		for y := range size {
			for x := range size {
				flipped.Set(size-1-x, size-1-y, scaled.At(x, y))
			}
		}
		src = flipped
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("streamdeck: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// keyReports splits an encoded key image into fixed-size output reports,
// each with an 8 byte page header.
func keyReports(key byte, data []byte, reportLen int) [][]byte {
	const hdrLen = 8
	payloadLen := reportLen - hdrLen

	var reports [][]byte
	for page, start := 0, 0; start < len(data); page++ {
		end := min(start+payloadLen, len(data))
		last := byte(0)
		if end == len(data) {
			last = 1
		}
		chunk := data[start:end]
		report := make([]byte, reportLen)
		copy(report, []byte{
			0x02,
			0x07,
			key,
			last,
			byte(len(chunk)),
			byte(len(chunk) >> 8),
			byte(page),
			byte(page >> 8),
		})
		copy(report[hdrLen:], chunk)
		reports = append(reports, report)
		start = end
	}
	return reports
}

type KeyEvent struct {
	Key     int
	Pressed bool
}

// ReadKeys delivers key transitions until ctx is done or the device fails.
func (d *Device) ReadKeys(ctx context.Context, ch chan<- KeyEvent) error {
	states := make([]byte, d.model.Keys)
	for {
		_, buf, err := d.dev.GetInputReport()
		if err != nil {
			return fmt.Errorf("streamdeck: read: %w", err)
		}
		for _, ev := range keyChanges(buf, states) {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// keyChanges compares a key state report against states, updating it and
// returning the keys that changed.
func keyChanges(buf []byte, states []byte) []KeyEvent {
	const keyStart = 3
	if len(buf) < keyStart+1 || buf[0] != 0x00 {
		return nil
	}
	var events []KeyEvent
	for i := range states {
		if keyStart+i >= len(buf) {
			break
		}
		st := buf[keyStart+i]
		if st != states[i] {
			events = append(events, KeyEvent{Key: i, Pressed: st > 0})
			states[i] = st
		}
	}
	return events
}
