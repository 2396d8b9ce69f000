package osc

import (
	"bufio"
	"io"
)

// SLIP framing (RFC 1055) as used by OSC 1.1 over TCP.
const (
	slipEnd    = 0xC0
	slipEsc    = 0xDB
	slipEscEnd = 0xDC
	slipEscEsc = 0xDD
)

// slipEncode wraps a packet in END bytes on both sides.
func slipEncode(packet []byte) []byte {
	out := make([]byte, 0, len(packet)+len(packet)/8+2)
	out = append(out, slipEnd)
	for _, b := range packet {
		switch b {
		case slipEnd:
			out = append(out, slipEsc, slipEscEnd)
		case slipEsc:
			out = append(out, slipEsc, slipEscEsc)
		default:
			out = append(out, b)
		}
	}
	return append(out, slipEnd)
}

func slipDecode(frame []byte) []byte {
	out := make([]byte, 0, len(frame))
	escaped := false
	for _, b := range frame {
		if escaped {
			escaped = false
			switch b {
			case slipEscEnd:
				out = append(out, slipEnd)
			case slipEscEsc:
				out = append(out, slipEsc)
			}
			continue
		}
		if b == slipEsc {
			escaped = true
			continue
		}
		out = append(out, b)
	}
	return out
}

// readFrames calls fn for every non-empty SLIP frame read from r and
// returns the first read error.
func readFrames(r io.Reader, fn func(frame []byte)) error {
	br := bufio.NewReaderSize(r, 64<<10)
	for {
		chunk, err := br.ReadBytes(slipEnd)
		if len(chunk) > 0 && chunk[len(chunk)-1] == slipEnd {
			chunk = chunk[:len(chunk)-1]
		}
		if err != nil {
			return err
		}
		if len(chunk) > 0 {
			fn(slipDecode(chunk))
		}
	}
}
