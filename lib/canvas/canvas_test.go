package canvas

import (
	"bytes"
	"errors"
	"testing"
)

func TestAllocateRejectsNonPositive(t *testing.T) {
	for _, tc := range []struct{ fps, frames int }{{0, 10}, {-1, 10}, {60, 0}, {60, -3}} {
		if _, err := Allocate(tc.fps, tc.frames); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Allocate(%d, %d): got %v, want ErrInvalidArgument", tc.fps, tc.frames, err)
		}
	}
}

func TestFrameViewClamps(t *testing.T) {
	c, err := Allocate(60, 10)
	if err != nil {
		t.Fatal(err)
	}
	first := make([]byte, FrameSize)
	first[0] = 1
	last := make([]byte, FrameSize)
	last[0] = 9
	if err := c.SetFrame(0, first); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFrame(9, last); err != nil {
		t.Fatal(err)
	}

	if got := c.FrameView(-5)[0]; got != 1 {
		t.Errorf("FrameView(-5)[0] = %d, want 1", got)
	}
	if got := c.FrameView(c.TotalFrames() + 100)[0]; got != 9 {
		t.Errorf("FrameView(total+100)[0] = %d, want 9", got)
	}
	if n := len(c.FrameView(3)); n != FrameSize {
		t.Errorf("frame length %d, want %d", n, FrameSize)
	}
}

func TestSetFrameRejectsWrongLength(t *testing.T) {
	c, err := Allocate(30, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetFrame(0, make([]byte, 511)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("got %v, want ErrInvalidArgument", err)
	}
	if !bytes.Equal(c.FrameView(0), make([]byte, FrameSize)) {
		t.Error("rejected write modified the canvas")
	}
}

func TestSetFrameClampsIndex(t *testing.T) {
	c, err := Allocate(30, 3)
	if err != nil {
		t.Fatal(err)
	}
	frame := bytes.Repeat([]byte{7}, FrameSize)
	if err := c.SetFrame(50, frame); err != nil {
		t.Fatal(err)
	}
	if c.FrameView(2)[511] != 7 {
		t.Error("out-of-range write did not land on the last frame")
	}
}

func TestFrameViewIsLive(t *testing.T) {
	c, err := Allocate(30, 3)
	if err != nil {
		t.Fatal(err)
	}
	c.FrameView(1)[4] = 200
	if c.FrameView(1)[4] != 200 {
		t.Error("frame view does not alias the canvas buffer")
	}
	if c.FrameView(0)[4] != 0 || c.FrameView(2)[4] != 0 {
		t.Error("write leaked into a neighbouring frame")
	}
	v := c.FrameView(1)
	if cap(v) != FrameSize {
		t.Errorf("frame view cap %d, want %d", cap(v), FrameSize)
	}
}

func TestFrameIndex(t *testing.T) {
	c, err := Allocate(60, 61)
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		seconds float64
		want    int
	}{
		{0, 0},
		{0.5, 30},
		{1, 60},
		{-2, 0},
		{100, 60},
	} {
		if got := c.FrameIndex(tc.seconds); got != tc.want {
			t.Errorf("FrameIndex(%v) = %d, want %d", tc.seconds, got, tc.want)
		}
	}
}
