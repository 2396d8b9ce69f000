// Package canvas holds a whole song's worth of rendered DMX frames in one
// flat, pre-allocated buffer.
package canvas

import (
	"errors"
	"fmt"
	"math"
)

const FrameSize = 512

var ErrInvalidArgument = errors.New("canvas: invalid argument")

type Canvas struct {
	fps         int
	totalFrames int
	buf         []byte
}

func Allocate(fps, totalFrames int) (*Canvas, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("%w: fps %d", ErrInvalidArgument, fps)
	}
	if totalFrames <= 0 {
		return nil, fmt.Errorf("%w: total frames %d", ErrInvalidArgument, totalFrames)
	}
	return &Canvas{
		fps:         fps,
		totalFrames: totalFrames,
		buf:         make([]byte, totalFrames*FrameSize),
	}, nil
}

func (c *Canvas) FPS() int         { return c.fps }
func (c *Canvas) TotalFrames() int { return c.totalFrames }

// Duration is the time of the last frame in seconds.
func (c *Canvas) Duration() float64 {
	return float64(c.totalFrames-1) / float64(c.fps)
}

func (c *Canvas) clamp(index int) int {
	if index < 0 {
		return 0
	}
	if index >= c.totalFrames {
		return c.totalFrames - 1
	}
	return index
}

// FrameView returns the 512 bytes of the frame at index, clamped into range.
// The slice aliases the canvas buffer.
func (c *Canvas) FrameView(index int) []byte {
	i := c.clamp(index)
	return c.buf[i*FrameSize : (i+1)*FrameSize : (i+1)*FrameSize]
}

func (c *Canvas) SetFrame(index int, frame []byte) error {
	if len(frame) != FrameSize {
		return fmt.Errorf("%w: frame is %d bytes, want %d", ErrInvalidArgument, len(frame), FrameSize)
	}
	copy(c.FrameView(index), frame)
	return nil
}

func (c *Canvas) FrameIndex(seconds float64) int {
	if math.IsNaN(seconds) {
		return 0
	}
	f := math.Round(seconds * float64(c.fps))
	if f < 0 {
		return 0
	}
	if f > float64(c.totalFrames) {
		return c.totalFrames - 1
	}
	return c.clamp(int(f))
}

func (c *Canvas) FrameAt(seconds float64) []byte {
	return c.FrameView(c.FrameIndex(seconds))
}
