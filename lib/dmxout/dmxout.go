// Package dmxout drives transports from a universe source at a fixed rate.
package dmxout

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const DefaultRate = 44

// Sink transmits a full 512-byte universe. Retrying is the sink's business.
type Sink interface {
	Send(universe []byte) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(universe []byte) error

func (f SinkFunc) Send(universe []byte) error {
	return f(universe)
}

// Source returns the universe to transmit now.
type Source func() [512]byte

type Pump struct {
	Source Source
	Sinks  []Sink
	Rate   int
	Log    *slog.Logger
}

// Run sends the source to every sink Rate times a second until ctx is done,
// then sends one all-zero universe so the rig goes dark.
func (p *Pump) Run(ctx context.Context) error {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	rate := p.Rate
	if rate <= 0 {
		rate = DefaultRate
	}

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	failing := make([]bool, len(p.Sinks))
	for {
		select {
		case <-ctx.Done():
			var blackout [512]byte
			err := p.sendAll(blackout[:], failing, log)
			log.Info("dmx output stopped")
			return err
		case <-ticker.C:
			u := p.Source()
			p.sendAll(u[:], failing, log)
		}
	}
}

// sendAll logs each sink's failure once until it recovers.
func (p *Pump) sendAll(u []byte, failing []bool, log *slog.Logger) error {
	var errs []error
	for i, s := range p.Sinks {
		err := s.Send(u)
		switch {
		case err != nil && !failing[i]:
			log.Warn("dmx send failed", "sink", i, "error", err)
			failing[i] = true
		case err == nil && failing[i]:
			log.Info("dmx send recovered", "sink", i)
			failing[i] = false
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
