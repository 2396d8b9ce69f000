package playback

import (
	"context"
	"fmt"
	"math"
	"time"

	"lightshow/lib/canvas"
	"lightshow/lib/cuesheet"
)

type PreviewRequest struct {
	FixtureID string         `json:"fixture_id"`
	Effect    string         `json:"effect"`
	Duration  float64        `json:"duration"`
	Data      map[string]any `json:"data,omitempty"`
}

type PreviewResult struct {
	OK        bool    `json:"ok"`
	RequestID string  `json:"requestId,omitempty"`
	FixtureID string  `json:"fixtureId,omitempty"`
	Effect    string  `json:"effect,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Frames    int     `json:"frames,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

type previewTask struct {
	info   PreviewInfo
	canvas *canvas.Canvas
	seed   Universe
	cancel context.CancelFunc
	done   chan struct{}
}

// StartPreview plays one effect on one fixture on top of the editor universe.
// Any running preview is cancelled and waited for first. The preview runs
// in the background; its first frame is on the output when this returns.
// Rejections come back as a result with a reason, not an error.
func (m *Manager) StartPreview(ctx context.Context, req PreviewRequest) (PreviewResult, error) {
	m.previewMu.Lock()
	defer m.previewMu.Unlock()

	if reject := m.checkPreview(req); reject != "" {
		m.log.Info("preview rejected", "fixture", req.FixtureID, "effect", req.Effect, "reason", reject)
		return PreviewResult{Reason: reject}, nil
	}
	if err := m.stopPreview(ctx); err != nil {
		return PreviewResult{}, err
	}

	m.mu.Lock()
	// Playback can only start while holding previewMu, so it is still off.
	entry := &cuesheet.Entry{FixtureID: req.FixtureID, Effect: req.Effect, Duration: req.Duration, Data: req.Data}
	seed := m.editor
	c, err := cuesheet.RenderFrom(seed[:], []*cuesheet.Entry{entry}, m.roster, req.Duration, m.fps, m.log)
	if err != nil {
		m.mu.Unlock()
		return PreviewResult{}, fmt.Errorf("playback: preview: %w", err)
	}

	m.previewSeq++
	runCtx, cancel := context.WithCancel(context.Background())
	t := &previewTask{
		info: PreviewInfo{
			RequestID: fmt.Sprintf("preview-%d", m.previewSeq),
			FixtureID: req.FixtureID,
			Effect:    req.Effect,
			Duration:  req.Duration,
		},
		canvas: c,
		seed:   seed,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.preview = t
	copy(m.output[:], c.FrameView(0))
	if c.TotalFrames() == 1 {
		m.finishPreviewLocked(t)
		close(t.done)
	} else {
		go m.runPreview(runCtx, t)
	}
	m.mu.Unlock()

	m.log.Info("preview started", "request", t.info.RequestID, "fixture", req.FixtureID, "effect", req.Effect, "duration", req.Duration)
	m.notify(UpdateStatus)
	m.notify(UpdateUniverse)
	return PreviewResult{
		OK:        true,
		RequestID: t.info.RequestID,
		FixtureID: req.FixtureID,
		Effect:    req.Effect,
		Duration:  req.Duration,
		Frames:    c.TotalFrames(),
	}, nil
}

func (m *Manager) checkPreview(req PreviewRequest) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		return ReasonPlaybackActive
	}
	if math.IsNaN(req.Duration) || math.IsInf(req.Duration, 0) || req.Duration < 0 {
		return ReasonInvalidDuration
	}
	f, ok := m.roster.Get(req.FixtureID)
	if !ok {
		return ReasonFixtureNotFound
	}
	if !f.SupportsEffect(req.Effect) {
		return ReasonEffectNotSupported
	}
	return ""
}

func (m *Manager) runPreview(ctx context.Context, t *previewTask) {
	defer close(t.done)
	interval := time.Second / time.Duration(t.canvas.FPS())
	last := t.canvas.TotalFrames() - 1

	for i := 1; i <= last; i++ {
		if err := m.sleep(ctx, interval); err != nil {
			return
		}
		m.mu.Lock()
		if m.preview != t || ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		copy(m.output[:], t.canvas.FrameView(i))
		finished := i == last
		if finished {
			m.finishPreviewLocked(t)
		}
		m.mu.Unlock()

		m.notify(UpdateUniverse)
		if finished {
			m.log.Info("preview finished", "request", t.info.RequestID)
			m.notify(UpdateStatus)
		}
	}
}

// finishPreviewLocked folds what the preview changed into the editor
// universe and hands the output back to it.
func (m *Manager) finishPreviewLocked(t *previewTask) {
	final := t.canvas.FrameView(t.canvas.TotalFrames() - 1)
	for i, v := range final {
		if v != t.seed[i] {
			m.editor[i] = v
		}
	}
	m.output = m.editor
	m.preview = nil
	t.cancel()
}

// stopPreview cancels the running preview, if any, and waits for its
// goroutine to exit. The caller holds previewMu but not mu.
func (m *Manager) stopPreview(ctx context.Context) error {
	m.mu.Lock()
	t := m.preview
	m.preview = nil
	if t != nil && !m.playing {
		m.output = m.editor
	}
	m.mu.Unlock()
	if t == nil {
		return nil
	}

	t.cancel()
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.log.Info("preview cancelled", "request", t.info.RequestID)
	return nil
}

// CancelPreview stops the running preview without keeping its effect.
func (m *Manager) CancelPreview(ctx context.Context) error {
	m.previewMu.Lock()
	defer m.previewMu.Unlock()
	if err := m.stopPreview(ctx); err != nil {
		return err
	}
	m.notify(UpdateStatus)
	m.notify(UpdateUniverse)
	return nil
}

// WaitPreview blocks until the running preview, if any, has finished.
func (m *Manager) WaitPreview(ctx context.Context) error {
	m.mu.Lock()
	t := m.preview
	m.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
