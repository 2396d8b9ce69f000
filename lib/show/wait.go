package show

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

var ErrAnalysisTimeout = errors.New("show: timed out waiting for analysis")

// WaitForMetadata polls path until the analyzer has written a readable
// metadata file. A deadline on ctx is reported as ErrAnalysisTimeout; plain
// cancellation returns ctx.Err().
func WaitForMetadata(ctx context.Context, path string, interval time.Duration) (*Metadata, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		m, err := LoadMetadata(path)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			// The analyzer may be mid-write; keep the error for the report.
			lastErr = err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				if lastErr != nil {
					return nil, fmt.Errorf("%w: %s: %v", ErrAnalysisTimeout, path, lastErr)
				}
				return nil, fmt.Errorf("%w: %s", ErrAnalysisTimeout, path)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
