package transcode

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/spf13/afero"
)

const (
	defaultWaitAttempts = 25
	defaultWaitInterval = 200 * time.Millisecond
)

// fileWaiter polls for a file that a live subprocess has not finished writing
// yet. The retry budget is small and fixed: it bridges encoder startup
// latency, nothing more. The timer is injectable so tests control timing
// without real sleeps.
type fileWaiter struct {
	fs       afero.Fs
	attempts uint
	interval time.Duration
	timer    retry.Timer
}

func (w *fileWaiter) wait(ctx context.Context, path string) error {
	opts := []retry.Option{
		retry.Attempts(w.attempts),
		retry.Delay(w.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
	if w.timer != nil {
		opts = append(opts, retry.WithTimer(w.timer))
	}

	return retry.Do(func() error {
		_, err := w.fs.Stat(path)
		return err
	}, opts...)
}
