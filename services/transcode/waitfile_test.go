package transcode

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestWaitSucceedsWhenFileAppears(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := &fileWaiter{fs: fs, attempts: 500, interval: time.Millisecond}

	done := make(chan error, 1)
	go func() {
		done <- w.wait(context.Background(), "/hls/s/720p/index.m3u8")
	}()

	// Let a few attempts burn before the file shows up.
	time.Sleep(5 * time.Millisecond)
	if err := afero.WriteFile(fs, "/hls/s/720p/index.m3u8", []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("wait failed after file appeared: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait never returned")
	}
}

func TestWaitExhaustsAttempts(t *testing.T) {
	w := &fileWaiter{fs: afero.NewMemMapFs(), attempts: 3, interval: time.Millisecond, timer: instantTimer{}}

	if err := w.wait(context.Background(), "/never/appears.m3u8"); err == nil {
		t.Error("expected error when file never appears")
	}
}

func TestWaitHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &fileWaiter{fs: afero.NewMemMapFs(), attempts: 1000, interval: time.Hour}
	start := time.Now()
	err := w.wait(ctx, "/never/appears.m3u8")
	if err == nil {
		t.Error("expected error from cancelled context")
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled wait should return promptly")
	}
}
