package transcode

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestCleanSegmentPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"master playlist", "master.m3u8", false},
		{"variant playlist", "720p/index.m3u8", false},
		{"segment", "720p/seg00042.ts", false},
		{"empty", "", true},
		{"absolute", "/etc/passwd.ts", true},
		{"traversal", "../other/seg00000.ts", true},
		{"embedded traversal", "720p/../../escape.ts", true},
		{"dot element", "720p/./index.m3u8", true},
		{"backslash", "720p\\seg00000.ts", true},
		{"wrong extension", "720p/notes.txt", true},
		{"no extension", "720p/index", true},
		{"double slash", "720p//seg.ts", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cleanSegmentPath(tt.path)
			if tt.wantErr && !errors.Is(err, ErrInvalidSegmentPath) {
				t.Errorf("cleanSegmentPath(%q) = %v, want ErrInvalidSegmentPath", tt.path, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("cleanSegmentPath(%q) failed: %v", tt.path, err)
			}
		})
	}
}

func TestOpenValidatesPathBeforeSessionLookup(t *testing.T) {
	m, _ := newTestManager(t, nil)

	// An invalid path must be rejected as invalid even when the session id is
	// unknown; escape attempts never depend on session state.
	_, _, err := m.Open(context.Background(), "no-such-session", "../../etc/passwd.ts")
	if !errors.Is(err, ErrInvalidSegmentPath) {
		t.Errorf("expected ErrInvalidSegmentPath, got %v", err)
	}
}

func TestOpenUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, nil)

	_, _, err := m.Open(context.Background(), "no-such-session", "master.m3u8")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestOpenServesSegment(t *testing.T) {
	m, _ := newTestManager(t, nil)
	s := startedSession(t, m, testSceneFixture(), 0)

	segPath := filepath.Join(s.OutputDir, "720p", "seg00000.ts")
	if err := afero.WriteFile(m.fs, segPath, []byte("segment-bytes"), 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}

	f, info, err := m.Open(context.Background(), s.ID, "720p/seg00000.ts")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	if string(data) != "segment-bytes" {
		t.Errorf("segment content = %q", data)
	}
	if info.Size() != int64(len("segment-bytes")) {
		t.Errorf("size = %d, want %d", info.Size(), len("segment-bytes"))
	}
}

func TestOpenRefreshesLastAccess(t *testing.T) {
	m, _ := newTestManager(t, nil)
	s := startedSession(t, m, testSceneFixture(), 0)

	before := s.LastAccess()
	time.Sleep(2 * time.Millisecond)

	f, _, err := m.Open(context.Background(), s.ID, "master.m3u8")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	f.Close()

	if !s.LastAccess().After(before) {
		t.Error("Open did not refresh last access")
	}
}

func TestOpenWaitsForPlaylist(t *testing.T) {
	m, _ := newTestManager(t, func(cfg *Config) {
		cfg.WaitAttempts = 5
	})
	s, _, err := m.GetOrCreate(testSceneFixture(), 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	// The variant playlist is not on disk yet; the instant timer exhausts the
	// retry budget immediately, so a missing playlist errors instead of
	// hanging.
	_, _, err = m.Open(context.Background(), s.ID, "720p/index.m3u8")
	if err == nil {
		t.Fatal("expected error for never-written playlist")
	}

	// Once the encoder writes it, the same request succeeds.
	playlist := filepath.Join(s.OutputDir, "720p", "index.m3u8")
	if err := afero.WriteFile(m.fs, playlist, []byte("#EXTM3U\n"), 0o644); err != nil {
		t.Fatalf("write playlist: %v", err)
	}
	f, _, err := m.Open(context.Background(), s.ID, "720p/index.m3u8")
	if err != nil {
		t.Fatalf("Open after write failed: %v", err)
	}
	f.Close()
}

func TestContentTypeFor(t *testing.T) {
	if got := ContentTypeFor("master.m3u8"); got != "application/vnd.apple.mpegurl" {
		t.Errorf("playlist content type = %q", got)
	}
	if got := ContentTypeFor("seg00001.ts"); got != "video/mp2t" {
		t.Errorf("segment content type = %q", got)
	}
}
