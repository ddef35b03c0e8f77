package transcode

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// cleanSegmentPath enforces the security boundary for HLS requests: only
// .m3u8 and .ts files, no absolute paths, no parent-directory traversal.
// This is checked before any session lookup so an escape attempt is rejected
// regardless of session state.
func cleanSegmentPath(relPath string) (string, error) {
	if relPath == "" || strings.HasPrefix(relPath, "/") || strings.Contains(relPath, "\\") {
		return "", ErrInvalidSegmentPath
	}

	switch path.Ext(relPath) {
	case ".m3u8", ".ts":
	default:
		return "", ErrInvalidSegmentPath
	}

	for _, part := range strings.Split(relPath, "/") {
		if part == "" || part == "." || part == ".." {
			return "", ErrInvalidSegmentPath
		}
	}

	return path.Clean(relPath), nil
}

// Open resolves an HLS file under a session's output directory and returns
// it ready to stream. Playlists that a subprocess is still writing are
// awaited with the bounded retry budget; everything else is a plain open.
// Every request, successful or not, refreshes the session's last-access time.
func (m *Manager) Open(ctx context.Context, sessionID, relPath string) (afero.File, os.FileInfo, error) {
	clean, err := cleanSegmentPath(relPath)
	if err != nil {
		return nil, nil, err
	}

	session, err := m.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	session.Touch()

	full := filepath.Join(session.OutputDir, filepath.FromSlash(clean))
	if !strings.HasPrefix(full, filepath.Clean(session.OutputDir)+string(filepath.Separator)) {
		return nil, nil, ErrInvalidSegmentPath
	}

	if strings.HasSuffix(clean, ".m3u8") {
		// The encoder may not have produced its first playlist yet; bridge
		// the startup race instead of making the player poll 404s.
		if err := m.waiter.wait(ctx, full); err != nil {
			return nil, nil, err
		}
	}

	f, err := m.fs.Open(full)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// ContentTypeFor maps an HLS filename to its media type.
func ContentTypeFor(name string) string {
	if strings.HasSuffix(name, ".m3u8") {
		return "application/vnd.apple.mpegurl"
	}
	return "video/mp2t"
}
