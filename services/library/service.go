package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"scenestream/models"
)

var (
	// ErrSceneNotFound is returned when the requested scene is not in the catalog.
	ErrSceneNotFound = errors.New("scene not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS scenes (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	path             TEXT NOT NULL UNIQUE,
	container        TEXT NOT NULL DEFAULT '',
	duration_seconds REAL NOT NULL DEFAULT 0,
	width            INTEGER NOT NULL DEFAULT 0,
	height           INTEGER NOT NULL DEFAULT 0,
	video_codec      TEXT NOT NULL DEFAULT '',
	audio_codec      TEXT NOT NULL DEFAULT '',
	size_bytes       INTEGER NOT NULL DEFAULT 0,
	added_at         DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scenes_path ON scenes(path);
`

// Service manages the scene catalog: a sqlite-backed index of the media
// directory, populated by scanning for video files and probing them.
type Service struct {
	db          *sql.DB
	mediaDir    string
	ffprobePath string
}

// NewService opens (creating if necessary) the catalog database and ensures
// the schema exists.
func NewService(dbPath, mediaDir, ffprobePath string) (*Service, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Service{
		db:          db,
		mediaDir:    mediaDir,
		ffprobePath: ffprobePath,
	}, nil
}

// Close closes the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}

// Scan walks the media directory, probes any video file not yet in the
// catalog, and removes entries whose file has disappeared. It returns the
// number of scenes added.
func (s *Service) Scan(ctx context.Context) (int, error) {
	known, err := s.pathIndex(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool)
	added := 0

	err = filepath.WalkDir(s.mediaDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Printf("[library] Scan error at %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			// Skip hidden directories like .cache or .thumbnails.
			if strings.HasPrefix(d.Name(), ".") && path != s.mediaDir {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		seen[path] = true
		if known[path] {
			return nil
		}

		mtype, err := mimetype.DetectFile(path)
		if err != nil || !strings.HasPrefix(mtype.String(), "video/") {
			return nil
		}

		scene, err := s.probeAndBuild(ctx, path)
		if err != nil {
			log.Printf("[library] Skipping %s: %v", path, err)
			return nil
		}
		if err := s.insert(ctx, scene); err != nil {
			log.Printf("[library] Failed to index %s: %v", path, err)
			return nil
		}
		added++
		return nil
	})
	if err != nil {
		return added, fmt.Errorf("media directory walk: %w", err)
	}

	// Drop catalog entries for files that no longer exist on disk.
	removed := 0
	for path := range known {
		if seen[path] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, "DELETE FROM scenes WHERE path = ?", path); err != nil {
			log.Printf("[library] Failed to remove stale entry %s: %v", path, err)
			continue
		}
		removed++
	}

	log.Printf("[library] Scan complete: %d added, %d removed", added, removed)
	return added, nil
}

func (s *Service) probeAndBuild(ctx context.Context, path string) (models.Scene, error) {
	probed, err := probeFile(ctx, s.ffprobePath, path)
	if err != nil {
		return models.Scene{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return models.Scene{}, err
	}

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return models.Scene{
		ID:              uuid.New().String(),
		Title:           title,
		Path:            path,
		Container:       probed.Container,
		DurationSeconds: probed.Duration,
		Width:           probed.Width,
		Height:          probed.Height,
		VideoCodec:      probed.VideoCodec,
		AudioCodec:      probed.AudioCodec,
		SizeBytes:       info.Size(),
		AddedAt:         time.Now().UTC(),
	}, nil
}

func (s *Service) insert(ctx context.Context, scene models.Scene) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scenes (id, title, path, container, duration_seconds, width, height, video_codec, audio_codec, size_bytes, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scene.ID, scene.Title, scene.Path, scene.Container, scene.DurationSeconds,
		scene.Width, scene.Height, scene.VideoCodec, scene.AudioCodec,
		scene.SizeBytes, scene.AddedAt,
	)
	return err
}

func (s *Service) pathIndex(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM scenes")
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog paths: %w", err)
	}
	defer rows.Close()

	index := make(map[string]bool)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		index[path] = true
	}
	return index, rows.Err()
}

// List returns all cataloged scenes ordered by title.
func (s *Service) List(ctx context.Context) ([]models.Scene, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, path, container, duration_seconds, width, height, video_codec, audio_codec, size_bytes, added_at
		FROM scenes ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenes: %w", err)
	}
	defer rows.Close()

	scenes := []models.Scene{}
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

// Get returns the scene with the given id.
func (s *Service) Get(ctx context.Context, id string) (models.Scene, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, path, container, duration_seconds, width, height, video_codec, audio_codec, size_bytes, added_at
		FROM scenes WHERE id = ?`, id)

	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Scene{}, ErrSceneNotFound
	}
	if err != nil {
		return models.Scene{}, err
	}
	return scene, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScene(row rowScanner) (models.Scene, error) {
	var scene models.Scene
	err := row.Scan(
		&scene.ID, &scene.Title, &scene.Path, &scene.Container,
		&scene.DurationSeconds, &scene.Width, &scene.Height,
		&scene.VideoCodec, &scene.AudioCodec, &scene.SizeBytes, &scene.AddedAt,
	)
	return scene, err
}
