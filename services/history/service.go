package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"scenestream/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrSceneIDRequired    = errors.New("scene id is required")
)

// Progress past this share of a scene's duration marks it watched.
const watchedThresholdPercent = 90

// Service persists per-scene playback progress to a JSON file.
type Service struct {
	path string

	mu       sync.RWMutex
	progress map[string]models.PlaybackProgress // scene id -> progress
}

// NewService loads (or initializes) the progress file under storageDir.
func NewService(storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	svc := &Service{
		path:     filepath.Join(storageDir, "progress.json"),
		progress: make(map[string]models.PlaybackProgress),
	}
	if err := svc.load(); err != nil {
		return nil, err
	}
	return svc, nil
}

// UpdateProgress records the current playback position for a scene. Crossing
// the watched threshold sets the watched flag; it is never cleared by a later
// rewind.
func (s *Service) UpdateProgress(update models.ProgressUpdate) (models.PlaybackProgress, error) {
	sceneID := strings.TrimSpace(update.SceneID)
	if sceneID == "" {
		return models.PlaybackProgress{}, ErrSceneIDRequired
	}
	if update.Duration <= 0 {
		return models.PlaybackProgress{}, fmt.Errorf("duration must be positive")
	}
	if update.Position < 0 {
		return models.PlaybackProgress{}, fmt.Errorf("position cannot be negative")
	}

	percentWatched := (update.Position / update.Duration) * 100
	if percentWatched > 100 {
		percentWatched = 100
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := models.PlaybackProgress{
		SceneID:        sceneID,
		Position:       update.Position,
		Duration:       update.Duration,
		PercentWatched: percentWatched,
		Watched:        percentWatched >= watchedThresholdPercent,
		UpdatedAt:      time.Now().UTC(),
	}
	if prev, ok := s.progress[sceneID]; ok && prev.Watched {
		entry.Watched = true
	}
	s.progress[sceneID] = entry

	if err := s.saveLocked(); err != nil {
		return models.PlaybackProgress{}, err
	}
	return entry, nil
}

// GetProgress returns the stored progress for a scene, or nil when none
// exists.
func (s *Service) GetProgress(sceneID string) (*models.PlaybackProgress, error) {
	sceneID = strings.TrimSpace(sceneID)
	if sceneID == "" {
		return nil, ErrSceneIDRequired
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.progress[sceneID]; ok {
		return &entry, nil
	}
	return nil, nil
}

// ListProgress returns all progress entries, most recently updated first.
func (s *Service) ListProgress() []models.PlaybackProgress {
	s.mu.RLock()
	items := make([]models.PlaybackProgress, 0, len(s.progress))
	for _, entry := range s.progress {
		items = append(items, entry)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].SceneID < items[j].SceneID
		}
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return items
}

// DeleteProgress removes a scene's progress entry.
func (s *Service) DeleteProgress(sceneID string) error {
	sceneID = strings.TrimSpace(sceneID)
	if sceneID == "" {
		return ErrSceneIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.progress[sceneID]; !ok {
		return nil
	}
	delete(s.progress, sceneID)
	return s.saveLocked()
}

func (s *Service) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open progress: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read progress: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var decoded map[string]models.PlaybackProgress
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("decode progress: %w", err)
	}

	s.progress = make(map[string]models.PlaybackProgress, len(decoded))
	for sceneID, entry := range decoded {
		sceneID = strings.TrimSpace(sceneID)
		if sceneID == "" {
			continue
		}
		s.progress[sceneID] = entry
	}
	return nil
}

func (s *Service) saveLocked() error {
	data, err := json.MarshalIndent(s.progress, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	return nil
}
