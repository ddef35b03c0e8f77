package transcode

import (
	"fmt"
	"log"
	"math"
	"path/filepath"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"scenestream/models"
)

// Config carries the knobs for a Manager. Zero values fall back to working
// defaults; tests override the launcher, filesystem, and timing hooks.
type Config struct {
	BaseDir        string
	FFmpegPath     string
	SegmentSeconds int
	IdleTimeout    time.Duration
	ReapInterval   time.Duration
	Ladder         []Tier
	Launcher       Launcher
	Fs             afero.Fs
	WaitAttempts   uint
	WaitInterval   time.Duration
	WaitTimer      retry.Timer
	// MonitorInterval controls how often tier subprocesses are checked for
	// abnormal exits.
	MonitorInterval time.Duration
}

// Manager owns every transcoding session: creation, lookup, access tracking,
// teardown, and the idle reaper. It is the single shared mutable structure in
// the pipeline; the filesystem tree under each session's output directory is
// exclusively owned by that session.
type Manager struct {
	baseDir         string
	segmentSeconds  int
	idleTimeout     time.Duration
	reapInterval    time.Duration
	ladder          []Tier
	launch          Launcher
	fs              afero.Fs
	waiter          *fileWaiter
	monitorInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
	// byRequest dedupes racing creates for the same (scene, offset):
	// first-writer-wins, the loser gets the in-progress session.
	byRequest map[string]string

	reapDone     chan struct{}
	shutdownOnce sync.Once
}

// NewManager creates a session manager, sweeps orphaned directories left by a
// previous run, and starts the idle reaper.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("segment base directory not configured")
	}
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = 4
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = 30 * time.Second
	}
	if len(cfg.Ladder) == 0 {
		cfg.Ladder = DefaultLadder()
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Launcher == nil {
		if cfg.FFmpegPath == "" {
			cfg.FFmpegPath = "ffmpeg"
		}
		cfg.Launcher = NewFFmpegLauncher(cfg.FFmpegPath)
	}
	if cfg.WaitAttempts == 0 {
		cfg.WaitAttempts = defaultWaitAttempts
	}
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = defaultWaitInterval
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = time.Second
	}

	if err := cfg.Fs.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create segment base directory: %w", err)
	}

	m := &Manager{
		baseDir:        cfg.BaseDir,
		segmentSeconds: cfg.SegmentSeconds,
		idleTimeout:    cfg.IdleTimeout,
		reapInterval:   cfg.ReapInterval,
		ladder:         cfg.Ladder,
		launch:         cfg.Launcher,
		fs:             cfg.Fs,
		waiter: &fileWaiter{
			fs:       cfg.Fs,
			attempts: cfg.WaitAttempts,
			interval: cfg.WaitInterval,
			timer:    cfg.WaitTimer,
		},
		monitorInterval: cfg.MonitorInterval,
		sessions:        make(map[string]*Session),
		byRequest:       make(map[string]string),
		reapDone:        make(chan struct{}),
	}

	m.sweepOrphans()
	go m.reapLoop()

	return m, nil
}

func requestKey(sceneID string, startOffset float64) string {
	return fmt.Sprintf("%s@%.3f", sceneID, startOffset)
}

// GetOrCreate returns a session transcoding the scene from the given offset.
// Racing creates for the same (scene, offset) are resolved first-writer-wins;
// the second caller receives the in-progress session. The returned bool is
// true when a new session was registered.
func (m *Manager) GetOrCreate(scene models.Scene, startOffset float64) (*Session, bool, error) {
	if math.IsNaN(startOffset) || math.IsInf(startOffset, 0) || startOffset < 0 {
		startOffset = 0
	}
	if scene.DurationSeconds > 0 && startOffset >= scene.DurationSeconds {
		startOffset = math.Max(scene.DurationSeconds-float64(m.segmentSeconds), 0)
	}

	if _, err := m.fs.Stat(scene.Path); err != nil {
		return nil, false, fmt.Errorf("source file inaccessible: %w", err)
	}

	key := requestKey(scene.ID, startOffset)

	m.mu.RLock()
	if id, ok := m.byRequest[key]; ok {
		if existing, ok := m.sessions[id]; ok {
			m.mu.RUnlock()
			existing.Touch()
			return existing, false, nil
		}
	}
	m.mu.RUnlock()

	// Allocate identity and output directory before the session becomes
	// visible; concurrent callers never observe a half-initialized entry.
	id := uuid.NewString()
	outputDir := m.sessionDir(id)
	if err := m.fs.MkdirAll(outputDir, 0o755); err != nil {
		return nil, false, fmt.Errorf("create session directory: %w", err)
	}

	session := newSession(id, scene.ID, scene.Path, scene.Width, scene.Height, scene.DurationSeconds, startOffset, outputDir)

	m.mu.Lock()
	if winnerID, ok := m.byRequest[key]; ok {
		if winner, ok := m.sessions[winnerID]; ok {
			m.mu.Unlock()
			// Lost the race: discard our directory, hand back the winner.
			if err := m.fs.RemoveAll(outputDir); err != nil {
				log.Printf("[transcode] failed to remove losing session directory %q: %v", outputDir, err)
			}
			winner.Touch()
			return winner, false, nil
		}
	}
	m.sessions[id] = session
	m.byRequest[key] = id
	m.mu.Unlock()

	log.Printf("[transcode] created session %s for scene %s (offset=%.2fs, source=%dp)",
		id, scene.ID, startOffset, scene.Height)
	return session, true, nil
}

func (m *Manager) sessionDir(id string) string {
	return filepath.Join(m.baseDir, id)
}

// Get returns the session or ErrSessionNotFound. Terminated ids never
// resolve.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Touch bumps a session's last-access time. A missing session is reported,
// not treated as fatal.
func (m *Manager) Touch(id string) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}
	session.Touch()
	return nil
}

// Kill terminates a session: its subprocesses are killed at the process-group
// level, its output directory is removed best-effort, and its id becomes
// unresolvable the moment this call takes the entry out of the registry.
// Concurrent kill and reap of the same id are cooperative: exactly one caller
// performs the teardown, the other gets ErrSessionNotFound.
func (m *Manager) Kill(id string) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.byRequest, requestKey(session.SceneID, session.StartOffset))
	m.mu.Unlock()

	m.teardown(session)
	return nil
}

// teardown releases a session's subprocesses and output directory. The entry
// has already been removed from the registry, so only one caller ever gets
// here for a given session.
func (m *Manager) teardown(session *Session) {
	session.setStatus(StatusTerminated)

	for label, p := range session.processSnapshot() {
		if err := p.Kill(); err != nil {
			log.Printf("[transcode] session %s: failed to kill %s process: %v", session.ID, label, err)
		}
		session.detachProcess(label)
	}

	// Best-effort removal with a short retry; segment files may still be
	// closing out underneath us.
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		err := m.fs.RemoveAll(session.OutputDir)
		if err == nil {
			break
		}
		if i < maxRetries-1 {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		log.Printf("[transcode] failed to remove session directory %q after %d attempts: %v",
			session.OutputDir, maxRetries, err)
	}

	log.Printf("[transcode] terminated session %s (scene=%s, lived=%v)",
		session.ID, session.SceneID, time.Since(session.CreatedAt).Round(time.Second))
}

// Sessions returns a snapshot of all live sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// reapLoop periodically retires sessions idle past the timeout.
func (m *Manager) reapLoop() {
	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.ReapIdle()
		case <-m.reapDone:
			log.Printf("[transcode] reaper shutting down")
			return
		}
	}
}

// ReapIdle tears down every session whose last access is older than the idle
// timeout. Safe to race against explicit kills of the same ids.
func (m *Manager) ReapIdle() {
	now := time.Now()
	var stale []string

	m.mu.RLock()
	for id, session := range m.sessions {
		if now.Sub(session.LastAccess()) > m.idleTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		log.Printf("[transcode] reaping idle session %s", id)
		if err := m.Kill(id); err != nil && err != ErrSessionNotFound {
			log.Printf("[transcode] failed to reap session %s: %v", id, err)
		}
	}
}

// Shutdown stops the reaper and kills every live session so no encoder
// processes outlive the server.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.reapDone)
	})

	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	log.Printf("[transcode] shutting down, killing %d active session(s)", len(ids))
	for _, id := range ids {
		if err := m.Kill(id); err != nil && err != ErrSessionNotFound {
			log.Printf("[transcode] shutdown kill of session %s failed: %v", id, err)
		}
	}
}

// sweepOrphans removes leftover session directories from previous runs. The
// registry is intentionally not durable, so anything on disk at startup is
// garbage.
func (m *Manager) sweepOrphans() {
	entries, err := afero.ReadDir(m.fs, m.baseDir)
	if err != nil {
		log.Printf("[transcode] failed to read segment base directory for sweep: %v", err)
		return
	}

	cleaned := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.baseDir, entry.Name())
		if err := m.fs.RemoveAll(dir); err != nil {
			log.Printf("[transcode] failed to remove orphaned directory %q: %v", dir, err)
		} else {
			cleaned++
		}
	}

	if cleaned > 0 {
		log.Printf("[transcode] removed %d orphaned session director(ies) from previous runs", cleaned)
	}
}
