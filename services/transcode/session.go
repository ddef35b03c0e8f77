package transcode

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned for session ids that are unknown or
	// already terminated. Terminated ids never resolve again.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSegmentPath is returned for segment requests that fail the
	// extension whitelist or attempt to escape the session directory.
	ErrInvalidSegmentPath = errors.New("invalid segment path")

	// ErrNoTiersStarted is returned when no quality tier subprocess could be
	// started for a session.
	ErrNoTiersStarted = errors.New("no quality tiers could be started")
)

// SessionStatus is the closed set of states a session moves through.
type SessionStatus string

const (
	StatusStarting    SessionStatus = "starting"
	StatusTranscoding SessionStatus = "transcoding"
	StatusTerminated  SessionStatus = "terminated"
)

// Session represents one in-progress on-demand transcode. A seek never
// mutates a session in place; it terminates the old session and creates a
// new one at the requested offset.
type Session struct {
	ID           string
	SceneID      string
	SourcePath   string
	SourceWidth  int
	SourceHeight int
	Duration     float64
	StartOffset  float64
	OutputDir    string
	CreatedAt    time.Time

	mu         sync.RWMutex
	status     SessionStatus
	lastAccess time.Time
	processes  map[string]Process // quality tier label -> live subprocess
}

func newSession(id, sceneID, sourcePath string, sourceWidth, sourceHeight int, duration, startOffset float64, outputDir string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		SceneID:      sceneID,
		SourcePath:   sourcePath,
		SourceWidth:  sourceWidth,
		SourceHeight: sourceHeight,
		Duration:     duration,
		StartOffset:  startOffset,
		OutputDir:    outputDir,
		CreatedAt:    now,
		status:       StatusStarting,
		lastAccess:   now,
		processes:    make(map[string]Process),
	}
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(st SessionStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Touch bumps the last-access timestamp. It never moves the timestamp
// backwards.
func (s *Session) Touch() {
	now := time.Now()
	s.mu.Lock()
	if now.After(s.lastAccess) {
		s.lastAccess = now
	}
	s.mu.Unlock()
}

// LastAccess reports when the session was last touched by a segment or
// playlist request or an explicit playback ping.
func (s *Session) LastAccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccess
}

// attachProcess records the live subprocess for a quality tier. At most one
// process exists per tier.
func (s *Session) attachProcess(label string, p Process) {
	s.mu.Lock()
	s.processes[label] = p
	s.mu.Unlock()
}

// detachProcess removes a tier's process, typically after an abnormal exit.
func (s *Session) detachProcess(label string) {
	s.mu.Lock()
	delete(s.processes, label)
	s.mu.Unlock()
}

// Tiers returns the labels of quality tiers with a live process, sorted for
// stable playlist output.
func (s *Session) Tiers() []string {
	s.mu.RLock()
	labels := make([]string, 0, len(s.processes))
	for label := range s.processes {
		labels = append(labels, label)
	}
	s.mu.RUnlock()
	sort.Strings(labels)
	return labels
}

// processSnapshot copies the tier map so callers can iterate without holding
// the session lock.
func (s *Session) processSnapshot() map[string]Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]Process, len(s.processes))
	for label, p := range s.processes {
		snapshot[label] = p
	}
	return snapshot
}
