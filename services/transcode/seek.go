package transcode

import (
	"fmt"
	"log"

	"scenestream/models"
)

// HandleSeek realizes a seek as replacement: the old session is killed (its
// id becomes unresolvable immediately) and a brand-new session is created and
// started at the requested offset. Encoders cannot resume mid-segment-
// sequence at an arbitrary time, so every seek restarts segment numbering in
// a fresh session rather than mutating the old one.
func (m *Manager) HandleSeek(oldSessionID string, newStartOffset float64) (*Session, error) {
	old, err := m.Get(oldSessionID)
	if err != nil {
		return nil, err
	}

	scene := models.Scene{
		ID:              old.SceneID,
		Path:            old.SourcePath,
		Width:           old.SourceWidth,
		Height:          old.SourceHeight,
		DurationSeconds: old.Duration,
	}

	if err := m.Kill(oldSessionID); err != nil && err != ErrSessionNotFound {
		log.Printf("[transcode] seek: kill of session %s failed: %v", oldSessionID, err)
	}

	session, created, err := m.GetOrCreate(scene, newStartOffset)
	if err != nil {
		return nil, fmt.Errorf("create seek session: %w", err)
	}
	if !created {
		// A concurrent request already opened a session at this offset;
		// reuse it rather than racing a duplicate encoder at the same spot.
		return session, nil
	}

	if err := m.StartTranscoding(session); err != nil {
		if killErr := m.Kill(session.ID); killErr != nil && killErr != ErrSessionNotFound {
			log.Printf("[transcode] seek: cleanup of failed session %s: %v", session.ID, killErr)
		}
		return nil, err
	}

	log.Printf("[transcode] seek: session %s replaced by %s at offset %.2fs", oldSessionID, session.ID, newStartOffset)
	return session, nil
}
