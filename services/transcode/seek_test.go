package transcode

import (
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"scenestream/services/transcode/mocks"
)

func TestHandleSeekReplacesSession(t *testing.T) {
	m, _ := newTestManager(t, nil)
	old := startedSession(t, m, testSceneFixture(), 0)

	replacement, err := m.HandleSeek(old.ID, 300)
	if err != nil {
		t.Fatalf("HandleSeek failed: %v", err)
	}

	if replacement.ID == old.ID {
		t.Error("seek must create a new session, not reuse the old id")
	}
	if replacement.StartOffset != 300 {
		t.Errorf("replacement offset = %v, want 300", replacement.StartOffset)
	}
	if replacement.SceneID != old.SceneID {
		t.Errorf("replacement scene = %s, want %s", replacement.SceneID, old.SceneID)
	}
	if replacement.OutputDir == old.OutputDir {
		t.Error("replacement must get a fresh output directory")
	}
	if replacement.Status() != StatusTranscoding {
		t.Errorf("replacement status = %s, want %s", replacement.Status(), StatusTranscoding)
	}

	// The old id is unresolvable the moment the seek completes.
	if _, err := m.Get(old.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("old session still resolvable after seek: %v", err)
	}
	if old.Status() != StatusTerminated {
		t.Errorf("old session status = %s, want %s", old.Status(), StatusTerminated)
	}
}

func TestHandleSeekUnknownSession(t *testing.T) {
	m, _ := newTestManager(t, nil)

	if _, err := m.HandleSeek("no-such-session", 100); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestHandleSeekCleansUpOnStartFailure(t *testing.T) {
	m, launcher := newTestManager(t, nil)
	old := startedSession(t, m, testSceneFixture(), 0)

	launcher.startErr = errors.New("exec format error")

	if _, err := m.HandleSeek(old.ID, 200); !errors.Is(err, ErrNoTiersStarted) {
		t.Errorf("expected ErrNoTiersStarted, got %v", err)
	}
	if sessions := m.Sessions(); len(sessions) != 0 {
		t.Errorf("failed seek left %d session(s) registered", len(sessions))
	}
}

func TestTeardownKillsEveryTierProcess(t *testing.T) {
	ctrl := gomock.NewController(t)
	m, _ := newTestManager(t, nil)

	s, _, err := m.GetOrCreate(testSceneFixture(), 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	for _, label := range []string{"480p", "720p"} {
		p := mocks.NewMockProcess(ctrl)
		p.EXPECT().Kill().Return(nil).Times(1)
		s.attachProcess(label, p)
	}

	if err := m.Kill(s.ID); err != nil {
		t.Fatalf("Kill failed: %v", err)
	}
	if len(s.Tiers()) != 0 {
		t.Errorf("processes still attached after teardown: %v", s.Tiers())
	}
}

func TestTeardownIgnoresKillErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	m, _ := newTestManager(t, nil)

	s, _, err := m.GetOrCreate(testSceneFixture(), 0)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}

	p := mocks.NewMockProcess(ctrl)
	p.EXPECT().Kill().Return(errors.New("no such process")).Times(1)
	s.attachProcess("720p", p)

	if err := m.Kill(s.ID); err != nil {
		t.Errorf("Kill should swallow process kill errors, got %v", err)
	}
}
