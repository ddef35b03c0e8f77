package history

import (
	"errors"
	"testing"

	"scenestream/models"
)

func TestNewServiceRequiresStorageDir(t *testing.T) {
	if _, err := NewService(""); !errors.Is(err, ErrStorageDirRequired) {
		t.Errorf("expected ErrStorageDirRequired, got %v", err)
	}
}

func TestUpdateProgressValidation(t *testing.T) {
	svc, err := NewService(t.TempDir())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if _, err := svc.UpdateProgress(models.ProgressUpdate{Position: 1, Duration: 10}); !errors.Is(err, ErrSceneIDRequired) {
		t.Errorf("expected ErrSceneIDRequired, got %v", err)
	}
	if _, err := svc.UpdateProgress(models.ProgressUpdate{SceneID: "s1", Position: 1, Duration: 0}); err == nil {
		t.Error("expected error for zero duration")
	}
	if _, err := svc.UpdateProgress(models.ProgressUpdate{SceneID: "s1", Position: -5, Duration: 10}); err == nil {
		t.Error("expected error for negative position")
	}
}

func TestUpdateProgressMarksWatched(t *testing.T) {
	svc, err := NewService(t.TempDir())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	entry, err := svc.UpdateProgress(models.ProgressUpdate{SceneID: "s1", Position: 450, Duration: 600})
	if err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if entry.Watched {
		t.Error("75% should not be marked watched")
	}
	if entry.PercentWatched != 75 {
		t.Errorf("percent = %v, want 75", entry.PercentWatched)
	}

	entry, err = svc.UpdateProgress(models.ProgressUpdate{SceneID: "s1", Position: 570, Duration: 600})
	if err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if !entry.Watched {
		t.Error("95% should be marked watched")
	}

	// Rewinding never clears the watched flag.
	entry, err = svc.UpdateProgress(models.ProgressUpdate{SceneID: "s1", Position: 10, Duration: 600})
	if err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if !entry.Watched {
		t.Error("rewind cleared the watched flag")
	}
}

func TestProgressPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	svc, err := NewService(dir)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	if _, err := svc.UpdateProgress(models.ProgressUpdate{SceneID: "s1", Position: 120, Duration: 600}); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	reopened, err := NewService(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	entry, err := reopened.GetProgress("s1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if entry == nil || entry.Position != 120 {
		t.Errorf("expected persisted position 120, got %+v", entry)
	}
}

func TestListProgressOrdering(t *testing.T) {
	svc, err := NewService(t.TempDir())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	for _, id := range []string{"first", "second", "third"} {
		if _, err := svc.UpdateProgress(models.ProgressUpdate{SceneID: id, Position: 10, Duration: 100}); err != nil {
			t.Fatalf("UpdateProgress failed: %v", err)
		}
	}

	items := svc.ListProgress()
	if len(items) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].UpdatedAt.After(items[i-1].UpdatedAt) {
			t.Error("entries not sorted most recent first")
		}
	}
}

func TestDeleteProgress(t *testing.T) {
	svc, err := NewService(t.TempDir())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if _, err := svc.UpdateProgress(models.ProgressUpdate{SceneID: "s1", Position: 10, Duration: 100}); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := svc.DeleteProgress("s1"); err != nil {
		t.Fatalf("DeleteProgress failed: %v", err)
	}
	entry, err := svc.GetProgress("s1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if entry != nil {
		t.Errorf("expected nil after delete, got %+v", entry)
	}

	// Deleting a missing entry is a no-op.
	if err := svc.DeleteProgress("s1"); err != nil {
		t.Errorf("second delete failed: %v", err)
	}
}
