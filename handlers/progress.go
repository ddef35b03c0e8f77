package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"scenestream/models"
	"scenestream/services/history"
)

// ProgressHandler exposes watch-progress tracking so players can resume
// scenes where they left off.
type ProgressHandler struct {
	history *history.Service
}

func NewProgressHandler(svc *history.Service) *ProgressHandler {
	return &ProgressHandler{history: svc}
}

// UpdateProgress records the player's current position in a scene.
func (h *ProgressHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var update models.ProgressUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entry, err := h.history.UpdateProgress(update)
	if errors.Is(err, history.ErrSceneIDRequired) {
		http.Error(w, "sceneId is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, entry)
}

// ListProgress returns every scene with recorded progress, most recent first.
func (h *ProgressHandler) ListProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.history.ListProgress())
}

// GetProgress returns the saved position for one scene.
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	entry, err := h.history.GetProgress(mux.Vars(r)["sceneId"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if entry == nil {
		http.Error(w, "No progress recorded", http.StatusNotFound)
		return
	}
	writeJSON(w, entry)
}

// DeleteProgress clears the saved position for one scene.
func (h *ProgressHandler) DeleteProgress(w http.ResponseWriter, r *http.Request) {
	if err := h.history.DeleteProgress(mux.Vars(r)["sceneId"]); err != nil {
		log.Printf("[progress] delete failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
