package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"

	"scenestream/models"
	"scenestream/services/library"
	"scenestream/services/transcode"
)

// SceneCatalog is the slice of the library service the playback surface
// needs.
type SceneCatalog interface {
	List(ctx context.Context) ([]models.Scene, error)
	Get(ctx context.Context, id string) (models.Scene, error)
	Scan(ctx context.Context) (int, error)
}

// PlaybackHandler exposes the playback pipeline over HTTP: scene catalog
// queries, direct play, HLS session creation, seeking, and segment delivery.
type PlaybackHandler struct {
	library    SceneCatalog
	transcoder *transcode.Manager
}

// NewPlaybackHandler creates a handler over the scene catalog and the
// transcoding session manager.
func NewPlaybackHandler(lib SceneCatalog, tm *transcode.Manager) *PlaybackHandler {
	return &PlaybackHandler{
		library:    lib,
		transcoder: tm,
	}
}

type playResponse struct {
	Mode        string `json:"mode"` // "direct" or "hls"
	URL         string `json:"url,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	PlaylistURL string `json:"playlistUrl,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Play starts playback of a scene. Sources the browser can decode natively
// are offered as direct file streams; everything else gets an HLS session
// transcoding from the requested start offset.
func (h *PlaybackHandler) Play(w http.ResponseWriter, r *http.Request) {
	sceneID := mux.Vars(r)["sceneId"]

	scene, err := h.library.Get(r.Context(), sceneID)
	if errors.Is(err, library.ErrSceneNotFound) {
		http.Error(w, "Scene not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[playback] scene lookup failed: %v", err)
		http.Error(w, "Failed to look up scene", http.StatusInternalServerError)
		return
	}

	startOffset := 0.0
	if raw := r.URL.Query().Get("start"); raw != "" {
		startOffset, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, "Invalid start offset", http.StatusBadRequest)
			return
		}
	}

	if r.URL.Query().Get("direct") == "1" && startOffset == 0 &&
		library.DirectPlayable(scene.Container, scene.VideoCodec, scene.AudioCodec) {
		writeJSON(w, playResponse{
			Mode: "direct",
			URL:  "/api/stream/" + scene.ID,
		})
		return
	}

	session, created, err := h.transcoder.GetOrCreate(scene, startOffset)
	if err != nil {
		log.Printf("[playback] session create failed for scene %s: %v", sceneID, err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	if created {
		if err := h.transcoder.StartTranscoding(session); err != nil {
			log.Printf("[playback] transcoding start failed for session %s: %v", session.ID, err)
			if killErr := h.transcoder.Kill(session.ID); killErr != nil && !errors.Is(killErr, transcode.ErrSessionNotFound) {
				log.Printf("[playback] cleanup of failed session %s: %v", session.ID, killErr)
			}
			http.Error(w, "Failed to start transcoding", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, playResponse{
		Mode:        "hls",
		SessionID:   session.ID,
		PlaylistURL: "/api/playlist/" + session.ID + "/" + transcode.MasterPlaylistName,
		Status:      string(session.Status()),
	})
}

// StreamScene serves the raw scene file for direct play. Range requests are
// handled by the standard library.
func (h *PlaybackHandler) StreamScene(w http.ResponseWriter, r *http.Request) {
	sceneID := mux.Vars(r)["sceneId"]

	scene, err := h.library.Get(r.Context(), sceneID)
	if errors.Is(err, library.ErrSceneNotFound) {
		http.Error(w, "Scene not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to look up scene", http.StatusInternalServerError)
		return
	}

	if mtype, err := mimetype.DetectFile(scene.Path); err == nil {
		w.Header().Set("Content-Type", mtype.String())
	}
	http.ServeFile(w, r, scene.Path)
}

type seekRequest struct {
	SessionID string  `json:"sessionId"`
	StartTime float64 `json:"startTime"`
}

// Seek replaces a session with a new one at the requested offset. The old
// session id stops resolving immediately; the player must switch to the new
// playlist URL.
func (h *PlaybackHandler) Seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	session, err := h.transcoder.HandleSeek(req.SessionID, req.StartTime)
	if errors.Is(err, transcode.ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[playback] seek failed for session %s: %v", req.SessionID, err)
		http.Error(w, "Failed to seek", http.StatusInternalServerError)
		return
	}

	writeJSON(w, playResponse{
		Mode:        "hls",
		SessionID:   session.ID,
		PlaylistURL: "/api/playlist/" + session.ID + "/" + transcode.MasterPlaylistName,
		Status:      string(session.Status()),
	})
}

// ServeMasterPlaylist serves a session's top-level playlist.
func (h *PlaybackHandler) ServeMasterPlaylist(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	h.serveSessionFile(w, r, sessionID, transcode.MasterPlaylistName)
}

// ServeSegment serves a variant playlist or media segment from a session's
// output tree.
func (h *PlaybackHandler) ServeSegment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	relPath := vars["quality"] + "/" + vars["file"]
	h.serveSessionFile(w, r, vars["sessionId"], relPath)
}

func (h *PlaybackHandler) serveSessionFile(w http.ResponseWriter, r *http.Request, sessionID, relPath string) {
	f, info, err := h.transcoder.Open(r.Context(), sessionID, relPath)
	switch {
	case err == nil:
	case errors.Is(err, transcode.ErrInvalidSegmentPath):
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	case errors.Is(err, transcode.ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	case errors.Is(err, os.ErrNotExist) || os.IsNotExist(err):
		http.Error(w, "File not found", http.StatusNotFound)
		return
	default:
		log.Printf("[playback] serve %s/%s failed: %v", sessionID, relPath, err)
		http.Error(w, "Failed to serve file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", transcode.ContentTypeFor(relPath))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

type sessionStatusResponse struct {
	SessionID   string    `json:"sessionId"`
	SceneID     string    `json:"sceneId"`
	Status      string    `json:"status"`
	StartOffset float64   `json:"startOffset"`
	Tiers       []string  `json:"tiers"`
	CreatedAt   time.Time `json:"createdAt"`
	LastAccess  time.Time `json:"lastAccess"`
}

// SessionStatus reports a session's lifecycle state and active tiers.
func (h *PlaybackHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	session, err := h.transcoder.Get(sessionID)
	if errors.Is(err, transcode.ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to look up session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, sessionStatusResponse{
		SessionID:   session.ID,
		SceneID:     session.SceneID,
		Status:      string(session.Status()),
		StartOffset: session.StartOffset,
		Tiers:       session.Tiers(),
		CreatedAt:   session.CreatedAt,
		LastAccess:  session.LastAccess(),
	})
}

// KeepAlive refreshes a session's last-access time so a paused player is not
// reaped.
func (h *PlaybackHandler) KeepAlive(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	if err := h.transcoder.Touch(sessionID); err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// StopSession terminates a session explicitly.
func (h *PlaybackHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	if err := h.transcoder.Kill(sessionID); err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListScenes returns the scene catalog.
func (h *PlaybackHandler) ListScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := h.library.List(r.Context())
	if err != nil {
		log.Printf("[playback] list scenes failed: %v", err)
		http.Error(w, "Failed to list scenes", http.StatusInternalServerError)
		return
	}
	writeJSON(w, scenes)
}

// GetScene returns one scene's metadata.
func (h *PlaybackHandler) GetScene(w http.ResponseWriter, r *http.Request) {
	scene, err := h.library.Get(r.Context(), mux.Vars(r)["sceneId"])
	if errors.Is(err, library.ErrSceneNotFound) {
		http.Error(w, "Scene not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to look up scene", http.StatusInternalServerError)
		return
	}
	writeJSON(w, scene)
}

// ScanScenes re-indexes the media directory.
func (h *PlaybackHandler) ScanScenes(w http.ResponseWriter, r *http.Request) {
	added, err := h.library.Scan(r.Context())
	if err != nil {
		log.Printf("[playback] scan failed: %v", err)
		http.Error(w, "Scan failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"added": added})
}

// Health is a liveness probe.
func (h *PlaybackHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":   "ok",
		"sessions": len(h.transcoder.Sessions()),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[playback] failed to encode response: %v", err)
	}
}
