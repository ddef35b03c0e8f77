package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"scenestream/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(r *mux.Router, playbackHandler *handlers.PlaybackHandler, progressHandler *handlers.ProgressHandler) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	// Scene catalog
	api.HandleFunc("/scenes", playbackHandler.ListScenes).Methods(http.MethodGet)
	api.HandleFunc("/scenes/scan", playbackHandler.ScanScenes).Methods(http.MethodPost)
	api.HandleFunc("/scenes/{sceneId}", playbackHandler.GetScene).Methods(http.MethodGet)

	// Playback
	api.HandleFunc("/play/{sceneId}", playbackHandler.Play).Methods(http.MethodPost)
	api.HandleFunc("/stream/{sceneId}", playbackHandler.StreamScene).Methods(http.MethodGet)
	api.HandleFunc("/seek", playbackHandler.Seek).Methods(http.MethodPost)

	// HLS delivery
	api.HandleFunc("/playlist/{sessionId}/master.m3u8", playbackHandler.ServeMasterPlaylist).Methods(http.MethodGet)
	api.HandleFunc("/playlist/{sessionId}/{quality}/{file}", playbackHandler.ServeSegment).Methods(http.MethodGet)

	// Session lifecycle
	api.HandleFunc("/session/{sessionId}/status", playbackHandler.SessionStatus).Methods(http.MethodGet)
	api.HandleFunc("/session/{sessionId}/keepalive", playbackHandler.KeepAlive).Methods(http.MethodPost)
	api.HandleFunc("/session/{sessionId}", playbackHandler.StopSession).Methods(http.MethodDelete)

	// Watch progress
	api.HandleFunc("/progress", progressHandler.ListProgress).Methods(http.MethodGet)
	api.HandleFunc("/progress", progressHandler.UpdateProgress).Methods(http.MethodPost)
	api.HandleFunc("/progress/{sceneId}", progressHandler.GetProgress).Methods(http.MethodGet)
	api.HandleFunc("/progress/{sceneId}", progressHandler.DeleteProgress).Methods(http.MethodDelete)

	// Health
	api.HandleFunc("/health", playbackHandler.Health).Methods(http.MethodGet)
}
