package models

import "time"

// PlaybackProgress records how far into a scene a viewer got.
type PlaybackProgress struct {
	SceneID        string    `json:"sceneId"`
	Position       float64   `json:"position"`
	Duration       float64   `json:"duration"`
	PercentWatched float64   `json:"percentWatched"`
	Watched        bool      `json:"watched"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ProgressUpdate is the payload for recording playback position.
type ProgressUpdate struct {
	SceneID  string  `json:"sceneId"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
}
