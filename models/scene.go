package models

import "time"

// Scene describes one playable item in the media library.
type Scene struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Path            string    `json:"path"`
	Container       string    `json:"container"`
	DurationSeconds float64   `json:"durationSeconds"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	VideoCodec      string    `json:"videoCodec"`
	AudioCodec      string    `json:"audioCodec"`
	SizeBytes       int64     `json:"sizeBytes"`
	AddedAt         time.Time `json:"addedAt"`
}
