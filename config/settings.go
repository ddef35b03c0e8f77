package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Library   LibrarySettings   `json:"library"`
	Transcode TranscodeSettings `json:"transcode"`
	Log       LogSettings       `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LibrarySettings points at the media directory and the catalog database.
type LibrarySettings struct {
	MediaDirectory string `json:"mediaDirectory"`
	DatabasePath   string `json:"databasePath"`
}

// TranscodeSettings controls the HLS transcoding pipeline.
type TranscodeSettings struct {
	FFmpegPath          string `json:"ffmpegPath"`
	FFprobePath         string `json:"ffprobePath"`
	SegmentDirectory    string `json:"segmentDirectory"`    // Per-session HLS output lives under here
	SegmentSeconds      int    `json:"segmentSeconds"`      // Target HLS segment duration
	IdleTimeoutSeconds  int    `json:"idleTimeoutSeconds"`  // Sessions unseen this long are reaped
	ReapIntervalSeconds int    `json:"reapIntervalSeconds"` // How often the reaper sweeps
}

// LogSettings configures file logging with rotation.
type LogSettings struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxBackups int    `json:"maxBackups"`
	MaxAge     int    `json:"maxAge"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 9790},
		Library: LibrarySettings{
			MediaDirectory: "media",
			DatabasePath:   "cache/library.db",
		},
		Transcode: TranscodeSettings{
			FFmpegPath:          "ffmpeg",
			FFprobePath:         "ffprobe",
			SegmentDirectory:    filepath.Join(os.TempDir(), "scenestream-hls"),
			SegmentSeconds:      4,
			IdleTimeoutSeconds:  120,
			ReapIntervalSeconds: 30,
		},
		Log: LogSettings{
			File:       "cache/logs/scenestream.log",
			MaxSize:    50, // MB per file
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures the parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}

	// Start from defaults so fields absent from older config files keep
	// usable values instead of zeroing out.
	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes settings to disk, creating the parent directory if needed.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
