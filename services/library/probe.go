package library

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const probeTimeout = 30 * time.Second

// probeResult holds the media facts the catalog needs from one ffprobe call.
type probeResult struct {
	Container  string
	Duration   float64
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
}

// probeFile runs a single ffprobe pass over the file and extracts container,
// duration, resolution, and codec information.
func probeFile(ctx context.Context, ffprobePath, path string) (*probeResult, error) {
	if ffprobePath == "" {
		return nil, fmt.Errorf("ffprobe not configured")
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe execution: %w", err)
	}

	return parseProbeOutput(output)
}

// parseProbeOutput parses the JSON from ffprobe -show_format -show_streams.
func parseProbeOutput(output []byte) (*probeResult, error) {
	var probeData struct {
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(output, &probeData); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &probeResult{}

	// format_name can be a comma-separated alias list, e.g.
	// "mov,mp4,m4a,3gp,3g2,mj2"; keep the first entry.
	if name := probeData.Format.FormatName; name != "" {
		result.Container = strings.Split(name, ",")[0]
	}
	if probeData.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probeData.Format.Duration, 64); err == nil {
			result.Duration = d
		}
	}

	for _, stream := range probeData.Streams {
		switch stream.CodecType {
		case "video":
			if result.VideoCodec == "" {
				result.VideoCodec = stream.CodecName
				result.Width = stream.Width
				result.Height = stream.Height
			}
		case "audio":
			if result.AudioCodec == "" {
				result.AudioCodec = stream.CodecName
			}
		}
	}

	if result.VideoCodec == "" {
		return nil, fmt.Errorf("no video stream found")
	}
	return result, nil
}
