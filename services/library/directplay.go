package library

// Browser-native combinations that can be served as-is without transcoding.
var (
	directPlayContainers = map[string]bool{
		"mp4":  true,
		"mov":  true,
		"webm": true,
	}
	directPlayVideoCodecs = map[string]bool{
		"h264": true,
		"vp9":  true,
		"av1":  true,
	}
	directPlayAudioCodecs = map[string]bool{
		"aac":    true,
		"mp3":    true,
		"opus":   true,
		"vorbis": true,
		"":       true, // no audio stream
	}
)

// DirectPlayable reports whether the probed container and codecs can be
// handed straight to a browser <video> element.
func DirectPlayable(container, videoCodec, audioCodec string) bool {
	return directPlayContainers[container] &&
		directPlayVideoCodecs[videoCodec] &&
		directPlayAudioCodecs[audioCodec]
}
