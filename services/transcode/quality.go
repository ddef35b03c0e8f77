package transcode

// Tier is a static quality descriptor for one HLS rendition.
type Tier struct {
	Label            string
	Height           int
	VideoBitrateKbps int
	AudioBitrateKbps int
}

// Bandwidth returns the total peak bandwidth advertised for this tier in the
// master playlist, in bits per second.
func (t Tier) Bandwidth() int {
	return (t.VideoBitrateKbps + t.AudioBitrateKbps) * 1000
}

// DefaultLadder is the built-in quality ladder, lowest bandwidth first so
// players start fast and switch up.
func DefaultLadder() []Tier {
	return []Tier{
		{Label: "240p", Height: 240, VideoBitrateKbps: 400, AudioBitrateKbps: 64},
		{Label: "360p", Height: 360, VideoBitrateKbps: 800, AudioBitrateKbps: 96},
		{Label: "480p", Height: 480, VideoBitrateKbps: 1400, AudioBitrateKbps: 128},
		{Label: "720p", Height: 720, VideoBitrateKbps: 2800, AudioBitrateKbps: 128},
		{Label: "1080p", Height: 1080, VideoBitrateKbps: 5000, AudioBitrateKbps: 192},
	}
}

// TiersFor filters the ladder down to tiers that do not exceed the source's
// native vertical resolution. Upscaling is never offered.
func TiersFor(ladder []Tier, sourceHeight int) []Tier {
	var tiers []Tier
	for _, t := range ladder {
		if t.Height > sourceHeight {
			continue
		}
		tiers = append(tiers, t)
	}
	return tiers
}
