package transcode

import "testing"

func TestTiersForFiltersUpscaling(t *testing.T) {
	ladder := DefaultLadder()

	tests := []struct {
		sourceHeight int
		wantLabels   []string
	}{
		{2160, []string{"240p", "360p", "480p", "720p", "1080p"}},
		{1080, []string{"240p", "360p", "480p", "720p", "1080p"}},
		{720, []string{"240p", "360p", "480p", "720p"}},
		{719, []string{"240p", "360p", "480p"}},
		{240, []string{"240p"}},
		{180, nil},
	}
	for _, tt := range tests {
		got := TiersFor(ladder, tt.sourceHeight)
		if len(got) != len(tt.wantLabels) {
			t.Errorf("TiersFor(%d) returned %d tiers, want %d", tt.sourceHeight, len(got), len(tt.wantLabels))
			continue
		}
		for i, tier := range got {
			if tier.Label != tt.wantLabels[i] {
				t.Errorf("TiersFor(%d)[%d] = %s, want %s", tt.sourceHeight, i, tier.Label, tt.wantLabels[i])
			}
		}
	}
}

func TestTierBandwidth(t *testing.T) {
	tier := Tier{Label: "720p", Height: 720, VideoBitrateKbps: 2800, AudioBitrateKbps: 128}
	if got := tier.Bandwidth(); got != 2928000 {
		t.Errorf("Bandwidth() = %d, want 2928000", got)
	}
}

func TestDefaultLadderOrderedByBandwidth(t *testing.T) {
	ladder := DefaultLadder()
	for i := 1; i < len(ladder); i++ {
		if ladder[i].Bandwidth() <= ladder[i-1].Bandwidth() {
			t.Errorf("ladder not ascending at %s", ladder[i].Label)
		}
	}
}
