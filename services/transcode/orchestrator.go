package transcode

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"
)

const (
	// MasterPlaylistName is the top-level playlist served for a session.
	MasterPlaylistName = "master.m3u8"
	// variantPlaylistName is the per-tier playlist ffmpeg appends to.
	variantPlaylistName = "index.m3u8"
)

// StartTranscoding spawns one encoder subprocess per quality tier that does
// not upscale the source, then publishes the master playlist listing the
// tiers that actually started. A tier that fails to start degrades the
// session; the session only fails outright when no tier starts at all.
func (m *Manager) StartTranscoding(session *Session) error {
	tiers := TiersFor(m.ladder, session.SourceHeight)
	if len(tiers) == 0 {
		return fmt.Errorf("source resolution %dp below lowest tier: %w", session.SourceHeight, ErrNoTiersStarted)
	}

	var wg conc.WaitGroup
	for _, tier := range tiers {
		tier := tier
		wg.Go(func() {
			m.startTier(session, tier)
		})
	}
	wg.Wait()

	started := session.Tiers()
	if len(started) == 0 {
		return ErrNoTiersStarted
	}

	if err := m.writeMasterPlaylist(session); err != nil {
		return fmt.Errorf("write master playlist: %w", err)
	}

	session.setStatus(StatusTranscoding)
	log.Printf("[transcode] session %s: transcoding with tiers %s", session.ID, strings.Join(started, ","))
	return nil
}

// startTier spawns the subprocess for one quality tier. Failures are logged
// and the tier is simply omitted.
func (m *Manager) startTier(session *Session, tier Tier) {
	tierDir := filepath.Join(session.OutputDir, tier.Label)
	if err := m.fs.MkdirAll(tierDir, 0o755); err != nil {
		log.Printf("[transcode] session %s: tier %s skipped, cannot create directory: %v", session.ID, tier.Label, err)
		return
	}

	p := m.launch(m.buildTierArgs(session, tier, tierDir))
	if err := p.Start(); err != nil {
		log.Printf("[transcode] session %s: tier %s failed to start: %v", session.ID, tier.Label, err)
		return
	}

	session.attachProcess(tier.Label, p)
	go m.monitorTier(session, tier.Label, p)
}

// buildTierArgs assembles the ffmpeg invocation for one HLS rendition. The
// seek is input-side (-ss before -i) so the decoder jumps near the requested
// offset instead of decoding the whole file up to it.
func (m *Manager) buildTierArgs(session *Session, tier Tier, tierDir string) []string {
	args := []string{
		"-nostdin",
		"-y",
		"-loglevel", "error",
	}
	if session.StartOffset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(session.StartOffset, 'f', 3, 64))
	}
	args = append(args,
		"-i", session.SourcePath,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-vf", fmt.Sprintf("scale=-2:%d", tier.Height),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", fmt.Sprintf("%dk", tier.VideoBitrateKbps),
		"-maxrate", fmt.Sprintf("%dk", tier.VideoBitrateKbps*12/10),
		"-bufsize", fmt.Sprintf("%dk", tier.VideoBitrateKbps*2),
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", tier.AudioBitrateKbps),
		"-ac", "2",
		"-f", "hls",
		"-hls_time", strconv.Itoa(m.segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(tierDir, "seg%05d.ts"),
		filepath.Join(tierDir, variantPlaylistName),
	)
	return args
}

// monitorTier watches a tier subprocess and degrades the session when it
// exits abnormally: the tier is detached and the master playlist rewritten
// without it.
func (m *Manager) monitorTier(session *Session, label string, p Process) {
	ticker := time.NewTicker(m.monitorInterval)
	defer ticker.Stop()

	for range ticker.C {
		if session.Status() == StatusTerminated {
			return
		}
		if p.IsAlive() {
			continue
		}

		code := p.ExitCode()
		if code == 0 {
			log.Printf("[transcode] session %s: tier %s finished encoding", session.ID, label)
			return
		}

		log.Printf("[transcode] session %s: tier %s exited abnormally (code=%d), degrading", session.ID, label, code)
		session.detachProcess(label)

		if session.Status() == StatusTerminated {
			return
		}
		if len(session.Tiers()) == 0 {
			log.Printf("[transcode] session %s: no tiers left running", session.ID)
			return
		}
		if err := m.writeMasterPlaylist(session); err != nil {
			log.Printf("[transcode] session %s: failed to rewrite master playlist: %v", session.ID, err)
		}
		return
	}
}

// writeMasterPlaylist publishes (or republishes) the master playlist with one
// entry per tier that currently has a live process.
func (m *Manager) writeMasterPlaylist(session *Session) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")

	for _, label := range session.Tiers() {
		tier, ok := m.tierByLabel(label)
		if !ok {
			continue
		}
		b.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d,NAME=\"%s\"\n",
			tier.Bandwidth(), m.tierWidth(session, tier), tier.Height, tier.Label))
		b.WriteString(tier.Label + "/" + variantPlaylistName + "\n")
	}

	path := filepath.Join(session.OutputDir, MasterPlaylistName)
	return afero.WriteFile(m.fs, path, []byte(b.String()), 0o644)
}

func (m *Manager) tierByLabel(label string) (Tier, bool) {
	for _, t := range m.ladder {
		if t.Label == label {
			return t, true
		}
	}
	return Tier{}, false
}

// tierWidth scales the tier height by the source aspect ratio, rounded up to
// an even pixel count. Unknown source dimensions fall back to 16:9.
func (m *Manager) tierWidth(session *Session, tier Tier) int {
	width := tier.Height * 16 / 9
	if session.SourceWidth > 0 && session.SourceHeight > 0 {
		width = tier.Height * session.SourceWidth / session.SourceHeight
	}
	if width%2 != 0 {
		width++
	}
	return width
}
