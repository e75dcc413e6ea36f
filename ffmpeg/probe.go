package ffmpeg

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"ffsqueeze/config"
	"github.com/sirupsen/logrus"
)

// Prober reads media durations, preferring ffprobe and falling back to the
// banner ffmpeg prints when it opens a file.
type Prober struct {
	ffmpegBin  string
	ffprobeBin string
	log        *logrus.Entry
}

func NewProber(cfg *config.Config, log *logrus.Entry) *Prober {
	p := &Prober{
		ffmpegBin:  cfg.FFBin,
		ffprobeBin: findFFprobe(cfg),
		log:        log,
	}
	if p.ffprobeBin == "" {
		log.Warn("ffprobe not found, durations will be read from ffmpeg output")
	} else {
		log.Debugf("Using ffprobe at %s", p.ffprobeBin)
	}
	return p
}

// FFprobePath is the probing tool in use, or "" when there is none.
func (p *Prober) FFprobePath() string {
	return p.ffprobeBin
}

// ProbeDuration returns the duration of path in seconds, or 0 when it cannot
// be determined.
func (p *Prober) ProbeDuration(ctx context.Context, path string) float64 {
	if p.ffprobeBin != "" {
		d, err := p.probeWithFFprobe(ctx, path)
		if err == nil && d > 0 {
			return d
		}
		p.log.WithField("file", filepath.Base(path)).Debugf("ffprobe gave no duration (%v), trying ffmpeg", err)
	}
	if d, ok := p.probeWithFFmpeg(ctx, path); ok {
		return d
	}
	return 0
}

func (p *Prober) probeWithFFprobe(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return 0, err
	}
	s := strings.ReplaceAll(strings.TrimSpace(stdout.String()), ",", ".")
	return strconv.ParseFloat(s, 64)
}

// probeWithFFmpeg runs `ffmpeg -i path`; it exits non-zero because no output
// is given, so only the diagnostic text matters.
func (p *Prober) probeWithFFmpeg(ctx context.Context, path string) (float64, bool) {
	cmd := exec.CommandContext(ctx, p.ffmpegBin, "-hide_banner", "-i", path)
	out, err := cmd.CombinedOutput()
	if err != nil && len(out) == 0 {
		p.log.WithField("file", filepath.Base(path)).Debugf("ffmpeg probe failed: %v", err)
		return 0, false
	}
	return ParseDurationText(string(out))
}

// findFFprobe resolves the probing tool: explicit config, then PATH, then a
// sibling of the ffmpeg executable.
func findFFprobe(cfg *config.Config) string {
	if cfg.FFProbeBin != "" {
		if p, err := exec.LookPath(cfg.FFProbeBin); err == nil {
			return p
		}
		return ""
	}
	if p, err := exec.LookPath("ffprobe"); err == nil {
		return p
	}
	ffmpegPath, err := exec.LookPath(cfg.FFBin)
	if err != nil {
		return ""
	}
	name := "ffprobe"
	if runtime.GOOS == "windows" {
		name = "ffprobe.exe"
	}
	cand := filepath.Join(filepath.Dir(ffmpegPath), name)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return ""
}
