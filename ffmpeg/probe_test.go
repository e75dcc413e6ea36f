package ffmpeg

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const bannerScript = `#!/bin/sh
printf "Input #0, mov,mp4, from '%s':\n  Duration: 00:01:30.50, start: 0.000000\n" "$3" >&2
printf 'At least one output file must be specified\n' >&2
exit 1
`

func TestProber_UsesFFprobe(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	cfg := testConfig(writeScript(t, dir, "ffmpeg", "#!/bin/sh\nexit 1\n"))
	cfg.FFProbeBin = writeScript(t, dir, "ffprobe", "#!/bin/sh\necho '12,5'\n")

	p := NewProber(cfg, testLog())
	assert.Equal(t, cfg.FFProbeBin, p.FFprobePath())
	assert.InDelta(t, 12.5, p.ProbeDuration(context.Background(), "clip.mp4"), 1e-9)
}

func TestProber_FallsBackToFFmpegBanner(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	cfg := testConfig(writeScript(t, dir, "ffmpeg", bannerScript))
	cfg.FFProbeBin = writeScript(t, dir, "ffprobe", "#!/bin/sh\necho 'N/A'\nexit 1\n")

	p := NewProber(cfg, testLog())
	assert.InDelta(t, 90.5, p.ProbeDuration(context.Background(), "clip.mp4"), 1e-9)
}

func TestProber_UnknownDuration(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	cfg := testConfig(writeScript(t, dir, "ffmpeg", "#!/bin/sh\necho 'clip.mp4: Invalid data found when processing input' >&2\nexit 1\n"))
	cfg.FFProbeBin = writeScript(t, dir, "ffprobe", "#!/bin/sh\nexit 1\n")

	p := NewProber(cfg, testLog())
	assert.Equal(t, 0.0, p.ProbeDuration(context.Background(), "corrupt.mp4"))
}

func TestProber_NoTools(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PATH", dir)
	cfg := testConfig(filepath.Join(dir, "ffmpeg"))

	p := NewProber(cfg, testLog())
	assert.Equal(t, "", p.FFprobePath())
	assert.Equal(t, 0.0, p.ProbeDuration(context.Background(), "clip.mp4"))
}

func TestFindFFprobe(t *testing.T) {
	skipOnWindows(t)

	t.Run("sibling of ffmpeg", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("PATH", t.TempDir())
		cfg := testConfig(writeScript(t, dir, "ffmpeg", "#!/bin/sh\n"))
		sibling := writeScript(t, dir, "ffprobe", "#!/bin/sh\n")
		assert.Equal(t, sibling, findFFprobe(cfg))
	})

	t.Run("explicit path that does not exist", func(t *testing.T) {
		cfg := testConfig("ffmpeg")
		cfg.FFProbeBin = filepath.Join(t.TempDir(), "ffprobe")
		assert.Equal(t, "", findFFprobe(cfg))
	})
}
