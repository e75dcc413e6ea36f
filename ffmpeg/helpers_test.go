package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"ffsqueeze/config"
	"ffsqueeze/logging"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeEncoderScript mimics the parts of ffmpeg the driver relies on: it
// logs its arguments, prints a banner and stats lines to stderr, writes the
// last argument as the output file and exits with exitCode when the -pass
// value (0 when absent) equals failPass.
const fakeEncoderScript = `#!/bin/sh
echo "$*" >> '%s'
out=""
pass=0
prev=""
for a in "$@"; do
  if [ "$prev" = "-pass" ]; then pass="$a"; fi
  prev="$a"
  out="$a"
done
printf 'Input #0, mov,mp4, from x:\n  Duration: 00:00:20.00, start: 0.000000, bitrate: 900 kb/s\n' >&2
printf 'frame=   10 fps=0.0 q=28.0 size=       0kB time=00:00:05.00 bitrate=   0.0kbits/s speed=10x\r' >&2
printf 'frame=   11 fps=0.0 q=28.0 size=       0kB time=00:00:05.01 bitrate=   0.0kbits/s speed=10x\r' >&2
printf 'frame=   20 fps=0.0 q=28.0 size=     256kB time=00:00:10.00 bitrate= 209.7kbits/s speed=10x\r' >&2
printf 'frame=   40 fps=0.0 q=28.0 size=     512kB time=00:00:20.00 bitrate= 209.7kbits/s speed=10x\n' >&2
if [ "$pass" = "%s" ]; then
  printf 'Conversion failed!\n' >&2
  exit %d
fi
printf 'encoded' > "$out"
exit 0
`

type progressEvent struct {
	Message string
	Percent int
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake encoder is a POSIX shell script")
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

// fakeEncoder installs the fake ffmpeg and returns its path and the file
// its invocations are appended to. failPass "none" never fails.
func fakeEncoder(t *testing.T, failPass string, exitCode int) (bin, argsLog string) {
	t.Helper()
	skipOnWindows(t)
	dir := t.TempDir()
	argsLog = filepath.Join(dir, "args.log")
	bin = writeScript(t, dir, "ffmpeg", fmt.Sprintf(fakeEncoderScript, argsLog, failPass, exitCode))
	return bin, argsLog
}

func invocations(t *testing.T, argsLog string) []string {
	t.Helper()
	data, err := os.ReadFile(argsLog)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func testConfig(ffBin string) *config.Config {
	return &config.Config{
		FFBin:        ffBin,
		FFVideoCodec: "libx264",
		FFAudioCodec: "aac",
		FFPreset:     "medium",
		FFPixFmt:     "yuv420p",
		TargetMiB:    10,
	}
}

func testLog() *logrus.Entry {
	return logging.Component(logging.Discard(), "test")
}

func recorder() (*[]progressEvent, ProgressFunc) {
	var events []progressEvent
	return &events, func(msg string, pct int) {
		events = append(events, progressEvent{msg, pct})
	}
}
