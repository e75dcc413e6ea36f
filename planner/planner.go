// Package planner turns a target file size and a media duration into encoder
// bitrates, and corrects a video bitrate after an encode misses its target.
package planner

import "math"

const (
	// MinVideoBitrate is the floor applied to every plan even when it breaks
	// the size target.
	MinVideoBitrate = 120_000
	// MinRetunedBitrate is the floor applied to a corrected video bitrate.
	MinRetunedBitrate = 100_000

	minDuration = 0.1
	minBufSize  = 100_000

	// Tolerance band for actual/target size.
	MaxOverRatio  = 1.06
	MinUnderRatio = 0.85
)

// BitratePlan is the split of a total bitrate budget between the video and
// audio streams, in bits per second.
type BitratePlan struct {
	VideoBitrate int `json:"videoBitrate"`
	AudioBitrate int `json:"audioBitrate"`
}

// TargetBytes converts a MiB target into bytes.
func TargetBytes(mib int) int64 {
	return int64(mib) * 1024 * 1024
}

// AudioBitrateFor picks the audio tier for a target size.
func AudioBitrateFor(mib int) int {
	switch {
	case mib <= 10:
		return 64_000
	case mib <= 50:
		return 96_000
	default:
		return 128_000
	}
}

// Plan computes the bitrate split for targetBytes spread over durationSeconds.
func Plan(targetBytes int64, durationSeconds float64, targetMiB int) BitratePlan {
	totalBps := float64(targetBytes) * 8 / math.Max(durationSeconds, minDuration)
	audio := AudioBitrateFor(targetMiB)
	video := int(totalBps - float64(audio))
	return BitratePlan{
		VideoBitrate: max(MinVideoBitrate, video),
		AudioBitrate: audio,
	}
}

// MaxRate is the short-term peak allowed around a video bitrate.
func MaxRate(videoBitrate int) int {
	return int(float64(videoBitrate) * 1.1)
}

// BufSize is the rate-control buffer size for a video bitrate.
func BufSize(videoBitrate int) int {
	return max(minBufSize, videoBitrate*2)
}

// SizeRatio reports actual/target. A non-positive target yields +Inf.
func SizeRatio(actualBytes, targetBytes int64) float64 {
	if targetBytes <= 0 {
		return math.Inf(1)
	}
	return float64(actualBytes) / float64(targetBytes)
}

// NeedsRetune reports whether ratio falls outside the tolerance band.
func NeedsRetune(ratio float64) bool {
	return ratio > MaxOverRatio || ratio < MinUnderRatio
}

// Retune scales the previous video bitrate by the observed size ratio.
func Retune(prevVideoBitrate int, ratio float64) int {
	if ratio <= 0 || math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		return MinRetunedBitrate
	}
	return max(MinRetunedBitrate, int(math.Round(float64(prevVideoBitrate)/ratio)))
}
