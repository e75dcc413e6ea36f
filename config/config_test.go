// ffsqueeze/config/config_test.go
package config_test

import (
	"testing"
	"time"

	"ffsqueeze/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"FFSQUEEZE_PORT", "FFSQUEEZE_MAX_CONCURRENCY", "FFSQUEEZE_AUTH_ENABLE",
		"FFSQUEEZE_FF_TIMEOUT", "FFSQUEEZE_TARGET_MIB", "FFSQUEEZE_TWO_PASS",
		"FFSQUEEZE_THROTTLE_FREEDISK", "FFSQUEEZE_FF_PRESET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		clearEnv(t)

		cfg, err := config.Load(nil)
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, 1, cfg.MaxConcurrency)
		assert.Equal(t, false, cfg.AuthEnable)
		assert.Equal(t, "ffmpeg", cfg.FFBin)
		assert.Equal(t, "libx264", cfg.FFVideoCodec)
		assert.Equal(t, "aac", cfg.FFAudioCodec)
		assert.Equal(t, "medium", cfg.FFPreset)
		assert.Equal(t, "yuv420p", cfg.FFPixFmt)
		assert.Equal(t, 10, cfg.TargetMiB)
		assert.True(t, cfg.TwoPass)
		assert.True(t, cfg.AutoTune)
		assert.Equal(t, time.Duration(0), cfg.FFTimeout)
		assert.Equal(t, time.Hour, cfg.BatchRetention)
		assert.Equal(t, int64(200*1024*1024), cfg.ThrottleFreeDisk)
		assert.Equal(t, int64(0), cfg.ThrottleFreeMem)
	})

	t.Run("overrides defaults with environment variables", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FFSQUEEZE_PORT", "9999")
		t.Setenv("FFSQUEEZE_MAX_CONCURRENCY", "2")
		t.Setenv("FFSQUEEZE_TARGET_MIB", "50")
		t.Setenv("FFSQUEEZE_TWO_PASS", "false")
		t.Setenv("FFSQUEEZE_FF_TIMEOUT", "30m")
		t.Setenv("FFSQUEEZE_THROTTLE_FREEDISK", "1GB")

		cfg, err := config.Load(nil)
		require.NoError(t, err)

		assert.Equal(t, "9999", cfg.Port)
		assert.Equal(t, 2, cfg.MaxConcurrency)
		assert.Equal(t, 50, cfg.TargetMiB)
		assert.False(t, cfg.TwoPass)
		assert.Equal(t, 30*time.Minute, cfg.FFTimeout)
		assert.Equal(t, int64(1024*1024*1024), cfg.ThrottleFreeDisk)
	})

	t.Run("explicit flags win over environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FFSQUEEZE_TARGET_MIB", "50")
		t.Setenv("FFSQUEEZE_FF_PRESET", "slow")

		fs := config.Flags()
		require.NoError(t, fs.Parse([]string{"-t", "500", "--two-pass=false", "clip.mp4"}))

		cfg, err := config.Load(fs)
		require.NoError(t, err)

		assert.Equal(t, 500, cfg.TargetMiB)
		assert.False(t, cfg.TwoPass)
		assert.Equal(t, "slow", cfg.FFPreset)
		assert.Equal(t, []string{"clip.mp4"}, fs.Args())
	})

	t.Run("rejects zero concurrency", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FFSQUEEZE_MAX_CONCURRENCY", "0")

		_, err := config.Load(nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "MAX_CONCURRENCY")
	})

	t.Run("rejects a non-positive target", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FFSQUEEZE_TARGET_MIB", "-5")

		_, err := config.Load(nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "TARGET_MIB")
	})
}
