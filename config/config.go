// ffsqueeze/config/config.go
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	FFBin          string        `mapstructure:"FF_BIN"`
	FFProbeBin     string        `mapstructure:"FFPROBE_BIN"`
	// FFTimeout bounds one encode attempt; zero leaves encodes unbounded.
	FFTimeout      time.Duration `mapstructure:"FF_TIMEOUT"`
	FFVideoCodec   string        `mapstructure:"FF_VIDEO_CODEC"`
	FFAudioCodec   string        `mapstructure:"FF_AUDIO_CODEC"`
	FFPreset       string        `mapstructure:"FF_PRESET"`
	FFPixFmt       string        `mapstructure:"FF_PIX_FMT"`
	FFExtraArgs    string        `mapstructure:"FF_EXTRA_ARGS"`
	TargetMiB      int           `mapstructure:"TARGET_MIB"`
	TwoPass        bool          `mapstructure:"TWO_PASS"`
	AutoTune       bool          `mapstructure:"AUTO_TUNE"`
	OutputDir      string        `mapstructure:"OUTPUT_DIR"`
	WorkDir        string        `mapstructure:"WORK_DIR"`
	MaxConcurrency int           `mapstructure:"MAX_CONCURRENCY"`
	BatchRetention time.Duration `mapstructure:"BATCH_RETENTION"`
	// Throttle thresholds; zero disables the corresponding check.
	ThrottleCPU      float64 `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64   `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64   `mapstructure:"THROTTLE_FREEDISK"`
	AuthEnable       bool    `mapstructure:"AUTH_ENABLE"`
	AuthKey          string  `mapstructure:"AUTH_KEY"`
	Port             string  `mapstructure:"PORT"`
	BaseURL          string  `mapstructure:"BASE"`
	LogLevel         string  `mapstructure:"LOG_LEVEL"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("FF_BIN", "ffmpeg")
	vp.SetDefault("FFPROBE_BIN", "")
	vp.SetDefault("FF_TIMEOUT", "0s")
	vp.SetDefault("FF_VIDEO_CODEC", "libx264")
	vp.SetDefault("FF_AUDIO_CODEC", "aac")
	vp.SetDefault("FF_PRESET", "medium")
	vp.SetDefault("FF_PIX_FMT", "yuv420p")
	vp.SetDefault("FF_EXTRA_ARGS", "")
	vp.SetDefault("TARGET_MIB", 10)
	vp.SetDefault("TWO_PASS", true)
	vp.SetDefault("AUTO_TUNE", true)
	vp.SetDefault("OUTPUT_DIR", "Output")
	vp.SetDefault("WORK_DIR", os.TempDir())
	vp.SetDefault("MAX_CONCURRENCY", 1)
	vp.SetDefault("BATCH_RETENTION", "1h")
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "0B")
	vp.SetDefault("THROTTLE_FREEDISK", "200MB")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "123456")
	vp.SetDefault("PORT", "8080")
	vp.SetDefault("BASE", "")
	vp.SetDefault("LOG_LEVEL", "info")
}

// Flags returns the command-line flag set understood by Load. Flag names are
// the lower-case, dash-separated forms of the config keys.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("ffsqueeze", pflag.ContinueOnError)
	fs.String("ff-bin", "", "path to the ffmpeg executable")
	fs.String("ffprobe-bin", "", "path to the ffprobe executable")
	fs.StringP("output-dir", "o", "", "directory for encoded files")
	fs.IntP("target-mib", "t", 0, "target output size in MiB")
	fs.Bool("two-pass", true, "use two-pass encoding")
	fs.Bool("auto-tune", true, "re-encode once if the result misses the size band")
	fs.String("preset", "", "encoder preset")
	fs.String("port", "", "HTTP listen port (service mode)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	return fs
}

var flagKeys = map[string]string{
	"ff-bin":      "FF_BIN",
	"ffprobe-bin": "FFPROBE_BIN",
	"output-dir":  "OUTPUT_DIR",
	"target-mib":  "TARGET_MIB",
	"two-pass":    "TWO_PASS",
	"auto-tune":   "AUTO_TUNE",
	"preset":      "FF_PRESET",
	"port":        "PORT",
	"log-level":   "LOG_LEVEL",
}

// Load reads defaults, the optional config file and FFSQUEEZE_* environment
// variables. Flags that were explicitly set on fs override everything else;
// fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	vp := viper.New()
	setDefaults(vp)

	vp.SetConfigName("ffsqueeze_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/ffsqueeze/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("FFSQUEEZE")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := vp.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	// The order matters: the first hook that succeeds is used.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the encoder pipeline cannot work with.
func (c *Config) Validate() error {
	if c.FFBin == "" {
		return fmt.Errorf("FF_BIN must not be empty")
	}
	if c.TargetMiB <= 0 {
		return fmt.Errorf("TARGET_MIB must be positive, got %d", c.TargetMiB)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("MAX_CONCURRENCY must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.ThrottleCPU < 0 || c.ThrottleCPU > 100 {
		return fmt.Errorf("THROTTLE_CPU must be within 0..100, got %.2f", c.ThrottleCPU)
	}
	return nil
}
