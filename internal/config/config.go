package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/voice-redaction-lab/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g.
// REDACTOR_DETECTOR_URL or REDACTOR_REPLACEMENT_TIMBRE.
const EnvPrefix = "REDACTOR"

type Detector struct {
	URL              string        `mapstructure:"url" validate:"required"`
	Engine           string        `mapstructure:"engine" validate:"required"`
	AppContextHeader string        `mapstructure:"app_context_header"`
	AppContext       string        `mapstructure:"app_context"`
	SampleRate       int           `mapstructure:"sample_rate" validate:"gt=0"`
	ChunkSize        int           `mapstructure:"chunk_size" validate:"gt=0"`
	ChunkDurationMs  int           `mapstructure:"chunk_duration_ms" validate:"gte=0"`
	QueueSize        int           `mapstructure:"queue_size" validate:"gt=0"`
	DrainTimeout     time.Duration `mapstructure:"drain_timeout" validate:"gt=0"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gt=0"`
}

type Replacement struct {
	Method    string  `mapstructure:"method" validate:"oneof=beep silence"`
	Timbre    string  `mapstructure:"timbre"`
	Frequency float64 `mapstructure:"frequency" validate:"gt=0"`
	Duration  float64 `mapstructure:"duration" validate:"gt=0,lte=60"`
	Volume    float64 `mapstructure:"volume" validate:"gte=0,lte=1"`
}

type Output struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

type MCP struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// Config is the full runtime configuration for the redactor binaries.
type Config struct {
	Detector    Detector    `mapstructure:"detector"`
	Replacement Replacement `mapstructure:"replacement"`
	Output      Output      `mapstructure:"output"`
	MCP         MCP         `mapstructure:"mcp"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("detector.url", "ws://localhost:8080/v1/transcribe")
	v.SetDefault("detector.engine", "aws")
	v.SetDefault("detector.app_context_header", "x-sfdc-app-context")
	v.SetDefault("detector.app_context", "EinsteinGPT")
	v.SetDefault("detector.sample_rate", 16000)
	v.SetDefault("detector.chunk_size", 2048)
	v.SetDefault("detector.chunk_duration_ms", 0)
	v.SetDefault("detector.queue_size", 64)
	v.SetDefault("detector.drain_timeout", 30*time.Second)
	v.SetDefault("detector.handshake_timeout", 10*time.Second)

	v.SetDefault("replacement.method", "beep")
	v.SetDefault("replacement.timbre", "beep")
	v.SetDefault("replacement.frequency", 1000.0)
	v.SetDefault("replacement.duration", 0.5)
	v.SetDefault("replacement.volume", 0.3)

	v.SetDefault("output.dir", "./redacted")
	v.SetDefault("mcp.addr", ":9001")
}

// flagKeys maps command line flag names onto config keys. Only flags that
// exist on the bound FlagSet and were set explicitly take effect.
var flagKeys = map[string]string{
	"detector-url": "detector.url",
	"method":       "replacement.method",
	"timbre":       "replacement.timbre",
	"frequency":    "replacement.frequency",
	"duration":     "replacement.duration",
	"volume":       "replacement.volume",
	"out-dir":      "output.dir",
	"addr":         "mcp.addr",
}

// Load reads defaults, then the optional YAML file at path (falling back to
// REDACTOR_CONFIG), then REDACTOR_* environment overrides, then any
// explicitly set flags, and validates the result. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		logging.Debugw("config: loaded file", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
