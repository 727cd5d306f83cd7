// internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultInputWidth and DefaultInputHeight are used when model_input_size is malformed
const (
	DefaultInputWidth  = 1024
	DefaultInputHeight = 1024
)

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Port        int    `mapstructure:"port"`
	GRPCPort    int    `mapstructure:"grpc_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	Mode        string `mapstructure:"mode"`

	// App metadata reported by /api/info
	AppName     string `mapstructure:"app_name"`
	AppVersion  string `mapstructure:"app_version"`
	RMBGVersion string `mapstructure:"rmbg_version"`

	// Model configuration
	ModelPath      string `mapstructure:"model_path"`
	ModelInputSize string `mapstructure:"model_input_size"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`

	// Upload limits
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
	MaxImageWidth  int   `mapstructure:"max_image_width"`
	MaxImageHeight int   `mapstructure:"max_image_height"`
	MaxImagePixels int64 `mapstructure:"max_image_pixels"`

	// Result cache; empty RedisAddr disables it
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Feature flags
	UseMockInference bool `mapstructure:"use_mock_inference"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8000)
	v.SetDefault("grpc_port", 50051)
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("mode", "debug")

	v.SetDefault("app_name", "RMBG Background Removal")
	v.SetDefault("app_version", "1.0.0")
	v.SetDefault("rmbg_version", "1.4")

	v.SetDefault("model_path", filepath.Join("models", "model.onnx"))
	v.SetDefault("model_input_size", "1024,1024")
	v.SetDefault("ort_library_path", "")

	v.SetDefault("max_upload_bytes", 10*1024*1024)
	v.SetDefault("max_image_width", 3000)
	v.SetDefault("max_image_height", 3000)
	v.SetDefault("max_image_pixels", 178956970)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("cache_ttl", 24*time.Hour)

	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("use_mock_inference", false)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	// Environment variable configuration
	v.SetEnvPrefix("RMBG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept for existing deployments
	v.BindEnv("model_path", "RMBG_MODEL_PATH", "MODEL_PATH")
	v.BindEnv("model_input_size", "RMBG_MODEL_INPUT_SIZE", "MODEL_INPUT_SIZE")
	v.BindEnv("port", "RMBG_PORT", "PORT")
	v.BindEnv("otel_endpoint", "RMBG_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("use_mock_inference", "RMBG_USE_MOCK")

	return v
}

// Load loads configuration from environment variables and an optional config file.
// Priority (highest to lowest): env vars > config file > defaults.
// Flags are applied by the caller on top of the result.
func Load() (*Config, error) {
	v := newViper()

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/rmbg-service/")
	v.AddConfigPath("$HOME/.rmbg-service")

	// Read config file if present (ignore error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadWithConfigFile loads configuration from a specific config file
func LoadWithConfigFile(configPath string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.OTELEndpoint != "" {
		cfg.OTELEnabled = true
	}
	return &cfg, nil
}

// InputSize parses ModelInputSize ("W,H"). Anything other than two positive
// integers falls back to 1024x1024.
func (c *Config) InputSize() (width, height int) {
	return ParseInputSize(c.ModelInputSize)
}

// ParseInputSize parses a "W,H" pair, falling back to the defaults.
func ParseInputSize(s string) (width, height int) {
	var dims []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		dims = append(dims, n)
	}
	if len(dims) != 2 {
		return DefaultInputWidth, DefaultInputHeight
	}
	return dims[0], dims[1]
}

// AbsModelPath resolves a relative model path against the working directory
func (c *Config) AbsModelPath() string {
	if c.ModelPath == "" || filepath.IsAbs(c.ModelPath) {
		return c.ModelPath
	}
	abs, err := filepath.Abs(c.ModelPath)
	if err != nil {
		return c.ModelPath
	}
	return abs
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ports := map[string]int{"port": c.Port, "grpc_port": c.GRPCPort, "metrics_port": c.MetricsPort}
	seen := make(map[int]string, len(ports))
	for _, name := range []string{"port", "grpc_port", "metrics_port"} {
		p := ports[name]
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid %s: %d", name, p)
		}
		if other, ok := seen[p]; ok {
			return fmt.Errorf("%s and %s must be different", other, name)
		}
		seen[p] = name
	}
	if c.ModelPath == "" && !c.UseMockInference {
		return fmt.Errorf("model path is required when not using mock inference")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max_upload_bytes: %d", c.MaxUploadBytes)
	}
	if c.MaxImageWidth <= 0 || c.MaxImageHeight <= 0 {
		return fmt.Errorf("invalid max image size: %dx%d", c.MaxImageWidth, c.MaxImageHeight)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("invalid max_image_pixels: %d", c.MaxImagePixels)
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid mode: %q", c.Mode)
	}
	return nil
}
