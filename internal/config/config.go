package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is the display version, overridable via SHRYNC_VERSION.
const defaultVersion = "0.02"

type Config struct {
	// Port is the HTTP listen port
	Port int `yaml:"port"`

	// DBPath is the SQLite database file location
	DBPath string `yaml:"db_path"`

	// CacheDir is where temp files are written during transcoding.
	// If empty, temp files go in the same directory as the source.
	CacheDir string `yaml:"cache_dir"`

	// GPUMode selects the encoder path: "nvidia" enables NVENC codecs,
	// anything else forces the CPU fallback.
	GPUMode string `yaml:"gpu_mode"`

	// FFmpegPath is the path to the ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath is the path to the ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path"`

	// LogLevel controls the logger: debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// WatchMode selects the directory observer: "poll" (default, safe on
	// network mounts) or "native" (inotify/FSEvents via fsnotify).
	WatchMode string `yaml:"watch_mode"`

	// PollInterval is the polling observer interval in seconds
	PollInterval int `yaml:"poll_interval"`

	// Version is display-only, set from SHRYNC_VERSION
	Version string `yaml:"-"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		DBPath:       "/config/shrync.db",
		CacheDir:     "",
		GPUMode:      "cpu",
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",
		LogLevel:     "info",
		WatchMode:    "poll",
		PollInterval: 10,
		Version:      defaultVersion,
	}
}

// Load reads config from a YAML file, applying defaults for missing values
// and environment overrides on top (SHRYNC_VERSION, CACHE_DIR, GPU_MODE,
// DB_PATH).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults + env
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "/config/shrync.db"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.WatchMode == "" {
		cfg.WatchMode = "poll"
	}
	if cfg.PollInterval < 1 {
		cfg.PollInterval = 10
	}
	cfg.Version = defaultVersion

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("SHRYNC_VERSION")); v != "" {
		c.Version = v
	}
	if v := strings.TrimSpace(os.Getenv("CACHE_DIR")); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("GPU_MODE"); v != "" {
		c.GPUMode = strings.ToLower(v)
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
}

// GPUAvailable reports whether the NVENC path is enabled. This trusts the
// configured mode; no runtime probe of the GPU is performed.
func (c *Config) GPUAvailable() bool {
	return strings.ToLower(c.GPUMode) == "nvidia"
}

// TempDir returns the directory for temp transcode files.
// If CacheDir is set, returns that; otherwise the directory of the source file.
func (c *Config) TempDir(sourcePath string) string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return filepath.Dir(sourcePath)
}
