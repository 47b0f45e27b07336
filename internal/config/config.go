package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultConfigRelPath = ".ramldoc/config.yaml"

type OutputConfig struct {
	Dir            string `yaml:"dir"`
	VerifyExamples bool   `yaml:"verify_examples"`
}

// ValidationConfig sets the undocumented-field policy used when a
// descriptor catalog does not say otherwise. Strict unless relaxed here.
type ValidationConfig struct {
	RelaxedRequest  bool `yaml:"relaxed_request"`
	RelaxedResponse bool `yaml:"relaxed_response"`
}

type FilterConfig struct {
	IgnoreExtensions   []string `yaml:"ignore_extensions"`
	IgnoreContentTypes []string `yaml:"ignore_content_types"`
	IgnorePaths        []string `yaml:"ignore_paths"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Output     OutputConfig     `yaml:"output"`
	Validation ValidationConfig `yaml:"validation"`
	Filter     FilterConfig     `yaml:"filter"`
	Store      StoreConfig      `yaml:"store"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Workers    int              `yaml:"workers"`
}

// Load loads YAML config, then applies env overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		configPath = filepath.Join(home, defaultConfigRelPath)
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.SetDefaults()
	applyEnvOverrides(cfg)
	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Output.Dir == "" {
		c.Output.Dir = "build/generated-snippets"
	}
	if len(c.Filter.IgnoreExtensions) == 0 {
		c.Filter.IgnoreExtensions = []string{".js", ".css", ".png", ".jpg", ".gif", ".svg", ".woff", ".woff2", ".ico", ".map"}
	}
	if len(c.Filter.IgnoreContentTypes) == 0 {
		c.Filter.IgnoreContentTypes = []string{"text/html", "text/css", "image/*", "font/*", "application/javascript"}
	}
	if len(c.Filter.IgnorePaths) == 0 {
		c.Filter.IgnorePaths = []string{"/static/", "/assets/", "/favicon"}
	}
	if c.Store.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Store.Path = filepath.Join(home, ".ramldoc", "ramldoc.db")
		} else {
			c.Store.Path = "ramldoc.db"
		}
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Output.Dir) == "" {
		return errors.New("output.dir cannot be empty")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if err := ensureWritableDir(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir not writable: %w", err)
	}
	return nil
}

// ParseLevel maps log.level to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func applyEnvOverrides(c *Config) {
	setString(&c.Output.Dir, "RAMLDOC_OUTPUT_DIR")
	setBool(&c.Output.VerifyExamples, "RAMLDOC_VERIFY_EXAMPLES")
	setBool(&c.Validation.RelaxedRequest, "RAMLDOC_RELAXED_REQUEST")
	setBool(&c.Validation.RelaxedResponse, "RAMLDOC_RELAXED_RESPONSE")
	setString(&c.Store.Path, "RAMLDOC_STORE_PATH")
	setString(&c.Server.Host, "RAMLDOC_SERVER_HOST")
	setInt(&c.Server.Port, "RAMLDOC_SERVER_PORT")
	setString(&c.Log.Level, "RAMLDOC_LOG_LEVEL")
	setInt(&c.Workers, "RAMLDOC_WORKERS")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
