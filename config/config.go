// Package config loads the settings of the biu command from a YAML file and
// BIU_* environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/freekieb7/biu/http"
	"github.com/freekieb7/biu/validation"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "BIU"

// Route kinds.
const (
	KindStatic = "static"
	KindText   = "text"
	KindEcho   = "echo"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Routes    []RouteConfig   `yaml:"routes" mapstructure:"routes"`
}

type ServerConfig struct {
	Name            string        `yaml:"name" mapstructure:"name"`
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	Workers         int           `yaml:"workers" mapstructure:"workers"`
	QueueLimit      int           `yaml:"queue_limit" mapstructure:"queue_limit"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure    bool   `yaml:"insecure" mapstructure:"insecure"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// RouteConfig describes one handler mounted by the biu command.
type RouteConfig struct {
	Method      string `yaml:"method" mapstructure:"method"`
	Prefix      string `yaml:"prefix" mapstructure:"prefix"`
	Kind        string `yaml:"kind" mapstructure:"kind"`
	Root        string `yaml:"root,omitempty" mapstructure:"root"`
	Browse      bool   `yaml:"browse,omitempty" mapstructure:"browse"`
	Body        string `yaml:"body,omitempty" mapstructure:"body"`
	ContentType string `yaml:"content_type,omitempty" mapstructure:"content_type"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:            "biu",
			Addr:            ":8080",
			Workers:         http.DefaultWorkers,
			QueueLimit:      0,
			ReadTimeout:     http.DefaultReadTimeout,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "biu",
		},
	}
}

// Load reads path, if given, on top of the defaults. Every scalar key can
// be overridden from the environment, e.g. BIU_SERVER_WORKERS=32.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("server.name", defaults.Server.Name)
	v.SetDefault("server.addr", defaults.Server.Addr)
	v.SetDefault("server.workers", defaults.Server.Workers)
	v.SetDefault("server.queue_limit", defaults.Server.QueueLimit)
	v.SetDefault("server.read_timeout", defaults.Server.ReadTimeout)
	v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	v.SetDefault("telemetry.endpoint", defaults.Telemetry.Endpoint)
	v.SetDefault("telemetry.insecure", defaults.Telemetry.Insecure)
	v.SetDefault("telemetry.service_name", defaults.Telemetry.ServiceName)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	for i := range cfg.Routes {
		cfg.Routes[i].Method = strings.ToUpper(cfg.Routes[i].Method)
	}
	return &cfg, nil
}

var serverRules = map[string][]string{
	"server.addr":             {"required", "hostport"},
	"server.workers":          {"min:1", "max:65536"},
	"server.queue_limit":      {"min:0"},
	"server.read_timeout":     {"duration", "min:0"},
	"server.shutdown_timeout": {"duration", "min:0"},
	"log.level":               {"oneof:debug|info|warn|error"},
	"log.format":              {"oneof:json|text|otel"},
	"telemetry.endpoint":      {"required", "hostport"},
	"telemetry.service_name":  {"required"},
}

var routeRules = map[string][]string{
	"method": {"oneof:GET|HEAD|POST|PUT|PATCH|DELETE|OPTIONS|CONNECT|TRACE"},
	"prefix": {"required", "prefix:/"},
	"kind":   {"oneof:static|text|echo"},
	"root":   {"required"},
}

// Validate reports every invalid setting at once. The returned error is a
// validation.Violations.
func (c *Config) Validate() error {
	violations := validation.ValidateMap(map[string]any{
		"server.addr":             c.Server.Addr,
		"server.workers":          c.Server.Workers,
		"server.queue_limit":      c.Server.QueueLimit,
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"log.level":               c.Log.Level,
		"log.format":              c.Log.Format,
		"telemetry.endpoint":      c.Telemetry.Endpoint,
		"telemetry.service_name":  c.Telemetry.ServiceName,
	}, serverRules)

	for i, route := range c.Routes {
		data := map[string]any{
			"method": route.Method,
			"prefix": route.Prefix,
			"kind":   route.Kind,
		}
		if route.Kind == KindStatic {
			data["root"] = route.Root
		}
		violations.Merge("routes["+strconv.Itoa(i)+"].", validation.ValidateMap(data, routeRules))
	}

	if violations.IsEmpty() {
		return nil
	}
	return violations
}

// SlogLevel converts the configured level name to a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Dump writes the effective configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
