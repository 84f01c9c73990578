// Package config loads service settings.
//
// Priority: defaults, then the YAML file, then a .env file, then STATUS_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"go-status-sse/internal/infrastructure/logger"
)

const EnvPrefix = "STATUS_"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Publisher PublisherConfig `yaml:"publisher"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Stream    StreamConfig    `yaml:"stream"`
	Agent     AgentConfig     `yaml:"agent"`
	Log       logger.Config   `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	// WriteTimeout stays zero for long-lived streams.
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	APIKey          string        `yaml:"api_key"`
}

type PublisherConfig struct {
	Interval   time.Duration `yaml:"interval"`
	TimeFormat string        `yaml:"time_format"`
}

type MonitorConfig struct {
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	MaxRecentEvents  int           `yaml:"max_recent_events"`
}

type StreamConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Transport  string        `yaml:"transport"` // sse, websocket
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type AgentConfig struct {
	ClientID   string        `yaml:"client_id"`
	ServerURL  string        `yaml:"server_url"`
	APIKey     string        `yaml:"api_key"`
	Interval   time.Duration `yaml:"interval"`
	MaxRetries int           `yaml:"max_retries"`
	WatchPaths []string      `yaml:"watch_paths"`
	IgnoreExt  []string      `yaml:"ignore_ext"`
	Recursive  bool          `yaml:"recursive"`
}

func Default() *Config {
	hostname, _ := os.Hostname()

	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			APIKey:          "your-secret-key-123",
		},
		Publisher: PublisherConfig{
			Interval:   time.Second,
			TimeFormat: "2006-01-02 15:04:05",
		},
		Monitor: MonitorConfig{
			HeartbeatTimeout: 90 * time.Second,
			MaxRecentEvents:  50,
		},
		Stream: StreamConfig{
			BaseURL:    "http://localhost:8080",
			Transport:  "sse",
			RetryDelay: 3 * time.Second,
		},
		Agent: AgentConfig{
			ClientID:   hostname,
			ServerURL:  "http://localhost:8080",
			APIKey:     "your-secret-key-123",
			Interval:   30 * time.Second,
			MaxRetries: 3,
			Recursive:  true,
		},
		Log: *logger.NewDefaultConfig(),
	}
}

// Load builds the configuration. An empty path skips the YAML file; a missing
// .env file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SERVER_ADDR":      &c.Server.Addr,
		"API_KEY":          &c.Server.APIKey,
		"STREAM_BASE_URL":  &c.Stream.BaseURL,
		"STREAM_TRANSPORT": &c.Stream.Transport,
		"AGENT_CLIENT_ID":  &c.Agent.ClientID,
		"AGENT_SERVER_URL": &c.Agent.ServerURL,
		"AGENT_API_KEY":    &c.Agent.APIKey,
		"LOG_FORMAT":       &c.Log.Format,
		"LOG_OUTPUT":       &c.Log.Output,
		"LOG_FILE":         &c.Log.FilePath,
		"LOG_ERROR_FILE":   &c.Log.ErrorFilePath,
	}
	for key, dst := range strs {
		if v, ok := lookupEnv(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"PUBLISHER_INTERVAL":        &c.Publisher.Interval,
		"MONITOR_HEARTBEAT_TIMEOUT": &c.Monitor.HeartbeatTimeout,
		"STREAM_RETRY_DELAY":        &c.Stream.RetryDelay,
		"AGENT_INTERVAL":            &c.Agent.Interval,
	}
	for key, dst := range durations {
		if v, ok := lookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"MONITOR_MAX_RECENT_EVENTS": &c.Monitor.MaxRecentEvents,
		"AGENT_MAX_RETRIES":         &c.Agent.MaxRetries,
	}
	for key, dst := range ints {
		if v, ok := lookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	lists := map[string]*[]string{
		"AGENT_WATCH_PATHS": &c.Agent.WatchPaths,
		"AGENT_IGNORE_EXT":  &c.Agent.IgnoreExt,
	}
	for key, dst := range lists {
		if v, ok := lookupEnv(key); ok {
			*dst = splitList(v)
		}
	}

	if v, ok := lookupEnv("AGENT_RECURSIVE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sAGENT_RECURSIVE: %w", EnvPrefix, err)
		}
		c.Agent.Recursive = b
	}

	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		level, err := logger.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("%sLOG_LEVEL: %w", EnvPrefix, err)
		}
		c.Log.Level = level
	}

	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// splitList accepts comma or semicolon separated values.
func splitList(v string) []string {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if c.Publisher.Interval <= 0 {
		errs = append(errs, errors.New("publisher.interval must be positive"))
	}
	if c.Monitor.HeartbeatTimeout <= 0 {
		errs = append(errs, errors.New("monitor.heartbeat_timeout must be positive"))
	}
	if c.Monitor.MaxRecentEvents <= 0 {
		errs = append(errs, errors.New("monitor.max_recent_events must be positive"))
	}
	if c.Stream.RetryDelay <= 0 {
		errs = append(errs, errors.New("stream.retry_delay must be positive"))
	}
	switch c.Stream.Transport {
	case "sse", "websocket":
	default:
		errs = append(errs, fmt.Errorf("stream.transport %q is not one of sse, websocket", c.Stream.Transport))
	}
	if c.Agent.Interval <= 0 {
		errs = append(errs, errors.New("agent.interval must be positive"))
	}
	if c.Agent.MaxRetries < 1 {
		errs = append(errs, errors.New("agent.max_retries must be at least 1"))
	}

	return errors.Join(errs...)
}
