// Package config loads and hot-reloads the YAML file describing a
// SiriDB cluster: credentials, the endpoint list, and connection
// tuning — env var substitution, validation, defaulting, and an
// fsnotify-backed watcher.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level cluster configuration.
type Config struct {
	Username  string           `yaml:"username"`
	Password  string           `yaml:"password"`
	DBName    string           `yaml:"dbname"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
	Tuning    Tuning           `yaml:"tuning"`
	API       APIConfig        `yaml:"api"`
}

// EndpointConfig is one server entry in the cluster's host list.
type EndpointConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Weight   int    `yaml:"weight"`
	IsBackup bool   `yaml:"is_backup"`
}

// Tuning holds the timing knobs a Cluster is built with.
type Tuning struct {
	KeepAlive         bool          `yaml:"keep_alive"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	InactiveTime      time.Duration `yaml:"inactive_time"`
	MaxWaitRetry      time.Duration `yaml:"max_wait_retry"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
}

// APIConfig configures the optional status/metrics HTTP server.
type APIConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Redacted returns a copy of Config with the password masked, for
// logging the active configuration without leaking credentials.
func (c Config) Redacted() Config {
	out := c
	if out.Password != "" {
		out.Password = "***REDACTED***"
	}
	return out
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment
// variable values, leaving unmatched references untouched.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a cluster YAML config file with env var
// substitution, validation, and defaulting.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Tuning.ConnectTimeout == 0 {
		cfg.Tuning.ConnectTimeout = 10 * time.Second
	}
	if cfg.Tuning.InactiveTime == 0 {
		cfg.Tuning.InactiveTime = 30 * time.Second
	}
	if cfg.Tuning.MaxWaitRetry == 0 {
		cfg.Tuning.MaxWaitRetry = 90 * time.Second
	}
	if cfg.Tuning.KeepAliveInterval == 0 {
		cfg.Tuning.KeepAliveInterval = 45 * time.Second
	}
	if cfg.Tuning.PingTimeout == 0 {
		cfg.Tuning.PingTimeout = 15 * time.Second
	}
	if cfg.API.Bind == "" {
		cfg.API.Bind = "127.0.0.1"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 9020
	}
	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].Weight == 0 {
			cfg.Endpoints[i].Weight = 1
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Username == "" {
		return fmt.Errorf("username is required")
	}
	if cfg.DBName == "" {
		return fmt.Errorf("dbname is required")
	}
	if len(cfg.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}
	for i, ep := range cfg.Endpoints {
		if ep.Host == "" {
			return fmt.Errorf("endpoint %d: host is required", i)
		}
		if ep.Port <= 0 || ep.Port > 65535 {
			return fmt.Errorf("endpoint %d: invalid port %d", i, ep.Port)
		}
		if ep.Weight < 1 || ep.Weight > 9 {
			return fmt.Errorf("endpoint %d: weight %d out of range 1-9", i, ep.Weight)
		}
	}
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", cfg.API.Port)
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback
// with the newly-loaded config, debounced to avoid reloading on every
// intermediate write.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
