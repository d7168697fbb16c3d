package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

type RuntimeConfig struct {
	Bind     string
	Port     string
	StateDir string
	LogLevel string

	// Download server discovery
	ServerHost      string
	ServerScheme    string
	HealthPath      string
	ExpectedApp     string
	DefaultPort     int
	PortRangeStart  int
	PortRangeEnd    int
	ProbeTimeout    time.Duration
	ScanBatchSize   int
	BackoffFloor    time.Duration
	BackoffCap      time.Duration
	HealthInterval  time.Duration
	NetworkInterval time.Duration

	// Chrome attachment for page watching (empty disables the watcher)
	CdpURL        string
	WatchInterval time.Duration
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return h
}

func (c *RuntimeConfig) ListenAddr() string {
	return c.Bind + ":" + c.Port
}

// ServerBaseURL builds the download-server base URL for a candidate port.
func (c *RuntimeConfig) ServerBaseURL(port int) string {
	return fmt.Sprintf("%s://%s:%d", c.ServerScheme, c.ServerHost, port)
}

type FileConfig struct {
	Bind            string `json:"bind,omitempty"`
	Port            string `json:"port,omitempty"`
	StateDir        string `json:"stateDir,omitempty"`
	LogLevel        string `json:"logLevel,omitempty"`
	ServerHost      string `json:"serverHost,omitempty"`
	DefaultPort     int    `json:"defaultPort,omitempty"`
	PortRangeStart  int    `json:"portRangeStart,omitempty"`
	PortRangeEnd    int    `json:"portRangeEnd,omitempty"`
	ProbeTimeoutMs  int    `json:"probeTimeoutMs,omitempty"`
	ScanBatchSize   int    `json:"scanBatchSize,omitempty"`
	HealthSec       int    `json:"healthSec,omitempty"`
	CdpURL          string `json:"cdpUrl,omitempty"`
	WatchSec        int    `json:"watchSec,omitempty"`
}

func Load() *RuntimeConfig {
	cfg := &RuntimeConfig{
		Bind:            envOr("GRABWIRE_BIND", "127.0.0.1"),
		Port:            envOr("GRABWIRE_PORT", "9345"),
		StateDir:        envOr("GRABWIRE_STATE_DIR", filepath.Join(homeDir(), ".grabwire")),
		LogLevel:        envOr("GRABWIRE_LOG", "info"),
		ServerHost:      envOr("GRABWIRE_SERVER_HOST", "127.0.0.1"),
		ServerScheme:    "http",
		HealthPath:      "/health",
		ExpectedApp:     envOr("GRABWIRE_SERVER_APP", "videodownloader-server"),
		DefaultPort:     envIntOr("GRABWIRE_SERVER_PORT", 9090),
		PortRangeStart:  envIntOr("GRABWIRE_PORT_RANGE_START", 9090),
		PortRangeEnd:    envIntOr("GRABWIRE_PORT_RANGE_END", 9090),
		ProbeTimeout:    envDurationOr("GRABWIRE_PROBE_TIMEOUT", 2*time.Second),
		ScanBatchSize:   envIntOr("GRABWIRE_SCAN_BATCH", 5),
		BackoffFloor:    time.Second,
		BackoffCap:      60 * time.Second,
		HealthInterval:  envDurationOr("GRABWIRE_HEALTH_INTERVAL", 15*time.Second),
		NetworkInterval: envDurationOr("GRABWIRE_NETWORK_INTERVAL", 5*time.Second),
		CdpURL:          os.Getenv("CDP_URL"),
		WatchInterval:   envDurationOr("GRABWIRE_WATCH_INTERVAL", 3*time.Second),
	}

	if cfg.PortRangeEnd < cfg.PortRangeStart {
		cfg.PortRangeEnd = cfg.PortRangeStart
	}
	if cfg.ScanBatchSize < 1 {
		cfg.ScanBatchSize = 1
	}

	configPath := envOr("GRABWIRE_CONFIG", filepath.Join(homeDir(), ".grabwire", "config.json"))

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var fc FileConfig
	// Config files may carry comments; strip them before decoding.
	if err := json.Unmarshal(jsonc.ToJSON(data), &fc); err != nil {
		return cfg
	}

	if fc.Bind != "" && os.Getenv("GRABWIRE_BIND") == "" {
		cfg.Bind = fc.Bind
	}
	if fc.Port != "" && os.Getenv("GRABWIRE_PORT") == "" {
		cfg.Port = fc.Port
	}
	if fc.StateDir != "" && os.Getenv("GRABWIRE_STATE_DIR") == "" {
		cfg.StateDir = fc.StateDir
	}
	if fc.LogLevel != "" && os.Getenv("GRABWIRE_LOG") == "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.ServerHost != "" && os.Getenv("GRABWIRE_SERVER_HOST") == "" {
		cfg.ServerHost = fc.ServerHost
	}
	if fc.DefaultPort > 0 && os.Getenv("GRABWIRE_SERVER_PORT") == "" {
		cfg.DefaultPort = fc.DefaultPort
	}
	if fc.PortRangeStart > 0 && os.Getenv("GRABWIRE_PORT_RANGE_START") == "" {
		cfg.PortRangeStart = fc.PortRangeStart
	}
	if fc.PortRangeEnd > 0 && os.Getenv("GRABWIRE_PORT_RANGE_END") == "" {
		cfg.PortRangeEnd = fc.PortRangeEnd
	}
	if fc.PortRangeEnd < fc.PortRangeStart && fc.PortRangeStart > 0 {
		cfg.PortRangeEnd = cfg.PortRangeStart
	}
	if fc.ProbeTimeoutMs > 0 && os.Getenv("GRABWIRE_PROBE_TIMEOUT") == "" {
		cfg.ProbeTimeout = time.Duration(fc.ProbeTimeoutMs) * time.Millisecond
	}
	if fc.ScanBatchSize > 0 && os.Getenv("GRABWIRE_SCAN_BATCH") == "" {
		cfg.ScanBatchSize = fc.ScanBatchSize
	}
	if fc.HealthSec > 0 && os.Getenv("GRABWIRE_HEALTH_INTERVAL") == "" {
		cfg.HealthInterval = time.Duration(fc.HealthSec) * time.Second
	}
	if fc.CdpURL != "" && os.Getenv("CDP_URL") == "" {
		cfg.CdpURL = fc.CdpURL
	}
	if fc.WatchSec > 0 && os.Getenv("GRABWIRE_WATCH_INTERVAL") == "" {
		cfg.WatchInterval = time.Duration(fc.WatchSec) * time.Second
	}

	return cfg
}

func DefaultFileConfig() FileConfig {
	return FileConfig{
		Port:           "9345",
		StateDir:       filepath.Join(homeDir(), ".grabwire"),
		ServerHost:     "127.0.0.1",
		DefaultPort:    9090,
		PortRangeStart: 9090,
		PortRangeEnd:   9090,
		ProbeTimeoutMs: 2000,
		ScanBatchSize:  5,
		HealthSec:      15,
	}
}

func HandleConfigCommand(cfg *RuntimeConfig) {
	if len(os.Args) < 3 {
		fmt.Println("Usage: grabwire config <command>")
		fmt.Println("Commands:")
		fmt.Println("  init    - Create default config file")
		fmt.Println("  show    - Show current configuration")
		return
	}

	switch os.Args[2] {
	case "init":
		configPath := filepath.Join(homeDir(), ".grabwire", "config.json")

		if _, err := os.Stat(configPath); err == nil {
			fmt.Printf("Config file already exists at %s\n", configPath)
			fmt.Print("Overwrite? (y/N): ")
			var response string
			_, _ = fmt.Scanln(&response)
			if response != "y" && response != "Y" {
				return
			}
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			fmt.Printf("Error creating directory: %v\n", err)
			os.Exit(1)
		}

		fc := DefaultFileConfig()
		data, _ := json.MarshalIndent(fc, "", "  ")
		if err := os.WriteFile(configPath, data, 0644); err != nil {
			fmt.Printf("Error writing config: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Config file created at %s\n", configPath)
	case "show":
		out := map[string]any{
			"bind":           cfg.Bind,
			"port":           cfg.Port,
			"stateDir":       cfg.StateDir,
			"logLevel":       cfg.LogLevel,
			"serverHost":     cfg.ServerHost,
			"defaultPort":    cfg.DefaultPort,
			"portRangeStart": cfg.PortRangeStart,
			"portRangeEnd":   cfg.PortRangeEnd,
			"probeTimeout":   cfg.ProbeTimeout.String(),
			"scanBatchSize":  cfg.ScanBatchSize,
			"backoffFloor":   cfg.BackoffFloor.String(),
			"backoffCap":     cfg.BackoffCap.String(),
			"healthInterval": cfg.HealthInterval.String(),
			"cdpUrl":         cfg.CdpURL,
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
	default:
		fmt.Printf("Unknown config command: %s\n", os.Args[2])
		os.Exit(2)
	}
}

// SlogLevel maps the configured level string onto a slog level.
func (c *RuntimeConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
