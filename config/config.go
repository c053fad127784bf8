// Package config loads crewtui's two-file TOML configuration: a system file
// (~/.config/crewtui/settings.toml) pointing at the data directory, and a
// user file (<data>/config.toml) holding provider, crew and tool settings.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ConfirmPolicy controls when a tool call requires user confirmation.
type ConfirmPolicy string

const (
	ConfirmAuto      ConfirmPolicy = "auto"      // never ask
	ConfirmDangerous ConfirmPolicy = "dangerous" // ask for state-mutating tools
	ConfirmAll       ConfirmPolicy = "all"       // ask for everything
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type ProvidersConfig struct {
	Primary string `toml:"primary"` // anthropic | openai | openrouter
}

type AnthropicConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
	Model   string `toml:"model"`
}

type OpenAIConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
	Model   string `toml:"model"`
}

type OpenRouterConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
	Model   string `toml:"model"`
}

type OllamaConfig struct {
	Host       string `toml:"host"`
	ChatModel  string `toml:"chat_model"`
	CoderModel string `toml:"coder_model"`
}

type BehaviorConfig struct {
	Temperature        float64  `toml:"temperature"`
	CrewTemperature    float64  `toml:"crew_temperature"`
	ToolConfirmation   string   `toml:"tool_confirmation"`
	MaxCycles          int      `toml:"max_cycles"`
	RetryAttempts      int      `toml:"retry_attempts"`
	ToolTimeoutSecs    int      `toml:"tool_timeout_secs"`
	AllowedDirectories []string `toml:"allowed_directories"`
}

type MCPConfig struct {
	Enabled bool     `toml:"enabled"`
	Command string   `toml:"command,omitempty"`
	Args    []string `toml:"args,omitempty"`
}

type UserConfig struct {
	Providers  ProvidersConfig     `toml:"providers"`
	Anthropic  AnthropicConfig     `toml:"anthropic"`
	OpenAI     OpenAIConfig        `toml:"openai"`
	OpenRouter OpenRouterConfig    `toml:"openrouter"`
	Ollama     OllamaConfig        `toml:"ollama"`
	Behavior   BehaviorConfig      `toml:"behavior"`
	Tools      map[string][]string `toml:"tools"`   // role id -> tool allowlist
	Prompts    map[string]string   `toml:"prompts"` // role id -> prompt override
	MCP        MCPConfig           `toml:"mcp"`
}

// Config is the flattened runtime configuration.
type Config struct {
	DataDirectory string

	PrimaryProvider string
	Anthropic       AnthropicConfig
	OpenAI          OpenAIConfig
	OpenRouter      OpenRouterConfig
	Ollama          OllamaConfig

	Temperature     float64
	CrewTemperature float64
	Confirmation    ConfirmPolicy
	MaxCycles       int
	RetryAttempts   int
	ToolTimeout     time.Duration
	AllowedDirs     []string

	RoleTools   map[string][]string
	RolePrompts map[string]string

	MCP MCPConfig
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// AllowedRoots returns the sandbox roots for file tools as absolute paths.
// An empty configuration means the current working directory only.
func (c *Config) AllowedRoots() []string {
	dirs := c.AllowedDirs
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	roots := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(ExpandPath(d))
		if err != nil {
			continue
		}
		roots = append(roots, abs)
	}
	return roots
}

func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("CREWTUI_OLLAMA_HOST"); host != "" {
		c.Ollama.Host = host
	}
	if provider := os.Getenv("CREWTUI_PROVIDER"); provider != "" {
		c.PrimaryProvider = provider
	}
	if dataDir := os.Getenv("CREWTUI_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if v := os.Getenv("CREWTUI_TOOL_CONFIRMATION"); v != "" {
		c.Confirmation = ConfirmPolicy(v)
	}
	if v := os.Getenv("CREWTUI_MAX_CYCLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxCycles = n
		}
	}
}

func CheckDebug() bool {
	debug := os.Getenv("CREWTUI_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// 0600 - the debug log can contain prompt and tool-call contents
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (CREWTUI_DEBUG=%s) ===", os.Getenv("CREWTUI_DEBUG"))
}

// Load reads the system and user config files, merges defaults, applies env
// overrides and ensures the data directory exists.
func Load() (*Config, error) {
	cfg := fromUserConfig(DefaultUserConfig(), DefaultSystemConfig())

	settingsPath := GetSettingsFilePath()
	if FileExists(settingsPath) {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		cfg.DataDirectory = systemCfg.DataDirectory

		userCfg, err := LoadUserConfig(cfg.DataDir())
		if err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
		cfg = fromUserConfig(userCfg, systemCfg)
	}

	cfg.applyEnvOverrides()

	switch cfg.Confirmation {
	case ConfirmAuto, ConfirmDangerous, ConfirmAll:
	default:
		return nil, fmt.Errorf("invalid tool_confirmation policy: %q", cfg.Confirmation)
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// fromUserConfig flattens the TOML structures into the runtime Config,
// filling gaps from the defaults.
func fromUserConfig(u *UserConfig, s *SystemConfig) *Config {
	d := DefaultUserConfig()

	if u.Providers.Primary == "" {
		u.Providers.Primary = d.Providers.Primary
	}
	if u.Ollama.Host == "" {
		u.Ollama.Host = d.Ollama.Host
	}
	if u.Ollama.ChatModel == "" {
		u.Ollama.ChatModel = d.Ollama.ChatModel
	}
	if u.Ollama.CoderModel == "" {
		u.Ollama.CoderModel = d.Ollama.CoderModel
	}
	if u.Behavior.ToolConfirmation == "" {
		u.Behavior.ToolConfirmation = d.Behavior.ToolConfirmation
	}
	if u.Behavior.MaxCycles <= 0 {
		u.Behavior.MaxCycles = d.Behavior.MaxCycles
	}
	if u.Behavior.RetryAttempts <= 0 {
		u.Behavior.RetryAttempts = d.Behavior.RetryAttempts
	}
	if u.Behavior.ToolTimeoutSecs <= 0 {
		u.Behavior.ToolTimeoutSecs = d.Behavior.ToolTimeoutSecs
	}
	if u.Behavior.Temperature == 0 {
		u.Behavior.Temperature = d.Behavior.Temperature
	}

	tools := d.Tools
	if len(u.Tools) > 0 {
		// Roles absent from the user file keep their defaults.
		merged := make(map[string][]string, len(tools))
		for k, v := range tools {
			merged[k] = v
		}
		for k, v := range u.Tools {
			merged[k] = v
		}
		tools = merged
	}

	return &Config{
		DataDirectory:   s.DataDirectory,
		PrimaryProvider: u.Providers.Primary,
		Anthropic:       u.Anthropic,
		OpenAI:          u.OpenAI,
		OpenRouter:      u.OpenRouter,
		Ollama:          u.Ollama,
		Temperature:     u.Behavior.Temperature,
		CrewTemperature: u.Behavior.CrewTemperature,
		Confirmation:    ConfirmPolicy(u.Behavior.ToolConfirmation),
		MaxCycles:       u.Behavior.MaxCycles,
		RetryAttempts:   u.Behavior.RetryAttempts,
		ToolTimeout:     time.Duration(u.Behavior.ToolTimeoutSecs) * time.Second,
		AllowedDirs:     u.Behavior.AllowedDirectories,
		RoleTools:       tools,
		RolePrompts:     u.Prompts,
		MCP:             u.MCP,
	}
}
