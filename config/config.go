package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type BackendConfig struct {
	URL            string `toml:"url"`
	RequestTimeout string `toml:"request_timeout"`
}

type GenerationConfig struct {
	MaxTokens    int     `toml:"max_tokens"`
	Temperature  float64 `toml:"temperature"`
	TopP         float64 `toml:"top_p"`
	TopK         int     `toml:"top_k"`
	SystemPrompt string  `toml:"system_prompt,omitempty"`
}

type ChatConfig struct {
	TypewriterDelay string `toml:"typewriter_delay"`
	MaxFunctionHops int    `toml:"max_function_hops"`
	FunctionTimeout string `toml:"function_timeout"`
	TitleMaxTokens  int    `toml:"title_max_tokens"`
}

type UserConfig struct {
	Backend    BackendConfig    `toml:"backend"`
	Generation GenerationConfig `toml:"generation"`
	Chat       ChatConfig       `toml:"chat"`
}

// Config is the resolved configuration the application runs with
type Config struct {
	DataDirectory  string
	BackendURL     string
	RequestTimeout time.Duration

	MaxTokens    int
	Temperature  float64
	TopP         float64
	TopK         int
	SystemPrompt string

	TypewriterDelay time.Duration
	MaxFunctionHops int
	FunctionTimeout time.Duration
	TitleMaxTokens  int
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// Validate checks that every setting is within the range the backend accepts
func (c *Config) Validate() error {
	switch {
	case c.BackendURL == "":
		return fmt.Errorf("backend url cannot be empty")
	case c.MaxTokens <= 0:
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("temperature must be between 0 and 2, got %g", c.Temperature)
	case c.TopP <= 0 || c.TopP > 1:
		return fmt.Errorf("top_p must be in (0, 1], got %g", c.TopP)
	case c.TopK < 0:
		return fmt.Errorf("top_k cannot be negative, got %d", c.TopK)
	case c.MaxFunctionHops < 1:
		return fmt.Errorf("max_function_hops must be at least 1, got %d", c.MaxFunctionHops)
	case c.TypewriterDelay < 0:
		return fmt.Errorf("typewriter_delay cannot be negative")
	case c.FunctionTimeout <= 0:
		return fmt.Errorf("function_timeout must be positive")
	case c.RequestTimeout <= 0:
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}

func (c *Config) applyUserConfig(u *UserConfig) error {
	c.BackendURL = u.Backend.URL
	c.MaxTokens = u.Generation.MaxTokens
	c.Temperature = u.Generation.Temperature
	c.TopP = u.Generation.TopP
	c.TopK = u.Generation.TopK
	c.SystemPrompt = u.Generation.SystemPrompt
	c.MaxFunctionHops = u.Chat.MaxFunctionHops
	c.TitleMaxTokens = u.Chat.TitleMaxTokens
	if c.TitleMaxTokens <= 0 {
		c.TitleMaxTokens = DefaultTitleMaxTokens
	}

	var err error
	if c.RequestTimeout, err = parseDuration("backend.request_timeout", u.Backend.RequestTimeout, DefaultRequestTimeout); err != nil {
		return err
	}
	if c.TypewriterDelay, err = parseDuration("chat.typewriter_delay", u.Chat.TypewriterDelay, DefaultTypewriterDelay); err != nil {
		return err
	}
	if c.FunctionTimeout, err = parseDuration("chat.function_timeout", u.Chat.FunctionTimeout, DefaultFunctionTimeout); err != nil {
		return err
	}
	return nil
}

// ToUserConfig converts a resolved configuration back to its file form
func ToUserConfig(c *Config) *UserConfig {
	return &UserConfig{
		Backend: BackendConfig{
			URL:            c.BackendURL,
			RequestTimeout: c.RequestTimeout.String(),
		},
		Generation: GenerationConfig{
			MaxTokens:    c.MaxTokens,
			Temperature:  c.Temperature,
			TopP:         c.TopP,
			TopK:         c.TopK,
			SystemPrompt: c.SystemPrompt,
		},
		Chat: ChatConfig{
			TypewriterDelay: c.TypewriterDelay.String(),
			MaxFunctionHops: c.MaxFunctionHops,
			FunctionTimeout: c.FunctionTimeout.String(),
			TitleMaxTokens:  c.TitleMaxTokens,
		},
	}
}

func parseDuration(key, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("TINYCHAT_BACKEND_URL"); url != "" {
		c.BackendURL = url
	}
}

func CheckDebug() bool {
	debug := os.Getenv("TINYCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// Create debug log with secure permissions (0600 - may contain conversation content)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (TINYCHAT_DEBUG=%s) ===", os.Getenv("TINYCHAT_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// Load reads settings.toml for the data directory, then <data_dir>/config.toml,
// creating either from its template when missing. TINYCHAT_DATA_DIR and
// TINYCHAT_BACKEND_URL override the files.
func Load() (*Config, error) {
	cfg := &Config{}

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	cfg.DataDirectory = systemCfg.DataDirectory
	if dataDir := os.Getenv("TINYCHAT_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	if err := cfg.applyUserConfig(userCfg); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
