package config

import (
	"fmt"
	"strconv"
	"strings"
)

// SettingKeys lists the keys UpdateUserSetting accepts, as section.field
var SettingKeys = []string{
	"backend.url",
	"backend.request_timeout",
	"generation.max_tokens",
	"generation.temperature",
	"generation.top_p",
	"generation.top_k",
	"generation.system_prompt",
	"chat.typewriter_delay",
	"chat.max_function_hops",
	"chat.function_timeout",
	"chat.title_max_tokens",
}

// UpdateUserSetting sets a single key of <data_dir>/config.toml. The file is
// only written when the resulting configuration is valid.
func UpdateUserSetting(dataDir, key, value string) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := setUserValue(cfg, key, strings.TrimSpace(value)); err != nil {
		return err
	}

	probe := &Config{}
	if err := probe.applyUserConfig(cfg); err != nil {
		return err
	}
	if err := probe.Validate(); err != nil {
		return err
	}

	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	if DebugLog != nil {
		DebugLog.Printf("[Config] Set %s", key)
	}
	return nil
}

// UpdateDataDirectory points settings.toml at a new data directory
func UpdateDataDirectory(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	cfg, err := LoadSystemConfig()
	if err != nil {
		return err
	}
	cfg.DataDirectory = dir

	if err := SaveSystemConfig(cfg); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

func setUserValue(cfg *UserConfig, key, value string) error {
	var err error
	switch key {
	case "backend.url":
		cfg.Backend.URL = value
	case "backend.request_timeout":
		cfg.Backend.RequestTimeout = value
	case "generation.max_tokens":
		cfg.Generation.MaxTokens, err = strconv.Atoi(value)
	case "generation.temperature":
		cfg.Generation.Temperature, err = strconv.ParseFloat(value, 64)
	case "generation.top_p":
		cfg.Generation.TopP, err = strconv.ParseFloat(value, 64)
	case "generation.top_k":
		cfg.Generation.TopK, err = strconv.Atoi(value)
	case "generation.system_prompt":
		cfg.Generation.SystemPrompt = value
	case "chat.typewriter_delay":
		cfg.Chat.TypewriterDelay = value
	case "chat.max_function_hops":
		cfg.Chat.MaxFunctionHops, err = strconv.Atoi(value)
	case "chat.function_timeout":
		cfg.Chat.FunctionTimeout = value
	case "chat.title_max_tokens":
		cfg.Chat.TitleMaxTokens, err = strconv.Atoi(value)
	default:
		return fmt.Errorf("unknown setting %q (known: %s)", key, strings.Join(SettingKeys, ", "))
	}

	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
