package config

import "time"

const (
	DefaultBackendURL      = "http://localhost:8000"
	DefaultRequestTimeout  = 60 * time.Second
	DefaultTypewriterDelay = 15 * time.Millisecond
	DefaultFunctionTimeout = 30 * time.Second
	DefaultMaxFunctionHops = 5
	DefaultTitleMaxTokens  = 20
)

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/tinychat",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Backend: BackendConfig{
			URL:            DefaultBackendURL,
			RequestTimeout: DefaultRequestTimeout.String(),
		},
		Generation: GenerationConfig{
			MaxTokens:   100,
			Temperature: 1.0,
			TopP:        1.0,
		},
		Chat: ChatConfig{
			TypewriterDelay: DefaultTypewriterDelay.String(),
			MaxFunctionHops: DefaultMaxFunctionHops,
			FunctionTimeout: DefaultFunctionTimeout.String(),
			TitleMaxTokens:  DefaultTitleMaxTokens,
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# tinychat System Configuration
# Location: ~/.config/tinychat/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations and user config are stored
data_directory = "~/.local/share/tinychat"
`
}

func GenerateUserConfigTemplate() string {
	return `# tinychat User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[backend]
# Chat server URL
url = "http://localhost:8000"

# Timeout for non-streaming requests (completions, function calls, listings)
request_timeout = "1m0s"

[generation]
# Sampling parameters sent with every request
max_tokens = 100
temperature = 1.0
top_p = 1.0

# 0 leaves top_k unset
top_k = 0

# Custom system prompt (optional)
# Example: "You are a concise assistant."
system_prompt = ""

[chat]
# Pause between revealed characters ("0s" disables the animation)
typewriter_delay = "15ms"

# Maximum function calls answered within one reply
max_function_hops = 5

# Time allowed for one function execution
function_timeout = "30s"

# Token budget for generated conversation titles
title_max_tokens = 20
`
}
