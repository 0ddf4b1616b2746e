package backend

import (
	"tinychat/model"
)

// DefaultModelName is sent as the model of completion requests; the backend
// serves a single model and ignores it.
const DefaultModelName = "ibm-granite/granite-4.0-1b"

// API endpoints, relative to the backend base URL
const (
	EndpointHealth      = "/health"
	EndpointStream      = "/v1/stream"
	EndpointCompletions = "/v1/chat/completions"
	EndpointFunctions   = "/api/functions"
	EndpointExecute     = "/api/execute_function"
)

// GenerationSettings are the sampling parameters sent with every request
type GenerationSettings struct {
	MaxTokens    int
	Temperature  float64
	TopP         float64
	TopK         int // 0 leaves it unset
	SystemPrompt string
}

// DefaultGenerationSettings returns the settings used when none are configured
func DefaultGenerationSettings() GenerationSettings {
	return GenerationSettings{
		MaxTokens:   100,
		Temperature: 1.0,
		TopP:        1.0,
	}
}

// WireMessage is a message as the backend expects it
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// ChatRequest is the body of a stream or completion request
type ChatRequest struct {
	Messages     []WireMessage `json:"messages"`
	MaxTokens    int           `json:"max_tokens"`
	Temperature  float64       `json:"temperature"`
	TopP         float64       `json:"top_p"`
	TopK         *int          `json:"top_k,omitempty"`
	SystemPrompt *string       `json:"system_prompt,omitempty"`
}

// NewChatRequest builds a request carrying the full history in order
func NewChatRequest(history []model.Message, settings GenerationSettings) ChatRequest {
	msgs := make([]WireMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, WireMessage{Role: m.Role, Content: m.Content, Name: m.Name})
	}

	req := ChatRequest{
		Messages:    msgs,
		MaxTokens:   settings.MaxTokens,
		Temperature: settings.Temperature,
		TopP:        settings.TopP,
	}
	if settings.TopK > 0 {
		k := settings.TopK
		req.TopK = &k
	}
	if settings.SystemPrompt != "" {
		sp := settings.SystemPrompt
		req.SystemPrompt = &sp
	}
	return req
}

// FunctionRequest is the body of a function execution request
type FunctionRequest struct {
	FunctionName string         `json:"function_name"`
	Arguments    map[string]any `json:"arguments"`
}

// FunctionResponse is the backend's answer to a function execution request
type FunctionResponse struct {
	Success      bool   `json:"success"`
	FunctionName string `json:"function_name"`
	Result       any    `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
}

// FunctionDefinition describes a function the backend can execute
type FunctionDefinition struct {
	Name        string
	Description string
	Parameters  string // JSON schema, raw
}
