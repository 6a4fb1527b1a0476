package crew

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request is one completion call.
type Request struct {
	System string
	Prompt string
	// JSON asks the model to answer with a JSON document.
	JSON bool
}

// LLM completes prompts.
type LLM interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// LLMFunc adapts a function to LLM.
type LLMFunc func(ctx context.Context, req Request) (string, error)

func (f LLMFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

const (
	DefaultModel       = "ollama/mistral"
	DefaultOllamaURL   = "http://127.0.0.1:11434"
	defaultLLMTimeout  = 10 * time.Minute
	maxErrorBodyLength = 512
)

// Ollama calls the /api/generate endpoint of an Ollama server.
type Ollama struct {
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewOllama creates a client. Provider prefixes such as "ollama/" are removed
// from model.
func NewOllama(baseURL, model string, temperature float64, timeout time.Duration) *Ollama {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOllamaURL
	}
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}
	return &Ollama{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       ModelName(model),
		temperature: temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// ModelName strips a provider prefix from a model id: "ollama/mistral" becomes
// "mistral". An empty id yields the default model.
func ModelName(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		id = DefaultModel
	}
	if i := strings.Index(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

// Model is the model name sent to the server.
func (o *Ollama) Model() string { return o.model }

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (o *Ollama) Complete(ctx context.Context, req Request) (string, error) {
	body := generateRequest{
		Model:   o.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  false,
		Options: map[string]any{"temperature": o.temperature},
	}
	if req.JSON {
		body.Format = "json"
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ollama response: %w", err)
	}
	var out generateResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
			if len(msg) > maxErrorBodyLength {
				msg = msg[:maxErrorBodyLength]
			}
		}
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode ollama response: %w", decodeErr)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama: %s", out.Error)
	}
	return out.Response, nil
}
