package advisor

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

// OllamaClient drives a local Ollama server through its chat API. No API
// key, no retries: the server is either there or it is not.
type OllamaClient struct {
	host       string
	httpClient *http.Client
}

// NewOllamaClient builds a client for the given host, defaulting to the
// standard local port.
func NewOllamaClient(host string, timeout time.Duration) *OllamaClient {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	return &OllamaClient{host: host, httpClient: &http.Client{Timeout: timeout}}
}

// Generate sends one non-streaming chat request.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
	}
	opts := map[string]any{}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if len(opts) > 0 {
		payload["options"] = opts
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UnreachableError{Host: c.host, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		switch {
		case resp.StatusCode == http.StatusNotFound || containsFold(msg, "not found"):
			return nil, &ModelNotFoundError{Model: req.Model, Msg: msg}
		case resp.StatusCode >= 500:
			return nil, &ServerError{Status: resp.StatusCode, Msg: msg}
		default:
			return nil, &BadRequestError{Msg: msg}
		}
	}

	var out struct {
		Message Message `json:"message"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &GenerateResponse{
		// Ollama has no request ids; synthesize one for log correlation.
		RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
		Choices:   []Choice{{Message: out.Message}},
	}, nil
}
