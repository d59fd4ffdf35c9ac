package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Client calls the OpenRouter chat-completions API with bounded retries,
// exponential backoff, and Retry-After handling.
type Client struct {
	apiKey           string
	httpClient       *http.Client
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	baseURL          string
}

// NewClient builds an OpenRouter client. Zero retry knobs fall back to
// sane defaults.
func NewClient(apiKey string, timeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *Client {
	if retryMax < 1 {
		retryMax = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Client{
		apiKey:           apiKey,
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
		baseURL:          openRouterBaseURL,
	}
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is a provider-neutral completion request.
type GenerateRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type Choice struct {
	Message Message `json:"message"`
}

// GenerateResponse carries the completion plus the provider request id for
// support tickets.
type GenerateResponse struct {
	Choices   []Choice
	RequestID string
}

// Generate performs the request, retrying rate limits, server errors, and
// transient network failures. Auth and request-shape errors return
// immediately as their typed forms.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, &AuthError{Msg: "missing OpenRouter API key"}
	}
	payload := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	delay := c.retryBaseDelay
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		resp, retry, err := c.doGenerate(ctx, req.Model, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retry || attempt == c.retryMaxAttempts {
			return nil, err
		}
		wait := withJitter(delay)
		var rlErr *RateLimitError
		if errors.As(err, &rlErr) && rlErr.RetryAfter > 0 {
			wait = rlErr.RetryAfter
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
		if delay > c.retryMaxDelay {
			delay = c.retryMaxDelay
		}
	}
	return nil, lastErr
}

func (c *Client) doGenerate(ctx context.Context, model string, body []byte) (*GenerateResponse, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("HTTP-Referer", "https://github.com/KaramelBytes/savloom-cli")
	httpReq.Header.Set("X-Title", "Savloom CLI")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, isRetryableNetErr(err), &UnreachableError{Host: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	reqID := extractRequestID(resp.Header)

	if resp.StatusCode == http.StatusOK {
		var out struct {
			ID      string   `json:"id"`
			Choices []Choice `json:"choices"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, false, fmt.Errorf("parse response: %w", err)
		}
		if reqID == "" {
			reqID = out.ID
		}
		return &GenerateResponse{Choices: out.Choices, RequestID: reqID}, false, nil
	}

	apiErr := parseAPIError(resp.StatusCode, data, reqID)
	classified := classifyAPIError(apiErr, retryAfterFrom(resp.Header), model)
	return nil, retryableStatus(resp.StatusCode), classified
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func parseAPIError(status int, body []byte, requestID string) *APIError {
	e := &APIError{Status: status, RequestID: requestID}
	var wire struct {
		Error struct {
			Message string          `json:"message"`
			Code    json.RawMessage `json:"code"`
			Type    string          `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wire); err == nil && wire.Error.Message != "" {
		e.Message = wire.Error.Message
		if len(wire.Error.Code) > 0 && string(wire.Error.Code) != "null" {
			e.Code = strings.Trim(string(wire.Error.Code), `"`)
		}
		if e.Code == "" {
			e.Code = wire.Error.Type
		}
		return e
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	e.Message = msg
	return e
}

// classifyAPIError maps a provider error onto the typed error set. The 400
// family needs message heuristics because providers disagree on codes.
func classifyAPIError(e *APIError, retryAfter time.Duration, model string) error {
	msg := e.Error()
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return &AuthError{Msg: msg}
	case e.Status == http.StatusTooManyRequests:
		return &RateLimitError{Msg: msg, RetryAfter: retryAfter}
	case e.Status == http.StatusPaymentRequired:
		return &QuotaExceededError{Msg: msg}
	case e.Status == http.StatusNotFound:
		return &ModelNotFoundError{Model: model, Msg: msg}
	case e.Status == http.StatusBadRequest:
		if containsAnyFold(e.Message, "quota", "billing", "credit", "insufficient") {
			return &QuotaExceededError{Msg: msg}
		}
		if containsFold(e.Code, "model_not_found") || containsAllFold(e.Message, "model", "not found") {
			return &ModelNotFoundError{Model: model, Msg: msg}
		}
		return &BadRequestError{Msg: msg}
	case e.Status >= 500:
		return &ServerError{Status: e.Status, Msg: msg}
	default:
		return e
	}
}

func retryAfterFrom(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func extractRequestID(h http.Header) string {
	for _, k := range []string{"X-Request-Id", "Request-Id", "Cf-Ray"} {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return ""
}

func isRetryableNetErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF)
}

// withJitter spreads retry delays over 0.8x-1.2x of the nominal backoff.
func withJitter(d time.Duration) time.Duration {
	f := 0.8 + rand.Float64()*0.4
	return time.Duration(float64(d) * f)
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func containsAnyFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if containsFold(s, sub) {
			return true
		}
	}
	return false
}

func containsAllFold(s string, subs ...string) bool {
	for _, sub := range subs {
		if !containsFold(s, sub) {
			return false
		}
	}
	return true
}
