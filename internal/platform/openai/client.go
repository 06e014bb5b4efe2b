// Package openai wraps the OpenAI Responses API behind the two calls the
// backend makes: structured JSON generation and plain text generation.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/carelattice/taxonomy-backend/internal/observability"
	"github.com/carelattice/taxonomy-backend/internal/pkg/httpx"
	"github.com/carelattice/taxonomy-backend/internal/platform/envutil"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
	"github.com/carelattice/taxonomy-backend/internal/platform/promptstyle"
)

type Client interface {
	// Structured outputs (json_schema, strict).
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)

	// Plain text (no schema).
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

// WithModel returns a client that uses the provided model for generation
// calls. If model is empty or base is nil, it returns the base client
// unchanged.
func WithModel(base Client, model string) Client {
	model = strings.TrimSpace(model)
	if base == nil || model == "" {
		return base
	}
	if c, ok := base.(*client); ok {
		return c.cloneWithModel(model)
	}
	return base
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	maxRetries int
	backoff    httpx.Backoff

	// Temperature control (client-level)
	temperature        *float64
	disableTemperature bool

	// Optional static denylist from env (so a known model never triggers
	// the first-failure retry).
	noTempModels   map[string]bool
	noTempPrefixes []string

	// Runtime learning: if a model rejects temperature, remember for TTL
	// and omit thereafter.
	noTempMu   sync.RWMutex
	noTempSeen map[string]time.Time
	noTempTTL  time.Duration
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := envutil.Str("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimRight(envutil.Str("OPENAI_BASE_URL", "https://api.openai.com"), "/")
	model := envutil.Str("OPENAI_MODEL", "gpt-5.2")
	timeout := envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 180*time.Second)
	maxRetries := envutil.Int("OPENAI_MAX_RETRIES", 4)
	if maxRetries < 0 {
		maxRetries = 0
	}

	// Temperature: default 0.2, but can be disabled or overridden.
	disableTemperature := envutil.Bool("OPENAI_DISABLE_TEMPERATURE", false)
	var tempPtr *float64
	if !disableTemperature {
		switch strings.ToLower(envutil.Str("OPENAI_TEMPERATURE", "")) {
		case "off", "none", "false":
			disableTemperature = true
		default:
			temp := envutil.Float("OPENAI_TEMPERATURE", 0.2)
			tempPtr = &temp
		}
	}

	noTempModels, noTempPrefixes := parseNoTempModelRules(envutil.Str("OPENAI_NO_TEMPERATURE_MODELS", ""))

	return &client{
		log:                log.With("service", "OpenAIClient"),
		baseURL:            baseURL,
		apiKey:             apiKey,
		model:              model,
		httpClient:         &http.Client{Timeout: timeout},
		maxRetries:         maxRetries,
		backoff:            httpx.Backoff{Base: time.Second, Max: 10 * time.Second},
		temperature:        tempPtr,
		disableTemperature: disableTemperature,
		noTempModels:       noTempModels,
		noTempPrefixes:     noTempPrefixes,
		noTempSeen:         map[string]time.Time{},
		noTempTTL:          envutil.Seconds("OPENAI_NO_TEMPERATURE_TTL_SECONDS", 24*time.Hour),
	}, nil
}

func (c *client) cloneWithModel(model string) *client {
	if c == nil || strings.TrimSpace(model) == "" {
		return c
	}
	clone := &client{
		log:                c.log,
		baseURL:            c.baseURL,
		apiKey:             c.apiKey,
		model:              strings.TrimSpace(model),
		httpClient:         c.httpClient,
		maxRetries:         c.maxRetries,
		backoff:            c.backoff,
		temperature:        c.temperature,
		disableTemperature: c.disableTemperature,
		noTempModels:       c.noTempModels,
		noTempPrefixes:     c.noTempPrefixes,
		noTempSeen:         map[string]time.Time{},
		noTempTTL:          c.noTempTTL,
	}

	c.noTempMu.RLock()
	for k, v := range c.noTempSeen {
		clone.noTempSeen[k] = v
	}
	c.noTempMu.RUnlock()

	return clone
}

func normalizeModelKey(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

// OPENAI_NO_TEMPERATURE_MODELS: comma-separated list, supports "*" suffix
// for prefix match, e.g. "o1-*, gpt-5-chat-latest".
func parseNoTempModelRules(raw string) (map[string]bool, []string) {
	m := map[string]bool{}
	var prefixes []string
	for _, part := range strings.Split(raw, ",") {
		s := normalizeModelKey(part)
		if s == "" {
			continue
		}
		if strings.HasSuffix(s, "*") {
			p := strings.TrimSpace(strings.TrimRight(strings.TrimSuffix(s, "*"), "-_./:"))
			if p != "" {
				prefixes = append(prefixes, p)
			}
			continue
		}
		m[s] = true
	}
	return m, prefixes
}

func (c *client) modelIsNoTemp(model string) bool {
	m := normalizeModelKey(model)
	if m == "" {
		return false
	}
	if c.noTempModels != nil && c.noTempModels[m] {
		return true
	}
	for _, p := range c.noTempPrefixes {
		if p != "" && strings.HasPrefix(m, p) {
			return true
		}
	}

	c.noTempMu.RLock()
	ts, ok := c.noTempSeen[m]
	ttl := c.noTempTTL
	c.noTempMu.RUnlock()
	if !ok {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return time.Since(ts) < ttl
}

func (c *client) noteNoTempModel(model string) {
	m := normalizeModelKey(model)
	if m == "" {
		return
	}
	c.noTempMu.Lock()
	c.noTempSeen[m] = time.Now().UTC()
	c.noTempMu.Unlock()
}

func (c *client) applyTemperature(req *responsesRequest) {
	if req == nil || c.disableTemperature || c.temperature == nil {
		return
	}
	if c.modelIsNoTemp(req.Model) {
		return
	}
	req.Temperature = c.temperature
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func isUnsupportedTemperatureMessage(s string) bool {
	msg := strings.ToLower(strings.TrimSpace(s))
	if msg == "" || !strings.Contains(msg, "temperature") {
		return false
	}
	for _, hint := range []string{
		"unsupported parameter",
		"unknown parameter",
		"unrecognized parameter",
		"not supported",
		"does not support",
		"only the default",
		"unsupported_value",
		"invalid_request_error",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func isUnsupportedTemperatureParam(err error) bool {
	return err != nil && isUnsupportedTemperatureMessage(err.Error())
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &openAIHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	start := time.Now()
	model := extractModelFromRequest(body)

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if metrics := observability.Current(); metrics != nil {
				inputTokens, outputTokens := extractUsageFromRaw(raw)
				metrics.ObserveLLMRequest(model, path, statusFromResp(resp), time.Since(start), inputTokens, outputTokens)
			}
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryable(err) || attempt == c.maxRetries {
			if metrics := observability.Current(); metrics != nil {
				metrics.ObserveLLMRequest(model, path, statusFromRespErr(resp, err), time.Since(start), 0, 0)
			}
			return err
		}

		sleepFor := c.backoff.Next(attempt, resp)
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
	}

	return fmt.Errorf("unreachable retry loop")
}

// doWithTempFallback retries exactly once without temperature if the model
// rejects it, and remembers the model so later calls omit it up front.
func (c *client) doWithTempFallback(ctx context.Context, method, path string, req *responsesRequest, out any) error {
	err := c.do(ctx, method, path, req, out)
	if err == nil || req == nil || req.Temperature == nil {
		return err
	}
	if !isUnsupportedTemperatureParam(err) {
		return err
	}

	c.noteNoTempModel(req.Model)
	req.Temperature = nil
	return c.do(ctx, method, path, req, out)
}

// -------------------- Responses API --------------------

type responsesRequest struct {
	Model string `json:"model"`

	Input []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"input"`

	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func newResponsesRequest(model, system, user string) responsesRequest {
	return responsesRequest{
		Model: model,
		Input: []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
}

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}
	system = promptstyle.ApplySystem(system, "json")

	req := newResponsesRequest(c.model, system, user)
	c.applyTemperature(&req)
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, "POST", "/v1/responses", &req, &resp); err != nil {
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, fmt.Errorf("model refused: %s", resp.Refusal)
	}

	jsonText := extractOutputText(resp)
	if strings.TrimSpace(jsonText) == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w; text=%s", err, jsonText)
	}
	return obj, nil
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	system = promptstyle.ApplySystem(system, "text")

	req := newResponsesRequest(c.model, system, user)
	c.applyTemperature(&req)

	var resp responsesResponse
	if err := c.doWithTempFallback(ctx, "POST", "/v1/responses", &req, &resp); err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no output_text found in response")
	}
	return text, nil
}

// -------------------- Metrics helpers --------------------

func extractUsageFromRaw(raw []byte) (int, int) {
	if len(raw) == 0 {
		return 0, 0
	}
	var payload struct {
		Usage map[string]any `json:"usage"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Usage == nil {
		return 0, 0
	}
	inTokens := intFromAny(payload.Usage["input_tokens"])
	outTokens := intFromAny(payload.Usage["output_tokens"])
	if inTokens == 0 && outTokens == 0 {
		if total := intFromAny(payload.Usage["total_tokens"]); total > 0 {
			inTokens = total
		}
	}
	return inTokens, outTokens
}

func intFromAny(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return 0
}

func extractModelFromRequest(body any) string {
	switch v := body.(type) {
	case responsesRequest:
		return strings.TrimSpace(v.Model)
	case *responsesRequest:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(v.Model)
	}
	return ""
}

func statusFromResp(resp *http.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.StatusCode)
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	var httpErr *openAIHTTPError
	if err != nil && errors.As(err, &httpErr) {
		return strconv.Itoa(httpErr.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
