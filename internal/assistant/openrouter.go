package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Models tried after the configured one, in order.
var defaultFallbackModels = []string{
	"openai/gpt-4o-mini",
	"google/gemini-2.0-flash-lite-preview-02-05:free",
}

// ErrNoModels indicates the client was built without any model.
var ErrNoModels = errors.New("assistant: no models configured")

// ErrModelUnavailable marks a model skipped because its circuit breaker is open.
var ErrModelUnavailable = errors.New("assistant: model temporarily unavailable")

// ChatMessage is one turn of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a completion independent of the model that serves it.
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// Completer produces the assistant reply for a request.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// OpenRouterOptions configures an OpenRouterClient.
type OpenRouterOptions struct {
	APIKey         string
	BaseURL        string
	Model          string
	FallbackModels []string
	Referer        string
	// Title returns the X-Title header; nil uses "Film4u AI".
	Title      func() string
	HTTPClient *http.Client
}

// OpenRouterClient calls the OpenRouter chat completions API, walking a model chain on failure.
type OpenRouterClient struct {
	apiKey     string
	endpoint   string
	referer    string
	title      func() string
	httpClient *http.Client
	models     []string
	breakers   map[string]*gobreaker.CircuitBreaker[string]
}

// NewOpenRouterClient constructs an OpenRouterClient.
func NewOpenRouterClient(opts OpenRouterOptions) *OpenRouterClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	title := opts.Title
	if title == nil {
		title = func() string { return "Film4u AI" }
	}
	fallbacks := opts.FallbackModels
	if len(fallbacks) == 0 {
		fallbacks = defaultFallbackModels
	}
	models := ModelChain(opts.Model, fallbacks)
	breakers := make(map[string]*gobreaker.CircuitBreaker[string], len(models))
	for _, model := range models {
		breakers[model] = newModelBreaker(model)
	}
	return &OpenRouterClient{
		apiKey:     strings.TrimSpace(opts.APIKey),
		endpoint:   baseURL + "/chat/completions",
		referer:    strings.TrimSpace(opts.Referer),
		title:      title,
		httpClient: httpClient,
		models:     models,
		breakers:   breakers,
	}
}

// ModelChain returns primary followed by fallbacks with blanks and duplicates removed.
func ModelChain(primary string, fallbacks []string) []string {
	seen := make(map[string]struct{}, len(fallbacks)+1)
	out := make([]string, 0, len(fallbacks)+1)
	for _, model := range append([]string{primary}, fallbacks...) {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		if _, ok := seen[model]; ok {
			continue
		}
		seen[model] = struct{}{}
		out = append(out, model)
	}
	return out
}

// Models returns the model chain in the order it is tried.
func (c *OpenRouterClient) Models() []string {
	return append([]string(nil), c.models...)
}

func newModelBreaker(model string) *gobreaker.CircuitBreaker[string] {
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        model,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// Requests the API refuses as malformed say nothing about the model's health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var upstream *UpstreamError
			return errors.As(err, &upstream) && isCallerStatus(upstream.Status)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{"model": name, "from": from.String(), "to": to.String()}).Warn("assistant: model breaker state changed")
		},
	})
}

// Complete sends req to each model in the chain until one answers.
func (c *OpenRouterClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if c == nil || len(c.models) == 0 {
		return "", ErrNoModels
	}
	var lastErr error
	for i, model := range c.models {
		reply, errCall := c.breakers[model].Execute(func() (string, error) {
			return c.completeWith(ctx, model, req)
		})
		if errCall == nil {
			upstreamRequestsTotal.WithLabelValues(model, "ok").Inc()
			return reply, nil
		}
		upstreamRequestsTotal.WithLabelValues(model, "error").Inc()
		lastErr = upstreamFailure(model, errCall)
		if ctx.Err() != nil {
			break
		}
		entry := log.WithError(errCall).WithField("model", model)
		if i < len(c.models)-1 {
			entry.Warnf("assistant: switching to backup model %s", c.models[i+1])
		} else {
			entry.Warn("assistant: all models failed")
		}
	}
	return "", lastErr
}

// upstreamFailure turns transport and breaker errors into an UpstreamError.
func upstreamFailure(model string, err error) error {
	var upstream *UpstreamError
	if errors.As(err, &upstream) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &UpstreamError{
			Model:   model,
			Status:  http.StatusServiceUnavailable,
			Message: "AI model temporarily unavailable. Try again shortly.",
			Err:     fmt.Errorf("%w: %w", ErrModelUnavailable, err),
		}
	}
	return &UpstreamError{
		Model:   model,
		Status:  http.StatusBadGateway,
		Message: "AI service unreachable.",
		Err:     err,
	}
}

// isCallerStatus reports 4xx answers other than timeouts and rate limits.
func isCallerStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *OpenRouterClient) completeWith(ctx context.Context, model string, req ChatRequest) (string, error) {
	payload, errMarshal := json.Marshal(completionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if errMarshal != nil {
		return "", fmt.Errorf("assistant: marshal request: %w", errMarshal)
	}

	httpReq, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if errReq != nil {
		return "", fmt.Errorf("assistant: build request: %w", errReq)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if title := strings.TrimSpace(c.title()); title != "" {
		httpReq.Header.Set("X-Title", title)
	}

	resp, errDo := c.httpClient.Do(httpReq)
	if errDo != nil {
		return "", fmt.Errorf("assistant: %s: %w", model, errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("assistant: close response body")
		}
	}()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if errRead != nil {
		return "", fmt.Errorf("assistant: read response: %w", errRead)
	}
	var parsed completionResponse
	errUnmarshal := json.Unmarshal(body, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if errUnmarshal == nil && parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
			return "", &UpstreamError{Model: model, Status: resp.StatusCode, Message: parsed.Error.Message}
		}
		return "", &UpstreamError{Model: model, Status: resp.StatusCode, Message: fmt.Sprintf("API Error: %d", resp.StatusCode)}
	}
	if errUnmarshal != nil {
		return "", fmt.Errorf("assistant: decode response: %w", errUnmarshal)
	}
	if len(parsed.Choices) == 0 {
		return "", &UpstreamError{Model: model, Status: resp.StatusCode, Message: "empty completion"}
	}
	return parsed.Choices[0].Message.Content, nil
}
