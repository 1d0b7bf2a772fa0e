// ABOUTME: OpenAI-backed guidance responder with retry and keyword-routed voice
// ABOUTME: Uses gpt-4o-mini by default; the canned table chooses deity and scripture
package guidance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultChatModel is the default model for guidance completions
const DefaultChatModel = "gpt-4o-mini"

const (
	attemptTimeout   = 30 * time.Second
	maxRetryInterval = 30 * time.Second
)

const systemPrompt = `You are a gentle spiritual guide steeped in Hindu scripture.
Answer the seeker in at most three short paragraphs.
Quote one relevant verse in double quotes, then offer a brief practical reflection.
Never give medical, legal or financial instructions.`

// OpenAIConfig holds configuration for the OpenAI responder
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIResponder produces guidance with a chat completion
type OpenAIResponder struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	table      *Table
}

// NewOpenAIResponder creates a responder. table may be nil; when set it picks the voice.
func NewOpenAIResponder(cfg OpenAIConfig, table *Table) (*OpenAIResponder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	return &OpenAIResponder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		table:      table,
	}, nil
}

// Respond asks the model for guidance, retrying transient failures
func (r *OpenAIResponder) Respond(ctx context.Context, message string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.prompt(message)},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		Temperature: 0.7,
	}

	var text string
	attempts := 0
	op := func() error {
		attempts++
		var err error
		text, err = r.complete(ctx, req)
		if err == nil {
			return nil
		}
		err = fmt.Errorf("attempt %d: %w", attempts, err)
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, r.retryPolicy(ctx)); err != nil {
		return "", fmt.Errorf("failed to generate guidance after %d attempts: %w", attempts, err)
	}
	return text, nil
}

// retryPolicy allows maxRetries retries after the first attempt, doubling
// retryDelay each time with ±25% jitter, and stops when ctx ends
func (r *OpenAIResponder) retryPolicy(ctx context.Context) backoff.BackOff {
	if r.maxRetries <= 0 {
		// WithMaxRetries treats zero as unlimited
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.retryDelay
	exp.RandomizationFactor = 0.25
	exp.Multiplier = 2
	exp.MaxInterval = maxRetryInterval
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.maxRetries)), ctx)
}

// retryable reports whether a completion error may succeed on a later attempt.
// Client errors other than rate limiting will not.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		return code == http.StatusTooManyRequests || code >= 500 || code == 0
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		code := reqErr.HTTPStatusCode
		return code == http.StatusTooManyRequests || code >= 500 || code == 0
	}
	return true
}

func (r *OpenAIResponder) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty completion")
	}
	return text, nil
}

func (r *OpenAIResponder) prompt(message string) string {
	if r.table == nil {
		return systemPrompt
	}
	rule, ok := r.table.Match(message)
	if !ok {
		return systemPrompt
	}
	return fmt.Sprintf("%s\nSpeak in the voice of %s and draw on the %s.", systemPrompt, rule.Deity, rule.Source)
}
