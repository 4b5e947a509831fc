// Package openai calls OpenAI-compatible chat completion APIs with pool credentials.
package openai

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/getpup/keypool-orchestrator"
	goopenai "github.com/sashabaranov/go-openai"
)

// Provider is the provider tag routed to this caller by default.
const Provider = "openai"

// DefaultModel is used when a request names no model.
const DefaultModel = goopenai.GPT4oMini

// Config holds configuration for the Caller.
type Config struct {
	// BaseURL targets an OpenAI-compatible endpoint (default: the OpenAI API).
	BaseURL string

	// DefaultModel is used when a request names no model (default: DefaultModel).
	DefaultModel string

	// HTTPClient overrides the HTTP client (optional).
	HTTPClient *http.Client
}

// Caller is a keypool.Caller backed by go-openai. One client is kept per secret.
type Caller struct {
	config  Config
	mu      sync.RWMutex
	clients map[string]*goopenai.Client
}

var _ keypool.Caller = (*Caller)(nil)

// New creates a new Caller with the given configuration.
func New(cfg Config) *Caller {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}

	return &Caller{
		config:  cfg,
		clients: make(map[string]*goopenai.Client),
	}
}

// Call sends req as a single user message and returns the first choice.
func (c *Caller) Call(ctx context.Context, cred keypool.Credential, req keypool.CallRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.config.DefaultModel
	}

	resp, err := c.client(cred.Secret).CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: req.Payload},
		},
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", keypool.NewUpstreamError(keypool.KindMalformed, 0, errors.New("response has no choices"))
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *Caller) client(secret string) *goopenai.Client {
	c.mu.RLock()
	client, ok := c.clients[secret]
	c.mu.RUnlock()
	if ok {
		return client
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok = c.clients[secret]; ok {
		return client
	}

	cfg := goopenai.DefaultConfig(secret)
	if c.config.BaseURL != "" {
		cfg.BaseURL = c.config.BaseURL
	}
	if c.config.HTTPClient != nil {
		cfg.HTTPClient = c.config.HTTPClient
	}

	client = goopenai.NewClientWithConfig(cfg)
	c.clients[secret] = client
	return client
}

// classify maps go-openai errors onto keypool error kinds.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		kind := keypool.KindForStatus(apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok {
			switch code {
			case "insufficient_quota":
				kind = keypool.KindInsufficientCredit
			case "invalid_api_key":
				kind = keypool.KindUnauthorized
			case "model_not_found":
				kind = keypool.KindModelUnavailable
			}
		}
		return keypool.NewUpstreamError(kind, apiErr.HTTPStatusCode, err)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return keypool.NewUpstreamError(keypool.KindForStatus(reqErr.HTTPStatusCode), reqErr.HTTPStatusCode, err)
	}

	if kind := keypool.Classify(err); kind == keypool.KindTransient {
		return keypool.NewUpstreamError(kind, 0, err)
	}

	return err
}
