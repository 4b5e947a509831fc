// Package gemini calls the Gemini API with pool credentials.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/getpup/keypool-orchestrator"
	"google.golang.org/genai"
)

// Provider is the provider tag routed to this caller by default.
const Provider = "gemini"

// DefaultModel is used when a request names no model.
const DefaultModel = "gemini-2.0-flash"

// Config holds configuration for the Caller.
type Config struct {
	// BaseURL overrides the Gemini API endpoint (optional).
	BaseURL string

	// DefaultModel is used when a request names no model (default: DefaultModel).
	DefaultModel string

	// HTTPClient overrides the HTTP client (optional).
	HTTPClient *http.Client
}

// Caller is a keypool.Caller backed by the genai SDK. One client is kept per secret.
type Caller struct {
	config  Config
	mu      sync.Mutex
	clients map[string]*genai.Client
}

var _ keypool.Caller = (*Caller)(nil)

// New creates a new Caller with the given configuration.
func New(cfg Config) *Caller {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}

	return &Caller{
		config:  cfg,
		clients: make(map[string]*genai.Client),
	}
}

// Call sends req as a single user turn and returns the response text.
func (c *Caller) Call(ctx context.Context, cred keypool.Credential, req keypool.CallRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.config.DefaultModel
	}

	client, err := c.client(ctx, cred.Secret)
	if err != nil {
		return "", err
	}

	var cfg *genai.GenerateContentConfig
	if req.MaxTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(req.MaxTokens)}
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Payload), cfg)
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Candidates) == 0 {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return "", keypool.NewUpstreamError(keypool.KindMalformed, 0, errors.New(reason))
	}

	return resp.Text(), nil
}

func (c *Caller) client(ctx context.Context, secret string) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[secret]; ok {
		return client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      secret,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  c.config.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: c.config.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	c.clients[secret] = client
	return client, nil
}

// classify maps genai errors onto keypool error kinds.
func classify(err error) error {
	if apiErr, ok := asAPIError(err); ok {
		kind := keypool.KindForStatus(apiErr.Code)
		switch {
		case apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "API key"):
			kind = keypool.KindUnauthorized
		case apiErr.Status == "RESOURCE_EXHAUSTED":
			kind = keypool.KindRateLimited
		}
		return keypool.NewUpstreamError(kind, apiErr.Code, err)
	}

	if kind := keypool.Classify(err); kind == keypool.KindTransient {
		return keypool.NewUpstreamError(kind, 0, err)
	}

	return err
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}
