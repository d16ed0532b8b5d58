// Package gemini implements assist.Completer on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/shpitdev/crm-assist/pkg/assist"
	"github.com/shpitdev/crm-assist/pkg/assist/schema"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-3-flash-preview"

type Config struct {
	// APIKey may be empty. Every Complete call then fails with a missing
	// credential CompletionFailure.
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

type Completer struct {
	client *genai.Client
	model  string
}

var _ assist.Completer = (*Completer)(nil)

func New(ctx context.Context, cfg Config) (*Completer, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	c := &Completer{model: model}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	c.client = client
	return c, nil
}

// Model returns the model identifier requests are sent to.
func (c *Completer) Model() string { return c.model }

// Complete sends one prompt with a JSON response schema. Exactly one network
// request is made per call; nothing is retried.
func (c *Completer) Complete(ctx context.Context, prompt string, s *schema.Schema) (string, error) {
	if c.client == nil {
		return "", &assist.CompletionFailure{Kind: assist.FailureMissingCredential, Err: assist.ErrMissingCredential}
	}

	resp, err := c.client.Models.GenerateContent(
		ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   s.GenAI(),
		},
	)
	if err != nil {
		return "", classifyErr(err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &assist.CompletionFailure{
			Kind:       assist.FailureStatus,
			StatusCode: apiErr.Code,
			Temporary:  apiErr.Code == 429 || apiErr.Code/100 == 5,
			Err:        err,
		}
	}
	var ne net.Error
	temporary := errors.As(err, &ne) && (ne.Timeout() || ne.Temporary())
	return &assist.CompletionFailure{Kind: assist.FailureTransport, Temporary: temporary, Err: err}
}
