// Package gemini is a typed client for the Gemini text generation API,
// specialized for turning a repository code context into test cases.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"testforge/internal/retry"
)

// DefaultBaseURL is the Gemini API endpoint prefix.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// DefaultModel is the generation model used when none is configured.
const DefaultModel = "gemini-1.5-flash-latest"

// TestCase is a single generated test case.
type TestCase struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Input       any    `json:"input"`
	Expected    any    `json:"expected"`
	Code        string `json:"code"`
	TestType    string `json:"testType"`
	Priority    string `json:"priority"`
}

// Summary aggregates test case counts by type.
type Summary struct {
	TotalTests         int `json:"totalTests"`
	UnitTests          int `json:"unitTests"`
	IntegrationTests   int `json:"integrationTests"`
	EdgeCases          int `json:"edgeCases"`
	ErrorHandlingTests int `json:"errorHandlingTests"`
}

// Suite is the parsed result of a generation request.
type Suite struct {
	TestCases []TestCase `json:"testCases"`
	Summary   Summary    `json:"summary"`
}

// Client calls the Gemini generateContent endpoint.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	httpClient   *http.Client
	retryBackoff []time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithModel overrides the generation model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryBackoff overrides the default retry backoff delays.
func WithRetryBackoff(delays ...time.Duration) Option {
	return func(c *Client) { c.retryBackoff = delays }
}

// New creates a Gemini client with the given API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the configured generation model name.
func (c *Client) Model() string { return c.model }

// generateRequest mirrors the generateContent request body.
type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// generateResponse mirrors the fields of the generateContent response we
// care about.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateTests sends the code context (plus an optional additional prompt)
// to Gemini and parses the response into a Suite.
func (c *Client) GenerateTests(ctx context.Context, codeContext, additionalPrompt string) (Suite, error) {
	if c.apiKey == "" {
		return Suite{}, fmt.Errorf("gemini API key is required")
	}
	if codeContext == "" {
		return Suite{}, fmt.Errorf("code context is required")
	}

	prompt := BuildPrompt(codeContext, additionalPrompt)

	text, err := retry.DoVal(ctx, func() (string, error) {
		return c.generate(ctx, prompt)
	}, c.retryOpts()...)
	if err != nil {
		return Suite{}, err
	}

	return ParseSuite(text)
}

// generate performs a single generateContent call and returns the generated
// text.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 8192,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshaling request: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling Gemini API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading Gemini response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("Gemini API returned %d: %s", resp.StatusCode, truncate(string(body), 500))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", retry.Permanent(err)
		}
		return "", err
	}

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return "", fmt.Errorf("parsing Gemini response: %w", err)
	}

	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("Gemini response contains no candidates")
	}

	return gr.Candidates[0].Content.Parts[0].Text, nil
}

func (c *Client) retryOpts() []retry.Option {
	if len(c.retryBackoff) > 0 {
		return []retry.Option{retry.WithBackoff(c.retryBackoff...)}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
