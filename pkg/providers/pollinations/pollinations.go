// Package pollinations implements the Pollinations.ai image and video
// generation adapters. Two endpoints exist: the keyed gen endpoint with
// Bearer auth (faster, priority queue) and the legacy anonymous endpoint
// (free tier, slower, may queue). Model selection falls back flux -> turbo
// -> zimage inside a single attempt; the scheduler never sees the per-model
// retries.
package pollinations

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/kilatlabs/kilatclip/pkg/acquire"
	"github.com/kilatlabs/kilatclip/pkg/errors"
	"github.com/kilatlabs/kilatclip/pkg/logger"
)

const (
	// KeyedBaseURL is the authenticated endpoint.
	KeyedBaseURL = "https://gen.pollinations.ai"
	// AnonBaseURL is the free-tier endpoint.
	AnonBaseURL = "https://image.pollinations.ai"
)

var defaultModels = []string{"flux", "turbo", "zimage"}

// Client generates images through Pollinations. It implements
// acquire.Provider.
type Client struct {
	apiKey   string
	keyedURL string
	anonURL  string
	models   []string
	client   *http.Client
	log      logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the endpoints, primarily for tests.
func WithBaseURLs(keyed, anon string) Option {
	return func(c *Client) {
		c.keyedURL = keyed
		c.anonURL = anon
	}
}

// WithModels overrides the model fallback chain.
func WithModels(models []string) Option {
	return func(c *Client) {
		c.models = models
	}
}

// New creates a Pollinations image client. An empty apiKey selects the
// anonymous endpoint.
func New(apiKey string, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	c := &Client{
		apiKey:   apiKey,
		keyedURL: KeyedBaseURL,
		anonURL:  AnonBaseURL,
		models:   defaultModels,
		client:   &http.Client{},
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements acquire.Provider.
func (c *Client) Name() string { return "pollinations" }

// Attempt implements acquire.Provider. Each model in the chain is tried in
// order; the first 2xx response with a plausible body wins. The last model's
// classified error is returned when every model fails.
func (c *Client) Attempt(ctx context.Context, req acquire.Request, dest string) error {
	var lastErr error
	for _, model := range c.models {
		err := c.fetchModel(ctx, req, model, dest)
		if err == nil {
			return nil
		}
		lastErr = err
		c.log.Debug("model failed, trying next", "pollinations", map[string]interface{}{
			"model": model,
			"error": err.Error(),
		})
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New(errors.TransientError, "no models configured", "", errors.ErrProviderEmptyResponse)
	}
	return lastErr
}

func (c *Client) fetchModel(ctx context.Context, req acquire.Request, model, dest string) error {
	endpoint := c.buildURL(req, model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, errors.HardError, "bad request URL", errors.ErrProviderBadRequest)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return errors.Wrap(err, errors.TransientError, "request timed out", errors.ErrProviderTimeout)
		}
		return errors.Wrap(err, errors.TransientError, "request failed", errors.ErrProviderTimeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		// The anonymous tier answers 500 with "No active <model> servers
		// available" when a model pool is offline; that heals on its own.
		if resp.StatusCode == http.StatusInternalServerError && strings.Contains(string(body), "No active") {
			return errors.New(errors.TransientError, "model servers offline",
				fmt.Sprintf("model %s: %s", model, string(body)), errors.ErrProviderBusy)
		}
		return errors.FromHTTPStatus(c.Name(), resp.StatusCode, string(body))
	}

	return writeBody(resp.Body, dest)
}

func (c *Client) buildURL(req acquire.Request, model string) string {
	encoded := url.PathEscape(req.Payload.Prompt)
	params := url.Values{}
	params.Set("model", model)
	if req.Payload.Width > 0 {
		params.Set("width", fmt.Sprintf("%d", req.Payload.Width))
	}
	if req.Payload.Height > 0 {
		params.Set("height", fmt.Sprintf("%d", req.Payload.Height))
	}
	if req.Payload.Seed > 0 {
		params.Set("seed", fmt.Sprintf("%d", req.Payload.Seed))
	}
	params.Set("nologo", "true")

	if c.apiKey != "" {
		return fmt.Sprintf("%s/image/%s?%s", c.keyedURL, encoded, params.Encode())
	}
	return fmt.Sprintf("%s/prompt/%s?%s", c.anonURL, encoded, params.Encode())
}

// writeBody streams the response body to dest. Undersized bodies (rate-limit
// HTML, error JSON served with a 200) are caught by the validation gate, not
// here.
func writeBody(body io.Reader, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "cannot create artifact file", errors.ErrFileCreateFailed)
	}
	defer f.Close()
	if _, err := io.Copy(f, body); err != nil {
		return errors.Wrap(err, errors.TransientError, "truncated response body", errors.ErrProviderEmptyResponse)
	}
	return nil
}
