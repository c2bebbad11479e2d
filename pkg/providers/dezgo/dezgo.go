// Package dezgo implements the Dezgo text-to-image adapter, the simplest
// provider in the roster: one synchronous GET that streams the image back.
package dezgo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/kilatlabs/kilatclip/pkg/acquire"
	"github.com/kilatlabs/kilatclip/pkg/errors"
	"github.com/kilatlabs/kilatclip/pkg/logger"
)

// BaseURL is the production API endpoint.
const BaseURL = "https://api.dezgo.com"

// Client talks to the Dezgo API. It implements acquire.Provider.
type Client struct {
	baseURL string
	client  *http.Client
	log     logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint, primarily for tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// New creates a Dezgo client. The free tier needs no credentials.
func New(log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	c := &Client{
		baseURL: BaseURL,
		client:  &http.Client{},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements acquire.Provider.
func (c *Client) Name() string { return "dezgo" }

// Attempt implements acquire.Provider.
func (c *Client) Attempt(ctx context.Context, req acquire.Request, dest string) error {
	params := url.Values{}
	params.Set("prompt", req.Payload.Prompt)
	if req.Payload.Width > 0 {
		params.Set("width", fmt.Sprintf("%d", req.Payload.Width))
	}
	if req.Payload.Height > 0 {
		params.Set("height", fmt.Sprintf("%d", req.Payload.Height))
	}
	if req.Payload.Seed > 0 {
		params.Set("seed", fmt.Sprintf("%d", req.Payload.Seed))
	}
	endpoint := fmt.Sprintf("%s/text2image?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, errors.HardError, "bad request URL", errors.ErrProviderBadRequest)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, errors.TransientError, "request failed", errors.ErrProviderTimeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.FromHTTPStatus(c.Name(), resp.StatusCode, string(body))
	}

	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "cannot create artifact file", errors.ErrFileCreateFailed)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return errors.Wrap(err, errors.TransientError, "truncated response body", errors.ErrProviderEmptyResponse)
	}
	return nil
}
