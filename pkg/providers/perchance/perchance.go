// Package perchance implements the Perchance text-to-image adapter: one JSON
// POST that answers with the image base64-encoded inline. No credentials and
// no seed support, which keeps it at the back of the roster.
package perchance

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/kilatlabs/kilatclip/pkg/acquire"
	"github.com/kilatlabs/kilatclip/pkg/errors"
	"github.com/kilatlabs/kilatclip/pkg/logger"
)

// BaseURL is the production API endpoint.
const BaseURL = "https://image.perchance.org"

// Client talks to the Perchance API. It implements acquire.Provider.
type Client struct {
	baseURL  string
	negative string
	client   *http.Client
	log      logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint, primarily for tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// New creates a Perchance client.
func New(log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	c := &Client{
		baseURL:  BaseURL,
		negative: "ugly, deformed, blurry",
		client:   &http.Client{},
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements acquire.Provider.
func (c *Client) Name() string { return "perchance" }

// Attempt implements acquire.Provider. The decoded bytes are written as-is;
// undersized or structurally broken responses are the gate's call.
func (c *Client) Attempt(ctx context.Context, req acquire.Request, dest string) error {
	prompt := req.Payload.Prompt
	if len(prompt) > 500 {
		prompt = prompt[:500]
	}

	payload := map[string]interface{}{
		"prompt":          prompt,
		"negative_prompt": c.negative,
		"resolution":      resolution(req),
		"guidance_scale":  7.5,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.HardError, "cannot marshal request payload", errors.ErrProviderBadRequest)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/text-to-image-v2", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.HardError, "bad request URL", errors.ErrProviderBadRequest)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, errors.TransientError, "request failed", errors.ErrProviderTimeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.FromHTTPStatus(c.Name(), resp.StatusCode, string(b))
	}

	var result struct {
		ImageBase64 string `json:"imageBase64"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Wrap(err, errors.TransientError, "unparseable response JSON", errors.ErrProviderEmptyResponse)
	}
	if result.ImageBase64 == "" {
		return errors.New(errors.TransientError, "response carried no image data", "", errors.ErrProviderEmptyResponse)
	}

	img, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		return errors.Wrap(err, errors.TransientError, "image data is not valid base64", errors.ErrProviderEmptyResponse)
	}

	if err := os.WriteFile(dest, img, 0644); err != nil {
		return errors.Wrap(err, errors.SystemError, "cannot create artifact file", errors.ErrFileCreateFailed)
	}
	return nil
}

// resolution renders the requested dimensions in Perchance's WxH string
// form, defaulting to the portrait shape the API documents.
func resolution(req acquire.Request) string {
	if req.Payload.Width > 0 && req.Payload.Height > 0 {
		return fmt.Sprintf("%dx%d", req.Payload.Width, req.Payload.Height)
	}
	return "512x768"
}
