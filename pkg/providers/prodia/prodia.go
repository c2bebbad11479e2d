// Package prodia implements the Prodia Stable Diffusion adapter: a keyed
// submit/poll/fetch provider. A generation job is created, its status polled
// every two seconds up to a minute, and the finished image downloaded.
package prodia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilatlabs/kilatclip/pkg/acquire"
	"github.com/kilatlabs/kilatclip/pkg/downloader"
	"github.com/kilatlabs/kilatclip/pkg/errors"
	"github.com/kilatlabs/kilatclip/pkg/logger"
)

// BaseURL is the production API endpoint.
const BaseURL = "https://api.prodia.com/v1"

const (
	// DefaultModel is used when the request does not pin one.
	DefaultModel = "dreamshaper_8.safetensors [9d40847d]"
	// Provider-side dimension caps.
	maxWidth  = 768
	maxHeight = 1024

	pollInterval = 2 * time.Second
	pollCeiling  = 60 * time.Second
)

// Client talks to the Prodia API. It implements acquire.Provider.
type Client struct {
	apiKey   string
	baseURL  string
	negative string
	client   *http.Client
	log      logger.Logger
	sleep    func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint, primarily for tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithNegativePrompt sets the negative prompt attached to every job.
func WithNegativePrompt(negative string) Option {
	return func(c *Client) { c.negative = negative }
}

// WithPollSleep swaps the inter-poll sleep, for tests.
func WithPollSleep(sleep func(time.Duration)) Option {
	return func(c *Client) { c.sleep = sleep }
}

// New creates a Prodia client. The API key is required; attempts without one
// fail hard so the misconfiguration shows up distinctly in the logs.
func New(apiKey string, log logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.NewNopLogger()
	}
	c := &Client{
		apiKey:   apiKey,
		baseURL:  BaseURL,
		negative: "ugly, deformed, blurry, low quality",
		client:   &http.Client{},
		log:      log,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements acquire.Provider.
func (c *Client) Name() string { return "prodia" }

// Attempt implements acquire.Provider.
func (c *Client) Attempt(ctx context.Context, req acquire.Request, dest string) error {
	if c.apiKey == "" {
		return errors.New(errors.HardError, "missing Prodia API key", "", errors.ErrProviderNoCredential)
	}

	jobID, err := c.submit(ctx, req)
	if err != nil {
		return err
	}
	c.log.Debug("job submitted", "prodia", map[string]interface{}{"job": jobID})

	imageURL, err := c.poll(ctx, jobID)
	if err != nil {
		return err
	}

	dl := downloader.New(downloader.Options{
		URL:           imageURL,
		OutputPath:    dest,
		Timeout:       time.Minute,
		AllowOverride: true,
	})
	_, err = dl.Download(ctx)
	return err
}

func (c *Client) submit(ctx context.Context, req acquire.Request) (string, error) {
	model := req.Payload.Model
	if model == "" {
		model = DefaultModel
	}
	prompt := req.Payload.Prompt
	if len(prompt) > 500 {
		prompt = prompt[:500]
	}

	payload := map[string]interface{}{
		"model":           model,
		"prompt":          prompt,
		"negative_prompt": c.negative,
		"width":           capDim(req.Payload.Width, maxWidth),
		"height":          capDim(req.Payload.Height, maxHeight),
		"steps":           25,
		"cfg_scale":       7.0,
		"sampler":         "DPM++ 2M Karras",
	}
	if req.Payload.Seed > 0 {
		payload["seed"] = req.Payload.Seed
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, errors.HardError, "cannot marshal job payload", errors.ErrProviderBadRequest)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sd/generate", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.HardError, "bad request URL", errors.ErrProviderBadRequest)
	}
	httpReq.Header.Set("X-Prodia-Key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, errors.TransientError, "job submission failed", errors.ErrProviderTimeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.FromHTTPStatus(c.Name(), resp.StatusCode, string(b))
	}

	var job struct {
		Job string `json:"job"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil || job.Job == "" {
		return "", errors.New(errors.TransientError, "no job ID returned", "", errors.ErrProviderEmptyResponse)
	}
	return job.Job, nil
}

// poll checks job status until it succeeds, fails, or the ceiling passes.
// A poll timeout is transient: the job may well have finished after we gave
// up, but this attempt cannot use it.
func (c *Client) poll(ctx context.Context, jobID string) (string, error) {
	deadline := time.Now().Add(pollCeiling)
	statusURL := fmt.Sprintf("%s/job/%s", c.baseURL, jobID)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", errors.Wrap(err, errors.TransientError, "attempt cancelled during poll", errors.ErrProviderPollTimeout)
		}
		c.sleep(pollInterval)

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return "", errors.Wrap(err, errors.HardError, "bad status URL", errors.ErrProviderBadRequest)
		}
		httpReq.Header.Set("X-Prodia-Key", c.apiKey)

		resp, err := c.client.Do(httpReq)
		if err != nil {
			continue // transient poll hiccup, keep polling until the ceiling
		}

		var status struct {
			Status   string `json:"status"`
			ImageURL string `json:"imageUrl"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if decodeErr != nil {
			continue
		}

		switch status.Status {
		case "succeeded":
			if status.ImageURL == "" {
				return "", errors.New(errors.TransientError, "job succeeded without image URL", jobID, errors.ErrProviderEmptyResponse)
			}
			return status.ImageURL, nil
		case "failed":
			return "", errors.New(errors.TransientError, "generation job failed", jobID, errors.ErrProviderJobFaulted)
		}
	}

	return "", errors.New(errors.TransientError, "job poll timed out", jobID, errors.ErrProviderPollTimeout)
}

func capDim(v, max int) int {
	if v <= 0 || v > max {
		return max
	}
	return v
}
