// Package horde implements the AI Horde (Stable Horde) adapter: a free
// community compute pool reachable without credentials. Jobs queue behind
// volunteer workers, so polls carry queue position and wait estimates that
// are surfaced as progress telemetry.
package horde

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
	"github.com/kilatlabs/kilatclip/pkg/progress"
)

// BaseURL is the production API endpoint.
const BaseURL = "https://stablehorde.net"

// AnonymousKey is the documented key for unregistered users. Anonymous jobs
// sit at the back of the queue but always run eventually.
const AnonymousKey = "0000000000"

const (
	pollInterval = 3 * time.Second
	pollCeiling  = 180 * time.Second
)

// Client talks to the AI Horde. It implements acquire.Provider.
type Client struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	log      logger.Logger
	sleep    func(time.Duration)
	progress progress.Callback
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint, primarily for tests.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithPollSleep swaps the inter-poll sleep, for tests.
func WithPollSleep(sleep func(time.Duration)) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithQueueProgress registers a callback fed with queue position and wait
// estimates while the job sits in line.
func WithQueueProgress(cb progress.Callback) Option {
	return func(c *Client) { c.progress = cb }
}

// New creates a Horde client. An empty apiKey falls back to the anonymous
// key, so the provider works out of the box.
func New(apiKey string, log logger.Logger, opts ...Option) *Client {
	if apiKey == "" {
		apiKey = AnonymousKey
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: BaseURL,
		client:  &http.Client{},
		log:     log,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements acquire.Provider.
func (c *Client) Name() string { return "horde" }

// Attempt implements acquire.Provider.
func (c *Client) Attempt(ctx context.Context, req acquire.Request, dest string) error {
	jobID, err := c.submit(ctx, req)
	if err != nil {
		return err
	}
	c.log.Debug("job queued", "horde", map[string]interface{}{"job": jobID})

	if err := c.waitDone(ctx, jobID); err != nil {
		return err
	}

	imageURL, err := c.resultURL(ctx, jobID)
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
	// Horde dimensions must be multiples of 64.
	width := snap64(req.Payload.Width, 512)
	height := snap64(req.Payload.Height, 512)

	payload := map[string]interface{}{
		"prompt": req.Payload.Prompt,
		"params": map[string]interface{}{
			"width":  width,
			"height": height,
			"steps":  20,
			"n":      1,
		},
		"nsfw":            false,
		"censor_nsfw":     true,
		"trusted_workers": false,
	}
	if req.Payload.Seed > 0 {
		params := payload["params"].(map[string]interface{})
		params["seed"] = fmt.Sprintf("%d", req.Payload.Seed)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, errors.HardError, "cannot marshal job payload", errors.ErrProviderBadRequest)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/generate/async", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, errors.HardError, "bad request URL", errors.ErrProviderBadRequest)
	}
	httpReq.Header.Set("apikey", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, errors.TransientError, "job submission failed", errors.ErrProviderTimeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.FromHTTPStatus(c.Name(), resp.StatusCode, string(b))
	}

	var job struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil || job.ID == "" {
		return "", errors.New(errors.TransientError, "no job ID returned", "", errors.ErrProviderEmptyResponse)
	}
	return job.ID, nil
}

// waitDone polls the lightweight check endpoint until the job finishes,
// faults, or the ceiling passes. Queue telemetry is logged and forwarded to
// the progress callback on every poll.
func (c *Client) waitDone(ctx context.Context, jobID string) error {
	deadline := time.Now().Add(pollCeiling)
	checkURL := fmt.Sprintf("%s/api/v2/generate/check/%s", c.baseURL, jobID)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.TransientError, "attempt cancelled during poll", errors.ErrProviderPollTimeout)
		}
		c.sleep(pollInterval)

		var check struct {
			Done          bool `json:"done"`
			Faulted       bool `json:"faulted"`
			QueuePosition int  `json:"queue_position"`
			WaitTime      int  `json:"wait_time"`
		}
		if err := c.getJSON(ctx, checkURL, &check); err != nil {
			continue // transient poll hiccup, keep polling until the ceiling
		}

		if check.Faulted {
			return errors.New(errors.TransientError, "generation job faulted", jobID, errors.ErrProviderJobFaulted)
		}
		if check.Done {
			return nil
		}

		c.log.Debug("job waiting", "horde", map[string]interface{}{
			"queue_position": check.QueuePosition,
			"wait_time":      check.WaitTime,
		})
		if c.progress != nil {
			c.progress(queueFraction(check.QueuePosition),
				fmt.Sprintf("queue position %d, ~%ds wait", check.QueuePosition, check.WaitTime))
		}
	}

	return errors.New(errors.TransientError, "job poll timed out", jobID, errors.ErrProviderPollTimeout)
}

// resultURL fetches the full status record and extracts the first
// generation's image URL.
func (c *Client) resultURL(ctx context.Context, jobID string) (string, error) {
	var status struct {
		Generations []struct {
			Img string `json:"img"`
		} `json:"generations"`
	}
	statusURL := fmt.Sprintf("%s/api/v2/generate/status/%s", c.baseURL, jobID)
	if err := c.getJSON(ctx, statusURL, &status); err != nil {
		return "", err
	}
	if len(status.Generations) == 0 || status.Generations[0].Img == "" {
		return "", errors.New(errors.TransientError, "job finished without generations", jobID, errors.ErrProviderEmptyResponse)
	}
	return status.Generations[0].Img, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, errors.HardError, "bad request URL", errors.ErrProviderBadRequest)
	}
	httpReq.Header.Set("apikey", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, errors.TransientError, "request failed", errors.ErrProviderTimeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.FromHTTPStatus(c.Name(), resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.TransientError, "unparseable response JSON", errors.ErrProviderEmptyResponse)
	}
	return nil
}

// snap64 rounds v down to a multiple of 64, defaulting when unset.
func snap64(v, def int) int {
	if v <= 0 {
		v = def
	}
	if v < 64 {
		return 64
	}
	return v - v%64
}

// queueFraction maps a queue position onto a rough 0..1 progress value;
// the front of the queue reads as nearly done.
func queueFraction(position int) float64 {
	if position <= 0 {
		return 0.9
	}
	f := 1.0 - float64(position)/20.0
	if f < 0.05 {
		return 0.05
	}
	return f
}
