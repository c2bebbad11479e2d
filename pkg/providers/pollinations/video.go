package pollinations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kilatlabs/kilatclip/pkg/acquire"
	"github.com/kilatlabs/kilatclip/pkg/downloader"
	"github.com/kilatlabs/kilatclip/pkg/errors"
	"github.com/kilatlabs/kilatclip/pkg/logger"
)

// DefaultVideoModel is the cheapest motion model.
const DefaultVideoModel = "seedance"

// VideoClient generates short clips through the Pollinations video models
// (seedance, seedance-pro, veo). It implements acquire.Provider.
//
// The endpoint sometimes answers with a GIF or still image instead of a
// video, or with JSON carrying a result URL. Non-video bodies are saved
// anyway and left for the validation gate to reject; JSON results are
// resolved and fetched.
type VideoClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     logger.Logger
}

// NewVideo creates a Pollinations video client. Premium models generally
// fail without an API key; the attempt then classifies as hard.
func NewVideo(apiKey string, log logger.Logger, opts ...VideoOption) *VideoClient {
	if log == nil {
		log = logger.NewNopLogger()
	}
	c := &VideoClient{
		apiKey:  apiKey,
		baseURL: KeyedBaseURL,
		client:  &http.Client{},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VideoOption configures a VideoClient.
type VideoOption func(*VideoClient)

// WithVideoBaseURL overrides the endpoint, primarily for tests.
func WithVideoBaseURL(base string) VideoOption {
	return func(c *VideoClient) {
		c.baseURL = base
	}
}

// Name implements acquire.Provider.
func (c *VideoClient) Name() string { return "pollinations-video" }

// Attempt implements acquire.Provider.
func (c *VideoClient) Attempt(ctx context.Context, req acquire.Request, dest string) error {
	model := req.Payload.Model
	if model == "" {
		model = DefaultVideoModel
	}

	encoded := url.PathEscape(req.Payload.Prompt)
	endpoint := fmt.Sprintf("%s/image/%s?model=%s&nologo=true", c.baseURL, encoded, url.QueryEscape(model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, errors.HardError, "bad request URL", errors.ErrProviderBadRequest)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, errors.TransientError, "request failed", errors.ErrProviderTimeout)
	}
	defer resp.Body.Close()

	c.log.Debug("video response", "pollinations-video", map[string]interface{}{
		"status":  resp.StatusCode,
		"elapsed": time.Since(started).String(),
	})

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.FromHTTPStatus(c.Name(), resp.StatusCode, string(body))
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") {
		return c.fetchFromJSON(ctx, resp.Body, dest)
	}
	// Video, GIF, image, or unknown: persist and let the gate decide
	// whether the shape is the real deliverable.
	return writeBody(resp.Body, dest)
}

// fetchFromJSON resolves a JSON body of the form {"url": ...} or
// {"video_url": ...} and downloads the referenced file.
func (c *VideoClient) fetchFromJSON(ctx context.Context, body io.Reader, dest string) error {
	var payload struct {
		URL      string `json:"url"`
		VideoURL string `json:"video_url"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return errors.Wrap(err, errors.TransientError, "unparseable result JSON", errors.ErrProviderEmptyResponse)
	}
	resultURL := payload.URL
	if resultURL == "" {
		resultURL = payload.VideoURL
	}
	if resultURL == "" {
		return errors.New(errors.TransientError, "result JSON carried no URL", "", errors.ErrProviderEmptyResponse)
	}

	dl := downloader.New(downloader.Options{
		URL:           resultURL,
		OutputPath:    dest,
		Timeout:       2 * time.Minute,
		AllowOverride: true,
	})
	_, err := dl.Download(ctx)
	return err
}
