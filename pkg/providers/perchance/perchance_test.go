package perchance

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilatlabs/kilatclip/pkg/acquire"
	"github.com/kilatlabs/kilatclip/pkg/errors"
)

func imageRequest(prompt string) acquire.Request {
	return acquire.Request{
		Kind: acquire.Image,
		Payload: acquire.Payload{
			Prompt: prompt,
			Width:  512,
			Height: 768,
		},
	}
}

func TestAttemptDecodesBase64Image(t *testing.T) {
	var gotPayload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/text-to-image-v2", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		encoded := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
		fmt.Fprintf(w, `{"imageBase64": %q}`, encoded)
	}))
	defer server.Close()

	c := New(nil, WithBaseURL(server.URL))
	dest := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, c.Attempt(context.Background(), imageRequest("a misty forest"), dest))

	assert.Equal(t, "a misty forest", gotPayload["prompt"])
	assert.Equal(t, "512x768", gotPayload["resolution"])
	assert.Equal(t, 7.5, gotPayload["guidance_scale"])
	assert.NotEmpty(t, gotPayload["negative_prompt"])

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "fake image bytes", string(content))
}

func TestLongPromptIsTruncated(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotPrompt = payload["prompt"].(string)
		fmt.Fprintf(w, `{"imageBase64": %q}`, base64.StdEncoding.EncodeToString([]byte("fake image bytes")))
	}))
	defer server.Close()

	prompt := "sweeping aerial view"
	for len(prompt) < 600 {
		prompt += " over endless dunes"
	}

	c := New(nil, WithBaseURL(server.URL))
	require.NoError(t, c.Attempt(context.Background(), imageRequest(prompt), filepath.Join(t.TempDir(), "img.png")))
	assert.Len(t, gotPrompt, 500)
}

func TestEmptyImageDataIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	c := New(nil, WithBaseURL(server.URL))
	err := c.Attempt(context.Background(), imageRequest("x"), filepath.Join(t.TempDir(), "img.png"))

	require.Error(t, err)
	assert.Equal(t, errors.TransientError, errors.TypeOf(err))
	var structured *errors.StructuredError
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, errors.ErrProviderEmptyResponse, structured.Code)
}

func TestInvalidBase64IsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"imageBase64": "not-*-base64"}`)
	}))
	defer server.Close()

	c := New(nil, WithBaseURL(server.URL))
	err := c.Attempt(context.Background(), imageRequest("x"), filepath.Join(t.TempDir(), "img.png"))

	require.Error(t, err)
	assert.Equal(t, errors.TransientError, errors.TypeOf(err))
}

func TestAttemptClassifiesFailures(t *testing.T) {
	cases := []struct {
		status int
		want   errors.ErrorType
	}{
		{http.StatusForbidden, errors.HardError},
		{http.StatusTooManyRequests, errors.TransientError},
		{http.StatusInternalServerError, errors.TransientError},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		c := New(nil, WithBaseURL(server.URL))
		err := c.Attempt(context.Background(), imageRequest("x"), filepath.Join(t.TempDir(), "img.png"))

		require.Error(t, err, "status %d", tc.status)
		assert.Equal(t, tc.want, errors.TypeOf(err), "status %d", tc.status)
		server.Close()
	}
}
