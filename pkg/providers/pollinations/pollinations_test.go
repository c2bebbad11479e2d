package pollinations

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
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
			Width:  1080,
			Height: 1920,
		},
	}
}

func TestAnonymousUsesPromptPath(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, "fake image bytes")
	}))
	defer server.Close()

	c := New("", nil, WithBaseURLs("http://unused.invalid", server.URL))
	dest := filepath.Join(t.TempDir(), "img.jpg")
	err := c.Attempt(context.Background(), imageRequest("a red fox"), dest)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotPath, "/prompt/"), "anonymous tier uses /prompt/, got %s", gotPath)
	assert.Empty(t, gotAuth)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "fake image bytes", string(content))
}

func TestKeyedUsesImagePathAndBearer(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, "fake image bytes")
	}))
	defer server.Close()

	c := New("sk-test", nil, WithBaseURLs(server.URL, "http://unused.invalid"))
	dest := filepath.Join(t.TempDir(), "img.jpg")
	err := c.Attempt(context.Background(), imageRequest("a red fox"), dest)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(gotPath, "/image/"), "keyed tier uses /image/, got %s", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestModelFallbackChain(t *testing.T) {
	var models []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		model := r.URL.Query().Get("model")
		models = append(models, model)
		if model != "zimage" {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "No active %s servers available", model)
			return
		}
		fmt.Fprint(w, "fake image bytes")
	}))
	defer server.Close()

	c := New("", nil, WithBaseURLs("http://unused.invalid", server.URL))
	dest := filepath.Join(t.TempDir(), "img.jpg")
	err := c.Attempt(context.Background(), imageRequest("a red fox"), dest)
	require.NoError(t, err)

	assert.Equal(t, []string{"flux", "turbo", "zimage"}, models)
}

func TestAllModelsOfflineIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "No active flux servers available")
	}))
	defer server.Close()

	c := New("", nil, WithBaseURLs("http://unused.invalid", server.URL))
	dest := filepath.Join(t.TempDir(), "img.jpg")
	err := c.Attempt(context.Background(), imageRequest("a red fox"), dest)

	require.Error(t, err)
	assert.Equal(t, errors.TransientError, errors.TypeOf(err))
	var structured *errors.StructuredError
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, errors.ErrProviderBusy, structured.Code)
}

func TestRateLimitIsTransientBadPromptIsHard(t *testing.T) {
	cases := []struct {
		status int
		want   errors.ErrorType
	}{
		{http.StatusTooManyRequests, errors.TransientError},
		{http.StatusBadRequest, errors.HardError},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		c := New("", nil, WithBaseURLs("http://unused.invalid", server.URL), WithModels([]string{"flux"}))
		dest := filepath.Join(t.TempDir(), "img.jpg")
		err := c.Attempt(context.Background(), imageRequest("a red fox"), dest)

		require.Error(t, err, "status %d", tc.status)
		assert.Equal(t, tc.want, errors.TypeOf(err), "status %d", tc.status)
		server.Close()
	}
}

func TestPromptAndParamsEncoded(t *testing.T) {
	var gotURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		fmt.Fprint(w, "fake image bytes")
	}))
	defer server.Close()

	c := New("", nil, WithBaseURLs("http://unused.invalid", server.URL), WithModels([]string{"flux"}))
	req := imageRequest("city at night, rain")
	req.Payload.Seed = 42
	dest := filepath.Join(t.TempDir(), "img.jpg")
	require.NoError(t, c.Attempt(context.Background(), req, dest))

	assert.Contains(t, gotURL, "width=1080")
	assert.Contains(t, gotURL, "height=1920")
	assert.Contains(t, gotURL, "seed=42")
	assert.Contains(t, gotURL, "nologo=true")
	assert.NotContains(t, gotURL, " ", "prompt must be escaped")
}

func TestVideoSavesBinaryBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		fmt.Fprint(w, "fake video bytes")
	}))
	defer server.Close()

	c := NewVideo("", nil, WithVideoBaseURL(server.URL))
	dest := filepath.Join(t.TempDir(), "clip.mp4")
	err := c.Attempt(context.Background(), imageRequest("waves crashing"), dest)
	require.NoError(t, err)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "fake video bytes", string(content))
}

func TestVideoResolvesJSONResult(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/file.mp4", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "resolved video bytes")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"video_url": %q}`, server.URL+"/file.mp4")
	})

	c := NewVideo("", nil, WithVideoBaseURL(server.URL))
	dest := filepath.Join(t.TempDir(), "clip.mp4")
	err := c.Attempt(context.Background(), imageRequest("waves crashing"), dest)
	require.NoError(t, err)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "resolved video bytes", string(content))
}
