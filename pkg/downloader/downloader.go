package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kilatlabs/kilatclip/pkg/errors"
	"github.com/kilatlabs/kilatclip/pkg/logger"
	"github.com/kilatlabs/kilatclip/pkg/progress"
)

// Options represents configuration options for the Downloader.
type Options struct {
	// URL is the web address of the file to be downloaded.
	URL string
	// OutputPath is the local file system path where the downloaded file will be saved.
	OutputPath string
	// Timeout sets the maximum time allowed for the HTTP download operation.
	// Defaults to 10 minutes if not specified.
	Timeout time.Duration
	// Progress is an optional progress.Reporter to receive updates on the download progress.
	Progress progress.Reporter
	// AllowOverride, if true, allows the downloader to overwrite an existing
	// file at the OutputPath. If false and the file exists, the download is
	// skipped. Provider result fetches always overwrite: a stale artifact at
	// the destination must never masquerade as the fresh one.
	AllowOverride bool
}

// Downloader fetches a remote file to disk with optional progress reporting.
// It is used both for source media and for collecting finished artifacts
// from job-based generation providers.
type Downloader struct {
	client  *http.Client
	options Options
}

// New creates a new Downloader instance configured with the provided options.
func New(options Options) *Downloader {
	if options.Timeout == 0 {
		options.Timeout = 10 * time.Minute
	}
	return &Downloader{
		client:  &http.Client{Timeout: options.Timeout},
		options: options,
	}
}

// Download fetches the URL into OutputPath. The context can be used to cancel
// the operation. Returns the final output path, or a classified error: HTTP
// failures map onto the provider error taxonomy so callers inside an adapter
// can pass them straight through.
func (d *Downloader) Download(ctx context.Context) (string, error) {
	outputDir := filepath.Dir(d.options.OutputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create output directory", errors.ErrDirCreateFailed)
	}

	if _, err := os.Stat(d.options.OutputPath); err == nil && !d.options.AllowOverride {
		logger.Info("File already exists, skipping download", "downloader", map[string]interface{}{
			"path": d.options.OutputPath,
		})
		return d.options.OutputPath, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.options.URL, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.HardError, "Failed to create HTTP request", errors.ErrProviderBadRequest)
	}

	logger.Debug("Starting download", "downloader", map[string]interface{}{
		"url":  d.options.URL,
		"path": d.options.OutputPath,
	})

	resp, err := d.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.TransientError, "Failed to download file", errors.ErrProviderTimeout)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.FromHTTPStatus("download", resp.StatusCode, fmt.Sprintf("status %s", resp.Status))
	}

	file, err := os.Create(d.options.OutputPath)
	if err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create output file", errors.ErrFileCreateFailed)
	}
	defer file.Close()

	contentLength := resp.ContentLength
	if contentLength > 0 && d.options.Progress != nil {
		d.options.Progress.Start(contentLength)
	}

	var reader io.Reader = resp.Body
	if d.options.Progress != nil && contentLength > 0 {
		reader = &progressReader{
			reader:   resp.Body,
			reporter: d.options.Progress,
		}
	}

	if _, err := io.Copy(file, reader); err != nil {
		return "", errors.Wrap(err, errors.TransientError, "Failed to write file", errors.ErrProviderTimeout)
	}

	if d.options.Progress != nil {
		d.options.Progress.Complete()
	}

	logger.Debug("Download completed", "downloader", map[string]interface{}{
		"path": d.options.OutputPath,
	})

	return d.options.OutputPath, nil
}

// progressReader is an internal io.Reader wrapper used to track download
// progress by reporting the number of bytes read via a progress.Reporter.
type progressReader struct {
	reader   io.Reader
	reporter progress.Reporter
	read     int64
}

// Read implements the io.Reader interface for progressReader.
func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.reporter.Update(pr.read, "downloading")
	}
	return n, err
}
