package progress

import (
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Reporter defines the interface for reporting progress during long-running
// operations such as provider acquisition or audio mixing.
// Components accept implementations of this interface to provide coarse
// milestone updates (round start, provider attempt, final result). Reporting
// is purely observational and never affects control flow.
type Reporter interface {
	// Start initializes the progress reporting with the total number of steps.
	Start(total int64)
	// Update sets the current progress to a specific value, with a description
	// of the current stage.
	Update(current int64, stage string)
	// Increment advances the progress by one step.
	Increment(stage string)
	// Complete marks the operation as finished.
	Complete()
}

// Callback is the side-channel notification shape consumed by UI layers:
// a completion fraction in [0,1] and a human-readable message.
type Callback func(fraction float64, message string)

// reporterOptions holds configuration for the DefaultReporter.
type reporterOptions struct {
	description string
	callback    Callback
	throttle    time.Duration
}

// ReporterOption is a function type used to configure a DefaultReporter.
type ReporterOption func(*reporterOptions)

// WithDescription sets the description text for the console progress bar.
func WithDescription(desc string) ReporterOption {
	return func(opts *reporterOptions) {
		opts.description = desc
	}
}

// WithCallback registers a Callback invoked on every milestone, in addition
// to the console bar.
func WithCallback(cb Callback) ReporterOption {
	return func(opts *reporterOptions) {
		opts.callback = cb
	}
}

// WithThrottle sets the minimum interval between callback invocations.
// Start and Complete are always delivered regardless of throttling.
func WithThrottle(d time.Duration) ReporterOption {
	return func(opts *reporterOptions) {
		opts.throttle = d
	}
}

// DefaultReporter is the default implementation of the Reporter interface.
// It renders a console bar on stderr via github.com/schollz/progressbar/v3
// and optionally forwards (fraction, message) pairs to a registered Callback.
type DefaultReporter struct {
	mu       sync.Mutex
	total    int64
	current  int64
	bar      *progressbar.ProgressBar
	opts     reporterOptions
	lastSent time.Time
}

// NewReporter creates a new DefaultReporter.
func NewReporter(opts ...ReporterOption) *DefaultReporter {
	options := reporterOptions{
		description: "Processing...",
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &DefaultReporter{opts: options}
}

// Start initializes the progress tracking for the DefaultReporter.
func (r *DefaultReporter) Start(total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total = total
	r.current = 0
	r.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(r.opts.description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	r.notify("starting", true)
}

// Update sets the current progress and reports it.
func (r *DefaultReporter) Update(current int64, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil {
		return
	}
	if current > r.total {
		current = r.total
	}
	r.current = current
	_ = r.bar.Set64(current)
	r.notify(stage, false)
}

// Increment increases the progress by 1 and reports it.
func (r *DefaultReporter) Increment(stage string) {
	r.Update(r.current+1, stage)
}

// Complete marks the progress as complete and finishes the progress bar.
func (r *DefaultReporter) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	r.current = r.total
	r.notify("done", true)
	r.bar = nil
}

// notify forwards the current state to the registered callback.
// Requires lock to be held by caller.
func (r *DefaultReporter) notify(stage string, force bool) {
	if r.opts.callback == nil {
		return
	}
	now := time.Now()
	if !force && now.Sub(r.lastSent) < r.opts.throttle {
		return
	}
	r.lastSent = now

	fraction := 0.0
	if r.total > 0 {
		fraction = float64(r.current) / float64(r.total)
	}
	r.opts.callback(fraction, stage)
}

// Nop is a Reporter that ignores all updates. Components treat a nil reporter
// and a Nop reporter identically.
type Nop struct{}

func (Nop) Start(int64)          {}
func (Nop) Update(int64, string) {}
func (Nop) Increment(string)     {}
func (Nop) Complete()            {}
