package acquire

import (
	"context"
	"time"

	"github.com/kilatlabs/kilatclip/pkg/logger"
)

// DefaultSessionCeiling bounds one session's total wall-clock time,
// independent of per-provider timeouts. High round counts combined with slow
// queue-based providers must not run forever.
const DefaultSessionCeiling = 30 * time.Minute

// Session is the per-request entry point the rest of the pipeline calls. It
// owns the retry budget and the overall deadline for one logical request.
// Sessions are issued one at a time per artifact; they share nothing with
// sibling sessions beyond read-only configuration.
type Session struct {
	// Scheduler drives the provider rounds.
	Scheduler *Scheduler
	// Ceiling is the overall wall-clock bound. Zero applies
	// DefaultSessionCeiling.
	Ceiling time.Duration
	// CourtesyDelay is slept after an accepted artifact before returning,
	// to stay friendly with free-tier rate limits. Zero disables it.
	CourtesyDelay time.Duration
	// Log receives session lifecycle events.
	Log logger.Logger

	sleep func(time.Duration)
}

// Result is what a completed session hands back. Provider carries the name
// of the adapter that ultimately succeeded, replacing the old shared
// "last successful provider" variable so that parallel sessions would not
// race on it.
type Result struct {
	// Artifact is the accepted deliverable. Nil when the session exhausted
	// its budget.
	Artifact *Artifact
	// Provider is the name of the succeeding provider, empty on failure.
	Provider string
	// Attempts is the full per-provider outcome log for the session.
	Attempts []Attempt
	// Elapsed is the session's total wall-clock time.
	Elapsed time.Duration
}

// NewSession builds a Session around the given scheduler.
func NewSession(sched *Scheduler, log logger.Logger) *Session {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Session{
		Scheduler: sched,
		Ceiling:   DefaultSessionCeiling,
		Log:       log,
		sleep:     time.Sleep,
	}
}

// Acquire runs the full acquisition for one request. On success the returned
// Result holds the validated artifact and the succeeding provider's name. On
// exhaustion it returns a non-nil Result carrying the attempt log together
// with an ExhaustedError.
//
// Two calls with an equivalent request may succeed via different providers
// and are not guaranteed byte-identical artifacts; both results independently
// passed validation.
func (s *Session) Acquire(ctx context.Context, req Request) (*Result, error) {
	ceiling := s.Ceiling
	if ceiling <= 0 {
		ceiling = DefaultSessionCeiling
	}
	if s.sleep == nil {
		s.sleep = time.Sleep
	}

	sessionCtx, cancel := context.WithTimeout(ctx, ceiling)
	defer cancel()

	started := time.Now()
	s.Log.Info("acquisition session started", "session", map[string]interface{}{
		"kind":       string(req.Kind),
		"output":     req.OutputPath,
		"ceiling_s":  ceiling.Seconds(),
		"max_rounds": s.Scheduler.MaxRounds,
	})

	artifact, attempts, err := s.Scheduler.Run(sessionCtx, req)
	result := &Result{
		Attempts: attempts,
		Elapsed:  time.Since(started),
	}

	if err != nil {
		s.Log.Error("acquisition exhausted", "session", map[string]interface{}{
			"kind":     string(req.Kind),
			"attempts": len(attempts),
			"elapsed":  result.Elapsed.String(),
		})
		return result, err
	}

	result.Artifact = artifact
	result.Provider = artifact.Provider

	s.Log.Info("acquisition succeeded", "session", map[string]interface{}{
		"kind":     string(req.Kind),
		"provider": artifact.Provider,
		"bytes":    artifact.Size,
		"elapsed":  result.Elapsed.String(),
	})

	if s.CourtesyDelay > 0 {
		s.sleep(s.CourtesyDelay)
	}
	return result, nil
}
