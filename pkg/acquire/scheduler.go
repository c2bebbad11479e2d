package acquire

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kilatlabs/kilatclip/pkg/errors"
	"github.com/kilatlabs/kilatclip/pkg/logger"
	"github.com/kilatlabs/kilatclip/pkg/progress"
)

// Scheduler defaults, matching the behavior observed against free-tier
// providers: ten rounds with 10s, 20s, 30s... waits capped at a minute.
const (
	DefaultMaxRounds        = 10
	DefaultBackoffIncrement = 10 * time.Second
	DefaultBackoffCap       = 60 * time.Second
	DefaultAttemptTimeout   = 3 * time.Minute
)

// Scheduler orchestrates provider attempts across one or more rounds until
// the gate accepts a result or the retry budget is exhausted. Providers are
// tried strictly in rank order every round, back-to-back within a round (a
// failure on one provider is uncorrelated with the next), with a growing
// capped delay between full rounds only.
type Scheduler struct {
	// Providers is the ordered attempt list. Use Rank to sort descriptors.
	Providers []Descriptor
	// Gate validates every produced artifact before it counts as success.
	Gate *Gate
	// MaxRounds bounds the number of full passes over the provider list.
	MaxRounds int
	// BackoffIncrement and BackoffCap shape the inter-round delay:
	// min(round*increment, cap).
	BackoffIncrement time.Duration
	BackoffCap       time.Duration
	// AttemptTimeout bounds each individual provider invocation.
	AttemptTimeout time.Duration
	// Log receives per-attempt diagnostics. Transient provider failures are
	// expected and self-healing; they go to the log, not to the user.
	Log logger.Logger
	// Reporter receives coarse milestones. Optional.
	Reporter progress.Reporter

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewScheduler builds a Scheduler with defaults filled in.
func NewScheduler(providers []Descriptor, gate *Gate, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Scheduler{
		Providers:        Rank(providers),
		Gate:             gate,
		MaxRounds:        DefaultMaxRounds,
		BackoffIncrement: DefaultBackoffIncrement,
		BackoffCap:       DefaultBackoffCap,
		AttemptTimeout:   DefaultAttemptTimeout,
		Log:              log,
		sleep:            time.Sleep,
	}
}

// Backoff returns the delay inserted after the given 1-based round.
func (s *Scheduler) Backoff(round int) time.Duration {
	d := time.Duration(round) * s.BackoffIncrement
	if d > s.BackoffCap {
		d = s.BackoffCap
	}
	return d
}

// Run drives the acquisition for one request. It returns the accepted
// artifact and the full attempt log, or an ExhaustedError once the round
// budget is spent or the context deadline is reached. Individual provider
// failures never escape Run as errors; only exhaustion does.
func (s *Scheduler) Run(ctx context.Context, req Request) (*Artifact, []Attempt, error) {
	if len(s.Providers) == 0 {
		return nil, nil, errors.New(errors.ExhaustedError, "no providers configured", "", errors.ErrNoProviders)
	}
	if s.Gate == nil {
		s.Gate = NewGate(nil, s.Log)
	}
	if s.sleep == nil {
		s.sleep = time.Sleep
	}

	attempts := make([]Attempt, 0, s.MaxRounds*len(s.Providers))
	totalSteps := int64(s.MaxRounds * len(s.Providers))
	if s.Reporter != nil {
		s.Reporter.Start(totalSteps)
	}

	for round := 1; round <= s.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			// Session ceiling reached: do not start another round.
			return nil, attempts, s.exhausted(attempts, fmt.Sprintf("deadline reached after round %d", round-1))
		}

		s.Log.Debug("starting round", "scheduler", map[string]interface{}{
			"round":     round,
			"max":       s.MaxRounds,
			"providers": len(s.Providers),
		})

		for _, desc := range s.Providers {
			if err := ctx.Err(); err != nil {
				return nil, attempts, s.exhausted(attempts, "deadline reached mid-round")
			}

			name := desc.Provider.Name()
			if s.Reporter != nil {
				s.Reporter.Increment("trying " + name)
			}

			artifact, att := s.attempt(ctx, desc, req, round)
			attempts = append(attempts, att)
			if artifact != nil {
				// First valid result wins; remaining providers in this
				// round are not consulted for quality comparison.
				if s.Reporter != nil {
					s.Reporter.Complete()
				}
				return artifact, attempts, nil
			}
		}

		if round < s.MaxRounds {
			// The ceiling can expire during a round; never burn backoff
			// time on a session that is already over.
			if ctx.Err() != nil {
				return nil, attempts, s.exhausted(attempts, fmt.Sprintf("deadline reached after round %d", round))
			}
			wait := s.Backoff(round)
			s.Log.Info("all providers failed, backing off", "scheduler", map[string]interface{}{
				"round":   round,
				"wait_ms": wait.Milliseconds(),
			})
			s.sleep(wait)
		}
	}

	return nil, attempts, s.exhausted(attempts, "all rounds spent")
}

// attempt performs one provider invocation plus validation.
func (s *Scheduler) attempt(ctx context.Context, desc Descriptor, req Request, round int) (*Artifact, Attempt) {
	name := desc.Provider.Name()
	started := time.Now()

	attemptCtx := ctx
	var cancel context.CancelFunc
	if s.AttemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, s.AttemptTimeout)
		defer cancel()
	}

	err := desc.Provider.Attempt(attemptCtx, req, req.OutputPath)
	elapsed := time.Since(started)

	if err != nil {
		outcome := OutcomeTransient
		if errors.IsHard(err) {
			outcome = OutcomeHard
		}
		// Hard failures continue to the next provider immediately, same as
		// transient ones; the distinction matters for operators reading the
		// log, not for scheduling.
		s.Log.Debug("provider attempt failed", "scheduler", map[string]interface{}{
			"provider": name,
			"round":    round,
			"outcome":  string(outcome),
			"elapsed":  elapsed.String(),
			"error":    err.Error(),
		})
		return nil, Attempt{Provider: name, Round: round, Outcome: outcome, Elapsed: elapsed, Detail: err.Error()}
	}

	if err := s.Gate.Accept(ctx, req.OutputPath, req); err != nil {
		s.Log.Debug("artifact failed validation", "scheduler", map[string]interface{}{
			"provider": name,
			"round":    round,
			"reason":   string(ReasonOf(err)),
			"elapsed":  elapsed.String(),
		})
		return nil, Attempt{Provider: name, Round: round, Outcome: OutcomeRejected, Elapsed: elapsed, Detail: err.Error()}
	}

	stat, statErr := os.Stat(req.OutputPath)
	var size int64
	if statErr == nil {
		size = stat.Size()
	}

	s.Log.Info("artifact acquired", "scheduler", map[string]interface{}{
		"provider": name,
		"round":    round,
		"bytes":    size,
		"elapsed":  elapsed.String(),
	})

	return &Artifact{
		Path:     req.OutputPath,
		Provider: name,
		Size:     size,
	}, Attempt{Provider: name, Round: round, Outcome: OutcomeSuccess, Elapsed: elapsed}
}

func (s *Scheduler) exhausted(attempts []Attempt, detail string) error {
	if s.Reporter != nil {
		s.Reporter.Complete()
	}
	return errors.New(errors.ExhaustedError,
		"no provider produced an acceptable artifact",
		detail+": "+summarize(attempts),
		errors.ErrRoundsExhausted)
}

// summarize renders the last few attempts into a short human-readable string
// for the terminal failure message.
func summarize(attempts []Attempt) string {
	const tail = 5
	start := 0
	if len(attempts) > tail {
		start = len(attempts) - tail
	}
	out := ""
	for i, att := range attempts[start:] {
		if i > 0 {
			out += "; "
		}
		out += fmt.Sprintf("%s=%s", att.Provider, att.Outcome)
	}
	if out == "" {
		return "no attempts made"
	}
	return out
}
