package acquire

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilatlabs/kilatclip/pkg/errors"
)

func TestSessionResultCarriesProviderName(t *testing.T) {
	p := &fakeProvider{name: "pollinations", behave: func(_ int, _ context.Context, _ Request, dest string) error {
		writeBytes(t, dest, 4096)
		return nil
	}}
	sched, _ := newTestScheduler(p)
	sess := NewSession(sched, nil)
	sess.sleep = func(time.Duration) {}

	result, err := sess.Acquire(context.Background(), narrationRequest(t))

	require.NoError(t, err)
	assert.Equal(t, "pollinations", result.Provider)
	assert.Equal(t, "pollinations", result.Artifact.Provider)
	require.Len(t, result.Attempts, 1)
}

func TestSessionCeilingStopsBeforeNewRound(t *testing.T) {
	// Each attempt blocks until the session deadline fires; the scheduler
	// must then bail out instead of starting more rounds.
	p := &fakeProvider{name: "slow", behave: func(_ int, ctx context.Context, _ Request, _ string) error {
		<-ctx.Done()
		return errors.Wrap(ctx.Err(), errors.TransientError, "provider timeout", errors.ErrProviderTimeout)
	}}
	sched, _ := newTestScheduler(p)
	sched.MaxRounds = 100
	sched.AttemptTimeout = time.Hour

	sess := NewSession(sched, nil)
	sess.Ceiling = 50 * time.Millisecond
	sess.sleep = func(time.Duration) {}

	started := time.Now()
	result, err := sess.Acquire(context.Background(), narrationRequest(t))
	elapsed := time.Since(started)

	require.Error(t, err)
	assert.Equal(t, errors.ExhaustedError, errors.TypeOf(err))
	assert.Nil(t, result.Artifact)
	assert.Less(t, elapsed, 5*time.Second, "ceiling must cut the session short")
	assert.Less(t, len(result.Attempts), 100, "nowhere near the full round budget")
}

func TestSessionExhaustionReturnsAttemptLog(t *testing.T) {
	p := &fakeProvider{name: "flaky", behave: func(int, context.Context, Request, string) error {
		return transientErr()
	}}
	sched, _ := newTestScheduler(p)
	sched.MaxRounds = 2

	sess := NewSession(sched, nil)
	result, err := sess.Acquire(context.Background(), narrationRequest(t))

	require.Error(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Attempts, 2)
	assert.Empty(t, result.Provider)
}

func TestSessionCourtesyDelayAfterSuccess(t *testing.T) {
	p := &fakeProvider{name: "fast", behave: func(_ int, _ context.Context, _ Request, dest string) error {
		writeBytes(t, dest, 4096)
		return nil
	}}
	sched, _ := newTestScheduler(p)
	sess := NewSession(sched, nil)
	sess.CourtesyDelay = 5 * time.Millisecond

	var slept []time.Duration
	sess.sleep = func(d time.Duration) { slept = append(slept, d) }

	_, err := sess.Acquire(context.Background(), narrationRequest(t))

	require.NoError(t, err)
	require.Len(t, slept, 1)
	assert.Equal(t, 5*time.Millisecond, slept[0])
}

func TestSessionIndependentRequestsDoNotShareState(t *testing.T) {
	mkSession := func(name string) *Session {
		p := &fakeProvider{name: name, behave: func(_ int, _ context.Context, _ Request, dest string) error {
			writeBytes(t, dest, 4096)
			return nil
		}}
		sched, _ := newTestScheduler(p)
		return NewSession(sched, nil)
	}

	r1, err := mkSession("alpha").Acquire(context.Background(), Request{
		Kind:        Narration,
		Constraints: Constraints{MinBytes: 1000},
		OutputPath:  filepath.Join(t.TempDir(), "a.mp3"),
	})
	require.NoError(t, err)

	r2, err := mkSession("beta").Acquire(context.Background(), Request{
		Kind:        Narration,
		Constraints: Constraints{MinBytes: 1000},
		OutputPath:  filepath.Join(t.TempDir(), "b.mp3"),
	})
	require.NoError(t, err)

	assert.Equal(t, "alpha", r1.Provider)
	assert.Equal(t, "beta", r2.Provider)
}
