package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilatlabs/kilatclip/pkg/acquire"
)

func clearEngineEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"POLLINATIONS_API_KEY", "PRODIA_API_KEY", "STABLE_HORDE_API_KEY",
		"FFMPEG_PATH", "FFPROBE_PATH",
		"MAX_ROUNDS", "BACKOFF_INCREMENT_SECONDS", "BACKOFF_CAP_SECONDS",
		"ATTEMPT_TIMEOUT_SECONDS", "SESSION_CEILING_SECONDS", "COURTESY_DELAY_SECONDS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEngineEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.env"))
	require.NoError(t, err)

	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, acquire.DefaultMaxRounds, cfg.MaxRounds)
	assert.Equal(t, acquire.DefaultBackoffIncrement, cfg.BackoffIncrement)
	assert.Equal(t, acquire.DefaultBackoffCap, cfg.BackoffCap)
	assert.Equal(t, 3*time.Second, cfg.CourtesyDelay)
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEngineEnv(t)

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"PRODIA_API_KEY=file-key\nMAX_ROUNDS=4\nBACKOFF_CAP_SECONDS=30\n"), 0644))

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.ProdiaKey)
	assert.Equal(t, 4, cfg.MaxRounds)
	assert.Equal(t, 30*time.Second, cfg.BackoffCap)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	clearEngineEnv(t)
	t.Setenv("MAX_ROUNDS", "7")
	t.Setenv("COURTESY_DELAY_SECONDS", "0")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")

	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.env"))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MaxRounds)
	assert.Equal(t, time.Duration(0), cfg.CourtesyDelay)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
}

func TestGarbageNumbersFallBack(t *testing.T) {
	clearEngineEnv(t)
	t.Setenv("MAX_ROUNDS", "banana")
	t.Setenv("BACKOFF_INCREMENT_SECONDS", "-5")

	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.env"))
	require.NoError(t, err)

	assert.Equal(t, acquire.DefaultMaxRounds, cfg.MaxRounds)
	assert.Equal(t, acquire.DefaultBackoffIncrement, cfg.BackoffIncrement)
}

func rosterNames(roster []acquire.Descriptor) []string {
	names := make([]string, len(roster))
	for i, d := range roster {
		names[i] = d.Provider.Name()
	}
	return names
}

func TestImageRosterWithoutProdiaKey(t *testing.T) {
	cfg := &Config{}
	names := rosterNames(cfg.ImageRoster(nil))
	assert.Equal(t, []string{"pollinations", "horde", "dezgo", "perchance"}, names)
}

func TestImageRosterPromotesKeyedProdia(t *testing.T) {
	cfg := &Config{ProdiaKey: "sk-prodia"}
	names := rosterNames(cfg.ImageRoster(nil))
	assert.Equal(t, []string{"pollinations", "prodia", "horde", "dezgo", "perchance"}, names)
}

func TestVideoRoster(t *testing.T) {
	cfg := &Config{}
	names := rosterNames(cfg.VideoRoster(nil))
	assert.Equal(t, []string{"pollinations-video"}, names)
}
