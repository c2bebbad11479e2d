// Package config loads credentials and engine tuning from the environment,
// with optional .env support, and builds the ranked provider roster the
// acquisition engine runs against.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kilatlabs/kilatclip/pkg/acquire"
	"github.com/kilatlabs/kilatclip/pkg/logger"
	"github.com/kilatlabs/kilatclip/pkg/providers/dezgo"
	"github.com/kilatlabs/kilatclip/pkg/providers/horde"
	"github.com/kilatlabs/kilatclip/pkg/providers/perchance"
	"github.com/kilatlabs/kilatclip/pkg/providers/pollinations"
	"github.com/kilatlabs/kilatclip/pkg/providers/prodia"
)

// Config holds all process-level settings. Credentials are read once at
// startup; a missing key quietly drops or demotes the provider that needs
// it instead of erroring.
type Config struct {
	PollinationsKey string
	ProdiaKey       string
	HordeKey        string

	FFmpegPath  string
	FFprobePath string

	MaxRounds        int
	BackoffIncrement time.Duration
	BackoffCap       time.Duration
	AttemptTimeout   time.Duration
	SessionCeiling   time.Duration
	CourtesyDelay    time.Duration
}

// Load reads configuration from the environment. If envFile is non-empty it
// is loaded first; a missing .env is not an error, the environment simply
// wins as-is.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		PollinationsKey: os.Getenv("POLLINATIONS_API_KEY"),
		ProdiaKey:       os.Getenv("PRODIA_API_KEY"),
		HordeKey:        os.Getenv("STABLE_HORDE_API_KEY"),

		FFmpegPath:  envString("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: envString("FFPROBE_PATH", "ffprobe"),

		MaxRounds:        envInt("MAX_ROUNDS", acquire.DefaultMaxRounds),
		BackoffIncrement: envSeconds("BACKOFF_INCREMENT_SECONDS", acquire.DefaultBackoffIncrement),
		BackoffCap:       envSeconds("BACKOFF_CAP_SECONDS", acquire.DefaultBackoffCap),
		AttemptTimeout:   envSeconds("ATTEMPT_TIMEOUT_SECONDS", acquire.DefaultAttemptTimeout),
		SessionCeiling:   envSeconds("SESSION_CEILING_SECONDS", acquire.DefaultSessionCeiling),
		CourtesyDelay:    envSeconds("COURTESY_DELAY_SECONDS", 3*time.Second),
	}
	return cfg, nil
}

// ImageRoster builds the ranked image provider list for one session.
// Pollinations leads as the fastest free endpoint. Prodia joins only when
// its key is configured, ranked above the queue-based anonymous providers
// because paid jobs clear in seconds. Horde, Dezgo and Perchance close the
// list in order of observed reliability.
func (c *Config) ImageRoster(log logger.Logger) []acquire.Descriptor {
	roster := []acquire.Descriptor{
		{Rank: 1, Provider: pollinations.New(c.PollinationsKey, log)},
	}
	if c.ProdiaKey != "" {
		roster = append(roster, acquire.Descriptor{Rank: 2, Provider: prodia.New(c.ProdiaKey, log)})
	}
	roster = append(roster,
		acquire.Descriptor{Rank: 3, Provider: horde.New(c.HordeKey, log)},
		acquire.Descriptor{Rank: 4, Provider: dezgo.New(log)},
		acquire.Descriptor{Rank: 5, Provider: perchance.New(log)},
	)
	return acquire.Rank(roster)
}

// VideoRoster builds the ranked clip provider list. Only Pollinations
// serves motion today.
func (c *Config) VideoRoster(log logger.Logger) []acquire.Descriptor {
	return []acquire.Descriptor{
		{Rank: 1, Provider: pollinations.NewVideo(c.PollinationsKey, log)},
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
