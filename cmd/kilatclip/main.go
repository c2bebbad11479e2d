package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilatlabs/kilatclip/pkg/acquire"
	"github.com/kilatlabs/kilatclip/pkg/config"
	"github.com/kilatlabs/kilatclip/pkg/logger"
	"github.com/kilatlabs/kilatclip/pkg/media"
	"github.com/kilatlabs/kilatclip/pkg/mixer"
	"github.com/kilatlabs/kilatclip/pkg/progress"
)

var (
	// Global options
	envFile string
	verbose bool

	// Acquisition options
	prompt      string
	outputPath  string
	width       int
	height      int
	seed        int64
	model       string
	orientation string
	maxRounds   int

	// Mix options
	narrationPath   string
	trackPaths      []string
	trackVolume     float64
	narrationVolume float64

	// SFX options
	effectName string
)

func main() {
	// Initialize logger
	logger.Init()

	rootCmd := &cobra.Command{
		Use:   "kilatclip",
		Short: "⚡ kilatclip - Resilient media acquisition for short-form video",
		Long: `⚡ kilatclip - Acquires generated images, video clips and mixed audio for
short-form video production. Generation runs against a ranked roster of free
and keyed providers with validation, retries and backoff, so a single flaky
provider never sinks a render.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetVerbose(verbose)
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to a .env file with provider credentials")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newImageCmd(), newVideoCmd(), newMixCmd(), newSfxCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newImageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Generate a still image via the provider roster",
		Run:   runImage,
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Text description of the image (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (required)")
	cmd.Flags().IntVar(&width, "width", 1080, "Requested width in pixels")
	cmd.Flags().IntVar(&height, "height", 1920, "Requested height in pixels")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Generation seed, 0 lets the provider choose")
	cmd.Flags().StringVar(&model, "model", "", "Provider-specific model override")
	cmd.Flags().StringVar(&orientation, "orientation", "portrait", "Required orientation: portrait, landscape, square or any")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "Override the retry round budget")
	cmd.MarkFlagRequired("prompt")
	cmd.MarkFlagRequired("output")
	return cmd
}

func newVideoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "video",
		Short: "Generate a short video clip via the provider roster",
		Run:   runVideo,
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Text description of the clip (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (required)")
	cmd.Flags().StringVar(&model, "model", "", "Video model override")
	cmd.Flags().StringVar(&orientation, "orientation", "portrait", "Required orientation: portrait, landscape, square or any")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", 0, "Override the retry round budget")
	cmd.MarkFlagRequired("prompt")
	cmd.MarkFlagRequired("output")
	return cmd
}

func newMixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mix",
		Short: "Mix a narration track with background audio",
		Run:   runMix,
	}
	cmd.Flags().StringVar(&narrationPath, "narration", "", "Primary voice track (required)")
	cmd.Flags().StringArrayVar(&trackPaths, "track", []string{}, "Background track, repeatable")
	cmd.Flags().Float64Var(&narrationVolume, "narration-volume", 1.0, "Gain applied to the narration")
	cmd.Flags().Float64Var(&trackVolume, "track-volume", 0.2, "Gain applied to every background track")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (required)")
	cmd.MarkFlagRequired("narration")
	cmd.MarkFlagRequired("output")
	return cmd
}

func newSfxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sfx",
		Short: "Synthesize a sound effect locally with FFmpeg",
		Long: "Synthesize a sound effect locally with FFmpeg.\nAvailable effects: " +
			strings.Join(mixer.Effects(), ", "),
		Run: runSfx,
	}
	cmd.Flags().StringVar(&effectName, "name", "", "Effect name (required)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("output")
	return cmd
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Info("Received signal, shutting down", "main", map[string]interface{}{
			"signal": sig.String(),
		})
		cancel()
	}()

	return ctx, cancel
}

func loadConfig() *config.Config {
	cfg, err := config.Load(envFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", "main", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return cfg
}

func parseOrientation() media.Orientation {
	switch strings.ToLower(orientation) {
	case "portrait":
		return media.Portrait
	case "landscape":
		return media.Landscape
	case "square":
		return media.Square
	case "any", "":
		return media.Any
	default:
		logger.Fatal("Invalid orientation", "main", map[string]interface{}{
			"orientation": orientation,
		})
		return media.Any
	}
}

func newSession(cfg *config.Config, roster []acquire.Descriptor, log logger.Logger) *acquire.Session {
	prober := &media.Prober{Binary: cfg.FFprobePath}
	gate := acquire.NewGate(prober, log)

	sched := acquire.NewScheduler(roster, gate, log)
	sched.BackoffIncrement = cfg.BackoffIncrement
	sched.BackoffCap = cfg.BackoffCap
	sched.AttemptTimeout = cfg.AttemptTimeout
	if maxRounds > 0 {
		sched.MaxRounds = maxRounds
	} else if cfg.MaxRounds > 0 {
		sched.MaxRounds = cfg.MaxRounds
	}
	sched.Reporter = progress.NewReporter(progress.WithDescription("acquiring"))

	session := acquire.NewSession(sched, log)
	session.Ceiling = cfg.SessionCeiling
	session.CourtesyDelay = cfg.CourtesyDelay
	return session
}

func runImage(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := loadConfig()
	log := logger.NewLogger()
	session := newSession(cfg, cfg.ImageRoster(log), log)

	req := acquire.Request{
		Kind: acquire.Image,
		Payload: acquire.Payload{
			Prompt: prompt,
			Width:  width,
			Height: height,
			Seed:   seed,
			Model:  model,
		},
		Constraints: acquire.Constraints{
			Orientation: parseOrientation(),
		},
		OutputPath: outputPath,
	}

	finish(session.Acquire(ctx, req))
}

func runVideo(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := loadConfig()
	log := logger.NewLogger()
	session := newSession(cfg, cfg.VideoRoster(log), log)

	req := acquire.Request{
		Kind: acquire.VideoClip,
		Payload: acquire.Payload{
			Prompt: prompt,
			Model:  model,
		},
		Constraints: acquire.Constraints{
			Orientation: parseOrientation(),
			// Known sample clip served by the free tier instead of a
			// generated result.
			PlaceholderShapes: []acquire.Shape{{Width: 1280, Height: 720}},
			MaxDuration:       30 * time.Second,
		},
		OutputPath: outputPath,
	}

	finish(session.Acquire(ctx, req))
}

// finish reports an acquisition result and exits non-zero on failure.
func finish(result *acquire.Result, err error) {
	if err != nil {
		attempts := 0
		if result != nil {
			attempts = len(result.Attempts)
		}
		logger.Error("Acquisition failed", "main", map[string]interface{}{
			"error":    err.Error(),
			"attempts": attempts,
		})
		os.Exit(1)
	}

	absPath, _ := filepath.Abs(result.Artifact.Path)
	logger.Info("Acquisition completed successfully", "main", map[string]interface{}{
		"output_path": absPath,
		"provider":    result.Provider,
		"elapsed":     result.Elapsed.String(),
	})
}

func runMix(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := loadConfig()
	m := mixer.New(logger.NewLogger(), mixer.WithBinary(cfg.FFmpegPath))

	job := mixer.Job{
		Narration:       narrationPath,
		NarrationVolume: narrationVolume,
		OutputPath:      outputPath,
	}
	for _, p := range trackPaths {
		job.Tracks = append(job.Tracks, mixer.Track{Path: p, Volume: trackVolume})
	}

	out, err := m.Mix(ctx, job)
	if err != nil {
		logger.Error("Mixing failed", "main", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	absPath, _ := filepath.Abs(out)
	logger.Info("Mixing completed successfully", "main", map[string]interface{}{
		"output_path": absPath,
	})
}

func runSfx(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := loadConfig()
	m := mixer.New(logger.NewLogger(), mixer.WithBinary(cfg.FFmpegPath))

	out, err := m.Synthesize(ctx, effectName, outputPath)
	if err != nil {
		logger.Error("Effect synthesis failed", "main", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	absPath, _ := filepath.Abs(out)
	logger.Info("Effect synthesized successfully", "main", map[string]interface{}{
		"output_path": absPath,
		"effect":      effectName,
	})
}
