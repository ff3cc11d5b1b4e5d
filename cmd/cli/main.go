// Command spectralsplit denoises and splits audio files locally, without
// running the HTTP server.
//
// Usage:
//
//	spectralsplit [flags] <command> [args]
//
// Commands:
//
//	denoise      - Spectral-gate a file and write <name>_cleaned.wav
//	split        - Cut a file into equal parts or one time range
//	probe        - Print container and stream details
//	spectrogram  - Render a PNG spectrogram
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/himanishpuri/SpectralSplit/internal/audio"
	"github.com/himanishpuri/SpectralSplit/pkg/logger"
)

var (
	tempDir    string
	ffmpegPath string
	logLevel   string
	quiet      bool
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#58a6ff"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3fb950"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d29922"))
)

var rootCmd = &cobra.Command{
	Use:   "spectralsplit",
	Short: "Denoise and split audio files",
	Long: `SpectralSplit removes stationary background noise from a recording by
spectral gating, and cuts recordings into equal parts or time ranges.

WAV, MP3, OGG and FLAC are decoded natively; other containers (M4A) go
through ffmpeg.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if lvl, ok := logger.ParseLevel(logLevel); ok {
			logger.SetLevel(lvl)
		}
		logger.SetOutput(os.Stderr)
		if !quiet {
			printBanner()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tempDir, "temp", getEnvOrDefault("SPECTRALSPLIT_TEMP_DIR", os.TempDir()), "Directory for ffmpeg intermediates")
	rootCmd.PersistentFlags().StringVar(&ffmpegPath, "ffmpeg", getEnvOrDefault("SPECTRALSPLIT_FFMPEG", "ffmpeg"), "ffmpeg binary")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the banner")

	rootCmd.AddCommand(denoiseCmd, splitCmd, probeCmd, spectrogramCmd)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func decodeConfig() audio.DecodeConfig {
	return audio.DecodeConfig{
		FFmpegPath: ffmpegPath,
		TempDir:    tempDir,
		Timeout:    5 * time.Minute,
	}
}

func printBanner() {
	fmt.Fprintln(os.Stderr, titleStyle.Render("SpectralSplit")+" "+dimStyle.Render("spectral denoiser and segmenter"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, warnStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
