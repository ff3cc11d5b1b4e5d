package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/SpectralSplit/internal/audio"
	"github.com/himanishpuri/SpectralSplit/internal/denoise"
	"github.com/himanishpuri/SpectralSplit/internal/segment"
	"github.com/himanishpuri/SpectralSplit/pkg/logger"
	"github.com/himanishpuri/SpectralSplit/pkg/utils"
)

var denoiseOpts struct {
	output string
	alpha  float64
	window int
	hop    int
	noise  time.Duration
}

var denoiseCmd = &cobra.Command{
	Use:   "denoise <audio-file>",
	Short: "Remove stationary background noise",
	Long: `Estimate a noise profile from the first half second of the recording,
subtract alpha times that profile from every frame, and write a peak
normalised mono WAV.

Examples:
  spectralsplit denoise interview.mp3
  spectralsplit denoise take.wav -o clean.wav --alpha 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		wf, err := audio.Decode(ctx, args[0], decodeConfig())
		if err != nil {
			return err
		}

		d, err := denoise.New(
			denoise.WithAlpha(denoiseOpts.alpha),
			denoise.WithWindowSize(denoiseOpts.window),
			denoise.WithHopSize(denoiseOpts.hop),
			denoise.WithNoiseWindow(denoiseOpts.noise),
			denoise.WithLogger(logger.GetLogger()),
		)
		if err != nil {
			return err
		}

		cleaned, stats, err := d.Denoise(ctx, wf)
		if err != nil {
			return err
		}

		out := denoiseOpts.output
		if out == "" {
			out = derivedName(args[0], "_cleaned")
		}
		if err := audio.SaveWAV(out, cleaned); err != nil {
			return err
		}

		printField("Input", fmt.Sprintf("%s (%d Hz, %d ch, %s)", args[0], wf.SampleRate, wf.NumChannels(), wf.Duration()))
		printField("Frames", fmt.Sprintf("%d (%d noise)", stats.Frames, stats.NoiseFrames))
		printField("Peak", fmt.Sprintf("%.4f -> %.4f", stats.InputPeak, stats.OutputPeak))
		if stats.Degenerate {
			fmt.Println(warnStyle.Render("signal is silent; wrote silence"))
		}
		printDone(out)
		return nil
	},
}

var splitOpts struct {
	outDir string
	parts  int
	start  float64
	end    float64
}

var splitCmd = &cobra.Command{
	Use:   "split <audio-file>",
	Short: "Cut a file into equal parts or one time range",
	Long: `Split a recording either into --parts equal pieces (the last piece takes
the remainder) or into the single range [--start, --end) in seconds.
Exactly one of the two modes must be given.

Examples:
  spectralsplit split lecture.wav --parts 4
  spectralsplit split lecture.wav --start 12.5 --end 30 -o clips/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		byParts := cmd.Flags().Changed("parts")
		byRange := cmd.Flags().Changed("start") || cmd.Flags().Changed("end")
		switch {
		case byParts && byRange:
			return errors.New("--parts and --start/--end are mutually exclusive")
		case !byParts && !byRange:
			return errors.New("one of --parts or --start/--end is required")
		case byRange && !(cmd.Flags().Changed("start") && cmd.Flags().Changed("end")):
			return errors.New("--start and --end must both be set")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		wf, err := audio.Decode(ctx, args[0], decodeConfig())
		if err != nil {
			return err
		}

		var segs []segment.Segment
		if byParts {
			segs, err = segment.EqualParts(wf, splitOpts.parts)
		} else {
			var seg segment.Segment
			seg, err = segment.Range(wf, splitOpts.start, splitOpts.end)
			segs = []segment.Segment{seg}
		}
		if err != nil {
			return err
		}

		if err := utils.MakeDir(splitOpts.outDir); err != nil {
			return err
		}
		base := filepath.Base(derivedName(args[0], ""))
		for _, seg := range segs {
			name := strings.TrimSuffix(base, ".wav") + fmt.Sprintf("_part%d.wav", seg.Index+1)
			if !byParts {
				name = strings.TrimSuffix(base, ".wav") + "_range.wav"
			}
			out := filepath.Join(splitOpts.outDir, name)
			if err := audio.SaveWAV(out, seg.Waveform); err != nil {
				return err
			}
			fmt.Printf("%s %s %s\n",
				labelStyle.Render(fmt.Sprintf("#%d", seg.Index+1)),
				dimStyle.Render(fmt.Sprintf("%8.3fs - %8.3fs", seg.StartSeconds(), seg.EndSeconds())),
				out)
		}
		printDone(fmt.Sprintf("%d file(s) in %s", len(segs), splitOpts.outDir))
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe <audio-file>",
	Short: "Print stream details and check that the file decodes fully",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, perr := audio.ProbeSource(ctx, audio.FFprobePath(ffmpegPath), args[0])
		if perr != nil {
			logger.GetLogger().Debugf("ffprobe unavailable (%v), decoding only", perr)
		}

		wf, err := audio.Decode(ctx, args[0], decodeConfig())
		if err != nil {
			return err
		}

		if src != nil {
			printField("Container", src.Container)
			printField("Codec", src.Codec)
			if src.BitDepth > 0 {
				printField("Bit depth", fmt.Sprint(src.BitDepth))
			}
			for _, k := range []string{"artist", "title", "album"} {
				if v := src.Tags[k]; v != "" {
					printField(strings.ToUpper(k[:1])+k[1:], v)
				}
			}
		} else {
			printField("Format", strings.TrimPrefix(audio.Ext(args[0]), "."))
		}
		printField("Duration", fmt.Sprintf("%.3fs", wf.Seconds()))
		printField("Sample rate", fmt.Sprintf("%d Hz", wf.SampleRate))
		printField("Channels", fmt.Sprint(wf.NumChannels()))
		printField("Peak", fmt.Sprintf("%.4f", wf.Peak()))

		if src == nil {
			return nil
		}
		if err := src.VerifyDecoded(wf); err != nil {
			fmt.Println(warnStyle.Render("!"), err)
			return nil
		}
		printDone("decoded length matches the container")
		return nil
	},
}

var spectrogramOpts struct {
	output string
	width  int
	height int
}

var spectrogramCmd = &cobra.Command{
	Use:   "spectrogram <audio-file>",
	Short: "Render a PNG spectrogram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := audio.Decode(cmd.Context(), args[0], decodeConfig())
		if err != nil {
			return err
		}
		out := spectrogramOpts.output
		if out == "" {
			out = strings.TrimSuffix(derivedName(args[0], ""), ".wav") + ".png"
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := audio.RenderSpectrogram(wf, f, spectrogramOpts.width, spectrogramOpts.height); err != nil {
			f.Close()
			os.Remove(out)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		printDone(out)
		return nil
	},
}

func init() {
	denoiseCmd.Flags().StringVarP(&denoiseOpts.output, "output", "o", "", "Output WAV (default <name>_cleaned.wav next to the input)")
	denoiseCmd.Flags().Float64Var(&denoiseOpts.alpha, "alpha", denoise.DefaultAlpha, "Noise threshold multiplier")
	denoiseCmd.Flags().IntVar(&denoiseOpts.window, "window", denoise.DefaultWindowSize, "STFT window size in samples")
	denoiseCmd.Flags().IntVar(&denoiseOpts.hop, "hop", denoise.DefaultHopSize, "STFT hop size in samples")
	denoiseCmd.Flags().DurationVar(&denoiseOpts.noise, "noise-window", denoise.DefaultNoiseWindow, "Leading span assumed to be noise only")

	splitCmd.Flags().StringVarP(&splitOpts.outDir, "output", "o", ".", "Output directory")
	splitCmd.Flags().IntVarP(&splitOpts.parts, "parts", "n", 0, "Number of equal parts")
	splitCmd.Flags().Float64Var(&splitOpts.start, "start", 0, "Range start in seconds")
	splitCmd.Flags().Float64Var(&splitOpts.end, "end", 0, "Range end in seconds")

	spectrogramCmd.Flags().StringVarP(&spectrogramOpts.output, "output", "o", "", "Output PNG (default <name>.png)")
	spectrogramCmd.Flags().IntVar(&spectrogramOpts.width, "width", 1024, "Image width in pixels")
	spectrogramCmd.Flags().IntVar(&spectrogramOpts.height, "height", 256, "Image height in pixels")
}

// derivedName maps "dir/My Song.mp3" to "dir/My_Song<suffix>.wav".
func derivedName(input, suffix string) string {
	name := utils.SanitizeFilename(filepath.Base(input))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(filepath.Dir(input), name+suffix+".wav")
}

func printField(label, value string) {
	fmt.Printf("%s %s\n", labelStyle.Render(fmt.Sprintf("%-12s", label+":")), value)
}

func printDone(what string) {
	fmt.Println(okStyle.Render("✓"), what)
}
