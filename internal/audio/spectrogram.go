package audio

import (
	"errors"
	"image"
	"image/draw"
	"image/png"
	"io"

	"github.com/eligwz/spectrogram"
)

const (
	DefaultSpectrogramWidth  = 1024
	DefaultSpectrogramHeight = 256
)

// RenderSpectrogram draws a magnitude spectrogram of the mono mix of wf and
// writes it to w as PNG. Zero width or height selects the defaults.
func RenderSpectrogram(wf *Waveform, w io.Writer, width, height int) error {
	if err := wf.Validate(); err != nil {
		return err
	}
	if width <= 0 {
		width = DefaultSpectrogramWidth
	}
	if height <= 0 {
		height = DefaultSpectrogramHeight
	}
	if width > 8192 || height > 4096 {
		return errors.New("spectrogram dimensions too large")
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, width, height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, linear magnitude
	spectrogram.Drawfft(
		img,
		wf.Mono(),
		uint32(wf.SampleRate),
		uint32(height),
		false,
		false,
		true,
		false,
	)

	return png.Encode(w, img)
}
