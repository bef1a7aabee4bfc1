package fingerprint

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// STFT frame length and hop, in samples.
const (
	WindowSize = 1024
	HopSize    = 256
)

var (
	ErrEmptySamples = errors.New("samples cannot be empty")
	ErrTooShort     = errors.New("audio too short for window size")
)

// Hamming returns an n-point Hamming window.
func Hamming(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// magnitudes keeps the lower half of the spectrum (real input is symmetric).
func magnitudes(spectrum []complex128) []float64 {
	mag := make([]float64, len(spectrum)/2)
	for i := range mag {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT computes a time-major magnitude spectrogram.
func STFT(samples []float64, windowSize, hopSize int, window []float64) ([][]float64, error) {
	if len(window) != windowSize {
		return nil, errors.New("window length must equal windowSize")
	}
	if len(samples) < windowSize {
		return nil, ErrTooShort
	}

	frames := (len(samples)-windowSize)/hopSize + 1
	spectrogram := make([][]float64, 0, frames)
	frame := make([]float64, windowSize)
	for start := 0; start+windowSize <= len(samples); start += hopSize {
		for i := range frame {
			frame[i] = samples[start+i] * window[i]
		}
		spectrogram = append(spectrogram, magnitudes(fft.FFTReal(frame)))
	}
	return spectrogram, nil
}

// ComputeSpectrogram runs a Hamming-windowed STFT over mono samples. Zero
// sizes fall back to WindowSize and HopSize.
func ComputeSpectrogram(samples []float64, sampleRate, windowSize, hopSize int) ([][]float64, error) {
	if len(samples) == 0 {
		return nil, ErrEmptySamples
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if windowSize == 0 {
		windowSize = WindowSize
	}
	if hopSize == 0 {
		hopSize = HopSize
	}
	return STFT(samples, windowSize, hopSize, Hamming(windowSize))
}
