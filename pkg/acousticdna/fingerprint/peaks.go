package fingerprint

import (
	"math"
	"sort"
)

// Peak is a spectral landmark (constellation point).
type Peak struct {
	TimeIdx int     // frame index in the spectrogram
	FreqIdx int     // frequency bin index
	Time    float64 // seconds
	Freq    float64 // Hz
	MagDB   float64
}

const (
	freqNeighbour = 3   // +/- bins for the local maximum check
	timeNeighbour = 1   // +/- frames for the local maximum check
	minDbAboveAvg = 3.0 // a peak must beat the frame's band average by this much
	eps           = 1e-10
)

type band struct{ lo, hi int }

// logBands splits [0, nBins) into octave-ish bands: [0,10), [10,20), [20,40)...
func logBands(nBins int) []band {
	bands := []band{{0, min(10, nBins)}}
	for lo := 10; lo < nBins; lo *= 2 {
		hi := min(lo*2, nBins)
		bands = append(bands, band{lo, hi})
		if hi == nBins {
			break
		}
	}
	return bands
}

func toDB(mag float64) float64 {
	return 20.0 * math.Log10(mag+eps)
}

// strongest returns the loudest bin inside b.
func strongest(frame []float64, b band) (int, float64) {
	idx, mag := b.lo, 0.0
	for i := b.lo; i < b.hi && i < len(frame); i++ {
		if frame[i] > mag {
			idx, mag = i, frame[i]
		}
	}
	return idx, mag
}

func isLocalMax(spec [][]float64, t, bin int, mag float64) bool {
	for dt := -timeNeighbour; dt <= timeNeighbour; dt++ {
		ti := t + dt
		if ti < 0 || ti >= len(spec) {
			continue
		}
		for df := -freqNeighbour; df <= freqNeighbour; df++ {
			fi := bin + df
			if (dt == 0 && df == 0) || fi < 0 || fi >= len(spec[ti]) {
				continue
			}
			if spec[ti][fi] > mag {
				return false
			}
		}
	}
	return true
}

// ExtractPeaks picks the strongest bin of every band per frame and keeps it
// when it is a local maximum well above the frame's band average. Peaks are
// returned ordered by time, then frequency.
func ExtractPeaks(spectrogram [][]float64, sampleRate int) []Peak {
	if len(spectrogram) == 0 || len(spectrogram[0]) == 0 || sampleRate <= 0 {
		return nil
	}

	nBins := len(spectrogram[0])
	bands := logBands(nBins)
	freqRes := float64(sampleRate) / float64(WindowSize)
	frameTime := float64(HopSize) / float64(sampleRate)

	peaks := make([]Peak, 0, len(spectrogram)*2)
	idx := make([]int, len(bands))
	mags := make([]float64, len(bands))

	for t, frame := range spectrogram {
		var sumDb float64
		for i, b := range bands {
			idx[i], mags[i] = strongest(frame, b)
			sumDb += toDB(mags[i])
		}
		avgDb := sumDb / float64(len(bands))

		for i, mag := range mags {
			if mag <= 0 {
				continue
			}
			magDb := toDB(mag)
			if magDb < avgDb+minDbAboveAvg || !isLocalMax(spectrogram, t, idx[i], mag) {
				continue
			}
			peaks = append(peaks, Peak{
				TimeIdx: t,
				FreqIdx: idx[i],
				Time:    float64(t) * frameTime,
				Freq:    float64(idx[i]) * freqRes,
				MagDB:   magDb,
			})
		}
	}

	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].TimeIdx == peaks[j].TimeIdx {
			return peaks[i].FreqIdx < peaks[j].FreqIdx
		}
		return peaks[i].TimeIdx < peaks[j].TimeIdx
	})
	return peaks
}
