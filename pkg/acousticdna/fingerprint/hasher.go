package fingerprint

import "math"

// Hash layout: [ anchorFreq (MaxFreqBits) | targetFreq (MaxFreqBits) | deltaMs (MaxDeltaBits) ]
const (
	MaxFreqBits  = 9
	MaxDeltaBits = 14 // up to 16383 ms

	FanOut     = 6     // targets paired with each anchor
	MinDeltaMs = 10    // ignore pairs from the same frame
	MaxDeltaMs = 15000 // ignore very distant pairs
)

const (
	freqMask  = uint32(1<<MaxFreqBits) - 1
	deltaMask = uint32(1<<MaxDeltaBits) - 1
)

// createAddress packs an anchor/target pair into a 32-bit hash. ok is false
// when the pair does not fit the layout or its delta is out of range.
func createAddress(anchor, target Peak) (uint32, bool) {
	af := uint32(anchor.FreqIdx)
	tf := uint32(target.FreqIdx)
	if anchor.FreqIdx < 0 || target.FreqIdx < 0 || af > freqMask || tf > freqMask {
		return 0, false
	}

	delta := math.Round((target.Time - anchor.Time) * 1000.0)
	if delta < MinDeltaMs || delta > MaxDeltaMs || uint32(delta) > deltaMask {
		return 0, false
	}

	return af<<(MaxDeltaBits+MaxFreqBits) | tf<<MaxDeltaBits | uint32(delta), true
}

func anchorMs(p Peak) uint32 {
	return uint32(math.Round(p.Time * 1000.0))
}
