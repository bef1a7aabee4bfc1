package fingerprint

import (
	"sort"

	"github.com/himanishpuri/acousticdna-live/pkg/models"
)

// pairs walks the anchor/target fan-out shared by indexing and querying.
func pairs(peaks []Peak, fn func(addr uint32, anchor Peak)) {
	sorted := make([]Peak, len(peaks))
	copy(sorted, peaks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	for i, anchor := range sorted {
		paired := 0
		for j := i + 1; j < len(sorted) && paired < FanOut; j++ {
			addr, ok := createAddress(anchor, sorted[j])
			if !ok {
				continue
			}
			fn(addr, anchor)
			paired++
		}
	}
}

// Fingerprint maps every hash of the peaks to the (track, anchor time)
// couples that produced it.
func Fingerprint(peaks []Peak, trackID string) map[uint32][]models.Couple {
	fp := make(map[uint32][]models.Couple)
	pairs(peaks, func(addr uint32, anchor Peak) {
		fp[addr] = append(fp[addr], models.Couple{TrackID: trackID, AnchorTimeMs: anchorMs(anchor)})
	})
	return fp
}

// Hashes returns the distinct hashes of the peaks.
func Hashes(peaks []Peak) []uint32 {
	seen := make(map[uint32]struct{})
	out := make([]uint32, 0)
	pairs(peaks, func(addr uint32, _ Peak) {
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	})
	return out
}

// Vote aligns query peaks against db buckets. Each track gets the count of
// its most popular offset; results are sorted by count, then track id.
func Vote(queryPeaks []Peak, db map[uint32][]models.Couple) []models.Match {
	votes := make(map[string]map[int32]int)
	pairs(queryPeaks, func(addr uint32, anchor Peak) {
		for _, c := range db[addr] {
			offset := int32(c.AnchorTimeMs) - int32(anchorMs(anchor))
			m, ok := votes[c.TrackID]
			if !ok {
				m = make(map[int32]int)
				votes[c.TrackID] = m
			}
			m[offset]++
		}
	})

	matches := make([]models.Match, 0, len(votes))
	for trackID, offsets := range votes {
		best := models.Match{TrackID: trackID}
		for off, n := range offsets {
			if n > best.Count || (n == best.Count && off < best.OffsetMs) {
				best.Count, best.OffsetMs = n, off
			}
		}
		if best.Count > 0 {
			matches = append(matches, best)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Count == matches[j].Count {
			return matches[i].TrackID < matches[j].TrackID
		}
		return matches[i].Count > matches[j].Count
	})
	return matches
}
