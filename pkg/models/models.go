package models

// Couple is the stored value for a hash bucket entry.
// AnchorTimeMs is the time (in ms) of the anchor peak in the source audio.
type Couple struct {
	TrackID      string // UUID of the track
	AnchorTimeMs uint32
}

// Match is a candidate produced by offset voting.
type Match struct {
	TrackID  string
	OffsetMs int32 // dbAnchorTimeMs - queryAnchorTimeMs
	Count    int   // votes in the winning offset bin
}

// Track is an indexed recording.
type Track struct {
	ID         string
	Title      string
	Artist     string
	DurationMs int
}

// MatchResult is a Match resolved against the track table and scored.
type MatchResult struct {
	TrackID    string
	Title      string
	Artist     string
	Score      int     // aligned fingerprint hashes
	OffsetMs   int32   // position in the track where the query aligns
	Confidence float64 // 0-100
}
