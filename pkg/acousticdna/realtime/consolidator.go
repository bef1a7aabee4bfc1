package realtime

import "time"

// TrackPhase is the lifecycle of one track inside a session.
type TrackPhase int

const (
	PhaseIdle TrackPhase = iota
	PhaseActive
	PhaseFinalized
	PhaseDiscarded
)

func (p TrackPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	case PhaseFinalized:
		return "finalized"
	case PhaseDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// TrackMatchState accumulates consecutive matches for one track.
type TrackMatchState struct {
	TrackID        string
	Title          string
	Artist         string
	Phase          TrackPhase
	MatchedSeconds float64
	FirstSeen      time.Duration // stream position where the run started
	LastSeen       time.Duration
	Confidence     float64 // running max
	Votes          int     // running max
	TrackOffset    time.Duration
	Windows        int
}

func newTrackMatchState(m RawMatch, elapsedSeconds float64) *TrackMatchState {
	start := m.StreamPosition - time.Duration(elapsedSeconds*float64(time.Second))
	if start < 0 {
		start = 0
	}
	return &TrackMatchState{
		TrackID:        m.TrackID,
		Title:          m.Title,
		Artist:         m.Artist,
		Phase:          PhaseActive,
		MatchedSeconds: elapsedSeconds,
		FirstSeen:      start,
		LastSeen:       m.StreamPosition,
		Confidence:     m.Confidence,
		Votes:          m.Votes,
		TrackOffset:    m.TrackOffset,
		Windows:        1,
	}
}

// observe folds another match into the state. extend is false for repeated
// entries of the same track inside one batch.
func (s *TrackMatchState) observe(m RawMatch, elapsedSeconds float64, extend bool) {
	if extend {
		s.MatchedSeconds += elapsedSeconds
		s.Windows++
	}
	if m.StreamPosition > s.LastSeen {
		s.LastSeen = m.StreamPosition
	}
	if m.Confidence > s.Confidence {
		s.Confidence = m.Confidence
	}
	if m.Votes > s.Votes {
		s.Votes = m.Votes
	}
}

// settle moves an active state to its terminal phase.
func (s *TrackMatchState) settle(secondsThreshold float64) TrackPhase {
	if s.MatchedSeconds >= secondsThreshold {
		s.Phase = PhaseFinalized
	} else {
		s.Phase = PhaseDiscarded
	}
	return s.Phase
}

func (s *TrackMatchState) event(flushed bool) FinalizedMatchEvent {
	return FinalizedMatchEvent{
		TrackID:        s.TrackID,
		Title:          s.Title,
		Artist:         s.Artist,
		MatchedSeconds: s.MatchedSeconds,
		StreamStart:    s.FirstSeen,
		StreamEnd:      s.LastSeen,
		Confidence:     s.Confidence,
		Votes:          s.Votes,
		TrackOffset:    s.TrackOffset,
		Windows:        s.Windows,
		Flushed:        flushed,
	}
}

// Consolidator merges per-window raw matches into finalized events. A track
// is reported on the first batch in which it no longer matches, and only if
// it matched for at least the seconds threshold. It is owned by a single
// session and is not safe for concurrent use.
type Consolidator struct {
	live  map[string]*TrackMatchState
	order []string // live track ids in first-seen order
}

func NewConsolidator() *Consolidator {
	return &Consolidator{live: make(map[string]*TrackMatchState)}
}

// Consume processes the raw matches of one window. elapsedSeconds is the
// audio duration that window contributed.
func (c *Consolidator) Consume(raw []RawMatch, secondsThreshold, elapsedSeconds float64) []FinalizedMatchEvent {
	seen := make(map[string]bool, len(raw))
	for _, m := range raw {
		if m.TrackID == "" {
			continue
		}
		st, ok := c.live[m.TrackID]
		switch {
		case !ok:
			c.live[m.TrackID] = newTrackMatchState(m, elapsedSeconds)
			c.order = append(c.order, m.TrackID)
		default:
			st.observe(m, elapsedSeconds, !seen[m.TrackID])
		}
		seen[m.TrackID] = true
	}

	var events []FinalizedMatchEvent
	kept := c.order[:0]
	for _, id := range c.order {
		if seen[id] {
			kept = append(kept, id)
			continue
		}
		st := c.live[id]
		if st.settle(secondsThreshold) == PhaseFinalized {
			events = append(events, st.event(false))
		}
		delete(c.live, id)
	}
	c.order = kept
	return events
}

// Flush ends every live run: states at or above the threshold become events
// marked Flushed, the rest are dropped.
func (c *Consolidator) Flush(secondsThreshold float64) []FinalizedMatchEvent {
	var events []FinalizedMatchEvent
	for _, id := range c.order {
		st := c.live[id]
		if st.settle(secondsThreshold) == PhaseFinalized {
			events = append(events, st.event(true))
		}
	}
	c.Reset()
	return events
}

// Reset discards all live state without emitting anything.
func (c *Consolidator) Reset() {
	c.live = make(map[string]*TrackMatchState)
	c.order = nil
}

// Active returns copies of the live states in first-seen order.
func (c *Consolidator) Active() []TrackMatchState {
	out := make([]TrackMatchState, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.live[id])
	}
	return out
}

func (c *Consolidator) Len() int {
	return len(c.live)
}
