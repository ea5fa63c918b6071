package player

import (
	"time"

	"github.com/desertthunder/dashx/internal/models"
)

// Phase tells who owns the local playback copy.
type Phase int

const (
	// Authoritative: local state mirrors the last remote observation.
	Authoritative Phase = iota
	// Optimistic: a user intent was applied locally and its command has not settled.
	Optimistic
	// Reconciling: the settle delay elapsed and the next observation overwrites local state.
	Reconciling
)

func (p Phase) String() string {
	switch p {
	case Optimistic:
		return "optimistic"
	case Reconciling:
		return "reconciling"
	default:
		return "authoritative"
	}
}

// SignificantDrift is the position difference above which a poll overrides local state.
const SignificantDrift = 3 * time.Second

// Playback is the local copy of the remote player.
type Playback struct {
	IsPlaying  bool
	Track      *models.Track
	PositionMs int
	DurationMs int
	Shuffle    bool
	Repeat     string
}

// TrackID returns the current track id or "".
func (p Playback) TrackID() string {
	if p.Track == nil {
		return ""
	}
	return p.Track.ID
}

// EventType enumerates reducer inputs.
type EventType int

const (
	IntentTogglePlay EventType = iota
	IntentNext
	IntentPrevious
	CommandFailed
	SettleStarted
	Observed
)

// Source identifies where an observation came from.
type Source int

const (
	SourceDevice Source = iota
	SourceSettle
	SourceTransfer
	SourcePoll
)

// Event is either a user intent or a remote observation. At is when it happened.
type Event struct {
	Type     EventType
	Source   Source
	Playback *Playback
	At       time.Time
}

// State is the reducer state.
type State struct {
	Phase      Phase
	Playback   Playback
	ObservedAt time.Time // when Playback.PositionMs was last accurate
	previous   *Playback
}

// NewState returns an authoritative empty state.
func NewState() State {
	return State{Phase: Authoritative, Playback: Playback{Repeat: models.RepeatOff}}
}

// PositionAt extrapolates the position to now while playing, capped at the track duration.
func (s State) PositionAt(now time.Time) int {
	pos := s.Playback.PositionMs
	if s.Playback.IsPlaying && !s.ObservedAt.IsZero() && now.After(s.ObservedAt) {
		pos += int(now.Sub(s.ObservedAt) / time.Millisecond)
	}
	if s.Playback.DurationMs > 0 {
		pos = min(pos, s.Playback.DurationMs)
	}
	return pos
}

// Reduce applies e to s. Remote observations win over local guesses, except that a poll never
// interrupts an unsettled intent and only replaces authoritative state on significant drift.
func Reduce(s State, e Event) State {
	switch e.Type {
	case IntentTogglePlay, IntentNext, IntentPrevious:
		return applyIntent(s, e)

	case CommandFailed:
		if s.previous != nil {
			s.Playback = *s.previous
		}
		s.previous = nil
		s.Phase = Authoritative
		return s

	case SettleStarted:
		if s.Phase == Optimistic {
			s.Phase = Reconciling
		}
		return s

	case Observed:
		observed := observedPlayback(e.Playback)
		if e.Source == SourcePoll {
			switch s.Phase {
			case Optimistic:
				return s
			case Authoritative:
				if !Significant(s, observed, e.At) {
					return s
				}
			}
		}
		return State{Phase: Authoritative, Playback: observed, ObservedAt: e.At}
	}

	return s
}

func applyIntent(s State, e Event) State {
	if s.Phase == Authoritative {
		prev := s.Playback
		s.previous = &prev
	}

	s.Playback.PositionMs = s.PositionAt(e.At)
	s.ObservedAt = e.At

	switch e.Type {
	case IntentTogglePlay:
		s.Playback.IsPlaying = !s.Playback.IsPlaying
	case IntentNext, IntentPrevious:
		s.Playback.PositionMs = 0
		s.Playback.IsPlaying = true
	}

	s.Phase = Optimistic
	return s
}

// Significant reports whether observed differs enough from the local state at now to replace it.
// An empty repeat mode in observed reads as off, as it does in [Reduce].
func Significant(s State, observed Playback, now time.Time) bool {
	observed = observedPlayback(&observed)
	local := s.Playback
	if local.IsPlaying != observed.IsPlaying ||
		local.TrackID() != observed.TrackID() ||
		local.Shuffle != observed.Shuffle ||
		local.Repeat != observed.Repeat {
		return true
	}

	drift := time.Duration(s.PositionAt(now)-observed.PositionMs) * time.Millisecond
	if drift < 0 {
		drift = -drift
	}
	return drift > SignificantDrift
}

// observedPlayback treats a nil observation as "nothing playing".
func observedPlayback(p *Playback) Playback {
	if p == nil {
		return Playback{Repeat: models.RepeatOff}
	}
	out := *p
	if out.Repeat == "" {
		out.Repeat = models.RepeatOff
	}
	return out
}
