// Package netconfig defines lightweight types shared between writers and readers
// of synchronized entity state. It must have zero dependencies on any graphics
// library so headless hosts and tools can import it freely.
package netconfig

import (
	"errors"
	"fmt"
	"time"
)

const (
	// FrameCount is the number of slots in every frame ring. It is fixed by the
	// wire format: frame ids travel as FrameIDBits-wide integers.
	FrameCount = 60

	// FrameIDBits is the width of the frame id field in the wire header.
	FrameIDBits = 6

	// EntityIDBits is the width of the entity id field in the wire header.
	EntityIDBits = 32
)

// Default jitter-buffer thresholds.
const (
	DefaultMinBuffer             = 1
	DefaultTargetBuffer          = 2
	DefaultMaxBuffer             = 3
	DefaultTicksBeforeCorrection = 5
	DefaultMaxLookahead          = 3
	DefaultAgeOutDistance        = 4
	DefaultWindowSize            = FrameCount / 4
	DefaultFutureHalfRange       = FrameCount / 2
	DefaultKeyframeInterval      = 12
)

// Authority selects which participant writes an entity's state.
type Authority int

const (
	AuthorityOwner  Authority = iota // The owning peer writes
	AuthorityMaster                  // The master (host) writes
	AuthorityAuto                    // The owner if one is assigned, else the master
)

var authorityNames = map[Authority]string{
	AuthorityOwner:  "owner",
	AuthorityMaster: "master",
	AuthorityAuto:   "auto",
}

func (a Authority) String() string {
	if name, ok := authorityNames[a]; ok {
		return name
	}
	return "unknown"
}

// ParseAuthority maps a name produced by Authority.String back to its value.
func ParseAuthority(s string) (Authority, error) {
	for a, name := range authorityNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown authority %q", s)
}

// PeerID identifies a participant. Zero means "no peer".
type PeerID uint32

// Role describes the local process.
type Role struct {
	Peer     PeerID
	IsMaster bool
}

// IsWriter reports whether the local process writes an entity with the given
// authority mode and owner.
func (r Role) IsWriter(a Authority, owner PeerID) bool {
	switch a {
	case AuthorityOwner:
		return owner != 0 && owner == r.Peer
	case AuthorityMaster:
		return r.IsMaster
	case AuthorityAuto:
		if owner != 0 {
			return owner == r.Peer
		}
		return r.IsMaster
	}
	return false
}

// Tuning holds the empirically tuned constants of the jitter buffer. They are
// parameters rather than invariants; Validate rejects unusable combinations.
type Tuning struct {
	MinBuffer             int           `json:"minBuffer"`
	TargetBuffer          int           `json:"targetBuffer"`
	MaxBuffer             int           `json:"maxBuffer"`
	TicksBeforeCorrection int           `json:"ticksBeforeCorrection"`
	MaxLookahead          int           `json:"maxLookahead"`
	AgeOutDistance        int           `json:"ageOutDistance"`
	WindowSize            int           `json:"windowSize"`
	FutureHalfRange       int           `json:"futureHalfRange"`
	BacklogWindow         time.Duration `json:"backlogWindow"`
}

// DefaultTuning returns the stock thresholds.
func DefaultTuning() Tuning {
	return Tuning{
		MinBuffer:             DefaultMinBuffer,
		TargetBuffer:          DefaultTargetBuffer,
		MaxBuffer:             DefaultMaxBuffer,
		TicksBeforeCorrection: DefaultTicksBeforeCorrection,
		MaxLookahead:          DefaultMaxLookahead,
		AgeOutDistance:        DefaultAgeOutDistance,
		WindowSize:            DefaultWindowSize,
		FutureHalfRange:       DefaultFutureHalfRange,
		BacklogWindow:         250 * time.Millisecond,
	}
}

var (
	ErrBufferThresholds = errors.New("buffer thresholds must satisfy 0 <= min <= target <= max < window")
	ErrWindow           = errors.New("window size must be within (0, FrameCount/2]")
	ErrLookahead        = errors.New("lookahead must be within [1, window]")
	ErrAgeOut           = errors.New("age-out distance must be within [4, FrameCount-window)")
)

// Validate checks the invariants the coordinator relies on.
func (t Tuning) Validate() error {
	if t.WindowSize <= 0 || t.WindowSize > FrameCount/2 {
		return ErrWindow
	}
	if t.MinBuffer < 0 || t.MinBuffer > t.TargetBuffer || t.TargetBuffer > t.MaxBuffer || t.MaxBuffer >= t.WindowSize {
		return ErrBufferThresholds
	}
	if t.MaxLookahead < 1 || t.MaxLookahead > t.WindowSize {
		return ErrLookahead
	}
	// pre2 sits three slots behind the target; aging must not reach it.
	if t.AgeOutDistance < 4 || t.AgeOutDistance >= FrameCount-t.WindowSize {
		return ErrAgeOut
	}
	if t.FutureHalfRange <= 0 || t.FutureHalfRange > FrameCount/2 {
		return fmt.Errorf("future half range %d out of (0, %d]", t.FutureHalfRange, FrameCount/2)
	}
	if t.TicksBeforeCorrection < 1 {
		return fmt.Errorf("ticks before correction must be positive, got %d", t.TicksBeforeCorrection)
	}
	if t.BacklogWindow < 0 {
		return fmt.Errorf("negative backlog window %s", t.BacklogWindow)
	}
	return nil
}
