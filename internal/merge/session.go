package merge

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	sitevcerrors "sitevc.dev/sitevc/internal/errors"
)

// State is the lifecycle position of a merge attempt
type State string

const (
	StateComputing          State = "computing"
	StateClassifying        State = "classifying"
	StateAwaitingResolution State = "awaiting-resolution"
	StateApplying           State = "applying"
	StateMerged             State = "merged"
	StateAborted            State = "aborted"
)

var transitions = map[State][]State{
	StateComputing:          {StateClassifying, StateAborted},
	StateClassifying:        {StateAwaitingResolution, StateApplying, StateAborted},
	StateAwaitingResolution: {StateAwaitingResolution, StateApplying, StateAborted},
	StateApplying:           {StateMerged, StateAwaitingResolution, StateAborted},
}

// CanTransition reports whether a session may move from s to next
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == StateMerged || s == StateAborted
}

// Session is the suspendable state of one merge attempt. It pins the version
// triple the merge was computed from and the picks supplied so far; the merged
// graph itself is recomputed from them.
type Session struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	Into      string      `json:"into"`
	Ancestor  string      `json:"ancestor"`
	Left      string      `json:"left"`
	Right     string      `json:"right"`
	State     State       `json:"state"`
	Conflicts ConflictSet `json:"conflicts"`
	Picks     Picks       `json:"picks"`
	// Version is the committed merge version once the session is merged
	Version   string    `json:"version,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession starts a session in the computing state
func NewSession(from, into, ancestor, left, right string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		From:      from,
		Into:      into,
		Ancestor:  ancestor,
		Left:      left,
		Right:     right,
		State:     StateComputing,
		Picks:     Picks{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the session to next
func (s *Session) Transition(next State) error {
	if !s.State.CanTransition(next) {
		return sitevcerrors.NewInvalidTransitionError(string(s.State), string(next))
	}
	s.State = next
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Resolve records the pick for one conflict
func (s *Session) Resolve(conflictID string, res Resolution) error {
	if s.State != StateAwaitingResolution {
		return sitevcerrors.NewInvalidTransitionError(string(s.State), string(StateAwaitingResolution))
	}
	c, ok := s.Conflicts.Find(conflictID)
	if !ok {
		return fmt.Errorf("%w: %s", sitevcerrors.ErrConflictNotFound, conflictID)
	}
	if res.Side != "" && !res.Side.Valid() {
		return fmt.Errorf("%w: side %q", sitevcerrors.ErrInvalidPick, res.Side)
	}
	if g, ok := c.(*GenericConflict); ok {
		for field, side := range res.Fields {
			if _, known := g.Detail(field); !known || !side.Valid() {
				return fmt.Errorf("%w: field %q side %q", sitevcerrors.ErrInvalidPick, field, side)
			}
		}
	} else if !res.Side.Valid() {
		return fmt.Errorf("%w: %s needs a side", sitevcerrors.ErrInvalidPick, conflictID)
	}
	if s.Picks == nil {
		s.Picks = Picks{}
	}
	s.Picks[conflictID] = res
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Pending returns the conflicts that still need a pick
func (s *Session) Pending() []string {
	var out []string
	for _, c := range s.Conflicts {
		if !s.Picks.Covers(c) {
			out = append(out, c.ID())
		}
	}
	return out
}

// Abort ends the session without committing
func (s *Session) Abort(reason string) error {
	if err := s.Transition(StateAborted); err != nil {
		return err
	}
	s.Reason = reason
	return nil
}
