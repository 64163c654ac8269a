package rcd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/otrank/tableau"
)

// ErrUnrankable matches every *UnrankableError through errors.Is.
var ErrUnrankable = errors.New("unrankable input")

// Reason is a stable category for an UnrankableError. Branch on it rather
// than on the error text.
type Reason string

const (
	// ReasonNoWinnerPreferring means losers remain but every constraint
	// either prefers one of them or prefers no winner at all.
	ReasonNoWinnerPreferring Reason = "no-winner-preferring"
	// ReasonWinnerCount means a competition has zero or several winners.
	ReasonWinnerCount Reason = "winner-count"
)

// Disqualification explains why one constraint could not be ranked.
// Loser is empty when the constraint prefers no winner anywhere.
type Disqualification struct {
	Constraint  string `json:"constraint" yaml:"constraint"`
	Competition string `json:"competition,omitempty" yaml:"competition,omitempty"`
	Winner      string `json:"winner,omitempty" yaml:"winner,omitempty"`
	Loser       string `json:"loser,omitempty" yaml:"loser,omitempty"`
}

func (d Disqualification) String() string {
	if d.Loser == "" {
		return fmt.Sprintf("%s prefers no winner", d.Constraint)
	}
	return fmt.Sprintf("%s prefers loser %s over %s in %s", d.Constraint, d.Loser, d.Winner, d.Competition)
}

// UnrankableError reports that a tableau is inconsistent with a stratified
// ranking. Order holds the strata established before the failure.
type UnrankableError struct {
	Reason    Reason
	Iteration int
	// Competition and Winners are set for ReasonWinnerCount.
	Competition string
	Winners     int
	// Disqualified is set for ReasonNoWinnerPreferring, one entry per
	// remaining constraint.
	Disqualified []Disqualification
	Order        Order
	Remaining    *tableau.Grid
}

func (e *UnrankableError) Error() string {
	switch e.Reason {
	case ReasonWinnerCount:
		return fmt.Sprintf("%s: competition %s has %d winners, want exactly 1",
			ErrUnrankable, e.Competition, e.Winners)
	default:
		msg := fmt.Sprintf("%s: no winner-preferring constraint at iteration %d; is there more than one winner?",
			ErrUnrankable, e.Iteration)
		if len(e.Disqualified) == 0 {
			return msg
		}
		parts := make([]string, len(e.Disqualified))
		for i, d := range e.Disqualified {
			parts[i] = d.String()
		}
		return msg + " (" + strings.Join(parts, "; ") + ")"
	}
}

// Is makes errors.Is(err, ErrUnrankable) hold.
func (e *UnrankableError) Is(target error) bool {
	return target == ErrUnrankable
}

// IsReason reports whether err is (or wraps) an UnrankableError with the
// given reason.
func IsReason(err error, reason Reason) bool {
	var ue *UnrankableError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.Reason == reason
}
