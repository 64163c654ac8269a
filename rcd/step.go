// Package rcd implements Recursive Constraint Demotion: it derives a
// stratified constraint ranking from a tableau of winners and losers.
//
// Each step ranks every constraint that prefers no surviving loser and
// prefers the winner of at least one surviving comparison, then discards the
// losers those constraints explain. Run repeats the step until no losers are
// left or no constraint can be ranked.
package rcd

import (
	"github.com/c360studio/otrank/tableau"
)

// Option configures Step and Run.
type Option func(o *options)

type options struct {
	markednessBias bool
	tracer         Tracer
}

// WithMarkednessBias splits each stratum into a markedness stratum followed
// by a faithfulness stratum.
func WithMarkednessBias(enabled bool) Option {
	return func(o *options) {
		o.markednessBias = enabled
	}
}

// WithTracer sets the tracer receiving progress facts.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = DefaultTracer{}
	}
	return o
}

// Pair is one row of the comparative tableau: the loser's violations minus
// the winner's, per constraint. Positive values prefer the winner.
type Pair struct {
	Competition string `json:"competition" yaml:"competition"`
	Winner      string `json:"winner" yaml:"winner"`
	Loser       string `json:"loser" yaml:"loser"`
	Values      []int  `json:"values" yaml:"values"`

	loserRow int
}

// StepResult is the outcome of one demotion step. Profiles, Comparative and
// pair values are indexed like Constraints, the columns of the input grid.
type StepResult struct {
	Iteration     int      `json:"iteration" yaml:"iteration"`
	Constraints   []string `json:"constraints" yaml:"constraints"`
	WinnerProfile []int    `json:"winner_profile" yaml:"winner_profile"`
	LoserProfile  []int    `json:"loser_profile" yaml:"loser_profile"`
	Comparative   []int    `json:"comparative" yaml:"comparative"`
	Pairs         []Pair   `json:"pairs,omitempty" yaml:"pairs,omitempty"`

	Strata    []Stratum `json:"strata,omitempty" yaml:"strata,omitempty"`
	Explained []string  `json:"explained,omitempty" yaml:"explained,omitempty"`
	Pruned    []string  `json:"pruned,omitempty" yaml:"pruned,omitempty"`

	// Grid is the reduced grid the next step starts from.
	Grid *tableau.Grid `json:"-" yaml:"-"`
	// Done is set once no rows remain.
	Done bool `json:"done" yaml:"done"`
}

// Ranked returns the constraints ranked by this step, in stratum order.
func (s StepResult) Ranked() []string {
	return Order(s.Strata).Constraints()
}

// Step performs one demotion step on g. g itself is not modified.
func Step(g *tableau.Grid, opts ...Option) (StepResult, error) {
	return step(g, 1, newOptions(opts))
}

func step(g *tableau.Grid, iteration int, o *options) (StepResult, error) {
	ncol := g.Columns()
	res := StepResult{
		Iteration:     iteration,
		Constraints:   g.ConstraintNames(),
		WinnerProfile: make([]int, ncol),
		LoserProfile:  make([]int, ncol),
		Comparative:   make([]int, ncol),
	}

	if g.Empty() {
		res.Grid = g
		res.Done = true
		return res, nil
	}

	groups := g.Groups()
	for _, grp := range groups {
		if len(grp.Winners) != 1 {
			return res, &UnrankableError{
				Reason:      ReasonWinnerCount,
				Iteration:   iteration,
				Competition: g.Competitions[grp.Competition].Input,
				Winners:     len(grp.Winners),
				Remaining:   g,
			}
		}
	}

	for _, grp := range groups {
		if len(grp.Losers) == 0 {
			continue
		}
		w := g.Candidates[grp.Winners[0]]
		maxInto(res.WinnerProfile, w.Violations)

		competitionLosers := make([]int, ncol)
		for _, row := range grp.Losers {
			l := g.Candidates[row]
			maxInto(competitionLosers, l.Violations)

			values := make([]int, ncol)
			for k := range values {
				values[k] = l.Violations[k] - w.Violations[k]
			}
			res.Pairs = append(res.Pairs, Pair{
				Competition: g.Competitions[grp.Competition].Input,
				Winner:      w.Name,
				Loser:       l.Name,
				Values:      values,
				loserRow:    row,
			})
		}
		maxInto(res.LoserProfile, competitionLosers)
	}
	for k := range res.Comparative {
		res.Comparative[k] = res.LoserProfile[k] - res.WinnerProfile[k]
	}

	// Only lone winners are left: nothing to explain.
	if len(res.Pairs) == 0 {
		res.Pruned = candidateNames(g, allRows(g))
		res.Grid = g.Without(allRows(g), nil)
		res.Done = true
		return res, nil
	}

	ranked := winnerPreferring(res.Pairs, ncol)
	if len(ranked) == 0 {
		return res, &UnrankableError{
			Reason:       ReasonNoWinnerPreferring,
			Iteration:    iteration,
			Disqualified: disqualify(g, res.Pairs),
			Remaining:    g,
		}
	}
	res.Strata = stratify(g, ranked, o.markednessBias)

	var explained []int
	for _, p := range res.Pairs {
		for _, k := range ranked {
			if p.Values[k] > 0 {
				explained = append(explained, p.loserRow)
				break
			}
		}
	}
	res.Explained = candidateNames(g, explained)
	reduced := g.Without(explained, ranked)

	var orphans []int
	for _, grp := range reduced.Groups() {
		if len(grp.Losers) == 0 {
			orphans = append(orphans, grp.Winners...)
		}
	}
	res.Pruned = candidateNames(reduced, orphans)
	res.Grid = reduced.Without(orphans, nil)
	res.Done = res.Grid.Empty()
	return res, nil
}

// winnerPreferring returns the columns that are non-negative in every pair
// and positive in at least one.
func winnerPreferring(pairs []Pair, ncol int) []int {
	var cols []int
	for k := 0; k < ncol; k++ {
		prefersWinner := false
		prefersLoser := false
		for _, p := range pairs {
			switch {
			case p.Values[k] < 0:
				prefersLoser = true
			case p.Values[k] > 0:
				prefersWinner = true
			}
		}
		if prefersWinner && !prefersLoser {
			cols = append(cols, k)
		}
	}
	return cols
}

func stratify(g *tableau.Grid, cols []int, markednessBias bool) []Stratum {
	if !markednessBias {
		names := make([]string, len(cols))
		for i, k := range cols {
			names[i] = g.Constraints[k].Name
		}
		return []Stratum{{Constraints: names}}
	}

	var markedness, faithfulness []string
	for _, k := range cols {
		c := g.Constraints[k]
		if c.Markedness {
			markedness = append(markedness, c.Name)
		} else {
			faithfulness = append(faithfulness, c.Name)
		}
	}
	var strata []Stratum
	if len(markedness) > 0 {
		strata = append(strata, Stratum{Constraints: markedness})
	}
	if len(faithfulness) > 0 {
		strata = append(strata, Stratum{Constraints: faithfulness})
	}
	return strata
}

func disqualify(g *tableau.Grid, pairs []Pair) []Disqualification {
	out := make([]Disqualification, 0, g.Columns())
	for k, c := range g.Constraints {
		d := Disqualification{Constraint: c.Name}
		for _, p := range pairs {
			if p.Values[k] < 0 {
				d.Competition = p.Competition
				d.Winner = p.Winner
				d.Loser = p.Loser
				break
			}
		}
		out = append(out, d)
	}
	return out
}

func maxInto(dst, src []int) {
	for i, v := range src {
		if v > dst[i] {
			dst[i] = v
		}
	}
}

func allRows(g *tableau.Grid) []int {
	rows := make([]int, g.Rows())
	for i := range rows {
		rows[i] = i
	}
	return rows
}

func candidateNames(g *tableau.Grid, rows []int) []string {
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = g.Candidates[r].Name
	}
	return names
}
