// Package tableau holds the Optimality Theory tableau model: constraints,
// competitions and candidate rows with their violation counts.
//
// A Grid is never edited in place. Narrowing operations such as Without
// return a fresh Grid, so a Grid handed to a caller stays valid for as long
// as it is referenced.
package tableau

import (
	"fmt"
	"slices"
)

// Constraint is one column of a tableau.
type Constraint struct {
	Name string `json:"name" yaml:"name"`
	// Markedness is true for markedness constraints and false for
	// faithfulness constraints. It is fixed when the tableau is loaded.
	Markedness bool `json:"markedness" yaml:"markedness"`
}

// Competition groups the candidates that share one input form.
type Competition struct {
	Input string `json:"input" yaml:"input"`
}

// Candidate is one row of a tableau.
type Candidate struct {
	Name string `json:"name" yaml:"name"`
	// Competition indexes Grid.Competitions.
	Competition int   `json:"competition" yaml:"competition"`
	Winner      bool  `json:"winner" yaml:"winner"`
	Violations  []int `json:"violations" yaml:"violations"`
}

// Grid is a candidates x constraints matrix of violation counts.
type Grid struct {
	Constraints  []Constraint  `json:"constraints" yaml:"constraints"`
	Competitions []Competition `json:"competitions" yaml:"competitions"`
	Candidates   []Candidate   `json:"candidates" yaml:"candidates"`
}

// Group is the set of rows belonging to one competition, in grid order.
type Group struct {
	Competition int
	Winners     []int
	Losers      []int
}

// Rows returns the number of candidate rows.
func (g *Grid) Rows() int {
	return len(g.Candidates)
}

// Columns returns the number of constraint columns.
func (g *Grid) Columns() int {
	return len(g.Constraints)
}

// Empty reports whether the grid has no candidate rows left.
func (g *Grid) Empty() bool {
	return len(g.Candidates) == 0
}

// ConstraintNames returns the constraint names in column order.
func (g *Grid) ConstraintNames() []string {
	names := make([]string, len(g.Constraints))
	for i, c := range g.Constraints {
		names[i] = c.Name
	}
	return names
}

// ConstraintIndex returns the column of the named constraint, or -1.
func (g *Grid) ConstraintIndex(name string) int {
	for i, c := range g.Constraints {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// CompetitionName returns the input form of the competition a row belongs to.
func (g *Grid) CompetitionName(row int) string {
	idx := g.Candidates[row].Competition
	if idx < 0 || idx >= len(g.Competitions) {
		return ""
	}
	return g.Competitions[idx].Input
}

// Groups partitions the rows by competition. Groups are ordered by the first
// row of each competition.
func (g *Grid) Groups() []Group {
	var groups []Group
	pos := make(map[int]int)
	for row, cand := range g.Candidates {
		i, ok := pos[cand.Competition]
		if !ok {
			i = len(groups)
			pos[cand.Competition] = i
			groups = append(groups, Group{Competition: cand.Competition})
		}
		if cand.Winner {
			groups[i].Winners = append(groups[i].Winners, row)
		} else {
			groups[i].Losers = append(groups[i].Losers, row)
		}
	}
	return groups
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	return g.Without(nil, nil)
}

// Without returns a new grid lacking the given rows and columns. Indices
// refer to g; out-of-range indices are ignored.
func (g *Grid) Without(rows, columns []int) *Grid {
	dropRow := make(map[int]bool, len(rows))
	for _, r := range rows {
		dropRow[r] = true
	}
	dropCol := make(map[int]bool, len(columns))
	for _, c := range columns {
		dropCol[c] = true
	}

	out := &Grid{
		Constraints:  make([]Constraint, 0, len(g.Constraints)),
		Competitions: slices.Clone(g.Competitions),
		Candidates:   make([]Candidate, 0, len(g.Candidates)),
	}
	for i, c := range g.Constraints {
		if !dropCol[i] {
			out.Constraints = append(out.Constraints, c)
		}
	}
	for i, cand := range g.Candidates {
		if dropRow[i] {
			continue
		}
		v := make([]int, 0, len(out.Constraints))
		for j, n := range cand.Violations {
			if !dropCol[j] {
				v = append(v, n)
			}
		}
		cand.Violations = v
		out.Candidates = append(out.Candidates, cand)
	}
	return out
}

// Validate checks the structural invariants of a grid: unique constraint
// names, one count per constraint on every row, non-negative counts, valid
// competition references and exactly one winner per competition present.
func (g *Grid) Validate() error {
	seen := make(map[string]bool, len(g.Constraints))
	for _, c := range g.Constraints {
		if c.Name == "" {
			return fmt.Errorf("%w: empty constraint name", ErrMalformed)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate constraint %q", ErrMalformed, c.Name)
		}
		seen[c.Name] = true
	}

	for _, cand := range g.Candidates {
		if len(cand.Violations) != len(g.Constraints) {
			return fmt.Errorf("%w: candidate %q has %d counts for %d constraints",
				ErrMalformed, cand.Name, len(cand.Violations), len(g.Constraints))
		}
		for j, n := range cand.Violations {
			if n < 0 {
				return fmt.Errorf("%w: candidate %q has negative count on %q",
					ErrMalformed, cand.Name, g.Constraints[j].Name)
			}
		}
		if cand.Competition < 0 || cand.Competition >= len(g.Competitions) {
			return fmt.Errorf("%w: candidate %q references unknown competition %d",
				ErrMalformed, cand.Name, cand.Competition)
		}
	}

	for _, grp := range g.Groups() {
		if n := len(grp.Winners); n != 1 {
			return fmt.Errorf("%w: competition %q has %d winners",
				ErrMalformed, g.Competitions[grp.Competition].Input, n)
		}
	}
	return nil
}
