package rcd

import (
	"errors"

	"github.com/c360studio/otrank/tableau"
)

// Result is the outcome of a complete run.
type Result struct {
	Order Order        `json:"order" yaml:"order"`
	Steps []StepResult `json:"steps" yaml:"steps"`
	// Final is the grid left when the run stopped: empty on success, the
	// unexplained remainder on failure.
	Final *tableau.Grid `json:"-" yaml:"-"`
}

// Run applies Step until every loser is explained or no constraint can be
// ranked. On success, constraints still unranked are appended as a final
// Remainder stratum so that Order partitions the constraint set.
//
// On failure Run returns the partial Result together with an
// *UnrankableError whose Order holds the same partial ranking.
func Run(g *tableau.Grid, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	res := &Result{}

	cur := g
	for iteration := 1; ; iteration++ {
		s, err := step(cur, iteration, o)
		if err != nil {
			res.Final = cur
			var ue *UnrankableError
			if errors.As(err, &ue) {
				ue.Order = res.Order.clone()
				o.tracer.TraceFailure(ue)
			}
			return res, err
		}

		res.Steps = append(res.Steps, s)
		res.Order = append(res.Order, s.Strata...)
		o.tracer.TraceStep(s)

		cur = s.Grid
		if s.Done {
			break
		}
	}

	if cur.Columns() > 0 {
		res.Order = append(res.Order, Stratum{
			Constraints: cur.ConstraintNames(),
			Remainder:   true,
		})
	}
	res.Final = cur
	return res, nil
}
