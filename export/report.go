// Package export renders ranking results for people and for other programs.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/otrank/rcd"
	"github.com/c360studio/otrank/tableau"
)

// Status summarizes how a run ended.
type Status string

const (
	StatusRanked     Status = "ranked"
	StatusUnrankable Status = "unrankable"
	StatusError      Status = "error"
)

// Failure describes why a run did not produce a complete ranking.
type Failure struct {
	Reason       string                 `json:"reason,omitempty" yaml:"reason,omitempty"`
	Message      string                 `json:"message" yaml:"message"`
	Iteration    int                    `json:"iteration,omitempty" yaml:"iteration,omitempty"`
	Disqualified []rcd.Disqualification `json:"disqualified,omitempty" yaml:"disqualified,omitempty"`
}

// Report is the exported form of one ranking run.
type Report struct {
	RunID          string           `json:"run_id" yaml:"run_id"`
	Dataset        string           `json:"dataset" yaml:"dataset"`
	DatasetCID     string           `json:"dataset_cid,omitempty" yaml:"dataset_cid,omitempty"`
	CreatedAt      time.Time        `json:"created_at" yaml:"created_at"`
	MarkednessBias bool             `json:"markedness_bias" yaml:"markedness_bias"`
	Status         Status           `json:"status" yaml:"status"`
	Order          rcd.Order        `json:"order" yaml:"order"`
	Steps          []rcd.StepResult `json:"steps,omitempty" yaml:"steps,omitempty"`
	Failure        *Failure         `json:"failure,omitempty" yaml:"failure,omitempty"`
	Tableau        *tableau.Grid    `json:"tableau,omitempty" yaml:"tableau,omitempty"`
}

// NewReport builds a report from a run. res and g may be nil when the run
// never started (for instance when the dataset failed to load).
func NewReport(dataset string, g *tableau.Grid, res *rcd.Result, err error) *Report {
	r := &Report{
		RunID:     uuid.NewString(),
		Dataset:   dataset,
		CreatedAt: time.Now().UTC(),
		Status:    StatusRanked,
		Tableau:   g,
	}
	if res != nil {
		r.Order = res.Order
		r.Steps = res.Steps
	}
	if err == nil {
		return r
	}

	var ue *rcd.UnrankableError
	if errors.As(err, &ue) {
		r.Status = StatusUnrankable
		r.Failure = &Failure{
			Reason:       string(ue.Reason),
			Message:      ue.Error(),
			Iteration:    ue.Iteration,
			Disqualified: ue.Disqualified,
		}
		return r
	}
	r.Status = StatusError
	r.Failure = &Failure{Message: err.Error()}
	return r
}

// Write serializes r to w in the given format.
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatText:
		return writeText(w, r)
	case FormatMarkdown:
		return writeMarkdown(w, r)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// Export serializes r to a string in the given format.
func Export(r *Report, format Format) (string, error) {
	var sb strings.Builder
	if err := Write(&sb, r, format); err != nil {
		return "", err
	}
	return sb.String(), nil
}
