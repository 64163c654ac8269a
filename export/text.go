package export

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/c360studio/otrank/rcd"
	"github.com/c360studio/otrank/tableau"
)

const (
	separator      = "|"
	inputSeparator = "="
)

// GridRows lays a grid out as rows of cells: a header row, one row per input
// form and one row per candidate. Marks are written as repeated '*', zero as
// '-'.
func GridRows(g *tableau.Grid) [][]string {
	header := []string{tableau.EmptyCell, tableau.EmptyCell}
	header = append(header, g.ConstraintNames()...)
	rows := [][]string{header}

	prev := -1
	for _, cand := range g.Candidates {
		if cand.Competition != prev {
			prev = cand.Competition
			if input := g.Competitions[cand.Competition].Input; strings.Contains(input, tableau.InputMarker) {
				row := []string{input}
				for i := 1; i < len(header); i++ {
					row = append(row, tableau.EmptyCell)
				}
				rows = append(rows, row)
			}
		}

		flag := tableau.EmptyCell
		if cand.Winner {
			flag = tableau.WinnerFlag
		}
		row := []string{cand.Name, flag}
		for _, n := range cand.Violations {
			row = append(row, marks(n))
		}
		rows = append(rows, row)
	}
	return rows
}

// FinalRows lays g out with its columns reordered by order and a separator
// column in front of every stratum and after the last one. Constraints the
// order does not mention are kept in a trailing group.
func FinalRows(g *tableau.Grid, order rcd.Order) [][]string {
	var groups [][]int
	placed := make(map[int]bool)
	for _, s := range order {
		var cols []int
		for _, name := range s.Constraints {
			if k := g.ConstraintIndex(name); k >= 0 && !placed[k] {
				placed[k] = true
				cols = append(cols, k)
			}
		}
		if len(cols) > 0 {
			groups = append(groups, cols)
		}
	}
	var rest []int
	for k := range g.Constraints {
		if !placed[k] {
			rest = append(rest, k)
		}
	}
	if len(rest) > 0 {
		groups = append(groups, rest)
	}

	src := GridRows(g)
	out := make([][]string, len(src))
	for i, row := range src {
		sep := separator
		if i > 0 && strings.Contains(row[0], tableau.InputMarker) {
			sep = inputSeparator
		}
		line := []string{row[0], row[1], sep}
		for _, cols := range groups {
			for _, k := range cols {
				line = append(line, row[k+2])
			}
			line = append(line, sep)
		}
		out[i] = line
	}
	return out
}

// WriteTable writes rows under a banner title with every column padded to
// its widest cell.
func WriteTable(w io.Writer, title string, rows [][]string) error {
	widths := columnWidths(rows)

	var sb strings.Builder
	fill := strings.Repeat("=", utf8.RuneCountInString(title)+5)
	fmt.Fprintf(&sb, "\n%s\n%s\n%s\n", fill, title, fill)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(cell)
			if i < len(row)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)))
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeText(w io.Writer, r *Report) error {
	if r.Tableau != nil {
		if err := WriteTable(w, fmt.Sprintf("Data drawn from '%s':", r.Dataset), GridRows(r.Tableau)); err != nil {
			return err
		}
	}

	for _, s := range r.Steps {
		if len(s.Strata) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "Constraints that are winner-preferring: %s\nCandidates that are explained: %s\n",
			strings.Join(s.Ranked(), ", "), strings.Join(s.Explained, ", ")); err != nil {
			return err
		}
		if s.Grid != nil {
			if err := WriteTable(w, fmt.Sprintf("Tableau at iteration %d", s.Iteration), GridRows(s.Grid)); err != nil {
				return err
			}
		}
	}

	title := "Final Constraint Ranking:"
	if r.Status != StatusRanked {
		title = "Partial Constraint Ranking:"
	}
	fill := strings.Repeat("=", len(title)+5)
	if _, err := fmt.Fprintf(w, "%s\n%s\n%s\n%s\n\n", fill, title, fill, r.Order); err != nil {
		return err
	}
	if r.Failure != nil {
		if _, err := fmt.Fprintf(w, "Ranking failed: %s\n", r.Failure.Message); err != nil {
			return err
		}
	}

	if r.Tableau != nil {
		return WriteTable(w, "Final Tableau", FinalRows(r.Tableau, r.Order))
	}
	return nil
}

func columnWidths(rows [][]string) []int {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			n := utf8.RuneCountInString(cell)
			if i >= len(widths) {
				widths = append(widths, n)
			} else if n > widths[i] {
				widths[i] = n
			}
		}
	}
	return widths
}

func marks(n int) string {
	if n <= 0 {
		return tableau.EmptyCell
	}
	return strings.Repeat("*", n)
}
