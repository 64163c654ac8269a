package tableau

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	// InputMarker in a row name marks the row as an input form that opens
	// a new competition, e.g. "/pata/".
	InputMarker = "/"
	// WinnerFlag in column 1 marks the winning candidate of a competition.
	WinnerFlag = "1"
	// EmptyCell is what blank cells read as.
	EmptyCell = "-"
)

// Options controls how a tableau file is read.
type Options struct {
	// Delimiter separates cells. Zero means ','.
	Delimiter rune
	// Glyph is the violation mark; a cell's count is the number of glyphs
	// it contains. Zero means '*'.
	Glyph rune
	// MarkednessPrefix classifies a constraint as markedness when its name
	// starts with it. Empty disables prefix classification.
	MarkednessPrefix string
	// Markedness and Faithfulness force the class of the named constraints.
	// Faithfulness wins when a name is listed in both.
	Markedness   []string
	Faithfulness []string
	// Name labels the implicit competition holding candidates that appear
	// before any input row.
	Name string
}

// DefaultOptions returns the options matching the conventional file layout.
func DefaultOptions() Options {
	return Options{
		Delimiter:        ',',
		Glyph:            '*',
		MarkednessPrefix: "*",
	}
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Glyph == 0 {
		o.Glyph = '*'
	}
	return o
}

// IsMarkedness reports the class the options assign to a constraint name.
func (o Options) IsMarkedness(name string) bool {
	if slices.Contains(o.Faithfulness, name) {
		return false
	}
	if slices.Contains(o.Markedness, name) {
		return true
	}
	return o.MarkednessPrefix != "" && strings.HasPrefix(name, o.MarkednessPrefix)
}

// Load reads the tableau stored at path. Candidates before the first input
// row are grouped under the file's base name.
func Load(path string, opts Options) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tableau: %w", err)
	}
	defer f.Close()

	if opts.Name == "" {
		opts.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	g, err := Parse(f, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return g, nil
}

// Parse reads a delimited tableau from r.
func Parse(r io.Reader, opts Options) (*Grid, error) {
	opts = opts.withDefaults()

	cr := csv.NewReader(r)
	cr.Comma = opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		records = append(records, rec)
	}
	return FromRecords(records, opts)
}

// FromRecords builds a grid from rows of cells. Row 0 is the header;
// columns 0 and 1 hold the candidate name and the winner flag.
func FromRecords(records [][]string, opts Options) (*Grid, error) {
	opts = opts.withDefaults()

	if len(records) == 0 {
		return nil, formatErrorf(1, 0, "missing header row")
	}
	header := normalize(records[0])
	if len(header) < 3 {
		return nil, formatErrorf(1, 0, "header needs a name column, a winner column and at least one constraint")
	}

	g := &Grid{}
	seen := make(map[string]bool)
	for i, name := range header[2:] {
		if name == EmptyCell {
			return nil, formatErrorf(1, i+3, "empty constraint name")
		}
		if seen[name] {
			return nil, formatErrorf(1, i+3, "duplicate constraint %q", name)
		}
		seen[name] = true
		g.Constraints = append(g.Constraints, Constraint{
			Name:       name,
			Markedness: opts.IsMarkedness(name),
		})
	}

	width := len(header)
	current := -1
	winners := make(map[int]int)
	firstLine := make(map[int]int)
	for i, raw := range records[1:] {
		line := i + 2
		row := normalize(raw)
		if len(row) > width {
			for j, cell := range row[width:] {
				if cell != EmptyCell {
					return nil, formatErrorf(line, width+j+1, "cell outside the header's %d columns", width)
				}
			}
			row = row[:width]
		}
		for len(row) < width {
			row = append(row, EmptyCell)
		}

		name := row[0]
		if name == EmptyCell {
			if isBlank(row) {
				continue
			}
			return nil, formatErrorf(line, 1, "missing candidate name")
		}

		if strings.Contains(name, InputMarker) {
			g.Competitions = append(g.Competitions, Competition{Input: name})
			current = len(g.Competitions) - 1
			continue
		}

		if current < 0 {
			g.Competitions = append(g.Competitions, Competition{Input: opts.Name})
			current = 0
		}
		if _, ok := firstLine[current]; !ok {
			firstLine[current] = line
		}

		cand := Candidate{
			Name:        name,
			Competition: current,
			Winner:      row[1] == WinnerFlag,
			Violations:  make([]int, len(g.Constraints)),
		}
		for j, cell := range row[2:] {
			n, err := CountMarks(cell, opts.Glyph)
			if err != nil {
				return nil, formatErrorf(line, j+3, "%v", err)
			}
			cand.Violations[j] = n
		}
		if cand.Winner {
			winners[current]++
		}
		g.Candidates = append(g.Candidates, cand)
	}

	// Several winners in one competition are left for the ranking to
	// report; a competition with none cannot be ranked at all.
	for comp := range g.Competitions {
		line, ok := firstLine[comp]
		if ok && winners[comp] == 0 {
			return nil, formatErrorf(line, 2, "competition %q has no winner", g.Competitions[comp].Input)
		}
	}
	return g, nil
}

// CountMarks returns the number of violation marks in a cell. Cells made
// only of digits are read as a count.
func CountMarks(cell string, glyph rune) (int, error) {
	cell = strings.TrimSpace(cell)
	if n := strings.Count(cell, string(glyph)); n > 0 {
		return n, nil
	}
	if cell == "" || cell == EmptyCell {
		return 0, nil
	}
	if isDigits(cell) {
		n, err := strconv.Atoi(cell)
		if err != nil {
			return 0, fmt.Errorf("bad count %q: %w", cell, err)
		}
		return n, nil
	}
	return 0, nil
}

func normalize(row []string) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			cell = EmptyCell
		}
		out[i] = cell
	}
	return out
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if cell != EmptyCell {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
