package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/c360studio/otrank/tableau"
)

var markdownEscaper = strings.NewReplacer(`|`, `\|`, `*`, `\*`, `_`, `\_`)

func writeMarkdown(w io.Writer, r *Report) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Ranking: %s\n\n", markdownEscaper.Replace(r.Dataset))
	fmt.Fprintf(&sb, "- **Status:** %s\n", r.Status)
	fmt.Fprintf(&sb, "- **Ranking:** `%s`\n", r.Order)
	fmt.Fprintf(&sb, "- **Markedness bias:** %t\n", r.MarkednessBias)
	if r.DatasetCID != "" {
		fmt.Fprintf(&sb, "- **Dataset CID:** `%s`\n", r.DatasetCID)
	}
	fmt.Fprintf(&sb, "- **Run:** `%s`\n\n", r.RunID)

	if r.Failure != nil {
		fmt.Fprintf(&sb, "> %s\n\n", markdownEscaper.Replace(r.Failure.Message))
	}

	sb.WriteString("## Strata\n\n| Stratum | Constraints |\n| --- | --- |\n")
	for i, s := range r.Order {
		label := fmt.Sprintf("%d", i+1)
		if s.Remainder {
			label += " (remainder)"
		}
		fmt.Fprintf(&sb, "| %s | %s |\n", label, markdownEscaper.Replace(s.String()))
	}
	sb.WriteString("\n")

	if len(r.Steps) > 0 {
		sb.WriteString("## Steps\n\n")
		for _, s := range r.Steps {
			fmt.Fprintf(&sb, "### Iteration %d\n\n", s.Iteration)
			fmt.Fprintf(&sb, "- Winner-preferring: %s\n", markdownList(s.Ranked()))
			fmt.Fprintf(&sb, "- Explained: %s\n", markdownList(s.Explained))
			fmt.Fprintf(&sb, "- Pruned winners: %s\n\n", markdownList(s.Pruned))
		}
	}

	if r.Tableau != nil {
		sb.WriteString("## Final tableau\n\n")
		writeMarkdownTable(&sb, FinalRows(r.Tableau, r.Order))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func writeMarkdownTable(sb *strings.Builder, rows [][]string) {
	for i, row := range rows {
		sb.WriteString("|")
		for _, cell := range row {
			if cell == tableau.EmptyCell {
				cell = ""
			}
			fmt.Fprintf(sb, " %s |", markdownEscaper.Replace(cell))
		}
		sb.WriteString("\n")
		if i == 0 {
			sb.WriteString("|")
			for range row {
				sb.WriteString(" --- |")
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
}

func markdownList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	escaped := make([]string, len(items))
	for i, item := range items {
		escaped[i] = markdownEscaper.Replace(item)
	}
	return strings.Join(escaped, ", ")
}
