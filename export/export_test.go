package export_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/otrank/export"
	"github.com/c360studio/otrank/rcd"
	"github.com/c360studio/otrank/tableau"
)

const syllables = `,,*Coda,Max,Dep
/pat/,,,,
[pat],,*,,
[pa],1,,*,
[pa.tə],,,,*
/ta/,,,,
[ta],1,,,
[tat],,*,,*
`

func load(t *testing.T, src string) *tableau.Grid {
	t.Helper()
	g, err := tableau.Parse(strings.NewReader(src), tableau.DefaultOptions())
	require.NoError(t, err)
	return g
}

func rankedReport(t *testing.T) *export.Report {
	t.Helper()
	g := load(t, syllables)
	res, err := rcd.Run(g)
	require.NoError(t, err)
	return export.NewReport("syllables.csv", g, res, nil)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    export.Format
		wantErr bool
	}{
		{in: "text", want: export.FormatText},
		{in: "JSON", want: export.FormatJSON},
		{in: " yaml ", want: export.FormatYAML},
		{in: "yml", want: export.FormatYAML},
		{in: "md", want: export.FormatMarkdown},
		{in: "markdown", want: export.FormatMarkdown},
		{in: "turtle", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := export.ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "markdown", "text", "yaml"}, export.FormatNames())

	info, ok := export.GetFormatInfo(export.FormatMarkdown)
	require.True(t, ok)
	assert.Equal(t, ".md", info.Extension)
	assert.Equal(t, "text/markdown", info.MIMEType)

	_, ok = export.GetFormatInfo("rdf")
	assert.False(t, ok)
}

func TestNewReport_Ranked(t *testing.T) {
	r := rankedReport(t)

	_, err := uuid.Parse(r.RunID)
	assert.NoError(t, err)
	assert.Equal(t, export.StatusRanked, r.Status)
	assert.Nil(t, r.Failure)
	assert.Equal(t, "*Coda, Dep >> Max", r.Order.String())
	assert.Len(t, r.Steps, 1)
	assert.False(t, r.CreatedAt.IsZero())
}

func TestNewReport_Unrankable(t *testing.T) {
	g := load(t, ",,A,B\n/x/\nw,1,*,\nl,,,*\n/y/\nw2,1,,*\nl2,,*,\n")
	res, err := rcd.Run(g)
	require.Error(t, err)

	r := export.NewReport("bad.csv", g, res, err)
	assert.Equal(t, export.StatusUnrankable, r.Status)
	require.NotNil(t, r.Failure)
	assert.Equal(t, string(rcd.ReasonNoWinnerPreferring), r.Failure.Reason)
	assert.Equal(t, 1, r.Failure.Iteration)
	assert.Len(t, r.Failure.Disqualified, 2)
}

func TestNewReport_LoadError(t *testing.T) {
	r := export.NewReport("missing.csv", nil, nil, errors.New("open tableau: no such file"))
	assert.Equal(t, export.StatusError, r.Status)
	require.NotNil(t, r.Failure)
	assert.Equal(t, "open tableau: no such file", r.Failure.Message)
	assert.Empty(t, r.Order)
}

func TestGridRows(t *testing.T) {
	rows := export.GridRows(load(t, syllables))

	require.Len(t, rows, 8)
	assert.Equal(t, []string{"-", "-", "*Coda", "Max", "Dep"}, rows[0])
	assert.Equal(t, []string{"/pat/", "-", "-", "-", "-"}, rows[1])
	assert.Equal(t, []string{"[pa]", "1", "-", "*", "-"}, rows[3])
	assert.Equal(t, []string{"[tat]", "-", "*", "-", "*"}, rows[7])
}

func TestFinalRows(t *testing.T) {
	g := load(t, syllables)
	order := rcd.Order{
		{Constraints: []string{"*Coda", "Dep"}},
		{Constraints: []string{"Max"}, Remainder: true},
	}

	rows := export.FinalRows(g, order)
	require.Len(t, rows, 8)
	assert.Equal(t, []string{"-", "-", "|", "*Coda", "Dep", "|", "Max", "|"}, rows[0])
	assert.Equal(t, []string{"/pat/", "-", "=", "-", "-", "=", "-", "="}, rows[1])
	assert.Equal(t, []string{"[pa]", "1", "|", "-", "-", "|", "*", "|"}, rows[3])
}

func TestFinalRows_PartialOrderKeepsUnranked(t *testing.T) {
	g := load(t, syllables)
	rows := export.FinalRows(g, rcd.Order{{Constraints: []string{"Dep"}}})

	assert.Equal(t, []string{"-", "-", "|", "Dep", "|", "*Coda", "Max", "|"}, rows[0])
}

func TestWriteTable_Aligns(t *testing.T) {
	var sb strings.Builder
	err := export.WriteTable(&sb, "T", [][]string{
		{"a", "bbb", "c"},
		{"dddd", "e", "f"},
	})
	require.NoError(t, err)

	assert.Equal(t, "\n======\nT\n======\na     bbb  c\ndddd  e    f\n\n", sb.String())
}

func TestExport_Text(t *testing.T) {
	out, err := export.Export(rankedReport(t), export.FormatText)
	require.NoError(t, err)

	assert.Contains(t, out, "Data drawn from 'syllables.csv':")
	assert.Contains(t, out, "Constraints that are winner-preferring: *Coda, Dep")
	assert.Contains(t, out, "Candidates that are explained: [pat], [pa.tə], [tat]")
	assert.Contains(t, out, "Tableau at iteration 1")
	assert.Contains(t, out, "Final Constraint Ranking:\n==============================\n*Coda, Dep >> Max")
	assert.Contains(t, out, "Final Tableau")
	assert.NotContains(t, out, "Ranking failed")
}

func TestExport_TextFailure(t *testing.T) {
	g := load(t, ",,A\n/x/\nw,1,*\nl,,*\n")
	res, runErr := rcd.Run(g)
	require.Error(t, runErr)

	out, err := export.Export(export.NewReport("tie.csv", g, res, runErr), export.FormatText)
	require.NoError(t, err)
	assert.Contains(t, out, "Partial Constraint Ranking:")
	assert.Contains(t, out, "Ranking failed: unrankable input")
}

func TestExport_Markdown(t *testing.T) {
	r := rankedReport(t)
	r.DatasetCID = "bafkreitest"

	out, err := export.Export(r, export.FormatMarkdown)
	require.NoError(t, err)

	assert.Contains(t, out, "# Ranking: syllables.csv")
	assert.Contains(t, out, "- **Status:** ranked")
	assert.Contains(t, out, "`*Coda, Dep >> Max`")
	assert.Contains(t, out, "| 1 | \\*Coda, Dep |")
	assert.Contains(t, out, "| 2 (remainder) | Max |")
	assert.Contains(t, out, "- Explained: [pat], [pa.tə], [tat]")
	assert.Contains(t, out, "`bafkreitest`")
	assert.Contains(t, out, "## Final tableau")
}

func TestExport_JSON(t *testing.T) {
	r := rankedReport(t)
	out, err := export.Export(r, export.FormatJSON)
	require.NoError(t, err)

	var decoded struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
		Order  []struct {
			Constraints []string `json:"constraints"`
			Remainder   bool     `json:"remainder"`
		} `json:"order"`
		Steps []struct {
			Comparative []int `json:"comparative"`
		} `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, r.RunID, decoded.RunID)
	assert.Equal(t, "ranked", decoded.Status)
	require.Len(t, decoded.Order, 2)
	assert.Equal(t, []string{"*Coda", "Dep"}, decoded.Order[0].Constraints)
	assert.True(t, decoded.Order[1].Remainder)
	require.Len(t, decoded.Steps, 1)
	assert.Equal(t, []int{1, -1, 1}, decoded.Steps[0].Comparative)
}

func TestExport_YAML(t *testing.T) {
	out, err := export.Export(rankedReport(t), export.FormatYAML)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "ranked", decoded["status"])
	assert.Equal(t, "syllables.csv", decoded["dataset"])
}

func TestExport_UnknownFormat(t *testing.T) {
	_, err := export.Export(rankedReport(t), "rdf")
	assert.Error(t, err)
}
