package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/otrank/rcd"
	"github.com/c360studio/otrank/tableau"
)

func parse(t *testing.T, src string) *tableau.Grid {
	t.Helper()
	g, err := tableau.Parse(strings.NewReader(src), tableau.DefaultOptions())
	require.NoError(t, err)
	return g
}

const rankable = ",,*Coda,Max,Dep\n/pat/\n[pat],,*\n[pa],1,,*\n[pa.tə],,,,*\n/ta/\n[ta],1\n[tat],,*,,*\n"

const contradictory = ",,A,B\n/x/\nw,1,*,\nl,,,*\n/y/\nw2,1,,*\nl2,,*,\n"

func TestRecorder_SuccessfulRun(t *testing.T) {
	r := NewRecorder()

	res, err := rcd.Run(parse(t, rankable), rcd.WithTracer(r))
	require.NoError(t, err)
	r.ObserveRun(res, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues(Succeeded)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.runs.WithLabelValues(Unrankable)))
	assert.Equal(t, float64(len(res.Steps)), testutil.ToFloat64(r.steps))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.explained))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.pruned))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.lastRanked))
}

func TestRecorder_UnrankableRun(t *testing.T) {
	r := NewRecorder()

	res, err := rcd.Run(parse(t, contradictory), rcd.WithTracer(r))
	require.Error(t, err)
	r.ObserveRun(res, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues(Unrankable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues(string(rcd.ReasonNoWinnerPreferring))))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.steps))
}

func TestRecorder_LoadFailure(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(nil, errors.New("open tableau: missing"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues(Failed)))
}

func TestRecorder_StrataHistogram(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(&rcd.Result{Order: rcd.Order{{Constraints: []string{"A"}}, {Constraints: []string{"B"}}}}, nil)
	r.ObserveRun(&rcd.Result{Order: rcd.Order{{Constraints: []string{"A"}}}}, nil)

	families, err := r.Registry().Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "otrank_strata" {
			require.Len(t, mf.GetMetric(), 1)
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.Equal(t, 3.0, hist.GetSampleSum())
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.ObserveRun(nil, nil)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `otrank_runs_total{outcome="succeeded"} 1`)
	assert.Contains(t, string(body), "# HELP otrank_steps_total Demotion steps performed")
}
