package service

import (
	"encoding/csv"
	"io"
	"strconv"
)

// ExportFilename is the attachment name of a CSV export.
const ExportFilename = "lighting_stats.csv"

// ExportCSV writes res as the lighting stats spreadsheet: a vector block, a
// raster block, then the raw vector values and the raster histogram when
// requested and present.
func ExportCSV(w io.Writer, res *Result, opts Options) error {
	cw := csv.NewWriter(w)
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	vs, rs := res.VectorStats, res.RasterStats
	rows := [][]string{
		{"Vector Statistics", "Value"},
		{"Mean", f(vs.Mean)},
		{"Min", f(vs.Min)},
		{"Max", f(vs.Max)},
		{"Count", strconv.Itoa(vs.Count)},
		{},
		{"Raster Statistics", "Value"},
		{"Mean", f(rs.Mean)},
		{"Min", f(rs.Min)},
		{"Max", f(rs.Max)},
		{},
	}

	if opts.ReturnValues && len(vs.Values) > 0 {
		rows = append(rows, []string{"Vector Values"})
		for _, v := range vs.Values {
			rows = append(rows, []string{f(v)})
		}
		rows = append(rows, []string{})
	}

	if opts.ReturnHistogram && rs.Histogram != nil {
		h := rs.Histogram
		rows = append(rows, []string{"Histogram Start", "Histogram End", "Count"})
		for i := range h.Counts {
			rows = append(rows, []string{f(h.BinStart[i]), f(h.BinEnd[i]), strconv.Itoa(h.Counts[i])})
		}
	}

	return cw.WriteAll(rows)
}
