package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/aristath/volcorr/internal/modules/garch"
	"github.com/aristath/volcorr/pkg/formulas"
)

// percentScale converts log price ratios into percentage returns.
const percentScale = 100

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "02/01/2006"}

// loadPanel reads a CSV panel with one numeric column per asset and an
// optional date column. With prices set, every column is converted to
// percentage log returns and the first date is dropped.
func loadPanel(r io.Reader, dateColumn string, prices bool) ([]garch.ReturnSeries, error) {
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true))
	if df.Err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", df.Err)
	}

	var index []time.Time
	var out []garch.ReturnSeries
	for _, name := range df.Names() {
		col := df.Col(name)
		if dateColumn != "" && strings.EqualFold(name, dateColumn) {
			parsed, err := parseDates(col)
			if err != nil {
				return nil, err
			}
			index = parsed
			continue
		}
		if col.Type() != series.Float && col.Type() != series.Int {
			return nil, fmt.Errorf("column %q is not numeric", name)
		}

		values := col.Float()
		for i, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("column %q has a missing value at row %d", name, i+1)
			}
		}
		if prices {
			returns, err := formulas.LogReturns(values, percentScale)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", name, err)
			}
			values = returns
		}
		out = append(out, garch.ReturnSeries{Name: name, Values: values})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("CSV has no asset columns")
	}
	if index != nil {
		if prices {
			index = index[1:]
		}
		for i := range out {
			out[i].Index = index
		}
	}
	return out, nil
}

func parseDates(col series.Series) ([]time.Time, error) {
	records := col.Records()
	index := make([]time.Time, len(records))
	for i, rec := range records {
		t, err := parseDate(strings.TrimSpace(rec))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		index[i] = t
	}
	return index, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
