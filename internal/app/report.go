package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"satsguard/internal/ledger"
)

// ReportOptions configure the spend report.
type ReportOptions struct {
	Days    int
	PNGPath string
	CSVPath string
}

// Report renders recent spending against the daily cap as CSV and/or PNG.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Days <= 0 {
		opts.Days = 30
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot report")
	}
	if closeStore != nil {
		defer closeStore()
	}

	doc, err := a.loadPolicy()
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -opts.Days)

	entries, err := store.ListSpendsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.Logger.Info().Msg("no spends found in report window")
		return nil
	}

	days, totals := dailyTotals(entries, from, opts.Days)
	a.Logger.Info().Int("entries", len(entries)).Int("days", opts.Days).Msg("building spend report")

	if opts.CSVPath != "" {
		if err := writeSpendCSV(opts.CSVPath, days, totals, doc.Budgets.DailySatsCap); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeSpendPNG(opts.PNGPath, days, totals, doc.Budgets.DailySatsCap); err != nil {
			return err
		}
	}
	return nil
}

// dailyTotals buckets spend entries into UTC calendar days.
func dailyTotals(entries []ledger.Entry, from time.Time, days int) ([]time.Time, []int64) {
	start, _ := ledger.DayWindow(from)

	labels := make([]time.Time, days)
	totals := make([]int64, days)
	for i := range labels {
		labels[i] = start.AddDate(0, 0, i)
	}

	for _, entry := range entries {
		idx := int(entry.RecordedAt.UTC().Sub(start).Hours() / 24)
		if idx >= 0 && idx < days {
			totals[idx] += entry.AmountSats
		}
	}
	return labels, totals
}

func writeSpendCSV(path string, days []time.Time, totals []int64, dailyCap int64) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"day", "spent_sats", "daily_cap_sats"}); err != nil {
		return err
	}
	for i, day := range days {
		record := []string{
			day.Format("2006-01-02"),
			strconv.FormatInt(totals[i], 10),
			strconv.FormatInt(dailyCap, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeSpendPNG(path string, days []time.Time, totals []int64, dailyCap int64) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	spent := make([]float64, len(totals))
	capLine := make([]float64, len(totals))
	for i, total := range totals {
		spent[i] = float64(total)
		capLine[i] = float64(dailyCap)
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Spent (sats)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Daily spend",
				XValues: days,
				YValues: spent,
			},
			chart.TimeSeries{
				Name:    "Daily cap",
				XValues: days,
				YValues: capLine,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("render spend chart: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
