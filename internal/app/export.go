package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"currex/internal/rates"
	"currex/internal/storage"
)

// History prints a historical series and optionally exports it as CSV and/or PNG.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	currency := strings.ToUpper(strings.TrimSpace(opts.Currency))
	if currency == "" {
		currency = a.Config.Rates.Currencies[0]
	}
	period := a.Config.ResolvePeriod(opts.Period)
	maxPoints := a.Config.ResolveMaxPoints(opts.MaxPoints)

	series, err := a.loadSeries(ctx, currency, period, opts.FromArchive)
	if err != nil {
		return err
	}
	if len(series.Points) == 0 {
		fmt.Fprintf(a.Out, "no history for %s over %d days\n", currency, period)
		return nil
	}

	banks := series.VisibleBanks(opts.Banks)
	low, high := series.YDomain(banks)
	points := downsamplePoints(series.Points, maxPoints)
	a.Logger.Info().Int("total", len(series.Points)).Int("exported", len(points)).Msg("history loaded")

	from, to, _ := series.DateRange()
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "%s\t%d days\t%s .. %s\n", currency, period, from.Format(time.DateOnly), to.Format(time.DateOnly))
	fmt.Fprintf(writer, "Range\t%s .. %s\n", low.StringFixed(3), high.StringFixed(3))
	fmt.Fprintln(writer, "Bank\tFirst buy\tLast buy\tFirst sell\tLast sell")
	first, last := series.Points[0], series.Points[len(series.Points)-1]
	for _, bank := range banks {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n", bank,
			first.BuyRate(bank).StringFixed(3), last.BuyRate(bank).StringFixed(3),
			first.SellRate(bank).StringFixed(3), last.SellRate(bank).StringFixed(3))
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, points, banks); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeSeriesPNG(opts.PNGPath, currency, points, banks, low, high); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) loadSeries(ctx context.Context, currency string, period int, fromArchive bool) (rates.HistoricalSeries, error) {
	if !fromArchive {
		_, historical, err := a.fetchers()
		if err != nil {
			return rates.HistoricalSeries{}, err
		}
		return historical.FetchHistorical(ctx, currency, period)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return rates.HistoricalSeries{}, err
	}
	if store == nil {
		return rates.HistoricalSeries{}, errors.New("database not configured; cannot read archive")
	}
	defer closeStore()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -period)
	samples, err := store.ListQuotesBetween(ctx, currency, from, to)
	if err != nil {
		return rates.HistoricalSeries{}, err
	}
	series := storage.SeriesFromSamples(currency, samples)
	series.PeriodDays = period
	return series, nil
}

func downsamplePoints(points []rates.HistoricalPoint, max int) []rates.HistoricalPoint {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]rates.HistoricalPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeSeriesCSV(path string, points []rates.HistoricalPoint, banks []string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp", "bank", "buy_rate", "sell_rate"}); err != nil {
		return err
	}
	for _, p := range points {
		for _, bank := range banks {
			r, ok := p.Banks[bank]
			if !ok {
				continue
			}
			record := []string{
				p.At.UTC().Format(time.RFC3339),
				bank,
				r.Buy.StringFixed(3),
				r.Sell.StringFixed(3),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeSeriesPNG(path, currency string, points []rates.HistoricalPoint, banks []string, low, high decimal.Decimal) error {
	if len(points) < 2 {
		return errors.New("a chart needs at least two points")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	var series []chart.Series
	for _, bank := range banks {
		var x []time.Time
		var buy, sell []float64
		for _, p := range points {
			r, ok := p.Banks[bank]
			if !ok {
				continue
			}
			x = append(x, p.At)
			buy = append(buy, r.Buy.InexactFloat64())
			sell = append(sell, r.Sell.InexactFloat64())
		}
		if len(x) == 0 {
			continue
		}
		series = append(series,
			chart.TimeSeries{Name: bank + " buy", XValues: x, YValues: buy},
			chart.TimeSeries{Name: bank + " sell", XValues: x, YValues: sell},
		)
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.3f")
	}
	graph := chart.Chart{
		Title:  currency,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Rate",
			ValueFormatter: rateFormatter,
			Range: &chart.ContinuousRange{
				Min: low.InexactFloat64(),
				Max: high.InexactFloat64(),
			},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
