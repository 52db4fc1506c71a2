// Package analytics computes the dashboard aggregates over the trade record and
// daily prediction datasets. Every function is pure: the same records always
// produce the same values, and nothing is cached here.
package analytics

import (
	"fmt"
	"sort"
	"strconv"

	"trader-insights/internal/dataset"
)

// ErrEmptyDataset is returned by every aggregation given no records
var ErrEmptyDataset = dataset.ErrEmptyDataset

// Metric is a single headline number with its rendered text
type Metric struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Text  string  `json:"text"`
}

// Bar is one bar of a bar chart
type Bar struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// SentimentRow is one row of the performance summary table
type SentimentRow struct {
	Classification string  `json:"classification"`
	AvgPnL         float64 `json:"avg_pnl"`
	WinRate        float64 `json:"win_rate"`
	AvgSize        float64 `json:"avg_size"`
	Trades         int     `json:"trades"`
}

// Cells renders the numeric columns with two decimals
func (r SentimentRow) Cells() []string {
	return []string{
		r.Classification,
		format2(r.AvgPnL),
		format2(r.WinRate),
		format2(r.AvgSize),
		strconv.Itoa(r.Trades),
	}
}

// Summary is everything the dashboard page shows
type Summary struct {
	AvgTradePnL            Metric         `json:"avg_trade_pnl"`
	WinRate                Metric         `json:"win_rate"`
	AvgSizeBySentiment     []Bar          `json:"avg_size_by_sentiment"`
	TradesBySentiment      []Bar          `json:"trades_by_sentiment"`
	SideDistribution       []Bar          `json:"side_distribution"`
	Performance            []SentimentRow `json:"performance"`
	PredictedProfitable    Metric         `json:"predicted_profitable_days"`
	PredictionDistribution []Bar          `json:"prediction_distribution"`
	TradeRecords           int            `json:"trade_records"`
	PredictionRecords      int            `json:"prediction_records"`
}

// Build assembles the full dashboard summary
func Build(trades []dataset.TradeRecord, preds []dataset.DailyPrediction) (Summary, error) {
	if len(trades) == 0 {
		return Summary{}, fmt.Errorf("trades: %w", ErrEmptyDataset)
	}
	if len(preds) == 0 {
		return Summary{}, fmt.Errorf("predictions: %w", ErrEmptyDataset)
	}

	// Errors below are impossible once both slices are non-empty
	pnl, _ := MeanPnL(trades)
	win, _ := WinRate(trades)
	sizes, _ := AvgSizeBySentiment(trades)
	counts, _ := TradesBySentiment(trades)
	sides, _ := SideDistribution(trades)
	table, _ := PerformanceTable(trades)
	rate, _ := PredictedProfitRate(preds)
	dist, _ := PredictionDistribution(preds)

	return Summary{
		AvgTradePnL:            Metric{Label: "Average Trade PnL", Value: pnl, Text: format2(pnl)},
		WinRate:                Metric{Label: "Win Rate", Value: win, Text: format2(win) + "%"},
		AvgSizeBySentiment:     sizes,
		TradesBySentiment:      counts,
		SideDistribution:       sides,
		Performance:            table,
		PredictedProfitable:    Metric{Label: "Predicted Profitable Days", Value: rate, Text: format2(rate) + "%"},
		PredictionDistribution: dist,
		TradeRecords:           len(trades),
		PredictionRecords:      len(preds),
	}, nil
}

// MeanPnL returns the mean realized PnL rounded to two decimals
func MeanPnL(trades []dataset.TradeRecord) (float64, error) {
	if len(trades) == 0 {
		return 0, ErrEmptyDataset
	}
	var sum float64
	for _, t := range trades {
		sum += t.ClosedPnL
	}
	return round2(sum / float64(len(trades))), nil
}

// WinRate returns the percentage of trades with PnL strictly above zero,
// rounded to two decimals. The result is 100 only when every trade wins.
func WinRate(trades []dataset.TradeRecord) (float64, error) {
	if len(trades) == 0 {
		return 0, ErrEmptyDataset
	}
	wins := 0
	for _, t := range trades {
		if t.ClosedPnL > 0 {
			wins++
		}
	}
	return winRate(wins, len(trades)), nil
}

// AvgSizeBySentiment returns the mean trade size per classification label,
// ordered by label
func AvgSizeBySentiment(trades []dataset.TradeRecord) ([]Bar, error) {
	groups, err := groupBySentiment(trades)
	if err != nil {
		return nil, err
	}
	bars := make([]Bar, 0, len(groups))
	for _, g := range groups {
		bars = append(bars, Bar{Label: g.label, Value: g.sizeSum / float64(g.count)})
	}
	return bars, nil
}

// TradesBySentiment returns the trade count per classification label, ordered
// by label
func TradesBySentiment(trades []dataset.TradeRecord) ([]Bar, error) {
	groups, err := groupBySentiment(trades)
	if err != nil {
		return nil, err
	}
	bars := make([]Bar, 0, len(groups))
	for _, g := range groups {
		bars = append(bars, Bar{Label: g.label, Value: float64(g.count)})
	}
	return bars, nil
}

// SideDistribution returns the record count per position side, largest first
func SideDistribution(trades []dataset.TradeRecord) ([]Bar, error) {
	if len(trades) == 0 {
		return nil, ErrEmptyDataset
	}
	counts := make(map[string]int)
	for _, t := range trades {
		counts[t.Side]++
	}
	return countBars(counts), nil
}

// PerformanceTable aggregates PnL, win rate, size and trade count per
// classification label, ordered by label. Trade counts sum to len(trades).
func PerformanceTable(trades []dataset.TradeRecord) ([]SentimentRow, error) {
	groups, err := groupBySentiment(trades)
	if err != nil {
		return nil, err
	}
	rows := make([]SentimentRow, 0, len(groups))
	for _, g := range groups {
		n := float64(g.count)
		rows = append(rows, SentimentRow{
			Classification: g.label,
			AvgPnL:         g.pnlSum / n,
			WinRate:        winRate(g.wins, g.count),
			AvgSize:        g.sizeSum / n,
			Trades:         g.count,
		})
	}
	return rows, nil
}

// PredictedProfitRate returns mean(prediction) * 100
func PredictedProfitRate(preds []dataset.DailyPrediction) (float64, error) {
	if len(preds) == 0 {
		return 0, ErrEmptyDataset
	}
	ones := 0
	for _, p := range preds {
		ones += p.Prediction
	}
	return float64(ones) / float64(len(preds)) * 100, nil
}

// PredictionDistribution counts each distinct prediction value, largest first
func PredictionDistribution(preds []dataset.DailyPrediction) ([]Bar, error) {
	if len(preds) == 0 {
		return nil, ErrEmptyDataset
	}
	counts := make(map[string]int)
	for _, p := range preds {
		counts[strconv.Itoa(p.Prediction)]++
	}
	return countBars(counts), nil
}

type sentimentGroup struct {
	label   string
	count   int
	wins    int
	pnlSum  float64
	sizeSum float64
}

func groupBySentiment(trades []dataset.TradeRecord) ([]*sentimentGroup, error) {
	if len(trades) == 0 {
		return nil, ErrEmptyDataset
	}

	byLabel := make(map[string]*sentimentGroup)
	for _, t := range trades {
		g, ok := byLabel[t.Classification]
		if !ok {
			g = &sentimentGroup{label: t.Classification}
			byLabel[t.Classification] = g
		}
		g.count++
		g.pnlSum += t.ClosedPnL
		g.sizeSum += t.SizeUSD
		if t.ClosedPnL > 0 {
			g.wins++
		}
	}

	groups := make([]*sentimentGroup, 0, len(byLabel))
	for _, g := range byLabel {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].label < groups[j].label })
	return groups, nil
}

func countBars(counts map[string]int) []Bar {
	bars := make([]Bar, 0, len(counts))
	for label, n := range counts {
		bars = append(bars, Bar{Label: label, Value: float64(n)})
	}
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].Value != bars[j].Value {
			return bars[i].Value > bars[j].Value
		}
		return bars[i].Label < bars[j].Label
	})
	return bars
}

func winRate(wins, total int) float64 {
	rate := round2(float64(wins) / float64(total) * 100)
	// 199999 wins out of 200000 rounds to 100.00
	if rate == 100 && wins < total {
		return 99.99
	}
	return rate
}

// round2 rounds through the decimal formatter so a value and its "%.2f" text agree
func round2(v float64) float64 {
	r, _ := strconv.ParseFloat(format2(v), 64)
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}

func format2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
