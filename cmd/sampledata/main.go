// Command sampledata writes a synthetic trade record dataset, a daily
// prediction dataset and a linear model artifact that the insights server can
// load with MODEL_BACKEND=linear.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"trader-insights/internal/ml"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var sentiments = []string{"Extreme Fear", "Fear", "Neutral", "Greed", "Extreme Greed"}

// sampleModel leans profitable with larger, more frequent trades on greedy days
var sampleModel = ml.LinearArtifact{
	Intercept:    -0.9,
	Coefficients: []float64{0.00008, 0.03, 0.6},
	Threshold:    0.5,
}

type options struct {
	dir    string
	trades int
	days   int
	seed   int64
}

func main() {
	var opts options
	flag.StringVar(&opts.dir, "out", ".", "Output directory")
	flag.IntVar(&opts.trades, "trades", 5000, "Number of trade records to generate")
	flag.IntVar(&opts.days, "days", 90, "Number of daily predictions to generate")
	flag.Int64Var(&opts.seed, "seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := generate(opts); err != nil {
		log.Fatal().Err(err).Msg("sample data generation failed")
	}
}

func generate(opts options) error {
	if opts.trades <= 0 || opts.days <= 0 {
		return fmt.Errorf("trades and days must be positive")
	}

	rng := rand.New(rand.NewSource(opts.seed))
	datasets := filepath.Join(opts.dir, "datasets")
	if err := os.MkdirAll(datasets, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tradesPath := filepath.Join(datasets, "analysis_df.csv")
	header := []string{"Account", "Coin", "Execution Price", "Size USD", "Side", "Closed PnL", "classification"}
	if err := writeCSV(tradesPath, header, tradeRows(rng, opts.trades)); err != nil {
		return err
	}

	model, err := ml.NewLinearClassifier(sampleModel.Intercept, sampleModel.Coefficients, sampleModel.Threshold)
	if err != nil {
		return fmt.Errorf("sample model: %w", err)
	}
	predictionsPath := filepath.Join(datasets, "daily_predictions.csv")
	rows, err := predictionRows(rng, model, opts.days)
	if err != nil {
		return err
	}
	if err := writeCSV(predictionsPath, []string{"date", "avg_trade_size", "trades", "sentiment", "prediction"}, rows); err != nil {
		return err
	}

	modelPath := filepath.Join(opts.dir, "model.json")
	data, err := json.MarshalIndent(sampleModel, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if err := os.WriteFile(modelPath, data, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	log.Info().
		Str("trades", tradesPath).
		Int("trade_rows", opts.trades).
		Str("predictions", predictionsPath).
		Int("prediction_rows", opts.days).
		Str("model", modelPath).
		Int64("seed", opts.seed).
		Msg("sample data written")
	return nil
}

func tradeRows(rng *rand.Rand, n int) [][]string {
	coins := []string{"BTC", "ETH", "SOL", "HYPE", "@107"}
	rows := make([][]string, 0, n)

	for i := 0; i < n; i++ {
		mood := rng.Intn(len(sentiments))
		side := "BUY"
		if rng.Float64() < 0.48 {
			side = "SELL"
		}

		// Heavier sizing as mood turns greedy
		size := math.Exp(rng.NormFloat64()*1.2+7) * (1 + 0.15*float64(mood))
		price := 10 + rng.Float64()*60000

		// Opening fills realize nothing
		pnl := 0.0
		if rng.Float64() < 0.55 {
			pnl = rng.NormFloat64()*size*0.02 + size*0.002*float64(mood-1)
		}

		rows = append(rows, []string{
			fmt.Sprintf("0x%040x", rng.Int63n(50)),
			coins[rng.Intn(len(coins))],
			strconv.FormatFloat(price, 'f', 2, 64),
			strconv.FormatFloat(size, 'f', 2, 64),
			side,
			strconv.FormatFloat(pnl, 'f', 6, 64),
			sentiments[mood],
		})
	}
	return rows
}

func predictionRows(rng *rand.Rand, model *ml.LinearClassifier, days int) ([][]string, error) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([][]string, 0, days)

	for d := 0; d < days; d++ {
		f := ml.Features{
			AvgTradeSize: math.Round(math.Exp(rng.NormFloat64()*0.8 + 8)),
			TradeCount:   1 + rng.Intn(40),
			Sentiment:    ml.Sentiment(rng.Intn(2)),
		}

		label, _, err := model.Score(context.Background(), f.Vector())
		if err != nil {
			return nil, fmt.Errorf("score day %d: %w", d, err)
		}

		rows = append(rows, []string{
			start.AddDate(0, 0, d).Format("2006-01-02"),
			strconv.FormatFloat(f.AvgTradeSize, 'f', 0, 64),
			strconv.Itoa(f.TradeCount),
			strconv.Itoa(int(f.Sentiment)),
			strconv.Itoa(label),
		})
	}
	return rows, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}
