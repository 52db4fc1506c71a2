package ml

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"trader-insights/internal/common"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the predictor
type MetricsInterface interface {
	PredictionsInc(label int)
	PredictionFailuresInc()
	PredictionLatencyObserve(float64)
	PredictionConfidenceObserve(float64)
}

// Sentiment is the market mood feature, encoded as the model expects
type Sentiment int

const (
	Fear  Sentiment = 0
	Greed Sentiment = 1
)

// ParseSentiment maps "Fear" to 0 and "Greed" to 1
func ParseSentiment(s string) (Sentiment, error) {
	switch s {
	case common.SentimentFear:
		return Fear, nil
	case common.SentimentGreed:
		return Greed, nil
	default:
		return 0, fmt.Errorf("%w: %q (want %s or %s)", ErrUnknownSentiment, s, common.SentimentFear, common.SentimentGreed)
	}
}

func (s Sentiment) String() string {
	if s == Greed {
		return common.SentimentGreed
	}
	return common.SentimentFear
}

// MarshalText encodes the sentiment by name so JSON carries "Fear" or "Greed"
func (s Sentiment) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Sentiment) UnmarshalText(text []byte) error {
	v, err := ParseSentiment(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Features are the three user inputs of one prediction. Values are passed to
// the classifier unchanged; there are no bounds checks.
type Features struct {
	AvgTradeSize float64   `json:"avg_trade_size"`
	TradeCount   int       `json:"trades"`
	Sentiment    Sentiment `json:"sentiment"`
}

// DefaultFeatures returns the form defaults: 3000 USD, 10 trades, Fear
func DefaultFeatures() Features {
	return Features{
		AvgTradeSize: common.DefaultAvgTradeSize,
		TradeCount:   common.DefaultTradeCount,
		Sentiment:    Fear,
	}
}

// Vector returns the ordered feature vector [size, count, sentiment]
func (f Features) Vector() []float64 {
	return []float64{f.AvgTradeSize, float64(f.TradeCount), float64(f.Sentiment)}
}

// Prediction is the rendered outcome of one classifier evaluation
type Prediction struct {
	RequestID   string   `json:"request_id"`
	Features    Features `json:"features"`
	Label       int      `json:"label"`
	Profitable  bool     `json:"profitable"`
	Headline    string   `json:"headline"`
	Probability float64  `json:"probability_profitable"`
	Confidence  float64  `json:"confidence"` // percent, one decimal
}

// ConfidenceText formats the confidence as shown to users, e.g. "82.0%"
func (p Prediction) ConfidenceText() string {
	return strconv.FormatFloat(p.Confidence, 'f', 1, 64) + "%"
}

// Confidence returns the probability of the predicted class as a percentage
// rounded to one decimal place. Rounding goes through the decimal formatter so
// the value always matches its "%.1f" rendering.
func Confidence(label int, probability float64) float64 {
	pc := probability
	if label != 1 {
		pc = 1 - probability
	}
	v, _ := strconv.ParseFloat(strconv.FormatFloat(pc*100, 'f', 1, 64), 64)
	return v
}

// Predictor evaluates user inputs against a loaded classifier
type Predictor struct {
	model   Classifier
	metrics MetricsInterface
}

// NewPredictor wraps model. metrics may be nil.
func NewPredictor(model Classifier, metrics MetricsInterface) *Predictor {
	return &Predictor{model: model, metrics: metrics}
}

// Predict runs predict and predict-probability on the feature vector and
// derives the label and confidence. Classifier errors are wrapped and returned.
func (p *Predictor) Predict(ctx context.Context, f Features) (Prediction, error) {
	if p == nil || p.model == nil {
		return Prediction{}, fmt.Errorf("predictor has no model")
	}

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
		}
	}()

	requestID := uuid.NewString()
	label, probability, err := p.score(ctx, f.Vector())
	if err == nil {
		err = checkOutput(label, probability)
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.PredictionFailuresInc()
		}
		log.Error().
			Err(err).
			Str("request_id", requestID).
			Float64("avg_trade_size", f.AvgTradeSize).
			Int("trades", f.TradeCount).
			Str("sentiment", f.Sentiment.String()).
			Msg("prediction failed")
		return Prediction{}, fmt.Errorf("prediction failed: %w", err)
	}

	pred := Prediction{
		RequestID:   requestID,
		Features:    f,
		Label:       label,
		Profitable:  label == 1,
		Headline:    "Loss Day",
		Probability: probability,
		Confidence:  Confidence(label, probability),
	}
	if pred.Profitable {
		pred.Headline = "Profitable Day"
	}

	if p.metrics != nil {
		p.metrics.PredictionsInc(label)
		p.metrics.PredictionConfidenceObserve(pred.Confidence)
	}

	log.Info().
		Str("request_id", requestID).
		Float64("avg_trade_size", f.AvgTradeSize).
		Int("trades", f.TradeCount).
		Str("sentiment", f.Sentiment.String()).
		Int("label", label).
		Float64("confidence", pred.Confidence).
		Dur("latency", time.Since(start)).
		Msg("prediction served")

	return pred, nil
}

func (p *Predictor) score(ctx context.Context, x []float64) (int, float64, error) {
	if s, ok := p.model.(Scorer); ok {
		return s.Score(ctx, x)
	}

	label, err := p.model.Predict(ctx, x)
	if err != nil {
		return 0, 0, err
	}
	probability, err := p.model.PredictProba(ctx, x)
	if err != nil {
		return 0, 0, err
	}
	return label, probability, nil
}
