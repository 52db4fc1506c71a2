// Package dataset loads the two pre-computed CSV inputs of the dashboard into
// typed, immutable records. The schema is checked once at load so that a
// missing column or a malformed cell surfaces as a single error naming the file,
// the column and the row, instead of failing later inside an aggregation.
package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"trader-insights/internal/common"
)

var (
	// ErrMissingColumn is returned when a required column is absent from the header
	ErrMissingColumn = errors.New("missing required column")
	// ErrEmptyDataset is returned when a file has a header but no data rows
	ErrEmptyDataset = errors.New("dataset is empty")
	// ErrInvalidCell is returned when a required cell cannot be parsed
	ErrInvalidCell = errors.New("invalid cell")
)

// TradeRecord is one historical trade from the analysis dataset
type TradeRecord struct {
	ClosedPnL      float64 `json:"closed_pnl"`
	SizeUSD        float64 `json:"size_usd"`
	Classification string  `json:"classification"`
	Side           string  `json:"side"`
}

// DailyPrediction is one previously generated binary prediction outcome
type DailyPrediction struct {
	Prediction int `json:"prediction"`
}

// Trades is a loaded trade record dataset
type Trades struct {
	Path    string
	Records []TradeRecord
	Digest  string // hex SHA-256 of the file contents
}

// Predictions is a loaded daily prediction dataset
type Predictions struct {
	Path    string
	Records []DailyPrediction
	Digest  string
}

// LoadTrades reads and validates the trade record CSV at path
func LoadTrades(path string) (*Trades, error) {
	raw, digest, err := readFile(path)
	if err != nil {
		return nil, err
	}

	records, err := ParseTrades(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Trades{Path: path, Records: records, Digest: digest}, nil
}

// LoadPredictions reads and validates the daily prediction CSV at path
func LoadPredictions(path string) (*Predictions, error) {
	raw, digest, err := readFile(path)
	if err != nil {
		return nil, err
	}

	records, err := ParsePredictions(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Predictions{Path: path, Records: records, Digest: digest}, nil
}

// ParseTrades decodes trade records from CSV. Columns other than the four
// required ones are ignored.
func ParseTrades(r io.Reader) ([]TradeRecord, error) {
	reader, indices, err := openTable(r, common.ColumnClosedPnL, common.ColumnSizeUSD,
		common.ColumnClassification, common.ColumnSide)
	if err != nil {
		return nil, err
	}

	var records []TradeRecord
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}

		pnl, err := parseFloat(record, indices, common.ColumnClosedPnL, row)
		if err != nil {
			return nil, err
		}
		size, err := parseFloat(record, indices, common.ColumnSizeUSD, row)
		if err != nil {
			return nil, err
		}
		classification, err := requireText(record, indices, common.ColumnClassification, row)
		if err != nil {
			return nil, err
		}
		side, err := requireText(record, indices, common.ColumnSide, row)
		if err != nil {
			return nil, err
		}

		records = append(records, TradeRecord{
			ClosedPnL:      pnl,
			SizeUSD:        size,
			Classification: classification,
			Side:           side,
		})
	}

	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}
	return records, nil
}

// ParsePredictions decodes daily predictions from CSV. Values must be 0 or 1;
// integral float spellings such as "1.0" are accepted.
func ParsePredictions(r io.Reader) ([]DailyPrediction, error) {
	reader, indices, err := openTable(r, common.ColumnPrediction)
	if err != nil {
		return nil, err
	}

	var records []DailyPrediction
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}

		v, err := parseFloat(record, indices, common.ColumnPrediction, row)
		if err != nil {
			return nil, err
		}
		if v != 0 && v != 1 {
			return nil, fmt.Errorf("%w: column %q row %d: prediction must be 0 or 1, got %v",
				ErrInvalidCell, common.ColumnPrediction, row, v)
		}

		records = append(records, DailyPrediction{Prediction: int(v)})
	}

	if len(records) == 0 {
		return nil, ErrEmptyDataset
	}
	return records, nil
}

// Fingerprint combines dataset digests into one content hash
func Fingerprint(digests ...string) string {
	h := sha256.New()
	for _, d := range digests {
		h.Write([]byte(d))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func readFile(path string) ([]byte, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	sum := sha256.Sum256(raw)
	return raw, hex.EncodeToString(sum[:]), nil
}

// openTable reads the header and maps every required column to its index
func openTable(r io.Reader, required ...string) (*csv.Reader, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		if _, dup := indices[col]; !dup {
			indices[col] = i
		}
	}

	for _, col := range required {
		if _, ok := indices[col]; !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
	}

	return reader, indices, nil
}

func cell(record []string, indices map[string]int, column string, row int) (string, error) {
	i := indices[column]
	if i >= len(record) {
		return "", fmt.Errorf("%w: column %q row %d: short record", ErrInvalidCell, column, row)
	}
	return record[i], nil
}

func parseFloat(record []string, indices map[string]int, column string, row int) (float64, error) {
	s, err := cell(record, indices, column, row)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: column %q row %d: %q is not a finite number", ErrInvalidCell, column, row, s)
	}
	return v, nil
}

func requireText(record []string, indices map[string]int, column string, row int) (string, error) {
	s, err := cell(record, indices, column, row)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: column %q row %d: empty value", ErrInvalidCell, column, row)
	}
	return s, nil
}
