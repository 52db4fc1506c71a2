package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tradesCSV = `Account,Coin,Side,Size USD,Closed PnL,classification
0xa,BTC,BUY,1500.5,10,Fear
0xb,ETH,SELL,250,-5,Greed
0xc,SOL,BUY,90.25,0,Greed
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseTrades(t *testing.T) {
	records, err := ParseTrades(strings.NewReader(tradesCSV))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, TradeRecord{ClosedPnL: 10, SizeUSD: 1500.5, Classification: "Fear", Side: "BUY"}, records[0])
	assert.Equal(t, TradeRecord{ClosedPnL: -5, SizeUSD: 250, Classification: "Greed", Side: "SELL"}, records[1])
	assert.Equal(t, 90.25, records[2].SizeUSD)
}

func TestParseTrades_BOMHeader(t *testing.T) {
	input := "\ufeffClosed PnL,Size USD,classification,Side\n1,2,Fear,BUY\n"

	records, err := ParseTrades(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1.0, records[0].ClosedPnL)
}

func TestParseTrades_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		msg     string
	}{
		{
			name:    "missing column",
			input:   "Closed PnL,Size USD,Side\n1,2,BUY\n",
			wantErr: ErrMissingColumn,
			msg:     `"classification"`,
		},
		{
			name:    "header only",
			input:   "Closed PnL,Size USD,classification,Side\n",
			wantErr: ErrEmptyDataset,
		},
		{
			name:    "no header",
			input:   "",
			wantErr: ErrEmptyDataset,
		},
		{
			name:    "bad number",
			input:   "Closed PnL,Size USD,classification,Side\n1,2,Fear,BUY\nabc,2,Fear,BUY\n",
			wantErr: ErrInvalidCell,
			msg:     "row 2",
		},
		{
			name:    "empty label",
			input:   "Closed PnL,Size USD,classification,Side\n1,2,,BUY\n",
			wantErr: ErrInvalidCell,
			msg:     `"classification"`,
		},
		{
			name:    "short record",
			input:   "Closed PnL,Size USD,classification,Side\n1,2\n",
			wantErr: ErrInvalidCell,
			msg:     "short record",
		},
		{
			name:    "NaN pnl",
			input:   "Closed PnL,Size USD,classification,Side\nNaN,2,Fear,BUY\n",
			wantErr: ErrInvalidCell,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTrades(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestParsePredictions(t *testing.T) {
	input := "date,prediction\n2024-01-01,1\n2024-01-02,0\n2024-01-03,1.0\n"

	records, err := ParsePredictions(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []DailyPrediction{{1}, {0}, {1}}, records)
}

func TestParsePredictions_Errors(t *testing.T) {
	_, err := ParsePredictions(strings.NewReader("date\n2024-01-01\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = ParsePredictions(strings.NewReader("prediction\n2\n"))
	assert.ErrorIs(t, err, ErrInvalidCell)

	_, err = ParsePredictions(strings.NewReader("prediction\n"))
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestLoadTrades(t *testing.T) {
	path := writeFile(t, "analysis_df.csv", tradesCSV)

	trades, err := LoadTrades(path)
	require.NoError(t, err)
	assert.Equal(t, path, trades.Path)
	assert.Len(t, trades.Records, 3)
	assert.Len(t, trades.Digest, 64)

	again, err := LoadTrades(path)
	require.NoError(t, err)
	assert.Equal(t, trades.Digest, again.Digest, "digest must be stable for unchanged files")
}

func TestLoadTrades_ErrorNamesFile(t *testing.T) {
	path := writeFile(t, "bad.csv", "Side\nBUY\n")

	_, err := LoadTrades(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), path)
}

func TestLoadPredictions_MissingFile(t *testing.T) {
	_, err := LoadPredictions(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("x", "y")
	assert.Equal(t, a, Fingerprint("x", "y"))
	assert.NotEqual(t, a, Fingerprint("y", "x"))
	assert.NotEqual(t, Fingerprint("xy", ""), Fingerprint("x", "y"))
}
