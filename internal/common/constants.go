package common

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvModelBackend     = "MODEL_BACKEND"
	EnvModelPath        = "MODEL_PATH"
	EnvModelServerURL   = "MODEL_SERVER_URL"
	EnvPythonPath       = "PYTHON_PATH"
	EnvInferenceTimeout = "INFERENCE_TIMEOUT"
	EnvTradesPath       = "TRADES_PATH"
	EnvPredictionsPath  = "PREDICTIONS_PATH"
	EnvDataPath         = "DATA_PATH"
	EnvListenPort       = "LISTEN_PORT"
	EnvMetricsPort      = "METRICS_PORT"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvPredictRateLimit = "PREDICT_RATE_LIMIT"
)

// Default artifact locations, relative to the working directory
const (
	DefaultModelPath       = "model.pkl"
	DefaultTradesPath      = "datasets/analysis_df.csv"
	DefaultPredictionsPath = "datasets/daily_predictions.csv"
)

// Classifier backends
const (
	BackendPickle = "pickle"
	BackendRemote = "remote"
	BackendLinear = "linear"
)

// Trade record dataset columns
const (
	ColumnClosedPnL      = "Closed PnL"
	ColumnSizeUSD        = "Size USD"
	ColumnClassification = "classification"
	ColumnSide           = "Side"
)

// Daily prediction dataset columns
const (
	ColumnPrediction = "prediction"
)

// Sentiment labels as entered by users
const (
	SentimentFear  = "Fear"
	SentimentGreed = "Greed"
)

// Prediction form defaults
const (
	DefaultAvgTradeSize = 3000.0
	DefaultTradeCount   = 10
)
