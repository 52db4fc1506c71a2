package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trader-insights/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	ModelBackend     string
	ModelPath        string
	ModelServerURL   string
	PythonPath       string
	InferenceTimeout time.Duration
	TradesPath       string
	PredictionsPath  string
	DataPath         string
	ListenPort       int
	MetricsPort      int
	LogLevel         string
	LogFormat        string
	PredictRateLimit float64 // predictions per second across all clients, 0 disables
}

type ConfigFile struct {
	Model struct {
		Backend          string `yaml:"backend"`
		Path             string `yaml:"path"`
		ServerURL        string `yaml:"serverURL"`
		PythonPath       string `yaml:"pythonPath"`
		InferenceTimeout string `yaml:"inferenceTimeout"`
	} `yaml:"model"`

	Datasets struct {
		Trades      string `yaml:"trades"`
		Predictions string `yaml:"predictions"`
	} `yaml:"datasets"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		ListenPort  int    `yaml:"listenPort"`
		MetricsPort int    `yaml:"metricsPort"`
		LogLevel    string `yaml:"logLevel"`
		LogFormat   string `yaml:"logFormat"`

		PredictRateLimit float64 `yaml:"predictRateLimit"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	// A .env file is optional; real environment variables still apply
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	// Try to load from YAML file first
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout, err := time.ParseDuration(config.Model.InferenceTimeout)
	if err != nil {
		timeout = 5 * time.Second
	}
	if env := os.Getenv(common.EnvInferenceTimeout); env != "" {
		if d, err := time.ParseDuration(env); err == nil {
			timeout = d
		}
	}

	settings := Settings{
		ModelBackend:     strings.ToLower(getEnvOrDefault(common.EnvModelBackend, orDefault(config.Model.Backend, common.BackendPickle))),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		ModelServerURL:   getEnvOrDefault(common.EnvModelServerURL, config.Model.ServerURL),
		PythonPath:       getEnvOrDefault(common.EnvPythonPath, config.Model.PythonPath),
		InferenceTimeout: timeout,
		TradesPath:       getEnvOrDefault(common.EnvTradesPath, orDefault(config.Datasets.Trades, common.DefaultTradesPath)),
		PredictionsPath:  getEnvOrDefault(common.EnvPredictionsPath, orDefault(config.Datasets.Predictions, common.DefaultPredictionsPath)),
		DataPath:         getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		ListenPort:       getIntFromEnvOrConfig(common.EnvListenPort, config.System.ListenPort, 8501),
		MetricsPort:      getIntFromEnvOrConfig(common.EnvMetricsPort, config.System.MetricsPort, 9090),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, "info")),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, orDefault(config.System.LogFormat, "json")),
		PredictRateLimit: getFloatOrDefault(common.EnvPredictRateLimit, config.System.PredictRateLimit),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		ModelBackend:     strings.ToLower(getEnvOrDefault(common.EnvModelBackend, common.BackendPickle)),
		ModelPath:        getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		ModelServerURL:   os.Getenv(common.EnvModelServerURL),
		PythonPath:       os.Getenv(common.EnvPythonPath), // optional, discovered when empty
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, 5*time.Second),
		TradesPath:       getEnvOrDefault(common.EnvTradesPath, common.DefaultTradesPath),
		PredictionsPath:  getEnvOrDefault(common.EnvPredictionsPath, common.DefaultPredictionsPath),
		DataPath:         os.Getenv(common.EnvDataPath), // optional
		ListenPort:       getIntOrDefault(common.EnvListenPort, 8501),
		MetricsPort:      getIntOrDefault(common.EnvMetricsPort, 9090),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, "info"),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, "json"),
		PredictRateLimit: getFloatOrDefault(common.EnvPredictRateLimit, 0),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings checks every value the server depends on before anything is loaded
func validateSettings(settings *Settings) error {
	switch settings.ModelBackend {
	case common.BackendPickle, common.BackendLinear:
		if settings.ModelPath == "" {
			return fmt.Errorf("model path is required for the %s backend", settings.ModelBackend)
		}
	case common.BackendRemote:
		if settings.ModelServerURL == "" {
			return fmt.Errorf("model server URL is required for the remote backend")
		}
		if !strings.HasPrefix(settings.ModelServerURL, "http://") && !strings.HasPrefix(settings.ModelServerURL, "https://") {
			return fmt.Errorf("model server URL must start with http:// or https://, got %q", settings.ModelServerURL)
		}
	default:
		return fmt.Errorf("unknown model backend %q (want %s, %s or %s)",
			settings.ModelBackend, common.BackendPickle, common.BackendRemote, common.BackendLinear)
	}

	if settings.TradesPath == "" {
		return fmt.Errorf("trades dataset path cannot be empty")
	}
	if settings.PredictionsPath == "" {
		return fmt.Errorf("predictions dataset path cannot be empty")
	}

	if settings.InferenceTimeout < 100*time.Millisecond || settings.InferenceTimeout > time.Minute {
		return fmt.Errorf("inference timeout must be between 100ms and 1m, got %v", settings.InferenceTimeout)
	}

	if settings.ListenPort < 1024 || settings.ListenPort > 65535 {
		return fmt.Errorf("listen port must be between 1024 and 65535, got %d", settings.ListenPort)
	}
	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.ListenPort == settings.MetricsPort {
		return fmt.Errorf("listen port and metrics port must differ, both are %d", settings.ListenPort)
	}

	if settings.PredictRateLimit < 0 {
		return fmt.Errorf("predict rate limit cannot be negative, got %v", settings.PredictRateLimit)
	}

	switch settings.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	return nil
}
