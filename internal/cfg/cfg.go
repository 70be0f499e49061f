package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	PolygonKey       string
	Tickers          []string
	BaseURL          string
	DataPath         string
	CachePath        string
	Timeframe        string
	ModelVersion     string
	LookbackDays     int
	WarmupBars       int
	RateLimit        float64 // market data requests per second
	DailyCacheTTL    time.Duration
	IntradayCacheTTL time.Duration
	MetricsPort      int
	RESTTimeout      time.Duration
	WeightOverrides  map[string]float64
}

type ConfigFile struct {
	API struct {
		Key     string `yaml:"key"`
		BaseURL string `yaml:"baseURL"`
	} `yaml:"api"`

	Scoring struct {
		Tickers      []string           `yaml:"tickers"`
		Timeframe    string             `yaml:"timeframe"`
		ModelVersion string             `yaml:"modelVersion"`
		Weights      map[string]float64 `yaml:"weights"`

		// Named weight profiles; weightProfile selects one, falling back to
		// the flat weights map when unset.
		WeightProfile  string                        `yaml:"weightProfile"`
		WeightProfiles map[string]map[string]float64 `yaml:"weightProfiles"`
	} `yaml:"scoring"`

	Data struct {
		DataPath         string  `yaml:"dataPath"`
		CachePath        string  `yaml:"cachePath"`
		LookbackDays     int     `yaml:"lookbackDays"`
		WarmupBars       int     `yaml:"warmupBars"`
		RateLimit        float64 `yaml:"rateLimit"`
		DailyCacheTTL    string  `yaml:"dailyCacheTTL"`
		IntradayCacheTTL string  `yaml:"intradayCacheTTL"`
	} `yaml:"data"`

	System struct {
		MetricsPort int    `yaml:"metricsPort"`
		RESTTimeout string `yaml:"restTimeout"`
	} `yaml:"system"`
}

func Load() (Settings, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
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

	dailyTTL, err := time.ParseDuration(config.Data.DailyCacheTTL)
	if err != nil {
		dailyTTL = 12 * time.Hour
	}
	intradayTTL, err := time.ParseDuration(config.Data.IntradayCacheTTL)
	if err != nil {
		intradayTTL = 6 * time.Hour
	}
	restTimeout, err := time.ParseDuration(config.System.RESTTimeout)
	if err != nil {
		restTimeout = 10 * time.Second
	}

	overrides := config.Scoring.Weights
	if profile := getEnvOrDefault("WEIGHT_PROFILE", config.Scoring.WeightProfile); profile != "" {
		p, ok := config.Scoring.WeightProfiles[profile]
		if !ok {
			return Settings{}, fmt.Errorf("weight profile %q is not defined", profile)
		}
		overrides = p
	}

	settings := Settings{
		PolygonKey:       getEnvOrDefault("POLYGON_API_KEY", config.API.Key),
		Tickers:          getTickersFromEnvOrConfig(config.Scoring.Tickers),
		BaseURL:          getEnvOrDefault("POLYGON_BASE_URL", defaultString(config.API.BaseURL, "https://api.polygon.io")),
		DataPath:         getEnvOrDefault("DATA_PATH", defaultString(config.Data.DataPath, "data")),
		CachePath:        getEnvOrDefault("CACHE_PATH", defaultString(config.Data.CachePath, "data/cache")),
		Timeframe:        getEnvOrDefault("TIMEFRAME", defaultString(config.Scoring.Timeframe, "dayTrade")),
		ModelVersion:     getEnvOrDefault("MODEL_VERSION", config.Scoring.ModelVersion),
		LookbackDays:     getIntFromEnvOrConfig("LOOKBACK_DAYS", config.Data.LookbackDays, 365),
		WarmupBars:       getIntFromEnvOrConfig("WARMUP_BARS", config.Data.WarmupBars, 50),
		RateLimit:        getFloatFromEnvOrConfig("RATE_LIMIT", config.Data.RateLimit, 4),
		DailyCacheTTL:    dailyTTL,
		IntradayCacheTTL: intradayTTL,
		MetricsPort:      getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort, 8080),
		RESTTimeout:      restTimeout,
		WeightOverrides:  overrides,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	key, err := getEnvRequired("POLYGON_API_KEY")
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		PolygonKey:       key,
		Tickers:          splitOrDefault(os.Getenv("TICKERS"), []string{"SPY"}),
		BaseURL:          getEnvOrDefault("POLYGON_BASE_URL", "https://api.polygon.io"),
		DataPath:         getEnvOrDefault("DATA_PATH", "data"),
		CachePath:        getEnvOrDefault("CACHE_PATH", "data/cache"),
		Timeframe:        getEnvOrDefault("TIMEFRAME", "dayTrade"),
		ModelVersion:     os.Getenv("MODEL_VERSION"), // optional
		LookbackDays:     getIntOrDefault("LOOKBACK_DAYS", 365),
		WarmupBars:       getIntOrDefault("WARMUP_BARS", 50),
		RateLimit:        getFloatOrDefault("RATE_LIMIT", 4),
		DailyCacheTTL:    getDurationOrDefault("DAILY_CACHE_TTL", 12*time.Hour),
		IntradayCacheTTL: getDurationOrDefault("INTRADAY_CACHE_TTL", 6*time.Hour),
		MetricsPort:      getIntOrDefault("METRICS_PORT", 8080),
		RESTTimeout:      getDurationOrDefault("REST_TIMEOUT", 10*time.Second),
		WeightOverrides:  make(map[string]float64),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func defaultString(v, def string) string {
	if v != "" {
		return v
	}
	return def
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

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	return strings.Split(v, ",")
}

func getTickersFromEnvOrConfig(configTickers []string) []string {
	if env := os.Getenv("TICKERS"); env != "" {
		return strings.Split(env, ",")
	}
	if len(configTickers) > 0 {
		return configTickers
	}
	return []string{"SPY"}
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

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.PolygonKey == "" {
		return fmt.Errorf("market data API key is required")
	}

	if len(settings.Tickers) == 0 {
		return fmt.Errorf("at least one ticker must be specified")
	}
	for _, t := range settings.Tickers {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("empty ticker in ticker list")
		}
	}

	if settings.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	if settings.Timeframe != "dayTrade" && settings.Timeframe != "swing" {
		return fmt.Errorf("timeframe must be dayTrade or swing, got %q", settings.Timeframe)
	}

	if settings.LookbackDays <= 0 || settings.LookbackDays > 3650 {
		return fmt.Errorf("lookback days must be between 1 and 3650, got %d", settings.LookbackDays)
	}
	if settings.WarmupBars < 50 || settings.WarmupBars > 1000 {
		return fmt.Errorf("warmup bars must be between 50 and 1000, got %d", settings.WarmupBars)
	}

	if settings.RateLimit <= 0 || settings.RateLimit > 100 {
		return fmt.Errorf("rate limit must be between 0 and 100 requests/sec, got %f", settings.RateLimit)
	}

	if settings.MetricsPort < 1024 || settings.MetricsPort > 65535 {
		return fmt.Errorf("metrics port must be between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.RESTTimeout < time.Second || settings.RESTTimeout > time.Minute {
		return fmt.Errorf("REST timeout must be between 1s and 1m, got %v", settings.RESTTimeout)
	}

	for key, w := range settings.WeightOverrides {
		if w < 0 {
			return fmt.Errorf("weight override for %s must be non-negative, got %f", key, w)
		}
	}

	return nil
}
