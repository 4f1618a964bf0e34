package config

import (
	"io/ioutil"
	"time"

	"github.com/skalibog/isma/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Indodax  IndodaxConfig  `yaml:"indodax"`
	Trading  TradingConfig  `yaml:"trading"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	UI       UIConfig       `yaml:"ui"`
}

// IndodaxConfig содержит настройки подключения к Indodax
type IndodaxConfig struct {
	BaseURL           string `yaml:"base_url"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RateLimit         int    `yaml:"rate_limit"`
	RateWindowSeconds int    `yaml:"rate_window_seconds"`
	MaxRetries        int    `yaml:"max_retries"`
}

// Timeout возвращает таймаут HTTP-клиента
func (c IndodaxConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateWindow возвращает окно ограничителя частоты запросов
func (c IndodaxConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

// TradingConfig содержит настройки отслеживаемых пар
type TradingConfig struct {
	Pairs           []string `yaml:"pairs"`
	CandleTimeframe string   `yaml:"candle_timeframe"`
	CandleLimit     int      `yaml:"candle_limit"`
}

// AnalysisConfig содержит настройки аналитических модулей
type AnalysisConfig struct {
	IntervalSeconds int                  `yaml:"interval_seconds"`
	Cache           CacheConfig          `yaml:"cache"`
	WarmMinutes     int                  `yaml:"warm_interval_minutes"`
	Technical       TechnicalConfig      `yaml:"technical"`
	Bandarmology    BandarmologyConfig   `yaml:"bandarmology"`
	Recommendation  RecommendationConfig `yaml:"recommendation"`
}

// Interval возвращает период цикла анализа
func (c AnalysisConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// WarmInterval возвращает период фонового прогрева кэша
func (c AnalysisConfig) WarmInterval() time.Duration {
	return time.Duration(c.WarmMinutes) * time.Minute
}

// CacheConfig настройки кэша стаканов
type CacheConfig struct {
	FreshnessSeconds    int `yaml:"freshness_seconds"`
	BatchSize           int `yaml:"batch_size"`
	BatchPauseMs        int `yaml:"batch_pause_ms"`
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

// Freshness возвращает окно свежести записи кэша
func (c CacheConfig) Freshness() time.Duration {
	return time.Duration(c.FreshnessSeconds) * time.Second
}

// BatchPause возвращает паузу между пакетами запросов
func (c CacheConfig) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMs) * time.Millisecond
}

// FetchTimeout возвращает таймаут одиночного запроса стакана
func (c CacheConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// TechnicalConfig настройки технического анализа
type TechnicalConfig struct {
	RSIPeriod    int `yaml:"rsi_period"`
	MACDFast     int `yaml:"macd_fast"`
	MACDSlow     int `yaml:"macd_slow"`
	MACDSignal   int `yaml:"macd_signal"`
	BBPeriod     int `yaml:"bb_period"`
	VolumePeriod int `yaml:"volume_period"`
}

// BandarmologyConfig настройки анализа потока заявок
type BandarmologyConfig struct {
	ImbalanceDepth  int     `yaml:"imbalance_depth"`
	WallDepth       int     `yaml:"wall_depth"`
	WallMultiplier  float64 `yaml:"wall_multiplier"`
	WallKeep        int     `yaml:"wall_keep"`
	WhaleDepth      int     `yaml:"whale_depth"`
	WhalePercentile float64 `yaml:"whale_percentile"`
}

// RecommendationConfig веса компонентов итоговой оценки
type RecommendationConfig struct {
	TechnicalWeight    float64 `yaml:"technical_weight"`
	BandarmologyWeight float64 `yaml:"bandarmology_weight"`
	MomentumWeight     float64 `yaml:"momentum_weight"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	Type         string `yaml:"type"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	RefreshRate int `yaml:"refresh_rate_ms"`
	MaxRows     int `yaml:"max_rows"`
}

// Refresh возвращает период обновления журнала в интерфейсе
func (c UIConfig) Refresh() time.Duration {
	return time.Duration(c.RefreshRate) * time.Millisecond
}

// Load загружает конфигурацию из файла
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		logger.Fatal("Ошибка чтения файла конфигурации", zap.Error(err))
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		logger.Fatal("Ошибка разбора файла конфигурации", zap.Error(err))
	}
	config.applyDefaults()

	logger.Debug("Загружена конфигурация", zap.String("path", path), zap.Any("config", config))

	logger.Info("Загружена конфигурация", zap.Any("pairs", config.Trading.Pairs))
	return &config, nil
}

// applyDefaults заполняет незаданные параметры значениями по умолчанию
func (c *Config) applyDefaults() {
	if c.Indodax.BaseURL == "" {
		c.Indodax.BaseURL = "https://indodax.com/api"
	}
	if c.Indodax.TimeoutSeconds <= 0 {
		c.Indodax.TimeoutSeconds = 10
	}
	if c.Indodax.RateLimit <= 0 {
		c.Indodax.RateLimit = 10
	}
	if c.Indodax.RateWindowSeconds <= 0 {
		c.Indodax.RateWindowSeconds = 60
	}
	if c.Indodax.MaxRetries <= 0 {
		c.Indodax.MaxRetries = 3
	}

	if c.Trading.CandleTimeframe == "" {
		c.Trading.CandleTimeframe = "1d"
	}
	if c.Trading.CandleLimit <= 0 {
		c.Trading.CandleLimit = 100
	}

	if c.Analysis.IntervalSeconds <= 0 {
		c.Analysis.IntervalSeconds = 60
	}
	if c.Analysis.WarmMinutes <= 0 {
		c.Analysis.WarmMinutes = 5
	}
	if c.Analysis.Cache.FreshnessSeconds <= 0 {
		c.Analysis.Cache.FreshnessSeconds = 30
	}
	if c.Analysis.Cache.BatchSize <= 0 {
		c.Analysis.Cache.BatchSize = 50
	}
	if c.Analysis.Cache.BatchPauseMs <= 0 {
		c.Analysis.Cache.BatchPauseMs = 100
	}
	if c.Analysis.Cache.FetchTimeoutSeconds <= 0 {
		c.Analysis.Cache.FetchTimeoutSeconds = 5
	}

	if c.Analysis.Technical.RSIPeriod <= 0 {
		c.Analysis.Technical.RSIPeriod = 14
	}
	if c.Analysis.Technical.MACDFast <= 0 {
		c.Analysis.Technical.MACDFast = 12
	}
	if c.Analysis.Technical.MACDSlow <= 0 {
		c.Analysis.Technical.MACDSlow = 26
	}
	if c.Analysis.Technical.MACDSignal <= 0 {
		c.Analysis.Technical.MACDSignal = 9
	}
	if c.Analysis.Technical.BBPeriod <= 0 {
		c.Analysis.Technical.BBPeriod = 20
	}
	if c.Analysis.Technical.VolumePeriod <= 0 {
		c.Analysis.Technical.VolumePeriod = 20
	}

	if c.Analysis.Bandarmology.ImbalanceDepth <= 0 {
		c.Analysis.Bandarmology.ImbalanceDepth = 20
	}
	if c.Analysis.Bandarmology.WallDepth <= 0 {
		c.Analysis.Bandarmology.WallDepth = 50
	}
	if c.Analysis.Bandarmology.WallMultiplier <= 0 {
		c.Analysis.Bandarmology.WallMultiplier = 3.0
	}
	if c.Analysis.Bandarmology.WallKeep <= 0 {
		c.Analysis.Bandarmology.WallKeep = 5
	}
	if c.Analysis.Bandarmology.WhaleDepth <= 0 {
		c.Analysis.Bandarmology.WhaleDepth = 50
	}
	if c.Analysis.Bandarmology.WhalePercentile <= 0 {
		c.Analysis.Bandarmology.WhalePercentile = 95
	}

	if c.Analysis.Recommendation.TechnicalWeight <= 0 {
		c.Analysis.Recommendation.TechnicalWeight = 0.4
	}
	if c.Analysis.Recommendation.BandarmologyWeight <= 0 {
		c.Analysis.Recommendation.BandarmologyWeight = 0.4
	}
	if c.Analysis.Recommendation.MomentumWeight <= 0 {
		c.Analysis.Recommendation.MomentumWeight = 0.2
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "none"
	}

	if c.UI.RefreshRate <= 0 {
		c.UI.RefreshRate = 1000
	}
	if c.UI.MaxRows <= 0 {
		c.UI.MaxRows = 20
	}
}
