package config

import (
	"os"

	"github.com/skalibog/bfde/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance  BinanceConfig  `yaml:"binance"`
	Trading  TradingConfig  `yaml:"trading"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Risk     RiskConfig     `yaml:"risk"`
	TPSL     TPSLConfig     `yaml:"tpsl"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbols        []string `yaml:"symbols"`
	Interval       string   `yaml:"interval"`
	PortfolioValue float64  `yaml:"portfolio_value"`
}

// AnalysisConfig содержит настройки аналитических модулей
type AnalysisConfig struct {
	IntervalSeconds int          `yaml:"interval_seconds"`
	Signal          SignalConfig `yaml:"signal"`
	MetaAI          MetaAIConfig `yaml:"meta_ai"`
}

// SignalConfig содержит пороги генератора сигналов.
// Значения по умолчанию зафиксированы как торговая политика,
// менять их в бою без бэктеста нельзя.
type SignalConfig struct {
	ADXThreshold      float64 `yaml:"adx_threshold"`       // 20
	RSILongBelow      float64 `yaml:"rsi_long_below"`      // 45
	RSIShortAbove     float64 `yaml:"rsi_short_above"`     // 55
	BaseConfidence    float64 `yaml:"base_confidence"`     // 85
	DivergenceBonus   float64 `yaml:"divergence_bonus"`    // 10
	VolumeBonus       float64 `yaml:"volume_bonus"`        // 5
	VolumeBonusLevel  float64 `yaml:"volume_bonus_level"`  // 1.5
	MaxConfidence     float64 `yaml:"max_confidence"`      // 95
	ATRMultiplierLow  float64 `yaml:"atr_multiplier_low"`  // 1.5
	ATRMultiplierMed  float64 `yaml:"atr_multiplier_med"`  // 2.0
	ATRMultiplierHigh float64 `yaml:"atr_multiplier_high"` // 2.5
}

// MetaAIConfig содержит настройки ансамбля агентов
type MetaAIConfig struct {
	VoteThreshold   float64 `yaml:"vote_threshold"`    // 0.15, абсолютный порог взвешенных голосов
	MaxConfidence   float64 `yaml:"max_confidence"`    // 95
	MinAgentWeight  float64 `yaml:"min_agent_weight"`  // 0.1
	MaxAgentWeight  float64 `yaml:"max_agent_weight"`  // 0.4
	TrendADX        float64 `yaml:"trend_adx"`         // 25
	TrendADXStrong  float64 `yaml:"trend_adx_strong"`  // 30
	BreakoutVolume  float64 `yaml:"breakout_volume"`   // 1.5
	BreakoutRange   float64 `yaml:"breakout_range"`    // 3.0, процент от цены
	NeuralThreshold float64 `yaml:"neural_threshold"`  // 0.6
}

// RiskConfig содержит настройки риск-менеджмента
type RiskConfig struct {
	MaxDailyDrawdown     float64 `yaml:"max_daily_drawdown"`     // 2.0 %
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"` // 3
	MaxPositionSize      float64 `yaml:"max_position_size"`      // 15.0 %
	VolatilityThreshold  float64 `yaml:"volatility_threshold"`   // 0.05
	NewsFilterEnabled    bool    `yaml:"news_filter_enabled"`
	AutoStopOnDrawdown   bool    `yaml:"auto_stop_on_drawdown"`
	EmergencyStopLoss    float64 `yaml:"emergency_stop_loss"` // 5.0 %
	DailyBaseline        float64 `yaml:"daily_baseline"`      // стартовый капитал дня
}

// TPSLConfig содержит настройки менеджера TP/SL ордеров
type TPSLConfig struct {
	ATRMultiplierSL    float64 `yaml:"atr_multiplier_sl"`   // 1.5
	ATRMultiplierTP    float64 `yaml:"atr_multiplier_tp"`   // 2.5
	UseStructuralSL    bool    `yaml:"use_structural_sl"`   // стоп за тенью последней свечи
	EnableTrailing     bool    `yaml:"enable_trailing"`
	EnablePartialTP    bool    `yaml:"enable_partial_tp"`
	PartialTPPercent   float64 `yaml:"partial_tp_percent"`  // 50 % на TP1
	MaxSlippagePercent float64 `yaml:"max_slippage_percent"` // 1.0 %
	TrailingPercent    float64 `yaml:"trailing_percent"`     // 2.0 %
}

// StorageConfig содержит настройки хранения данных
type StorageConfig struct {
	Type         string `yaml:"type"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// NotifyConfig содержит настройки уведомлений
type NotifyConfig struct {
	TelegramEnabled bool   `yaml:"telegram_enabled"`
	TelegramToken   string `yaml:"telegram_token"`
	TelegramChatID  int64  `yaml:"telegram_chat_id"`
}

// Default возвращает конфигурацию со значениями по умолчанию.
// Числа повторяют зафиксированную торговую политику.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Symbols:        []string{"BTCUSDT"},
			Interval:       "15m",
			PortfolioValue: 10000,
		},
		Analysis: AnalysisConfig{
			IntervalSeconds: 60,
			Signal: SignalConfig{
				ADXThreshold:      20,
				RSILongBelow:      45,
				RSIShortAbove:     55,
				BaseConfidence:    85,
				DivergenceBonus:   10,
				VolumeBonus:       5,
				VolumeBonusLevel:  1.5,
				MaxConfidence:     95,
				ATRMultiplierLow:  1.5,
				ATRMultiplierMed:  2.0,
				ATRMultiplierHigh: 2.5,
			},
			MetaAI: MetaAIConfig{
				VoteThreshold:   0.15,
				MaxConfidence:   95,
				MinAgentWeight:  0.1,
				MaxAgentWeight:  0.4,
				TrendADX:        25,
				TrendADXStrong:  30,
				BreakoutVolume:  1.5,
				BreakoutRange:   3.0,
				NeuralThreshold: 0.6,
			},
		},
		Risk: RiskConfig{
			MaxDailyDrawdown:     2.0,
			MaxConsecutiveLosses: 3,
			MaxPositionSize:      15.0,
			VolatilityThreshold:  0.05,
			NewsFilterEnabled:    true,
			AutoStopOnDrawdown:   true,
			EmergencyStopLoss:    5.0,
			DailyBaseline:        10000,
		},
		TPSL: TPSLConfig{
			ATRMultiplierSL:    1.5,
			ATRMultiplierTP:    2.5,
			UseStructuralSL:    true,
			EnableTrailing:     false,
			EnablePartialTP:    true,
			PartialTPPercent:   50,
			MaxSlippagePercent: 1.0,
			TrailingPercent:    2.0,
		},
		Storage: StorageConfig{
			Type: "influxdb",
		},
	}
}

// Load загружает конфигурацию из файла поверх значений по умолчанию
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("Ошибка чтения файла конфигурации", zap.Error(err))
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		logger.Fatal("Ошибка разбора файла конфигурации", zap.Error(err))
	}

	logger.Debug("Загружена конфигурация", zap.String("path", path), zap.Any("config", config))

	logger.Info("Загружена конфигурация", zap.Any("Symbols", config.Trading.Symbols))
	return config, nil
}
