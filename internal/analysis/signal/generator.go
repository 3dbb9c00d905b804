package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/skalibog/bfde/internal/analysis/indicators"
	"github.com/skalibog/bfde/internal/config"
	"github.com/skalibog/bfde/pkg/logger"
	"github.com/skalibog/bfde/pkg/models"
	"go.uber.org/zap"
)

// Generator превращает окно свечей в готовый торговый план:
// направление, уверенность, уровни входа/стопа/целей, плечо и
// размер позиции. Без состояния между вызовами.
type Generator struct {
	config config.SignalConfig
	symbol string
}

// NewGenerator создает генератор сигналов для символа
func NewGenerator(cfg config.SignalConfig, symbol string) *Generator {
	return &Generator{
		config: cfg,
		symbol: symbol,
	}
}

// GenerateCompleteSignal рассчитывает полный сигнал по окну свечей.
// Любой сбой внутри гасится на границе: наружу уходит WAIT,
// а не паника.
func (g *Generator) GenerateCompleteSignal(candles []models.Candle, currentPrice float64) (result models.TradingSignal) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Сбой генератора сигналов, возвращаем WAIT",
				zap.String("symbol", g.symbol), zap.Any("panic", r))
			result = g.waitSignal(currentPrice, "Внутренняя ошибка генератора")
		}
	}()

	prices := indicators.Closes(candles)
	highs := indicators.Highs(candles)
	lows := indicators.Lows(candles)
	volumes := indicators.Volumes(candles)

	// Рассчитываем все индикаторы по окну
	rsi := indicators.RSI(prices, 14)
	macd := indicators.MACD(prices)
	adx := indicators.ADX(highs, lows, prices, 14)
	atr := indicators.ATR(highs, lows, prices, 14)
	emaCross := indicators.Crossover(prices)
	rsiSeries := indicators.RSISeries(prices, 14)
	divergence := indicators.DetectDivergence(prices, rsiSeries)

	// Мультитаймфрейм: последние 100 свечей как 1H, последние 50 как 15M.
	// Настоящего ресемплинга нет, это осознанное упрощение.
	mtf := indicators.MultiTimeframeAnalyze(
		tail(candles, 100),
		tail(candles, 50),
		currentPrice,
	)

	lastVolume := 1.0
	if len(volumes) > 0 {
		lastVolume = volumes[len(volumes)-1]
	}

	direction, confidence, riskLevel, reasoning := g.evaluate(
		rsi, macd, adx, emaCross, divergence, mtf, lastVolume)

	plan := g.buildRiskPlan(direction, currentPrice, atr, confidence, riskLevel)

	signal := models.TradingSignal{
		ID:           fmt.Sprintf("signal_%s", uuid.NewString()),
		Timestamp:    time.Now(),
		Symbol:       g.symbol,
		Direction:    direction,
		Confidence:   math.Min(confidence, g.config.MaxConfidence),
		EntryPrice:   plan.EntryPrice,
		StopLoss:     plan.StopLoss,
		TakeProfit1:  plan.TakeProfit1,
		TakeProfit2:  plan.TakeProfit2,
		TakeProfit3:  plan.TakeProfit3,
		MaxLeverage:  plan.MaxLeverage,
		RiskReward:   plan.RiskReward,
		PositionSize: plan.PositionSize,
		Timeframe:    "Комбинация 15M/1H",
		Reasoning:    reasoning,
		RiskLevel:    riskLevel,
		Technicals: models.Technicals{
			RSI:    rsi,
			MACD:   macd,
			ADX:    adx,
			EMA50:  emaCross.EMA50,
			EMA200: emaCross.EMA200,
			ATR:    atr,
			Volume: lastVolume,
		},
	}

	logger.Debug("Сигнал сгенерирован",
		zap.String("symbol", g.symbol),
		zap.String("direction", signal.Direction),
		zap.Float64("confidence", signal.Confidence))

	return signal
}

// evaluate применяет торговые фильтры и решает направление
func (g *Generator) evaluate(
	rsi, macd, adx float64,
	emaCross models.EMACrossover,
	divergence models.Divergence,
	mtf models.MultiTimeframe,
	lastVolume float64,
) (direction string, confidence float64, riskLevel string, reasoning []string) {

	direction = models.SignalWait
	riskLevel = models.RiskMedium

	switch {
	// Вход в лонг: все фильтры должны сойтись
	case emaCross.Signal == "BULLISH" &&
		adx > g.config.ADXThreshold &&
		rsi < g.config.RSILongBelow &&
		macd > 0 &&
		mtf.TrendBias == "BULLISH":

		direction = models.SignalLong
		confidence = g.config.BaseConfidence
		reasoning = append(reasoning, "Бычий сетап подтвержден")
		reasoning = append(reasoning, fmt.Sprintf("Пересечение EMA: %s", emaCross.Signal))
		reasoning = append(reasoning, fmt.Sprintf("Сила ADX: %.1f (сильный тренд)", adx))
		reasoning = append(reasoning, fmt.Sprintf("RSI: %.1f (отскок из перепроданности)", rsi))
		reasoning = append(reasoning, fmt.Sprintf("MACD: %.2f (положительный импульс)", macd))

		if divergence.Type == "BULLISH" {
			confidence += g.config.DivergenceBonus
			riskLevel = models.RiskLow
			reasoning = append(reasoning, "Бычья дивергенция RSI")
		}
		if lastVolume > g.config.VolumeBonusLevel {
			confidence += g.config.VolumeBonus
			reasoning = append(reasoning, "Подтверждение высоким объемом")
		}

	// Вход в шорт: зеркальные условия
	case emaCross.Signal == "BEARISH" &&
		adx > g.config.ADXThreshold &&
		rsi > g.config.RSIShortAbove &&
		macd < 0 &&
		mtf.TrendBias == "BEARISH":

		direction = models.SignalShort
		confidence = g.config.BaseConfidence
		reasoning = append(reasoning, "Медвежий сетап подтвержден")
		reasoning = append(reasoning, fmt.Sprintf("Пересечение EMA: %s", emaCross.Signal))
		reasoning = append(reasoning, fmt.Sprintf("Сила ADX: %.1f (сильный тренд)", adx))
		reasoning = append(reasoning, fmt.Sprintf("RSI: %.1f (разворот из перекупленности)", rsi))
		reasoning = append(reasoning, fmt.Sprintf("MACD: %.2f (отрицательный импульс)", macd))

		if divergence.Type == "BEARISH" {
			confidence += g.config.DivergenceBonus
			riskLevel = models.RiskLow
			reasoning = append(reasoning, "Медвежья дивергенция RSI")
		}
		if lastVolume > g.config.VolumeBonusLevel {
			confidence += g.config.VolumeBonus
			reasoning = append(reasoning, "Подтверждение высоким объемом")
		}

	default:
		reasoning = append(reasoning, "Ждем более качественный сетап")
		if adx < g.config.ADXThreshold {
			reasoning = append(reasoning, "ADX слишком слабый (боковик)")
		}
		if math.Abs(rsi-50) < 10 {
			reasoning = append(reasoning, "RSI нейтрален (нет экстремумов)")
		}
		if emaCross.Signal == "NEUTRAL" {
			reasoning = append(reasoning, "Нет четкого тренда")
		}
	}

	return direction, confidence, riskLevel, reasoning
}

// riskPlan содержит расчетную часть сигнала: уровни и размер
type riskPlan struct {
	EntryPrice   float64
	StopLoss     float64
	TakeProfit1  float64
	TakeProfit2  float64
	TakeProfit3  float64
	MaxLeverage  int
	RiskReward   float64
	PositionSize float64
}

// buildRiskPlan рассчитывает стоп от ATR и лестницу целей
// с фиксированными множителями 1.5 / 2.5 / 4.0.
func (g *Generator) buildRiskPlan(direction string, price, atr, confidence float64, riskLevel string) riskPlan {
	if direction == models.SignalWait {
		return riskPlan{
			EntryPrice:  price,
			StopLoss:    price,
			TakeProfit1: price,
			TakeProfit2: price,
			TakeProfit3: price,
			MaxLeverage: 1,
		}
	}

	atrMultiplier := g.config.ATRMultiplierMed
	switch riskLevel {
	case models.RiskLow:
		atrMultiplier = g.config.ATRMultiplierLow
	case models.RiskHigh:
		atrMultiplier = g.config.ATRMultiplierHigh
	}
	stopDistance := atr * atrMultiplier

	var stopLoss, tp1, tp2, tp3 float64
	if direction == models.SignalLong {
		stopLoss = price - stopDistance
		tp1 = price + stopDistance*1.5
		tp2 = price + stopDistance*2.5
		tp3 = price + stopDistance*4.0
	} else {
		stopLoss = price + stopDistance
		tp1 = price - stopDistance*1.5
		tp2 = price - stopDistance*2.5
		tp3 = price - stopDistance*4.0
	}

	// Плечо и размер позиции по уверенности и уровню риска
	var maxLeverage int
	var positionSize float64
	switch {
	case confidence >= 80 && riskLevel == models.RiskLow:
		maxLeverage = 10
		positionSize = 15
	case confidence >= 70 && riskLevel == models.RiskMedium:
		maxLeverage = 5
		positionSize = 10
	case confidence >= 60:
		maxLeverage = 3
		positionSize = 5
	default:
		maxLeverage = 1
		positionSize = 2
	}

	var riskReward float64
	if stopLoss != price {
		riskReward = math.Abs((tp1 - price) / (stopLoss - price))
	}

	return riskPlan{
		EntryPrice:   price,
		StopLoss:     round2(stopLoss),
		TakeProfit1:  round2(tp1),
		TakeProfit2:  round2(tp2),
		TakeProfit3:  round2(tp3),
		MaxLeverage:  maxLeverage,
		RiskReward:   round2(riskReward),
		PositionSize: positionSize,
	}
}

// waitSignal возвращает нейтральный сигнал для аварийных случаев
func (g *Generator) waitSignal(price float64, reason string) models.TradingSignal {
	return models.TradingSignal{
		ID:          fmt.Sprintf("signal_%s", uuid.NewString()),
		Timestamp:   time.Now(),
		Symbol:      g.symbol,
		Direction:   models.SignalWait,
		EntryPrice:  price,
		StopLoss:    price,
		TakeProfit1: price,
		TakeProfit2: price,
		TakeProfit3: price,
		MaxLeverage: 1,
		RiskLevel:   models.RiskMedium,
		Reasoning:   []string{reason},
	}
}

// SignalQuality представляет оценку качества для отображения
type SignalQuality struct {
	Quality     string
	Description string
}

// GetSignalQuality присваивает сигналу одну из четырех оценок.
// Чистая презентация, на торговую логику не влияет.
func GetSignalQuality(confidence float64, riskLevel string) SignalQuality {
	switch {
	case confidence >= 85 && riskLevel == models.RiskLow:
		return SignalQuality{Quality: "EXCELLENT", Description: "Премиальный сигнал: максимальная уверенность"}
	case confidence >= 75:
		return SignalQuality{Quality: "GOOD", Description: "Хороший сигнал: высокая вероятность"}
	case confidence >= 65:
		return SignalQuality{Quality: "AVERAGE", Description: "Средний сигнал: торговать осторожно"}
	default:
		return SignalQuality{Quality: "POOR", Description: "Слабый сигнал: не рекомендуется"}
	}
}

// round2 округляет цену до двух знаков
func round2(value float64) float64 {
	rounded, _ := decimal.NewFromFloat(value).Round(2).Float64()
	return rounded
}

// tail возвращает последние n свечей окна
func tail(candles []models.Candle, n int) []models.Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
