package metaai

import (
	"fmt"
	"math"
	"time"

	"github.com/skalibog/bfde/internal/analysis/indicators"
	"github.com/skalibog/bfde/internal/config"
	"github.com/skalibog/bfde/pkg/models"
)

// Strategy — единый контракт агента ансамбля. Агент читает окно
// свечей и отдает свой голос; вес голоса проставляет менеджер
// из таблицы производительности, сам агент его не трогает.
type Strategy interface {
	ID() string
	Name() string
	Label() string
	Evaluate(candles []models.Candle, currentPrice float64) models.AgentSignal
}

// trendFollower торгует по тренду: EMA-кросс, MACD и сила ADX
type trendFollower struct {
	config config.MetaAIConfig
}

func (a *trendFollower) ID() string    { return "trend_follower" }
func (a *trendFollower) Name() string  { return "Трендовый агент" }
func (a *trendFollower) Label() string { return "Следование тренду EMA/MACD" }

func (a *trendFollower) Evaluate(candles []models.Candle, currentPrice float64) models.AgentSignal {
	prices := indicators.Closes(candles)
	emaCross := indicators.Crossover(prices)
	macd := indicators.MACD(prices)
	adx := indicators.ADX(indicators.Highs(candles), indicators.Lows(candles), prices, 14)

	vote := newVote(a)

	switch {
	case emaCross.Signal == "BULLISH" && macd > 0 && adx > a.config.TrendADX:
		vote.Signal = models.SignalLong
		vote.Confidence = 75
		if adx > a.config.TrendADXStrong {
			vote.Confidence += 10
		}
		vote.Reasoning = append(vote.Reasoning,
			"Обнаружен сильный восходящий тренд",
			fmt.Sprintf("Пересечение EMA: %s", emaCross.Signal),
			fmt.Sprintf("MACD: %.2f (положительный)", macd),
			fmt.Sprintf("ADX: %.1f (трендовый рынок)", adx))
	case emaCross.Signal == "BEARISH" && macd < 0 && adx > a.config.TrendADX:
		vote.Signal = models.SignalShort
		vote.Confidence = 75
		if adx > a.config.TrendADXStrong {
			vote.Confidence += 10
		}
		vote.Reasoning = append(vote.Reasoning,
			"Обнаружен сильный нисходящий тренд",
			fmt.Sprintf("Пересечение EMA: %s", emaCross.Signal),
			fmt.Sprintf("MACD: %.2f (отрицательный)", macd),
			fmt.Sprintf("ADX: %.1f (трендовый рынок)", adx))
	default:
		vote.Reasoning = append(vote.Reasoning, "Нет четкого тренда, ждем")
	}

	return vote
}

// meanReversion ловит отскоки от полос Боллинджера при RSI-экстремумах
type meanReversion struct {
	config config.MetaAIConfig
}

func (a *meanReversion) ID() string    { return "mean_reversion" }
func (a *meanReversion) Name() string  { return "Агент возврата к среднему" }
func (a *meanReversion) Label() string { return "Возврат к среднему по Боллинджеру/RSI" }

func (a *meanReversion) Evaluate(candles []models.Candle, currentPrice float64) models.AgentSignal {
	prices := indicators.Closes(candles)
	rsi := indicators.RSI(prices, 14)
	upper, _, lower := indicators.BollingerBands(prices, 20, 2.0)

	vote := newVote(a)

	switch {
	// Цена у нижней полосы и перепроданность: вероятен отскок вверх
	case rsi < 30 && currentPrice <= lower && currentPrice > lower*0.98:
		vote.Signal = models.SignalLong
		vote.Confidence = 70 + bonusByExtremity(rsi < 25)
		vote.Reasoning = append(vote.Reasoning,
			"Сетап отскока из перепроданности",
			fmt.Sprintf("RSI: %.1f (перепродан)", rsi),
			fmt.Sprintf("Цена у нижней полосы: %.2f", lower),
			"Вероятен возврат к среднему")
	// Цена у верхней полосы и перекупленность: вероятен откат вниз
	case rsi > 70 && currentPrice >= upper && currentPrice < upper*1.02:
		vote.Signal = models.SignalShort
		vote.Confidence = 70 + bonusByExtremity(rsi > 75)
		vote.Reasoning = append(vote.Reasoning,
			"Сетап разворота из перекупленности",
			fmt.Sprintf("RSI: %.1f (перекуплен)", rsi),
			fmt.Sprintf("Цена у верхней полосы: %.2f", upper),
			"Вероятен возврат к среднему")
	default:
		vote.Reasoning = append(vote.Reasoning, "Экстремальные зоны не достигнуты")
	}

	return vote
}

func bonusByExtremity(extreme bool) float64 {
	if extreme {
		return 15
	}
	return 10
}

// breakoutHunter ищет пробои 20-барного диапазона на объеме
type breakoutHunter struct {
	config config.MetaAIConfig
}

func (a *breakoutHunter) ID() string    { return "breakout_hunter" }
func (a *breakoutHunter) Name() string  { return "Агент пробоев" }
func (a *breakoutHunter) Label() string { return "Пробой диапазона на объеме" }

func (a *breakoutHunter) Evaluate(candles []models.Candle, currentPrice float64) models.AgentSignal {
	vote := newVote(a)

	if len(candles) < 2 {
		vote.Reasoning = append(vote.Reasoning, "Недостаточно данных для анализа пробоя")
		return vote
	}

	window := candles
	if len(window) > 20 {
		window = window[len(window)-20:]
	}

	resistance := math.Inf(-1)
	support := math.Inf(1)
	var totalVolume float64
	for _, c := range window {
		resistance = math.Max(resistance, c.High)
		support = math.Min(support, c.Low)
		totalVolume += c.Volume
	}

	avgVolume := totalVolume / float64(len(window))
	currentVolume := candles[len(candles)-1].Volume

	volumeSpike := 0.0
	if avgVolume > 0 {
		volumeSpike = currentVolume / avgVolume
	}

	rangeSize := 0.0
	if support > 0 {
		rangeSize = (resistance - support) / support * 100
	}

	switch {
	case currentPrice > resistance && volumeSpike >= a.config.BreakoutVolume && rangeSize > a.config.BreakoutRange:
		vote.Signal = models.SignalLong
		vote.Confidence = 80
		if volumeSpike > 2.0 {
			vote.Confidence += 10
		}
		vote.Reasoning = append(vote.Reasoning,
			"Обнаружен пробой вверх",
			fmt.Sprintf("Пробой сопротивления: %.2f", resistance),
			fmt.Sprintf("Всплеск объема: %.1fx", volumeSpike),
			fmt.Sprintf("Диапазон: %.1f%%", rangeSize))
	case currentPrice < support && volumeSpike >= a.config.BreakoutVolume && rangeSize > a.config.BreakoutRange:
		vote.Signal = models.SignalShort
		vote.Confidence = 80
		if volumeSpike > 2.0 {
			vote.Confidence += 10
		}
		vote.Reasoning = append(vote.Reasoning,
			"Обнаружен пробой вниз",
			fmt.Sprintf("Пробой поддержки: %.2f", support),
			fmt.Sprintf("Всплеск объема: %.1fx", volumeSpike),
			fmt.Sprintf("Диапазон: %.1f%%", rangeSize))
	default:
		vote.Reasoning = append(vote.Reasoning, "Пробоя нет, цена заперта в диапазоне")
	}

	return vote
}

// neuralScorer — линейная модель с фиксированными весами поверх
// четырех ограниченных tanh-признаков. Не обучается.
type neuralScorer struct {
	config config.MetaAIConfig
}

func (a *neuralScorer) ID() string    { return "ai_neural" }
func (a *neuralScorer) Name() string  { return "Нейронный агент" }
func (a *neuralScorer) Label() string { return "Линейная скоринговая модель" }

func (a *neuralScorer) Evaluate(candles []models.Candle, currentPrice float64) models.AgentSignal {
	prices := indicators.Closes(candles)
	vote := newVote(a)

	priceAction := priceActionScore(prices)
	momentum := momentumScore(candles)
	volatility := volatilityScore(prices)
	pattern := patternScore(candles)

	// Фиксированные веса модели
	score := priceAction*0.3 + momentum*0.3 + volatility*0.2 + pattern*0.2

	switch {
	case score > a.config.NeuralThreshold:
		vote.Signal = models.SignalLong
		vote.Confidence = math.Min(score*100, 95)
		vote.Reasoning = append(vote.Reasoning,
			"Модель: бычий паттерн",
			fmt.Sprintf("Оценка уверенности: %.1f%%", score*100),
			fmt.Sprintf("Ценовое действие: %.2f", priceAction),
			fmt.Sprintf("Импульс: %.2f", momentum))
	case score < -a.config.NeuralThreshold:
		vote.Signal = models.SignalShort
		vote.Confidence = math.Min(math.Abs(score)*100, 95)
		vote.Reasoning = append(vote.Reasoning,
			"Модель: медвежий паттерн",
			fmt.Sprintf("Оценка уверенности: %.1f%%", math.Abs(score)*100),
			fmt.Sprintf("Ценовое действие: %.2f", priceAction),
			fmt.Sprintf("Импульс: %.2f", momentum))
	default:
		vote.Reasoning = append(vote.Reasoning, "Модель не уверена, ждем")
	}

	return vote
}

// priceActionScore оценивает краткосрочный тренд последних 10 точек
func priceActionScore(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	recent := prices
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	if recent[0] == 0 {
		return 0
	}
	trend := (recent[len(recent)-1] - recent[0]) / recent[0]
	return math.Tanh(trend * 100)
}

// momentumScore сравнивает текущий объем со средним за 5 свечей
func momentumScore(candles []models.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	recent := candles
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	var total float64
	for _, c := range recent {
		total += c.Volume
	}
	avg := total / float64(len(recent))
	if avg == 0 {
		return 0
	}

	current := recent[len(recent)-1].Volume
	return math.Tanh((current/avg - 1) * 2)
}

// volatilityScore оценивает разброс доходностей последних 10 точек
func volatilityScore(prices []float64) float64 {
	if len(prices) < 3 {
		return 0
	}
	recent := prices
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}

	var sumSquares float64
	count := 0
	for i := 1; i < len(recent); i++ {
		if recent[i-1] == 0 {
			continue
		}
		ret := (recent[i] - recent[i-1]) / recent[i-1]
		sumSquares += ret * ret
		count++
	}
	if count == 0 {
		return 0
	}

	volatility := math.Sqrt(sumSquares / float64(count))
	return math.Tanh(volatility * 100)
}

// patternScore ищет бычьи поглощения в последних 5 свечах
func patternScore(candles []models.Candle) float64 {
	recent := candles
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	var score float64
	for i := 1; i < len(recent); i++ {
		current := recent[i]
		previous := recent[i-1]
		if current.Close > current.Open &&
			previous.Close < previous.Open &&
			current.Close > previous.Open {
			score += 0.3
		}
	}

	return math.Tanh(score)
}

// newVote создает пустой голос агента с WAIT по умолчанию
func newVote(s Strategy) models.AgentSignal {
	return models.AgentSignal{
		AgentID:   s.ID(),
		AgentName: s.Name(),
		Strategy:  s.Label(),
		Signal:    models.SignalWait,
		Timestamp: time.Now(),
	}
}
