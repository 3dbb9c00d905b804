package indicators

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/bfde/pkg/models"
)

// Пакет indicators содержит чистые функции расчета индикаторов.
// Контракт: при нехватке данных функция возвращает нейтральное
// значение (RSI=50, сигнал NEUTRAL, ADX/ATR=0), никогда не ошибку.

// RSI рассчитывает индекс относительной силы по Уайлдеру.
// При нехватке данных возвращает нейтральные 50.
func RSI(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 50
	}

	var gains, losses float64
	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RSISeries рассчитывает серию RSI той же длины, что и вход.
// Начальные точки без значения заполняются нейтральными 50.
func RSISeries(prices []float64, period int) []float64 {
	series := make([]float64, len(prices))
	if len(prices) < period+1 {
		for i := range series {
			series[i] = 50
		}
		return series
	}

	raw := talib.Rsi(prices, period)
	for i := range raw {
		if i < period {
			series[i] = 50
		} else {
			series[i] = raw[i]
		}
	}
	return series
}

// EMA рассчитывает экспоненциальную скользящую среднюю.
// Сид — простое среднее первых period значений. При нехватке
// данных возвращается последняя доступная цена.
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		return prices[len(prices)-1]
	}

	var sum float64
	for _, p := range prices[:period] {
		sum += p
	}
	ema := sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(prices); i++ {
		ema = (prices[i] * multiplier) + (ema * (1 - multiplier))
	}

	return ema
}

// MACD возвращает разницу EMA12 и EMA26.
// Менее 26 точек — нейтральный ноль.
func MACD(prices []float64) float64 {
	if len(prices) < 26 {
		return 0
	}
	return EMA(prices, 12) - EMA(prices, 26)
}

// ADX рассчитывает индекс силы тренда через +DI/-DI.
// Нехватка данных или деление на ноль дают 0.
func ADX(highs, lows, closes []float64, period int) float64 {
	if len(highs) < period+1 || len(lows) < period+1 || len(closes) < period+1 {
		return 0
	}

	n := len(highs)
	trueRanges := make([]float64, 0, n-1)
	plusDMs := make([]float64, 0, n-1)
	minusDMs := make([]float64, 0, n-1)

	for i := 1; i < n; i++ {
		trueRange := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))

		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]

		var plusDM, minusDM float64
		if upMove > downMove {
			plusDM = math.Max(upMove, 0)
		}
		if downMove > upMove {
			minusDM = math.Max(downMove, 0)
		}

		trueRanges = append(trueRanges, trueRange)
		plusDMs = append(plusDMs, plusDM)
		minusDMs = append(minusDMs, minusDM)
	}

	atr := tailMean(trueRanges, period)
	if atr == 0 {
		return 0
	}

	plusDI := tailMean(plusDMs, period) / atr * 100
	minusDI := tailMean(minusDMs, period) / atr * 100

	if plusDI+minusDI == 0 {
		return 0
	}

	return math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
}

// ATR рассчитывает средний истинный диапазон
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) < period+1 || len(lows) < period+1 || len(closes) < period+1 {
		return 0
	}

	trueRanges := make([]float64, 0, len(highs)-1)
	for i := 1; i < len(highs); i++ {
		trueRange := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
		trueRanges = append(trueRanges, trueRange)
	}

	return tailMean(trueRanges, period)
}

// Crossover рассчитывает пересечение EMA50/EMA200 и силу тренда
func Crossover(prices []float64) models.EMACrossover {
	ema50 := EMA(prices, 50)
	ema200 := EMA(prices, 200)

	cross := models.EMACrossover{
		EMA50:  ema50,
		EMA200: ema200,
		Signal: "NEUTRAL",
	}

	if ema200 == 0 {
		return cross
	}

	if ema50 > ema200 {
		cross.Signal = "BULLISH"
		cross.Strength = math.Abs((ema50 - ema200) / ema200 * 100)
	} else if ema50 < ema200 {
		cross.Signal = "BEARISH"
		cross.Strength = math.Abs((ema200 - ema50) / ema200 * 100)
	}

	return cross
}

// DetectDivergence ищет расхождение цены и RSI в последнем окне.
// Нужно минимум по 20 точек каждой серии, окно сравнения — 10 точек.
func DetectDivergence(prices, rsiValues []float64) models.Divergence {
	if len(prices) < 20 || len(rsiValues) < 20 {
		return models.Divergence{Type: "NONE", Description: "Недостаточно данных"}
	}

	recentPrices := prices[len(prices)-10:]
	recentRSI := rsiValues[len(rsiValues)-10:]

	currentPrice := recentPrices[len(recentPrices)-1]
	currentRSI := recentRSI[len(recentRSI)-1]

	// Экстремумы ищем в окне без текущей точки, иначе
	// текущая цена не может пробить собственный минимум
	window := recentPrices[:len(recentPrices)-1]

	minIdx, maxIdx := 0, 0
	for i, p := range window {
		if p < window[minIdx] {
			minIdx = i
		}
		if p > window[maxIdx] {
			maxIdx = i
		}
	}

	// Бычья дивергенция: цена обновляет минимум, RSI заметно выше
	if currentPrice < window[minIdx] && currentRSI > recentRSI[minIdx]+5 {
		return models.Divergence{
			Type:        "BULLISH",
			Confidence:  math.Min((currentRSI-recentRSI[minIdx])*2, 90),
			Description: "Обнаружена бычья дивергенция RSI: возможен разворот вверх",
		}
	}

	// Медвежья дивергенция: цена обновляет максимум, RSI заметно ниже
	if currentPrice > window[maxIdx] && currentRSI < recentRSI[maxIdx]-5 {
		return models.Divergence{
			Type:        "BEARISH",
			Confidence:  math.Min((recentRSI[maxIdx]-currentRSI)*2, 90),
			Description: "Обнаружена медвежья дивергенция RSI: возможен разворот вниз",
		}
	}

	return models.Divergence{Type: "NONE", Description: "Дивергенция не обнаружена"}
}

// BollingerBands возвращает верхнюю, среднюю и нижнюю полосы.
// При нехватке данных все три полосы вырождаются в последнюю цену.
func BollingerBands(prices []float64, period int, stdDev float64) (upper, middle, lower float64) {
	if len(prices) == 0 {
		return 0, 0, 0
	}
	if len(prices) < period {
		last := prices[len(prices)-1]
		return last, last, last
	}

	up, mid, low := talib.BBands(prices, period, stdDev, stdDev, talib.SMA)
	return up[len(up)-1], mid[len(mid)-1], low[len(low)-1]
}

// Fibonacci рассчитывает уровни коррекции для ценового диапазона
func Fibonacci(high, low float64) ([]models.FibLevel, string) {
	priceRange := high - low
	ratios := []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1}

	levels := make([]models.FibLevel, len(ratios))
	for i, fib := range ratios {
		levels[i] = models.FibLevel{
			Level: fib,
			Price: high - priceRange*fib,
			Name:  fmt.Sprintf("%.1f%%", fib*100),
		}
	}

	return levels, fmt.Sprintf("Уровни Фибоначчи для диапазона %.0f - %.0f", low, high)
}

// DetectFairValueGaps ищет незаполненные ценовые разрывы по трем свечам.
// Возвращаются последние 5 разрывов.
func DetectFairValueGaps(candles []models.Candle) ([]models.FairValueGap, string) {
	var gaps []models.FairValueGap

	for i := 2; i < len(candles); i++ {
		prev := candles[i-2]
		next := candles[i]

		// Бычий разрыв: между prev.High и next.Low
		if prev.High < next.Low {
			gaps = append(gaps, models.FairValueGap{
				Start:     prev.High,
				End:       next.Low,
				Direction: "UP",
				Index:     i,
			})
		}

		// Медвежий разрыв: между next.High и prev.Low
		if prev.Low > next.High {
			gaps = append(gaps, models.FairValueGap{
				Start:     next.High,
				End:       prev.Low,
				Direction: "DOWN",
				Index:     i,
			})
		}
	}

	total := len(gaps)
	if total > 5 {
		gaps = gaps[total-5:]
	}

	return gaps, fmt.Sprintf("Обнаружено разрывов: %d", total)
}

// MultiTimeframeAnalyze сводит часовой тренд и 15-минутный вход.
// Часовой тренд задает направление, ADX фильтрует флэт,
// RSI и MACD младшего таймфрейма дают триггер входа.
func MultiTimeframeAnalyze(data1h, data15m []models.Candle, currentPrice float64) models.MultiTimeframe {
	result := models.MultiTimeframe{
		TrendBias:   "NEUTRAL",
		EntrySignal: "WAIT",
	}

	if len(data1h) == 0 || len(data15m) == 0 {
		result.Reasoning = append(result.Reasoning, "Недостаточно данных для мультитаймфрейм-анализа")
		return result
	}

	prices1h := Closes(data1h)
	highs1h := Highs(data1h)
	lows1h := Lows(data1h)

	ema50 := EMA(prices1h, 50)
	ema200 := EMA(prices1h, 200)
	if ema50 > ema200 {
		result.TrendBias = "BULLISH"
	} else if ema50 < ema200 {
		result.TrendBias = "BEARISH"
	}

	adx := ADX(highs1h, lows1h, prices1h, 14)

	prices15m := Closes(data15m)
	rsi15m := RSI(prices15m, 14)
	macd15m := MACD(prices15m)

	result.Reasoning = append(result.Reasoning,
		fmt.Sprintf("Тренд 1H: %s (EMA50: %.0f)", result.TrendBias, ema50))
	if adx > 25 {
		result.Reasoning = append(result.Reasoning, fmt.Sprintf("Сила тренда ADX: %.1f (сильный)", adx))
	} else {
		result.Reasoning = append(result.Reasoning, fmt.Sprintf("Сила тренда ADX: %.1f (слабый)", adx))
	}

	// Триггер входа: младший таймфрейм подтверждает старший
	if result.TrendBias == "BULLISH" && adx > 20 {
		if rsi15m < 40 && macd15m > 0 {
			result.EntrySignal = "BUY"
			result.Confidence = 85
			result.Reasoning = append(result.Reasoning, "Бычий вход: RSI перепродан, MACD положительный")
		}
	} else if result.TrendBias == "BEARISH" && adx > 20 {
		if rsi15m > 60 && macd15m < 0 {
			result.EntrySignal = "SELL"
			result.Confidence = 85
			result.Reasoning = append(result.Reasoning, "Медвежий вход: RSI перекуплен, MACD отрицательный")
		}
	}

	if adx < 20 {
		result.Reasoning = append(result.Reasoning, "Слабый тренд: ждем более четких сигналов")
	}

	return result
}

// Closes извлекает цены закрытия из серии свечей
func Closes(candles []models.Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.Close
	}
	return values
}

// Highs извлекает максимумы из серии свечей
func Highs(candles []models.Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.High
	}
	return values
}

// Lows извлекает минимумы из серии свечей
func Lows(candles []models.Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.Low
	}
	return values
}

// Volumes извлекает объемы из серии свечей
func Volumes(candles []models.Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.Volume
	}
	return values
}

// tailMean возвращает среднее последних period значений
func tailMean(values []float64, period int) float64 {
	if len(values) == 0 || period <= 0 {
		return 0
	}
	if period > len(values) {
		period = len(values)
	}

	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}
