package indicators

import (
	"math"
	"testing"

	"github.com/skalibog/bfde/pkg/models"
)

func TestRSIInsufficientData(t *testing.T) {
	prices := []float64{100, 101, 102}

	rsi := RSI(prices, 14)

	if rsi != 50 {
		t.Errorf("при нехватке данных ожидается нейтральный RSI 50, получено %.2f", rsi)
	}
}

func TestRSIOnlyGains(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	rsi := RSI(prices, 14)

	if rsi != 100 {
		t.Errorf("при нулевых потерях ожидается RSI 100, получено %.2f", rsi)
	}
}

func TestRSIOnlyLosses(t *testing.T) {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 200 - float64(i)
	}

	rsi := RSI(prices, 14)

	if rsi != 0 {
		t.Errorf("при нулевом росте ожидается RSI 0, получено %.2f", rsi)
	}
}

func TestRSIMixedSeries(t *testing.T) {
	prices := []float64{100, 102, 101, 103, 102, 104, 103, 105, 104, 106, 105, 107, 106, 108, 107}

	rsi := RSI(prices, 14)

	if rsi <= 0 || rsi >= 100 {
		t.Errorf("RSI смешанной серии должен лежать строго в (0, 100), получено %.2f", rsi)
	}
	if rsi <= 50 {
		t.Errorf("серия с преобладанием роста должна давать RSI выше 50, получено %.2f", rsi)
	}
}

func TestRSISeriesLengthAndWarmup(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i%5)
	}

	series := RSISeries(prices, 14)

	if len(series) != len(prices) {
		t.Fatalf("длина серии RSI должна совпадать со входом: %d != %d", len(series), len(prices))
	}
	for i := 0; i < 14; i++ {
		if series[i] != 50 {
			t.Errorf("точка %d до прогрева должна быть 50, получено %.2f", i, series[i])
		}
	}
}

func TestEMAShortInput(t *testing.T) {
	prices := []float64{100, 105, 110}

	ema := EMA(prices, 50)

	if ema != 110 {
		t.Errorf("при нехватке данных EMA возвращает последнюю цену, получено %.2f", ema)
	}
}

func TestEMAConstantSeries(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100
	}

	ema := EMA(prices, 50)

	if math.Abs(ema-100) > 1e-9 {
		t.Errorf("EMA постоянной серии равна самой цене, получено %.6f", ema)
	}
}

func TestMACDShortInput(t *testing.T) {
	prices := make([]float64, 25)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	if macd := MACD(prices); macd != 0 {
		t.Errorf("менее 26 точек дают нейтральный MACD 0, получено %.2f", macd)
	}
}

func TestMACDUptrend(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i)*2
	}

	if macd := MACD(prices); macd <= 0 {
		t.Errorf("на устойчивом росте MACD положителен, получено %.2f", macd)
	}
}

func TestATRShortInput(t *testing.T) {
	highs := []float64{101, 102}
	lows := []float64{99, 100}
	closes := []float64{100, 101}

	if atr := ATR(highs, lows, closes, 14); atr != 0 {
		t.Errorf("при нехватке данных ATR равен 0, получено %.2f", atr)
	}
}

func TestATRConstantRange(t *testing.T) {
	n := 20
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 102
		lows[i] = 98
		closes[i] = 100
	}

	atr := ATR(highs, lows, closes, 14)

	if math.Abs(atr-4) > 1e-9 {
		t.Errorf("при диапазоне 4 ожидается ATR 4, получено %.4f", atr)
	}
}

func TestADXShortInput(t *testing.T) {
	if adx := ADX([]float64{101}, []float64{99}, []float64{100}, 14); adx != 0 {
		t.Errorf("при нехватке данных ADX равен 0, получено %.2f", adx)
	}
}

func TestADXStrongTrend(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 100 + float64(i)*2
		lows[i] = 98 + float64(i)*2
		closes[i] = 99 + float64(i)*2
	}

	adx := ADX(highs, lows, closes, 14)

	if adx < 90 {
		t.Errorf("чистый однонаправленный тренд дает ADX около 100, получено %.2f", adx)
	}
}

func TestCrossoverBullish(t *testing.T) {
	prices := make([]float64, 250)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}

	cross := Crossover(prices)

	if cross.Signal != "BULLISH" {
		t.Errorf("на устойчивом росте EMA50 выше EMA200, получено %s", cross.Signal)
	}
	if cross.Strength <= 0 {
		t.Errorf("сила пересечения должна быть положительной, получено %.4f", cross.Strength)
	}
}

func TestDetectDivergenceInsufficientData(t *testing.T) {
	prices := []float64{100, 99, 98}
	rsi := []float64{40, 38, 36}

	div := DetectDivergence(prices, rsi)

	if div.Type != "NONE" {
		t.Errorf("без 20 точек дивергенция не ищется, получено %s", div.Type)
	}
}

func TestDetectDivergenceBullish(t *testing.T) {
	// Цена обновляет минимум, RSI заметно выше минимума окна
	prices := make([]float64, 20)
	rsi := make([]float64, 20)
	for i := 0; i < 20; i++ {
		prices[i] = 100
		rsi[i] = 50
	}
	prices[10] = 95 // минимум окна
	rsi[10] = 25
	prices[19] = 94 // текущая цена ниже минимума
	rsi[19] = 40    // RSI существенно выше

	div := DetectDivergence(prices, rsi)

	if div.Type != "BULLISH" {
		t.Fatalf("ожидалась бычья дивергенция, получено %s", div.Type)
	}
	if div.Confidence <= 0 || div.Confidence > 90 {
		t.Errorf("уверенность дивергенции в (0, 90], получено %.2f", div.Confidence)
	}
}

func TestBollingerBandsShortInput(t *testing.T) {
	prices := []float64{100, 101, 102}

	upper, middle, lower := BollingerBands(prices, 20, 2.0)

	if upper != 102 || middle != 102 || lower != 102 {
		t.Errorf("при нехватке данных полосы вырождаются в последнюю цену: %.2f %.2f %.2f",
			upper, middle, lower)
	}
}

func TestFibonacciLevels(t *testing.T) {
	levels, _ := Fibonacci(200, 100)

	if len(levels) != 7 {
		t.Fatalf("ожидается 7 уровней Фибоначчи, получено %d", len(levels))
	}
	if levels[0].Price != 200 {
		t.Errorf("уровень 0%% равен максимуму, получено %.2f", levels[0].Price)
	}
	if levels[6].Price != 100 {
		t.Errorf("уровень 100%% равен минимуму, получено %.2f", levels[6].Price)
	}
	if math.Abs(levels[3].Price-150) > 1e-9 {
		t.Errorf("уровень 50%% равен середине диапазона, получено %.2f", levels[3].Price)
	}
}

func TestDetectFairValueGapsBullishGap(t *testing.T) {
	candles := []models.Candle{
		{High: 100, Low: 95},
		{High: 103, Low: 99},
		{High: 108, Low: 102}, // Low выше High первой свечи
	}

	gaps, _ := DetectFairValueGaps(candles)

	if len(gaps) != 1 {
		t.Fatalf("ожидается один разрыв, получено %d", len(gaps))
	}
	if gaps[0].Direction != "UP" {
		t.Errorf("ожидается бычий разрыв, получено %s", gaps[0].Direction)
	}
	if gaps[0].Start != 100 || gaps[0].End != 102 {
		t.Errorf("границы разрыва 100-102, получено %.2f-%.2f", gaps[0].Start, gaps[0].End)
	}
}

func TestDetectFairValueGapsKeepsLastFive(t *testing.T) {
	// Серия с разрывом на каждой тройке
	var candles []models.Candle
	for i := 0; i < 30; i++ {
		base := float64(100 + i*10)
		candles = append(candles, models.Candle{High: base + 2, Low: base - 2})
	}

	gaps, _ := DetectFairValueGaps(candles)

	if len(gaps) > 5 {
		t.Errorf("возвращаются не более 5 последних разрывов, получено %d", len(gaps))
	}
}

func TestMultiTimeframeNoData(t *testing.T) {
	result := MultiTimeframeAnalyze(nil, nil, 100)

	if result.TrendBias != "NEUTRAL" || result.EntrySignal != "WAIT" {
		t.Errorf("без данных анализ нейтрален: %s / %s", result.TrendBias, result.EntrySignal)
	}
}

func TestMultiTimeframeBullishBias(t *testing.T) {
	// Часовой тренд: устойчивый рост, EMA50 > EMA200, высокий ADX
	var data1h []models.Candle
	for i := 0; i < 250; i++ {
		price := 100 + float64(i)*2
		data1h = append(data1h, models.Candle{
			High:  price + 1,
			Low:   price - 1,
			Close: price,
		})
	}

	// 15m: откат после роста
	var data15m []models.Candle
	for i := 0; i < 40; i++ {
		data15m = append(data15m, models.Candle{Close: 500 + float64(i)*3})
	}
	for i := 0; i < 14; i++ {
		last := data15m[len(data15m)-1].Close
		data15m = append(data15m, models.Candle{Close: last - 2})
	}

	result := MultiTimeframeAnalyze(data1h, data15m, 600)

	if result.TrendBias != "BULLISH" {
		t.Fatalf("ожидался бычий тренд 1H, получено %s", result.TrendBias)
	}
}
