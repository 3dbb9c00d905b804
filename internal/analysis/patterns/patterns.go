package patterns

import (
	"fmt"
	"math"
	"sort"

	"github.com/skalibog/bfde/pkg/models"
)

// Пакет patterns распознает графические структуры по серии свечей.
// Детекторы работают только с сырыми массивами цен и не зависят
// от библиотеки индикаторов.

type extremum struct {
	index int
	price float64
}

// FindSupportResistance ищет уровни поддержки и сопротивления.
// Уровень засчитывается, если его коснулись минимум два закрытия
// в пределах threshold относительного расстояния.
func FindSupportResistance(candles []models.Candle, threshold float64) []models.ChartPattern {
	var found []models.ChartPattern
	prices := closes(candles)

	for i := 2; i < len(prices)-2; i++ {
		current := prices[i]

		// Поддержка: локальный минимум в окне из пяти точек
		if current < prices[i-1] && current < prices[i+1] &&
			current < prices[i-2] && current < prices[i+2] {
			touches := countTouches(prices, current, threshold)
			if touches >= 2 {
				found = append(found, models.ChartPattern{
					ID:          fmt.Sprintf("support_%d", i),
					Type:        "support",
					Name:        "Уровень поддержки",
					Confidence:  math.Min(float64(touches)*20, 90),
					StartIndex:  i - 10,
					EndIndex:    i + 10,
					Prices:      []float64{current},
					Signal:      "BUY",
					Strength:    touches,
					Description: fmt.Sprintf("Сильная поддержка на %.0f (касаний: %d)", current, touches),
				})
			}
		}

		// Сопротивление: локальный максимум в окне из пяти точек
		if current > prices[i-1] && current > prices[i+1] &&
			current > prices[i-2] && current > prices[i+2] {
			touches := countTouches(prices, current, threshold)
			if touches >= 2 {
				found = append(found, models.ChartPattern{
					ID:          fmt.Sprintf("resistance_%d", i),
					Type:        "resistance",
					Name:        "Уровень сопротивления",
					Confidence:  math.Min(float64(touches)*20, 90),
					StartIndex:  i - 10,
					EndIndex:    i + 10,
					Prices:      []float64{current},
					Signal:      "SELL",
					Strength:    touches,
					Description: fmt.Sprintf("Сильное сопротивление на %.0f (касаний: %d)", current, touches),
				})
			}
		}
	}

	return found
}

// FindHeadAndShoulders ищет структуру "голова и плечи".
// Голова должна превышать оба плеча более чем на 2%.
func FindHeadAndShoulders(candles []models.Candle) []models.ChartPattern {
	var found []models.ChartPattern
	prices := closes(candles)

	for i := 20; i < len(prices)-20; i++ {
		leftShoulder, okL := findLocalMax(prices, i-15, i-5)
		head, okH := findLocalMax(prices, i-5, i+5)
		rightShoulder, okR := findLocalMax(prices, i+5, i+15)

		if !okL || !okH || !okR {
			continue
		}

		if head.price > leftShoulder.price*1.02 && head.price > rightShoulder.price*1.02 {
			found = append(found, models.ChartPattern{
				ID:          fmt.Sprintf("head_shoulders_%d", i),
				Type:        "head_shoulders",
				Name:        "Голова и плечи",
				Confidence:  75,
				StartIndex:  leftShoulder.index,
				EndIndex:    rightShoulder.index,
				Prices:      []float64{leftShoulder.price, head.price, rightShoulder.price},
				Signal:      "SELL",
				Strength:    3,
				Description: "Обнаружена медвежья структура: голова и плечи",
			})
		}
	}

	return found
}

// FindTriangles ищет треугольники в скользящем окне из 30 баров.
// Плоская сторона: |наклон| < 0.1, трендовая: наклон > 0.1.
func FindTriangles(candles []models.Candle) []models.ChartPattern {
	var found []models.ChartPattern
	prices := closes(candles)

	for i := 30; i < len(prices)-10; i++ {
		window := prices[i-30 : i]
		highs := findLocalMaxima(window)
		lows := findLocalMinima(window)

		if len(highs) < 2 || len(lows) < 2 {
			continue
		}

		highSlope := slope(highs)
		lowSlope := slope(lows)

		// Восходящий треугольник: плоские максимумы, растущие минимумы
		if math.Abs(highSlope) < 0.1 && lowSlope > 0.1 {
			found = append(found, models.ChartPattern{
				ID:          fmt.Sprintf("triangle_asc_%d", i),
				Type:        "triangle",
				Name:        "Восходящий треугольник",
				Confidence:  65,
				StartIndex:  i - 30,
				EndIndex:    i,
				Prices:      collectPrices(highs, lows),
				Signal:      "BUY",
				Strength:    2,
				Description: "Бычий восходящий треугольник",
			})
		}

		// Нисходящий треугольник: плоские минимумы, падающие максимумы
		if math.Abs(lowSlope) < 0.1 && highSlope < -0.1 {
			found = append(found, models.ChartPattern{
				ID:          fmt.Sprintf("triangle_desc_%d", i),
				Type:        "triangle",
				Name:        "Нисходящий треугольник",
				Confidence:  65,
				StartIndex:  i - 30,
				EndIndex:    i,
				Prices:      collectPrices(highs, lows),
				Signal:      "SELL",
				Strength:    2,
				Description: "Медвежий нисходящий треугольник",
			})
		}
	}

	return found
}

// AnalyzePatterns запускает все детекторы и возвращает до десяти
// паттернов, отсортированных по убыванию уверенности.
// Требуется минимум 50 свечей.
func AnalyzePatterns(candles []models.Candle) []models.ChartPattern {
	if len(candles) < 50 {
		return nil
	}

	var found []models.ChartPattern
	found = append(found, FindSupportResistance(candles, 0.02)...)
	found = append(found, FindHeadAndShoulders(candles)...)
	found = append(found, FindTriangles(candles)...)

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Confidence > found[j].Confidence
	})

	if len(found) > 10 {
		found = found[:10]
	}
	return found
}

// countTouches считает закрытия в пределах threshold от уровня
func countTouches(prices []float64, level, threshold float64) int {
	if level == 0 {
		return 0
	}
	count := 0
	for _, p := range prices {
		if math.Abs(p-level)/level < threshold {
			count++
		}
	}
	return count
}

func findLocalMax(prices []float64, start, end int) (extremum, bool) {
	maxPrice := math.Inf(-1)
	maxIndex := -1

	for i := start; i <= end && i < len(prices); i++ {
		if i < 0 {
			continue
		}
		if prices[i] > maxPrice {
			maxPrice = prices[i]
			maxIndex = i
		}
	}

	if maxIndex < 0 {
		return extremum{}, false
	}
	return extremum{index: maxIndex, price: maxPrice}, true
}

func findLocalMaxima(prices []float64) []extremum {
	var maxima []extremum
	for i := 1; i < len(prices)-1; i++ {
		if prices[i] > prices[i-1] && prices[i] > prices[i+1] {
			maxima = append(maxima, extremum{index: i, price: prices[i]})
		}
	}
	return maxima
}

func findLocalMinima(prices []float64) []extremum {
	var minima []extremum
	for i := 1; i < len(prices)-1; i++ {
		if prices[i] < prices[i-1] && prices[i] < prices[i+1] {
			minima = append(minima, extremum{index: i, price: prices[i]})
		}
	}
	return minima
}

// slope возвращает наклон прямой через первый и последний экстремум
func slope(points []extremum) float64 {
	first := points[0]
	last := points[len(points)-1]
	if last.index == first.index {
		return 0
	}
	return (last.price - first.price) / float64(last.index-first.index)
}

func closes(candles []models.Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.Close
	}
	return values
}

func collectPrices(highs, lows []extremum) []float64 {
	prices := make([]float64, 0, len(highs)+len(lows))
	for _, h := range highs {
		prices = append(prices, h.price)
	}
	for _, l := range lows {
		prices = append(prices, l.price)
	}
	return prices
}
