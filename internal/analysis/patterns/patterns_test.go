package patterns

import (
	"math"
	"testing"

	"github.com/skalibog/bfde/pkg/models"
)

func candlesFromCloses(closes []float64) []models.Candle {
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{
			Open:  c,
			High:  c + 1,
			Low:   c - 1,
			Close: c,
		}
	}
	return candles
}

func TestFindSupportResistanceDetectsSupport(t *testing.T) {
	// Цена дважды отскакивает от уровня 100
	closes := []float64{
		110, 108, 105, 102, 100, 102, 105, 108,
		106, 104, 101, 100.5, 103, 106, 109,
	}

	patterns := FindSupportResistance(candlesFromCloses(closes), 0.02)

	var support *models.ChartPattern
	for i := range patterns {
		if patterns[i].Type == "support" {
			support = &patterns[i]
			break
		}
	}

	if support == nil {
		t.Fatal("уровень поддержки с двумя касаниями не найден")
	}
	if support.Signal != "BUY" {
		t.Errorf("поддержка дает сигнал BUY, получено %s", support.Signal)
	}
	if support.Strength < 2 {
		t.Errorf("уровень должен иметь минимум два касания, получено %d", support.Strength)
	}
}

func TestFindSupportResistanceConfidenceCap(t *testing.T) {
	// Плоская серия: каждый локальный минимум имеет массу касаний
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i))*0.5
	}

	patterns := FindSupportResistance(candlesFromCloses(closes), 0.02)

	for _, p := range patterns {
		if p.Confidence > 90 {
			t.Errorf("уверенность уровня не превышает 90, получено %.1f", p.Confidence)
		}
	}
}

func TestFindHeadAndShoulders(t *testing.T) {
	// Левое плечо ~110, голова ~120, правое плечо ~110
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	closes[15] = 110 // левое плечо
	closes[30] = 120 // голова
	closes[45] = 110 // правое плечо

	patterns := FindHeadAndShoulders(candlesFromCloses(closes))

	if len(patterns) == 0 {
		t.Fatal("структура голова-плечи не найдена")
	}
	if patterns[0].Signal != "SELL" {
		t.Errorf("голова-плечи — медвежья структура, получено %s", patterns[0].Signal)
	}
	if patterns[0].Confidence != 75 {
		t.Errorf("уверенность структуры 75, получено %.1f", patterns[0].Confidence)
	}
}

func TestFindHeadAndShouldersRejectsFlatHead(t *testing.T) {
	// Голова лишь на 1% выше плеч: порог 2% не пройден
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	closes[15] = 110
	closes[30] = 110.5
	closes[45] = 110

	patterns := FindHeadAndShoulders(candlesFromCloses(closes))

	if len(patterns) != 0 {
		t.Errorf("голова ниже порога 2%% не засчитывается, найдено %d", len(patterns))
	}
}

func TestFindTrianglesAscending(t *testing.T) {
	// Плоские максимумы на 110, растущие минимумы
	closes := make([]float64, 50)
	for i := range closes {
		if i%4 == 0 {
			closes[i] = 110 // максимум
		} else if i%4 == 2 {
			closes[i] = 90 + float64(i)*0.5 // растущий минимум
		} else {
			closes[i] = 100 + float64(i)*0.2
		}
	}

	patterns := FindTriangles(candlesFromCloses(closes))

	var ascending bool
	for _, p := range patterns {
		if p.Name == "Восходящий треугольник" {
			ascending = true
			if p.Signal != "BUY" {
				t.Errorf("восходящий треугольник — бычий, получено %s", p.Signal)
			}
		}
	}

	if !ascending {
		t.Error("восходящий треугольник не найден")
	}
}

func TestAnalyzePatternsRequiresFiftyCandles(t *testing.T) {
	closes := make([]float64, 49)
	for i := range closes {
		closes[i] = 100 + float64(i%7)
	}

	if patterns := AnalyzePatterns(candlesFromCloses(closes)); patterns != nil {
		t.Errorf("менее 50 свечей — анализ не выполняется, найдено %d", len(patterns))
	}
}

func TestAnalyzePatternsSortedAndCapped(t *testing.T) {
	// Зигзаг порождает много уровней поддержки и сопротивления
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)*0.7)*3
	}

	patterns := AnalyzePatterns(candlesFromCloses(closes))

	if len(patterns) > 10 {
		t.Errorf("возвращаются не более 10 паттернов, получено %d", len(patterns))
	}
	for i := 1; i < len(patterns); i++ {
		if patterns[i].Confidence > patterns[i-1].Confidence {
			t.Fatal("паттерны должны быть отсортированы по убыванию уверенности")
		}
	}
}
