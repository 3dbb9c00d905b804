package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/skalibog/bfde/internal/config"
	"github.com/skalibog/bfde/pkg/models"
)

func calmCandles(n int) []models.Candle {
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{
			Open:  100,
			High:  100.5,
			Low:   99.5,
			Close: 100,
		}
	}
	return candles
}

func TestAssessRiskCalmMarket(t *testing.T) {
	m := NewManager(config.Default().Risk)

	state := m.AssessRisk(100, calmCandles(30), 10000, nil)

	if !state.AllowTrading {
		t.Fatalf("спокойный рынок без убытков разрешает торговлю: %v", state.WarningMessages)
	}
	if state.VolatilityLevel != "LOW" {
		t.Errorf("постоянная цена дает LOW волатильность, получено %s", state.VolatilityLevel)
	}
	if state.DailyPnL != 0 {
		t.Errorf("портфель равен базе, PnL 0, получено %.2f", state.DailyPnL)
	}
}

func TestAssessRiskDrawdownStopsTrading(t *testing.T) {
	m := NewManager(config.Default().Risk)

	// Просадка 3% при лимите 2%
	state := m.AssessRisk(100, calmCandles(30), 9700, nil)

	if state.AllowTrading {
		t.Fatal("просадка выше лимита должна останавливать торговлю")
	}
	if state.CurrentDrawdown >= 0 {
		t.Errorf("просадка отрицательна, получено %.2f", state.CurrentDrawdown)
	}
	if len(state.WarningMessages) == 0 {
		t.Error("остановка должна сопровождаться предупреждением")
	}
}

func TestAssessRiskConsecutiveLosses(t *testing.T) {
	m := NewManager(config.Default().Risk)

	trades := []models.Trade{
		{PnL: 50},
		{PnL: -10},
		{PnL: -20},
		{PnL: -5},
	}

	state := m.AssessRisk(100, calmCandles(30), 10000, trades)

	if state.ConsecutiveLosses != 3 {
		t.Errorf("серия убытков считается с конца: 3, получено %d", state.ConsecutiveLosses)
	}
	// Три убытка — предупреждение, но еще не остановка
	if !state.AllowTrading {
		t.Error("ровно на лимите торговля еще разрешена")
	}

	trades = append(trades, models.Trade{PnL: -7})
	state = m.AssessRisk(100, calmCandles(30), 10000, trades)

	if state.AllowTrading {
		t.Error("серия сверх лимита останавливает торговлю")
	}
}

func TestAssessRiskProfitBreaksLossStreak(t *testing.T) {
	m := NewManager(config.Default().Risk)

	trades := []models.Trade{
		{PnL: -10},
		{PnL: -20},
		{PnL: -5},
		{PnL: 30}, // прибыль обнуляет серию
	}

	state := m.AssessRisk(100, calmCandles(30), 10000, trades)

	if state.ConsecutiveLosses != 0 {
		t.Errorf("прибыльная сделка в конце обнуляет серию, получено %d", state.ConsecutiveLosses)
	}
}

func TestAssessVolatilityExtreme(t *testing.T) {
	m := NewManager(config.Default().Risk)

	// Скачки по 10% за свечу
	candles := make([]models.Candle, 30)
	price := 100.0
	for i := range candles {
		if i%2 == 0 {
			price *= 1.10
		} else {
			price *= 0.90
		}
		candles[i] = models.Candle{Close: price}
	}

	state := m.AssessRisk(price, candles, 10000, nil)

	if state.VolatilityLevel != "EXTREME" {
		t.Fatalf("скачки 10%% дают EXTREME, получено %s", state.VolatilityLevel)
	}
	if state.AllowTrading {
		t.Error("экстремальная волатильность останавливает торговлю")
	}
	if state.RiskLevel != "CONSERVATIVE" {
		t.Errorf("при EXTREME уровень риска CONSERVATIVE, получено %s", state.RiskLevel)
	}
}

func TestNewsFilterBlocksHighImpact(t *testing.T) {
	m := NewManager(config.Default().Risk)

	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	m.SetUpcomingNews([]models.NewsEvent{
		{
			Timestamp: fixed.Add(15 * time.Minute),
			Title:     "Заседание FOMC",
			Impact:    "HIGH",
			Category:  "FOMC",
		},
	})

	state := m.AssessRisk(100, calmCandles(30), 10000, nil)

	if state.AllowTrading {
		t.Fatal("важная новость в 30-минутном окне останавливает торговлю")
	}
}

func TestNewsFilterIgnoresDistantAndLowImpact(t *testing.T) {
	m := NewManager(config.Default().Risk)

	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	m.SetUpcomingNews([]models.NewsEvent{
		{Timestamp: fixed.Add(2 * time.Hour), Title: "Далекая новость", Impact: "HIGH"},
		{Timestamp: fixed.Add(10 * time.Minute), Title: "Мелкая новость", Impact: "LOW"},
	})

	state := m.AssessRisk(100, calmCandles(30), 10000, nil)

	if !state.AllowTrading {
		t.Errorf("далекие и слабые новости не останавливают торговлю: %v", state.WarningMessages)
	}
}

func TestEmergencyStopIsSticky(t *testing.T) {
	m := NewManager(config.Default().Risk)

	// Убыток 6% при аварийном лимите 5%
	state := m.AssessRisk(100, calmCandles(30), 9400, nil)

	if !state.IsEmergencyStop {
		t.Fatal("убыток выше аварийного лимита включает аварийный стоп")
	}

	// Портфель восстановился, но стоп липкий
	state = m.AssessRisk(100, calmCandles(30), 10000, nil)

	if !state.IsEmergencyStop {
		t.Error("аварийный стоп не снимается сам по себе")
	}

	m.ResetEmergencyStop()
	state = m.State()

	if state.IsEmergencyStop || !state.AllowTrading {
		t.Error("после сброса аварийного стопа торговля разрешена")
	}
}

func TestManualStopAndResume(t *testing.T) {
	m := NewManager(config.Default().Risk)

	m.ManualStop("обслуживание")

	if state := m.State(); state.AllowTrading {
		t.Fatal("ручная остановка снимает разрешение на торговлю")
	}

	m.ManualResume()

	state := m.State()
	if !state.AllowTrading {
		t.Error("возобновление возвращает разрешение")
	}
	for _, msg := range state.WarningMessages {
		if strings.Contains(msg, manualStopTag) {
			t.Errorf("предупреждение ручной остановки должно быть удалено: %s", msg)
		}
	}
}

func TestCalculatePositionSizeConservative(t *testing.T) {
	m := NewManager(config.Default().Risk)

	// Загоняем менеджер в осторожный режим через просадку
	m.AssessRisk(100, calmCandles(30), 9700, nil)

	size := m.CalculatePositionSize(10, 90, "LOW")

	// MODERATE или CONSERVATIVE: базовый размер уменьшен
	if size >= 10 {
		t.Errorf("после просадки размер позиции уменьшается, получено %.2f", size)
	}
}

func TestCalculatePositionSizeFloor(t *testing.T) {
	m := NewManager(config.Default().Risk)

	size := m.CalculatePositionSize(1, 50, "EXTREME")

	if size != 1 {
		t.Errorf("размер позиции не опускается ниже 1%%, получено %.2f", size)
	}
}

func TestSnapshotIsolatedFromInternalState(t *testing.T) {
	m := NewManager(config.Default().Risk)
	m.ManualStop("тест")

	state := m.State()
	if len(state.WarningMessages) == 0 {
		t.Fatal("ожидалось предупреждение")
	}
	state.WarningMessages[0] = "подмена"

	if fresh := m.State(); fresh.WarningMessages[0] == "подмена" {
		t.Error("снимок должен копировать предупреждения, а не делить срез")
	}
}
