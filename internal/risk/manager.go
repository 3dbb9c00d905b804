package risk

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/skalibog/bfde/internal/config"
	"github.com/skalibog/bfde/pkg/logger"
	"github.com/skalibog/bfde/pkg/models"
	"go.uber.org/zap"
)

// Маркер в тексте предупреждения, означающий запрет торговли.
// Финальная проверка AssessRisk снимает разрешение, если маркер
// встречается хотя бы в одном предупреждении.
const stopMarker = "[СТОП]"

// Теги для выборочной очистки предупреждений
const (
	emergencyTag  = "Аварийная остановка"
	manualStopTag = "Ручная остановка"
)

// Manager — машина состояний риск-менеджмента. Единственный
// авторитет по вопросу "можно ли сейчас торговать". Предупреждения
// пересобираются на каждом вызове AssessRisk, а isEmergencyStop и
// allowTrading живут между вызовами до явного сброса.
type Manager struct {
	config config.RiskConfig

	mu    sync.RWMutex
	state models.RiskState
	news  []models.NewsEvent
	now   func() time.Time
}

// NewManager создает риск-менеджер с разрешенной торговлей
func NewManager(cfg config.RiskConfig) *Manager {
	return &Manager{
		config: cfg,
		state: models.RiskState{
			VolatilityLevel: "LOW",
			RiskLevel:       "MODERATE",
			AllowTrading:    true,
		},
		now: time.Now,
	}
}

// SetUpcomingNews задает расписание новостных событий
func (m *Manager) SetUpcomingNews(events []models.NewsEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.news = events
}

// AssessRisk прогоняет все шесть проверок и возвращает снимок
// состояния. Проверки всегда выполняются до конца: частичная
// оценка не должна решать судьбу сделки.
func (m *Manager) AssessRisk(
	currentPrice float64,
	candles []models.Candle,
	portfolioValue float64,
	recentTrades []models.Trade,
) models.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Debug("Риск-менеджер: начало оценки", zap.Float64("portfolio", portfolioValue))

	// Предупреждения не накапливаются между вызовами
	m.state.WarningMessages = nil

	m.checkDailyDrawdown(portfolioValue)
	m.checkConsecutiveLosses(recentTrades)
	m.assessVolatility(candles)
	if m.config.NewsFilterEnabled {
		m.checkNewsEvents()
	}
	m.checkEmergencyConditions(portfolioValue)
	m.updateTradingPermission()

	logger.Debug("Риск-менеджер: оценка завершена",
		zap.Bool("allow_trading", m.state.AllowTrading),
		zap.String("risk_level", m.state.RiskLevel),
		zap.Int("warnings", len(m.state.WarningMessages)))

	return m.snapshotLocked()
}

// checkDailyDrawdown сверяет дневную просадку с лимитом
func (m *Manager) checkDailyDrawdown(portfolioValue float64) {
	if m.config.DailyBaseline == 0 {
		return
	}

	m.state.DailyPnL = (portfolioValue - m.config.DailyBaseline) / m.config.DailyBaseline * 100
	m.state.CurrentDrawdown = math.Min(m.state.DailyPnL, 0)

	if math.Abs(m.state.CurrentDrawdown) >= m.config.MaxDailyDrawdown {
		m.state.WarningMessages = append(m.state.WarningMessages,
			fmt.Sprintf("Лимит дневной просадки: %.2f%% (максимум %.1f%%)",
				math.Abs(m.state.CurrentDrawdown), m.config.MaxDailyDrawdown))

		if m.config.AutoStopOnDrawdown {
			m.state.AllowTrading = false
			m.state.WarningMessages = append(m.state.WarningMessages,
				stopMarker+" Торговля остановлена: достигнут лимит просадки")
		}
	}
}

// checkConsecutiveLosses считает серию убытков с конца истории
func (m *Manager) checkConsecutiveLosses(recentTrades []models.Trade) {
	if len(recentTrades) == 0 {
		return
	}

	losses := 0
	for i := len(recentTrades) - 1; i >= 0; i-- {
		if recentTrades[i].PnL < 0 {
			losses++
		} else {
			break
		}
	}

	m.state.ConsecutiveLosses = losses

	if losses >= m.config.MaxConsecutiveLosses {
		m.state.WarningMessages = append(m.state.WarningMessages,
			fmt.Sprintf("Серия убытков: %d подряд (максимум %d)", losses, m.config.MaxConsecutiveLosses))
		m.state.WarningMessages = append(m.state.WarningMessages,
			"Рекомендация: сменить стратегию или сделать паузу")

		if losses >= m.config.MaxConsecutiveLosses+1 {
			m.state.AllowTrading = false
			m.state.WarningMessages = append(m.state.WarningMessages,
				stopMarker+" Торговля остановлена: слишком много убытков")
		}
	}
}

// assessVolatility классифицирует волатильность по стандартному
// отклонению доходностей последних 20 свечей
func (m *Manager) assessVolatility(candles []models.Candle) {
	if len(candles) < 20 {
		return
	}

	window := candles[len(candles)-20:]
	var sumSquares float64
	count := 0
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Close
		if prev == 0 {
			continue
		}
		ret := (window[i].Close - prev) / prev
		sumSquares += ret * ret
		count++
	}
	if count == 0 {
		return
	}

	volatility := math.Sqrt(sumSquares / float64(count))

	switch {
	case volatility < 0.02:
		m.state.VolatilityLevel = "LOW"
	case volatility < 0.04:
		m.state.VolatilityLevel = "MEDIUM"
	case volatility < 0.08:
		m.state.VolatilityLevel = "HIGH"
		m.state.WarningMessages = append(m.state.WarningMessages,
			"Высокая волатильность: размер позиции снижен")
	default:
		m.state.VolatilityLevel = "EXTREME"
		m.state.AllowTrading = false
		m.state.WarningMessages = append(m.state.WarningMessages,
			stopMarker+" Экстремальная волатильность: торговля слишком рискованна")
	}
}

// checkNewsEvents блокирует торговлю вокруг важных новостей.
// Окно — 30 минут до и после события.
func (m *Manager) checkNewsEvents() {
	now := m.now()
	const newsWindow = 30 * time.Minute

	for _, event := range m.news {
		untilNews := event.Timestamp.Sub(now)
		afterNews := now.Sub(event.Timestamp)

		if untilNews > 0 && untilNews <= newsWindow {
			m.state.WarningMessages = append(m.state.WarningMessages,
				fmt.Sprintf("Новость через %d мин: %s", int(untilNews.Minutes()), event.Title))

			if event.Impact == "HIGH" {
				m.state.AllowTrading = false
				m.state.WarningMessages = append(m.state.WarningMessages,
					stopMarker+" Торговля остановлена: впереди важная новость")
			}
		}

		if afterNews > 0 && afterNews <= newsWindow {
			m.state.WarningMessages = append(m.state.WarningMessages,
				fmt.Sprintf("Новость %d мин назад: %s", int(afterNews.Minutes()), event.Title))

			if event.Impact == "HIGH" {
				m.state.AllowTrading = false
				m.state.WarningMessages = append(m.state.WarningMessages,
					stopMarker+" Торговля остановлена: недавняя важная новость")
			}
		}
	}
}

// checkEmergencyConditions включает липкий аварийный стоп
// при общем убытке от базового капитала
func (m *Manager) checkEmergencyConditions(portfolioValue float64) {
	if m.config.DailyBaseline == 0 {
		return
	}

	totalLoss := (m.config.DailyBaseline - portfolioValue) / m.config.DailyBaseline * 100

	if totalLoss >= m.config.EmergencyStopLoss {
		m.state.IsEmergencyStop = true
		m.state.AllowTrading = false
		m.state.WarningMessages = append(m.state.WarningMessages,
			fmt.Sprintf(stopMarker+" %s: общий убыток %.2f%% (лимит %.1f%%)",
				emergencyTag, totalLoss, m.config.EmergencyStopLoss))
	}
}

// updateTradingPermission — финальный проход: стоп-маркеры
// снимают разрешение, затем выставляется уровень риска
func (m *Manager) updateTradingPermission() {
	for _, msg := range m.state.WarningMessages {
		if strings.Contains(msg, stopMarker) {
			m.state.AllowTrading = false
			break
		}
	}

	switch {
	case m.state.VolatilityLevel == "EXTREME" || m.state.IsEmergencyStop:
		m.state.RiskLevel = "CONSERVATIVE"
	case m.state.VolatilityLevel == "HIGH" || m.state.ConsecutiveLosses >= 2:
		m.state.RiskLevel = "CONSERVATIVE"
	case m.state.DailyPnL > 0 && m.state.ConsecutiveLosses == 0:
		m.state.RiskLevel = "AGGRESSIVE"
	default:
		m.state.RiskLevel = "MODERATE"
	}
}

// CalculatePositionSize масштабирует базовый размер позиции
// по уровню риска, волатильности и уверенности. Минимум 1%.
func (m *Manager) CalculatePositionSize(baseSize, confidence float64, volatility string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	adjusted := baseSize

	switch m.state.RiskLevel {
	case "CONSERVATIVE":
		adjusted *= 0.5
	case "MODERATE":
		adjusted *= 0.8
	case "AGGRESSIVE":
		adjusted *= 1.2
	}

	switch volatility {
	case "HIGH":
		adjusted *= 0.7
	case "EXTREME":
		adjusted *= 0.3
	}

	if confidence < 70 {
		adjusted *= 0.6
	}

	return math.Max(adjusted, 1)
}

// ManualStop принудительно останавливает торговлю
func (m *Manager) ManualStop(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.AllowTrading = false
	m.state.WarningMessages = append(m.state.WarningMessages,
		fmt.Sprintf("%s %s: %s", stopMarker, manualStopTag, reason))

	logger.Warn("Торговля остановлена вручную", zap.String("reason", reason))
}

// ManualResume снимает ручную остановку
func (m *Manager) ManualResume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.AllowTrading = true
	m.state.WarningMessages = filterOut(m.state.WarningMessages, manualStopTag)

	logger.Info("Торговля возобновлена вручную")
}

// ResetEmergencyStop сбрасывает аварийный стоп и возвращает
// разрешение на торговлю
func (m *Manager) ResetEmergencyStop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.IsEmergencyStop = false
	m.state.AllowTrading = true
	m.state.WarningMessages = filterOut(m.state.WarningMessages, emergencyTag)

	logger.Info("Аварийный стоп сброшен")
}

// State возвращает снимок текущего состояния
func (m *Manager) State() models.RiskState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// RiskLevelDescription описывает текущий уровень риска
func (m *Manager) RiskLevelDescription() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.state.RiskLevel {
	case "CONSERVATIVE":
		return "Осторожный режим: позиции уменьшены"
	case "MODERATE":
		return "Стандартный режим: обычные позиции"
	case "AGGRESSIVE":
		return "Агрессивный режим: позиции увеличены"
	default:
		return "Неизвестный режим"
	}
}

func (m *Manager) snapshotLocked() models.RiskState {
	snapshot := m.state
	snapshot.WarningMessages = append([]string(nil), m.state.WarningMessages...)
	return snapshot
}

func filterOut(messages []string, tag string) []string {
	filtered := messages[:0]
	for _, msg := range messages {
		if !strings.Contains(msg, tag) {
			filtered = append(filtered, msg)
		}
	}
	return filtered
}
