package metaai

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/skalibog/bfde/internal/config"
	"github.com/skalibog/bfde/pkg/logger"
	"github.com/skalibog/bfde/pkg/models"
	"go.uber.org/zap"
)

// Manager запускает независимых агентов и сводит их голоса
// в одно мета-решение. Таблица производительности агентов —
// единственное долгоживущее состояние, защищена мьютексом.
type Manager struct {
	config     config.MetaAIConfig
	strategies []Strategy

	mu          sync.RWMutex
	performance map[string]*models.AgentPerformance
}

// NewManager создает ансамбль с четырьмя базовыми агентами
func NewManager(cfg config.MetaAIConfig) *Manager {
	m := &Manager{
		config: cfg,
		strategies: []Strategy{
			&trendFollower{config: cfg},
			&meanReversion{config: cfg},
			&breakoutHunter{config: cfg},
			&neuralScorer{config: cfg},
		},
		performance: make(map[string]*models.AgentPerformance),
	}

	// Стартовая статистика агентов из накопленной истории
	now := time.Now()
	seed := []*models.AgentPerformance{
		{AgentID: "trend_follower", TotalSignals: 45, SuccessfulSignals: 32, WinRate: 71.1, AvgProfit: 2.3, MaxDrawdown: -8.2, CurrentWeight: 0.28, LastUpdate: now},
		{AgentID: "mean_reversion", TotalSignals: 38, SuccessfulSignals: 25, WinRate: 65.8, AvgProfit: 1.8, MaxDrawdown: -6.5, CurrentWeight: 0.24, LastUpdate: now},
		{AgentID: "breakout_hunter", TotalSignals: 22, SuccessfulSignals: 17, WinRate: 77.3, AvgProfit: 3.1, MaxDrawdown: -12.1, CurrentWeight: 0.26, LastUpdate: now},
		{AgentID: "ai_neural", TotalSignals: 31, SuccessfulSignals: 24, WinRate: 77.4, AvgProfit: 2.7, MaxDrawdown: -9.3, CurrentWeight: 0.22, LastUpdate: now},
	}
	for _, p := range seed {
		m.performance[p.AgentID] = p
	}

	return m
}

// GenerateMetaSignal опрашивает всех агентов и сводит голоса.
// Агенты работают параллельно, сбой любого из них гасится
// на границе и превращается в WAIT-голос.
func (m *Manager) GenerateMetaSignal(candles []models.Candle, currentPrice float64) models.MetaSignal {
	logger.Debug("Meta-AI: запуск мультиагентного анализа", zap.Int("agents", len(m.strategies)))

	votes := make([]models.AgentSignal, len(m.strategies))
	var wg sync.WaitGroup

	for i, strategy := range m.strategies {
		wg.Add(1)
		go func(idx int, s Strategy) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Сбой агента, голос заменен на WAIT",
						zap.String("agent", s.ID()), zap.Any("panic", r))
					votes[idx] = newVote(s)
				}
			}()

			vote := s.Evaluate(candles, currentPrice)
			vote.Weight = m.agentWeight(s.ID())
			votes[idx] = vote

			logger.Debug("META-AI: агент проголосовал",
				zap.String("agent", s.ID()),
				zap.String("signal", vote.Signal),
				zap.Float64("confidence", vote.Confidence))
		}(i, strategy)
	}

	wg.Wait()

	decision := m.makeMetaDecision(votes)
	logger.Debug("Мета-сигнал сформирован",
		zap.String("signal", decision.FinalSignal),
		zap.Float64("confidence", decision.OverallConfidence),
		zap.Int("convergence", decision.Convergence))

	return decision
}

// makeMetaDecision агрегирует голоса с учетом весов.
// Корзина выигрывает, только если ее взвешенная сумма превышает
// абсолютный порог, иначе решение — WAIT.
func (m *Manager) makeMetaDecision(votes []models.AgentSignal) models.MetaSignal {
	var longVotes, shortVotes, waitVotes, totalWeight float64

	for _, vote := range votes {
		weighted := (vote.Confidence / 100) * vote.Weight
		totalWeight += vote.Weight

		switch vote.Signal {
		case models.SignalLong:
			longVotes += weighted
		case models.SignalShort:
			shortVotes += weighted
		default:
			waitVotes += weighted
		}
	}

	decision := models.MetaSignal{
		FinalSignal: models.SignalWait,
		AgentVotes:  votes,
	}

	maxVotes := math.Max(longVotes, math.Max(shortVotes, waitVotes))

	switch {
	case maxVotes == longVotes && longVotes > m.config.VoteThreshold:
		decision.FinalSignal = models.SignalLong
		if totalWeight > 0 {
			decision.OverallConfidence = longVotes / totalWeight * 100
		}
		decision.Convergence = countVotes(votes, models.SignalLong)
		decision.Reasoning = append(decision.Reasoning,
			fmt.Sprintf("Консенсус LONG: согласны %d/%d агентов", decision.Convergence, len(votes)))
	case maxVotes == shortVotes && shortVotes > m.config.VoteThreshold:
		decision.FinalSignal = models.SignalShort
		if totalWeight > 0 {
			decision.OverallConfidence = shortVotes / totalWeight * 100
		}
		decision.Convergence = countVotes(votes, models.SignalShort)
		decision.Reasoning = append(decision.Reasoning,
			fmt.Sprintf("Консенсус SHORT: согласны %d/%d агентов", decision.Convergence, len(votes)))
	default:
		decision.Convergence = countVotes(votes, models.SignalWait)
		decision.Reasoning = append(decision.Reasoning, "WAIT: недостаточная согласованность агентов")
	}

	decision.OverallConfidence = math.Min(decision.OverallConfidence, m.config.MaxConfidence)

	// Оценка риска по согласованности и уверенности
	switch {
	case decision.Convergence >= 3 && decision.OverallConfidence > 75:
		decision.RiskAssessment = models.RiskLow
	case decision.Convergence >= 2 && decision.OverallConfidence > 60:
		decision.RiskAssessment = models.RiskMedium
	default:
		decision.RiskAssessment = models.RiskHigh
	}

	// Доминирующая стратегия: максимум произведения уверенности и веса
	dominant := votes[0]
	for _, vote := range votes[1:] {
		if vote.Confidence*vote.Weight > dominant.Confidence*dominant.Weight {
			dominant = vote
		}
	}
	decision.DominantStrategy = dominant.Strategy

	decision.RecommendedAction = recommendedAction(
		decision.FinalSignal, decision.OverallConfidence, decision.Convergence)

	return decision
}

// UpdateAgentPerformance фиксирует исход сделки для агента.
// Вызывается ровно один раз на закрытую сделку, иначе статистика
// задвоится. Вес агента всегда зажат в [0.1, 0.4].
func (m *Manager) UpdateAgentPerformance(agentID string, wasSuccessful bool, profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.performance[agentID]
	if !ok {
		return
	}

	agent.TotalSignals++
	if wasSuccessful {
		agent.SuccessfulSignals++
	}
	agent.WinRate = float64(agent.SuccessfulSignals) / float64(agent.TotalSignals) * 100
	// Упрощенное экспоненциальное сглаживание средней прибыли
	agent.AvgProfit = (agent.AvgProfit + profit) / 2
	agent.LastUpdate = time.Now()

	performanceScore := (agent.WinRate/100)*0.7 + (math.Max(agent.AvgProfit, 0)/5)*0.3
	agent.CurrentWeight = clamp(performanceScore/4, m.config.MinAgentWeight, m.config.MaxAgentWeight)

	logger.Debug("Производительность агента обновлена",
		zap.String("agent", agentID),
		zap.Float64("win_rate", agent.WinRate),
		zap.Float64("weight", agent.CurrentWeight))
}

// Performance возвращает снимок статистики всех агентов
func (m *Manager) Performance() []models.AgentPerformance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make([]models.AgentPerformance, 0, len(m.performance))
	for _, p := range m.performance {
		snapshot = append(snapshot, *p)
	}
	return snapshot
}

// agentWeight возвращает текущий вес агента из таблицы
func (m *Manager) agentWeight(agentID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.performance[agentID]; ok {
		return p.CurrentWeight
	}
	return 0.25
}

func countVotes(votes []models.AgentSignal, signal string) int {
	count := 0
	for _, vote := range votes {
		if vote.Signal == signal {
			count++
		}
	}
	return count
}

func recommendedAction(signal string, confidence float64, convergence int) string {
	if signal == models.SignalWait {
		return "Ждать лучших рыночных условий"
	}

	switch {
	case convergence >= 3 && confidence > 80:
		return fmt.Sprintf("Сильный сигнал %s: рекомендуется исполнение", signal)
	case convergence >= 2 && confidence > 65:
		return fmt.Sprintf("Умеренный сигнал %s: торговать осторожно", signal)
	default:
		return fmt.Sprintf("Слабый сигнал %s: не рекомендуется", signal)
	}
}

func clamp(value, min, max float64) float64 {
	return math.Max(min, math.Min(max, value))
}
