package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/skalibog/bfde/internal/config"
	"github.com/skalibog/bfde/pkg/models"
)

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	// Методы для свечей
	SaveCandles(ctx context.Context, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)

	// Методы для сигналов
	SaveSignal(ctx context.Context, signal *models.TradingSignal) error
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.TradingSignal, error)

	// Методы для мета-решений и статистики агентов
	SaveMetaSignal(ctx context.Context, symbol string, meta *models.MetaSignal) error
	SaveAgentPerformance(ctx context.Context, perf *models.AgentPerformance) error

	Close()
}

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	queryAPI := client.QueryAPI(cfg.Organization)
	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)

	return &InfluxDBStorage{
		client:   client,
		queryAPI: queryAPI,
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.client.Close()
}

// SaveCandles сохраняет пачку свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"symbol":   candle.Symbol,
				"interval": candle.Interval,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.OpenTime,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// GetCandles получает исторические свечи в хронологическом порядке
func (s *InfluxDBStorage) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "candles")
			|> filter(fn: (r) => r.symbol == "%s")
			|> filter(fn: (r) => r.interval == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
			|> sort(columns: ["_time"])
	`, s.bucket, symbol, interval, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса свечей: %w", err)
	}

	var candles []models.Candle
	for result.Next() {
		record := result.Record()

		timestamp := record.Time()
		open, _ := record.ValueByKey("open").(float64)
		high, _ := record.ValueByKey("high").(float64)
		low, _ := record.ValueByKey("low").(float64)
		closePrice, _ := record.ValueByKey("close").(float64)
		volume, _ := record.ValueByKey("volume").(float64)

		candles = append(candles, models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  timestamp,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: timestamp.Add(getIntervalDuration(interval)),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return candles, nil
}

// SaveSignal сохраняет торговый сигнал
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, signal *models.TradingSignal) error {
	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol":    signal.Symbol,
			"direction": signal.Direction,
		},
		map[string]interface{}{
			"id":            signal.ID,
			"confidence":    signal.Confidence,
			"entry_price":   signal.EntryPrice,
			"stop_loss":     signal.StopLoss,
			"take_profit_1": signal.TakeProfit1,
			"take_profit_2": signal.TakeProfit2,
			"take_profit_3": signal.TakeProfit3,
			"max_leverage":  signal.MaxLeverage,
			"risk_reward":   signal.RiskReward,
			"risk_level":    signal.RiskLevel,
			"position_size": signal.PositionSize,
			"reasoning":     strings.Join(signal.Reasoning, "; "),
		},
		signal.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// GetSignalHistory получает историю сигналов
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.TradingSignal, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории сигналов: %w", err)
	}

	var signals []*models.TradingSignal
	for result.Next() {
		record := result.Record()

		id, _ := record.ValueByKey("id").(string)
		direction, _ := record.ValueByKey("direction").(string)
		confidence, _ := record.ValueByKey("confidence").(float64)
		entryPrice, _ := record.ValueByKey("entry_price").(float64)
		stopLoss, _ := record.ValueByKey("stop_loss").(float64)
		tp1, _ := record.ValueByKey("take_profit_1").(float64)
		tp2, _ := record.ValueByKey("take_profit_2").(float64)
		tp3, _ := record.ValueByKey("take_profit_3").(float64)
		maxLeverage, _ := record.ValueByKey("max_leverage").(int64)
		riskReward, _ := record.ValueByKey("risk_reward").(float64)
		riskLevel, _ := record.ValueByKey("risk_level").(string)
		positionSize, _ := record.ValueByKey("position_size").(float64)

		signal := &models.TradingSignal{
			ID:           id,
			Timestamp:    record.Time(),
			Symbol:       symbol,
			Direction:    direction,
			Confidence:   confidence,
			EntryPrice:   entryPrice,
			StopLoss:     stopLoss,
			TakeProfit1:  tp1,
			TakeProfit2:  tp2,
			TakeProfit3:  tp3,
			MaxLeverage:  int(maxLeverage),
			RiskReward:   riskReward,
			RiskLevel:    riskLevel,
			PositionSize: positionSize,
		}

		signals = append(signals, signal)
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return signals, nil
}

// SaveMetaSignal сохраняет решение ансамбля агентов
func (s *InfluxDBStorage) SaveMetaSignal(ctx context.Context, symbol string, meta *models.MetaSignal) error {
	point := influxdb2.NewPoint(
		"meta_signals",
		map[string]string{
			"symbol":       symbol,
			"final_signal": meta.FinalSignal,
		},
		map[string]interface{}{
			"overall_confidence": meta.OverallConfidence,
			"convergence":        meta.Convergence,
			"dominant_strategy":  meta.DominantStrategy,
			"risk_assessment":    meta.RiskAssessment,
			"recommended_action": meta.RecommendedAction,
			"agent_votes":        len(meta.AgentVotes),
		},
		time.Now(),
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// SaveAgentPerformance сохраняет статистику агента
func (s *InfluxDBStorage) SaveAgentPerformance(ctx context.Context, perf *models.AgentPerformance) error {
	point := influxdb2.NewPoint(
		"agent_performance",
		map[string]string{
			"agent_id": perf.AgentID,
		},
		map[string]interface{}{
			"total_signals":      perf.TotalSignals,
			"successful_signals": perf.SuccessfulSignals,
			"win_rate":           perf.WinRate,
			"avg_profit":         perf.AvgProfit,
			"max_drawdown":       perf.MaxDrawdown,
			"current_weight":     perf.CurrentWeight,
		},
		perf.LastUpdate,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// getIntervalDuration конвертирует строковый интервал в duration
func getIntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
