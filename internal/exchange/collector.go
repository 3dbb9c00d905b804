package exchange

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/skalibog/bfde/pkg/logger"
	"github.com/skalibog/bfde/pkg/models"
)

// CandleSink принимает собранные свечи на хранение
type CandleSink interface {
	SaveCandles(ctx context.Context, candles []models.Candle) error
}

// CandleCollector периодически собирает свечи с биржи и
// складывает их в хранилище. Ошибки биржи не останавливают
// сбор: повтор идет с экспоненциальной задержкой.
type CandleCollector struct {
	client    MarketData
	sink      CandleSink
	symbols   []string
	intervals []string
	limit     int
	period    time.Duration
}

// NewCandleCollector создает сборщик свечей
func NewCandleCollector(client MarketData, sink CandleSink, symbols, intervals []string, limit int, period time.Duration) *CandleCollector {
	return &CandleCollector{
		client:    client,
		sink:      sink,
		symbols:   symbols,
		intervals: intervals,
		limit:     limit,
		period:    period,
	}
}

// Run запускает цикл сбора до отмены контекста
func (c *CandleCollector) Run(ctx context.Context) {
	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    time.Minute,
		Factor: 2,
		Jitter: true,
	}

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	c.collect(ctx, retry)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Сборщик свечей остановлен")
			return
		case <-ticker.C:
			c.collect(ctx, retry)
		}
	}
}

func (c *CandleCollector) collect(ctx context.Context, retry *backoff.Backoff) {
	for _, symbol := range c.symbols {
		for _, interval := range c.intervals {
			if err := c.collectOne(ctx, symbol, interval); err != nil {
				wait := retry.Duration()
				logger.Warn("Ошибка сбора свечей, повтор после паузы",
					zap.String("symbol", symbol),
					zap.String("interval", interval),
					zap.Duration("wait", wait),
					zap.Error(err))
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
				continue
			}
			retry.Reset()
		}
	}
}

func (c *CandleCollector) collectOne(ctx context.Context, symbol, interval string) error {
	candles, err := c.client.GetKlines(ctx, symbol, interval, c.limit)
	if err != nil {
		return err
	}

	if err := c.sink.SaveCandles(ctx, candles); err != nil {
		return err
	}

	logger.Debug("Свечи сохранены",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("count", len(candles)))
	return nil
}
