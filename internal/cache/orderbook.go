package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/logger"
	"github.com/skalibog/isma/pkg/models"
)

// DepthProvider поставляет срезы стакана с биржи
type DepthProvider interface {
	FetchDepth(ctx context.Context, pair models.TradingPair) (*models.OrderBook, error)
}

// Entry хранит сводку стакана вместе с исходным срезом и моментом снятия.
// Запись заменяется целиком при каждом успешном обновлении.
type Entry struct {
	Summary    models.OrderBookSummary
	Snapshot   *models.OrderBook
	CapturedAt time.Time
}

// OrderBookCache кеширует сводки стаканов по парам с окном свежести.
// Конкурентные промахи по одной паре схлопываются в один исходящий запрос,
// промахи по разным парам обрабатываются параллельно группами.
type OrderBookCache struct {
	provider DepthProvider

	freshness    time.Duration
	batchSize    int
	batchPause   time.Duration
	fetchTimeout time.Duration

	mu      sync.RWMutex
	entries map[models.TradingPair]Entry

	group singleflight.Group
}

// NewOrderBookCache создает новый кеш стаканов
func NewOrderBookCache(provider DepthProvider, cfg config.CacheConfig) *OrderBookCache {
	return &OrderBookCache{
		provider:     provider,
		freshness:    cfg.Freshness(),
		batchSize:    cfg.BatchSize,
		batchPause:   cfg.BatchPause(),
		fetchTimeout: cfg.FetchTimeout(),
		entries:      make(map[models.TradingPair]Entry),
	}
}

// Get возвращает сводки стаканов для запрошенных пар. Свежие записи
// отдаются из кеша без блокировок на загрузку, устаревшие и отсутствующие
// обновляются с биржи. При истечении дедлайна вызывающего возвращается
// лучшее из доступного: устаревшая запись либо пустая сводка.
func (c *OrderBookCache) Get(ctx context.Context, pairs []models.TradingPair) map[models.TradingPair]models.OrderBookSummary {
	result := make(map[models.TradingPair]models.OrderBookSummary, len(pairs))

	now := time.Now()
	var misses []models.TradingPair
	c.mu.RLock()
	for _, pair := range pairs {
		if entry, ok := c.entries[pair]; ok && now.Sub(entry.CapturedAt) < c.freshness {
			result[pair] = entry.Summary
			continue
		}
		misses = append(misses, pair)
	}
	c.mu.RUnlock()

	if len(misses) == 0 {
		return result
	}

	for pair, summary := range c.refreshAll(ctx, misses) {
		result[pair] = summary
	}
	return result
}

// Warm безусловно обновляет все пары вселенной, игнорируя окно свежести
func (c *OrderBookCache) Warm(ctx context.Context, pairs []models.TradingPair) {
	if len(pairs) == 0 {
		return
	}
	logger.Info("прогрев кеша стаканов", zap.Int("pairs", len(pairs)))
	started := time.Now()
	c.refreshAll(ctx, pairs)
	logger.Info("прогрев кеша завершен",
		zap.Int("pairs", len(pairs)),
		zap.Duration("elapsed", time.Since(started)))
}

// Snapshot возвращает последний сохраненный срез стакана пары.
// Для записей, созданных из пустых сводок после сбоев, среза нет.
func (c *OrderBookCache) Snapshot(pair models.TradingPair) (*models.OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[pair]
	if !ok || entry.Snapshot == nil {
		return nil, false
	}
	return entry.Snapshot, true
}

// CapturedAt возвращает момент снятия записи пары
func (c *OrderBookCache) CapturedAt(pair models.TradingPair) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[pair]
	if !ok {
		return time.Time{}, false
	}
	return entry.CapturedAt, true
}

// refreshAll обновляет пары параллельно группами фиксированного размера
// с паузой между группами, чтобы не упереться в лимит биржи
func (c *OrderBookCache) refreshAll(ctx context.Context, pairs []models.TradingPair) map[models.TradingPair]models.OrderBookSummary {
	out := make(map[models.TradingPair]models.OrderBookSummary, len(pairs))
	var outMu sync.Mutex

	size := c.batchSize
	if size <= 0 {
		size = len(pairs)
	}

	for start := 0; start < len(pairs); start += size {
		end := start + size
		if end > len(pairs) {
			end = len(pairs)
		}

		var wg sync.WaitGroup
		for _, pair := range pairs[start:end] {
			wg.Add(1)
			go func(p models.TradingPair) {
				defer wg.Done()
				summary := c.refresh(ctx, p)
				outMu.Lock()
				out[p] = summary
				outMu.Unlock()
			}(pair)
		}
		wg.Wait()

		if end < len(pairs) {
			select {
			case <-time.After(c.batchPause):
			case <-ctx.Done():
				// Дедлайн вызывающего: оставшиеся пары получают
				// лучшее из доступного без похода на биржу
				for _, pair := range pairs[end:] {
					out[pair] = c.bestAvailable(pair)
				}
				return out
			}
		}
	}
	return out
}

// refresh обновляет одну пару, схлопывая конкурентные запросы в один.
// Загрузка выполняется с собственным таймаутом независимо от дедлайна
// вызывающего: ожидающие могут уйти, не отменяя общий запрос.
func (c *OrderBookCache) refresh(ctx context.Context, pair models.TradingPair) models.OrderBookSummary {
	ch := c.group.DoChan(string(pair), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
		defer cancel()
		return c.fetchAndStore(fetchCtx, pair), nil
	})

	select {
	case res := <-ch:
		return res.Val.(models.OrderBookSummary)
	case <-ctx.Done():
		return c.bestAvailable(pair)
	}
}

// fetchAndStore загружает стакан и сохраняет запись. При сбое загрузки
// вызывающему отдается пустая сводка, а прежняя запись пары не затирается:
// устаревшие данные лучше обнуленных. Если записи не было, пустая сводка
// кешируется и подавляет повторные походы на биржу до истечения свежести.
func (c *OrderBookCache) fetchAndStore(ctx context.Context, pair models.TradingPair) models.OrderBookSummary {
	book, err := c.provider.FetchDepth(ctx, pair)
	if err != nil {
		logger.Warn("не удалось обновить стакан",
			zap.String("pair", string(pair)),
			zap.Error(err))

		empty := models.OrderBookSummary{Pair: pair}
		c.mu.Lock()
		if _, ok := c.entries[pair]; !ok {
			c.entries[pair] = Entry{Summary: empty, CapturedAt: time.Now()}
		}
		c.mu.Unlock()
		return empty
	}

	summary := Summarize(book)
	c.mu.Lock()
	c.entries[pair] = Entry{Summary: summary, Snapshot: book, CapturedAt: time.Now()}
	c.mu.Unlock()
	return summary
}

// bestAvailable возвращает кешированную сводку пары в любом возрасте
// либо пустую сводку, если записи нет
func (c *OrderBookCache) bestAvailable(pair models.TradingPair) models.OrderBookSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.entries[pair]; ok {
		return entry.Summary
	}
	return models.OrderBookSummary{Pair: pair}
}

// Summarize сводит срез стакана к агрегатам по обеим сторонам
func Summarize(book *models.OrderBook) models.OrderBookSummary {
	if book == nil {
		return models.OrderBookSummary{}
	}

	summary := models.OrderBookSummary{
		Pair:            book.Pair,
		TotalBuyOrders:  len(book.Bids),
		TotalSellOrders: len(book.Asks),
	}

	for _, level := range book.Bids {
		summary.TotalBuyAmount += level.Amount
		summary.TotalBuyValue += level.Value()
	}
	for _, level := range book.Asks {
		summary.TotalSellAmount += level.Amount
		summary.TotalSellValue += level.Value()
	}

	if len(book.Bids) > 0 {
		summary.HighestBid = book.Bids[0].Price
	}
	if len(book.Asks) > 0 {
		summary.LowestAsk = book.Asks[0].Price
	}

	if summary.HighestBid > 0 && summary.LowestAsk > 0 {
		summary.Spread = summary.LowestAsk - summary.HighestBid
	}
	if summary.HighestBid > 0 {
		summary.SpreadPercent = summary.Spread / summary.HighestBid * 100
	}
	if summary.TotalSellValue > 0 {
		summary.BuySellRatio = summary.TotalBuyValue / summary.TotalSellValue
	}
	return summary
}
