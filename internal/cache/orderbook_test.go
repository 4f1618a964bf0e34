package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/models"
)

// fakeProvider подменяет биржевой клиент в тестах кеша
type fakeProvider struct {
	mu    sync.Mutex
	calls map[models.TradingPair]int
	books map[models.TradingPair]*models.OrderBook
	errs  map[models.TradingPair]error
	delay time.Duration
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		calls: make(map[models.TradingPair]int),
		books: make(map[models.TradingPair]*models.OrderBook),
		errs:  make(map[models.TradingPair]error),
	}
}

func (f *fakeProvider) FetchDepth(ctx context.Context, pair models.TradingPair) (*models.OrderBook, error) {
	f.mu.Lock()
	f.calls[pair]++
	book := f.books[pair]
	err := f.errs[pair]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return book, nil
}

func (f *fakeProvider) callCount(pair models.TradingPair) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pair]
}

func (f *fakeProvider) setBook(pair models.TradingPair, book *models.OrderBook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books[pair] = book
}

func (f *fakeProvider) setError(pair models.TradingPair, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[pair] = err
}

func (f *fakeProvider) setDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func testBook(pair models.TradingPair) *models.OrderBook {
	return &models.OrderBook{
		Pair: pair,
		Bids: []models.OrderBookLevel{
			{Price: 1000, Amount: 2},
			{Price: 990, Amount: 1},
		},
		Asks: []models.OrderBookLevel{
			{Price: 1010, Amount: 1},
			{Price: 1020, Amount: 3},
		},
	}
}

func testConfig() config.CacheConfig {
	return config.CacheConfig{
		FreshnessSeconds:    30,
		BatchSize:           50,
		BatchPauseMs:        5,
		FetchTimeoutSeconds: 1,
	}
}

func TestGetServesFreshEntriesWithoutRefetch(t *testing.T) {
	provider := newFakeProvider()
	provider.setBook("btcidr", testBook("btcidr"))
	c := NewOrderBookCache(provider, testConfig())

	first := c.Get(context.Background(), []models.TradingPair{"btcidr"})
	require.Len(t, first, 1)
	assert.Equal(t, 1, provider.callCount("btcidr"))

	second := c.Get(context.Background(), []models.TradingPair{"btcidr"})
	assert.Equal(t, first["btcidr"], second["btcidr"])
	assert.Equal(t, 1, provider.callCount("btcidr"), "свежая запись не должна перезагружаться")
}

func TestGetCollapsesConcurrentFetches(t *testing.T) {
	provider := newFakeProvider()
	provider.setBook("btcidr", testBook("btcidr"))
	provider.setDelay(50 * time.Millisecond)
	c := NewOrderBookCache(provider, testConfig())

	const callers = 100
	var wg sync.WaitGroup
	results := make([]models.OrderBookSummary, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			out := c.Get(context.Background(), []models.TradingPair{"btcidr"})
			results[idx] = out["btcidr"]
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, provider.callCount("btcidr"), "конкурентные промахи должны схлопнуться в один запрос")
	for _, summary := range results {
		assert.Equal(t, 2, summary.TotalBuyOrders)
		assert.InDelta(t, 1000.0, summary.HighestBid, 1e-9)
	}
}

func TestGetDistinctPairsInParallelBatches(t *testing.T) {
	provider := newFakeProvider()
	pairs := []models.TradingPair{"btcidr", "ethidr", "xrpidr", "dogeidr", "adaidr"}
	for _, pair := range pairs {
		provider.setBook(pair, testBook(pair))
	}

	cfg := testConfig()
	cfg.BatchSize = 2
	cfg.BatchPauseMs = 30
	c := NewOrderBookCache(provider, cfg)

	started := time.Now()
	out := c.Get(context.Background(), pairs)
	elapsed := time.Since(started)

	require.Len(t, out, len(pairs))
	for _, pair := range pairs {
		assert.Equal(t, 1, provider.callCount(pair))
		assert.Equal(t, pair, out[pair].Pair)
	}
	// Три группы по 2+2+1 разделены двумя паузами
	assert.GreaterOrEqual(t, elapsed, 55*time.Millisecond)
}

func TestGetFailureKeepsPreviousEntry(t *testing.T) {
	provider := newFakeProvider()
	provider.setBook("btcidr", testBook("btcidr"))

	cfg := testConfig()
	cfg.FreshnessSeconds = 0 // каждая выдача идет за свежими данными
	c := NewOrderBookCache(provider, cfg)

	good := c.Get(context.Background(), []models.TradingPair{"btcidr"})
	require.Equal(t, 2, good["btcidr"].TotalBuyOrders)

	provider.setError("btcidr", errors.New("биржа недоступна"))
	degraded := c.Get(context.Background(), []models.TradingPair{"btcidr"})

	// Вызывающий получает пустую сводку, но запись в кеше цела
	assert.Equal(t, models.OrderBookSummary{Pair: "btcidr"}, degraded["btcidr"])
	snapshot, ok := c.Snapshot("btcidr")
	require.True(t, ok)
	assert.Len(t, snapshot.Bids, 2)

	provider.setError("btcidr", nil)
	recovered := c.Get(context.Background(), []models.TradingPair{"btcidr"})
	assert.Equal(t, good["btcidr"], recovered["btcidr"])
}

func TestGetCachesEmptySummaryWithoutPriorEntry(t *testing.T) {
	provider := newFakeProvider()
	provider.setError("newidr", errors.New("пара не найдена"))
	c := NewOrderBookCache(provider, testConfig())

	out := c.Get(context.Background(), []models.TradingPair{"newidr"})
	assert.Equal(t, models.OrderBookSummary{Pair: "newidr"}, out["newidr"])
	assert.Equal(t, 1, provider.callCount("newidr"))

	// Пустая запись свежа: повторная выдача не ходит на биржу
	again := c.Get(context.Background(), []models.TradingPair{"newidr"})
	assert.Equal(t, models.OrderBookSummary{Pair: "newidr"}, again["newidr"])
	assert.Equal(t, 1, provider.callCount("newidr"))

	_, ok := c.Snapshot("newidr")
	assert.False(t, ok, "у пустой записи нет среза стакана")

	// Успешное обновление заменяет пустую запись целиком
	provider.setError("newidr", nil)
	provider.setBook("newidr", testBook("newidr"))
	c.Warm(context.Background(), []models.TradingPair{"newidr"})

	replaced := c.Get(context.Background(), []models.TradingPair{"newidr"})
	assert.Equal(t, 2, replaced["newidr"].TotalBuyOrders)
	assert.InDelta(t, 1010.0, replaced["newidr"].LowestAsk, 1e-9)
}

func TestGetHonorsCallerDeadline(t *testing.T) {
	t.Run("без записи возвращается пустая сводка", func(t *testing.T) {
		provider := newFakeProvider()
		provider.setBook("btcidr", testBook("btcidr"))
		provider.setDelay(500 * time.Millisecond)
		c := NewOrderBookCache(provider, testConfig())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		started := time.Now()
		out := c.Get(ctx, []models.TradingPair{"btcidr"})
		assert.Less(t, time.Since(started), 400*time.Millisecond)
		assert.Equal(t, models.OrderBookSummary{Pair: "btcidr"}, out["btcidr"])
	})

	t.Run("устаревшая запись отдается как запасной вариант", func(t *testing.T) {
		provider := newFakeProvider()
		provider.setBook("btcidr", testBook("btcidr"))

		cfg := testConfig()
		cfg.FreshnessSeconds = 0
		c := NewOrderBookCache(provider, cfg)

		seeded := c.Get(context.Background(), []models.TradingPair{"btcidr"})
		require.Equal(t, 2, seeded["btcidr"].TotalBuyOrders)

		provider.setDelay(500 * time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		out := c.Get(ctx, []models.TradingPair{"btcidr"})
		assert.Equal(t, seeded["btcidr"], out["btcidr"])
	})

	t.Run("остаток групп не загружается после дедлайна", func(t *testing.T) {
		provider := newFakeProvider()
		pairs := []models.TradingPair{"btcidr", "ethidr", "xrpidr"}
		for _, pair := range pairs {
			provider.setBook(pair, testBook(pair))
		}

		cfg := testConfig()
		cfg.BatchSize = 1
		cfg.BatchPauseMs = 80
		c := NewOrderBookCache(provider, cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
		defer cancel()

		out := c.Get(ctx, pairs)
		require.Len(t, out, len(pairs))
		assert.Equal(t, 2, out["btcidr"].TotalBuyOrders)
		assert.Equal(t, 0, provider.callCount("xrpidr"))
		assert.Equal(t, models.OrderBookSummary{Pair: "xrpidr"}, out["xrpidr"])
	})
}

func TestWarmRefreshesUnconditionally(t *testing.T) {
	provider := newFakeProvider()
	provider.setBook("btcidr", testBook("btcidr"))
	c := NewOrderBookCache(provider, testConfig())

	c.Warm(context.Background(), []models.TradingPair{"btcidr"})
	first, ok := c.CapturedAt("btcidr")
	require.True(t, ok)

	c.Warm(context.Background(), []models.TradingPair{"btcidr"})
	second, ok := c.CapturedAt("btcidr")
	require.True(t, ok)

	assert.Equal(t, 2, provider.callCount("btcidr"), "прогрев игнорирует окно свежести")
	assert.True(t, second.After(first), "момент снятия строго растет")
}

func TestSummarize(t *testing.T) {
	t.Run("обе стороны", func(t *testing.T) {
		summary := Summarize(testBook("btcidr"))

		assert.Equal(t, models.TradingPair("btcidr"), summary.Pair)
		assert.Equal(t, 2, summary.TotalBuyOrders)
		assert.Equal(t, 2, summary.TotalSellOrders)
		assert.InDelta(t, 3.0, summary.TotalBuyAmount, 1e-9)
		assert.InDelta(t, 4.0, summary.TotalSellAmount, 1e-9)
		assert.InDelta(t, 2990.0, summary.TotalBuyValue, 1e-9)
		assert.InDelta(t, 4070.0, summary.TotalSellValue, 1e-9)
		assert.InDelta(t, 1000.0, summary.HighestBid, 1e-9)
		assert.InDelta(t, 1010.0, summary.LowestAsk, 1e-9)
		assert.InDelta(t, 10.0, summary.Spread, 1e-9)
		assert.InDelta(t, 1.0, summary.SpreadPercent, 1e-9)
		assert.InDelta(t, 2990.0/4070.0, summary.BuySellRatio, 1e-9)
	})

	t.Run("одна сторона", func(t *testing.T) {
		book := &models.OrderBook{
			Pair: "btcidr",
			Bids: []models.OrderBookLevel{{Price: 1000, Amount: 2}},
		}
		summary := Summarize(book)

		assert.InDelta(t, 1000.0, summary.HighestBid, 1e-9)
		assert.Zero(t, summary.LowestAsk)
		assert.Zero(t, summary.Spread)
		assert.Zero(t, summary.SpreadPercent)
		assert.Zero(t, summary.BuySellRatio, "без продавцов отношение объемов нулевое")
	})

	t.Run("пустой стакан", func(t *testing.T) {
		summary := Summarize(&models.OrderBook{Pair: "btcidr"})
		assert.Equal(t, models.OrderBookSummary{Pair: "btcidr"}, summary)

		assert.Equal(t, models.OrderBookSummary{}, Summarize(nil))
	})
}
