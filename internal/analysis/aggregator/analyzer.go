package aggregator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/skalibog/isma/internal/analysis/bandarmology"
	"github.com/skalibog/isma/internal/analysis/recommendation"
	"github.com/skalibog/isma/internal/analysis/technical"
	"github.com/skalibog/isma/internal/cache"
	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/internal/storage"
	"github.com/skalibog/isma/pkg/logger"
	"github.com/skalibog/isma/pkg/models"
)

// MarketDataProvider поставляет рыночные данные для анализа
type MarketDataProvider interface {
	FetchTicker(ctx context.Context, pair models.TradingPair) (*models.Ticker, error)
	FetchCandles(ctx context.Context, pair models.TradingPair, timeframe string, limit int) ([]models.Candle, error)
}

// Analyzer объединяет все аналитические компоненты
type Analyzer struct {
	config           config.AnalysisConfig
	trading          config.TradingConfig
	storage          storage.Storage
	client           MarketDataProvider
	books            *cache.OrderBookCache
	bandarmologyAnal *bandarmology.Analyzer
	technicalAnal    *technical.Analyzer
	engine           *recommendation.Engine
	pairs            []models.TradingPair
}

// NewAnalyzer создает новый анализатор
func NewAnalyzer(cfg config.AnalysisConfig, trading config.TradingConfig, store storage.Storage, client MarketDataProvider, books *cache.OrderBookCache, pairs []models.TradingPair) *Analyzer {
	return &Analyzer{
		config:           cfg,
		trading:          trading,
		storage:          store,
		client:           client,
		books:            books,
		bandarmologyAnal: bandarmology.NewAnalyzer(cfg.Bandarmology),
		technicalAnal:    technical.NewAnalyzer(cfg.Technical),
		engine:           recommendation.NewEngine(cfg.Recommendation),
		pairs:            pairs,
	}
}

// GenerateRecommendations строит рекомендации для всех отслеживаемых пар.
// Сбой одной пары логируется и не валит весь проход.
func (a *Analyzer) GenerateRecommendations(ctx context.Context) map[models.TradingPair]*models.Recommendation {
	results := make(map[models.TradingPair]*models.Recommendation)
	var wg sync.WaitGroup
	var mutex sync.Mutex

	for _, pair := range a.pairs {
		wg.Add(1)
		go func(p models.TradingPair) {
			defer wg.Done()

			rec, err := a.analyzePair(ctx, p)
			if err != nil {
				logger.Warn("не удалось построить рекомендацию",
					zap.String("pair", string(p)),
					zap.Error(err))
				return
			}

			mutex.Lock()
			results[p] = rec
			mutex.Unlock()
		}(pair)
	}

	wg.Wait()
	return results
}

// analyzePair строит рекомендацию для одной пары
func (a *Analyzer) analyzePair(ctx context.Context, pair models.TradingPair) (*models.Recommendation, error) {
	// Данные собираются параллельно: стакан через кеш, свечи и тикер с биржи
	var (
		wg         sync.WaitGroup
		candles    []models.Candle
		ticker     *models.Ticker
		summary    models.OrderBookSummary
		candlesErr error
		tickerErr  error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		out := a.books.Get(ctx, []models.TradingPair{pair})
		summary = out[pair]
	}()
	go func() {
		defer wg.Done()
		candles, candlesErr = a.client.FetchCandles(ctx, pair, a.trading.CandleTimeframe, a.trading.CandleLimit)
	}()
	go func() {
		defer wg.Done()
		ticker, tickerErr = a.client.FetchTicker(ctx, pair)
	}()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if candlesErr != nil {
		logger.Warn("история свечей недоступна, технический анализ будет пропущен",
			zap.String("pair", string(pair)),
			zap.Error(candlesErr))
		candles = nil
	}
	if tickerErr != nil {
		logger.Warn("тикер недоступен, рыночный контекст будет неполным",
			zap.String("pair", string(pair)),
			zap.Error(tickerErr))
		ticker = nil
	}

	market := a.marketData(ticker, candles)

	snapshot, _ := a.books.Snapshot(pair)
	bandar := a.bandarmologyAnal.Analyze(snapshot)
	tech := a.technicalAnal.Analyze(pair, candles, market.LastPrice)

	rec := a.engine.Generate(pair, tech, bandar, market)
	logger.Debug("AGGREGATOR: рекомендация построена",
		zap.String("pair", string(pair)),
		zap.String("action", string(rec.Action)),
		zap.Float64("total", rec.TotalScore))

	// Сохраняем артефакты прохода
	if err := a.storage.SaveRecommendation(ctx, rec); err != nil {
		logger.Warn("не удалось сохранить рекомендацию",
			zap.String("pair", string(pair)),
			zap.Error(err))
	}
	if capturedAt, ok := a.books.CapturedAt(pair); ok {
		if err := a.storage.SaveSummary(ctx, &summary, capturedAt); err != nil {
			logger.Warn("не удалось сохранить сводку стакана",
				zap.String("pair", string(pair)),
				zap.Error(err))
		}
	}

	return rec, nil
}

// marketData выводит рыночный контекст из тикера и истории свечей.
// Indodax не отдает суточное изменение цены, поэтому оно считается
// по закрытиям соседних свечей.
func (a *Analyzer) marketData(ticker *models.Ticker, candles []models.Candle) models.MarketData {
	var market models.MarketData

	if ticker != nil {
		market.LastPrice = ticker.Last
	}

	n := len(candles)
	if n == 0 {
		return market
	}

	last := candles[n-1]
	if market.LastPrice == 0 {
		market.LastPrice = last.Close
	}
	market.Volume24h = last.Volume

	if n > 1 {
		prev := candles[n-2].Close
		if prev > 0 {
			market.PriceChange24h = (last.Close - prev) / prev * 100
		}
	}

	var total float64
	for _, candle := range candles {
		total += candle.Volume
	}
	market.AvgVolume = total / float64(n)

	return market
}

// RecommendationHistory возвращает историю рекомендаций по паре
func (a *Analyzer) RecommendationHistory(ctx context.Context, pair models.TradingPair, limit int) ([]*models.Recommendation, error) {
	return a.storage.RecommendationHistory(ctx, pair, limit)
}
