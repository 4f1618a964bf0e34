package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/isma/pkg/logger"
	"github.com/skalibog/isma/pkg/models"
)

// PairProvider открывает список торгуемых пар биржи
type PairProvider interface {
	FetchPairs(ctx context.Context) ([]models.PairInfo, error)
}

// Warmer прогревает кеш стаканов по списку пар
type Warmer interface {
	Warm(ctx context.Context, pairs []models.TradingPair)
}

// RefreshScheduler периодически прогревает кеш стаканов по всей вселенной
// пар независимо от клиентского трафика. Первый прогрев выполняется через
// один интервал после старта.
type RefreshScheduler struct {
	client   PairProvider
	books    Warmer
	pairs    []models.TradingPair
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRefreshScheduler создает новый планировщик прогрева. При пустом списке
// пар вселенная открывается через биржу перед каждым прогревом.
func NewRefreshScheduler(client PairProvider, books Warmer, pairs []models.TradingPair, interval time.Duration) *RefreshScheduler {
	return &RefreshScheduler{
		client:   client,
		books:    books,
		pairs:    pairs,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start запускает цикл прогрева и блокируется до отмены контекста или Stop
func (s *RefreshScheduler) Start(ctx context.Context) error {
	logger.Info("планировщик прогрева запущен",
		zap.Duration("interval", s.interval),
		zap.Int("pairs", len(s.pairs)))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.warm(ctx)
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		}
	}
}

// Stop останавливает цикл прогрева
func (s *RefreshScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// warm прогревает кеш по текущей вселенной пар
func (s *RefreshScheduler) warm(ctx context.Context) {
	pairs := s.pairs
	if len(pairs) == 0 {
		discovered, err := s.universe(ctx)
		if err != nil {
			logger.Warn("не удалось открыть вселенную пар, прогрев пропущен", zap.Error(err))
			return
		}
		pairs = discovered
	}

	s.books.Warm(ctx, pairs)
}

// universe запрашивает у биржи список всех торгуемых пар
func (s *RefreshScheduler) universe(ctx context.Context) ([]models.TradingPair, error) {
	infos, err := s.client.FetchPairs(ctx)
	if err != nil {
		return nil, err
	}

	pairs := make([]models.TradingPair, 0, len(infos))
	for _, info := range infos {
		pairs = append(pairs, info.ID)
	}
	return pairs, nil
}
