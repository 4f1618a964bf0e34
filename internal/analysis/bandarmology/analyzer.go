package bandarmology

import (
	"math"
	"sort"

	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/models"
)

// Границы оценки анализа потока заявок
const (
	minScore  = 0.0
	baseScore = 20.0
	maxScore  = 40.0
)

// Analyzer реализует анализ потока заявок (бандармологию) по снимку стакана
type Analyzer struct {
	config config.BandarmologyConfig
}

// NewAnalyzer создает новый анализатор потока заявок
func NewAnalyzer(cfg config.BandarmologyConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

// Analyze анализирует снимок стакана и возвращает оценку 0-40.
// Чистая функция: не выполняет сетевых вызовов и не изменяет снимок.
// Пустая сторона стакана дает результат InsufficientData с нейтральной оценкой.
func (a *Analyzer) Analyze(book *models.OrderBook) *models.BandarmologyAnalysis {
	if book == nil || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return insufficient(book)
	}

	// Биды по убыванию цены, аски по возрастанию: срезы верхних
	// уровней имеют смысл только в этом порядке
	bids := sortedLevels(book.Bids, true)
	asks := sortedLevels(book.Asks, false)

	imbalance := a.calculateImbalance(bids, asks)
	walls := a.detectWalls(bids, asks)
	whale := a.detectWhaleActivity(bids, asks)
	spread := a.analyzeSpread(bids, asks)

	return &models.BandarmologyAnalysis{
		Pair:      book.Pair,
		Imbalance: imbalance,
		Walls:     walls,
		Whale:     whale,
		Spread:    spread,
		Score:     a.calculateScore(imbalance, walls, whale, spread),
	}
}

// calculateImbalance рассчитывает дисбаланс объемов верхних уровней
func (a *Analyzer) calculateImbalance(bids, asks []models.OrderBookLevel) models.ImbalanceMetrics {
	buyVolume := sumAmounts(top(bids, a.config.ImbalanceDepth))
	sellVolume := sumAmounts(top(asks, a.config.ImbalanceDepth))

	// При нулевых объемах дисбаланс нейтрален
	ratio := 0.5
	if total := buyVolume + sellVolume; total > 0 {
		ratio = buyVolume / total
	}

	return models.ImbalanceMetrics{
		BuyVolume:  buyVolume,
		SellVolume: sellVolume,
		Ratio:      ratio,
		Pressure:   pressureFor(ratio),
	}
}

// pressureFor переводит долю покупок в направление давления.
// Пороги проверяются в фиксированном порядке, диапазоны не пересекаются.
func pressureFor(ratio float64) models.Pressure {
	switch {
	case ratio > 0.6:
		return models.PressureStrongBuy
	case ratio > 0.55:
		return models.PressureBuy
	case ratio < 0.4:
		return models.PressureStrongSell
	case ratio < 0.45:
		return models.PressureSell
	default:
		return models.PressureNeutral
	}
}

// detectWalls находит стены заявок: уровни с объемом больше
// WallMultiplier средних по стороне
func (a *Analyzer) detectWalls(bids, asks []models.OrderBookLevel) models.WallDetection {
	buyAvg := averageAmount(top(bids, a.config.WallDepth))
	sellAvg := averageAmount(top(asks, a.config.WallDepth))

	buyWalls := a.findWalls(top(bids, a.config.ImbalanceDepth), buyAvg)
	sellWalls := a.findWalls(top(asks, a.config.ImbalanceDepth), sellAvg)

	return models.WallDetection{
		BuyWalls:    buyWalls,
		SellWalls:   sellWalls,
		HasBuyWall:  len(buyWalls) > 0,
		HasSellWall: len(sellWalls) > 0,
	}
}

// findWalls отбирает не более WallKeep крупнейших стен среди уровней
func (a *Analyzer) findWalls(levels []models.OrderBookLevel, avg float64) []models.OrderBookLevel {
	if avg <= 0 {
		return nil
	}

	var walls []models.OrderBookLevel
	for _, level := range levels {
		if level.Amount > avg*a.config.WallMultiplier {
			walls = append(walls, level)
		}
	}

	sort.Slice(walls, func(i, j int) bool {
		return walls[i].Amount > walls[j].Amount
	})
	if len(walls) > a.config.WallKeep {
		walls = walls[:a.config.WallKeep]
	}
	return walls
}

// detectWhaleActivity оценивает долю крупных заявок обеих сторон.
// Порог крупной заявки - перцентиль WhalePercentile объединенного пула объемов.
func (a *Analyzer) detectWhaleActivity(bids, asks []models.OrderBookLevel) models.WhaleActivity {
	pool := make([]float64, 0, a.config.WhaleDepth*2)
	for _, level := range top(bids, a.config.WhaleDepth) {
		pool = append(pool, level.Amount)
	}
	for _, level := range top(asks, a.config.WhaleDepth) {
		pool = append(pool, level.Amount)
	}
	if len(pool) == 0 {
		return models.WhaleActivity{}
	}

	threshold := percentile(pool, a.config.WhalePercentile)

	var whaleVolume, totalVolume float64
	count := 0
	for _, v := range pool {
		totalVolume += v
		if v >= threshold {
			count++
			whaleVolume += v
		}
	}

	pct := 0.0
	if totalVolume > 0 {
		pct = whaleVolume / totalVolume * 100
	}

	return models.WhaleActivity{
		Detected:      count > 0,
		OrdersCount:   count,
		VolumePercent: pct,
		Threshold:     threshold,
	}
}

// analyzeSpread рассчитывает спред относительно средней цены
// и оценивает ликвидность
func (a *Analyzer) analyzeSpread(bids, asks []models.OrderBookLevel) models.SpreadAnalysis {
	highestBid := bids[0].Price
	lowestAsk := asks[0].Price
	spread := lowestAsk - highestBid

	pct := 0.0
	if mid := (highestBid + lowestAsk) / 2; mid > 0 {
		pct = spread / mid * 100
	}

	liquidity := models.LiquidityLow
	switch {
	case pct < 0.1:
		liquidity = models.LiquidityHigh
	case pct < 0.5:
		liquidity = models.LiquidityMedium
	}

	return models.SpreadAnalysis{
		HighestBid:    highestBid,
		LowestAsk:     lowestAsk,
		Spread:        spread,
		SpreadPercent: pct,
		Liquidity:     liquidity,
	}
}

// calculateScore сводит метрики в оценку 0-40 от базовых 20
func (a *Analyzer) calculateScore(imbalance models.ImbalanceMetrics, walls models.WallDetection, whale models.WhaleActivity, spread models.SpreadAnalysis) float64 {
	score := baseScore

	// Дисбаланс
	switch imbalance.Pressure {
	case models.PressureStrongBuy:
		score += 10
	case models.PressureBuy:
		score += 5
	case models.PressureStrongSell:
		score -= 10
	case models.PressureSell:
		score -= 5
	}

	// Активность крупных игроков
	if whale.Detected {
		if whale.VolumePercent > 30 {
			score += 5
		} else if whale.VolumePercent > 20 {
			score += 3
		}
	}

	// Стены только с одной стороны
	if walls.HasBuyWall && !walls.HasSellWall {
		score += 5
	}
	if walls.HasSellWall && !walls.HasBuyWall {
		score -= 5
	}

	// Ликвидность
	switch spread.Liquidity {
	case models.LiquidityHigh:
		score += 5
	case models.LiquidityLow:
		score -= 5
	}

	return math.Max(minScore, math.Min(maxScore, score))
}

// insufficient возвращает нейтральный результат при неполном стакане
func insufficient(book *models.OrderBook) *models.BandarmologyAnalysis {
	result := &models.BandarmologyAnalysis{
		InsufficientData: true,
		Score:            baseScore,
	}
	if book != nil {
		result.Pair = book.Pair
	}
	result.Imbalance = models.ImbalanceMetrics{Ratio: 0.5, Pressure: models.PressureNeutral}
	result.Spread.Liquidity = models.LiquidityLow
	return result
}

// sortedLevels возвращает копию уровней, отсортированную по цене
func sortedLevels(levels []models.OrderBookLevel, desc bool) []models.OrderBookLevel {
	out := append([]models.OrderBookLevel(nil), levels...)
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// top возвращает не более n верхних уровней
func top(levels []models.OrderBookLevel, n int) []models.OrderBookLevel {
	if n > 0 && len(levels) > n {
		return levels[:n]
	}
	return levels
}

// sumAmounts суммирует объемы уровней
func sumAmounts(levels []models.OrderBookLevel) float64 {
	var total float64
	for _, level := range levels {
		total += level.Amount
	}
	return total
}

// averageAmount возвращает средний объем уровня
func averageAmount(levels []models.OrderBookLevel) float64 {
	if len(levels) == 0 {
		return 0
	}
	return sumAmounts(levels) / float64(len(levels))
}

// percentile возвращает перцентиль методом линейной интерполяции
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}
