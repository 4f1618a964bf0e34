package recommendation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/models"
)

// Границы оценки моментума
const (
	momentumMin  = 0.0
	momentumBase = 10.0
	momentumMax  = 20.0
)

// neutralComponent нейтральная оценка компонента при отсутствии анализа
const neutralComponent = 20.0

// Engine реализует построение итоговой торговой рекомендации
type Engine struct {
	config config.RecommendationConfig
}

// NewEngine создает новый движок рекомендаций
func NewEngine(cfg config.RecommendationConfig) *Engine {
	return &Engine{
		config: cfg,
	}
}

// Generate строит рекомендацию по результатам анализов и рыночному контексту.
// Чистая функция: отсутствующий анализ заменяется нейтральной оценкой.
func (e *Engine) Generate(pair models.TradingPair, technical *models.TechnicalAnalysis, bandarmology *models.BandarmologyAnalysis, market models.MarketData) *models.Recommendation {
	technicalScore := neutralComponent
	techSignals := models.TechnicalSignals{
		RSI:       models.SignalNeutral,
		MACD:      models.SignalNeutral,
		MA:        models.SignalNeutral,
		Bollinger: models.SignalNeutral,
	}
	if technical != nil {
		technicalScore = technical.Score
		techSignals = technical.Signals
	}

	bandarScore := neutralComponent
	bandarSignals := models.BandarmologySignals{Pressure: models.PressureNeutral}
	if bandarmology != nil {
		bandarScore = bandarmology.Score
		bandarSignals = models.BandarmologySignals{
			Pressure:      bandarmology.Imbalance.Pressure,
			HasBuyWall:    bandarmology.Walls.HasBuyWall,
			HasSellWall:   bandarmology.Walls.HasSellWall,
			WhaleDetected: bandarmology.Whale.Detected,
		}
	}

	momentumScore := e.momentumScore(market)

	// Взвешенная сумма компонентов
	totalScore := technicalScore*e.config.TechnicalWeight +
		bandarScore*e.config.BandarmologyWeight +
		momentumScore*e.config.MomentumWeight

	action, confidence := determineAction(totalScore)

	return &models.Recommendation{
		Pair:       pair,
		Timestamp:  time.Now(),
		Action:     action,
		Confidence: confidence,
		RiskLevel:  assessRisk(totalScore, market),
		TotalScore: totalScore,
		Breakdown: models.ScoreBreakdown{
			Technical:    technicalScore,
			Bandarmology: bandarScore,
			Momentum:     momentumScore,
		},
		Interpretation: interpretation(confidence, totalScore, technicalScore, bandarScore, momentumScore),
		CurrentPrice:   market.LastPrice,
		Technical:      techSignals,
		Bandarmology:   bandarSignals,
	}
}

// momentumScore оценивает моментум рынка 0-20 от базовых 10
func (e *Engine) momentumScore(market models.MarketData) float64 {
	score := momentumBase

	// Изменение цены за сутки
	switch {
	case market.PriceChange24h > 10:
		score += 5
	case market.PriceChange24h > 5:
		score += 3
	case market.PriceChange24h < -10:
		score -= 5
	case market.PriceChange24h < -5:
		score -= 3
	}

	// Объем относительно среднего
	if market.AvgVolume > 0 {
		ratio := market.Volume24h / market.AvgVolume
		switch {
		case ratio > 1.5:
			score += 5
		case ratio > 1.2:
			score += 3
		case ratio < 0.5:
			score -= 5
		case ratio < 0.8:
			score -= 3
		}
	}

	return math.Max(momentumMin, math.Min(momentumMax, score))
}

// determineAction переводит итоговую оценку в действие и уверенность.
// Диапазоны покрывают всю шкалу 0-100 и не пересекаются.
func determineAction(total float64) (models.Action, models.Confidence) {
	switch {
	case total >= 75:
		return models.ActionStrongBuy, models.ConfidenceHigh
	case total >= 60:
		return models.ActionBuy, models.ConfidenceMedium
	case total >= 50:
		return models.ActionWeakBuy, models.ConfidenceLow
	case total > 40:
		return models.ActionHold, models.ConfidenceMedium
	case total >= 30:
		return models.ActionWeakSell, models.ConfidenceLow
	case total >= 25:
		return models.ActionSell, models.ConfidenceMedium
	default:
		return models.ActionStrongSell, models.ConfidenceHigh
	}
}

// assessRisk оценивает уровень риска рекомендации
func assessRisk(total float64, market models.MarketData) models.Risk {
	// Крайние оценки
	if total > 80 || total < 20 {
		return models.RiskHigh
	}

	// Волатильность за сутки
	change := math.Abs(market.PriceChange24h)
	if change > 15 {
		return models.RiskHigh
	}
	if change > 10 {
		return models.RiskMedium
	}

	if total >= 40 && total <= 60 {
		return models.RiskLow
	}
	return models.RiskMedium
}

// interpretation собирает пояснение из шаблонов по диапазонам оценок.
// Предложения соединяются одиночными пробелами.
func interpretation(confidence models.Confidence, total, technical, bandarmology, momentum float64) string {
	parts := make([]string, 0, 4)

	switch {
	case total >= 60:
		parts = append(parts, fmt.Sprintf(
			"Overall bullish signal with %s confidence. Total score of %.0f/100 suggests favorable buying conditions.",
			strings.ToLower(string(confidence)), total))
	case total <= 40:
		parts = append(parts, fmt.Sprintf(
			"Overall bearish signal with %s confidence. Total score of %.0f/100 suggests caution or selling opportunity.",
			strings.ToLower(string(confidence)), total))
	default:
		parts = append(parts, fmt.Sprintf(
			"Neutral market conditions. Total score of %.0f/100 suggests holding current positions and waiting for clearer signals.",
			total))
	}

	switch {
	case technical > 25:
		parts = append(parts, fmt.Sprintf("Technical indicators are showing positive signals (score: %.0f/40).", technical))
	case technical < 15:
		parts = append(parts, fmt.Sprintf("Technical indicators are showing negative signals (score: %.0f/40).", technical))
	default:
		parts = append(parts, fmt.Sprintf("Technical indicators are neutral (score: %.0f/40).", technical))
	}

	switch {
	case bandarmology > 25:
		parts = append(parts, fmt.Sprintf("Order book analysis indicates buying pressure (score: %.0f/40).", bandarmology))
	case bandarmology < 15:
		parts = append(parts, fmt.Sprintf("Order book analysis indicates selling pressure (score: %.0f/40).", bandarmology))
	default:
		parts = append(parts, fmt.Sprintf("Order book is balanced (score: %.0f/40).", bandarmology))
	}

	if momentum > 12 {
		parts = append(parts, fmt.Sprintf("Strong positive momentum detected (score: %.0f/20).", momentum))
	} else if momentum < 8 {
		parts = append(parts, fmt.Sprintf("Weak or negative momentum (score: %.0f/20).", momentum))
	}

	return strings.Join(parts, " ")
}
