package technical

import (
	"math"

	"github.com/markcheno/go-talib"
	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/models"
)

// Границы оценки технического анализа
const (
	minScore  = 0.0
	baseScore = 20.0
	maxScore  = 40.0
)

// Периоды скользящих средних
const (
	smaFast = 7
	smaMid  = 25
	smaSlow = 99
	emaFast = 12
	emaSlow = 26
)

// Analyzer реализует технический анализ истории свечей
type Analyzer struct {
	config config.TechnicalConfig
}

// NewAnalyzer создает новый технический анализатор
func NewAnalyzer(cfg config.TechnicalConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

// Analyze выполняет технический анализ истории свечей.
// Чистая функция: индикатор без достаточной истории остается nil
// и не участвует в оценке, пустая история дает NoData с нейтральной оценкой.
func (a *Analyzer) Analyze(pair models.TradingPair, candles []models.Candle, currentPrice float64) *models.TechnicalAnalysis {
	if len(candles) == 0 {
		return &models.TechnicalAnalysis{
			Pair:         pair,
			NoData:       true,
			CurrentPrice: currentPrice,
			Signals:      neutralSignals(),
			Score:        baseScore,
		}
	}

	// Готовим ряды для индикаторов
	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	result := &models.TechnicalAnalysis{
		Pair:         pair,
		CurrentPrice: currentPrice,
	}

	// Рассчитываем индикаторы
	result.RSI = a.calculateRSI(closes)
	result.MACD = a.calculateMACD(closes)
	result.MovingAverages = a.calculateMovingAverages(closes)
	result.Bollinger = a.calculateBollinger(closes)
	result.Volume = a.analyzeVolume(volumes)

	// Интерпретируем сигналы и сводим оценку
	result.Signals = a.interpretSignals(result)
	result.Score = a.calculateScore(result.Signals)

	return result
}

// calculateRSI рассчитывает RSI.
// Последнее значение валидно только при истории длиннее периода.
func (a *Analyzer) calculateRSI(closes []float64) *float64 {
	if len(closes) <= a.config.RSIPeriod {
		return nil
	}
	return lastValid(talib.Rsi(closes, a.config.RSIPeriod))
}

// calculateMACD рассчитывает MACD.
// Все три значения валидны после lookback медленной EMA и сигнальной линии.
func (a *Analyzer) calculateMACD(closes []float64) models.MACDValues {
	if len(closes) < a.config.MACDSlow+a.config.MACDSignal-1 {
		return models.MACDValues{}
	}

	macd, signal, hist := talib.Macd(closes, a.config.MACDFast, a.config.MACDSlow, a.config.MACDSignal)
	return models.MACDValues{
		MACD:      lastValid(macd),
		Signal:    lastValid(signal),
		Histogram: lastValid(hist),
	}
}

// calculateMovingAverages рассчитывает скользящие средние по отдельности:
// короткая история отключает только недоступные периоды
func (a *Analyzer) calculateMovingAverages(closes []float64) models.MovingAverages {
	mas := models.MovingAverages{}

	if len(closes) >= smaFast {
		mas.SMA7 = lastValid(talib.Sma(closes, smaFast))
	}
	if len(closes) >= smaMid {
		mas.SMA25 = lastValid(talib.Sma(closes, smaMid))
	}
	if len(closes) >= smaSlow {
		mas.SMA99 = lastValid(talib.Sma(closes, smaSlow))
	}
	if len(closes) >= emaFast {
		mas.EMA12 = lastValid(talib.Ema(closes, emaFast))
	}
	if len(closes) >= emaSlow {
		mas.EMA26 = lastValid(talib.Ema(closes, emaSlow))
	}

	return mas
}

// calculateBollinger рассчитывает полосы Боллинджера
func (a *Analyzer) calculateBollinger(closes []float64) *models.BollingerBands {
	if len(closes) < a.config.BBPeriod {
		return nil
	}

	upper, middle, lower := talib.BBands(closes, a.config.BBPeriod, 2.0, 2.0, 0)
	u, m, l := lastValid(upper), lastValid(middle), lastValid(lower)
	if u == nil || m == nil || l == nil {
		return nil
	}
	return &models.BollingerBands{Upper: *u, Middle: *m, Lower: *l}
}

// analyzeVolume сравнивает текущий объем со средним за VolumePeriod
func (a *Analyzer) analyzeVolume(volumes []float64) *models.VolumeAnalysis {
	if len(volumes) < 2 {
		return nil
	}

	current := volumes[len(volumes)-1]
	window := volumes
	if len(volumes) >= a.config.VolumePeriod {
		window = volumes[len(volumes)-a.config.VolumePeriod:]
	}
	avg := mean(window)

	ratio := 0.0
	if avg > 0 {
		ratio = current / avg
	}

	trend := models.TrendDecreasing
	if current > avg {
		trend = models.TrendIncreasing
	}

	return &models.VolumeAnalysis{
		Current: current,
		Average: avg,
		Ratio:   ratio,
		Trend:   trend,
	}
}

// interpretSignals переводит значения индикаторов в сигналы.
// Отсутствующий индикатор оставляет свой сигнал нейтральным.
func (a *Analyzer) interpretSignals(analysis *models.TechnicalAnalysis) models.TechnicalSignals {
	signals := neutralSignals()

	if analysis.RSI != nil {
		switch {
		case *analysis.RSI < 30:
			signals.RSI = models.SignalOversold
		case *analysis.RSI > 70:
			signals.RSI = models.SignalOverbought
		}
	}

	if analysis.MACD.MACD != nil && analysis.MACD.Signal != nil {
		if *analysis.MACD.MACD > *analysis.MACD.Signal {
			signals.MACD = models.SignalBullish
		} else {
			signals.MACD = models.SignalBearish
		}
	}

	if analysis.CurrentPrice > 0 && analysis.MovingAverages.SMA25 != nil {
		if analysis.CurrentPrice > *analysis.MovingAverages.SMA25 {
			signals.MA = models.SignalBullish
		} else {
			signals.MA = models.SignalBearish
		}
	}

	if analysis.CurrentPrice > 0 && analysis.Bollinger != nil {
		switch {
		case analysis.CurrentPrice < analysis.Bollinger.Lower:
			signals.Bollinger = models.SignalOversold
		case analysis.CurrentPrice > analysis.Bollinger.Upper:
			signals.Bollinger = models.SignalOverbought
		}
	}

	return signals
}

// calculateScore сводит сигналы в оценку 0-40 от базовых 20
func (a *Analyzer) calculateScore(signals models.TechnicalSignals) float64 {
	score := baseScore

	switch signals.RSI {
	case models.SignalOversold:
		score += 5
	case models.SignalOverbought:
		score -= 5
	}

	switch signals.MACD {
	case models.SignalBullish:
		score += 5
	case models.SignalBearish:
		score -= 5
	}

	switch signals.MA {
	case models.SignalBullish:
		score += 5
	case models.SignalBearish:
		score -= 5
	}

	switch signals.Bollinger {
	case models.SignalOversold:
		score += 5
	case models.SignalOverbought:
		score -= 5
	}

	return math.Max(minScore, math.Min(maxScore, score))
}

// neutralSignals возвращает набор нейтральных сигналов
func neutralSignals() models.TechnicalSignals {
	return models.TechnicalSignals{
		RSI:       models.SignalNeutral,
		MACD:      models.SignalNeutral,
		MA:        models.SignalNeutral,
		Bollinger: models.SignalNeutral,
	}
}

// lastValid возвращает последнее значение ряда индикатора, отбрасывая NaN
func lastValid(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// mean возвращает среднее значение ряда
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}
