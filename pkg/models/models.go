package models

import (
	"time"
)

// Candle представляет свечу
type Candle struct {
	Pair      TradingPair
	Timeframe string
	Time      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// OrderBookLevel представляет уровень стакана
type OrderBookLevel struct {
	Price  float64
	Amount float64
}

// Value возвращает стоимость уровня в котируемой валюте
func (l OrderBookLevel) Value() float64 {
	return l.Price * l.Amount
}

// OrderBook представляет снимок стакана заявок.
// Bids отсортированы по убыванию цены, Asks по возрастанию.
type OrderBook struct {
	Pair      TradingPair
	Timestamp time.Time
	Bids      []OrderBookLevel
	Asks      []OrderBookLevel
}

// OrderBookSummary представляет сводку стакана заявок
type OrderBookSummary struct {
	Pair            TradingPair
	TotalBuyOrders  int
	TotalSellOrders int
	TotalBuyAmount  float64
	TotalSellAmount float64
	TotalBuyValue   float64
	TotalSellValue  float64
	HighestBid      float64
	LowestAsk       float64
	Spread          float64
	SpreadPercent   float64
	BuySellRatio    float64
}

// Ticker представляет текущее состояние торгов по паре
type Ticker struct {
	Pair       TradingPair
	Last       float64
	High       float64
	Low        float64
	Buy        float64
	Sell       float64
	VolBase    float64
	VolQuote   float64
	ServerTime time.Time
}

// PairInfo представляет метаданные торговой пары биржи
type PairInfo struct {
	ID             TradingPair
	Symbol         string
	BaseCurrency   string
	TradedCurrency string
}

// MarketData представляет рыночный контекст для оценки моментума
type MarketData struct {
	LastPrice      float64
	PriceChange24h float64
	Volume24h      float64
	AvgVolume      float64
}

// Сигналы индикаторов и направления давления.
const (
	SignalOversold   = "oversold"
	SignalOverbought = "overbought"
	SignalBullish    = "bullish"
	SignalBearish    = "bearish"
	SignalNeutral    = "neutral"

	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
)

// MACDValues представляет значения MACD.
// Signal и Histogram могут отсутствовать при короткой истории.
type MACDValues struct {
	MACD      *float64
	Signal    *float64
	Histogram *float64
}

// MovingAverages представляет значения скользящих средних
type MovingAverages struct {
	SMA7  *float64
	SMA25 *float64
	SMA99 *float64
	EMA12 *float64
	EMA26 *float64
}

// BollingerBands представляет полосы Боллинджера
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// VolumeAnalysis представляет анализ объёма торгов
type VolumeAnalysis struct {
	Current float64
	Average float64
	Ratio   float64
	Trend   string
}

// TechnicalSignals представляет сигналы технических индикаторов
type TechnicalSignals struct {
	RSI       string
	MACD      string
	MA        string
	Bollinger string
}

// TechnicalAnalysis представляет результат технического анализа.
// Отсутствующий индикатор остаётся nil и не участвует в оценке.
type TechnicalAnalysis struct {
	Pair           TradingPair
	NoData         bool
	CurrentPrice   float64
	RSI            *float64
	MACD           MACDValues
	MovingAverages MovingAverages
	Bollinger      *BollingerBands
	Volume         *VolumeAnalysis
	Signals        TechnicalSignals
	Score          float64
}

// Pressure представляет направление давления в стакане
type Pressure string

const (
	PressureStrongBuy  Pressure = "strong_buy"
	PressureBuy        Pressure = "buy"
	PressureNeutral    Pressure = "neutral"
	PressureSell       Pressure = "sell"
	PressureStrongSell Pressure = "strong_sell"
)

// Liquidity представляет оценку ликвидности по спреду
type Liquidity string

const (
	LiquidityHigh   Liquidity = "high"
	LiquidityMedium Liquidity = "medium"
	LiquidityLow    Liquidity = "low"
)

// ImbalanceMetrics представляет дисбаланс объёмов верхних уровней стакана
type ImbalanceMetrics struct {
	BuyVolume  float64
	SellVolume float64
	Ratio      float64
	Pressure   Pressure
}

// WallDetection представляет обнаруженные стены заявок
type WallDetection struct {
	BuyWalls    []OrderBookLevel
	SellWalls   []OrderBookLevel
	HasBuyWall  bool
	HasSellWall bool
}

// WhaleActivity представляет активность крупных игроков
type WhaleActivity struct {
	Detected      bool
	OrdersCount   int
	VolumePercent float64
	Threshold     float64
}

// SpreadAnalysis представляет анализ спреда и ликвидности
type SpreadAnalysis struct {
	HighestBid    float64
	LowestAsk     float64
	Spread        float64
	SpreadPercent float64
	Liquidity     Liquidity
}

// BandarmologyAnalysis представляет результат анализа потока заявок.
// InsufficientData выставляется при пустой стороне стакана,
// Score при этом остаётся нейтральным.
type BandarmologyAnalysis struct {
	Pair             TradingPair
	InsufficientData bool
	Imbalance        ImbalanceMetrics
	Walls            WallDetection
	Whale            WhaleActivity
	Spread           SpreadAnalysis
	Score            float64
}

// Action представляет торговое действие рекомендации
type Action string

const (
	ActionStrongBuy  Action = "STRONG_BUY"
	ActionBuy        Action = "BUY"
	ActionWeakBuy    Action = "WEAK_BUY"
	ActionHold       Action = "HOLD"
	ActionWeakSell   Action = "WEAK_SELL"
	ActionSell       Action = "SELL"
	ActionStrongSell Action = "STRONG_SELL"
)

// Confidence представляет уверенность рекомендации
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Risk представляет уровень риска рекомендации
type Risk string

const (
	RiskHigh   Risk = "HIGH"
	RiskMedium Risk = "MEDIUM"
	RiskLow    Risk = "LOW"
)

// ScoreBreakdown представляет вклад компонентов в итоговую оценку
type ScoreBreakdown struct {
	Technical    float64
	Bandarmology float64
	Momentum     float64
}

// BandarmologySignals представляет сигналы стакана, переносимые в рекомендацию
type BandarmologySignals struct {
	Pressure      Pressure
	HasBuyWall    bool
	HasSellWall   bool
	WhaleDetected bool
}

// Recommendation представляет итоговую торговую рекомендацию
type Recommendation struct {
	Pair           TradingPair
	Timestamp      time.Time
	Action         Action
	Confidence     Confidence
	RiskLevel      Risk
	TotalScore     float64
	Breakdown      ScoreBreakdown
	Interpretation string
	CurrentPrice   float64
	Technical      TechnicalSignals
	Bandarmology   BandarmologySignals
}
