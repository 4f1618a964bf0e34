package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/logger"
	"github.com/skalibog/isma/pkg/models"
	"go.uber.org/zap"
)

// retryStatuses статусы, при которых запрос повторяется
var retryStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IndodaxClient представляет клиент публичного REST API Indodax
type IndodaxClient struct {
	baseURL string
	http    *http.Client
	limiter *RateLimiter
	retries int
}

// NewIndodaxClient создает новый клиент Indodax
func NewIndodaxClient(cfg config.IndodaxConfig) *IndodaxClient {
	return &IndodaxClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout(),
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 15 * time.Second}).DialContext,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   5 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow()),
		retries: cfg.MaxRetries,
	}
}

// depthResponse тело ответа /depth: уровни приходят массивами [цена, количество]
type depthResponse struct {
	Buy  [][]any `json:"buy"`
	Sell [][]any `json:"sell"`
}

// FetchDepth получает снимок стакана заявок по паре
func (c *IndodaxClient) FetchDepth(ctx context.Context, pair models.TradingPair) (*models.OrderBook, error) {
	endpoint := "/depth/" + pair.String()

	var resp depthResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	bids, err := parseLevels(resp.Buy)
	if err != nil {
		return nil, &UpstreamError{Kind: KindDecode, Endpoint: endpoint, Err: err}
	}
	asks, err := parseLevels(resp.Sell)
	if err != nil {
		return nil, &UpstreamError{Kind: KindDecode, Endpoint: endpoint, Err: err}
	}

	return &models.OrderBook{
		Pair:      pair,
		Timestamp: time.Now(),
		Bids:      bids,
		Asks:      asks,
	}, nil
}

// tickerResponse тело ответа /ticker
type tickerResponse struct {
	Ticker map[string]any `json:"ticker"`
}

// FetchTicker получает текущее состояние торгов по паре
func (c *IndodaxClient) FetchTicker(ctx context.Context, pair models.TradingPair) (*models.Ticker, error) {
	endpoint := "/ticker/" + pair.String()

	var resp tickerResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Ticker == nil {
		return nil, &UpstreamError{Kind: KindDecode, Endpoint: endpoint, Err: fmt.Errorf("пустое поле ticker")}
	}

	ticker := &models.Ticker{Pair: pair}
	ticker.Last, _ = anyToFloat(resp.Ticker["last"])
	ticker.High, _ = anyToFloat(resp.Ticker["high"])
	ticker.Low, _ = anyToFloat(resp.Ticker["low"])
	ticker.Buy, _ = anyToFloat(resp.Ticker["buy"])
	ticker.Sell, _ = anyToFloat(resp.Ticker["sell"])
	ticker.VolBase, ticker.VolQuote = tickerVolumes(resp.Ticker, pair)
	if ts, ok := anyToInt64(resp.Ticker["server_time"]); ok {
		ticker.ServerTime = time.Unix(ts, 0)
	}
	return ticker, nil
}

// pairInfoRow тело одной пары /pairs
type pairInfoRow struct {
	ID             string `json:"id"`
	Symbol         string `json:"symbol"`
	BaseCurrency   string `json:"base_currency"`
	TradedCurrency string `json:"traded_currency"`
}

// FetchPairs получает список торговых пар биржи
func (c *IndodaxClient) FetchPairs(ctx context.Context) ([]models.PairInfo, error) {
	var rows []pairInfoRow
	if err := c.getJSON(ctx, "/pairs", &rows); err != nil {
		return nil, err
	}

	pairs := make([]models.PairInfo, 0, len(rows))
	for _, row := range rows {
		id, err := models.ParsePair(row.ID)
		if err != nil {
			logger.Debug("Пропущена пара с некорректным идентификатором", zap.String("id", row.ID))
			continue
		}
		pairs = append(pairs, models.PairInfo{
			ID:             id,
			Symbol:         row.Symbol,
			BaseCurrency:   row.BaseCurrency,
			TradedCurrency: row.TradedCurrency,
		})
	}
	return pairs, nil
}

// candleRow тело одной свечи /chart: значения приходят строками или числами
type candleRow struct {
	Time   any `json:"time"`
	Open   any `json:"open"`
	High   any `json:"high"`
	Low    any `json:"low"`
	Close  any `json:"close"`
	Volume any `json:"volume"`
}

// FetchCandles получает историю свечей по паре, не более limit последних
func (c *IndodaxClient) FetchCandles(ctx context.Context, pair models.TradingPair, timeframe string, limit int) ([]models.Candle, error) {
	endpoint := fmt.Sprintf("/chart/%s/%s", pair, timeframe)

	var rows []candleRow
	if err := c.getJSON(ctx, endpoint, &rows); err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		o, okO := anyToFloat(row.Open)
		h, okH := anyToFloat(row.High)
		l, okL := anyToFloat(row.Low)
		cl, okC := anyToFloat(row.Close)
		v, okV := anyToFloat(row.Volume)
		if !okO || !okH || !okL || !okC || !okV {
			return nil, &UpstreamError{Kind: KindDecode, Endpoint: endpoint, Err: fmt.Errorf("свеча с нечисловыми полями")}
		}

		candle := models.Candle{
			Pair:      pair,
			Timeframe: timeframe,
			Open:      o,
			High:      h,
			Low:       l,
			Close:     cl,
			Volume:    v,
		}
		if ts, ok := anyToInt64(row.Time); ok {
			candle.Time = time.Unix(ts, 0)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// getJSON выполняет GET с ограничением частоты и повторами.
// Ограничитель пропускает каждую попытку отдельно, повторяются только
// транспортные ошибки и статусы из retryStatuses.
func (c *IndodaxClient) getJSON(ctx context.Context, endpoint string, target any) error {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return &UpstreamError{Kind: KindNetwork, Endpoint: endpoint, Err: err}
		}

		uerr := c.doOnce(ctx, endpoint, target)
		if uerr == nil {
			return nil
		}
		if !retryable(uerr) || attempt >= c.retries {
			return uerr
		}

		delay := b.Duration()
		logger.Warn("Повтор запроса к Indodax",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(uerr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &UpstreamError{Kind: KindNetwork, Endpoint: endpoint, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

// doOnce выполняет один HTTP-вызов без повторов
func (c *IndodaxClient) doOnce(ctx context.Context, endpoint string, target any) *UpstreamError {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return &UpstreamError{Kind: KindNetwork, Endpoint: endpoint, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Kind: KindNetwork, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &UpstreamError{Kind: KindHTTP, Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return &UpstreamError{Kind: KindDecode, Endpoint: endpoint, Err: err}
	}
	return nil
}

// retryable сообщает, имеет ли смысл повторять запрос
func retryable(e *UpstreamError) bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindHTTP:
		return retryStatuses[e.StatusCode]
	default:
		return false
	}
}

// parseLevels разбирает уровни стакана, биржа смешивает числа и строки
func parseLevels(rows [][]any) ([]models.OrderBookLevel, error) {
	levels := make([]models.OrderBookLevel, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("уровень %d: ожидается пара [цена, количество]", i)
		}
		price, okP := anyToFloat(row[0])
		amount, okA := anyToFloat(row[1])
		if !okP || !okA {
			return nil, fmt.Errorf("уровень %d: нечисловые значения", i)
		}
		levels = append(levels, models.OrderBookLevel{Price: price, Amount: amount})
	}
	return levels, nil
}

// tickerVolumes извлекает объёмы vol_<валюта> из тикера.
// Ключ с суффиксом котируемой валюты пары считается котируемым объёмом.
func tickerVolumes(m map[string]any, pair models.TradingPair) (base, quote float64) {
	for k, v := range m {
		if !strings.HasPrefix(k, "vol_") {
			continue
		}
		f, ok := anyToFloat(v)
		if !ok {
			continue
		}
		if strings.HasSuffix(pair.String(), strings.TrimPrefix(k, "vol_")) {
			quote = f
		} else {
			base = f
		}
	}
	return base, quote
}

// anyToFloat приводит значение JSON (число или строку) к float64
func anyToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// anyToInt64 приводит значение JSON (число или строку) к int64
func anyToInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(t, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
