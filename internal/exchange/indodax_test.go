package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *IndodaxClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewIndodaxClient(config.IndodaxConfig{
		BaseURL:           srv.URL,
		TimeoutSeconds:    2,
		RateLimit:         100,
		RateWindowSeconds: 1,
		MaxRetries:        2,
	})
}

func TestIndodaxClient_FetchDepth(t *testing.T) {
	t.Run("parses mixed numeric and string cells", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/depth/btcidr", r.URL.Path)
			w.Write([]byte(`{"buy":[[1219048000,"0.00104147"],["1219000000","0.5"]],"sell":[[1220000000,"0.01"]]}`))
		}))

		book, err := client.FetchDepth(context.Background(), "btcidr")
		require.NoError(t, err)
		require.Len(t, book.Bids, 2)
		require.Len(t, book.Asks, 1)
		assert.Equal(t, 1219048000.0, book.Bids[0].Price)
		assert.Equal(t, 0.00104147, book.Bids[0].Amount)
		assert.Equal(t, 1219000000.0, book.Bids[1].Price)
		assert.Equal(t, 1220000000.0, book.Asks[0].Price)
		assert.False(t, book.Timestamp.IsZero())
	})

	t.Run("contract drift is a decode error and is not retried", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.Write([]byte(`{"buy":[["abc","def"]],"sell":[]}`))
		}))

		_, err := client.FetchDepth(context.Background(), "btcidr")
		require.Error(t, err)

		var uerr *UpstreamError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, KindDecode, uerr.Kind)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestIndodaxClient_FetchTicker(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ticker/btcidr", r.URL.Path)
		w.Write([]byte(`{"ticker":{"high":"1250000000","low":"1180000000","vol_btc":"98.123","vol_idr":"119000000000","last":"1219048000","buy":"1219000000","sell":"1219048000","server_time":1756180000}}`))
	}))

	ticker, err := client.FetchTicker(context.Background(), "btcidr")
	require.NoError(t, err)
	assert.Equal(t, 1219048000.0, ticker.Last)
	assert.Equal(t, 1250000000.0, ticker.High)
	assert.Equal(t, 1180000000.0, ticker.Low)
	assert.Equal(t, 98.123, ticker.VolBase)
	assert.Equal(t, 119000000000.0, ticker.VolQuote)
	assert.Equal(t, int64(1756180000), ticker.ServerTime.Unix())
}

func TestIndodaxClient_FetchPairs(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"btcidr","symbol":"BTCIDR","base_currency":"idr","traded_currency":"btc"},
			{"id":"BTC-IDR","symbol":"BTCIDR","base_currency":"idr","traded_currency":"btc"},
			{"id":"ethidr","symbol":"ETHIDR","base_currency":"idr","traded_currency":"eth"}
		]`))
	}))

	pairs, err := client.FetchPairs(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, models.TradingPair("btcidr"), pairs[0].ID)
	assert.Equal(t, models.TradingPair("ethidr"), pairs[1].ID)
}

func TestIndodaxClient_FetchCandles(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chart/btcidr/1d", r.URL.Path)
		w.Write([]byte(`[
			{"time":1756000000,"open":"100","high":"110","low":"95","close":"105","volume":"10"},
			{"time":1756086400,"open":105,"high":115,"low":100,"close":112,"volume":12},
			{"time":1756172800,"open":"112","high":"120","low":"108","close":"118","volume":"9"}
		]`))
	}))

	candles, err := client.FetchCandles(context.Background(), "btcidr", "1d", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 112.0, candles[0].Close)
	assert.Equal(t, 118.0, candles[1].Close)
	assert.Equal(t, "1d", candles[0].Timeframe)
}

func TestIndodaxClient_Retries(t *testing.T) {
	t.Run("retries a 503 and succeeds", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"buy":[],"sell":[]}`))
		}))

		book, err := client.FetchDepth(context.Background(), "btcidr")
		require.NoError(t, err)
		assert.Empty(t, book.Bids)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("does not retry a 404", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := client.FetchDepth(context.Background(), "nosuchpair")
		require.Error(t, err)

		var uerr *UpstreamError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, KindHTTP, uerr.Kind)
		assert.Equal(t, http.StatusNotFound, uerr.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("transport failure is a network error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		client := NewIndodaxClient(config.IndodaxConfig{
			BaseURL:           srv.URL,
			TimeoutSeconds:    1,
			RateLimit:         100,
			RateWindowSeconds: 1,
			MaxRetries:        0,
		})
		srv.Close()

		_, err := client.FetchTicker(context.Background(), "btcidr")
		require.Error(t, err)

		var uerr *UpstreamError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, KindNetwork, uerr.Kind)
	})
}
