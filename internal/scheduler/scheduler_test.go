package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/isma/pkg/models"
)

// fakeWarmer записывает вызовы прогрева
type fakeWarmer struct {
	mu    sync.Mutex
	calls [][]models.TradingPair
	times []time.Time
}

func (f *fakeWarmer) Warm(ctx context.Context, pairs []models.TradingPair) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]models.TradingPair(nil), pairs...))
	f.times = append(f.times, time.Now())
}

func (f *fakeWarmer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeWarmer) call(i int) []models.TradingPair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeWarmer) firstAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.times[0]
}

// fakePairs подменяет открытие вселенной пар
type fakePairs struct {
	mu    sync.Mutex
	infos []models.PairInfo
	err   error
	calls int
}

func (f *fakePairs) FetchPairs(ctx context.Context) ([]models.PairInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.infos, nil
}

func (f *fakePairs) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSchedulerWarmsOnInterval(t *testing.T) {
	warmer := &fakeWarmer{}
	pairs := []models.TradingPair{"btcidr", "ethidr"}
	s := NewRefreshScheduler(&fakePairs{}, warmer, pairs, 30*time.Millisecond)

	started := time.Now()
	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	s.Stop()
	require.NoError(t, <-done)

	require.GreaterOrEqual(t, warmer.callCount(), 2)
	// Первый прогрев происходит через интервал, а не сразу при старте
	assert.GreaterOrEqual(t, warmer.firstAt().Sub(started), 25*time.Millisecond)
	assert.Equal(t, pairs, warmer.call(0))
}

func TestSchedulerDiscoversUniverse(t *testing.T) {
	warmer := &fakeWarmer{}
	provider := &fakePairs{infos: []models.PairInfo{
		{ID: "btcidr", Symbol: "BTCIDR"},
		{ID: "ethidr", Symbol: "ETHIDR"},
	}}
	s := NewRefreshScheduler(provider, warmer, nil, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	s.Stop()
	require.NoError(t, <-done)

	require.GreaterOrEqual(t, warmer.callCount(), 1)
	assert.Equal(t, []models.TradingPair{"btcidr", "ethidr"}, warmer.call(0))
	assert.GreaterOrEqual(t, provider.callCount(), 1)
}

func TestSchedulerSkipsWarmWhenDiscoveryFails(t *testing.T) {
	warmer := &fakeWarmer{}
	provider := &fakePairs{err: errors.New("биржа недоступна")}
	s := NewRefreshScheduler(provider, warmer, nil, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	time.Sleep(70 * time.Millisecond)
	s.Stop()
	require.NoError(t, <-done)

	assert.Zero(t, warmer.callCount(), "без вселенной прогревать нечего")
	// Цикл продолжает попытки открытия на каждом тике
	assert.GreaterOrEqual(t, provider.callCount(), 2)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	s := NewRefreshScheduler(&fakePairs{}, &fakeWarmer{}, []models.TradingPair{"btcidr"}, time.Hour)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	s.Stop()
	s.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start не завершился после Stop")
	}
}

func TestSchedulerHonorsContext(t *testing.T) {
	s := NewRefreshScheduler(&fakePairs{}, &fakeWarmer{}, []models.TradingPair{"btcidr"}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Start не завершился после отмены контекста")
	}
}
