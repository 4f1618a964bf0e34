package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/models"
)

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(config.StorageConfig{Type: "none"})
	require.NoError(t, err)
	assert.IsType(t, &NoopStorage{}, s)

	_, err = New(config.StorageConfig{Type: "postgres"})
	assert.Error(t, err)
}

func TestNoopStorage(t *testing.T) {
	s := NewNoopStorage()

	err := s.SaveRecommendation(context.Background(), &models.Recommendation{Pair: "btcidr"})
	assert.NoError(t, err)

	err = s.SaveSummary(context.Background(), &models.OrderBookSummary{Pair: "btcidr"}, time.Now())
	assert.NoError(t, err)

	history, err := s.RecommendationHistory(context.Background(), "btcidr", 10)
	assert.NoError(t, err)
	assert.Empty(t, history)

	s.Close()
}
