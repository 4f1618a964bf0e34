// internal/storage/storage.go
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/models"
)

// New создает хранилище по типу из конфигурации
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "influxdb":
		return NewInfluxDBStorage(cfg)
	case "none":
		return NewNoopStorage(), nil
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %s", cfg.Type)
	}
}

// NoopStorage отключает персистентность: анализатор работает автономно
type NoopStorage struct{}

// NewNoopStorage создает хранилище-заглушку
func NewNoopStorage() *NoopStorage {
	return &NoopStorage{}
}

func (s *NoopStorage) SaveRecommendation(ctx context.Context, rec *models.Recommendation) error {
	return nil
}

func (s *NoopStorage) RecommendationHistory(ctx context.Context, pair models.TradingPair, limit int) ([]*models.Recommendation, error) {
	return nil, nil
}

func (s *NoopStorage) SaveSummary(ctx context.Context, summary *models.OrderBookSummary, capturedAt time.Time) error {
	return nil
}

func (s *NoopStorage) Close() {}
