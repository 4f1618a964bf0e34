// internal/storage/influxdb.go
package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/models"
)

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	queryAPI := client.QueryAPI(cfg.Organization)
	writeAPI := client.WriteAPI(cfg.Organization, cfg.Bucket)

	return &InfluxDBStorage{
		client:   client,
		queryAPI: queryAPI,
		writeAPI: writeAPI,
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveRecommendation сохраняет рекомендацию
func (s *InfluxDBStorage) SaveRecommendation(ctx context.Context, rec *models.Recommendation) error {
	// Создаем точку для записи
	point := influxdb2.NewPoint(
		"recommendations",
		map[string]string{
			"pair":   string(rec.Pair),
			"action": string(rec.Action),
		},
		map[string]interface{}{
			"total_score":        rec.TotalScore,
			"technical_score":    rec.Breakdown.Technical,
			"bandarmology_score": rec.Breakdown.Bandarmology,
			"momentum_score":     rec.Breakdown.Momentum,
			"confidence":         string(rec.Confidence),
			"risk_level":         string(rec.RiskLevel),
			"price":              rec.CurrentPrice,
			"interpretation":     rec.Interpretation,
		},
		rec.Timestamp,
	)

	// Записываем точку
	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// RecommendationHistory получает историю рекомендаций по паре
func (s *InfluxDBStorage) RecommendationHistory(ctx context.Context, pair models.TradingPair, limit int) ([]*models.Recommendation, error) {
	// Формируем Flux-запрос
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "recommendations")
			|> filter(fn: (r) => r.pair == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, pair, limit)

	// Выполняем запрос
	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории рекомендаций: %w", err)
	}

	// Обрабатываем результаты
	var recommendations []*models.Recommendation
	for result.Next() {
		record := result.Record()

		// Извлекаем поля
		timestamp := record.Time()
		action, _ := record.ValueByKey("action").(string)
		confidence, _ := record.ValueByKey("confidence").(string)
		riskLevel, _ := record.ValueByKey("risk_level").(string)
		totalScore, _ := record.ValueByKey("total_score").(float64)
		technicalScore, _ := record.ValueByKey("technical_score").(float64)
		bandarScore, _ := record.ValueByKey("bandarmology_score").(float64)
		momentumScore, _ := record.ValueByKey("momentum_score").(float64)
		price, _ := record.ValueByKey("price").(float64)
		interpretation, _ := record.ValueByKey("interpretation").(string)

		// Создаем объект рекомендации; сигналы анализаторов не хранятся
		rec := &models.Recommendation{
			Pair:       pair,
			Timestamp:  timestamp,
			Action:     models.Action(action),
			Confidence: models.Confidence(confidence),
			RiskLevel:  models.Risk(riskLevel),
			TotalScore: totalScore,
			Breakdown: models.ScoreBreakdown{
				Technical:    technicalScore,
				Bandarmology: bandarScore,
				Momentum:     momentumScore,
			},
			Interpretation: interpretation,
			CurrentPrice:   price,
		}

		recommendations = append(recommendations, rec)
	}

	// Проверяем на ошибки при обработке результатов
	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return recommendations, nil
}

// SaveSummary сохраняет сводку стакана заявок
func (s *InfluxDBStorage) SaveSummary(ctx context.Context, summary *models.OrderBookSummary, capturedAt time.Time) error {
	// Создаем точку для записи
	point := influxdb2.NewPoint(
		"orderbook_summaries",
		map[string]string{
			"pair": string(summary.Pair),
		},
		map[string]interface{}{
			"buy_orders":     summary.TotalBuyOrders,
			"sell_orders":    summary.TotalSellOrders,
			"buy_amount":     summary.TotalBuyAmount,
			"sell_amount":    summary.TotalSellAmount,
			"buy_value":      summary.TotalBuyValue,
			"sell_value":     summary.TotalSellValue,
			"highest_bid":    summary.HighestBid,
			"lowest_ask":     summary.LowestAsk,
			"spread":         summary.Spread,
			"spread_percent": summary.SpreadPercent,
			"buy_sell_ratio": summary.BuySellRatio,
		},
		capturedAt,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()

	return nil
}

// Storage интерфейс для работы с хранилищем данных
type Storage interface {
	// Методы для рекомендаций
	SaveRecommendation(ctx context.Context, rec *models.Recommendation) error
	RecommendationHistory(ctx context.Context, pair models.TradingPair, limit int) ([]*models.Recommendation, error)

	// Методы для сводок стаканов
	SaveSummary(ctx context.Context, summary *models.OrderBookSummary, capturedAt time.Time) error

	// Вспомогательные методы
	Close()
}
