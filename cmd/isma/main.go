package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/isma/internal/analysis/aggregator"
	"github.com/skalibog/isma/internal/cache"
	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/internal/exchange"
	"github.com/skalibog/isma/internal/scheduler"
	"github.com/skalibog/isma/internal/storage"
	"github.com/skalibog/isma/internal/ui"
	"github.com/skalibog/isma/pkg/logger"
	"github.com/skalibog/isma/pkg/models"
)

// Отложенный старт аналитики, чтобы кэш успел прогреться
const startupDelay = 5 * time.Second

func main() {
	logger.Init()
	defer logger.GetLogger().Sync()

	// Обработка флагов командной строки
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	flag.Parse()

	// Проверяем наличие файла конфигурации
	logger.Info("Проверка наличия файла конфигурации", zap.String("path", *configPath))
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Fatal("Файл конфигурации не найден", zap.String("path", *configPath))
	}

	// Загружаем конфигурацию
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Настраиваем обработку сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nЗавершение работы...")
		cancel()
		time.Sleep(5 * time.Second) // Даем горутинам время на завершение
		os.Exit(0)
	}()

	// Инициализируем хранилище
	store, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatal("Ошибка инициализации хранилища", zap.Error(err))
	}
	defer store.Close()

	// Инициализируем клиент биржи и кэш стаканов
	client := exchange.NewIndodaxClient(cfg.Indodax)
	books := cache.NewOrderBookCache(client, cfg.Analysis.Cache)

	pairs, err := watchedPairs(cfg.Trading.Pairs)
	if err != nil {
		logger.Fatal("Ошибка разбора списка пар", zap.Error(err))
	}

	// Без явного списка отслеживается весь рынок: аналитика получает
	// снимок вселенной, планировщик продолжает открывать ее сам
	schedulerPairs := pairs
	if len(pairs) == 0 {
		logger.Info("Пары не заданы, отслеживается весь рынок")
		infos, err := client.FetchPairs(ctx)
		if err != nil {
			logger.Fatal("Ошибка получения списка пар", zap.Error(err))
		}
		for _, info := range infos {
			pairs = append(pairs, info.ID)
		}
		schedulerPairs = nil
	}

	// Создаем агрегатор аналитики
	analyzer := aggregator.NewAnalyzer(cfg.Analysis, cfg.Trading, store, client, books, pairs)

	// Планировщик фонового прогрева кэша
	warmer := scheduler.NewRefreshScheduler(client, books, schedulerPairs, cfg.Analysis.WarmInterval())
	defer warmer.Stop()

	// Инициализируем UI
	userInterface, err := ui.NewTermUI(ctx, cfg.UI, analyzer)
	if err != nil {
		logger.Fatal("Ошибка инициализации пользовательского интерфейса", zap.Error(err))
	}

	// Запускаем фоновые процессы
	g := new(errgroup.Group)
	g.Go(func() error {
		if err := warmer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		seedFromHistory(ctx, analyzer, pairs, userInterface)
		runAnalysisLoop(ctx, cfg.Analysis.Interval(), analyzer, userInterface)
		return nil
	})

	// Запускаем UI в основном потоке (блокирующий вызов)
	if err := userInterface.Start(); err != nil {
		logger.Error("Ошибка интерфейса", zap.Error(err))
	}

	cancel()
	if err := g.Wait(); err != nil {
		logger.Error("Ошибка фонового процесса", zap.Error(err))
	}
}

// watchedPairs разбирает и проверяет пары из конфигурации
func watchedPairs(raw []string) ([]models.TradingPair, error) {
	pairs := make([]models.TradingPair, 0, len(raw))
	for _, s := range raw {
		pair, err := models.ParsePair(s)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// seedFromHistory показывает последние сохраненные рекомендации
// до завершения первого цикла анализа
func seedFromHistory(ctx context.Context, analyzer *aggregator.Analyzer, pairs []models.TradingPair, userInterface *ui.TermUI) {
	seeded := make(map[models.TradingPair]*models.Recommendation)
	for _, pair := range pairs {
		history, err := analyzer.RecommendationHistory(ctx, pair, 1)
		if err != nil {
			logger.Warn("История рекомендаций недоступна", zap.String("pair", pair.String()), zap.Error(err))
			continue
		}
		if len(history) > 0 {
			seeded[pair] = history[0]
		}
	}
	if len(seeded) > 0 {
		userInterface.UpdateRecommendations(seeded)
	}
}

// runAnalysisLoop периодически строит рекомендации и передает их интерфейсу
func runAnalysisLoop(ctx context.Context, interval time.Duration, analyzer *aggregator.Analyzer, userInterface *ui.TermUI) {
	select {
	case <-time.After(startupDelay):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		recommendations := analyzer.GenerateRecommendations(ctx)
		if len(recommendations) > 0 {
			userInterface.UpdateRecommendations(recommendations)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
