package ui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/skalibog/isma/internal/analysis/aggregator"
	"github.com/skalibog/isma/internal/config"
	"github.com/skalibog/isma/pkg/logger"
	"github.com/skalibog/isma/pkg/models"
)

// Стили UI
var (
	// Основные цвета
	primaryColor   = lipgloss.Color("#0077cc")
	secondaryColor = lipgloss.Color("#333333")
	errorColor     = lipgloss.Color("#cc3300")
	successColor   = lipgloss.Color("#33cc33")
	warningColor   = lipgloss.Color("#cccc00")
	// Главный контейнер - будет адаптироваться к размеру экрана
	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor)
	// Заголовок - будет адаптироваться к размеру экрана
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(primaryColor).
			Padding(0, 1).
			Align(lipgloss.Center)
	// Секция рекомендаций
	recsHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	recsSectionStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(secondaryColor).
				Padding(0, 1)
	// Секция логов
	logsHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(secondaryColor).
			Padding(0, 1)
	logsSectionStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(secondaryColor).
				Padding(0, 1)
	// Футер
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#999999")).
			Padding(0, 1)
)

// TermUI представляет терминальный интерфейс
type TermUI struct {
	analyzer        *aggregator.Analyzer
	recommendations map[models.TradingPair]*models.Recommendation
	recsMutex       sync.RWMutex
	logs            []string
	logsMutex       sync.RWMutex
	config          config.UIConfig
	program         *tea.Program
	selectedIndex   int
	width           int
	height          int
	logFile         string // Путь к файлу логов
}

// refreshMsg сообщает модели о новых данных
type refreshMsg struct{}

// bubbleModel - модель для bubbletea
type bubbleModel struct {
	ui *TermUI
}

func NewTermUI(ctx context.Context, cfg config.UIConfig, analyzer *aggregator.Analyzer) (*TermUI, error) {
	ui := &TermUI{
		analyzer:        analyzer,
		recommendations: make(map[models.TradingPair]*models.Recommendation),
		logs:            []string{"ISMA запущен. Ожидание данных..."},
		config:          cfg,
		selectedIndex:   0,
		width:           120,
		height:          40,
		logFile:         logger.JSONLogPath,
	}

	// Загружаем логи из файла при запуске
	if err := ui.loadLogsFromFile(); err != nil {
		ui.logs = append(ui.logs, fmt.Sprintf("Ошибка загрузки логов: %v", err))
	}

	// Запускаем таймер для обновления логов
	go func() {
		ticker := time.NewTicker(cfg.Refresh())
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := ui.loadLogsFromFile(); err != nil {
					logger.Warn("Ошибка загрузки логов", zap.Error(err))
				}
				if ui.program != nil {
					ui.program.Send(refreshMsg{})
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return ui, nil
}

// Start блокирует вызывающую горутину до выхода из интерфейса
func (ui *TermUI) Start() error {
	model := bubbleModel{ui: ui}
	ui.program = tea.NewProgram(model, tea.WithAltScreen())

	if _, err := ui.program.Run(); err != nil {
		return fmt.Errorf("ошибка запуска UI: %w", err)
	}
	return nil
}

// UpdateRecommendations заменяет отображаемый набор рекомендаций
func (ui *TermUI) UpdateRecommendations(recs map[models.TradingPair]*models.Recommendation) {
	ui.recsMutex.Lock()
	defer ui.recsMutex.Unlock()

	ui.recommendations = recs

	if ui.program != nil {
		ui.program.Send(refreshMsg{})
	}
}

// Чтение логов из файла
func (ui *TermUI) loadLogsFromFile() error {
	file, err := os.Open(ui.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			// Файл не существует, это не ошибка
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var logs []string

	// Регулярное выражение для удаления ANSI-цветов
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)

	// Читаем строки из файла
	for scanner.Scan() {
		line := scanner.Text()

		// Пытаемся распарсить JSON
		var zapLog map[string]interface{}
		if err := json.Unmarshal([]byte(line), &zapLog); err == nil {
			// Получаем основные поля
			level, _ := zapLog["level"].(string)
			ts, _ := zapLog["ts"].(string)
			msg, _ := zapLog["msg"].(string)

			// Удаляем ANSI-цвета из уровня логирования
			level = ansiRegex.ReplaceAllString(level, "")

			// Форматируем сообщение
			timestamp := ""
			if t, err := time.Parse("02.01.2006 - 15:04:05.999999999Z07:00", ts); err == nil {
				timestamp = t.Format("15:04:05")
			}

			formattedMsg := fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)

			// Добавляем дополнительные поля, если они есть
			for k, v := range zapLog {
				if k != "level" && k != "ts" && k != "msg" && k != "caller" {
					formattedMsg += fmt.Sprintf(" (%s: %v)", k, v)
				}
			}

			logs = append(logs, formattedMsg)
		} else {
			// Не удалось распарсить JSON, добавляем как есть
			logs = append(logs, line)
		}

		// Ограничиваем количество логов
		if len(logs) > 50 {
			logs = logs[1:]
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	ui.logsMutex.Lock()
	defer ui.logsMutex.Unlock()

	if len(logs) > 0 {
		ui.logs = logs
		if len(ui.logs) > 50 {
			ui.logs = ui.logs[len(ui.logs)-50:]
		}
	}

	return nil
}

func renderLogsSection(logs []string) string {
	header := logsHeaderStyle.Render("ЛОГИ")
	content := strings.Builder{}

	maxLogsToShow := 50
	if logsSectionStyle.GetHeight() > 8 {
		maxLogsToShow = logsSectionStyle.GetHeight() - 2
	}

	start := 0
	if len(logs) > maxLogsToShow {
		start = len(logs) - maxLogsToShow
	}

	for i := start; i < len(logs); i++ {
		log := logs[i]

		// Выделение по уровню логирования
		if strings.Contains(log, "[ERROR]") {
			log = lipgloss.NewStyle().Foreground(errorColor).Render(log)
		} else if strings.Contains(log, "[INFO]") {
			log = lipgloss.NewStyle().Foreground(successColor).Render(log)
		} else if strings.Contains(log, "[WARN]") {
			log = lipgloss.NewStyle().Foreground(warningColor).Render(log)
		} else if strings.Contains(log, "[DEBUG]") {
			log = lipgloss.NewStyle().Foreground(lipgloss.Color("#9999ff")).Render(log)
		}

		content.WriteString("  " + log + "\n")
	}

	return logsSectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

// Методы для bubbletea
func (m bubbleModel) Init() tea.Cmd {
	return nil
}

func (m bubbleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up":
			m.ui.selectedIndex = max(0, m.ui.selectedIndex-1)
		case "down":
			m.ui.recsMutex.RLock()
			total := len(m.ui.recommendations)
			m.ui.recsMutex.RUnlock()
			m.ui.selectedIndex = min(total-1, m.ui.selectedIndex+1)
		}

	case tea.WindowSizeMsg:
		m.ui.width = msg.Width
		m.ui.height = msg.Height

	case refreshMsg:
		// Просто обновляем UI
	}

	return m, nil
}

func (m bubbleModel) View() string {
	m.ui.recsMutex.RLock()
	m.ui.logsMutex.RLock()
	defer m.ui.recsMutex.RUnlock()
	defer m.ui.logsMutex.RUnlock()

	// Создаем компоненты UI
	title := titleStyle.Render("ISMA - Indodax Spot Market Analyzer")
	recs := renderRecommendationsSection(m.ui.recommendations, m.ui.selectedIndex, m.ui.config.MaxRows)
	logs := renderLogsSection(m.ui.logs)
	footer := footerStyle.Render("Клавиши: ↑/↓ - навигация, Q - выход")

	// Собираем UI
	return appStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			title,
			"\n",
			recs,
			"\n",
			logs,
			"\n",
			footer,
		),
	)
}

func renderRecommendationsSection(recs map[models.TradingPair]*models.Recommendation, selectedIndex, maxRows int) string {
	header := recsHeaderStyle.Render("РЕКОМЕНДАЦИИ")
	content := strings.Builder{}

	pairs := sortedPairs(recs)

	if len(pairs) == 0 {
		content.WriteString("  Ожидание данных...\n")
	} else {
		// Прокручиваем окно так, чтобы выбранная строка оставалась видимой
		if maxRows <= 0 {
			maxRows = len(pairs)
		}
		start := 0
		if selectedIndex >= maxRows {
			start = selectedIndex - maxRows + 1
		}
		end := min(start+maxRows, len(pairs))

		for i := start; i < end; i++ {
			rec := recs[pairs[i]]

			actionText := formatActionText(rec.Action)

			line := fmt.Sprintf("  %s: %s (%.1f) Цена: %.0f Риск: %s",
				pairs[i], actionText, rec.TotalScore, rec.CurrentPrice, rec.RiskLevel)

			// Выделяем выбранную строку
			if i == selectedIndex {
				line = "> " + line[2:]
				line = lipgloss.NewStyle().Background(lipgloss.Color("#222222")).Render(line)
			}

			content.WriteString(line + "\n")
		}
	}

	return recsSectionStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			content.String(),
		),
	)
}

// formatActionText раскрашивает действие рекомендации
func formatActionText(action models.Action) string {
	var style lipgloss.Style

	switch action {
	case models.ActionStrongBuy:
		style = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	case models.ActionBuy, models.ActionWeakBuy:
		style = lipgloss.NewStyle().Foreground(successColor)
	case models.ActionStrongSell:
		style = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	case models.ActionSell, models.ActionWeakSell:
		style = lipgloss.NewStyle().Foreground(errorColor)
	default:
		style = lipgloss.NewStyle().Foreground(warningColor)
	}

	return style.Render(string(action))
}

// sortedPairs возвращает пары в алфавитном порядке для стабильной навигации
func sortedPairs(recs map[models.TradingPair]*models.Recommendation) []models.TradingPair {
	pairs := make([]models.TradingPair, 0, len(recs))
	for pair := range recs {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i] < pairs[j] })
	return pairs
}

// Вспомогательные функции min/max для Go до 1.21
func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
