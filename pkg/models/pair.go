package models

import (
	"fmt"
	"regexp"
	"strings"
)

// TradingPair представляет идентификатор торговой пары indodax (например btcidr)
type TradingPair string

var pairPattern = regexp.MustCompile(`^[a-z0-9]{5,20}$`)

// ValidationError представляет ошибку валидации входных данных
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("недопустимое значение %s=%q: %s", e.Field, e.Value, e.Reason)
}

// ParsePair нормализует и проверяет идентификатор торговой пары.
// Проверка выполняется до любых сетевых вызовов.
func ParsePair(raw string) (TradingPair, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if !pairPattern.MatchString(id) {
		return "", &ValidationError{Field: "pair", Value: raw, Reason: "ожидается 5-20 символов [a-z0-9]"}
	}
	return TradingPair(id), nil
}

func (p TradingPair) String() string {
	return string(p)
}
