package exchange

import (
	"fmt"
)

// ErrorKind различает причины отказа при обращении к бирже
type ErrorKind string

const (
	// KindNetwork транспортная ошибка или таймаут
	KindNetwork ErrorKind = "network"
	// KindHTTP неуспешный HTTP-статус
	KindHTTP ErrorKind = "http"
	// KindDecode тело ответа не соответствует контракту API
	KindDecode ErrorKind = "decode"
)

// UpstreamError представляет ошибку обращения к бирже.
// Kind позволяет отличить недоступность биржи от изменения контракта.
type UpstreamError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("indodax %s: статус %d", e.Endpoint, e.StatusCode)
	case KindDecode:
		return fmt.Sprintf("indodax %s: некорректный ответ: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("indodax %s: сетевая ошибка: %v", e.Endpoint, e.Err)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
