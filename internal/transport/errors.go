package transport

import (
	"errors"
	"fmt"
)

// Таксономия отказов транспорта. Каждая ошибка любой реализации
// оборачивает ровно один из этих sentinel'ов; вызывающий код
// различает их через errors.Is.
var (
	// ErrUnavailable - транспорт не может принять запрос: сессия не залогинена,
	// не удалось отправить сообщение, движок упал при сборке.
	// Единственный восстановимый отказ: fallback повторит вызов на запасном.
	ErrUnavailable = errors.New("transport unavailable")

	// ErrRejected - биржа отказала по смыслу запроса (ExecType=8 или
	// OrderCancelReject). Терминально, повтор не выполняется.
	ErrRejected = errors.New("rejected by exchange")

	// ErrTimeout - дедлайн истёк без ExecutionReport по нашему ClOrdID
	ErrTimeout = errors.New("order operation timed out")

	// ErrUnknownOrder - cancel/amend по биржевому ID, которого нет
	// в локальной карте корреляции (ордер размещён не через эту сессию)
	ErrUnknownOrder = errors.New("unknown order id")

	// ErrInterrupted - вызывающий контекст отменён до получения ответа
	ErrInterrupted = errors.New("interrupted")
)

// Error - ошибка транспортной операции с контекстом для логов.
// Wrapped всегда один из sentinel'ов выше, Cause - исходная причина (если есть).
type Error struct {
	Transport Type   // какой транспорт отказал
	Op        string // create, cancel, amend, batch-cancel
	Reason    string // человекочитаемая причина (текст биржи, детали)
	Wrapped   error  // sentinel из таксономии
	Cause     error  // исходная ошибка (сеть, движок), может быть nil
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: %v: %s", e.Transport, e.Op, e.Wrapped, e.Reason)
	}
	return fmt.Sprintf("%s %s: %v", e.Transport, e.Op, e.Wrapped)
}

// Unwrap возвращает sentinel для поддержки errors.Is
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// NewError создаёт ошибку транспорта
func NewError(t Type, op string, sentinel error, reason string, cause error) *Error {
	return &Error{Transport: t, Op: op, Reason: reason, Wrapped: sentinel, Cause: cause}
}

// Reason извлекает текст причины из ошибки транспорта.
// Для прочих ошибок возвращает err.Error().
func Reason(err error) string {
	var te *Error
	if errors.As(err, &te) && te.Reason != "" {
		return te.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
