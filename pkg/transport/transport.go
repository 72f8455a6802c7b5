// Package transport реализует отправку и прием UDP multicast датаграмм.
//
// Пакет владеет сокетами: выставляет SO_REUSEADDR и SO_REUSEPORT до
// привязки, TTL исходящих датаграмм и членство в multicast группе.
// Прием работает с конечным таймаутом чтения, чтобы цикл приема мог
// периодически проверять флаг останова и завершаться без закрытия
// сокета из чужой горутины.
package transport

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

const (
	// DefaultReadTimeout - таймаут одного чтения из сокета приема.
	// Задает верхнюю границу реакции цикла приема на останов.
	DefaultReadTimeout = time.Second

	// MaxDatagramSize - наибольшая полезная нагрузка, которую мы
	// принимаем из сети: Ethernet MTU за вычетом заголовков IP и UDP.
	MaxDatagramSize = 1472
)

// ErrReadTimeout сигнализирует об истечении таймаута чтения.
// Это штатное событие цикла приема, а не ошибка.
var ErrReadTimeout = errors.New("таймаут чтения multicast сокета")

var errNotMulticast = errors.New("адрес не является IPv4 multicast группой")

// NetworkErrorType классифицирует сетевые ошибки по способу обработки.
type NetworkErrorType int

const (
	// ErrorTypeUnknown - прочие ошибки.
	ErrorTypeUnknown NetworkErrorType = iota
	// ErrorTypeTimeout - истечение дедлайна операции.
	ErrorTypeTimeout
	// ErrorTypeClosed - операция на закрытом сокете.
	ErrorTypeClosed
	// ErrorTypeTemporary - временная ошибка, операцию можно повторить.
	ErrorTypeTemporary
	// ErrorTypeUnreachable - сеть или группа недоступны.
	ErrorTypeUnreachable
)

// String возвращает имя типа для журнала.
func (t NetworkErrorType) String() string {
	switch t {
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeClosed:
		return "closed"
	case ErrorTypeTemporary:
		return "temporary"
	case ErrorTypeUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// ClassifiedError обогащает сетевую ошибку типом и признаком
// повторяемости. Циклы отправки и приема решают по нему, продолжать
// ли работу, не разбирая текст ошибки.
type ClassifiedError struct {
	Type      NetworkErrorType
	Operation string
	Err       error
	Retryable bool
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v (тип=%s, повтор=%v)", e.Operation, e.Err, e.Type, e.Retryable)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// classifyNetworkError оборачивает err в ClassifiedError по признакам
// стандартных сетевых ошибок.
func classifyNetworkError(operation string, err error) *ClassifiedError {
	ce := &ClassifiedError{
		Type:      ErrorTypeUnknown,
		Operation: operation,
		Err:       err,
	}

	var netErr net.Error
	switch {
	case errors.Is(err, net.ErrClosed):
		ce.Type = ErrorTypeClosed
	case errors.As(err, &netErr) && netErr.Timeout():
		ce.Type = ErrorTypeTimeout
		ce.Retryable = true
	case errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		ce.Type = ErrorTypeUnreachable
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		ce.Type = ErrorTypeTemporary
		ce.Retryable = true
	}
	return ce
}

// BindError описывает неудачную подготовку сокета при создании
// отправителя или приемника. Возникает только на этапе запуска.
type BindError struct {
	Op   string // "open_sender" или "open_receiver"
	Addr string // Локальный адрес или адрес группы
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// InterfaceIPv4 возвращает первый IPv4 адрес интерфейса с именем name.
// Используется, когда в конфигурации задано имя интерфейса вместо
// адреса.
func InterfaceIPv4(name string) (net.IP, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("интерфейс %q: %w", name, err)
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, fmt.Errorf("адреса интерфейса %q: %w", name, err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("у интерфейса %q нет IPv4 адреса", name)
}

// controlReuseAddr выставляет опции повторного использования адреса
// до привязки сокета, чтобы несколько приемников могли делить порт
// группы на одной машине.
func controlReuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = setReuseAddr(fd)
	}); err != nil {
		return err
	}
	return sockErr
}
