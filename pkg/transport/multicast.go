package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// SenderConfig задает параметры отправителя multicast датаграмм.
type SenderConfig struct {
	// InterfaceIP - IPv4 адрес локального интерфейса отправки.
	// nil оставляет выбор за системой.
	InterfaceIP net.IP
	// Group - IPv4 multicast группа назначения.
	Group net.IP
	// Port - UDP порт группы.
	Port int
	// TTL - время жизни исходящих датаграмм (1-255).
	TTL int
}

// Sender отправляет датаграммы в multicast группу. Рассчитан на
// одну горутину отправки; Close можно звать из любой.
type Sender struct {
	conn *net.UDPConn
	dst  *net.UDPAddr
	op   string

	mu     sync.Mutex
	closed bool
}

// OpenSender создает и настраивает сокет отправки: выставляет TTL и
// привязывает сокет к локальному интерфейсу с эфемерным портом.
// Ошибки настройки возвращаются как *BindError.
func OpenSender(cfg SenderConfig) (*Sender, error) {
	group := cfg.Group.To4()
	if group == nil || !group.IsMulticast() {
		return nil, &BindError{Op: "open_sender", Addr: cfg.Group.String(), Err: errNotMulticast}
	}
	if cfg.TTL < 1 || cfg.TTL > 255 {
		return nil, &BindError{Op: "open_sender", Addr: group.String(), Err: fmt.Errorf("недопустимый TTL %d", cfg.TTL)}
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, &BindError{Op: "open_sender", Addr: group.String(), Err: fmt.Errorf("недопустимый порт %d", cfg.Port)}
	}

	laddr := "0.0.0.0:0"
	if cfg.InterfaceIP != nil {
		laddr = net.JoinHostPort(cfg.InterfaceIP.String(), "0")
	}

	lc := net.ListenConfig{Control: controlReuseAddr}
	pc, err := lc.ListenPacket(context.Background(), "udp4", laddr)
	if err != nil {
		return nil, &BindError{Op: "open_sender", Addr: laddr, Err: err}
	}
	conn := pc.(*net.UDPConn)

	if err := ipv4.NewPacketConn(conn).SetMulticastTTL(cfg.TTL); err != nil {
		conn.Close()
		return nil, &BindError{Op: "open_sender", Addr: laddr, Err: fmt.Errorf("установка TTL: %w", err)}
	}

	dst := &net.UDPAddr{IP: group, Port: cfg.Port}
	return &Sender{
		conn: conn,
		dst:  dst,
		op:   "отправка в " + dst.String(),
	}, nil
}

// Send отправляет одну датаграмму в группу. Полезная нагрузка уходит
// единым пакетом, дробление на кадры - забота вызывающего.
func (s *Sender) Send(payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return classifyNetworkError(s.op, net.ErrClosed)
	}
	if _, err := s.conn.WriteToUDP(payload, s.dst); err != nil {
		return classifyNetworkError(s.op, err)
	}
	return nil
}

// LocalAddr возвращает локальный адрес сокета отправки.
func (s *Sender) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close освобождает сокет. Повторные вызовы безопасны.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// ReceiverConfig задает параметры приемника multicast датаграмм.
type ReceiverConfig struct {
	// Group - IPv4 multicast группа.
	Group net.IP
	// Port - UDP порт группы.
	Port int
	// ReadTimeout - таймаут одного чтения.
	// Ноль означает DefaultReadTimeout.
	ReadTimeout time.Duration
}

// Receiver принимает датаграммы multicast группы. Чтение идет с
// конечным таймаутом: Receive возвращает ErrReadTimeout, когда за
// отведенное время ничего не пришло.
type Receiver struct {
	conn    *net.UDPConn
	timeout time.Duration
	op      string

	mu     sync.Mutex
	closed bool
}

// OpenReceiver создает сокет приема: привязывает его к адресу группы
// с SO_REUSEADDR и SO_REUSEPORT и вступает в группу на интерфейсе,
// который выбирает система. Ошибки настройки возвращаются как
// *BindError.
func OpenReceiver(cfg ReceiverConfig) (*Receiver, error) {
	group := cfg.Group.To4()
	if group == nil || !group.IsMulticast() {
		return nil, &BindError{Op: "open_receiver", Addr: cfg.Group.String(), Err: errNotMulticast}
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, &BindError{Op: "open_receiver", Addr: group.String(), Err: fmt.Errorf("недопустимый порт %d", cfg.Port)}
	}

	addr := net.JoinHostPort(group.String(), strconv.Itoa(cfg.Port))
	lc := net.ListenConfig{Control: controlReuseAddr}
	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, &BindError{Op: "open_receiver", Addr: addr, Err: err}
	}
	conn := pc.(*net.UDPConn)

	if err := ipv4.NewPacketConn(conn).JoinGroup(nil, &net.UDPAddr{IP: group}); err != nil {
		conn.Close()
		return nil, &BindError{Op: "open_receiver", Addr: addr, Err: fmt.Errorf("вступление в группу: %w", err)}
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return &Receiver{
		conn:    conn,
		timeout: timeout,
		op:      "прием из " + addr,
	}, nil
}

// Receive читает одну датаграмму в buf и возвращает ее длину.
// По истечении таймаута возвращается ErrReadTimeout - вызывающий
// цикл проверяет флаг останова и повторяет чтение.
func (r *Receiver) Receive(buf []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, classifyNetworkError(r.op, err)
	}
	n, _, err := r.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, ErrReadTimeout
		}
		return 0, classifyNetworkError(r.op, err)
	}
	return n, nil
}

// LocalAddr возвращает локальный адрес сокета приема.
func (r *Receiver) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// Close покидает группу вместе с освобождением сокета.
// Повторные вызовы безопасны.
func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.conn.Close()
}
