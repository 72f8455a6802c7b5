package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/looplab/fsm"

	"github.com/arzzra/jack_bridge/pkg/queue"
	"github.com/arzzra/jack_bridge/pkg/transport"
)

// Состояния жизненного цикла моста
const (
	// StateCreated - транспорт открыт, порт зарегистрирован, обработка не идет
	StateCreated = "created"
	// StateRunning - callback процесса и сетевая горутина работают
	StateRunning = "running"
	// StateStopping - остановка запрошена, горутины завершаются
	StateStopping = "stopping"
	// StateStopped - сокеты закрыты, терминальное состояние
	StateStopped = "stopped"
)

// События переходов машины состояний
const (
	eventStart  = "start"
	eventStop   = "stop"
	eventFinish = "finish"
)

// Bridge - общий интерфейс четырех ролей моста.
// Мост одноразовый: после Stop повторный Start невозможен.
type Bridge interface {
	// Start активирует клиента хоста и запускает сетевую горутину
	Start() error
	// Stop останавливает обработку, ждет завершения горутин и
	// закрывает транспорт. Занимает не более таймаута чтения.
	Stop() error
	// State возвращает текущее состояние жизненного цикла
	State() string
	// Describe возвращает человекочитаемое описание моста
	Describe() string
}

// DatagramSender отправляет датаграммы в multicast группу
type DatagramSender interface {
	Send(payload []byte) error
	Close() error
}

// DatagramReceiver принимает датаграммы из multicast группы
type DatagramReceiver interface {
	Receive(buf []byte) (int, error)
	Close() error
}

// Проверка на соответствие интерфейсам во время компиляции
var (
	_ DatagramSender   = (*transport.Sender)(nil)
	_ DatagramReceiver = (*transport.Receiver)(nil)
)

// roleCore - общая часть всех четырех ролей: конфигурация, журнал,
// метрики, машина состояний и механизм остановки. Роли встраивают
// roleCore по указателю.
type roleCore struct {
	cfg     Config
	logger  *slog.Logger
	metrics *RoleMetrics

	machine *fsm.FSM

	// mu сериализует тела Start и Stop. Сами переходы состояний
	// защищает машина, но Stop не должен начинаться, пока Start
	// не довел запуск до конца.
	mu sync.Mutex

	// stopCh закрывается в beginStop. Горутина приема наблюдает
	// канал между чтениями сокета.
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newRoleCore(cfg Config, logger *slog.Logger, metrics *RoleMetrics) *roleCore {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("role", cfg.Role.String()),
		slog.String("client", cfg.ClientName),
	)

	c := &roleCore{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		stopCh:  make(chan struct{}),
	}
	c.machine = fsm.NewFSM(
		StateCreated,
		fsm.Events{
			{Name: eventStart, Src: []string{StateCreated}, Dst: StateRunning},
			{Name: eventStop, Src: []string{StateRunning}, Dst: StateStopping},
			{Name: eventFinish, Src: []string{StateStopping}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				logger.Debug("Переход состояния моста",
					slog.String("from", e.Src),
					slog.String("to", e.Dst))
			},
		},
	)
	return c
}

// State возвращает текущее состояние жизненного цикла
func (c *roleCore) State() string {
	return c.machine.Current()
}

// Describe возвращает описание моста для журналов и статуса
func (c *roleCore) Describe() string {
	arrow := "->"
	if !c.cfg.Role.IsTransmitter() {
		arrow = "<-"
	}
	return fmt.Sprintf("%s[%s:%s %s %s:%d] state=%s",
		c.cfg.Role, c.cfg.ClientName, c.cfg.PortName,
		arrow, c.cfg.Group, c.cfg.Port, c.State())
}

// beginStart переводит мост из created в running. Возвращает ошибку
// при повторном запуске.
func (c *roleCore) beginStart() error {
	if err := c.machine.Event(context.Background(), eventStart); err != nil {
		return fmt.Errorf("мост нельзя запустить из состояния %q: %w", c.State(), err)
	}
	return nil
}

// abortStart доводит мост до stopped после ошибки внутри Start
func (c *roleCore) abortStart() {
	close(c.stopCh)
	_ = c.machine.Event(context.Background(), eventStop)
	_ = c.machine.Event(context.Background(), eventFinish)
}

// beginStop переводит мост из running в stopping и подает сигнал
// остановки горутинам. Возвращает ошибку, если мост не запущен.
func (c *roleCore) beginStop() error {
	if err := c.machine.Event(context.Background(), eventStop); err != nil {
		return fmt.Errorf("мост нельзя остановить из состояния %q: %w", c.State(), err)
	}
	// Переход running->stopping одноразовый, закрытие канала
	// выполняется ровно один раз
	close(c.stopCh)
	return nil
}

// finishStop переводит мост в терминальное состояние stopped
func (c *roleCore) finishStop() {
	_ = c.machine.Event(context.Background(), eventFinish)
}

// disposeCore переводит незапущенный мост сразу в stopped
func (c *roleCore) disposeCore() {
	c.machine.SetState(StateStopped)
}

// sendLoop выкачивает датаграммы из очереди и отправляет их в сеть.
// Завершается при закрытии очереди. Ошибки отправки считаются и
// журналируются, поток продолжается.
func (c *roleCore) sendLoop(q *queue.Queue[[]byte], sender DatagramSender) {
	defer c.wg.Done()
	c.logger.Debug("bridge.sendLoop Started")
	for {
		payload, ok := q.PopWait()
		if !ok {
			c.logger.Debug("bridge.sendLoop Stopped")
			return
		}
		if err := sender.Send(payload); err != nil {
			c.metrics.SendError()
			c.logger.Warn("Не удалось отправить датаграмму",
				slog.Any("error", err))
			continue
		}
		c.metrics.DatagramSent(len(payload))
	}
}

// listenLoop читает датаграммы из сети и передает их обработчику.
// Между чтениями проверяет сигнал остановки: таймаут чтения сокета
// ограничивает задержку завершения. Ошибки приема считаются и
// журналируются, поток продолжается.
func (c *roleCore) listenLoop(receiver DatagramReceiver, handle func([]byte)) {
	defer c.wg.Done()
	c.logger.Debug("bridge.listenLoop Started")
	buf := make([]byte, transport.MaxDatagramSize)
	for {
		select {
		case <-c.stopCh:
			c.logger.Debug("bridge.listenLoop Stopped")
			return
		default:
		}

		n, err := receiver.Receive(buf)
		if err != nil {
			if errors.Is(err, transport.ErrReadTimeout) {
				continue
			}
			var cerr *transport.ClassifiedError
			if errors.As(err, &cerr) && cerr.Type == transport.ErrorTypeClosed {
				c.logger.Debug("bridge.listenLoop Stopped: сокет закрыт")
				return
			}
			c.metrics.ReceiveError()
			c.logger.Warn("Не удалось принять датаграмму",
				slog.Any("error", err))
			continue
		}

		c.metrics.DatagramReceived(n)
		handle(buf[:n])
	}
}
