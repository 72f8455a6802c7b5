package bridge

import (
	"fmt"
	"log/slog"

	"github.com/arzzra/jack_bridge/pkg/codec"
	"github.com/arzzra/jack_bridge/pkg/host"
	"github.com/arzzra/jack_bridge/pkg/queue"
)

// Проверка на соответствие интерфейсу во время компиляции
var (
	_ Bridge = (*MidiTransmitter)(nil)
	_ Bridge = (*MidiReceiver)(nil)
)

// MidiTransmitter захватывает MIDI события из порта хоста и рассылает
// их в multicast группу, по одной датаграмме на событие.
//
// Callback процесса копирует байты событий в очередь; сетевая горутина
// отправляет их. Сетевой ввод-вывод в callback'е не выполняется.
type MidiTransmitter struct {
	*roleCore

	binding *host.Binding
	sender  DatagramSender
	sendQ   *queue.Queue[[]byte]
}

// NewMidiTransmitter создает MIDI передатчик: регистрирует порт захвата
// у клиента хоста и открывает сокет отправки. При успехе мост владеет
// клиентом и закрывает его в Stop.
func NewMidiTransmitter(cfg Config, client host.Client, logger *slog.Logger, metrics *Metrics) (*MidiTransmitter, error) {
	cfg.Role = RoleMidiTx
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sender, err := cfg.openSender()
	if err != nil {
		return nil, err
	}
	tx, err := newMidiTransmitter(cfg, client, sender, logger, metrics)
	if err != nil {
		sender.Close()
		return nil, err
	}
	return tx, nil
}

// newMidiTransmitter собирает передатчик поверх готового отправителя.
// Тесты подставляют сюда собственный DatagramSender.
func newMidiTransmitter(cfg Config, client host.Client, sender DatagramSender, logger *slog.Logger, metrics *Metrics) (*MidiTransmitter, error) {
	tx := &MidiTransmitter{
		roleCore: newRoleCore(cfg, logger, metrics.ForBridge(cfg)),
		sender:   sender,
		sendQ:    queue.New[[]byte](cfg.QueueCapacity),
	}
	binding, err := host.BindMidiIn(client, cfg.PortName, tx.captureEvents)
	if err != nil {
		return nil, err
	}
	tx.binding = binding
	return tx, nil
}

// captureEvents вызывается из real-time потока хоста на каждый блок.
// Байты событий копируются: срезами событий владеет хост и
// переиспользует их после callback'а.
func (t *MidiTransmitter) captureEvents(events []host.RawEvent) {
	for _, ev := range events {
		if len(ev.Data) == 0 {
			continue
		}
		data := make([]byte, len(ev.Data))
		copy(data, ev.Data)

		t.metrics.MidiEventIn()
		if !t.sendQ.Push(data) {
			t.metrics.QueueDrop()
		}
	}
}

// Start активирует клиента хоста и запускает горутину отправки
func (t *MidiTransmitter) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.beginStart(); err != nil {
		return err
	}

	t.wg.Add(1)
	go t.sendLoop(t.sendQ, t.sender)

	if err := t.binding.Activate(); err != nil {
		// Stop из терминального состояния уже не вызвать,
		// ресурсы освобождаются здесь
		t.sendQ.Close()
		t.wg.Wait()
		t.sender.Close()
		t.binding.Close()
		t.abortStart()
		return fmt.Errorf("активация клиента хоста: %w", err)
	}

	t.metrics.BridgeUp()
	t.logger.Info("Мост запущен", slog.String("bridge", t.Describe()))
	return nil
}

// Stop деактивирует клиента, дожидается горутины отправки и закрывает
// сокет вместе с клиентом. Накопленные в очереди события отбрасываются.
func (t *MidiTransmitter) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.beginStop(); err != nil {
		return err
	}

	var errs []error
	if err := t.binding.Deactivate(); err != nil {
		errs = append(errs, fmt.Errorf("деактивация клиента: %w", err))
	}
	t.sendQ.Close()
	t.wg.Wait()
	if err := t.sender.Close(); err != nil {
		errs = append(errs, fmt.Errorf("закрытие сокета отправки: %w", err))
	}
	if err := t.binding.Close(); err != nil {
		errs = append(errs, fmt.Errorf("закрытие клиента: %w", err))
	}

	t.finishStop()
	t.metrics.BridgeDown()

	stats := t.sendQ.Stats()
	t.logger.Info("Мост остановлен",
		slog.Uint64("events_queued", stats.Pushed),
		slog.Uint64("events_sent", stats.Popped),
		slog.Uint64("events_dropped", stats.Dropped))

	if len(errs) > 0 {
		return fmt.Errorf("ошибки при остановке: %v", errs)
	}
	return nil
}

// QueueStats возвращает счетчики очереди отправки
func (t *MidiTransmitter) QueueStats() queue.Statistics {
	return t.sendQ.Stats()
}

// dispose освобождает ресурсы моста, который не был запущен
func (t *MidiTransmitter) dispose() {
	t.sendQ.Close()
	t.sender.Close()
	t.binding.Close()
	t.disposeCore()
}

// MidiReceiver принимает MIDI поток из multicast группы и доставляет
// сообщения в порт хоста.
//
// Горутина приема пропускает байты датаграмм через потоковый парсер:
// одна датаграмма может нести несколько сообщений подряд, а SysEx
// может быть разрезан границей датаграмм. Очередь хранит только целые
// сообщения. Callback процесса на каждый блок выгребает очередь
// целиком и записывает события в начало блока, как делал бы локальный
// MIDI источник.
type MidiReceiver struct {
	*roleCore

	binding  *host.Binding
	receiver DatagramReceiver
	recvQ    *queue.Queue[[]byte]

	// parser принадлежит горутине приема
	parser        *codec.MidiParser
	malformedSeen uint64

	// pending - сообщение, не поместившееся в буфер событий блока.
	// Поле принадлежит callback'у процесса.
	pending []byte
}

// NewMidiReceiver создает MIDI приемник: открывает сокет группы и
// регистрирует порт вывода у клиента хоста. При успехе мост владеет
// клиентом и закрывает его в Stop.
func NewMidiReceiver(cfg Config, client host.Client, logger *slog.Logger, metrics *Metrics) (*MidiReceiver, error) {
	cfg.Role = RoleMidiRx
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	receiver, err := cfg.openReceiver()
	if err != nil {
		return nil, err
	}
	rx, err := newMidiReceiver(cfg, client, receiver, logger, metrics)
	if err != nil {
		receiver.Close()
		return nil, err
	}
	return rx, nil
}

// newMidiReceiver собирает приемник поверх готового источника
// датаграмм. Тесты подставляют сюда собственный DatagramReceiver.
func newMidiReceiver(cfg Config, client host.Client, receiver DatagramReceiver, logger *slog.Logger, metrics *Metrics) (*MidiReceiver, error) {
	rx := &MidiReceiver{
		roleCore: newRoleCore(cfg, logger, metrics.ForBridge(cfg)),
		receiver: receiver,
		recvQ:    queue.New[[]byte](cfg.QueueCapacity),
		parser:   codec.NewMidiParser(),
	}
	binding, err := host.BindMidiOut(client, cfg.PortName, rx.deliverBlock)
	if err != nil {
		return nil, err
	}
	rx.binding = binding
	return rx, nil
}

// handleDatagram разбирает принятые байты на целые MIDI сообщения и
// складывает их в очередь доставки
func (r *MidiReceiver) handleDatagram(payload []byte) {
	for _, msg := range r.parser.Feed(payload) {
		if !r.recvQ.Push(msg) {
			r.metrics.QueueDrop()
		}
	}

	stats := r.parser.Stats()
	for ; r.malformedSeen < stats.Skipped+stats.Oversized; r.malformedSeen++ {
		r.metrics.MalformedPayload()
	}
}

// deliverBlock вызывается из real-time потока хоста на каждый блок.
// Буфер порта уже очищен; все накопленные сообщения записываются
// в начало блока в порядке поступления. Сообщение, не поместившееся
// в буфер событий блока, переносится в следующий блок без потери
// порядка.
func (r *MidiReceiver) deliverBlock(out host.MidiOutPort, _ uint32) {
	for {
		msg := r.pending
		if msg == nil {
			var ok bool
			msg, ok = r.recvQ.TryPop()
			if !ok {
				return
			}
		}
		if err := out.WriteEvent(0, msg); err != nil {
			r.pending = msg
			return
		}
		r.pending = nil
		r.metrics.MidiEventOut()
	}
}

// Start запускает горутину приема и активирует клиента хоста
func (r *MidiReceiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.beginStart(); err != nil {
		return err
	}

	r.wg.Add(1)
	go r.listenLoop(r.receiver, r.handleDatagram)

	if err := r.binding.Activate(); err != nil {
		// Stop из терминального состояния уже не вызвать,
		// ресурсы освобождаются здесь
		r.abortStart()
		r.wg.Wait()
		r.receiver.Close()
		r.recvQ.Close()
		r.binding.Close()
		return fmt.Errorf("активация клиента хоста: %w", err)
	}

	r.metrics.BridgeUp()
	r.logger.Info("Мост запущен", slog.String("bridge", r.Describe()))
	return nil
}

// Stop останавливает горутину приема, деактивирует клиента и закрывает
// сокет вместе с клиентом. Остановка занимает не более таймаута чтения.
func (r *MidiReceiver) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.beginStop(); err != nil {
		return err
	}
	r.wg.Wait()

	var errs []error
	if err := r.binding.Deactivate(); err != nil {
		errs = append(errs, fmt.Errorf("деактивация клиента: %w", err))
	}
	if err := r.receiver.Close(); err != nil {
		errs = append(errs, fmt.Errorf("закрытие сокета приема: %w", err))
	}
	r.recvQ.Close()
	if err := r.binding.Close(); err != nil {
		errs = append(errs, fmt.Errorf("закрытие клиента: %w", err))
	}

	r.finishStop()
	r.metrics.BridgeDown()

	stats := r.recvQ.Stats()
	parserStats := r.parser.Stats()
	r.logger.Info("Мост остановлен",
		slog.Uint64("messages_parsed", parserStats.Messages),
		slog.Uint64("events_delivered", stats.Popped),
		slog.Uint64("events_dropped", stats.Dropped))

	if len(errs) > 0 {
		return fmt.Errorf("ошибки при остановке: %v", errs)
	}
	return nil
}

// QueueStats возвращает счетчики очереди доставки
func (r *MidiReceiver) QueueStats() queue.Statistics {
	return r.recvQ.Stats()
}

// dispose освобождает ресурсы моста, который не был запущен
func (r *MidiReceiver) dispose() {
	r.recvQ.Close()
	r.receiver.Close()
	r.binding.Close()
	r.disposeCore()
}

// ParserStats возвращает счетчики потокового разбора MIDI.
// Снимок согласован только после остановки моста.
func (r *MidiReceiver) ParserStats() codec.MidiParserStats {
	return r.parser.Stats()
}
