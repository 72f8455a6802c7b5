package bridge

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/arzzra/jack_bridge/pkg/codec"
	"github.com/arzzra/jack_bridge/pkg/host"
	"github.com/arzzra/jack_bridge/pkg/queue"
	"github.com/arzzra/jack_bridge/pkg/transport"
)

// Проверка на соответствие интерфейсу во время компиляции
var (
	_ Bridge = (*AudioTransmitter)(nil)
	_ Bridge = (*AudioReceiver)(nil)
)

// groupIP разбирает адрес multicast группы из конфигурации
func (c Config) groupIP() (net.IP, error) {
	ip := net.ParseIP(c.Group)
	if ip == nil {
		return nil, fmt.Errorf("некорректный адрес группы: %q", c.Group)
	}
	return ip, nil
}

// interfaceIPv4 разбирает адрес локального интерфейса из конфигурации
func (c Config) interfaceIPv4() (net.IP, error) {
	ip := net.ParseIP(c.InterfaceIP)
	if ip == nil {
		return nil, fmt.Errorf("некорректный IP интерфейса: %q", c.InterfaceIP)
	}
	return ip, nil
}

// openSender открывает сокет отправки по параметрам конфигурации
func (c Config) openSender() (*transport.Sender, error) {
	group, err := c.groupIP()
	if err != nil {
		return nil, err
	}
	ifaceIP, err := c.interfaceIPv4()
	if err != nil {
		return nil, err
	}
	return transport.OpenSender(transport.SenderConfig{
		InterfaceIP: ifaceIP,
		Group:       group,
		Port:        c.Port,
		TTL:         c.TTL,
	})
}

// openReceiver открывает сокет приема по параметрам конфигурации
func (c Config) openReceiver() (*transport.Receiver, error) {
	group, err := c.groupIP()
	if err != nil {
		return nil, err
	}
	return transport.OpenReceiver(transport.ReceiverConfig{
		Group:       group,
		Port:        c.Port,
		ReadTimeout: c.ReadTimeout,
	})
}

// AudioTransmitter захватывает аудио блоки из порта хоста и рассылает
// их кадрами фиксированного размера в multicast группу.
//
// Callback процесса дописывает сэмплы блока в накопитель и перекладывает
// готовые кадры в очередь; сетевая горутина выкачивает очередь и
// отправляет датаграммы. Сетевой ввод-вывод в callback'е не выполняется.
type AudioTransmitter struct {
	*roleCore

	binding *host.Binding
	sender  DatagramSender
	sendQ   *queue.Queue[[]byte]
	acc     *codec.AudioAccumulator
}

// NewAudioTransmitter создает аудио передатчик: регистрирует порт
// захвата у клиента хоста и открывает сокет отправки. При успехе мост
// владеет клиентом и закрывает его в Stop.
func NewAudioTransmitter(cfg Config, client host.Client, logger *slog.Logger, metrics *Metrics) (*AudioTransmitter, error) {
	cfg.Role = RoleAudioTx
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Нулевой размер кадра означает размер блока хоста
	if cfg.FrameSize == 0 {
		cfg.FrameSize = client.BlockSize()
	}
	if err := validateFrameSize(cfg.FrameSize); err != nil {
		return nil, err
	}

	sender, err := cfg.openSender()
	if err != nil {
		return nil, err
	}
	tx, err := newAudioTransmitter(cfg, client, sender, logger, metrics)
	if err != nil {
		sender.Close()
		return nil, err
	}
	return tx, nil
}

// newAudioTransmitter собирает передатчик поверх готового отправителя.
// Тесты подставляют сюда собственный DatagramSender.
func newAudioTransmitter(cfg Config, client host.Client, sender DatagramSender, logger *slog.Logger, metrics *Metrics) (*AudioTransmitter, error) {
	tx := &AudioTransmitter{
		roleCore: newRoleCore(cfg, logger, metrics.ForBridge(cfg)),
		sender:   sender,
		sendQ:    queue.New[[]byte](cfg.QueueCapacity),
		acc:      codec.NewAudioAccumulator(cfg.FrameSize),
	}
	binding, err := host.BindAudioIn(client, cfg.PortName, tx.captureBlock)
	if err != nil {
		return nil, err
	}
	tx.binding = binding
	return tx, nil
}

// captureBlock вызывается из real-time потока хоста на каждый блок.
// Не блокируется: готовые кадры уходят в очередь, переполнение
// вытесняет самый старый кадр.
func (t *AudioTransmitter) captureBlock(samples []float32) {
	for _, frame := range t.acc.Write(samples) {
		if !t.sendQ.Push(frame) {
			t.metrics.QueueDrop()
		}
	}
}

// Start активирует клиента хоста и запускает горутину отправки
func (t *AudioTransmitter) Start() error {
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
// сокет вместе с клиентом. Накопленные в очереди кадры отбрасываются.
func (t *AudioTransmitter) Stop() error {
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
		slog.Uint64("frames_queued", stats.Pushed),
		slog.Uint64("frames_sent", stats.Popped),
		slog.Uint64("frames_dropped", stats.Dropped))

	if len(errs) > 0 {
		return fmt.Errorf("ошибки при остановке: %v", errs)
	}
	return nil
}

// QueueStats возвращает счетчики очереди отправки
func (t *AudioTransmitter) QueueStats() queue.Statistics {
	return t.sendQ.Stats()
}

// dispose освобождает ресурсы моста, который не был запущен
func (t *AudioTransmitter) dispose() {
	t.sendQ.Close()
	t.sender.Close()
	t.binding.Close()
	t.disposeCore()
}

// AudioReceiver принимает аудио кадры из multicast группы и
// воспроизводит их через порт хоста.
//
// Сетевая горутина складывает принятые датаграммы в очередь; callback
// процесса на каждый блок забирает очередной кадр без ожидания.
// Пустая очередь дает блок тишины, а не повтор старых данных.
type AudioReceiver struct {
	*roleCore

	binding  *host.Binding
	receiver DatagramReceiver
	recvQ    *queue.Queue[[]byte]
}

// NewAudioReceiver создает аудио приемник: открывает сокет группы и
// регистрирует порт вывода у клиента хоста. При успехе мост владеет
// клиентом и закрывает его в Stop.
func NewAudioReceiver(cfg Config, client host.Client, logger *slog.Logger, metrics *Metrics) (*AudioReceiver, error) {
	cfg.Role = RoleAudioRx
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	receiver, err := cfg.openReceiver()
	if err != nil {
		return nil, err
	}
	rx, err := newAudioReceiver(cfg, client, receiver, logger, metrics)
	if err != nil {
		receiver.Close()
		return nil, err
	}
	return rx, nil
}

// newAudioReceiver собирает приемник поверх готового источника
// датаграмм. Тесты подставляют сюда собственный DatagramReceiver.
func newAudioReceiver(cfg Config, client host.Client, receiver DatagramReceiver, logger *slog.Logger, metrics *Metrics) (*AudioReceiver, error) {
	rx := &AudioReceiver{
		roleCore: newRoleCore(cfg, logger, metrics.ForBridge(cfg)),
		receiver: receiver,
		recvQ:    queue.New[[]byte](cfg.QueueCapacity),
	}
	binding, err := host.BindAudioOut(client, cfg.PortName, rx.fillBlock)
	if err != nil {
		return nil, err
	}
	rx.binding = binding
	return rx, nil
}

// enqueuePayload копирует принятую датаграмму в очередь воспроизведения.
// Буфер приема переиспользуется, поэтому копия обязательна. Датаграмма
// некратной длины учитывается, но воспроизводится: декодер возьмет
// целые сэмплы и отбросит хвост.
func (r *AudioReceiver) enqueuePayload(payload []byte) {
	if len(payload)%codec.BytesPerSample != 0 {
		r.metrics.MalformedPayload()
	}
	frame := make([]byte, len(payload))
	copy(frame, payload)
	if !r.recvQ.Push(frame) {
		r.metrics.QueueDrop()
	}
}

// fillBlock вызывается из real-time потока хоста на каждый блок.
// Очередной кадр распаковывается в буфер вывода; при пустой очереди
// блок заполняется тишиной.
func (r *AudioReceiver) fillBlock(out []float32) {
	payload, ok := r.recvQ.TryPop()
	if !ok {
		for i := range out {
			out[i] = 0
		}
		r.metrics.Underrun()
		return
	}
	codec.DecodeFrame(payload, out)
}

// Start запускает горутину приема и активирует клиента хоста
func (r *AudioReceiver) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.beginStart(); err != nil {
		return err
	}

	r.wg.Add(1)
	go r.listenLoop(r.receiver, r.enqueuePayload)

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
func (r *AudioReceiver) Stop() error {
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
	r.logger.Info("Мост остановлен",
		slog.Uint64("frames_received", stats.Pushed),
		slog.Uint64("frames_played", stats.Popped),
		slog.Uint64("frames_dropped", stats.Dropped))

	if len(errs) > 0 {
		return fmt.Errorf("ошибки при остановке: %v", errs)
	}
	return nil
}

// QueueStats возвращает счетчики очереди воспроизведения
func (r *AudioReceiver) QueueStats() queue.Statistics {
	return r.recvQ.Stats()
}

// dispose освобождает ресурсы моста, который не был запущен
func (r *AudioReceiver) dispose() {
	r.recvQ.Close()
	r.receiver.Close()
	r.binding.Close()
	r.disposeCore()
}
