// Package host описывает контракт аудио хоста: клиент с портами и
// real-time callback'ом обработки блоков. Мосты работают через эти
// интерфейсы и не привязаны к конкретной реализации хоста; тесты и
// loopback прогоны подставляют симулятор из пакета simEngine.
//
// Контракт callback'а: хост вызывает ProcessFunc на каждый блок из
// выделенного потока. Внутри callback'а нельзя блокироваться и
// вызывать методы клиента; выделения памяти сводятся к минимуму.
package host

import "fmt"

// ProcessFunc - callback обработки одного блока из nframes сэмплов.
type ProcessFunc func(nframes uint32)

// RawEvent - одно MIDI событие в пределах блока.
type RawEvent struct {
	// Offset - смещение события в сэмплах от начала блока.
	Offset uint32
	// Data - сырые байты MIDI сообщения. Срез действителен только
	// внутри callback'а: для передачи дальше байты копируются.
	Data []byte
}

// AudioInPort отдает блоки сэмплов, захваченные хостом.
type AudioInPort interface {
	// Samples возвращает сэмплы текущего блока. Вызывается только
	// из callback'а; срезом владеет хост.
	Samples(nframes uint32) []float32
}

// AudioOutPort отдает буфер, который callback заполняет сэмплами.
type AudioOutPort interface {
	// Buffer возвращает буфер текущего блока для записи.
	// Хост не очищает его между блоками.
	Buffer(nframes uint32) []float32
}

// MidiInPort отдает MIDI события, пришедшие в текущем блоке.
type MidiInPort interface {
	// Events возвращает события блока в порядке поступления.
	// Вызывается только из callback'а.
	Events(nframes uint32) []RawEvent
}

// MidiOutPort принимает MIDI события для вывода в текущем блоке.
type MidiOutPort interface {
	// ClearBuffer очищает буфер событий блока. Вызывается в начале
	// каждого callback'а перед записью.
	ClearBuffer()
	// WriteEvent добавляет событие со смещением offset в текущий
	// блок. Возвращает ошибку при переполнении буфера блока.
	WriteEvent(offset uint32, data []byte) error
}

// Client - соединение с аудио хостом. Порядок использования:
// регистрация портов и установка callback'а, Activate, работа,
// Deactivate, Close. Клиент одноразовый.
type Client interface {
	// Name возвращает фактическое имя клиента у хоста.
	Name() string
	// BlockSize возвращает размер блока в сэмплах.
	BlockSize() uint32
	// SampleRate возвращает частоту дискретизации хоста.
	SampleRate() uint32

	RegisterAudioIn(name string) (AudioInPort, error)
	RegisterAudioOut(name string) (AudioOutPort, error)
	RegisterMidiIn(name string) (MidiInPort, error)
	RegisterMidiOut(name string) (MidiOutPort, error)

	// SetProcessCallback устанавливает callback обработки блоков.
	// Вызывается до Activate.
	SetProcessCallback(fn ProcessFunc) error

	// Activate включает вызовы callback'а.
	Activate() error
	// Deactivate выключает вызовы callback'а.
	Deactivate() error
	// Close разрывает соединение с хостом.
	Close() error
}

// Factory создает клиента хоста с заданным именем. Менеджер мостов
// получает фабрику, чтобы не зависеть от реализации хоста.
type Factory func(clientName string) (Client, error)

// Binding связывает ровно один порт клиента с обработчиком блоков.
// Мост владеет одним Binding: клиент, порт и callback создаются
// вместе и вместе освобождаются.
type Binding struct {
	client Client
	port   string
}

// BindAudioIn регистрирует аудио вход и направляет каждый блок
// сэмплов в handler. Handler вызывается из real-time потока хоста
// и подчиняется контракту ProcessFunc.
func BindAudioIn(c Client, portName string, handler func(samples []float32)) (*Binding, error) {
	port, err := c.RegisterAudioIn(portName)
	if err != nil {
		return nil, fmt.Errorf("регистрация аудио входа %q: %w", portName, err)
	}
	if err := c.SetProcessCallback(func(nframes uint32) {
		handler(port.Samples(nframes))
	}); err != nil {
		return nil, fmt.Errorf("установка callback'а: %w", err)
	}
	return &Binding{client: c, port: portName}, nil
}

// BindAudioOut регистрирует аудио выход. Handler обязан заполнить
// весь переданный буфер: хост не очищает его между блоками.
func BindAudioOut(c Client, portName string, handler func(out []float32)) (*Binding, error) {
	port, err := c.RegisterAudioOut(portName)
	if err != nil {
		return nil, fmt.Errorf("регистрация аудио выхода %q: %w", portName, err)
	}
	if err := c.SetProcessCallback(func(nframes uint32) {
		handler(port.Buffer(nframes))
	}); err != nil {
		return nil, fmt.Errorf("установка callback'а: %w", err)
	}
	return &Binding{client: c, port: portName}, nil
}

// BindMidiIn регистрирует MIDI вход и направляет события каждого
// блока в handler.
func BindMidiIn(c Client, portName string, handler func(events []RawEvent)) (*Binding, error) {
	port, err := c.RegisterMidiIn(portName)
	if err != nil {
		return nil, fmt.Errorf("регистрация MIDI входа %q: %w", portName, err)
	}
	if err := c.SetProcessCallback(func(nframes uint32) {
		handler(port.Events(nframes))
	}); err != nil {
		return nil, fmt.Errorf("установка callback'а: %w", err)
	}
	return &Binding{client: c, port: portName}, nil
}

// BindMidiOut регистрирует MIDI выход. Handler получает порт с уже
// очищенным буфером блока и записывает события через WriteEvent.
func BindMidiOut(c Client, portName string, handler func(out MidiOutPort, nframes uint32)) (*Binding, error) {
	port, err := c.RegisterMidiOut(portName)
	if err != nil {
		return nil, fmt.Errorf("регистрация MIDI выхода %q: %w", portName, err)
	}
	if err := c.SetProcessCallback(func(nframes uint32) {
		port.ClearBuffer()
		handler(port, nframes)
	}); err != nil {
		return nil, fmt.Errorf("установка callback'а: %w", err)
	}
	return &Binding{client: c, port: portName}, nil
}

// Activate включает поток блоков через привязанный порт.
func (b *Binding) Activate() error { return b.client.Activate() }

// Deactivate выключает поток блоков.
func (b *Binding) Deactivate() error { return b.client.Deactivate() }

// Close закрывает клиента хоста вместе с портом.
func (b *Binding) Close() error { return b.client.Close() }

// PortName возвращает имя привязанного порта.
func (b *Binding) PortName() string { return b.port }

// Client возвращает клиента, которому принадлежит порт.
func (b *Binding) Client() Client { return b.client }
