package simEngine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arzzra/jack_bridge/pkg/host"
)

var (
	errClosed          = errors.New("клиент симулятора закрыт")
	errActiveCallback  = errors.New("callback устанавливается до активации")
	errMissingCallback = errors.New("callback не установлен")
)

// Engine - симулированный клиент аудио хоста.
//
// Блоки обрабатываются по явному вызову RunProcess или по тикеру
// в Run. Все методы потокобезопасны.
type Engine struct {
	name       string
	blockSize  uint32
	sampleRate uint32

	mu          sync.Mutex
	process     host.ProcessFunc
	active      bool
	closed      bool
	registerErr error

	audioIn  *AudioInPort
	audioOut *AudioOutPort
	midiIn   *MidiInPort
	midiOut  *MidiOutPort

	blocks atomic.Uint64
}

// New создает симулятор с заданным именем клиента, размером блока
// и частотой дискретизации.
func New(name string, blockSize, sampleRate uint32) *Engine {
	return &Engine{
		name:       name,
		blockSize:  blockSize,
		sampleRate: sampleRate,
	}
}

// Name возвращает имя клиента.
func (e *Engine) Name() string { return e.name }

// BlockSize возвращает размер блока в сэмплах.
func (e *Engine) BlockSize() uint32 { return e.blockSize }

// SampleRate возвращает частоту дискретизации.
func (e *Engine) SampleRate() uint32 { return e.sampleRate }

// SetRegisterError заставляет последующие регистрации портов
// возвращать err. Используется в тестах ошибок запуска.
func (e *Engine) SetRegisterError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerErr = err
}

// RegisterAudioIn регистрирует аудио вход.
func (e *Engine) RegisterAudioIn(name string) (host.AudioInPort, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.registerCheck(); err != nil {
		return nil, err
	}
	e.audioIn = &AudioInPort{name: name}
	return e.audioIn, nil
}

// RegisterAudioOut регистрирует аудио выход.
func (e *Engine) RegisterAudioOut(name string) (host.AudioOutPort, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.registerCheck(); err != nil {
		return nil, err
	}
	e.audioOut = &AudioOutPort{name: name}
	return e.audioOut, nil
}

// RegisterMidiIn регистрирует MIDI вход.
func (e *Engine) RegisterMidiIn(name string) (host.MidiInPort, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.registerCheck(); err != nil {
		return nil, err
	}
	e.midiIn = &MidiInPort{name: name}
	return e.midiIn, nil
}

// RegisterMidiOut регистрирует MIDI выход.
func (e *Engine) RegisterMidiOut(name string) (host.MidiOutPort, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.registerCheck(); err != nil {
		return nil, err
	}
	e.midiOut = &MidiOutPort{name: name}
	return e.midiOut, nil
}

func (e *Engine) registerCheck() error {
	if e.registerErr != nil {
		return e.registerErr
	}
	if e.closed {
		return errClosed
	}
	return nil
}

// SetProcessCallback устанавливает callback обработки блоков.
func (e *Engine) SetProcessCallback(fn host.ProcessFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	if e.active {
		return errActiveCallback
	}
	e.process = fn
	return nil
}

// Activate включает обработку блоков.
func (e *Engine) Activate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	if e.process == nil {
		return errMissingCallback
	}
	e.active = true
	return nil
}

// Deactivate выключает обработку блоков.
func (e *Engine) Deactivate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errClosed
	}
	e.active = false
	return nil
}

// Close разрывает соединение. Повторные вызовы безопасны.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
	e.closed = true
	return nil
}

// Active сообщает, включена ли обработка блоков.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Closed сообщает, был ли клиент закрыт.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// RunProcess прогоняет один блок: вызывает установленный callback,
// если клиент активен. Возвращает true, когда callback был вызван.
func (e *Engine) RunProcess() bool {
	e.mu.Lock()
	fn := e.process
	ok := e.active && !e.closed && fn != nil
	e.mu.Unlock()

	if !ok {
		return false
	}
	// Callback зовется без блокировки: он трогает порты со своими
	// замками, и удерживать замок клиента здесь нельзя
	fn(e.blockSize)
	e.blocks.Add(1)
	return true
}

// Blocks возвращает число обработанных блоков.
func (e *Engine) Blocks() uint64 { return e.blocks.Load() }

// Run прогоняет блоки по тикеру с периодом блока до отмены контекста.
// Подходит для loopback прогонов, где нужен собственный темп.
func (e *Engine) Run(ctx context.Context) {
	period := time.Duration(float64(e.blockSize) / float64(e.sampleRate) * float64(time.Second))
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunProcess()
		}
	}
}

// AudioIn возвращает зарегистрированный аудио вход или nil.
func (e *Engine) AudioIn() *AudioInPort {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioIn
}

// AudioOut возвращает зарегистрированный аудио выход или nil.
func (e *Engine) AudioOut() *AudioOutPort {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioOut
}

// MidiIn возвращает зарегистрированный MIDI вход или nil.
func (e *Engine) MidiIn() *MidiInPort {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.midiIn
}

// MidiOut возвращает зарегистрированный MIDI выход или nil.
func (e *Engine) MidiOut() *MidiOutPort {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.midiOut
}
