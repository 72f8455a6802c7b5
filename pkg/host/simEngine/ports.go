package simEngine

import (
	"errors"
	"sync"

	"github.com/arzzra/jack_bridge/pkg/host"
)

// AudioInPort симулирует вход: тест задает блок через SetSamples,
// callback читает его через Samples.
type AudioInPort struct {
	name string

	mu      sync.Mutex
	samples []float32
}

// SetSamples задает сэмплы, которые получит следующий callback.
// Срез копируется.
func (p *AudioInPort) SetSamples(samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples[:0], samples...)
}

// Samples возвращает текущий блок, дополненный нулями до nframes.
func (p *AudioInPort) Samples(nframes uint32) []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	for uint32(len(p.samples)) < nframes {
		p.samples = append(p.samples, 0)
	}
	return p.samples[:nframes]
}

// Name возвращает имя порта.
func (p *AudioInPort) Name() string { return p.name }

// AudioOutPort симулирует выход: callback пишет в Buffer, тест
// читает результат через LastBlock.
type AudioOutPort struct {
	name string

	mu  sync.Mutex
	buf []float32
}

// Buffer возвращает буфер блока. Содержимое между блоками
// сохраняется, как у настоящего хоста.
func (p *AudioOutPort) Buffer(nframes uint32) []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if uint32(len(p.buf)) != nframes {
		p.buf = make([]float32, nframes)
	}
	return p.buf
}

// Fill заполняет буфер значением v. Позволяет тестам убедиться, что
// callback перезаписывает устаревшее содержимое.
func (p *AudioOutPort) Fill(v float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.buf {
		p.buf[i] = v
	}
}

// LastBlock возвращает копию буфера после последнего блока.
func (p *AudioOutPort) LastBlock() []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]float32, len(p.buf))
	copy(out, p.buf)
	return out
}

// Name возвращает имя порта.
func (p *AudioOutPort) Name() string { return p.name }

// MidiInPort симулирует MIDI вход: события ставятся в очередь через
// QueueEvent и выдаются ровно один раз следующему callback'у.
type MidiInPort struct {
	name string

	mu      sync.Mutex
	pending []host.RawEvent
}

// QueueEvent добавляет событие в следующий блок. Байты копируются.
func (p *MidiInPort) QueueEvent(offset uint32, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, host.RawEvent{
		Offset: offset,
		Data:   append([]byte(nil), data...),
	})
}

// Events возвращает накопленные события и очищает очередь.
func (p *MidiInPort) Events(nframes uint32) []host.RawEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := p.pending
	p.pending = nil
	return events
}

// Name возвращает имя порта.
func (p *MidiInPort) Name() string { return p.name }

// MidiOutPort симулирует MIDI выход и запоминает события текущего
// блока.
type MidiOutPort struct {
	name string

	mu      sync.Mutex
	current []host.RawEvent
	clears  uint64
}

// ClearBuffer очищает буфер блока.
func (p *MidiOutPort) ClearBuffer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.current[:0]
	p.clears++
}

// WriteEvent добавляет событие в текущий блок. Байты копируются.
func (p *MidiOutPort) WriteEvent(offset uint32, data []byte) error {
	if len(data) == 0 {
		return errors.New("пустое MIDI событие")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = append(p.current, host.RawEvent{
		Offset: offset,
		Data:   append([]byte(nil), data...),
	})
	return nil
}

// BlockEvents возвращает копию событий текущего блока.
func (p *MidiOutPort) BlockEvents() []host.RawEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]host.RawEvent, len(p.current))
	copy(events, p.current)
	return events
}

// Clears возвращает число очисток буфера, по одной на блок.
func (p *MidiOutPort) Clears() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

// Name возвращает имя порта.
func (p *MidiOutPort) Name() string { return p.name }
