package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/jack_bridge/pkg/host/simEngine"
)

// newTestMidiTx собирает MIDI передатчик на симуляторе хоста и
// подставном отправителе
func newTestMidiTx(t *testing.T, cfg Config, eng *simEngine.Engine, sender DatagramSender) *MidiTransmitter {
	t.Helper()
	cfg.Role = RoleMidiTx
	cfg = cfg.withDefaults()
	require.NoError(t, cfg.Validate(), "тестовая конфигурация должна быть корректной")
	tx, err := newMidiTransmitter(cfg, eng, sender, testLogger(), nil)
	require.NoError(t, err, "сборка передатчика не должна падать")
	return tx
}

// newTestMidiRx собирает MIDI приемник на симуляторе хоста и
// подставном источнике датаграмм
func newTestMidiRx(t *testing.T, cfg Config, eng *simEngine.Engine, receiver DatagramReceiver) *MidiReceiver {
	t.Helper()
	cfg.Role = RoleMidiRx
	cfg = cfg.withDefaults()
	require.NoError(t, cfg.Validate(), "тестовая конфигурация должна быть корректной")
	rx, err := newMidiReceiver(cfg, eng, receiver, testLogger(), nil)
	require.NoError(t, err, "сборка приемника не должна падать")
	return rx
}

// === ТЕСТЫ MIDI ПЕРЕДАТЧИКА ===

// TestMidiTransmitterDatagramPerEvent проверяет, что каждое событие
// блока уходит отдельной датаграммой в порядке следования.
func TestMidiTransmitterDatagramPerEvent(t *testing.T) {
	eng := simEngine.New("midi-tx", 64, 48000)
	sender := &fakeSender{}
	tx := newTestMidiTx(t, Config{Group: "239.0.0.2", InterfaceIP: "127.0.0.1"}, eng, sender)

	require.NoError(t, tx.Start())

	noteOn := []byte{0x90, 0x3C, 0x64}
	noteOff := []byte{0x80, 0x3C, 0x00}
	eng.MidiIn().QueueEvent(0, noteOn)
	eng.MidiIn().QueueEvent(32, noteOff)
	require.True(t, eng.RunProcess())

	got := sender.waitDatagrams(t, 2)
	require.Len(t, got, 2, "каждое событие уходит отдельной датаграммой")
	assert.Equal(t, noteOn, got[0])
	assert.Equal(t, noteOff, got[1])

	require.NoError(t, tx.Stop())

	stats := tx.QueueStats()
	assert.Equal(t, uint64(2), stats.Pushed)
	assert.Equal(t, uint64(0), stats.Dropped)
}

// TestMidiTransmitterCopiesEventBytes проверяет, что байты события
// копируются: буфер хоста действителен только внутри callback'а.
func TestMidiTransmitterCopiesEventBytes(t *testing.T) {
	eng := simEngine.New("midi-tx-copy", 64, 48000)
	sender := &fakeSender{}
	tx := newTestMidiTx(t, Config{Group: "239.0.0.2", InterfaceIP: "127.0.0.1"}, eng, sender)

	require.NoError(t, tx.Start())

	event := []byte{0x90, 0x3C, 0x64}
	eng.MidiIn().QueueEvent(0, event)
	require.True(t, eng.RunProcess())

	// Хост переиспользует буфер события под следующий блок
	event[0], event[1], event[2] = 0xFF, 0xFF, 0xFF

	got := sender.waitDatagrams(t, 1)
	assert.Equal(t, []byte{0x90, 0x3C, 0x64}, got[0],
		"датаграмма не должна зависеть от буфера хоста")

	require.NoError(t, tx.Stop())
}

// TestMidiTransmitterSkipsEmptyEvents проверяет, что пустые события
// не порождают датаграмм.
func TestMidiTransmitterSkipsEmptyEvents(t *testing.T) {
	eng := simEngine.New("midi-tx-empty", 64, 48000)
	sender := &fakeSender{}
	tx := newTestMidiTx(t, Config{Group: "239.0.0.2", InterfaceIP: "127.0.0.1"}, eng, sender)

	require.NoError(t, tx.Start())

	eng.MidiIn().QueueEvent(0, nil)
	eng.MidiIn().QueueEvent(1, []byte{0xF8})
	require.True(t, eng.RunProcess())

	got := sender.waitDatagrams(t, 1)
	require.Len(t, got, 1, "пустое событие пропускается")
	assert.Equal(t, []byte{0xF8}, got[0])

	require.NoError(t, tx.Stop())
}

// === ТЕСТЫ MIDI ПРИЕМНИКА ===

// TestMidiReceiverConcatenatedMessages проверяет датаграмму с двумя
// склеенными сообщениями: оба доставляются в том же блоке в исходном
// порядке со смещением 0.
func TestMidiReceiverConcatenatedMessages(t *testing.T) {
	eng := simEngine.New("midi-rx", 64, 48000)
	recv := newFakeReceiver(20 * time.Millisecond)
	rx := newTestMidiRx(t, Config{Group: "239.0.0.2"}, eng, recv)

	require.NoError(t, rx.Start())

	recv.put([]byte{0x90, 0x3C, 0x64, 0x80, 0x3C, 0x40})
	require.Eventually(t, func() bool {
		return rx.QueueStats().Pushed >= 2
	}, time.Second, 2*time.Millisecond, "оба сообщения должны дойти до очереди")

	require.True(t, eng.RunProcess())

	events := eng.MidiOut().BlockEvents()
	require.Len(t, events, 2, "оба сообщения доставляются одним блоком")
	assert.Equal(t, []byte{0x90, 0x3C, 0x64}, events[0].Data)
	assert.Equal(t, []byte{0x80, 0x3C, 0x40}, events[1].Data)
	assert.Equal(t, uint32(0), events[0].Offset, "сообщения пишутся в начало блока")
	assert.Equal(t, uint32(0), events[1].Offset)

	require.NoError(t, rx.Stop())
}

// TestMidiReceiverRunningStatus проверяет восстановление статуса:
// датаграмма с running status дает события с явным статус байтом.
func TestMidiReceiverRunningStatus(t *testing.T) {
	eng := simEngine.New("midi-rx-rs", 64, 48000)
	recv := newFakeReceiver(20 * time.Millisecond)
	rx := newTestMidiRx(t, Config{Group: "239.0.0.2"}, eng, recv)

	require.NoError(t, rx.Start())

	recv.put([]byte{0x90, 0x3C, 0x64, 0x3E, 0x64})
	require.Eventually(t, func() bool {
		return rx.QueueStats().Pushed >= 2
	}, time.Second, 2*time.Millisecond)

	require.True(t, eng.RunProcess())

	events := eng.MidiOut().BlockEvents()
	require.Len(t, events, 2)
	assert.Equal(t, []byte{0x90, 0x3C, 0x64}, events[0].Data)
	assert.Equal(t, []byte{0x90, 0x3E, 0x64}, events[1].Data, "статус должен восстанавливаться")

	require.NoError(t, rx.Stop())
}

// TestMidiReceiverDrainsQueuePerBlock проверяет, что один блок
// забирает все накопленные сообщения, а не по одному за блок.
func TestMidiReceiverDrainsQueuePerBlock(t *testing.T) {
	eng := simEngine.New("midi-rx-drain", 64, 48000)
	recv := newFakeReceiver(20 * time.Millisecond)
	rx := newTestMidiRx(t, Config{Group: "239.0.0.2"}, eng, recv)

	require.NoError(t, rx.Start())

	recv.put([]byte{0x90, 0x3C, 0x64})
	recv.put([]byte{0x90, 0x3E, 0x64})
	recv.put([]byte{0x90, 0x40, 0x64})
	require.Eventually(t, func() bool {
		return rx.QueueStats().Pushed >= 3
	}, time.Second, 2*time.Millisecond)

	require.True(t, eng.RunProcess())
	require.Len(t, eng.MidiOut().BlockEvents(), 3, "блок должен забрать всю очередь")

	// Следующий блок пуст
	require.True(t, eng.RunProcess())
	assert.Empty(t, eng.MidiOut().BlockEvents(), "очередь уже опустошена")

	require.NoError(t, rx.Stop())

	stats := rx.QueueStats()
	assert.Equal(t, uint64(3), stats.Popped)
}

// TestMidiReceiverSplitMessageAcrossDatagrams проверяет сборку
// сообщения, разрезанного границей датаграммы.
func TestMidiReceiverSplitMessageAcrossDatagrams(t *testing.T) {
	eng := simEngine.New("midi-rx-split", 64, 48000)
	recv := newFakeReceiver(20 * time.Millisecond)
	rx := newTestMidiRx(t, Config{Group: "239.0.0.2"}, eng, recv)

	require.NoError(t, rx.Start())

	recv.put([]byte{0x90, 0x3C})
	recv.put([]byte{0x64})
	require.Eventually(t, func() bool {
		return rx.QueueStats().Pushed >= 1
	}, time.Second, 2*time.Millisecond)

	require.True(t, eng.RunProcess())

	events := eng.MidiOut().BlockEvents()
	require.Len(t, events, 1)
	assert.Equal(t, []byte{0x90, 0x3C, 0x64}, events[0].Data,
		"сообщение должно собраться из двух датаграмм")

	require.NoError(t, rx.Stop())
}

// TestMidiReceiverCountsGarbage проверяет учет мусорных байт:
// одиночные data байты вне сообщения пропускаются и считаются.
func TestMidiReceiverCountsGarbage(t *testing.T) {
	eng := simEngine.New("midi-rx-garbage", 64, 48000)
	recv := newFakeReceiver(20 * time.Millisecond)
	rx := newTestMidiRx(t, Config{Group: "239.0.0.2"}, eng, recv)

	require.NoError(t, rx.Start())

	// Два мусорных байта перед валидным сообщением
	recv.put([]byte{0x01, 0x02, 0x90, 0x3C, 0x64})
	require.Eventually(t, func() bool {
		return rx.QueueStats().Pushed >= 1
	}, time.Second, 2*time.Millisecond)

	require.True(t, eng.RunProcess())
	events := eng.MidiOut().BlockEvents()
	require.Len(t, events, 1, "валидное сообщение должно пережить мусор")
	assert.Equal(t, []byte{0x90, 0x3C, 0x64}, events[0].Data)

	require.NoError(t, rx.Stop())

	parserStats := rx.ParserStats()
	assert.Equal(t, uint64(2), parserStats.Skipped, "мусорные байты должны быть посчитаны")
	assert.Equal(t, uint64(1), parserStats.Messages)
	t.Logf("статистика разбора: %+v", parserStats)
}

// TestMidiRoundTripThroughFakes гоняет события передатчик -> приемник
// через подставной транспорт.
func TestMidiRoundTripThroughFakes(t *testing.T) {
	txEng := simEngine.New("midi-rt-tx", 64, 48000)
	rxEng := simEngine.New("midi-rt-rx", 64, 48000)

	sender := &fakeSender{}
	recv := newFakeReceiver(20 * time.Millisecond)

	tx := newTestMidiTx(t, Config{Group: "239.0.0.2", InterfaceIP: "127.0.0.1"}, txEng, sender)
	rx := newTestMidiRx(t, Config{Group: "239.0.0.2"}, rxEng, recv)

	require.NoError(t, tx.Start())
	require.NoError(t, rx.Start())

	source := [][]byte{
		{0x90, 0x3C, 0x64},
		{0xE0, 0x00, 0x40},
		{0x80, 0x3C, 0x00},
	}
	for i, ev := range source {
		txEng.MidiIn().QueueEvent(uint32(i), ev)
	}
	require.True(t, txEng.RunProcess())

	for _, d := range sender.waitDatagrams(t, len(source)) {
		recv.put(d)
	}
	require.Eventually(t, func() bool {
		return rx.QueueStats().Pushed >= uint64(len(source))
	}, time.Second, 2*time.Millisecond)

	require.True(t, rxEng.RunProcess())

	events := rxEng.MidiOut().BlockEvents()
	require.Len(t, events, len(source))
	for i, ev := range source {
		assert.Equal(t, ev, events[i].Data, "событие %d должно пройти без искажений", i)
	}

	require.NoError(t, tx.Stop())
	require.NoError(t, rx.Stop())
}
