package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/jack_bridge/pkg/codec"
	"github.com/arzzra/jack_bridge/pkg/host/simEngine"
)

// === ТЕСТЫ АУДИО ПЕРЕДАТЧИКА ===

// TestAudioTransmitterSingleFrame прогоняет эталонный сценарий: блок
// 256 сэмплов по 1.0 при размере кадра 256 дает ровно одну датаграмму
// 1024 байта, каждая четверка байт которой декодируется в 1.0.
func TestAudioTransmitterSingleFrame(t *testing.T) {
	const blockSize = 256

	eng := simEngine.New("tx-frame", blockSize, 48000)
	sender := &fakeSender{}
	tx := newTestAudioTx(t, Config{
		Group:       "239.0.0.1",
		InterfaceIP: "127.0.0.1",
		FrameSize:   blockSize,
	}, eng, sender)

	require.NoError(t, tx.Start())

	samples := make([]float32, blockSize)
	for i := range samples {
		samples[i] = 1.0
	}
	eng.AudioIn().SetSamples(samples)
	require.True(t, eng.RunProcess(), "блок обработки должен выполниться")

	got := sender.waitDatagrams(t, 1)
	require.Len(t, got, 1, "полный блок дает ровно один кадр")
	require.Len(t, got[0], blockSize*codec.BytesPerSample, "кадр несет по 4 байта на сэмпл")
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3F}, got[0][:4], "сэмпл 1.0 в little-endian")

	decoded := make([]float32, blockSize)
	require.Equal(t, blockSize, codec.DecodeFrame(got[0], decoded))
	for i, v := range decoded {
		if v != 1.0 {
			t.Fatalf("сэмпл %d: ожидался 1.0, получен %v", i, v)
		}
	}

	require.NoError(t, tx.Stop())

	stats := tx.QueueStats()
	assert.Equal(t, uint64(1), stats.Pushed, "в очередь должен попасть один кадр")
	assert.Equal(t, uint64(0), stats.Dropped, "потерь быть не должно")
}

// TestAudioTransmitterAccumulatesBlocks проверяет накопление кадра из
// блоков меньшего размера без потери непрерывности потока.
func TestAudioTransmitterAccumulatesBlocks(t *testing.T) {
	const (
		blockSize = 100
		frameSize = 256
		blocks    = 8 // 800 сэмплов: три полных кадра и 32 в остатке
	)

	eng := simEngine.New("tx-accum", blockSize, 48000)
	sender := &fakeSender{}
	tx := newTestAudioTx(t, Config{
		Group:       "239.0.0.1",
		InterfaceIP: "127.0.0.1",
		FrameSize:   frameSize,
	}, eng, sender)

	require.NoError(t, tx.Start())

	var stream []float32
	for b := 0; b < blocks; b++ {
		block := make([]float32, blockSize)
		for i := range block {
			block[i] = float32(b*blockSize + i)
		}
		stream = append(stream, block...)
		eng.AudioIn().SetSamples(block)
		require.True(t, eng.RunProcess())
	}

	got := sender.waitDatagrams(t, 3)
	require.Len(t, got, 3, "800 сэмплов дают три кадра по 256")

	// Склейка кадров должна дать префикс исходного потока
	var joined []byte
	for _, frame := range got {
		require.Len(t, frame, frameSize*codec.BytesPerSample)
		joined = append(joined, frame...)
	}
	decoded := make([]float32, 3*frameSize)
	require.Equal(t, 3*frameSize, codec.DecodeFrame(joined, decoded))
	assert.Equal(t, stream[:3*frameSize], decoded, "кадры должны идти без разрывов")

	require.NoError(t, tx.Stop())
	t.Logf("отправлено кадров: %d, статистика очереди: %+v", len(got), tx.QueueStats())
}

// TestAudioTransmitterQueueOverflow проверяет вытеснение старых кадров
// при остановленной отправке.
func TestAudioTransmitterQueueOverflow(t *testing.T) {
	const blockSize = 16

	eng := simEngine.New("tx-overflow", blockSize, 48000)
	// Отправитель, который навсегда зависает, очередь не разгружается
	blocked := make(chan struct{})
	sender := &blockingSender{release: blocked}
	cfg := Config{
		Role:          RoleAudioTx,
		Group:         "239.0.0.1",
		InterfaceIP:   "127.0.0.1",
		FrameSize:     blockSize,
		QueueCapacity: 2,
	}.withDefaults()
	require.NoError(t, cfg.Validate())
	tx, err := newAudioTransmitter(cfg, eng, sender, testLogger(), nil)
	require.NoError(t, err)

	require.NoError(t, tx.Start())

	samples := make([]float32, blockSize)
	// Первый кадр уходит в зависшую отправку, дальше копится очередь
	for i := 0; i < 5; i++ {
		eng.AudioIn().SetSamples(samples)
		require.True(t, eng.RunProcess())
	}

	require.Eventually(t, func() bool {
		return tx.QueueStats().Dropped >= 1
	}, time.Second, 2*time.Millisecond, "переполнение должно вытеснять старые кадры")

	close(blocked)
	require.NoError(t, tx.Stop())

	stats := tx.QueueStats()
	assert.Equal(t, uint64(5), stats.Pushed)
	assert.GreaterOrEqual(t, stats.Dropped, uint64(1), "часть кадров вытеснена")
	t.Logf("статистика очереди при переполнении: %+v", stats)
}

// blockingSender зависает в Send до закрытия release
type blockingSender struct {
	release chan struct{}
}

func (b *blockingSender) Send([]byte) error {
	<-b.release
	return nil
}

func (b *blockingSender) Close() error { return nil }

// === ТЕСТЫ АУДИО ПРИЕМНИКА ===

// TestAudioReceiverPlaysFrames проверяет путь датаграмма -> очередь ->
// выходной буфер хоста.
func TestAudioReceiverPlaysFrames(t *testing.T) {
	const blockSize = 4

	eng := simEngine.New("rx-play", blockSize, 48000)
	recv := newFakeReceiver(20 * time.Millisecond)
	rx := newTestAudioRx(t, Config{Group: "239.0.0.1", FrameSize: blockSize}, eng, recv)

	require.NoError(t, rx.Start())

	// Первый блок выделяет буфер вывода, дальше его можно испачкать
	require.True(t, eng.RunProcess())

	recv.put(codec.EncodeSamples(nil, []float32{0.1, 0.2, 0.3, 0.4}))
	require.Eventually(t, func() bool {
		return rx.QueueStats().Pushed >= 1
	}, time.Second, 2*time.Millisecond, "датаграмма должна дойти до очереди")

	// Грязный буфер: проверяем, что кадр перезаписывает его целиком
	eng.AudioOut().Fill(7)
	require.True(t, eng.RunProcess())

	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, eng.AudioOut().LastBlock(),
		"кадр должен попасть в выходной буфер без искажений")

	require.NoError(t, rx.Stop())
}

// TestAudioReceiverUnderrunZeroFill проверяет тишину при пустой
// очереди: старое содержимое буфера не должно просочиться в выход.
func TestAudioReceiverUnderrunZeroFill(t *testing.T) {
	const blockSize = 8

	eng := simEngine.New("rx-underrun", blockSize, 48000)
	recv := newFakeReceiver(20 * time.Millisecond)
	rx := newTestAudioRx(t, Config{Group: "239.0.0.1", FrameSize: blockSize}, eng, recv)

	require.NoError(t, rx.Start())

	// Первый блок выделяет буфер вывода, Fill пачкает его
	require.True(t, eng.RunProcess())
	eng.AudioOut().Fill(9)
	require.True(t, eng.RunProcess())

	assert.Equal(t, make([]float32, blockSize), eng.AudioOut().LastBlock(),
		"при пустой очереди блок заполняется тишиной")

	require.NoError(t, rx.Stop())
}

// TestAudioReceiverShortFrameZeroTail проверяет дополнение нулями
// кадра короче блока хоста.
func TestAudioReceiverShortFrameZeroTail(t *testing.T) {
	const blockSize = 8

	eng := simEngine.New("rx-short", blockSize, 48000)
	recv := newFakeReceiver(20 * time.Millisecond)
	rx := newTestAudioRx(t, Config{Group: "239.0.0.1", FrameSize: blockSize}, eng, recv)

	require.NoError(t, rx.Start())

	// Первый блок выделяет буфер вывода, дальше его можно испачкать
	require.True(t, eng.RunProcess())

	recv.put(codec.EncodeSamples(nil, []float32{1, 2, 3}))
	require.Eventually(t, func() bool {
		return rx.QueueStats().Pushed >= 1
	}, time.Second, 2*time.Millisecond)

	eng.AudioOut().Fill(5)
	require.True(t, eng.RunProcess())

	assert.Equal(t, []float32{1, 2, 3, 0, 0, 0, 0, 0}, eng.AudioOut().LastBlock(),
		"хвост блока за пределами кадра заполняется нулями")

	require.NoError(t, rx.Stop())
}

// TestAudioRoundTripThroughFakes гоняет поток передатчик -> приемник
// через подставной транспорт и сверяет сэмплы бит в бит.
func TestAudioRoundTripThroughFakes(t *testing.T) {
	const blockSize = 64

	txEng := simEngine.New("rt-tx", blockSize, 48000)
	rxEng := simEngine.New("rt-rx", blockSize, 48000)

	sender := &fakeSender{}
	recv := newFakeReceiver(20 * time.Millisecond)

	tx := newTestAudioTx(t, Config{Group: "239.0.0.1", InterfaceIP: "127.0.0.1", FrameSize: blockSize}, txEng, sender)
	rx := newTestAudioRx(t, Config{Group: "239.0.0.1", FrameSize: blockSize}, rxEng, recv)

	require.NoError(t, tx.Start())
	require.NoError(t, rx.Start())

	samples := make([]float32, blockSize)
	for i := range samples {
		samples[i] = float32(i) / blockSize
	}
	txEng.AudioIn().SetSamples(samples)
	require.True(t, txEng.RunProcess())

	frames := sender.waitDatagrams(t, 1)
	recv.put(frames[0])

	require.Eventually(t, func() bool {
		return rx.QueueStats().Pushed >= 1
	}, time.Second, 2*time.Millisecond)
	require.True(t, rxEng.RunProcess())

	assert.Equal(t, samples, rxEng.AudioOut().LastBlock(),
		"поток должен пройти мост без искажений")

	require.NoError(t, tx.Stop())
	require.NoError(t, rx.Stop())
}
