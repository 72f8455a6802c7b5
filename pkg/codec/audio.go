// Package codec преобразует аудио блоки и MIDI события в полезную
// нагрузку UDP датаграмм и обратно.
//
// Сетевые форматы:
//   - Аудио: сырые сэмплы float32 little-endian без заголовков,
//     ровно кадр фиксированного размера на датаграмму
//   - MIDI: сырые байты сообщений, датаграмма может содержать
//     несколько подряд идущих сообщений
//
// Потоки не несут ни номеров последовательности, ни меток времени:
// совместимость с форматом важнее устойчивости к потерям.
package codec

import (
	"encoding/binary"
	"math"
)

// BytesPerSample - размер одного сэмпла float32 в сетевом формате.
const BytesPerSample = 4

// EncodeSamples дописывает сэмплы в dst и возвращает расширенный срез.
// Битовый образ каждого сэмпла сохраняется в точности, включая NaN
// и денормализованные значения.
func EncodeSamples(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// DecodeFrame распаковывает полезную нагрузку датаграммы в out и
// возвращает число распакованных сэмплов. Неполный хвост payload
// отбрасывается, незаполненная часть out обнуляется: короткая
// датаграмма дает тишину вместо мусора.
func DecodeFrame(payload []byte, out []float32) int {
	n := len(payload) / BytesPerSample
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*BytesPerSample:]))
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return n
}

// AudioAccumulator собирает блоки сэмплов произвольной длины в кадры
// фиксированного размера. Сэмплы не теряются и не дублируются:
// остаток после выдачи кадров открывает следующий кадр.
//
// Аккумулятор не потокобезопасен, им владеет callback захвата.
type AudioAccumulator struct {
	frameBytes int
	buf        []byte
}

// NewAudioAccumulator создает аккумулятор кадров по frameSize сэмплов.
func NewAudioAccumulator(frameSize uint32) *AudioAccumulator {
	if frameSize == 0 {
		frameSize = 1
	}
	frameBytes := int(frameSize) * BytesPerSample
	return &AudioAccumulator{
		frameBytes: frameBytes,
		buf:        make([]byte, 0, frameBytes*2),
	}
}

// Write добавляет блок сэмплов и возвращает накопившиеся полные кадры.
// Каждый кадр - самостоятельный срез длиной ровно FrameBytes,
// пригодный для отправки без дополнительного копирования.
func (a *AudioAccumulator) Write(samples []float32) [][]byte {
	a.buf = EncodeSamples(a.buf, samples)

	n := len(a.buf) / a.frameBytes
	if n == 0 {
		return nil
	}

	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		frame := make([]byte, a.frameBytes)
		copy(frame, a.buf[i*a.frameBytes:])
		frames = append(frames, frame)
	}

	// Остаток переезжает в начало, емкость буфера сохраняется
	rest := copy(a.buf, a.buf[n*a.frameBytes:])
	a.buf = a.buf[:rest]
	return frames
}

// FrameBytes возвращает размер кадра в байтах.
func (a *AudioAccumulator) FrameBytes() int { return a.frameBytes }

// Pending возвращает число накопленных байт, еще не составивших кадр.
func (a *AudioAccumulator) Pending() int { return len(a.buf) }
