package codec

// MaxEventBytes ограничивает размер одного MIDI сообщения в датаграмме.
// Более длинные SysEx сообщения отбрасываются целиком.
const MaxEventBytes = 64

// Границы статусных байтов MIDI, значимые для потокового разбора.
const (
	statusSysExStart byte = 0xF0
	statusSysExEnd   byte = 0xF7
	statusRealtime   byte = 0xF8 // Первый из системных real-time байтов
)

// MidiParserStats содержит счетчики разбора с момента создания парсера.
type MidiParserStats struct {
	Messages  uint64 // Выделено полных сообщений
	Skipped   uint64 // Пропущено байт вне сообщений
	Oversized uint64 // Отброшено сообщений длиннее MaxEventBytes
}

// MidiParser восстанавливает границы MIDI сообщений в байтовом потоке.
// Поддерживает running status, SysEx и системные real-time байты,
// вклинивающиеся в середину других сообщений. Состояние разбора
// сохраняется между вызовами Feed: сообщение может быть разрезано
// границей датаграммы.
//
// Парсер не потокобезопасен, им владеет горутина приема.
type MidiParser struct {
	status   byte   // Действующий статус, 0 - статуса нет
	need     int    // Сколько data байтов ждет текущее сообщение
	data     []byte // Накопленные data байты
	inSysEx  bool
	sysex    []byte
	overflow bool // Текущий SysEx превысил MaxEventBytes

	stats MidiParserStats
}

// NewMidiParser создает парсер с пустым состоянием.
func NewMidiParser() *MidiParser {
	return &MidiParser{
		data:  make([]byte, 0, 2),
		sysex: make([]byte, 0, MaxEventBytes),
	}
}

// Feed разбирает очередную порцию байтов и возвращает завершенные
// сообщения в порядке поступления. Каждое сообщение - независимая
// копия байтов, включающая статус.
func (p *MidiParser) Feed(chunk []byte) [][]byte {
	var msgs [][]byte
	for _, b := range chunk {
		if b >= statusRealtime {
			// Системные real-time байты проходят сквозь любое
			// сообщение, не трогая состояние разбора
			p.stats.Messages++
			msgs = append(msgs, []byte{b})
			continue
		}
		if p.inSysEx {
			msgs = p.feedSysEx(b, msgs)
			continue
		}
		if b >= 0x80 {
			msgs = p.beginMessage(b, msgs)
			continue
		}

		// Data байт без действующего статуса - мусор в потоке
		if p.status == 0 {
			p.stats.Skipped++
			continue
		}

		p.data = append(p.data, b)
		if len(p.data) < p.need {
			continue
		}

		msg := make([]byte, 0, 1+len(p.data))
		msg = append(msg, p.status)
		msg = append(msg, p.data...)
		p.stats.Messages++
		msgs = append(msgs, msg)

		p.data = p.data[:0]
		if p.status >= 0xF0 {
			// Системные common сообщения не оставляют running status
			p.status = 0
		}
	}
	return msgs
}

// Stats возвращает счетчики разбора.
func (p *MidiParser) Stats() MidiParserStats { return p.stats }

// beginMessage начинает разбор сообщения по статусному байту.
// Незавершенное предыдущее сообщение при этом отбрасывается.
func (p *MidiParser) beginMessage(status byte, msgs [][]byte) [][]byte {
	p.data = p.data[:0]

	switch {
	case status == statusSysExStart:
		p.inSysEx = true
		p.overflow = false
		p.sysex = append(p.sysex[:0], status)
		p.status = 0
	case status == statusSysExEnd:
		// Конец SysEx без начала
		p.status = 0
		p.stats.Skipped++
	case status > statusSysExStart:
		need := systemDataLen(status)
		if need < 0 {
			// Статусы F4 и F5 не определены стандартом
			p.status = 0
			p.stats.Skipped++
			return msgs
		}
		if need == 0 {
			// Tune Request - сообщение из одного байта
			p.status = 0
			p.stats.Messages++
			return append(msgs, []byte{status})
		}
		p.status = status
		p.need = need
	default:
		p.status = status
		p.need = voiceDataLen(status)
	}
	return msgs
}

// feedSysEx обрабатывает байт внутри SysEx сообщения.
func (p *MidiParser) feedSysEx(b byte, msgs [][]byte) [][]byte {
	switch {
	case b == statusSysExEnd:
		p.inSysEx = false
		if p.overflow {
			p.stats.Oversized++
			return msgs
		}
		msg := make([]byte, 0, len(p.sysex)+1)
		msg = append(msg, p.sysex...)
		msg = append(msg, b)
		p.stats.Messages++
		return append(msgs, msg)
	case b < 0x80:
		if p.overflow {
			return msgs
		}
		// Резервируем место под завершающий F7
		if len(p.sysex) >= MaxEventBytes-1 {
			p.overflow = true
			return msgs
		}
		p.sysex = append(p.sysex, b)
		return msgs
	default:
		// Новый статус обрывает незавершенный SysEx
		p.inSysEx = false
		p.stats.Skipped++
		return p.beginMessage(b, msgs)
	}
}

// voiceDataLen возвращает число data байтов для channel voice статуса.
func voiceDataLen(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0: // Program Change, Channel Pressure
		return 1
	default: // Note Off/On, Poly Pressure, Control Change, Pitch Bend
		return 2
	}
}

// systemDataLen возвращает число data байтов для system common статуса
// или -1 для неопределенных статусов.
func systemDataLen(status byte) int {
	switch status {
	case 0xF1, 0xF3: // MTC Quarter Frame, Song Select
		return 1
	case 0xF2: // Song Position Pointer
		return 2
	case 0xF6: // Tune Request
		return 0
	default: // 0xF4, 0xF5
		return -1
	}
}
