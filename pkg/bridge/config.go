package bridge

import (
	"fmt"
	"time"

	"github.com/arzzra/jack_bridge/pkg/codec"
	"github.com/arzzra/jack_bridge/pkg/transport"
)

// Role задает вид потока и направление, которые обслуживает мост.
type Role int

const (
	// RoleAudioTx - захват аудио из хоста и отправка в multicast группу
	RoleAudioTx Role = iota
	// RoleAudioRx - прием аудио из multicast группы и воспроизведение в хост
	RoleAudioRx
	// RoleMidiTx - захват MIDI событий из хоста и отправка в multicast группу
	RoleMidiTx
	// RoleMidiRx - прием MIDI сообщений из multicast группы и доставка в хост
	RoleMidiRx
)

// String возвращает строковую форму роли, используемую в конфигурационных
// файлах и метриках
func (r Role) String() string {
	switch r {
	case RoleAudioTx:
		return "AudioTransmitter"
	case RoleAudioRx:
		return "AudioReceiver"
	case RoleMidiTx:
		return "MidiTransmitter"
	case RoleMidiRx:
		return "MidiReceiver"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// IsTransmitter сообщает, передает ли роль данные из хоста в сеть
func (r Role) IsTransmitter() bool {
	return r == RoleAudioTx || r == RoleMidiTx
}

// IsAudio сообщает, работает ли роль с аудио потоком
func (r Role) IsAudio() bool {
	return r == RoleAudioTx || r == RoleAudioRx
}

// ParseRole разбирает строковую форму роли из конфигурационного файла
func ParseRole(s string) (Role, error) {
	switch s {
	case "AudioTransmitter":
		return RoleAudioTx, nil
	case "AudioReceiver":
		return RoleAudioRx, nil
	case "MidiTransmitter":
		return RoleMidiTx, nil
	case "MidiReceiver":
		return RoleMidiRx, nil
	default:
		return 0, fmt.Errorf("неизвестный тип моста: %q", s)
	}
}

// Значения по умолчанию для параметров моста
const (
	// DefaultMulticastPort - порт multicast группы по умолчанию
	DefaultMulticastPort = 4000
	// DefaultMulticastTTL - TTL multicast пакетов по умолчанию
	DefaultMulticastTTL = 2
	// DefaultQueueCapacity - емкость очереди между callback и сетевой горутиной
	DefaultQueueCapacity = 64
)

// baseClientName - префикс имени клиента хоста, к которому добавляются
// вид потока, направление и адрес группы
const baseClientName = "JackNetBridge"

// DefaultClientName строит имя клиента хоста для роли и multicast адреса.
// Получается, например, "JackNetBridgeAudioTransmitter_239.0.0.1:4000".
func DefaultClientName(role Role, group string, port int) string {
	name := baseClientName
	if role.IsAudio() {
		name += "Audio"
	} else {
		name += "MIDI"
	}
	if role.IsTransmitter() {
		name += "Transmitter"
	} else {
		name += "Receiver"
	}
	return fmt.Sprintf("%s_%s:%d", name, group, port)
}

// defaultPortName возвращает имя порта хоста по умолчанию:
// передатчики читают из порта "in", приемники пишут в порт "out"
func defaultPortName(role Role) string {
	if role.IsTransmitter() {
		return "in"
	}
	return "out"
}

// Config описывает один мост между портом хоста и multicast группой.
// После заполнения значений по умолчанию и проверки конфигурация не меняется.
type Config struct {
	// Role задает вид потока и направление
	Role Role

	// ClientName - имя клиента хоста. Пустое значение заменяется
	// на DefaultClientName(Role, Group, Port).
	ClientName string
	// PortName - имя порта хоста. Пустое значение заменяется на
	// "in" для передатчиков и "out" для приемников.
	PortName string

	// Group - IPv4 адрес multicast группы
	Group string
	// Port - порт multicast группы (по умолчанию 4000)
	Port int
	// TTL - время жизни multicast пакетов (по умолчанию 2)
	TTL int
	// InterfaceIP - IPv4 адрес локального интерфейса для отправки.
	// Используется только передатчиками.
	InterfaceIP string

	// FrameSize - размер аудио кадра в сэмплах. Используется только
	// аудио передатчиком: накопитель нарезает поток сэмплов на
	// датаграммы по FrameSize сэмплов. Ноль означает размер блока
	// хоста, он берется у клиента при создании моста.
	FrameSize uint32
	// QueueCapacity - емкость очереди между callback процесса и
	// сетевой горутиной (по умолчанию 64)
	QueueCapacity int
	// ReadTimeout - таймаут чтения сокета приемника. Определяет
	// частоту опроса флага остановки (по умолчанию 1 секунда).
	ReadTimeout time.Duration
}

// withDefaults возвращает копию конфигурации с заполненными значениями
// по умолчанию
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultMulticastPort
	}
	if c.TTL == 0 {
		c.TTL = DefaultMulticastTTL
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = transport.DefaultReadTimeout
	}
	if c.ClientName == "" {
		c.ClientName = DefaultClientName(c.Role, c.Group, c.Port)
	}
	if c.PortName == "" {
		c.PortName = defaultPortName(c.Role)
	}
	return c
}

// Validate проверяет конфигурацию после заполнения значений по умолчанию
func (c Config) Validate() error {
	if c.Role < RoleAudioTx || c.Role > RoleMidiRx {
		return fmt.Errorf("недопустимая роль моста: %d", int(c.Role))
	}
	if c.Group == "" {
		return fmt.Errorf("не задана multicast группа")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("недопустимый порт: %d", c.Port)
	}
	if c.TTL < 0 || c.TTL > 255 {
		return fmt.Errorf("недопустимый TTL: %d", c.TTL)
	}
	if c.Role.IsTransmitter() && c.InterfaceIP == "" {
		return fmt.Errorf("для передатчика не задан IP интерфейса")
	}
	if c.Role == RoleAudioTx && c.FrameSize > 0 {
		if err := validateFrameSize(c.FrameSize); err != nil {
			return err
		}
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("емкость очереди должна быть положительной: %d", c.QueueCapacity)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("таймаут чтения должен быть положительным: %v", c.ReadTimeout)
	}
	return nil
}

// validateFrameSize проверяет, что кадр из frameSize сэмплов помещается
// в одну датаграмму
func validateFrameSize(frameSize uint32) error {
	if frameSize == 0 {
		return fmt.Errorf("размер кадра должен быть положительным")
	}
	if int(frameSize)*codec.BytesPerSample > transport.MaxDatagramSize {
		return fmt.Errorf("кадр из %d сэмплов (%d байт) не помещается в датаграмму (%d байт)",
			frameSize, int(frameSize)*codec.BytesPerSample, transport.MaxDatagramSize)
	}
	return nil
}
