package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/jack_bridge/pkg/transport"
)

// TestParseRole проверяет разбор строковой формы роли.
func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		want  Role
		ok    bool
	}{
		{"AudioTransmitter", RoleAudioTx, true},
		{"AudioReceiver", RoleAudioRx, true},
		{"MidiTransmitter", RoleMidiTx, true},
		{"MidiReceiver", RoleMidiRx, true},
		{"VideoTransmitter", 0, false},
		{"audiotransmitter", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if !tt.ok {
				require.Error(t, err, "неизвестный тип должен давать ошибку")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestRoleString проверяет строковую форму и поведение на мусорном значении
func TestRoleString(t *testing.T) {
	assert.Equal(t, "AudioTransmitter", RoleAudioTx.String())
	assert.Equal(t, "AudioReceiver", RoleAudioRx.String())
	assert.Equal(t, "MidiTransmitter", RoleMidiTx.String())
	assert.Equal(t, "MidiReceiver", RoleMidiRx.String())
	assert.Equal(t, "Role(9)", Role(9).String())
}

// TestRolePredicates проверяет направление и вид потока для каждой роли
func TestRolePredicates(t *testing.T) {
	assert.True(t, RoleAudioTx.IsTransmitter())
	assert.True(t, RoleMidiTx.IsTransmitter())
	assert.False(t, RoleAudioRx.IsTransmitter())
	assert.False(t, RoleMidiRx.IsTransmitter())

	assert.True(t, RoleAudioTx.IsAudio())
	assert.True(t, RoleAudioRx.IsAudio())
	assert.False(t, RoleMidiTx.IsAudio())
	assert.False(t, RoleMidiRx.IsAudio())
}

// TestDefaultClientName проверяет составление имени клиента хоста
// из роли и адреса группы.
func TestDefaultClientName(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want string
	}{
		{"аудио передатчик", RoleAudioTx, "JackNetBridgeAudioTransmitter_239.0.0.1:4000"},
		{"аудио приемник", RoleAudioRx, "JackNetBridgeAudioReceiver_239.0.0.1:4000"},
		{"MIDI передатчик", RoleMidiTx, "JackNetBridgeMIDITransmitter_239.0.0.1:4000"},
		{"MIDI приемник", RoleMidiRx, "JackNetBridgeMIDIReceiver_239.0.0.1:4000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultClientName(tt.role, "239.0.0.1", 4000))
		})
	}
}

// TestConfigWithDefaults проверяет заполнение значений по умолчанию
func TestConfigWithDefaults(t *testing.T) {
	t.Run("пустая конфигурация получает все умолчания", func(t *testing.T) {
		cfg := Config{Role: RoleAudioRx, Group: "239.0.0.1"}.withDefaults()

		assert.Equal(t, DefaultMulticastPort, cfg.Port)
		assert.Equal(t, DefaultMulticastTTL, cfg.TTL)
		assert.Equal(t, DefaultQueueCapacity, cfg.QueueCapacity)
		assert.Equal(t, transport.DefaultReadTimeout, cfg.ReadTimeout)
		assert.Equal(t, "JackNetBridgeAudioReceiver_239.0.0.1:4000", cfg.ClientName)
		assert.Equal(t, "out", cfg.PortName, "приемник пишет в порт out")
		assert.Zero(t, cfg.FrameSize, "размер кадра разрешается по блоку хоста позже")
	})

	t.Run("передатчик получает порт in", func(t *testing.T) {
		cfg := Config{Role: RoleMidiTx, Group: "239.0.0.2"}.withDefaults()
		assert.Equal(t, "in", cfg.PortName)
	})

	t.Run("явные значения не затираются", func(t *testing.T) {
		cfg := Config{
			Role:          RoleAudioTx,
			ClientName:    "Synth",
			PortName:      "capture",
			Group:         "239.0.0.1",
			Port:          5005,
			TTL:           16,
			QueueCapacity: 8,
			ReadTimeout:   250 * time.Millisecond,
		}.withDefaults()

		assert.Equal(t, "Synth", cfg.ClientName)
		assert.Equal(t, "capture", cfg.PortName)
		assert.Equal(t, 5005, cfg.Port)
		assert.Equal(t, 16, cfg.TTL)
		assert.Equal(t, 8, cfg.QueueCapacity)
		assert.Equal(t, 250*time.Millisecond, cfg.ReadTimeout)
	})
}

// TestConfigValidate проверяет отбраковку некорректных конфигураций
func TestConfigValidate(t *testing.T) {
	valid := Config{
		Role:        RoleAudioTx,
		Group:       "239.0.0.1",
		InterfaceIP: "127.0.0.1",
	}.withDefaults()
	require.NoError(t, valid.Validate(), "эталонная конфигурация должна проходить проверку")

	tests := []struct {
		name   string
		mutate func(c Config) Config
	}{
		{"роль вне диапазона", func(c Config) Config { c.Role = Role(42); return c }},
		{"пустая группа", func(c Config) Config { c.Group = ""; return c }},
		{"нулевой порт", func(c Config) Config { c.Port = 0; return c }},
		{"порт за диапазоном", func(c Config) Config { c.Port = 70000; return c }},
		{"отрицательный TTL", func(c Config) Config { c.TTL = -1; return c }},
		{"TTL за диапазоном", func(c Config) Config { c.TTL = 256; return c }},
		{"передатчик без интерфейса", func(c Config) Config { c.InterfaceIP = ""; return c }},
		{"кадр не помещается в датаграмму", func(c Config) Config { c.FrameSize = 369; return c }},
		{"нулевая емкость очереди", func(c Config) Config { c.QueueCapacity = 0; return c }},
		{"нулевой таймаут чтения", func(c Config) Config { c.ReadTimeout = 0; return c }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(valid).Validate()
			require.Error(t, err)
			t.Logf("ошибка проверки: %v", err)
		})
	}

	t.Run("приемнику интерфейс не нужен", func(t *testing.T) {
		cfg := Config{Role: RoleAudioRx, Group: "239.0.0.1"}.withDefaults()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("максимальный кадр в пределах датаграммы", func(t *testing.T) {
		cfg := valid
		cfg.FrameSize = uint32(transport.MaxDatagramSize / 4)
		assert.NoError(t, cfg.Validate())
	})
}
