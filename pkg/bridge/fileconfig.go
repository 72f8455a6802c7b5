package bridge

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arzzra/jack_bridge/pkg/transport"
)

// bridgeEntry - одна запись конфигурационного файла. Ключ записи
// имеет вид "client:port" и задает имена клиента и порта хоста.
type bridgeEntry struct {
	// Type - роль моста: AudioTransmitter, AudioReceiver,
	// MidiTransmitter или MidiReceiver
	Type string `yaml:"type"`
	// MulticastGroup - IPv4 адрес multicast группы
	MulticastGroup string `yaml:"multicast_group"`
	// InterfaceName - имя интерфейса отправки ("eth0") или его
	// IPv4 адрес. Нужен только передатчикам.
	InterfaceName string `yaml:"interface_name"`
	// MulticastTTL - TTL пакетов, ноль означает значение по умолчанию
	MulticastTTL int `yaml:"multicast_ttl"`
	// MulticastPort - порт группы, ноль означает значение по умолчанию
	MulticastPort int `yaml:"multicast_port"`
	// BufferSize - размер аудио кадра в сэмплах, ноль означает
	// размер блока хоста
	BufferSize uint32 `yaml:"buffer_size"`
	// QueueCapacity - емкость очереди моста, ноль означает значение
	// по умолчанию
	QueueCapacity int `yaml:"queue_capacity"`
}

// LoadConfigFile читает конфигурацию мостов из YAML файла
func LoadConfigFile(path string, logger *slog.Logger) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение файла конфигурации: %w", err)
	}
	return ParseConfig(data, logger)
}

// ParseConfig разбирает конфигурацию мостов: YAML отображение, где
// ключ "client:port" задает имена клиента и порта хоста, а значение
// описывает роль и сетевые параметры. Записи с неизвестным типом
// пропускаются с предупреждением. Мосты возвращаются в порядке
// отсортированных ключей.
func ParseConfig(data []byte, logger *slog.Logger) ([]Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var file map[string]bridgeEntry
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("разбор конфигурации: %w", err)
	}

	keys := make([]string, 0, len(file))
	for key := range file {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	cfgs := make([]Config, 0, len(file))
	for _, key := range keys {
		entry := file[key]

		role, err := ParseRole(entry.Type)
		if err != nil {
			logger.Warn("Неизвестный тип моста, запись пропущена",
				slog.String("entry", key),
				slog.String("type", entry.Type))
			continue
		}

		cfg, err := entryToConfig(key, role, entry)
		if err != nil {
			return nil, fmt.Errorf("запись %q: %w", key, err)
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

// entryToConfig превращает запись файла в конфигурацию моста
func entryToConfig(key string, role Role, entry bridgeEntry) (Config, error) {
	clientName, portName, ok := strings.Cut(key, ":")
	if !ok || clientName == "" || portName == "" {
		return Config{}, fmt.Errorf("ключ записи должен иметь вид client:port")
	}

	cfg := Config{
		Role:          role,
		ClientName:    clientName,
		PortName:      portName,
		Group:         entry.MulticastGroup,
		Port:          entry.MulticastPort,
		TTL:           entry.MulticastTTL,
		FrameSize:     entry.BufferSize,
		QueueCapacity: entry.QueueCapacity,
	}

	if role.IsTransmitter() {
		ip, err := resolveInterfaceIP(entry.InterfaceName)
		if err != nil {
			return Config{}, err
		}
		cfg.InterfaceIP = ip
	}
	return cfg, nil
}

// resolveInterfaceIP принимает IPv4 адрес либо имя сетевого интерфейса
// и возвращает адрес
func resolveInterfaceIP(nameOrIP string) (string, error) {
	if nameOrIP == "" {
		return "", fmt.Errorf("не задан интерфейс отправки")
	}
	if ip := net.ParseIP(nameOrIP); ip != nil {
		return nameOrIP, nil
	}
	ip, err := transport.InterfaceIPv4(nameOrIP)
	if err != nil {
		return "", err
	}
	return ip.String(), nil
}
