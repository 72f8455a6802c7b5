package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/arzzra/jack_bridge/pkg/host"
)

// disposable освобождает ресурсы моста, который не был запущен.
// Реализуется всеми ролями; используется менеджером при откате.
type disposable interface {
	dispose()
}

// ManagerOptions задает зависимости менеджера мостов
type ManagerOptions struct {
	// Factory создает клиентов хоста для мостов. Обязательное поле.
	Factory host.Factory
	// Logger - журнал менеджера и мостов. nil означает slog.Default().
	Logger *slog.Logger
	// Metrics - общие счетчики мостов. nil отключает мониторинг.
	Metrics *Metrics
}

// Manager владеет набором мостов одного процесса: строит их по
// конфигурации, запускает каждый в собственной горутине и
// останавливает все по одному сигналу.
type Manager struct {
	factory host.Factory
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	bridges []Bridge
	started bool
}

// NewManager создает менеджер мостов
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("не задана фабрика клиентов хоста")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory: opts.Factory,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Build создает мосты по списку конфигураций. При ошибке любой записи
// уже созданные мосты освобождаются и менеджер остается в прежнем
// состоянии.
func (m *Manager) Build(cfgs []Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("менеджер уже запущен")
	}

	var built []Bridge
	for _, cfg := range cfgs {
		cfg = cfg.withDefaults()
		b, err := m.newBridge(cfg)
		if err != nil {
			for _, prev := range built {
				if d, ok := prev.(disposable); ok {
					d.dispose()
				}
			}
			return fmt.Errorf("мост %s:%s: %w", cfg.ClientName, cfg.PortName, err)
		}
		m.logger.Debug("Мост создан", slog.String("bridge", b.Describe()))
		built = append(built, b)
	}

	m.bridges = append(m.bridges, built...)
	return nil
}

// newBridge создает клиента хоста и мост нужной роли. Клиент
// закрывается здесь же, если мост собрать не удалось.
func (m *Manager) newBridge(cfg Config) (Bridge, error) {
	cfg = cfg.withDefaults()

	client, err := m.factory(cfg.ClientName)
	if err != nil {
		return nil, fmt.Errorf("создание клиента хоста: %w", err)
	}

	var b Bridge
	switch cfg.Role {
	case RoleAudioTx:
		b, err = NewAudioTransmitter(cfg, client, m.logger, m.metrics)
	case RoleAudioRx:
		b, err = NewAudioReceiver(cfg, client, m.logger, m.metrics)
	case RoleMidiTx:
		b, err = NewMidiTransmitter(cfg, client, m.logger, m.metrics)
	case RoleMidiRx:
		b, err = NewMidiReceiver(cfg, client, m.logger, m.metrics)
	default:
		client.Close()
		return nil, fmt.Errorf("недопустимая роль моста: %d", int(cfg.Role))
	}
	if err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}

// StartAll запускает все мосты, каждый в собственной горутине, и
// дожидается завершения запусков. Ошибка одного моста не мешает
// остальным: запустившиеся продолжают работать.
func (m *Manager) StartAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("менеджер уже запущен")
	}
	m.started = true

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, b := range m.bridges {
		wg.Add(1)
		go func(b Bridge) {
			defer wg.Done()
			if err := b.Start(); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", b.Describe(), err))
				errMu.Unlock()
			}
		}(b)
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("ошибки запуска мостов: %v", errs)
	}
	return nil
}

// StopAll останавливает работающие мосты параллельно и освобождает
// мосты, которые так и не были запущены. Повторные вызовы безопасны.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, b := range m.bridges {
		switch b.State() {
		case StateRunning:
			wg.Add(1)
			go func(b Bridge) {
				defer wg.Done()
				if err := b.Stop(); err != nil {
					errMu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", b.Describe(), err))
					errMu.Unlock()
				}
			}(b)
		case StateCreated:
			if d, ok := b.(disposable); ok {
				d.dispose()
			}
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("ошибки остановки мостов: %v", errs)
	}
	return nil
}

// Run запускает все мосты и работает до отмены контекста, после чего
// останавливает их. Возвращает ошибки запуска или остановки.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.StartAll(); err != nil {
		// Частично запущенные мосты гасим сразу
		if stopErr := m.StopAll(); stopErr != nil {
			m.logger.Error("Остановка после неудачного запуска",
				slog.Any("error", stopErr))
		}
		return err
	}
	m.logger.Info("Менеджер запущен", slog.Int("bridges", m.Count()))

	<-ctx.Done()
	m.logger.Info("Получен сигнал остановки")
	return m.StopAll()
}

// Count возвращает число мостов менеджера
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bridges)
}

// Bridges возвращает мосты в порядке их создания
func (m *Manager) Bridges() []Bridge {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Bridge, len(m.bridges))
	copy(out, m.bridges)
	return out
}

// Describe возвращает сводку по всем мостам менеджера
func (m *Manager) Describe() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bridges) == 0 {
		return "мостов нет"
	}
	parts := make([]string, 0, len(m.bridges))
	for _, b := range m.bridges {
		parts = append(parts, b.Describe())
	}
	return strings.Join(parts, "; ")
}
