// Команда jack_bridge пробрасывает аудио и MIDI порты хоста через
// multicast группы. Одиночный мост описывается флагами (-mode), набор
// мостов - YAML файлом (-config).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/jack_bridge/pkg/bridge"
	"github.com/arzzra/jack_bridge/pkg/host"
	"github.com/arzzra/jack_bridge/pkg/host/simEngine"
	"github.com/arzzra/jack_bridge/pkg/transport"
)

type cliOptions struct {
	mode       string
	configPath string

	clientName string
	portName   string

	group      string
	port       int
	ttl        int
	ifaceIP    string
	ifaceName  string
	bufferSize uint
	queueCap   int

	engineKind string
	simBlock   uint
	simRate    uint

	metricsAddr string
	logLevel    string
}

func parseFlags() cliOptions {
	var opts cliOptions

	flag.StringVar(&opts.mode, "mode", "", "Режим одиночного моста: audio_send, audio_recv, midi_send, midi_recv")
	flag.StringVar(&opts.configPath, "config", "", "YAML файл с описанием мостов, исключает -mode")

	flag.StringVar(&opts.clientName, "jack-client", "", "Имя клиента хоста (по умолчанию строится из режима и группы)")
	flag.StringVar(&opts.portName, "jack-port", "", "Имя порта хоста (по умолчанию in у передатчиков, out у приемников)")

	flag.StringVar(&opts.group, "multicast-group", "", "Адрес multicast группы")
	flag.IntVar(&opts.port, "multicast-port", bridge.DefaultMulticastPort, "Порт multicast группы")
	flag.IntVar(&opts.ttl, "multicast-ttl", bridge.DefaultMulticastTTL, "TTL multicast пакетов")
	flag.StringVar(&opts.ifaceIP, "interface-ip", "", "IP интерфейса отправки (режимы *_send)")
	flag.StringVar(&opts.ifaceName, "interface", "", "Имя интерфейса отправки, если не задан -interface-ip")
	flag.UintVar(&opts.bufferSize, "buffer-size", 0, "Размер аудио кадра в сэмплах (0 - размер блока хоста)")
	flag.IntVar(&opts.queueCap, "queue-capacity", bridge.DefaultQueueCapacity, "Емкость очереди моста")

	flag.StringVar(&opts.engineKind, "engine", "sim", "Аудио движок: sim (встроенный тактовый симулятор)")
	flag.UintVar(&opts.simBlock, "sim-block", 256, "Размер блока симулятора в сэмплах")
	flag.UintVar(&opts.simRate, "sim-rate", 48000, "Частота дискретизации симулятора")

	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Адрес HTTP эндпоинта метрик Prometheus (пусто - выключен)")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Уровень журнала: debug, info, warn, error")

	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	logger := setupLogger(opts.logLevel)
	slog.SetDefault(logger)

	if opts.mode == "" && opts.configPath == "" {
		fmt.Fprintln(os.Stderr, "Нужен -mode для одиночного моста или -config для набора мостов")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(opts, logger); err != nil {
		logger.Error("Завершение с ошибкой", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(opts cliOptions, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgs, err := bridgeConfigs(opts, logger)
	if err != nil {
		return err
	}

	factory, err := hostFactory(ctx, opts)
	if err != nil {
		return err
	}

	var metrics *bridge.Metrics
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = bridge.NewMetrics(reg)
		go serveMetrics(ctx, opts.metricsAddr, reg, logger)
	}

	mgr, err := bridge.NewManager(bridge.ManagerOptions{
		Factory: factory,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	if err := mgr.Build(cfgs); err != nil {
		return err
	}
	logger.Info("Мосты собраны",
		slog.Int("count", mgr.Count()),
		slog.String("bridges", mgr.Describe()))

	return mgr.Run(ctx)
}

// bridgeConfigs собирает список мостов из файла или из флагов
// одиночного режима
func bridgeConfigs(opts cliOptions, logger *slog.Logger) ([]bridge.Config, error) {
	if opts.configPath != "" && opts.mode != "" {
		return nil, fmt.Errorf("флаги -config и -mode взаимоисключающие")
	}

	if opts.configPath != "" {
		cfgs, err := bridge.LoadConfigFile(opts.configPath, logger)
		if err != nil {
			return nil, err
		}
		if len(cfgs) == 0 {
			return nil, fmt.Errorf("файл %s не содержит ни одного моста", opts.configPath)
		}
		return cfgs, nil
	}

	cfg, err := singleConfig(opts)
	if err != nil {
		return nil, err
	}
	return []bridge.Config{cfg}, nil
}

// singleConfig строит конфигурацию моста из флагов одиночного режима
func singleConfig(opts cliOptions) (bridge.Config, error) {
	role, err := parseMode(opts.mode)
	if err != nil {
		return bridge.Config{}, err
	}

	cfg := bridge.Config{
		Role:          role,
		ClientName:    opts.clientName,
		PortName:      opts.portName,
		Group:         opts.group,
		Port:          opts.port,
		TTL:           opts.ttl,
		InterfaceIP:   opts.ifaceIP,
		FrameSize:     uint32(opts.bufferSize),
		QueueCapacity: opts.queueCap,
	}

	if role.IsTransmitter() && cfg.InterfaceIP == "" && opts.ifaceName != "" {
		ip, err := transport.InterfaceIPv4(opts.ifaceName)
		if err != nil {
			return bridge.Config{}, err
		}
		cfg.InterfaceIP = ip.String()
	}
	return cfg, nil
}

// parseMode переводит режим командной строки в роль моста
func parseMode(mode string) (bridge.Role, error) {
	switch mode {
	case "audio_send":
		return bridge.RoleAudioTx, nil
	case "audio_recv":
		return bridge.RoleAudioRx, nil
	case "midi_send":
		return bridge.RoleMidiTx, nil
	case "midi_recv":
		return bridge.RoleMidiRx, nil
	default:
		return 0, fmt.Errorf("неизвестный режим: %q (доступны audio_send, audio_recv, midi_send, midi_recv)", mode)
	}
}

// hostFactory возвращает фабрику клиентов выбранного движка. Встроен
// только тактовый симулятор; клиент реального JACK подключается
// внешней реализацией host.Client.
func hostFactory(ctx context.Context, opts cliOptions) (host.Factory, error) {
	switch opts.engineKind {
	case "sim":
		blockSize := uint32(opts.simBlock)
		sampleRate := uint32(opts.simRate)
		if blockSize == 0 || sampleRate == 0 {
			return nil, fmt.Errorf("размер блока и частота симулятора должны быть положительными")
		}
		return func(clientName string) (host.Client, error) {
			eng := simEngine.New(clientName, blockSize, sampleRate)
			go eng.Run(ctx)
			return eng, nil
		}, nil
	default:
		return nil, fmt.Errorf("неизвестный движок: %q (доступен sim)", opts.engineKind)
	}
}

// serveMetrics отдает счетчики Prometheus на /metrics до отмены контекста
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Остановка сервера метрик", slog.Any("error", err))
		}
	}()

	logger.Info("Метрики доступны", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Сервер метрик", slog.Any("error", err))
	}
}

// setupLogger настраивает текстовый журнал с заданным уровнем
func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
