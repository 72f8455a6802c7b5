// Package bridge связывает порты аудио хоста с UDP multicast группами:
// четыре роли мостов пересылают аудио блоки и MIDI события между
// real-time callback'ом хоста и сетью.
//
// Пакет стыкует два домена времени. Callback процесса хоста работает
// с жестким дедлайном и не может ни блокироваться, ни выполнять
// сетевой ввод-вывод; сетевые операции живут в отдельных горутинах с
// неограниченной задержкой. Между ними стоит ограниченная очередь с
// вытеснением старых данных: свежий звук важнее задержанного.
//
// # Роли мостов
//
//   - AudioTransmitter - захват аудио блоков из порта хоста, нарезка
//     на кадры фиксированного размера и рассылка в multicast группу
//   - AudioReceiver - прием аудио кадров из группы и воспроизведение
//     через порт хоста; пустая очередь дает тишину, а не старые данные
//   - MidiTransmitter - захват MIDI событий и рассылка по одной
//     датаграмме на событие
//   - MidiReceiver - восстановление границ MIDI сообщений в принятом
//     потоке и доставка целых сообщений в порт хоста
//
// # Жизненный цикл
//
// Каждый мост проходит состояния created, running, stopping, stopped.
// Мост одноразовый: повторный Start после Stop невозможен. Остановка
// кооперативная и занимает не более таймаута чтения сокета.
//
// # Быстрый старт
//
//	cfg := bridge.Config{
//	    Group:       "239.0.0.1",
//	    InterfaceIP: "192.168.1.10",
//	}
//	tx, err := bridge.NewAudioTransmitter(cfg, client, nil, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := tx.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer tx.Stop()
//
// Несколько мостов в одном процессе обслуживает Manager: он строит
// мосты по YAML конфигурации, запускает каждый в собственной горутине
// и останавливает все по одному сигналу.
//
//	cfgs, err := bridge.LoadConfigFile("bridges.yaml", logger)
//	mgr, err := bridge.NewManager(bridge.ManagerOptions{Factory: factory})
//	err = mgr.Build(cfgs)
//	err = mgr.Run(ctx)
//
// # Сетевой формат
//
// Аудио передается сырыми float32 сэмплами little-endian без
// заголовков; MIDI - сырыми байтами сообщений. Поток не несет ни
// номеров последовательности, ни меток времени, поэтому потери и
// переупорядочивание датаграмм не компенсируются.
package bridge
