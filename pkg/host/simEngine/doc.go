// Package simEngine предоставляет симулированный аудио хост для
// тестирования и loopback прогонов без настоящего аудио сервера.
//
// Этот пакет реализует host.Client целиком в памяти: блоки
// обрабатываются не по таймеру звуковой карты, а по явному вызову
// RunProcess или по тикеру в Run.
//
// Основные возможности:
//   - Полная совместимость с интерфейсом host.Client
//   - Порты всех четырех видов с тестовыми ручками для подачи
//     сэмплов и MIDI событий и чтения результатов callback'а
//   - Детерминированный прогон блоков из теста
//   - Эмуляция ошибок регистрации портов
//
// Пример использования:
//
//	eng := simEngine.New("bridge", 256, 48000)
//
//	// Регистрация порта и callback'а выполняется мостом
//	tx, _ := bridge.NewAudioTransmitter(cfg, eng, logger, nil)
//	tx.Start()
//
//	// Подача блока сэмплов через callback
//	eng.AudioIn().SetSamples(samples)
//	eng.RunProcess()
package simEngine
