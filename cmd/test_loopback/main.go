// Ручной прогон мостов через настоящие multicast сокеты на одной
// машине: аудио передатчик и приемник, затем MIDI пара. Прогон
// проверяет точную доставку кадра 256 сэмплов по 1.0 и байтов MIDI
// события, печатает статистику очередей и завершается ненулевым
// кодом при провале.
//
// Для работы нужен интерфейс с поддержкой multicast; по умолчанию
// используется loopback.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/arzzra/jack_bridge/pkg/bridge"
	"github.com/arzzra/jack_bridge/pkg/host/simEngine"
)

func main() {
	var (
		group   = flag.String("group", "239.0.0.1", "Multicast группа прогона")
		port    = flag.Int("port", 4000, "Порт аудио группы (MIDI берет следующий)")
		iface   = flag.String("interface-ip", "127.0.0.1", "IP интерфейса отправки")
		timeout = flag.Duration("timeout", 5*time.Second, "Лимит ожидания доставки")
	)
	flag.Parse()

	log.Printf("=== Аудио мост через %s:%d ===", *group, *port)
	if err := runAudio(*group, *port, *iface, *timeout); err != nil {
		log.Printf("АУДИО: ПРОВАЛ: %v", err)
		os.Exit(1)
	}
	log.Printf("АУДИО: ОК")

	log.Printf("=== MIDI мост через %s:%d ===", *group, *port+1)
	if err := runMidi(*group, *port+1, *iface, *timeout); err != nil {
		log.Printf("MIDI: ПРОВАЛ: %v", err)
		os.Exit(1)
	}
	log.Printf("MIDI: ОК")

	log.Printf("Все прогоны завершились успешно")
}

// runAudio гоняет кадр из 256 сэмплов по 1.0 через пару мостов.
// Передача повторяется до первой доставки: вступление в группу
// может занять время.
func runAudio(group string, port int, ifaceIP string, timeout time.Duration) error {
	const frameSamples = 256

	rxEng := simEngine.New("loopback-audio-rx", frameSamples, 48000)
	rx, err := bridge.NewAudioReceiver(bridge.Config{
		Role:        bridge.RoleAudioRx,
		Group:       group,
		Port:        port,
		ReadTimeout: 200 * time.Millisecond,
	}, rxEng, nil, nil)
	if err != nil {
		rxEng.Close()
		return fmt.Errorf("создание приемника: %w", err)
	}
	defer stopIfRunning(rx)

	if err := rx.Start(); err != nil {
		return fmt.Errorf("запуск приемника: %w", err)
	}

	txEng := simEngine.New("loopback-audio-tx", frameSamples, 48000)
	tx, err := bridge.NewAudioTransmitter(bridge.Config{
		Role:        bridge.RoleAudioTx,
		Group:       group,
		Port:        port,
		InterfaceIP: ifaceIP,
		FrameSize:   frameSamples,
	}, txEng, nil, nil)
	if err != nil {
		txEng.Close()
		return fmt.Errorf("создание передатчика: %w", err)
	}
	defer stopIfRunning(tx)

	if err := tx.Start(); err != nil {
		return fmt.Errorf("запуск передатчика: %w", err)
	}

	samples := make([]float32, frameSamples)
	for i := range samples {
		samples[i] = 1.0
	}
	txEng.AudioIn().SetSamples(samples)

	// Первый блок выделяет буфер вывода приемника
	rxEng.RunProcess()

	deadline := time.Now().Add(timeout)
	for rx.QueueStats().Pushed == 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("кадр не дошел до приемника за %v", timeout)
		}
		txEng.RunProcess()
		time.Sleep(20 * time.Millisecond)
	}

	// Грязный буфер: доставленный кадр должен перекрыть его целиком
	rxEng.AudioOut().Fill(7)
	rxEng.RunProcess()
	for i, v := range rxEng.AudioOut().LastBlock() {
		if v != 1.0 {
			return fmt.Errorf("сэмпл %d: ожидался 1.0, получен %v", i, v)
		}
	}

	log.Printf("очередь передатчика: %+v", tx.QueueStats())
	log.Printf("очередь приемника:   %+v", rx.QueueStats())

	if err := tx.Stop(); err != nil {
		return fmt.Errorf("остановка передатчика: %w", err)
	}
	if err := rx.Stop(); err != nil {
		return fmt.Errorf("остановка приемника: %w", err)
	}
	return nil
}

// runMidi гоняет note on через пару MIDI мостов и сверяет байты
func runMidi(group string, port int, ifaceIP string, timeout time.Duration) error {
	rxEng := simEngine.New("loopback-midi-rx", 256, 48000)
	rx, err := bridge.NewMidiReceiver(bridge.Config{
		Role:        bridge.RoleMidiRx,
		Group:       group,
		Port:        port,
		ReadTimeout: 200 * time.Millisecond,
	}, rxEng, nil, nil)
	if err != nil {
		rxEng.Close()
		return fmt.Errorf("создание приемника: %w", err)
	}
	defer stopIfRunning(rx)

	if err := rx.Start(); err != nil {
		return fmt.Errorf("запуск приемника: %w", err)
	}

	txEng := simEngine.New("loopback-midi-tx", 256, 48000)
	tx, err := bridge.NewMidiTransmitter(bridge.Config{
		Role:        bridge.RoleMidiTx,
		Group:       group,
		Port:        port,
		InterfaceIP: ifaceIP,
	}, txEng, nil, nil)
	if err != nil {
		txEng.Close()
		return fmt.Errorf("создание передатчика: %w", err)
	}
	defer stopIfRunning(tx)

	if err := tx.Start(); err != nil {
		return fmt.Errorf("запуск передатчика: %w", err)
	}

	noteOn := []byte{0x90, 0x3C, 0x64}

	deadline := time.Now().Add(timeout)
	for rx.QueueStats().Pushed == 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("событие не дошло до приемника за %v", timeout)
		}
		txEng.MidiIn().QueueEvent(0, noteOn)
		txEng.RunProcess()
		time.Sleep(20 * time.Millisecond)
	}

	rxEng.RunProcess()
	events := rxEng.MidiOut().BlockEvents()
	if len(events) == 0 {
		return fmt.Errorf("блок не доставил ни одного события")
	}
	for _, ev := range events {
		if !bytes.Equal(ev.Data, noteOn) {
			return fmt.Errorf("байты события искажены: % X", ev.Data)
		}
	}

	log.Printf("очередь передатчика: %+v", tx.QueueStats())
	log.Printf("очередь приемника:   %+v", rx.QueueStats())

	if err := tx.Stop(); err != nil {
		return fmt.Errorf("остановка передатчика: %w", err)
	}
	if err := rx.Stop(); err != nil {
		return fmt.Errorf("остановка приемника: %w", err)
	}
	log.Printf("статистика разбора MIDI: %+v", rx.ParserStats())
	return nil
}

// stopIfRunning гасит мост, не остановленный основным путем прогона
func stopIfRunning(b bridge.Bridge) {
	if b.State() == bridge.StateRunning {
		if err := b.Stop(); err != nil {
			log.Printf("остановка моста %s: %v", b.Describe(), err)
		}
	}
}
