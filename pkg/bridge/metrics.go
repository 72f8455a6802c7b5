package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Имена меток метрик: роль моста и имя клиента хоста
var metricLabels = []string{"role", "client"}

// Metrics собирает счетчики всех мостов процесса для экспорта
// в Prometheus. Nil указатель безопасен: все методы превращаются
// в no-op, мосты работают без мониторинга.
type Metrics struct {
	datagramsSent     *prometheus.CounterVec
	bytesSent         *prometheus.CounterVec
	datagramsReceived *prometheus.CounterVec
	bytesReceived     *prometheus.CounterVec
	sendErrors        *prometheus.CounterVec
	receiveErrors     *prometheus.CounterVec
	queueDrops        *prometheus.CounterVec
	underruns         *prometheus.CounterVec
	malformedPayloads *prometheus.CounterVec
	midiEventsIn      *prometheus.CounterVec
	midiEventsOut     *prometheus.CounterVec
	bridgesActive     prometheus.Gauge
}

// NewMetrics создает и регистрирует счетчики в переданном реестре.
// При reg == nil возвращает nil: сбор метрик отключен.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)

	counterVec := func(name, help string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jack_bridge",
			Name:      name,
			Help:      help,
		}, metricLabels)
	}

	return &Metrics{
		datagramsSent:     counterVec("datagrams_sent_total", "Total number of datagrams sent to the multicast group"),
		bytesSent:         counterVec("bytes_sent_total", "Total number of payload bytes sent to the multicast group"),
		datagramsReceived: counterVec("datagrams_received_total", "Total number of datagrams received from the multicast group"),
		bytesReceived:     counterVec("bytes_received_total", "Total number of payload bytes received from the multicast group"),
		sendErrors:        counterVec("send_errors_total", "Total number of failed datagram sends"),
		receiveErrors:     counterVec("receive_errors_total", "Total number of failed datagram receives, read timeouts excluded"),
		queueDrops:        counterVec("queue_drops_total", "Total number of payloads evicted from the bridge queue"),
		underruns:         counterVec("underruns_total", "Total number of output blocks zero-filled because the queue was empty"),
		malformedPayloads: counterVec("malformed_payloads_total", "Total number of malformed fragments detected in received payloads"),
		midiEventsIn:      counterVec("midi_events_in_total", "Total number of MIDI events captured from the host"),
		midiEventsOut:     counterVec("midi_events_out_total", "Total number of MIDI events delivered to the host"),
		bridgesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "jack_bridge",
			Name:      "bridges_active",
			Help:      "Number of bridges currently in the running state",
		}),
	}
}

// ForBridge возвращает счетчики с метками конкретного моста.
// На nil приемнике возвращает nil.
func (m *Metrics) ForBridge(cfg Config) *RoleMetrics {
	if m == nil {
		return nil
	}
	labels := prometheus.Labels{
		"role":   cfg.Role.String(),
		"client": cfg.ClientName,
	}
	return &RoleMetrics{
		parent:            m,
		datagramsSent:     m.datagramsSent.With(labels),
		bytesSent:         m.bytesSent.With(labels),
		datagramsReceived: m.datagramsReceived.With(labels),
		bytesReceived:     m.bytesReceived.With(labels),
		sendErrors:        m.sendErrors.With(labels),
		receiveErrors:     m.receiveErrors.With(labels),
		queueDrops:        m.queueDrops.With(labels),
		underruns:         m.underruns.With(labels),
		malformedPayloads: m.malformedPayloads.With(labels),
		midiEventsIn:      m.midiEventsIn.With(labels),
		midiEventsOut:     m.midiEventsOut.With(labels),
	}
}

// RoleMetrics - счетчики одного моста с зафиксированными метками.
// Nil указатель безопасен. Методы сводятся к атомарным инкрементам
// и пригодны для вызова из callback'а процесса.
type RoleMetrics struct {
	parent            *Metrics
	datagramsSent     prometheus.Counter
	bytesSent         prometheus.Counter
	datagramsReceived prometheus.Counter
	bytesReceived     prometheus.Counter
	sendErrors        prometheus.Counter
	receiveErrors     prometheus.Counter
	queueDrops        prometheus.Counter
	underruns         prometheus.Counter
	malformedPayloads prometheus.Counter
	midiEventsIn      prometheus.Counter
	midiEventsOut     prometheus.Counter
}

// DatagramSent учитывает успешно отправленную датаграмму размером n байт
func (rm *RoleMetrics) DatagramSent(n int) {
	if rm == nil {
		return
	}
	rm.datagramsSent.Inc()
	rm.bytesSent.Add(float64(n))
}

// DatagramReceived учитывает принятую датаграмму размером n байт
func (rm *RoleMetrics) DatagramReceived(n int) {
	if rm == nil {
		return
	}
	rm.datagramsReceived.Inc()
	rm.bytesReceived.Add(float64(n))
}

// SendError учитывает неудачную отправку
func (rm *RoleMetrics) SendError() {
	if rm == nil {
		return
	}
	rm.sendErrors.Inc()
}

// ReceiveError учитывает неудачный прием, кроме штатных таймаутов
func (rm *RoleMetrics) ReceiveError() {
	if rm == nil {
		return
	}
	rm.receiveErrors.Inc()
}

// QueueDrop учитывает вытеснение из очереди моста
func (rm *RoleMetrics) QueueDrop() {
	if rm == nil {
		return
	}
	rm.queueDrops.Inc()
}

// Underrun учитывает блок вывода, заполненный тишиной из-за пустой очереди
func (rm *RoleMetrics) Underrun() {
	if rm == nil {
		return
	}
	rm.underruns.Inc()
}

// MalformedPayload учитывает некорректный фрагмент принятой полезной
// нагрузки: лишние байты аудио кадра или мусор в MIDI потоке
func (rm *RoleMetrics) MalformedPayload() {
	if rm == nil {
		return
	}
	rm.malformedPayloads.Inc()
}

// MidiEventIn учитывает MIDI событие, захваченное из хоста
func (rm *RoleMetrics) MidiEventIn() {
	if rm == nil {
		return
	}
	rm.midiEventsIn.Inc()
}

// MidiEventOut учитывает MIDI событие, доставленное в хост
func (rm *RoleMetrics) MidiEventOut() {
	if rm == nil {
		return
	}
	rm.midiEventsOut.Inc()
}

// BridgeUp учитывает переход моста в состояние running
func (rm *RoleMetrics) BridgeUp() {
	if rm == nil {
		return
	}
	rm.parent.bridgesActive.Inc()
}

// BridgeDown учитывает выход моста из состояния running
func (rm *RoleMetrics) BridgeDown() {
	if rm == nil {
		return
	}
	rm.parent.bridgesActive.Dec()
}
