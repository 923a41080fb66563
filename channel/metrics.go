package channel

import (
	"github.com/prometheus/client_golang/prometheus"
)

// channelMetrics mirrors Stats as Prometheus collectors.
type channelMetrics struct {
	reg        prometheus.Registerer
	collectors []prometheus.Collector

	bytesWritten  prometheus.Counter
	bytesRead     prometheus.Counter
	wouldBlock    prometheus.Counter
	interrupted   prometheus.Counter
	clears        prometheus.Counter
	notifications prometheus.Counter

	occupied       prometheus.Gauge
	utilization    prometheus.Gauge
	readersWaiting prometheus.Gauge
	writersWaiting prometheus.Gauge
	subscribers    prometheus.Gauge
}

func newChannelMetrics(reg prometheus.Registerer, name string, capacity int) (*channelMetrics, error) {
	labels := prometheus.Labels{"channel": name}

	counter := func(metric, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "gbl",
			Subsystem:   "fifo",
			Name:        metric,
			ConstLabels: labels,
			Help:        help,
		})
	}

	gauge := func(metric, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "gbl",
			Subsystem:   "fifo",
			Name:        metric,
			ConstLabels: labels,
			Help:        help,
		})
	}

	m := &channelMetrics{
		reg:            reg,
		bytesWritten:   counter("written_bytes_total", "Total number of bytes accepted by writes"),
		bytesRead:      counter("read_bytes_total", "Total number of bytes returned by reads"),
		wouldBlock:     counter("would_block_total", "Non-blocking calls that returned without progress"),
		interrupted:    counter("interrupted_total", "Blocking calls aborted by cancellation"),
		clears:         counter("clears_total", "Clear commands executed"),
		notifications:  counter("notifications_total", "Data-available notifications queued to subscribers"),
		occupied:       gauge("occupied_bytes", "Bytes currently pending in the channel"),
		utilization:    gauge("utilization", "Occupied bytes as a fraction of capacity (0.0 to 1.0)"),
		readersWaiting: gauge("readers_waiting", "Readers blocked on an empty channel"),
		writersWaiting: gauge("writers_waiting", "Writers blocked on a full channel"),
		subscribers:    gauge("subscribers", "Registered notification subscribers"),
	}

	capGauge := gauge("capacity_bytes", "Fixed capacity of the channel")
	capGauge.Set(float64(capacity))

	m.collectors = []prometheus.Collector{
		m.bytesWritten, m.bytesRead, m.wouldBlock, m.interrupted, m.clears, m.notifications,
		m.occupied, m.utilization, m.readersWaiting, m.writersWaiting, m.subscribers, capGauge,
	}

	for i, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			for _, registered := range m.collectors[:i] {
				reg.Unregister(registered)
			}

			return nil, err
		}
	}

	return m, nil
}

// All record methods accept a nil receiver so call sites need no checks.

func (m *channelMetrics) recordWrite(n, occupied, capacity int) {
	if m == nil {
		return
	}

	m.bytesWritten.Add(float64(n))
	m.updateSize(occupied, capacity)
}

func (m *channelMetrics) recordRead(n, occupied, capacity int) {
	if m == nil {
		return
	}

	m.bytesRead.Add(float64(n))
	m.updateSize(occupied, capacity)
}

func (m *channelMetrics) recordClear(capacity int) {
	if m == nil {
		return
	}

	m.clears.Inc()
	m.updateSize(0, capacity)
}

func (m *channelMetrics) recordWouldBlock() {
	if m != nil {
		m.wouldBlock.Inc()
	}
}

func (m *channelMetrics) recordInterrupted() {
	if m != nil {
		m.interrupted.Inc()
	}
}

func (m *channelMetrics) recordNotifications(n int) {
	if m != nil {
		m.notifications.Add(float64(n))
	}
}

func (m *channelMetrics) updateWaiting(readers, writers int) {
	if m == nil {
		return
	}

	m.readersWaiting.Set(float64(readers))
	m.writersWaiting.Set(float64(writers))
}

func (m *channelMetrics) updateSubscribers(n int) {
	if m != nil {
		m.subscribers.Set(float64(n))
	}
}

func (m *channelMetrics) updateSize(occupied, capacity int) {
	m.occupied.Set(float64(occupied))
	m.utilization.Set(float64(occupied) / float64(capacity))
}

func (m *channelMetrics) unregister() {
	if m == nil {
		return
	}

	for _, c := range m.collectors {
		m.reg.Unregister(c)
	}
}
