// Package metrics exposes recorder counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the recorder's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	framesEmitted   prometheus.Counter
	ticksSkipped    prometheus.Counter
	liveWrites      *prometheus.CounterVec
	flushes         *prometheus.CounterVec
	flushFailures   prometheus.Counter
	framesFlushed   prometheus.Counter
	bytesFlushed    prometheus.Counter
	queueFrames     prometheus.Gauge
	queueBytes      prometheus.Gauge
	flagsDropped    prometheus.Counter
	flagsTrimmed    prometheus.Counter
	sessionsStarted prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := factory{reg}
	return &Metrics{
		reg: reg,
		framesEmitted: f.counter(prometheus.CounterOpts{
			Name: "tuw_frames_emitted_total",
			Help: "Frames assembled, one per sampled tick.",
		}),
		ticksSkipped: f.counter(prometheus.CounterOpts{
			Name: "tuw_ticks_skipped_total",
			Help: "Ticks skipped because no actor could be sampled.",
		}),
		liveWrites: f.counterVec(prometheus.CounterOpts{
			Name: "tuw_live_writes_total",
			Help: "Live region writes by outcome.",
		}, "outcome"),
		flushes: f.counterVec(prometheus.CounterOpts{
			Name: "tuw_log_flushes_total",
			Help: "Durable queue flushes by trigger.",
		}, "reason"),
		flushFailures: f.counter(prometheus.CounterOpts{
			Name: "tuw_log_flush_failures_total",
			Help: "Flushes that could not open or write the session file.",
		}),
		framesFlushed: f.counter(prometheus.CounterOpts{
			Name: "tuw_log_frames_flushed_total",
			Help: "Log frames written to session files.",
		}),
		bytesFlushed: f.counter(prometheus.CounterOpts{
			Name: "tuw_log_bytes_flushed_total",
			Help: "Bytes written to session files.",
		}),
		queueFrames: f.gauge(prometheus.GaugeOpts{
			Name: "tuw_queue_frames",
			Help: "Log frames waiting for a flush.",
		}),
		queueBytes: f.gauge(prometheus.GaugeOpts{
			Name: "tuw_queue_bytes",
			Help: "Bytes waiting for a flush.",
		}),
		flagsDropped: f.counter(prometheus.CounterOpts{
			Name: "tuw_flag_records_dropped_total",
			Help: "Flag change records refused by the per-tick byte budget.",
		}),
		flagsTrimmed: f.counter(prometheus.CounterOpts{
			Name: "tuw_flag_subrecords_trimmed_total",
			Help: "Frames whose flag sub-record was left out to fit a size limit.",
		}),
		sessionsStarted: f.counter(prometheus.CounterOpts{
			Name: "tuw_sessions_started_total",
			Help: "Session files opened.",
		}),
	}
}

type factory struct{ reg prometheus.Registerer }

func (f factory) counter(o prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(o)
	f.reg.MustRegister(c)
	return c
}

func (f factory) counterVec(o prometheus.CounterOpts, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(o, labels)
	f.reg.MustRegister(c)
	return c
}

func (f factory) gauge(o prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(o)
	f.reg.MustRegister(g)
	return g
}

// Registry returns the registry to serve, or nil.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) FrameEmitted() {
	if m != nil {
		m.framesEmitted.Inc()
	}
}

func (m *Metrics) TickSkipped() {
	if m != nil {
		m.ticksSkipped.Inc()
	}
}

// LiveWrite counts one live publish attempt.
func (m *Metrics) LiveWrite(ok bool) {
	if m == nil {
		return
	}
	outcome := "written"
	if !ok {
		outcome = "dropped"
	}
	m.liveWrites.WithLabelValues(outcome).Inc()
}

// Flushed counts a successful flush.
func (m *Metrics) Flushed(reason string, frames, bytes int) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(reason).Inc()
	m.framesFlushed.Add(float64(frames))
	m.bytesFlushed.Add(float64(bytes))
}

func (m *Metrics) FlushFailed() {
	if m != nil {
		m.flushFailures.Inc()
	}
}

// Queue reports the current backlog.
func (m *Metrics) Queue(frames, bytes int) {
	if m == nil {
		return
	}
	m.queueFrames.Set(float64(frames))
	m.queueBytes.Set(float64(bytes))
}

func (m *Metrics) FlagRecordsDropped(n int) {
	if m != nil && n > 0 {
		m.flagsDropped.Add(float64(n))
	}
}

func (m *Metrics) FlagsTrimmed() {
	if m != nil {
		m.flagsTrimmed.Inc()
	}
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.sessionsStarted.Inc()
	}
}
