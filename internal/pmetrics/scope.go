// Package pmetrics adapts boulder's metrics.Scope (a Prometheus-backed,
// dot-prefixed stats collector) for pathfinder's own stat names: whole-RPC
// latency, broker sessions opened and connections closed, and open WebSocket
// connections.
package pmetrics

import (
	"strings"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Scope is a stats collector that prefixes the name of every stat it
// collects, the same shape as boulder's metrics.Scope.
type Scope interface {
	NewScope(scopes ...string) Scope

	Inc(stat string, value int64)
	Gauge(stat string, value int64)
	GaugeDelta(stat string, value int64)
	TimingDuration(stat string, delta time.Duration)

	// Timer starts a stopwatch against clk and returns a func that records
	// the elapsed duration under stat when called. Callers use it with
	// defer to time one RPC stage without hand-computing durations inline.
	Timer(clk clock.Clock, stat string) func()

	MustRegister(...prometheus.Collector)
}

type promScope struct {
	prometheus.Registerer
	*autoRegisterer
	prefix string
}

var _ Scope = &promScope{}

// NewPromScope returns a Scope that sends data to Prometheus.
func NewPromScope(registerer prometheus.Registerer, scopes ...string) Scope {
	return &promScope{
		Registerer:     registerer,
		prefix:         strings.Join(scopes, ".") + ".",
		autoRegisterer: newAutoRegisterer(registerer),
	}
}

func (s *promScope) NewScope(scopes ...string) Scope {
	scope := strings.Join(scopes, ".")
	return NewPromScope(s.Registerer, s.prefix+scope)
}

func (s *promScope) Inc(stat string, value int64) {
	s.autoCounter(s.prefix + stat).Add(float64(value))
}

func (s *promScope) Gauge(stat string, value int64) {
	s.autoGauge(s.prefix + stat).Set(float64(value))
}

func (s *promScope) GaugeDelta(stat string, value int64) {
	s.autoGauge(s.prefix + stat).Add(float64(value))
}

func (s *promScope) TimingDuration(stat string, delta time.Duration) {
	s.autoSummary(s.prefix + stat + "_seconds").Observe(delta.Seconds())
}

func (s *promScope) Timer(clk clock.Clock, stat string) func() {
	start := clk.Now()
	return func() {
		s.TimingDuration(stat, clk.Now().Sub(start))
	}
}

type noopScope struct{}

// NewNoopScope returns a Scope that discards everything, for tests.
func NewNoopScope() Scope { return noopScope{} }

func (ns noopScope) NewScope(scopes ...string) Scope                 { return ns }
func (noopScope) Inc(stat string, value int64)                       {}
func (noopScope) Gauge(stat string, value int64)                     {}
func (noopScope) GaugeDelta(stat string, value int64)                {}
func (noopScope) TimingDuration(stat string, delta time.Duration)     {}
func (noopScope) Timer(clk clock.Clock, stat string) func()          { return func() {} }
func (noopScope) MustRegister(...prometheus.Collector)               {}

// autoRegisterer lazily creates and registers Prometheus collectors the
// first time a stat name is observed, and reuses them afterward; this lets
// callers write s.Inc("RPC.Traffic.Tx") without pre-declaring every metric.
type autoRegisterer struct {
	mu       sync.Mutex
	reg      prometheus.Registerer
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	summarys map[string]prometheus.Summary
}

func newAutoRegisterer(reg prometheus.Registerer) *autoRegisterer {
	return &autoRegisterer{
		reg:      reg,
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
		summarys: make(map[string]prometheus.Summary),
	}
}

func (a *autoRegisterer) autoCounter(name string) prometheus.Counter {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: sanitize(name), Help: name})
	a.reg.MustRegister(c)
	a.counters[name] = c
	return c
}

func (a *autoRegisterer) autoGauge(name string) prometheus.Gauge {
	a.mu.Lock()
	defer a.mu.Unlock()
	if g, ok := a.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: sanitize(name), Help: name})
	a.reg.MustRegister(g)
	a.gauges[name] = g
	return g
}

func (a *autoRegisterer) autoSummary(name string) prometheus.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.summarys[name]; ok {
		return s
	}
	s := prometheus.NewSummary(prometheus.SummaryOpts{Name: sanitize(name), Help: name})
	a.reg.MustRegister(s)
	a.summarys[name] = s
	return s
}

// sanitize turns a dot/bracket-delimited stat name into a valid Prometheus
// metric name.
func sanitize(name string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_", "[", "_", "]", "_", " ", "_")
	return "pathfinder_" + replacer.Replace(strings.ToLower(name))
}
