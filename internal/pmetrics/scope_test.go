package pmetrics

import (
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
)

func TestPromScopeDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	scope := NewPromScope(reg, "Pathfinder")

	scope.Inc("RPC.Traffic.Tx", 1)
	scope.Gauge("Broker.OpenChannels", 2)
	scope.GaugeDelta("Broker.OpenChannels", -1)
	scope.TimingDuration("RPC.Latency", 10*time.Millisecond)

	sub := scope.NewScope("Engine")
	sub.Inc("Calls", 1)
}

func TestPromScopeTimer(t *testing.T) {
	reg := prometheus.NewRegistry()
	scope := NewPromScope(reg, "Pathfinder")
	clk := clock.NewFake()

	stop := scope.Timer(clk, "RPC.Latency")
	clk.Add(5 * time.Millisecond)
	stop()
}

func TestNoopScopeDoesNotPanic(t *testing.T) {
	scope := NewNoopScope()
	scope.Inc("x", 1)
	scope.Gauge("x", 1)
	scope.GaugeDelta("x", 1)
	scope.TimingDuration("x", time.Second)
	scope.NewScope("y").Inc("z", 1)
	scope.Timer(clock.NewFake(), "x")()
}
