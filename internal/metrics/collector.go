// Package metrics provides process-wide counters rendered in Prometheus
// text exposition format.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics collector.
var Collector = NewCollector()

// MetricsCollector aggregates named counters.
type MetricsCollector struct {
	counters  sync.Map // name -> *Counter
	startTime time.Time
}

func NewCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Counter returns the counter with the given name, creating it on first use.
func (c *MetricsCollector) Counter(name, help string) *Counter {
	if v, ok := c.counters.Load(name); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help}
	actual, _ := c.counters.LoadOrStore(name, ctr)
	return actual.(*Counter)
}

// Render returns all counters in Prometheus text exposition format.
func (c *MetricsCollector) Render() string {
	var counters []*Counter
	c.counters.Range(func(_, v any) bool {
		counters = append(counters, v.(*Counter))
		return true
	})
	sort.Slice(counters, func(i, j int) bool { return counters[i].name < counters[j].name })

	var b strings.Builder
	for _, ctr := range counters {
		if ctr.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", ctr.name, ctr.help)
		}
		fmt.Fprintf(&b, "# TYPE %s counter\n", ctr.name)
		fmt.Fprintf(&b, "%s %d\n", ctr.name, ctr.Value())
	}
	fmt.Fprintf(&b, "# TYPE bridge_uptime_seconds gauge\n")
	fmt.Fprintf(&b, "bridge_uptime_seconds %.0f\n", c.Uptime().Seconds())
	return b.String()
}
