// Package telemetry provides a small counter registry with a Prometheus
// text exposition endpoint, using only standard library constructs.
package telemetry

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/labstack/echo/v4"
)

// Provider holds named counters, optionally partitioned by a single label
// value (e.g. verification verdicts).
type Provider struct {
	serviceName string

	mu       sync.RWMutex
	counters map[string]*counter
}

type counter struct {
	help  string
	label string // label name, empty for unlabeled counters

	mu     sync.Mutex
	total  atomic.Int64
	series map[string]*atomic.Int64
}

func NewProvider(serviceName string) *Provider {
	return &Provider{
		serviceName: serviceName,
		counters:    make(map[string]*counter),
	}
}

// Register declares a counter. label may be empty for a plain counter.
func (p *Provider) Register(name, label, help string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.counters[name]; ok {
		return
	}
	p.counters[name] = &counter{
		help:   help,
		label:  label,
		series: make(map[string]*atomic.Int64),
	}
}

// Inc increments a counter. For labeled counters, value selects the series;
// for unlabeled counters it is ignored. Unknown counters are registered on
// first use with no help text.
func (p *Provider) Inc(name, value string) {
	p.mu.RLock()
	c, ok := p.counters[name]
	p.mu.RUnlock()
	if !ok {
		p.Register(name, "", "")
		p.mu.RLock()
		c = p.counters[name]
		p.mu.RUnlock()
	}

	c.total.Add(1)
	if c.label == "" {
		return
	}

	c.mu.Lock()
	s, ok := c.series[value]
	if !ok {
		s = &atomic.Int64{}
		c.series[value] = s
	}
	c.mu.Unlock()
	s.Add(1)
}

// Count returns the current value for a counter series (or the total for
// unlabeled counters).
func (p *Provider) Count(name, value string) int64 {
	p.mu.RLock()
	c, ok := p.counters[name]
	p.mu.RUnlock()
	if !ok {
		return 0
	}
	if c.label == "" || value == "" {
		return c.total.Load()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.series[value]
	if !ok {
		return 0
	}
	return s.Load()
}

// Handler returns an echo handler that renders all counters in Prometheus
// text exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var b strings.Builder

		fmt.Fprintf(&b, "# HELP service_info Service metadata.\n")
		fmt.Fprintf(&b, "# TYPE service_info gauge\n")
		fmt.Fprintf(&b, "service_info{service=%q} 1\n", p.serviceName)

		p.mu.RLock()
		names := make([]string, 0, len(p.counters))
		for name := range p.counters {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			c := p.counters[name]
			if c.help != "" {
				fmt.Fprintf(&b, "# HELP %s %s\n", name, c.help)
			}
			fmt.Fprintf(&b, "# TYPE %s counter\n", name)

			if c.label == "" {
				fmt.Fprintf(&b, "%s %d\n", name, c.total.Load())
				continue
			}

			c.mu.Lock()
			values := make([]string, 0, len(c.series))
			for v := range c.series {
				values = append(values, v)
			}
			sort.Strings(values)
			for _, v := range values {
				fmt.Fprintf(&b, "%s{%s=%q} %d\n", name, c.label, v, c.series[v].Load())
			}
			c.mu.Unlock()
		}
		p.mu.RUnlock()

		return ctx.Blob(http.StatusOK, "text/plain; version=0.0.4", []byte(b.String()))
	}
}
