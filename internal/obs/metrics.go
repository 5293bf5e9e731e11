package obs

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label is a key/value pair attached to measurements.
type Label struct {
	Key   string
	Value string
}

// Meter is a very small interface for emitting counters/histograms.
// Implementations may no-op or bridge to a metrics system.
type Meter interface {
	Counter(name string, value float64, labels ...Label)
	Histogram(name string, value float64, labels ...Label)
}

// NopMeter is a Meter that discards all measurements.
type NopMeter struct{}

func (NopMeter) Counter(name string, value float64, labels ...Label)   {}
func (NopMeter) Histogram(name string, value float64, labels ...Label) {}

// PromMeter bridges Meter onto Prometheus collectors. Vectors are created
// lazily per metric name; the label key set of the first observation for a
// name fixes that metric's dimensions.
type PromMeter struct {
	reg prometheus.Registerer

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	hists    map[string]*prometheus.HistogramVec
}

func NewPromMeter(reg prometheus.Registerer) *PromMeter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PromMeter{
		reg:      reg,
		counters: make(map[string]*prometheus.CounterVec),
		hists:    make(map[string]*prometheus.HistogramVec),
	}
}

func (p *PromMeter) Counter(name string, value float64, labels ...Label) {
	keys, vals := splitLabels(labels)
	p.mu.Lock()
	cv, ok := p.counters[name]
	if !ok {
		cv = promauto.With(p.reg).NewCounterVec(prometheus.CounterOpts{Name: name}, keys)
		p.counters[name] = cv
	}
	p.mu.Unlock()
	cv.WithLabelValues(vals...).Add(value)
}

func (p *PromMeter) Histogram(name string, value float64, labels ...Label) {
	keys, vals := splitLabels(labels)
	p.mu.Lock()
	hv, ok := p.hists[name]
	if !ok {
		hv = promauto.With(p.reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    name,
			Buckets: prometheus.DefBuckets,
		}, keys)
		p.hists[name] = hv
	}
	p.mu.Unlock()
	hv.WithLabelValues(vals...).Observe(value)
}

func splitLabels(labels []Label) (keys, vals []string) {
	sort.Slice(labels, func(i, j int) bool { return labels[i].Key < labels[j].Key })
	for _, l := range labels {
		keys = append(keys, l.Key)
		vals = append(vals, l.Value)
	}
	return keys, vals
}
