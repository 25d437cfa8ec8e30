package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pending      []prometheus.Collector
	registerOnce sync.Once
)

func register(cs ...prometheus.Collector) { pending = append(pending, cs...) }

// MustRegister adds the package collectors to the default registry. Later
// calls are no-ops, so tests and main may both call it.
func MustRegister() {
	registerOnce.Do(func() { prometheus.MustRegister(pending...) })
}

// norm lowercases a label value; an empty one reads as "unknown".
func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}
