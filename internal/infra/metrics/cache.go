package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(packageCacheLookups) }

// packageCacheLookups covers the Redis read-through cache in front of the
// package catalog. entry is "package" or "shop_packages".
var packageCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_package_cache_lookups_total",
		Help: "Package catalog cache lookups by entry kind and outcome.",
	},
	[]string{"entry", "outcome"}, // outcome: hit, miss, corrupt, unavailable
)

func ObservePackageCacheLookup(entry, outcome string) {
	packageCacheLookups.WithLabelValues(norm(entry), norm(outcome)).Inc()
}
