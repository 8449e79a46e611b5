package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProviderCalls counts outbound provider calls by provider and outcome
// (ok, not_configured, access_denied, malformed, transient, error).
var ProviderCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricewatch_provider_calls_total",
		Help: "Total number of outbound market-data provider calls",
	},
	[]string{"provider", "outcome"},
)

// SeriesStages counts which fallback stage produced each reconstructed series.
var SeriesStages = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricewatch_series_stage_total",
		Help: "Number of 24h series produced per fallback stage",
	},
	[]string{"class", "stage"},
)

// ResolverRebuilds counts symbol catalog rebuilds by result.
var ResolverRebuilds = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricewatch_resolver_rebuilds_total",
		Help: "Number of symbol catalog rebuild attempts",
	},
	[]string{"result"},
)

// SeriesCacheLookups counts warmed series cache hits and misses.
var SeriesCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pricewatch_series_cache_lookups_total",
		Help: "Warmed series cache lookups by result",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(ProviderCalls, SeriesStages, ResolverRebuilds, SeriesCacheLookups)
}

func ObserveProviderCall(provider, outcome string) {
	if provider == "" {
		provider = "unknown"
	}
	ProviderCalls.WithLabelValues(provider, outcome).Inc()
}

func ObserveSeriesStage(class, stage string) {
	SeriesStages.WithLabelValues(class, stage).Inc()
}

func ObserveRebuild(ok bool) {
	if ok {
		ResolverRebuilds.WithLabelValues("ok").Inc()
		return
	}
	ResolverRebuilds.WithLabelValues("failed").Inc()
}

func ObserveCacheLookup(hit bool) {
	if hit {
		SeriesCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	SeriesCacheLookups.WithLabelValues("miss").Inc()
}
