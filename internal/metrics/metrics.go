// Package metrics registers the prometheus collectors named directly by
// the testable scenarios in spec.md §8. It only registers collectors; the
// enclosing proxy framework owns the /metrics HTTP endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry groups the collectors for one binlog router instance.
type Registry struct {
	BadCRC      prometheus.Counter
	TrxReplay   prometheus.Counter
	Events      prometheus.Counter
	SlaveLag    *prometheus.GaugeVec // labeled by slave server_id
	BytesSent   prometheus.Counter
	Reconnects  prometheus.Counter
}

// NewRegistry builds and registers a Registry's collectors against reg.
// Passing prometheus.NewRegistry() (rather than the global default) keeps
// tests hermetic and lets the caller mount several router instances side
// by side without name collisions.
func NewRegistry(reg prometheus.Registerer, routerName string) (*Registry, error) {
	constLabels := prometheus.Labels{"router": routerName}

	r := &Registry{
		BadCRC: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "n_badcrc",
			Help:        "number of events rejected for a CRC32 checksum mismatch",
			ConstLabels: constLabels,
		}),
		TrxReplay: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "n_trx_replay",
			Help:        "number of transactions replayed against a new backend after failover",
			ConstLabels: constLabels,
		}),
		Events: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "n_events",
			Help:        "number of binlog events received from the master",
			ConstLabels: constLabels,
		}),
		SlaveLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "slave_lag_seconds",
			Help:        "observed replication lag per connected slave",
			ConstLabels: constLabels,
		}, []string{"server_id"}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "n_bytes_sent",
			Help:        "bytes of binlog event data fanned out to slaves",
			ConstLabels: constLabels,
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "n_master_reconnects",
			Help:        "number of times the master connection was re-established",
			ConstLabels: constLabels,
		}),
	}

	for _, c := range []prometheus.Collector{r.BadCRC, r.TrxReplay, r.Events, r.SlaveLag, r.BytesSent, r.Reconnects} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}
