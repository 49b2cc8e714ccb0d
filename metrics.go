package cfddns

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records the outcome of runs in a prometheus registry.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	recordsUpdated   prometheus.Counter
	updatesFailed    prometheus.Counter
	zonesProcessed   prometheus.Counter
	lastRunSuccess   prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
	currentIP        *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		recordsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cfddns_records_updated_total",
			Help: "The number of A records pointed at a new IP",
		}),
		updatesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cfddns_record_updates_failed_total",
			Help: "The number of A record updates rejected by the provider or lost in transit",
		}),
		zonesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cfddns_zones_processed_total",
			Help: "The number of zones reconciled",
		}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cfddns_last_run_success",
			Help: "1 if the last run resolved the IP and applied every update",
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cfddns_last_run_timestamp_seconds",
			Help: "Unix time of the last run",
		}),
		currentIP: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cfddns_public_ip_info",
			Help: "The public IP resolved by the last run",
		}, []string{"ip"}),
	}
	reg.MustRegister(m.recordsUpdated, m.updatesFailed, m.zonesProcessed,
		m.lastRunSuccess, m.lastRunTimestamp, m.currentIP)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("%w: error writing metrics to %s: %s", ErrIO, path, err)
	}
	return nil
}

func (m *Metrics) observe(res Result, zones int, unix int64) {
	if m == nil {
		return
	}
	m.recordsUpdated.Add(float64(res.Updated))
	m.updatesFailed.Add(float64(res.Failed))
	m.zonesProcessed.Add(float64(zones))
	m.lastRunTimestamp.Set(float64(unix))
	if res.Success {
		m.lastRunSuccess.Set(1)
	} else {
		m.lastRunSuccess.Set(0)
	}
	m.currentIP.Reset()
	if res.ResolvedIP != "" {
		m.currentIP.WithLabelValues(res.ResolvedIP).Set(1)
	}
}
