package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const ApplicationName = "flashguard"

// SessionsCreatedCount counts minted flash sessions
var SessionsCreatedCount = prometheus.NewCounter(prometheus.CounterOpts{
	Name:        "flash_sessions_created_count",
	Help:        "total one-time flash sessions minted",
	ConstLabels: prometheus.Labels{"service": ApplicationName},
})

// SessionsBurnedCount counts sessions that reached Burned
var SessionsBurnedCount = prometheus.NewCounter(prometheus.CounterOpts{
	Name:        "flash_sessions_burned_count",
	Help:        "total flash sessions burned after completion",
	ConstLabels: prometheus.Labels{"service": ApplicationName},
})

// SessionsSweptCount counts sessions removed by the periodic sweep
var SessionsSweptCount = prometheus.NewCounter(prometheus.CounterOpts{
	Name:        "flash_sessions_swept_count",
	Help:        "total expired or quiet burned sessions removed by sweep",
	ConstLabels: prometheus.Labels{"service": ApplicationName},
})

// ArtifactsServedCount counts artifact downloads by device type
var ArtifactsServedCount = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name:        "flash_artifacts_served_count",
		Help:        "artifact downloads served, by device type",
		ConstLabels: prometheus.Labels{"service": ApplicationName},
	},
	[]string{"device_type"},
)

// ArtifactBytesServed counts re-encrypted firmware bytes written to the wire
var ArtifactBytesServed = prometheus.NewCounter(prometheus.CounterOpts{
	Name:        "flash_artifact_bytes_served",
	Help:        "re-encrypted firmware bytes written to responses",
	ConstLabels: prometheus.Labels{"service": ApplicationName},
})

// RegisterAPIMetrics registers the service collectors with the default
// prometheus registry
func RegisterAPIMetrics() {
	prometheus.MustRegister(
		SessionsCreatedCount,
		SessionsBurnedCount,
		SessionsSweptCount,
		ArtifactsServedCount,
		ArtifactBytesServed,
	)
}
