package sim

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the simulator's Prometheus collectors. Embedders expose it
// however they serve metrics; nothing in the engine scrapes it.
var Registry = prometheus.NewRegistry()

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudsim",
			Subsystem: "requests",
			Name:      "total",
			Help:      "Number of non-ignored allocation requests processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)
	vmAllocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cloudsim",
			Subsystem: "vms",
			Name:      "allocations_total",
			Help:      "Number of VM placements onto hosts.",
		},
	)
	vmDeallocationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cloudsim",
			Subsystem: "vms",
			Name:      "deallocations_total",
			Help:      "Number of VM releases from hosts.",
		},
	)
	guestVMs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cloudsim",
			Subsystem: "vms",
			Name:      "guests",
			Help:      "VMs currently placed across all hosts.",
		},
	)
	deploymentTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudsim",
			Subsystem: "deployments",
			Name:      "transitions_total",
			Help:      "Deployment state transitions observed on the bus, labeled by state.",
		},
		[]string{"state"},
	)
)

func init() {
	Registry.MustRegister(
		requestsTotal,
		vmAllocationsTotal,
		vmDeallocationsTotal,
		guestVMs,
		deploymentTransitionsTotal,
	)
}
