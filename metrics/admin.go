package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var unauthorizedAdminAccess prometheus.Counter

func initAdmin() {
	unauthorizedAdminAccess = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "admin",
		Name:      "unauthorized_access",
	})
	Registry.MustRegister(unauthorizedAdminAccess)
}

func UnauthorizedAdminAccess() {
	if Enabled() {
		unauthorizedAdminAccess.Inc()
	}
}
