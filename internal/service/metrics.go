package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Authentication outcomes recorded by Metrics.Authentications.
const (
	authResultSuccess     = "success"
	authResultUnknownUser = "unknown_user"
	authResultBadPassword = "bad_credential"
)

// Metrics holds the Prometheus collectors updated by the services.
type Metrics struct {
	AccountsCreated  prometheus.Counter
	AccountsDeleted  prometheus.Counter
	Authentications  *prometheus.CounterVec
	CredentialHashes prometheus.Counter
	RoleCacheLookups *prometheus.CounterVec
}

// NewMetrics creates the service collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AccountsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shopcart",
			Subsystem: "accounts",
			Name:      "created_total",
			Help:      "Number of user accounts created.",
		}),
		AccountsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shopcart",
			Subsystem: "accounts",
			Name:      "deleted_total",
			Help:      "Number of user accounts deleted.",
		}),
		Authentications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopcart",
			Subsystem: "accounts",
			Name:      "authentications_total",
			Help:      "Authentication attempts by result.",
		}, []string{"result"}),
		CredentialHashes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "shopcart",
			Subsystem: "accounts",
			Name:      "credential_hashes_total",
			Help:      "Number of credentials hashed.",
		}),
		RoleCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shopcart",
			Subsystem: "roles",
			Name:      "cache_lookups_total",
			Help:      "Role catalog cache lookups by result.",
		}, []string{"result"}),
	}
}
