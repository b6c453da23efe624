package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Relay outcome label values.
const (
	OutcomeDelivered   = "delivered"
	OutcomeFailed      = "delivery_failed"
	OutcomeUnsupported = "unsupported"
	OutcomeNoSession   = "no_session"
)

var (
	// RelaysTotal counts relay attempts by content kind and outcome.
	RelaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonrelay_relays_total",
			Help: "Relay attempts by content kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// LinksIssuedTotal counts link issue/fetch calls by where the token came
	// from: "existing", "created" or "fallback".
	LinksIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonrelay_links_issued_total",
			Help: "Link issue requests by token source.",
		},
		[]string{"source"},
	)

	// LinkOpensTotal counts link visits by result: "compose", "self" or "invalid".
	LinkOpensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonrelay_link_opens_total",
			Help: "Link visits by result.",
		},
		[]string{"result"},
	)

	// StorageErrorsTotal counts swallowed persistence failures per operation.
	StorageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonrelay_storage_errors_total",
			Help: "Persistence failures absorbed by the relay.",
		},
		[]string{"op"},
	)

	// AuditReadsTotal counts privileged report requests by result.
	AuditReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonrelay_audit_reads_total",
			Help: "Privileged audit report requests by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(RelaysTotal, LinksIssuedTotal, LinkOpensTotal, StorageErrorsTotal, AuditReadsTotal)
}
