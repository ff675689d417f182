package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "collection_vote"

// Metrics 业务计数器集合
type Metrics struct {
	Registry prometheus.Gatherer

	voteToggles          *prometheus.CounterVec
	voteCapRejections    prometheus.Counter
	submissions          prometheus.Counter
	metadataFallbacks    prometheus.Counter
	phaseTransitions     *prometheus.CounterVec
	staleTransitions     prometheus.Counter
	reconcileCorrections prometheus.Counter
	httpRequests         *prometheus.CounterVec
}

// New 在 registry 上注册全部计数器；registry 为 nil 时使用独立的私有 registry
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		voteToggles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_toggles_total",
			Help:      "Completed vote toggles by resulting action",
		}, []string{"action"}),
		voteCapRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vote_cap_rejections_total",
			Help:      "Votes rejected because the voter already holds the maximum",
		}),
		submissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Collections nominated",
		}),
		metadataFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_fallbacks_total",
			Help:      "Submissions persisted with placeholder metadata after a provider failure",
		}),
		phaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Period phase transitions by target phase",
		}, []string{"to"}),
		staleTransitions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_transitions_total",
			Help:      "Advance calls rejected because the phase changed concurrently",
		}),
		reconcileCorrections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_corrections_total",
			Help:      "Submission vote counts corrected by the reconciliation pass",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) VoteToggled(action string) { m.voteToggles.WithLabelValues(action).Inc() }

func (m *Metrics) VoteCapRejected() { m.voteCapRejections.Inc() }

func (m *Metrics) SubmissionCreated() { m.submissions.Inc() }

func (m *Metrics) MetadataFallback() { m.metadataFallbacks.Inc() }

func (m *Metrics) PhaseTransition(to string) { m.phaseTransitions.WithLabelValues(to).Inc() }

func (m *Metrics) StaleTransition() { m.staleTransitions.Inc() }

func (m *Metrics) ReconcileCorrections(n int) { m.reconcileCorrections.Add(float64(n)) }

func (m *Metrics) HTTPRequest(route, status string) {
	m.httpRequests.WithLabelValues(route, status).Inc()
}
