package lettuce

import "github.com/prometheus/client_golang/prometheus"

var (
	dispatchedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lettuce",
		Name:      "events_dispatched_total",
		Help:      "Number of events accepted by the broker, by event name.",
	}, []string{"name"})

	consumedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lettuce",
		Name:      "events_consumed_total",
		Help:      "Number of messages consumed, by event name and result (acked, failed, malformed, requeued, unhandled).",
	}, []string{"name", "result"})

	handleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lettuce",
		Name:      "event_handle_duration_seconds",
		Help:      "Time spent handling an event, including parsing.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"name"})
)

func init() {
	prometheus.MustRegister(dispatchedCounter, consumedCounter, handleDuration)
}
