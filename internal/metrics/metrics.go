package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewhub_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewhub_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviewhub_relay_connections",
			Help: "Open relay connections",
		},
	)

	RelayRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviewhub_relay_rooms",
			Help: "Live relay rooms",
		},
	)

	RelayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewhub_relay_events_total",
			Help: "Inbound relay events by type",
		},
		[]string{"type"},
	)

	RelayFramesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewhub_relay_frames_sent_total",
			Help: "Frames enqueued to room members",
		},
	)

	RelayFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewhub_relay_frames_dropped_total",
			Help: "Frames dropped because a member was slow or gone",
		},
	)

	RelayKicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewhub_relay_kicks_total",
			Help: "Connections closed by the server",
		},
		[]string{"reason"}, // "backpressure" or "evicted"
	)

	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewhub_relay_errors_total",
			Help: "Error frames sent to clients",
		},
		[]string{"code"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewhub_users_registered_total",
			Help: "Total users registered",
		},
	)

	ProjectsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewhub_projects_uploaded_total",
			Help: "Total projects uploaded",
		},
		[]string{"format"},
	)

	ProjectsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewhub_projects_expired_total",
			Help: "Projects marked expired by the sweeper",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewhub_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Infrastructure metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reviewhub_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewhub_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewhub_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviewhub_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
