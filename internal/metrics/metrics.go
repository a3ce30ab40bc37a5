package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemera_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ephemera_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Room metrics
	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ephemera_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	RoomsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ephemera_rooms_expired_total",
			Help: "Total rooms deactivated by the expiry sweep",
		},
	)

	ParticipantsJoined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemera_participants_joined_total",
			Help: "Total participant joins",
		},
		[]string{"result"}, // "created", "rejoined", "conflict"
	)

	Kicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemera_kicks_total",
			Help: "Total kick attempts",
		},
		[]string{"result"}, // "ok", "forbidden"
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemera_messages_posted_total",
			Help: "Total chat messages posted",
		},
		[]string{"kind"},
	)

	// Channel metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ephemera_ws_connections",
			Help: "Open channel connections",
		},
	)

	ChannelFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemera_channel_frames_total",
			Help: "Channel frames by kind and direction",
		},
		[]string{"kind", "direction"}, // direction: "in", "out", "dropped"
	)
)
