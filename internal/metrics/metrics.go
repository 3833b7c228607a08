package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncsTotal counts finished provider syncs by mode (full, delta) and result.
	SyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaulttv_syncs_total",
		Help: "Total number of provider syncs",
	}, []string{"mode", "result"})

	// SyncDuration observes wall time of provider syncs.
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaulttv_sync_duration_seconds",
		Help:    "Duration of provider syncs",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"mode"})

	// ChannelsCommitted counts channel rows written by syncs.
	ChannelsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaulttv_channels_committed_total",
		Help: "Total number of channels written to the local store by syncs",
	}, []string{"mode"})

	// ChannelsRemoved counts channel rows deleted by delta syncs.
	ChannelsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaulttv_channels_removed_total",
		Help: "Total number of channels removed by delta syncs",
	})

	// ParseRequests counts parse worker requests by kind and outcome.
	ParseRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaulttv_parse_requests_total",
		Help: "Total number of parse worker requests",
	}, []string{"kind", "result"})

	// PlaybackRetries counts scheduled reloads of the current source.
	PlaybackRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaulttv_playback_retries_total",
		Help: "Total number of playback retries",
	})

	// PlaybackFailovers counts switches to a backup source.
	PlaybackFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaulttv_playback_failovers_total",
		Help: "Total number of playback source failovers",
	})

	// PlaybackFailures counts sessions that ran out of sources.
	PlaybackFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaulttv_playback_failures_total",
		Help: "Total number of terminal playback failures",
	})

	// PlaybackSessions tracks open playback sessions.
	PlaybackSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaulttv_playback_sessions",
		Help: "Number of open playback sessions",
	})

	// EventClients tracks connected websocket clients.
	EventClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaulttv_event_clients",
		Help: "Number of connected event stream clients",
	})
)

// RecordSync records one finished sync.
func RecordSync(mode, result string, elapsed time.Duration) {
	SyncsTotal.WithLabelValues(mode, result).Inc()
	SyncDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// RecordChannelsCommitted adds n to the committed channel counter.
func RecordChannelsCommitted(mode string, n int) {
	ChannelsCommitted.WithLabelValues(mode).Add(float64(n))
}

// RecordParse increments the parse request counter.
func RecordParse(kind, result string) {
	ParseRequests.WithLabelValues(kind, result).Inc()
}

func RecordPlaybackRetry()    { PlaybackRetries.Inc() }
func RecordPlaybackFailover() { PlaybackFailovers.Inc() }
func RecordPlaybackFailure()  { PlaybackFailures.Inc() }

// SetPlaybackSessions sets the open session gauge.
func SetPlaybackSessions(n int) {
	PlaybackSessions.Set(float64(n))
}

// SetEventClients sets the websocket client gauge.
func SetEventClients(n int) {
	EventClients.Set(float64(n))
}
