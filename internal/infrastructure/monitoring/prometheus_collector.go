package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes signaling and media-plane metrics.
type Collector struct {
	peersConnected    prometheus.Gauge
	messagesRelayed   *prometheus.CounterVec
	stateTransitions  *prometheus.CounterVec
	candidatesTotal   prometheus.Counter
	jitterDropsTotal  *prometheus.CounterVec
	packetsReleased   prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rtckit_peers_connected",
			Help: "Number of peers connected to the signaling relay",
		}),

		messagesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rtckit_signal_messages_relayed_total",
			Help: "Signaling messages relayed, by message type",
		}, []string{"type"}),

		stateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rtckit_signaling_transitions_total",
			Help: "Signaling state transitions applied, by resulting state",
		}, []string{"state"}),

		candidatesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rtckit_ice_candidates_total",
			Help: "Local ICE candidates gathered",
		}),

		jitterDropsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "rtckit_jitter_drops_total",
			Help: "Packets dropped by the jitter buffer, by classification",
		}, []string{"reason"}),

		packetsReleased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rtckit_jitter_packets_released_total",
			Help: "Packets released in order by the jitter buffer",
		}),
	}
}

func (c *Collector) PeerConnected()    { c.peersConnected.Inc() }
func (c *Collector) PeerDisconnected() { c.peersConnected.Dec() }

func (c *Collector) MessageRelayed(msgType string) {
	c.messagesRelayed.WithLabelValues(msgType).Inc()
}

func (c *Collector) StateTransition(state string) {
	c.stateTransitions.WithLabelValues(state).Inc()
}

func (c *Collector) CandidateGathered() { c.candidatesTotal.Inc() }

func (c *Collector) JitterDrop(reason string, n uint64) {
	c.jitterDropsTotal.WithLabelValues(reason).Add(float64(n))
}

func (c *Collector) PacketsReleased(n uint64) {
	c.packetsReleased.Add(float64(n))
}
