// Package metrics exposes consensus health as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the consensus collectors. A nil *Metrics is a no-op sink so
// callers never need to guard instrument sites.
type Metrics struct {
	HeadSlot       prometheus.Gauge
	JustifiedEpoch prometheus.Gauge
	FinalizedEpoch prometheus.Gauge

	BlocksProcessed       prometheus.Counter
	BlocksRejected        prometheus.Counter
	AttestationsProcessed prometheus.Counter
	AttestationsRejected  prometheus.Counter
	Reorgs                prometheus.Counter
	SlashingEvidence      prometheus.Counter
	OrphansBuffered       prometheus.Counter
}

// New registers the consensus collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HeadSlot: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consensus_head_slot",
			Help: "Slot of the current canonical head.",
		}),
		JustifiedEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consensus_justified_epoch",
			Help: "Epoch of the justified checkpoint.",
		}),
		FinalizedEpoch: factory.NewGauge(prometheus.GaugeOpts{
			Name: "consensus_finalized_epoch",
			Help: "Epoch of the finalized checkpoint.",
		}),
		BlocksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "consensus_blocks_processed_total",
			Help: "Blocks accepted into the fork store.",
		}),
		BlocksRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "consensus_blocks_rejected_total",
			Help: "Blocks rejected during validation.",
		}),
		AttestationsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "consensus_attestations_processed_total",
			Help: "Attestations folded into fork choice.",
		}),
		AttestationsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "consensus_attestations_rejected_total",
			Help: "Attestations rejected during validation.",
		}),
		Reorgs: factory.NewCounter(prometheus.CounterOpts{
			Name: "consensus_reorgs_total",
			Help: "Head changes to a block that is not a descendant of the previous head.",
		}),
		SlashingEvidence: factory.NewCounter(prometheus.CounterOpts{
			Name: "consensus_slashing_evidence_total",
			Help: "Slashing evidence entries recorded.",
		}),
		OrphansBuffered: factory.NewCounter(prometheus.CounterOpts{
			Name: "consensus_orphans_buffered_total",
			Help: "Blocks buffered while waiting for their parent.",
		}),
	}
}

// ObserveHead updates the head gauge; safe on a nil receiver.
func (m *Metrics) ObserveHead(slot uint64) {
	if m == nil {
		return
	}
	m.HeadSlot.Set(float64(slot))
}

// ObserveCheckpoints updates the checkpoint gauges; safe on a nil receiver.
func (m *Metrics) ObserveCheckpoints(justified, finalized uint64) {
	if m == nil {
		return
	}
	m.JustifiedEpoch.Set(float64(justified))
	m.FinalizedEpoch.Set(float64(finalized))
}

func (m *Metrics) IncBlocksProcessed() {
	if m != nil {
		m.BlocksProcessed.Inc()
	}
}

func (m *Metrics) IncBlocksRejected() {
	if m != nil {
		m.BlocksRejected.Inc()
	}
}

func (m *Metrics) IncAttestationsProcessed() {
	if m != nil {
		m.AttestationsProcessed.Inc()
	}
}

func (m *Metrics) IncAttestationsRejected() {
	if m != nil {
		m.AttestationsRejected.Inc()
	}
}

func (m *Metrics) IncReorgs() {
	if m != nil {
		m.Reorgs.Inc()
	}
}

func (m *Metrics) IncSlashingEvidence() {
	if m != nil {
		m.SlashingEvidence.Inc()
	}
}

func (m *Metrics) IncOrphansBuffered() {
	if m != nil {
		m.OrphansBuffered.Inc()
	}
}
