// Package media holds media-plane helpers shared by receivers: the jitter
// buffer lives in the jitter subpackage, this file tracks reception
// statistics for RTCP reporting.
package media

import (
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// ReceptionTracker accumulates per-SSRC reception statistics and renders
// them as RTCP receiver reports (RFC 3550 §6.4.2). Not safe for concurrent
// use; owned by the task that reads the socket.
type ReceptionTracker struct {
	ssrc     uint32
	started  bool
	baseSeq  uint16
	maxSeq   uint16
	cycles   uint32
	received uint32

	expectedPrior uint32
	receivedPrior uint32
}

func NewReceptionTracker() *ReceptionTracker {
	return &ReceptionTracker{}
}

// Observe records one arriving packet before it enters the jitter buffer.
func (t *ReceptionTracker) Observe(p *rtp.Packet) {
	if p == nil {
		return
	}
	seq := p.SequenceNumber
	if !t.started {
		t.started = true
		t.ssrc = p.SSRC
		t.baseSeq = seq
		t.maxSeq = seq
		t.received = 1
		return
	}

	// Serial-arithmetic forward step; a numeric decrease is a wrap.
	if d := seq - t.maxSeq; d != 0 && d < 1<<15 {
		if seq < t.maxSeq {
			t.cycles += 1 << 16
		}
		t.maxSeq = seq
	}
	t.received++
}

// Report renders the interval since the previous call as a receiver report.
// Returns nil before any packet was observed.
func (t *ReceptionTracker) Report(reporterSSRC uint32) *rtcp.ReceiverReport {
	if !t.started {
		return nil
	}

	extended := t.cycles | uint32(t.maxSeq)
	expected := extended - uint32(t.baseSeq) + 1

	var lost uint32
	if expected > t.received {
		lost = expected - t.received
	}

	expectedInterval := expected - t.expectedPrior
	receivedInterval := t.received - t.receivedPrior
	t.expectedPrior = expected
	t.receivedPrior = t.received

	var fraction uint8
	if expectedInterval > receivedInterval && expectedInterval > 0 {
		fraction = uint8(((expectedInterval - receivedInterval) << 8) / expectedInterval)
	}

	return &rtcp.ReceiverReport{
		SSRC: reporterSSRC,
		Reports: []rtcp.ReceptionReport{{
			SSRC:               t.ssrc,
			FractionLost:       fraction,
			TotalLost:          lost,
			LastSequenceNumber: extended,
		}},
	}
}
