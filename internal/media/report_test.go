package media

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observe(t *ReceptionTracker, seqs ...uint16) {
	for _, seq := range seqs {
		t.Observe(&rtp.Packet{
			Header:  rtp.Header{SequenceNumber: seq, SSRC: 42},
			Payload: []byte{0x00},
		})
	}
}

func TestReportBeforeAnyPacket(t *testing.T) {
	tracker := NewReceptionTracker()
	assert.Nil(t, tracker.Report(1))
}

func TestReportNoLoss(t *testing.T) {
	tracker := NewReceptionTracker()
	observe(tracker, 100, 101, 102, 103)

	report := tracker.Report(1)
	require.NotNil(t, report)
	require.Len(t, report.Reports, 1)

	rr := report.Reports[0]
	assert.Equal(t, uint32(42), rr.SSRC)
	assert.Equal(t, uint32(0), rr.TotalLost)
	assert.Equal(t, uint8(0), rr.FractionLost)
	assert.Equal(t, uint32(103), rr.LastSequenceNumber)
}

func TestReportCountsLoss(t *testing.T) {
	tracker := NewReceptionTracker()
	observe(tracker, 10, 11, 14, 15) // 12 and 13 missing

	report := tracker.Report(1)
	require.NotNil(t, report)
	rr := report.Reports[0]
	assert.Equal(t, uint32(2), rr.TotalLost)
	assert.NotZero(t, rr.FractionLost)
}

func TestReportIntervalFractionResets(t *testing.T) {
	tracker := NewReceptionTracker()
	observe(tracker, 1, 3) // one lost
	first := tracker.Report(1)
	require.NotZero(t, first.Reports[0].FractionLost)

	observe(tracker, 4, 5, 6)
	second := tracker.Report(1)
	// No new loss in the second interval.
	assert.Zero(t, second.Reports[0].FractionLost)
	assert.Equal(t, uint32(1), second.Reports[0].TotalLost)
}

func TestReportTracksWrap(t *testing.T) {
	tracker := NewReceptionTracker()
	observe(tracker, 65534, 65535, 0, 1)

	report := tracker.Report(1)
	rr := report.Reports[0]
	assert.Equal(t, uint32(1<<16|1), rr.LastSequenceNumber)
	assert.Equal(t, uint32(0), rr.TotalLost)
}
