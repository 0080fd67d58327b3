package jitter

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the buffer deterministically.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1000, 0)}
}

func (c *fakeClock) now() time.Time            { return c.t }
func (c *fakeClock) advance(d time.Duration)   { c.t = c.t.Add(d) }

func newTestBuffer(latency time.Duration, opts ...Option) (*Buffer, *fakeClock) {
	b := New(latency, opts...)
	clock := newFakeClock()
	b.now = clock.now
	return b, clock
}

func pkt(seq uint16) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: seq, SSRC: 0xDEADBEEF},
		Payload: []byte{0x01},
	}
}

func seqs(packets []*rtp.Packet) []uint16 {
	out := make([]uint16, 0, len(packets))
	for _, p := range packets {
		out = append(out, p.SequenceNumber)
	}
	return out
}

func TestInsertReordersContiguousRun(t *testing.T) {
	b, _ := newTestBuffer(100*time.Millisecond, WithInitialSequence(1))

	released, timer := b.Insert(pkt(3))
	assert.Empty(t, released)
	require.NotNil(t, timer)

	released, _ = b.Insert(pkt(1))
	assert.Equal(t, []uint16{1}, seqs(released))

	released, timer = b.Insert(pkt(2))
	assert.Equal(t, []uint16{2, 3}, seqs(released))
	assert.Nil(t, timer)
}

func TestGapThenTimeout(t *testing.T) {
	b, clock := newTestBuffer(100 * time.Millisecond)

	released, timer := b.Insert(pkt(1))
	assert.Equal(t, []uint16{1}, seqs(released))
	assert.Nil(t, timer)

	clock.advance(10 * time.Millisecond)
	released, timer = b.Insert(pkt(3))
	assert.Empty(t, released)
	require.NotNil(t, timer)
	assert.Equal(t, 100*time.Millisecond, *timer)
	assert.Equal(t, StateTimerSet, b.State())

	clock.advance(100 * time.Millisecond)
	released, timer = b.HandleTimeout()
	assert.Equal(t, []uint16{3}, seqs(released))
	assert.Nil(t, timer)
}

func TestTimeoutReleasesContiguousSuccessors(t *testing.T) {
	b, clock := newTestBuffer(100 * time.Millisecond)

	b.Insert(pkt(1))
	b.Insert(pkt(5))
	b.Insert(pkt(6))
	b.Insert(pkt(8))

	clock.advance(100 * time.Millisecond)
	released, timer := b.HandleTimeout()
	// 5 released unconditionally, 6 as its contiguous successor, 8 because
	// it is overdue too.
	assert.Equal(t, []uint16{5, 6, 8}, seqs(released))
	assert.Nil(t, timer)
}

func TestDuplicatesAreDropped(t *testing.T) {
	b, _ := newTestBuffer(100 * time.Millisecond)

	b.Insert(pkt(10))
	b.Insert(pkt(12))
	released, _ := b.Insert(pkt(12))
	assert.Empty(t, released)

	// A sequence number that was already released counts as late.
	released, _ = b.Insert(pkt(10))
	assert.Empty(t, released)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.DuplicateDropped)
	assert.Equal(t, uint64(1), stats.LateDropped)
}

func TestLateArrivalsAreDropped(t *testing.T) {
	b, _ := newTestBuffer(100 * time.Millisecond)

	b.Insert(pkt(100))
	released, _ := b.Insert(pkt(99))
	assert.Empty(t, released)
	assert.Equal(t, uint64(1), b.Stats().LateDropped)
}

func TestPaddingIsDiscarded(t *testing.T) {
	b, _ := newTestBuffer(100 * time.Millisecond)

	released, timer := b.Insert(&rtp.Packet{Header: rtp.Header{SequenceNumber: 1}})
	assert.Empty(t, released)
	assert.Nil(t, timer)
	assert.Equal(t, StateInitial, b.State())
	assert.Equal(t, uint64(1), b.Stats().PaddingDropped)
}

func TestSequenceNumberWrap(t *testing.T) {
	b, _ := newTestBuffer(100 * time.Millisecond)

	released, _ := b.Insert(pkt(65534))
	assert.Equal(t, []uint16{65534}, seqs(released))

	// 0 is after 65535, which is after 65534: both buffer until the run
	// completes.
	released, _ = b.Insert(pkt(0))
	assert.Empty(t, released)

	released, timer := b.Insert(pkt(65535))
	assert.Equal(t, []uint16{65535, 0}, seqs(released))
	assert.Nil(t, timer)

	// 65534 is now far in the past.
	released, _ = b.Insert(pkt(65534))
	assert.Empty(t, released)
	assert.Equal(t, uint64(1), b.Stats().LateDropped)
}

func TestReleasedSequenceStrictlyIncreasing(t *testing.T) {
	b, clock := newTestBuffer(50 * time.Millisecond)

	inserted := []uint16{65530, 65533, 65531, 2, 65535, 0, 65532, 1, 65534}
	var released []uint16
	for _, seq := range inserted {
		out, _ := b.Insert(pkt(seq))
		released = append(released, seqs(out)...)
		clock.advance(5 * time.Millisecond)
	}
	clock.advance(50 * time.Millisecond)
	out, _ := b.HandleTimeout()
	released = append(released, seqs(out)...)
	released = append(released, seqs(b.Flush())...)

	for i := 1; i < len(released); i++ {
		d := released[i] - released[i-1]
		assert.True(t, d != 0 && d < 1<<15,
			"sequence %d released after %d", released[i], released[i-1])
	}
}

func TestConservation(t *testing.T) {
	b, clock := newTestBuffer(50 * time.Millisecond)

	var releasedCount uint64
	count := func(out []*rtp.Packet) { releasedCount += uint64(len(out)) }

	inserts := []uint16{5, 7, 6, 5, 3, 9, 9, 8}
	for _, seq := range inserts {
		out, _ := b.Insert(pkt(seq))
		count(out)
		clock.advance(time.Millisecond)
	}
	count(b.Flush())

	stats := b.Stats()
	assert.Equal(t, releasedCount, stats.Released)
	// Every insert is classified: released, duplicate or late.
	assert.Equal(t, uint64(len(inserts)),
		stats.Released+stats.DuplicateDropped+stats.LateDropped)
}

func TestFlushDrainsInOrderAndResets(t *testing.T) {
	b, _ := newTestBuffer(100*time.Millisecond, WithInitialSequence(1))

	b.Insert(pkt(4))
	b.Insert(pkt(2))
	b.Insert(pkt(6))

	released := b.Flush()
	assert.Equal(t, []uint16{2, 4, 6}, seqs(released))
	assert.Equal(t, StateInitial, b.State())

	// Flush is idempotent.
	assert.Empty(t, b.Flush())

	// After a flush the next packet re-establishes the base.
	out, _ := b.Insert(pkt(5000))
	assert.Equal(t, []uint16{5000}, seqs(out))
}

func TestLatencyBound(t *testing.T) {
	latency := 100 * time.Millisecond
	b, clock := newTestBuffer(latency)

	b.Insert(pkt(1))
	arrivals := map[uint16]time.Time{}

	// Leave a gap at 2 so everything else waits on the timer.
	for _, seq := range []uint16{3, 4, 5} {
		arrivals[seq] = clock.now()
		b.Insert(pkt(seq))
		clock.advance(20 * time.Millisecond)
	}

	for {
		_, timer := b.Insert(&rtp.Packet{}) // padding probe keeps state intact
		if timer == nil {
			break
		}
		clock.advance(*timer)
		released, _ := b.HandleTimeout()
		for _, p := range released {
			if arrival, ok := arrivals[p.SequenceNumber]; ok {
				held := clock.now().Sub(arrival)
				assert.LessOrEqual(t, held, latency+time.Millisecond,
					"packet %d held %v beyond latency", p.SequenceNumber, held)
			}
		}
	}
}

func TestDefaultLatency(t *testing.T) {
	b := New(0)
	assert.Equal(t, DefaultLatency, b.latency)
}
