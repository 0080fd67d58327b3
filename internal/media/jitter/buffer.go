// Package jitter reorders inbound RTP packets and times their release so the
// stream leaves strictly sequence-ordered while each packet is delayed by at
// most the configured latency beyond its arrival.
package jitter

import (
	"sort"
	"time"

	"github.com/pion/rtp"
)

// DefaultLatency bounds packet delay when the caller does not choose one.
const DefaultLatency = 100 * time.Millisecond

// State tracks the buffer lifecycle.
type State int

const (
	// StateInitial: no packet seen since creation or the last flush.
	StateInitial State = iota
	// StateBuffering: packets seen, nothing currently pending.
	StateBuffering
	// StateTimerSet: packets pending, a release deadline is armed.
	StateTimerSet
)

// Stats counts packet classification. Every inserted packet is released,
// dropped as duplicate, dropped as late, or dropped as padding.
type Stats struct {
	Inserted         uint64
	Released         uint64
	DuplicateDropped uint64
	LateDropped      uint64
	PaddingDropped   uint64
}

type entry struct {
	packet  *rtp.Packet
	arrival time.Time
}

// Buffer is owned by a single task: every operation returns the packets to
// release and the delay after which HandleTimeout must be called, or nil when
// nothing is pending. There is no internal locking or timer.
type Buffer struct {
	latency      time.Duration
	state        State
	entries      []entry // ordered by serial-arithmetic rank from nextExpected
	nextExpected uint16
	baseSeeded   bool
	stats        Stats

	now func() time.Time
}

// Option tunes buffer construction.
type Option func(*Buffer)

// WithInitialSequence pre-seeds the base sequence number, e.g. from
// signaling, so reordered startup packets older than the first arrival are
// still accepted.
func WithInitialSequence(seq uint16) Option {
	return func(b *Buffer) {
		b.nextExpected = seq
		b.baseSeeded = true
	}
}

// New creates a buffer in the initial state. A non-positive latency selects
// DefaultLatency.
func New(latency time.Duration, opts ...Option) *Buffer {
	if latency <= 0 {
		latency = DefaultLatency
	}
	b := &Buffer{
		latency: latency,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Buffer) State() State { return b.state }
func (b *Buffer) Stats() Stats { return b.stats }

// Insert stores one packet keyed by its sequence number and releases every
// packet that is already in order or overdue. Padding (empty payload),
// duplicates and late arrivals are dropped and counted. The returned timer is
// the delay until the next deadline, nil when nothing is pending.
func (b *Buffer) Insert(packet *rtp.Packet) ([]*rtp.Packet, *time.Duration) {
	now := b.now()

	if packet == nil || len(packet.Payload) == 0 {
		b.stats.PaddingDropped++
		return nil, b.armTimer(now)
	}

	seq := packet.SequenceNumber
	if b.state == StateInitial {
		if !b.baseSeeded {
			b.nextExpected = seq
		}
		b.state = StateBuffering
	}

	if seqBefore(seq, b.nextExpected) {
		b.stats.LateDropped++
		return nil, b.armTimer(now)
	}

	idx := b.search(seq)
	if idx < len(b.entries) && b.entries[idx].packet.SequenceNumber == seq {
		b.stats.DuplicateDropped++
		return nil, b.armTimer(now)
	}

	b.entries = append(b.entries, entry{})
	copy(b.entries[idx+1:], b.entries[idx:])
	b.entries[idx] = entry{packet: packet, arrival: now}
	b.stats.Inserted++

	released := b.popReady(now)
	return released, b.armTimer(now)
}

// HandleTimeout releases the earliest pending packet unconditionally, then
// any contiguous or overdue successors. Called by the owner when the timer
// returned by the previous operation expires.
func (b *Buffer) HandleTimeout() ([]*rtp.Packet, *time.Duration) {
	now := b.now()
	if len(b.entries) == 0 {
		return nil, nil
	}

	released := []*rtp.Packet{b.release(0)}
	released = append(released, b.popReady(now)...)
	return released, b.armTimer(now)
}

// Flush drains every pending packet in sequence order and returns the buffer
// to the initial state. Flushing an empty buffer releases nothing.
func (b *Buffer) Flush() []*rtp.Packet {
	released := make([]*rtp.Packet, 0, len(b.entries))
	for len(b.entries) > 0 {
		released = append(released, b.release(0))
	}
	b.state = StateInitial
	b.baseSeeded = false
	return released
}

// popReady releases the prefix of packets that are contiguous at
// nextExpected or whose latency deadline has passed.
func (b *Buffer) popReady(now time.Time) []*rtp.Packet {
	var released []*rtp.Packet
	for len(b.entries) > 0 {
		head := b.entries[0]
		seq := head.packet.SequenceNumber
		if seq != b.nextExpected && head.arrival.Add(b.latency).After(now) {
			break
		}
		released = append(released, b.release(0))
	}
	return released
}

// release removes entry i, advancing nextExpected past its sequence number.
func (b *Buffer) release(i int) *rtp.Packet {
	packet := b.entries[i].packet
	copy(b.entries[i:], b.entries[i+1:])
	b.entries = b.entries[:len(b.entries)-1]
	b.nextExpected = packet.SequenceNumber + 1
	b.stats.Released++
	return packet
}

// armTimer computes the delay until the earliest pending deadline and sets
// the state accordingly.
func (b *Buffer) armTimer(now time.Time) *time.Duration {
	if len(b.entries) == 0 {
		if b.state == StateTimerSet {
			b.state = StateBuffering
		}
		return nil
	}
	earliest := b.entries[0].arrival
	for _, e := range b.entries[1:] {
		if e.arrival.Before(earliest) {
			earliest = e.arrival
		}
	}
	d := earliest.Add(b.latency).Sub(now)
	if d < 0 {
		d = 0
	}
	b.state = StateTimerSet
	return &d
}

// search returns the position of seq in the ordered entry slice.
func (b *Buffer) search(seq uint16) int {
	base := b.nextExpected
	return sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].packet.SequenceNumber-base >= seq-base
	})
}

// seqBefore reports whether a precedes b in RFC 1982 serial arithmetic.
// Sequence numbers wrap at 1<<16; naive comparison is incorrect there.
func seqBefore(a, b uint16) bool {
	d := b - a
	return d != 0 && d < 1<<15
}
