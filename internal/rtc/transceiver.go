package rtc

import (
	"fmt"

	"rtckit/internal/core/domain"

	"github.com/pion/randutil"
)

// Direction is the negotiated flow of media on a transceiver.
type Direction int

const (
	DirectionSendrecv Direction = iota
	DirectionSendonly
	DirectionRecvonly
	DirectionInactive
	DirectionStopped
)

func (d Direction) String() string {
	switch d {
	case DirectionSendrecv:
		return "sendrecv"
	case DirectionSendonly:
		return "sendonly"
	case DirectionRecvonly:
		return "recvonly"
	case DirectionInactive:
		return "inactive"
	case DirectionStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(d))
	}
}

func (d Direction) hasSend() bool {
	return d == DirectionSendrecv || d == DirectionSendonly
}

func (d Direction) hasRecv() bool {
	return d == DirectionSendrecv || d == DirectionRecvonly
}

// directionFromAttr maps an SDP direction attribute key to a Direction.
func directionFromAttr(key string) (Direction, bool) {
	switch key {
	case "sendrecv":
		return DirectionSendrecv, true
	case "sendonly":
		return DirectionSendonly, true
	case "recvonly":
		return DirectionRecvonly, true
	case "inactive":
		return DirectionInactive, true
	default:
		return 0, false
	}
}

// invert swaps the send and receive halves, turning a remote direction into
// the local view of the same m-line.
func (d Direction) invert() Direction {
	switch d {
	case DirectionSendonly:
		return DirectionRecvonly
	case DirectionRecvonly:
		return DirectionSendonly
	default:
		return d
	}
}

// answerDirection intersects local intent with the inverted remote direction,
// per JSEP answer generation.
func answerDirection(local, remote Direction) Direction {
	wanted := remote.invert()
	send := local.hasSend() && wanted.hasSend()
	recv := local.hasRecv() && wanted.hasRecv()
	switch {
	case send && recv:
		return DirectionSendrecv
	case send:
		return DirectionSendonly
	case recv:
		return DirectionRecvonly
	default:
		return DirectionInactive
	}
}

// RTPSender is the sending half of a transceiver. The track reference is by
// identity; media itself never passes through this package.
type RTPSender struct {
	Track   *domain.MediaStreamTrack
	SSRC    uint32
	RTXSSRC uint32
}

// RTPReceiver is the receiving half. Its track is created when a remote
// description declares an inbound stream.
type RTPReceiver struct {
	Track *domain.MediaStreamTrack
}

// TransceiverOptions tunes transceiver creation. The zero value means a
// sendrecv transceiver with random SSRCs and the configuration's codecs.
type TransceiverOptions struct {
	SSRC      uint32
	RTXSSRC   uint32
	Direction Direction
	Codecs    []RTPCodecParameters
}

// RTPTransceiver pairs one sender and one receiver sharing a mid. Owned
// exclusively by its peer connection; not safe for concurrent use.
type RTPTransceiver struct {
	mid        string
	kind       domain.TrackKind
	direction  Direction
	sender     RTPSender
	receiver   RTPReceiver
	codecs     []RTPCodecParameters
	extensions []string
	rtxEnabled bool
}

var ssrcGenerator = randutil.NewMathRandomGenerator()

// NewTransceiver builds a transceiver for the given kind, optionally bound to
// a local send track. An RTX SSRC is allocated only when the configuration
// enables RTX and the codec list carries an RTX entry.
func NewTransceiver(kind domain.TrackKind, track *domain.MediaStreamTrack, cfg Configuration, opts TransceiverOptions) (*RTPTransceiver, error) {
	if track != nil && track.Kind != kind {
		return nil, fmt.Errorf("track kind %s does not match transceiver kind %s", track.Kind, kind)
	}

	codecs := opts.Codecs
	if codecs == nil {
		codecs = cfg.codecsForKind(kind)
	}

	// An RTX entry only counts when its apt references a primary payload
	// type present in the same list.
	primaryPTs := make(map[int]struct{})
	for _, c := range codecs {
		if !c.IsRTX() {
			primaryPTs[int(c.PayloadType)] = struct{}{}
		}
	}
	hasRTXCodec := false
	for _, c := range codecs {
		if !c.IsRTX() {
			continue
		}
		if _, ok := primaryPTs[c.aptPayloadType()]; ok {
			hasRTXCodec = true
			break
		}
	}
	rtxEnabled := cfg.RTXEnabled() && hasRTXCodec

	ssrc := opts.SSRC
	if ssrc == 0 {
		ssrc = ssrcGenerator.Uint32()
	}
	var rtxSSRC uint32
	if rtxEnabled {
		if opts.RTXSSRC != 0 && opts.RTXSSRC == ssrc {
			return nil, fmt.Errorf("rtx ssrc must differ from primary ssrc %d", ssrc)
		}
		rtxSSRC = opts.RTXSSRC
		for rtxSSRC == 0 || rtxSSRC == ssrc {
			rtxSSRC = ssrcGenerator.Uint32()
		}
	}

	return &RTPTransceiver{
		kind:      kind,
		direction: opts.Direction,
		sender: RTPSender{
			Track:   track,
			SSRC:    ssrc,
			RTXSSRC: rtxSSRC,
		},
		codecs:     codecs,
		extensions: cfg.HeaderExtensions,
		rtxEnabled: rtxEnabled,
	}, nil
}

func (t *RTPTransceiver) Mid() string                 { return t.mid }
func (t *RTPTransceiver) Kind() domain.TrackKind      { return t.kind }
func (t *RTPTransceiver) Direction() Direction        { return t.direction }
func (t *RTPTransceiver) Sender() RTPSender           { return t.sender }
func (t *RTPTransceiver) Receiver() RTPReceiver       { return t.receiver }
func (t *RTPTransceiver) Codecs() []RTPCodecParameters { return t.codecs }
func (t *RTPTransceiver) RTXEnabled() bool            { return t.rtxEnabled }

func (t *RTPTransceiver) setMid(mid string)           { t.mid = mid }
func (t *RTPTransceiver) setDirection(d Direction)    { t.direction = d }

// stop marks the transceiver stopped. Stopped transceivers keep their slot;
// they are never removed before the connection closes.
func (t *RTPTransceiver) stop() { t.direction = DirectionStopped }
