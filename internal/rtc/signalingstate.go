package rtc

import (
	"fmt"

	"rtckit/internal/core/domain"
)

// SignalingState is the JSEP (RFC 8829) signaling automaton state.
type SignalingState int

const (
	SignalingStateStable SignalingState = iota
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
)

func (s SignalingState) String() string {
	switch s {
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// descSource tells whether a description is being applied locally or arrived
// from the remote peer.
type descSource int

const (
	sourceLocal descSource = iota
	sourceRemote
)

func (s descSource) String() string {
	if s == sourceLocal {
		return "local"
	}
	return "remote"
}

type stateKey struct {
	from   SignalingState
	source descSource
	typ    SDPType
}

// The table is total on its documented inputs; anything absent is an invalid
// transition. Rollback never consults it.
var signalingTransitions = map[stateKey]SignalingState{
	{SignalingStateStable, sourceLocal, SDPTypeOffer}:  SignalingStateHaveLocalOffer,
	{SignalingStateStable, sourceRemote, SDPTypeOffer}: SignalingStateHaveRemoteOffer,

	{SignalingStateHaveLocalOffer, sourceLocal, SDPTypeOffer}:     SignalingStateHaveLocalOffer,
	{SignalingStateHaveLocalOffer, sourceRemote, SDPTypeAnswer}:   SignalingStateStable,
	{SignalingStateHaveLocalOffer, sourceRemote, SDPTypePranswer}: SignalingStateHaveRemotePranswer,

	{SignalingStateHaveRemoteOffer, sourceRemote, SDPTypeOffer}:   SignalingStateHaveRemoteOffer,
	{SignalingStateHaveRemoteOffer, sourceLocal, SDPTypeAnswer}:   SignalingStateStable,
	{SignalingStateHaveRemoteOffer, sourceLocal, SDPTypePranswer}: SignalingStateHaveLocalPranswer,

	{SignalingStateHaveLocalPranswer, sourceLocal, SDPTypePranswer}: SignalingStateHaveLocalPranswer,
	{SignalingStateHaveLocalPranswer, sourceLocal, SDPTypeAnswer}:   SignalingStateStable,

	{SignalingStateHaveRemotePranswer, sourceRemote, SDPTypePranswer}: SignalingStateHaveRemotePranswer,
	{SignalingStateHaveRemotePranswer, sourceRemote, SDPTypeAnswer}:   SignalingStateStable,
}

// nextSignalingState applies one (source, type) event to the automaton.
// The state is unchanged when the transition is rejected.
func nextSignalingState(from SignalingState, source descSource, typ SDPType) (SignalingState, error) {
	next, ok := signalingTransitions[stateKey{from, source, typ}]
	if !ok {
		return from, fmt.Errorf("%w: %s description of type %s in state %s",
			domain.ErrInvalidTransition, source, typ, from)
	}
	return next, nil
}
