package rtc

import (
	"testing"

	"rtckit/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalingTransitions(t *testing.T) {
	tests := []struct {
		name   string
		from   SignalingState
		source descSource
		typ    SDPType
		want   SignalingState
	}{
		{"local offer from stable", SignalingStateStable, sourceLocal, SDPTypeOffer, SignalingStateHaveLocalOffer},
		{"remote offer from stable", SignalingStateStable, sourceRemote, SDPTypeOffer, SignalingStateHaveRemoteOffer},
		{"local re-offer", SignalingStateHaveLocalOffer, sourceLocal, SDPTypeOffer, SignalingStateHaveLocalOffer},
		{"remote answer completes", SignalingStateHaveLocalOffer, sourceRemote, SDPTypeAnswer, SignalingStateStable},
		{"remote pranswer", SignalingStateHaveLocalOffer, sourceRemote, SDPTypePranswer, SignalingStateHaveRemotePranswer},
		{"remote re-offer", SignalingStateHaveRemoteOffer, sourceRemote, SDPTypeOffer, SignalingStateHaveRemoteOffer},
		{"local answer completes", SignalingStateHaveRemoteOffer, sourceLocal, SDPTypeAnswer, SignalingStateStable},
		{"local pranswer", SignalingStateHaveRemoteOffer, sourceLocal, SDPTypePranswer, SignalingStateHaveLocalPranswer},
		{"local pranswer repeat", SignalingStateHaveLocalPranswer, sourceLocal, SDPTypePranswer, SignalingStateHaveLocalPranswer},
		{"local pranswer finalized", SignalingStateHaveLocalPranswer, sourceLocal, SDPTypeAnswer, SignalingStateStable},
		{"remote pranswer repeat", SignalingStateHaveRemotePranswer, sourceRemote, SDPTypePranswer, SignalingStateHaveRemotePranswer},
		{"remote pranswer finalized", SignalingStateHaveRemotePranswer, sourceRemote, SDPTypeAnswer, SignalingStateStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextSignalingState(tt.from, tt.source, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignalingTransitions_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		from   SignalingState
		source descSource
		typ    SDPType
	}{
		{"answer in stable", SignalingStateStable, sourceLocal, SDPTypeAnswer},
		{"remote answer in stable", SignalingStateStable, sourceRemote, SDPTypeAnswer},
		{"pranswer in stable", SignalingStateStable, sourceLocal, SDPTypePranswer},
		{"local answer after local offer", SignalingStateHaveLocalOffer, sourceLocal, SDPTypeAnswer},
		{"local pranswer after local offer", SignalingStateHaveLocalOffer, sourceLocal, SDPTypePranswer},
		{"remote offer after local offer", SignalingStateHaveLocalOffer, sourceRemote, SDPTypeOffer},
		{"remote answer after remote offer", SignalingStateHaveRemoteOffer, sourceRemote, SDPTypeAnswer},
		{"local offer after remote offer", SignalingStateHaveRemoteOffer, sourceLocal, SDPTypeOffer},
		{"remote event in local pranswer", SignalingStateHaveLocalPranswer, sourceRemote, SDPTypeAnswer},
		{"local event in remote pranswer", SignalingStateHaveRemotePranswer, sourceLocal, SDPTypeAnswer},
		{"offer in local pranswer", SignalingStateHaveLocalPranswer, sourceLocal, SDPTypeOffer},
		{"anything in closed", SignalingStateClosed, sourceLocal, SDPTypeOffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextSignalingState(tt.from, tt.source, tt.typ)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
			// State is unchanged on rejection.
			assert.Equal(t, tt.from, got)
		})
	}
}
