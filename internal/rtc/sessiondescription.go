package rtc

import (
	"encoding/json"
	"fmt"
)

// SDPType classifies a session description.
type SDPType int

const (
	SDPTypeOffer SDPType = iota
	SDPTypePranswer
	SDPTypeAnswer
	SDPTypeRollback
)

func (t SDPType) String() string {
	switch t {
	case SDPTypeOffer:
		return "offer"
	case SDPTypePranswer:
		return "pranswer"
	case SDPTypeAnswer:
		return "answer"
	case SDPTypeRollback:
		return "rollback"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// NewSDPType parses the wire form used in signaling messages.
func NewSDPType(raw string) (SDPType, error) {
	switch raw {
	case "offer":
		return SDPTypeOffer, nil
	case "pranswer":
		return SDPTypePranswer, nil
	case "answer":
		return SDPTypeAnswer, nil
	case "rollback":
		return SDPTypeRollback, nil
	default:
		return 0, fmt.Errorf("unknown sdp type %q", raw)
	}
}

func (t SDPType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *SDPType) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := NewSDPType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SessionDescription pairs an SDP body with its negotiation role. The SDP is
// empty for rollback.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}
