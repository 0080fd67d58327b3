package rtc

import (
	"fmt"
	"strings"

	"github.com/pion/ice/v2"
	"github.com/pion/logging"
	"github.com/pion/stun"
)

// ICEConnectionState mirrors the ICE agent's connectivity state.
type ICEConnectionState int

const (
	ICEConnectionStateNew ICEConnectionState = iota
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateDisconnected
	ICEConnectionStateFailed
	ICEConnectionStateClosed
)

func (s ICEConnectionState) String() string {
	switch s {
	case ICEConnectionStateNew:
		return "new"
	case ICEConnectionStateChecking:
		return "checking"
	case ICEConnectionStateConnected:
		return "connected"
	case ICEConnectionStateCompleted:
		return "completed"
	case ICEConnectionStateDisconnected:
		return "disconnected"
	case ICEConnectionStateFailed:
		return "failed"
	case ICEConnectionStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// AgentRole is the ICE role the peer connection starts its agent in.
type AgentRole int

const (
	RoleControlled AgentRole = iota
	RoleControlling
)

// iceTransport is the slice of the ICE agent the peer connection consumes.
// Faked in tests.
type iceTransport interface {
	UserCredentials() (ufrag, pwd string, err error)
	SetRemoteCredentials(ufrag, pwd string) error
	GatherCandidates() error
	AddRemoteCandidate(attr string) error
	OnCandidate(f func(attr string))
	OnConnectionStateChange(f func(ICEConnectionState))
	Close() error
}

// iceAgent adapts a pion ICE agent to the iceTransport interface.
type iceAgent struct {
	agent *ice.Agent
	role  AgentRole
}

// newICEAgent starts a pion ICE agent seeded with the STUN URLs filtered
// from the configured ICE servers.
func newICEAgent(role AgentRole, stunURLs []string, lf logging.LoggerFactory) (*iceAgent, error) {
	var uris []*stun.URI
	for _, raw := range stunURLs {
		uri, err := stun.ParseURI(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ice server url %q: %w", raw, err)
		}
		uris = append(uris, uri)
	}

	agent, err := ice.NewAgent(&ice.AgentConfig{
		Urls:          uris,
		NetworkTypes:  []ice.NetworkType{ice.NetworkTypeUDP4, ice.NetworkTypeUDP6},
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ice agent: %w", err)
	}

	return &iceAgent{agent: agent, role: role}, nil
}

func (a *iceAgent) UserCredentials() (string, string, error) {
	return a.agent.GetLocalUserCredentials()
}

func (a *iceAgent) SetRemoteCredentials(ufrag, pwd string) error {
	return a.agent.SetRemoteCredentials(ufrag, pwd)
}

func (a *iceAgent) GatherCandidates() error {
	return a.agent.GatherCandidates()
}

func (a *iceAgent) AddRemoteCandidate(attr string) error {
	c, err := ice.UnmarshalCandidate(attr)
	if err != nil {
		return fmt.Errorf("invalid candidate %q: %w", attr, err)
	}
	return a.agent.AddRemoteCandidate(c)
}

func (a *iceAgent) OnCandidate(f func(attr string)) {
	_ = a.agent.OnCandidate(func(c ice.Candidate) {
		if c != nil {
			f(c.Marshal())
		}
	})
}

func (a *iceAgent) OnConnectionStateChange(f func(ICEConnectionState)) {
	_ = a.agent.OnConnectionStateChange(func(s ice.ConnectionState) {
		f(iceStateFromPion(s))
	})
}

func (a *iceAgent) Close() error {
	return a.agent.Close()
}

func iceStateFromPion(s ice.ConnectionState) ICEConnectionState {
	switch s {
	case ice.ConnectionStateChecking:
		return ICEConnectionStateChecking
	case ice.ConnectionStateConnected:
		return ICEConnectionStateConnected
	case ice.ConnectionStateCompleted:
		return ICEConnectionStateCompleted
	case ice.ConnectionStateDisconnected:
		return ICEConnectionStateDisconnected
	case ice.ConnectionStateFailed:
		return ICEConnectionStateFailed
	case ice.ConnectionStateClosed:
		return ICEConnectionStateClosed
	default:
		return ICEConnectionStateNew
	}
}

// trimCandidatePrefix strips the "candidate:" prefix carried by signaling
// messages; the ICE agent expects the bare attribute.
func trimCandidatePrefix(candidate string) string {
	return strings.TrimPrefix(candidate, "candidate:")
}
