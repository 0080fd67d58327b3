package rtc

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"strconv"
	"strings"

	"rtckit/internal/core/domain"

	"github.com/pion/dtls/v2/pkg/crypto/fingerprint"
	"github.com/pion/dtls/v2/pkg/crypto/selfsign"
	"github.com/pion/logging"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"go.uber.org/zap"
)

// ConnectionState maps ICE agent health into the owner-visible connection
// state. DTLS state does not feed into it.
type ConnectionState int

const (
	ConnectionStateNew ConnectionState = iota
	ConnectionStateConnecting
	ConnectionStateConnected
	ConnectionStateDisconnected
	ConnectionStateFailed
	ConnectionStateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Event is delivered to the owner through Events() in FIFO order.
type Event interface{ isEvent() }

// ICECandidateEvent carries a freshly gathered local candidate attribute,
// without the "candidate:" prefix.
type ICECandidateEvent struct {
	Candidate string
}

// ConnectionStateChangeEvent reports a connection state transition. A Failed
// state is terminal.
type ConnectionStateChangeEvent struct {
	State ConnectionState
}

// TrackEvent announces a remote track declared by an applied remote
// description.
type TrackEvent struct {
	Track *domain.MediaStreamTrack
	Mid   string
}

// RTPPacketEvent carries one media-plane packet attributed to a track. The
// RID is empty unless the remote uses simulcast restrictions.
type RTPPacketEvent struct {
	TrackID string
	RID     string
	Packet  *rtp.Packet
}

func (ICECandidateEvent) isEvent()          {}
func (ConnectionStateChangeEvent) isEvent() {}
func (TrackEvent) isEvent()                 {}
func (RTPPacketEvent) isEvent()             {}

const ownerMailboxSize = 64

// Metrics receives counters from the peer connection. Satisfied by
// monitoring.Collector; a nil Metrics disables collection.
type Metrics interface {
	StateTransition(state string)
	CandidateGathered()
}

// PeerConnection owns the signaling state, transceivers and the ICE agent of
// one WebRTC session. All mutable state is confined to a single goroutine;
// public methods enqueue operations and wait for the reply. Events are
// delivered to the owner without blocking: when the owner mailbox overflows
// the oldest event is dropped.
type PeerConnection struct {
	cfg     Configuration
	logger  *zap.SugaredLogger
	metrics Metrics

	ops    chan func()
	events chan Event
	done   chan struct{}

	// Everything below is owned by the run loop.
	ice               iceTransport
	signalingState    SignalingState
	connectionState   ConnectionState
	currentLocalDesc  *SessionDescription
	pendingLocalDesc  *SessionDescription
	currentRemoteDesc *SessionDescription
	pendingRemoteDesc *SessionDescription
	remoteParsed      *sdp.SessionDescription
	remoteFingerprint string
	transceivers      []*RTPTransceiver
	nextMid           int
	sessionID         uint64
	sessionVersion    uint64
	fingerprint       string
}

// Start validates the configuration, generates a DTLS certificate
// fingerprint and launches the owning goroutine with an ICE agent in the
// controlled role. A nil metrics disables collection.
func Start(cfg Configuration, log *zap.Logger, metrics Metrics) (*PeerConnection, error) {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cert, err := selfsign.GenerateSelfSigned()
	if err != nil {
		return nil, fmt.Errorf("failed to generate certificate: %w", err)
	}
	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	fp, err := fingerprint.Fingerprint(x509Cert, crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint certificate: %w", err)
	}

	agent, err := newICEAgent(RoleControlled, cfg.stunURLs(), logging.NewDefaultLoggerFactory())
	if err != nil {
		return nil, err
	}

	return start(cfg, agent, fp, log, metrics)
}

// start finishes construction with an injectable ICE transport.
func start(cfg Configuration, agent iceTransport, fp string, log *zap.Logger, metrics Metrics) (*PeerConnection, error) {
	pc := &PeerConnection{
		cfg:         cfg,
		logger:      log.Sugar(),
		metrics:     metrics,
		ops:         make(chan func(), 32),
		events:      make(chan Event, ownerMailboxSize),
		done:        make(chan struct{}),
		ice:         agent,
		fingerprint: fp,
		sessionID:   uint64(ssrcGenerator.Uint32())<<31 | uint64(ssrcGenerator.Uint32()),
	}

	agent.OnCandidate(func(attr string) {
		pc.enqueue(func() {
			if pc.metrics != nil {
				pc.metrics.CandidateGathered()
			}
			pc.emit(ICECandidateEvent{Candidate: attr})
		})
	})
	agent.OnConnectionStateChange(func(state ICEConnectionState) {
		pc.enqueue(func() {
			pc.applyICEState(state)
		})
	})

	go pc.run()
	return pc, nil
}

// Events returns the owner mailbox. The channel is closed when the
// connection terminates.
func (pc *PeerConnection) Events() <-chan Event {
	return pc.events
}

func (pc *PeerConnection) run() {
	defer close(pc.events)
	for {
		select {
		case op := <-pc.ops:
			op()
		case <-pc.done:
			return
		}
	}
}

// execute runs f on the owning goroutine and waits for its reply. Callers
// abandoning the wait do not cancel the operation.
func (pc *PeerConnection) execute(f func() error) error {
	reply := make(chan error, 1)
	started := make(chan struct{})
	select {
	case pc.ops <- func() { close(started); reply <- f() }:
	case <-pc.done:
		return domain.ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-pc.done:
		// The operation may have run in the same instant the connection
		// shut down (Close itself does); prefer its actual result.
		select {
		case <-started:
			return <-reply
		default:
			return domain.ErrClosed
		}
	}
}

// enqueue posts a fire-and-forget operation, used by ICE agent callbacks.
func (pc *PeerConnection) enqueue(op func()) {
	select {
	case pc.ops <- op:
	case <-pc.done:
	}
}

// emit delivers an event to the owner, dropping the oldest pending event
// when the mailbox is full.
func (pc *PeerConnection) emit(ev Event) {
	for {
		select {
		case pc.events <- ev:
			return
		default:
		}
		select {
		case dropped := <-pc.events:
			pc.logger.Warnw("owner mailbox full, dropping oldest event",
				"dropped", fmt.Sprintf("%T", dropped))
		default:
		}
	}
}

// AddTrack creates a sendrecv transceiver carrying the given local track.
func (pc *PeerConnection) AddTrack(track *domain.MediaStreamTrack) (*RTPTransceiver, error) {
	if track == nil {
		return nil, fmt.Errorf("track must not be nil")
	}
	return pc.addTransceiver(track.Kind, track, TransceiverOptions{})
}

// AddTransceiver creates a transceiver without a send track.
func (pc *PeerConnection) AddTransceiver(kind domain.TrackKind, opts TransceiverOptions) (*RTPTransceiver, error) {
	return pc.addTransceiver(kind, nil, opts)
}

func (pc *PeerConnection) addTransceiver(kind domain.TrackKind, track *domain.MediaStreamTrack, opts TransceiverOptions) (*RTPTransceiver, error) {
	var tr *RTPTransceiver
	err := pc.execute(func() error {
		if pc.signalingState == SignalingStateClosed {
			return domain.ErrClosed
		}
		t, err := NewTransceiver(kind, track, pc.cfg, opts)
		if err != nil {
			return err
		}
		pc.transceivers = append(pc.transceivers, t)
		tr = t
		return nil
	})
	return tr, err
}

// GetTransceivers snapshots the transceiver list.
func (pc *PeerConnection) GetTransceivers() []*RTPTransceiver {
	var out []*RTPTransceiver
	_ = pc.execute(func() error {
		out = append(out, pc.transceivers...)
		return nil
	})
	return out
}

// SignalingState reports the current signaling state.
func (pc *PeerConnection) SignalingState() SignalingState {
	state := SignalingStateClosed
	_ = pc.execute(func() error {
		state = pc.signalingState
		return nil
	})
	return state
}

// ConnectionState reports the aggregated connection state.
func (pc *PeerConnection) ConnectionState() ConnectionState {
	state := ConnectionStateClosed
	_ = pc.execute(func() error {
		state = pc.connectionState
		return nil
	})
	return state
}

// LocalDescription returns the pending local description if one exists,
// otherwise the current one.
func (pc *PeerConnection) LocalDescription() *SessionDescription {
	var desc *SessionDescription
	_ = pc.execute(func() error {
		if pc.pendingLocalDesc != nil {
			desc = pc.pendingLocalDesc
		} else {
			desc = pc.currentLocalDesc
		}
		return nil
	})
	return desc
}

// RemoteDescription returns the pending remote description if one exists,
// otherwise the current one.
func (pc *PeerConnection) RemoteDescription() *SessionDescription {
	var desc *SessionDescription
	_ = pc.execute(func() error {
		if pc.pendingRemoteDesc != nil {
			desc = pc.pendingRemoteDesc
		} else {
			desc = pc.currentRemoteDesc
		}
		return nil
	})
	return desc
}

// CreateOffer assembles an offer from the current transceivers, assigning
// mids to those that lack one.
func (pc *PeerConnection) CreateOffer() (SessionDescription, error) {
	var desc SessionDescription
	err := pc.execute(func() error {
		if pc.signalingState == SignalingStateClosed {
			return domain.ErrClosed
		}

		for _, t := range pc.transceivers {
			if t.Mid() == "" {
				t.setMid(strconv.Itoa(pc.nextMid))
				pc.nextMid++
			}
		}

		sp, err := pc.sessionParams("actpass")
		if err != nil {
			return err
		}

		mids := make([]string, 0, len(pc.transceivers))
		for _, t := range pc.transceivers {
			mids = append(mids, t.Mid())
		}

		session := pc.newSessionSDP(mids)
		for _, t := range pc.transceivers {
			session.MediaDescriptions = append(session.MediaDescriptions, t.OfferMediaDescription(sp))
		}

		raw, err := session.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal offer: %w", err)
		}
		desc = SessionDescription{Type: SDPTypeOffer, SDP: string(raw)}
		return nil
	})
	return desc, err
}

// CreateAnswer mirrors the remote offer's m-lines, reconciling each
// direction with the local transceiver's intent. Valid only with a pending
// remote offer.
func (pc *PeerConnection) CreateAnswer() (SessionDescription, error) {
	var desc SessionDescription
	err := pc.execute(func() error {
		switch pc.signalingState {
		case SignalingStateHaveRemoteOffer, SignalingStateHaveLocalPranswer:
		case SignalingStateClosed:
			return domain.ErrClosed
		default:
			return fmt.Errorf("%w: cannot create answer in state %s", domain.ErrInvalidState, pc.signalingState)
		}
		if pc.remoteParsed == nil {
			return fmt.Errorf("%w: no remote description applied", domain.ErrInvalidState)
		}

		sp, err := pc.sessionParams("active")
		if err != nil {
			return err
		}

		var mids []string
		var medias []*sdp.MediaDescription
		for _, remote := range pc.remoteParsed.MediaDescriptions {
			mid, ok := attributeValue(remote.Attributes, "mid")
			if !ok {
				return fmt.Errorf("%w: remote m-line without mid", domain.ErrInvalidSDP)
			}
			t := pc.findTransceiverByMid(mid)
			if t == nil {
				return fmt.Errorf("%w: no transceiver for mid %s", domain.ErrInvalidSDP, mid)
			}
			dir := answerDirection(t.Direction(), remoteDirection(remote.Attributes))
			mids = append(mids, mid)
			medias = append(medias, t.mediaDescription(sp, dir))
		}

		session := pc.newSessionSDP(mids)
		session.MediaDescriptions = medias

		raw, err := session.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		desc = SessionDescription{Type: SDPTypeAnswer, SDP: string(raw)}
		return nil
	})
	return desc, err
}

// SetLocalDescription applies a local description per the signaling state
// machine.
func (pc *PeerConnection) SetLocalDescription(desc SessionDescription) error {
	return pc.execute(func() error {
		return pc.setDescription(desc, sourceLocal)
	})
}

// SetRemoteDescription applies a remote description per the signaling state
// machine, configuring the ICE agent and reconciling transceivers.
func (pc *PeerConnection) SetRemoteDescription(desc SessionDescription) error {
	return pc.execute(func() error {
		return pc.setDescription(desc, sourceRemote)
	})
}

func (pc *PeerConnection) setDescription(desc SessionDescription, source descSource) error {
	if pc.signalingState == SignalingStateClosed {
		return domain.ErrClosed
	}

	if desc.Type == SDPTypeRollback {
		pc.rollback(source)
		return nil
	}

	next, err := nextSignalingState(pc.signalingState, source, desc.Type)
	if err != nil {
		return err
	}

	parsed := &sdp.SessionDescription{}
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidSDP, err)
	}

	if source == sourceRemote {
		if err := pc.applyRemoteDescription(parsed); err != nil {
			return err
		}
	}

	d := desc
	switch {
	case source == sourceLocal && desc.Type == SDPTypeOffer:
		pc.pendingLocalDesc = &d
	case source == sourceLocal && desc.Type == SDPTypePranswer:
		pc.pendingLocalDesc = &d
	case source == sourceLocal && desc.Type == SDPTypeAnswer:
		pc.currentLocalDesc = &d
		pc.currentRemoteDesc = pc.pendingRemoteDesc
		pc.pendingLocalDesc = nil
		pc.pendingRemoteDesc = nil
	case source == sourceRemote && desc.Type == SDPTypeOffer:
		pc.pendingRemoteDesc = &d
		pc.remoteParsed = parsed
	case source == sourceRemote && desc.Type == SDPTypePranswer:
		pc.pendingRemoteDesc = &d
		pc.remoteParsed = parsed
	case source == sourceRemote && desc.Type == SDPTypeAnswer:
		pc.currentRemoteDesc = &d
		pc.currentLocalDesc = pc.pendingLocalDesc
		pc.pendingLocalDesc = nil
		pc.pendingRemoteDesc = nil
		pc.remoteParsed = parsed
	}

	pc.logger.Debugw("signaling state transition",
		"from", pc.signalingState.String(),
		"to", next.String(),
		"source", source.String(),
		"type", desc.Type.String(),
	)
	pc.signalingState = next
	if pc.metrics != nil {
		pc.metrics.StateTransition(next.String())
	}
	return nil
}

// rollback discards the pending description on one side and returns to
// stable. Always accepted.
func (pc *PeerConnection) rollback(source descSource) {
	if source == sourceLocal {
		pc.pendingLocalDesc = nil
	} else {
		pc.pendingRemoteDesc = nil
		pc.remoteParsed = nil
	}
	pc.signalingState = SignalingStateStable
	if pc.metrics != nil {
		pc.metrics.StateTransition(SignalingStateStable.String())
	}
}

// applyRemoteDescription extracts ICE credentials and the DTLS fingerprint,
// hands them to the ICE agent, starts gathering and reconciles transceivers
// with the remote m-lines.
func (pc *PeerConnection) applyRemoteDescription(parsed *sdp.SessionDescription) error {
	ufrag, pwd, ok := remoteCredentials(parsed)
	if !ok {
		return fmt.Errorf("%w: missing ice credentials", domain.ErrInvalidSDP)
	}
	if fp, ok := remoteFingerprint(parsed); ok {
		pc.remoteFingerprint = fp
	}

	if err := pc.ice.SetRemoteCredentials(ufrag, pwd); err != nil {
		return fmt.Errorf("failed to set remote ice credentials: %w", err)
	}
	if err := pc.ice.GatherCandidates(); err != nil {
		return fmt.Errorf("failed to start candidate gathering: %w", err)
	}

	for _, media := range parsed.MediaDescriptions {
		kind := domain.TrackKind(media.MediaName.Media)
		if kind != domain.TrackKindAudio && kind != domain.TrackKindVideo {
			continue
		}
		mid, ok := attributeValue(media.Attributes, "mid")
		if !ok {
			return fmt.Errorf("%w: remote m-line without mid", domain.ErrInvalidSDP)
		}

		t := pc.findTransceiverByMid(mid)
		if t == nil {
			t = pc.claimTransceiver(kind, mid)
		}
		if t == nil {
			created, err := NewTransceiver(kind, nil, pc.cfg, TransceiverOptions{Direction: DirectionRecvonly})
			if err != nil {
				return err
			}
			created.setMid(mid)
			pc.transceivers = append(pc.transceivers, created)
			t = created
		}

		if remoteDirection(media.Attributes).hasSend() && t.receiver.Track == nil {
			var streamIDs []string
			if msid, ok := attributeValue(media.Attributes, "msid"); ok {
				if fields := strings.Fields(msid); len(fields) > 0 && fields[0] != "-" {
					streamIDs = []string{fields[0]}
				}
			}
			track := domain.NewMediaStreamTrack(kind, streamIDs...)
			t.receiver.Track = track
			pc.emit(TrackEvent{Track: track, Mid: mid})
		}
	}
	return nil
}

// claimTransceiver finds an unnegotiated transceiver of the right kind and
// binds it to a remote mid.
func (pc *PeerConnection) claimTransceiver(kind domain.TrackKind, mid string) *RTPTransceiver {
	for _, t := range pc.transceivers {
		if t.Mid() == "" && t.Kind() == kind {
			t.setMid(mid)
			return t
		}
	}
	return nil
}

// AddICECandidate forwards a remote candidate attribute to the ICE agent.
// The "candidate:" prefix used on the signaling wire is stripped.
func (pc *PeerConnection) AddICECandidate(candidate string) error {
	return pc.execute(func() error {
		if pc.signalingState == SignalingStateClosed {
			return domain.ErrClosed
		}
		return pc.ice.AddRemoteCandidate(trimCandidatePrefix(candidate))
	})
}

// DeliverRTP attributes a media-plane packet to a track and forwards it to
// the owner. Called by the inbound media pipeline; never blocks on a slow
// owner.
func (pc *PeerConnection) DeliverRTP(trackID, rid string, packet *rtp.Packet) {
	pc.enqueue(func() {
		pc.emit(RTPPacketEvent{TrackID: trackID, RID: rid, Packet: packet})
	})
}

// Close stops the ICE agent, stops every transceiver and terminates the
// owning goroutine. Idempotent; outstanding calls fail with ErrClosed.
func (pc *PeerConnection) Close() error {
	return pc.execute(func() error {
		pc.shutdown(ConnectionStateClosed)
		return nil
	})
}

// applyICEState folds an ICE agent state change into the connection state.
func (pc *PeerConnection) applyICEState(state ICEConnectionState) {
	var next ConnectionState
	switch state {
	case ICEConnectionStateChecking:
		next = ConnectionStateConnecting
	case ICEConnectionStateConnected, ICEConnectionStateCompleted:
		next = ConnectionStateConnected
	case ICEConnectionStateDisconnected:
		next = ConnectionStateDisconnected
	case ICEConnectionStateFailed:
		next = ConnectionStateFailed
	case ICEConnectionStateClosed:
		next = ConnectionStateClosed
	default:
		next = ConnectionStateNew
	}
	if next == pc.connectionState {
		return
	}
	if next == ConnectionStateFailed {
		pc.shutdown(ConnectionStateFailed)
		return
	}
	pc.connectionState = next
	pc.emit(ConnectionStateChangeEvent{State: next})
}

// shutdown moves to a terminal state. Runs on the owning goroutine.
func (pc *PeerConnection) shutdown(terminal ConnectionState) {
	if pc.signalingState == SignalingStateClosed {
		return
	}
	pc.signalingState = SignalingStateClosed
	pc.connectionState = terminal
	for _, t := range pc.transceivers {
		t.stop()
	}
	pc.transceivers = nil
	if err := pc.ice.Close(); err != nil {
		pc.logger.Warnw("failed to close ice agent", "error", err)
	}
	pc.emit(ConnectionStateChangeEvent{State: terminal})
	close(pc.done)
}

func (pc *PeerConnection) sessionParams(setup string) (SessionParams, error) {
	ufrag, pwd, err := pc.ice.UserCredentials()
	if err != nil {
		return SessionParams{}, fmt.Errorf("failed to get local ice credentials: %w", err)
	}
	return SessionParams{
		ICEUfrag:             ufrag,
		ICEPwd:               pwd,
		ICEOptions:           "trickle",
		FingerprintAlgorithm: "sha-256",
		Fingerprint:          pc.fingerprint,
		Setup:                setup,
	}, nil
}

func (pc *PeerConnection) newSessionSDP(mids []string) *sdp.SessionDescription {
	pc.sessionVersion++
	s := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      pc.sessionID,
			SessionVersion: pc.sessionVersion,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName:      "-",
		TimeDescriptions: []sdp.TimeDescription{{}},
	}
	if len(mids) > 0 {
		s.Attributes = append(s.Attributes, sdp.NewAttribute("group", "BUNDLE "+strings.Join(mids, " ")))
	}
	s.Attributes = append(s.Attributes, sdp.Attribute{Key: "msid-semantic", Value: " WMS"})
	return s
}

func (pc *PeerConnection) findTransceiverByMid(mid string) *RTPTransceiver {
	for _, t := range pc.transceivers {
		if t.Mid() == mid {
			return t
		}
	}
	return nil
}

func attributeValue(attrs []sdp.Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// remoteDirection reads the direction attribute of a remote m-line,
// defaulting to sendrecv.
func remoteDirection(attrs []sdp.Attribute) Direction {
	for _, a := range attrs {
		if d, ok := directionFromAttr(a.Key); ok {
			return d
		}
	}
	return DirectionSendrecv
}

// remoteCredentials finds ICE credentials at the session level or on any
// m-line.
func remoteCredentials(parsed *sdp.SessionDescription) (string, string, bool) {
	ufrag, uok := attributeValue(parsed.Attributes, "ice-ufrag")
	pwd, pok := attributeValue(parsed.Attributes, "ice-pwd")
	if uok && pok {
		return ufrag, pwd, true
	}
	for _, m := range parsed.MediaDescriptions {
		ufrag, uok = attributeValue(m.Attributes, "ice-ufrag")
		pwd, pok = attributeValue(m.Attributes, "ice-pwd")
		if uok && pok {
			return ufrag, pwd, true
		}
	}
	return "", "", false
}

func remoteFingerprint(parsed *sdp.SessionDescription) (string, bool) {
	if fp, ok := attributeValue(parsed.Attributes, "fingerprint"); ok {
		return fp, true
	}
	for _, m := range parsed.MediaDescriptions {
		if fp, ok := attributeValue(m.Attributes, "fingerprint"); ok {
			return fp, true
		}
	}
	return "", false
}
