package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"rtckit/internal/core/domain"
	"rtckit/internal/core/ports"
	"rtckit/internal/infrastructure/monitoring"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SignalMessage is the envelope every relay message travels in. Offer,
// answer and pranswer payloads are DescriptionPayload; candidate payloads
// are CandidatePayload.
type SignalMessage struct {
	Type    string          `json:"type"`
	PeerID  domain.PeerID   `json:"peer_id,omitempty"`
	RoomID  domain.RoomID   `json:"room_id,omitempty"`
	To      domain.PeerID   `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DescriptionPayload carries a session description.
type DescriptionPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidatePayload carries one trickled ICE candidate. The candidate string
// keeps its "candidate:" prefix on the wire.
type CandidatePayload struct {
	Candidate        string `json:"candidate"`
	SDPMid           string `json:"sdp_mid"`
	SDPMLineIndex    uint16 `json:"sdp_m_line_index"`
	UsernameFragment string `json:"username_fragment,omitempty"`
}

// ErrorPayload reports a relay-level failure back to the sender.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// WebSocketServer relays signaling messages between peers in the same room.
// It never inspects SDP bodies; it only routes envelopes.
type WebSocketServer struct {
	peerRepo ports.PeerRepository
	metrics  *monitoring.Collector

	connections map[domain.PeerID]*websocket.Conn
	writeMu     map[domain.PeerID]*sync.Mutex
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	rateLimit       rate.Limit
	rateBurst       int
	maxMessageBytes int64

	logger *zap.SugaredLogger
}

// Options tunes the relay. Zero values select defaults; rate limiting is off
// unless MessagesPerSecond is positive.
type Options struct {
	PingInterval        time.Duration
	PongTimeout         time.Duration
	MessagesPerSecond   float64
	Burst               int
	MaxMessageSizeBytes int64
}

func NewWebSocketServer(peerRepo ports.PeerRepository, metrics *monitoring.Collector, log *zap.Logger, opts Options) *WebSocketServer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}

	return &WebSocketServer{
		peerRepo:        peerRepo,
		metrics:         metrics,
		connections:     make(map[domain.PeerID]*websocket.Conn),
		writeMu:         make(map[domain.PeerID]*sync.Mutex),
		pingInterval:    opts.PingInterval,
		pongTimeout:     opts.PongTimeout,
		writeTimeout:    10 * time.Second,
		rateLimit:       rate.Limit(opts.MessagesPerSecond),
		rateBurst:       opts.Burst,
		maxMessageBytes: opts.MaxMessageSizeBytes,
		logger:          log.Sugar(),
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	peerID := domain.PeerID(r.URL.Query().Get("peer_id"))
	roomID := domain.RoomID(r.URL.Query().Get("room_id"))
	if peerID == "" || roomID == "" {
		http.Error(w, "peer_id and room_id are required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()

	s.mu.Lock()
	if old, ok := s.connections[peerID]; ok && old != nil {
		old.Close()
		s.logger.Infow("closing old connection for reconnecting peer", "peer_id", peerID)
	}
	s.connections[peerID] = conn
	s.writeMu[peerID] = &sync.Mutex{}
	s.mu.Unlock()

	if err := s.peerRepo.Add(ctx, &domain.Peer{
		ID:       peerID,
		RoomID:   roomID,
		Address:  r.RemoteAddr,
		JoinedAt: time.Now(),
		LastSeen: time.Now(),
	}); err != nil {
		s.logger.Errorw("failed to register peer", "peer_id", peerID, "error", err)
		s.mu.Lock()
		if s.connections[peerID] == conn {
			delete(s.connections, peerID)
			delete(s.writeMu, peerID)
		}
		s.mu.Unlock()
		return
	}
	if s.metrics != nil {
		s.metrics.PeerConnected()
	}

	defer func() {
		s.mu.Lock()
		if s.connections[peerID] == conn {
			delete(s.connections, peerID)
			delete(s.writeMu, peerID)
		}
		s.mu.Unlock()
		if err := s.peerRepo.Remove(context.Background(), peerID); err != nil && err != domain.ErrPeerNotFound {
			s.logger.Warnw("failed to deregister peer", "peer_id", peerID, "error", err)
		}
		if s.metrics != nil {
			s.metrics.PeerDisconnected()
		}
	}()

	if s.maxMessageBytes > 0 {
		conn.SetReadLimit(s.maxMessageBytes)
	}
	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return s.peerRepo.Touch(context.Background(), peerID)
	})
	go s.pingLoop(conn, s.writeMuFor(peerID))

	var limiter *rate.Limiter
	if s.rateLimit > 0 {
		limiter = rate.NewLimiter(s.rateLimit, s.rateBurst)
	}

	s.logger.Infow("peer joined", "peer_id", peerID, "room_id", roomID)

	for {
		var msg SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnw("websocket read failed", "peer_id", peerID, "error", err)
			}
			return
		}

		if limiter != nil && !limiter.Allow() {
			s.sendError(peerID, "rate limit exceeded")
			continue
		}

		msg.PeerID = peerID
		msg.RoomID = roomID
		s.route(ctx, msg)
	}
}

// route forwards a message to its target peer, or to every other peer in
// the room when no target is set.
func (s *WebSocketServer) route(ctx context.Context, msg SignalMessage) {
	switch msg.Type {
	case "offer", "answer", "pranswer", "candidate", "leave":
	default:
		s.sendError(msg.PeerID, "unknown message type "+msg.Type)
		return
	}

	if msg.To != "" {
		if err := s.send(msg.To, msg); err != nil {
			s.sendError(msg.PeerID, "peer unreachable")
		}
		if s.metrics != nil {
			s.metrics.MessageRelayed(msg.Type)
		}
		return
	}

	peers, err := s.peerRepo.FindByRoom(ctx, msg.RoomID)
	if err != nil {
		s.logger.Errorw("failed to enumerate room", "room_id", msg.RoomID, "error", err)
		return
	}
	for _, peer := range peers {
		if peer.ID == msg.PeerID {
			continue
		}
		if err := s.send(peer.ID, msg); err != nil {
			s.logger.Debugw("failed to relay", "to", peer.ID, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.MessageRelayed(msg.Type)
	}
}

func (s *WebSocketServer) send(to domain.PeerID, msg SignalMessage) error {
	s.mu.RLock()
	conn := s.connections[to]
	lock := s.writeMu[to]
	s.mu.RUnlock()

	if conn == nil || lock == nil {
		return domain.ErrPeerNotFound
	}

	lock.Lock()
	defer lock.Unlock()
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteJSON(msg)
}

func (s *WebSocketServer) sendError(to domain.PeerID, reason string) {
	payload, _ := json.Marshal(ErrorPayload{Reason: reason})
	if err := s.send(to, SignalMessage{Type: "error", Payload: payload}); err != nil {
		s.logger.Debugw("failed to send error", "to", to, "error", err)
	}
}

func (s *WebSocketServer) writeMuFor(id domain.PeerID) *sync.Mutex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeMu[id]
}

func (s *WebSocketServer) pingLoop(conn *websocket.Conn, lock *sync.Mutex) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if lock == nil {
			return
		}
		lock.Lock()
		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		lock.Unlock()
		if err != nil {
			return
		}
	}
}

// HealthCheck reports liveness and the number of connected peers.
func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	count := len(s.connections)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"connected_peers": count,
	})
}
