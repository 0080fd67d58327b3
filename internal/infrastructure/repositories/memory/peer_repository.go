package memory

import (
	"context"
	"sync"
	"time"

	"rtckit/internal/core/domain"
	"rtckit/internal/core/ports"
)

type MemoryPeerRepository struct {
	mu    sync.RWMutex
	peers map[domain.PeerID]*domain.Peer
	rooms map[domain.RoomID]map[domain.PeerID]struct{}
}

func NewMemoryPeerRepository() ports.PeerRepository {
	return &MemoryPeerRepository{
		peers: make(map[domain.PeerID]*domain.Peer),
		rooms: make(map[domain.RoomID]map[domain.PeerID]struct{}),
	}
}

func (r *MemoryPeerRepository) Add(ctx context.Context, peer *domain.Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *peer
	r.peers[peer.ID] = &copied
	if peer.RoomID != "" {
		if r.rooms[peer.RoomID] == nil {
			r.rooms[peer.RoomID] = make(map[domain.PeerID]struct{})
		}
		r.rooms[peer.RoomID][peer.ID] = struct{}{}
	}
	return nil
}

func (r *MemoryPeerRepository) GetByID(ctx context.Context, id domain.PeerID) (*domain.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.peers[id]
	if !ok {
		return nil, domain.ErrPeerNotFound
	}
	copied := *peer
	return &copied, nil
}

func (r *MemoryPeerRepository) Remove(ctx context.Context, id domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[id]
	if !ok {
		return domain.ErrPeerNotFound
	}
	delete(r.peers, id)
	if peer.RoomID != "" {
		delete(r.rooms[peer.RoomID], id)
		if len(r.rooms[peer.RoomID]) == 0 {
			delete(r.rooms, peer.RoomID)
		}
	}
	return nil
}

func (r *MemoryPeerRepository) FindByRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var peers []*domain.Peer
	for id := range r.rooms[roomID] {
		if peer, ok := r.peers[id]; ok {
			copied := *peer
			peers = append(peers, &copied)
		}
	}
	return peers, nil
}

func (r *MemoryPeerRepository) Touch(ctx context.Context, id domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[id]
	if !ok {
		return domain.ErrPeerNotFound
	}
	peer.LastSeen = time.Now()
	return nil
}
