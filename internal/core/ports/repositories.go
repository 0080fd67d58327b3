package ports

import (
	"context"

	"rtckit/internal/core/domain"
)

// PeerRepository tracks signaling-plane sessions so the relay can route
// messages and enumerate room membership. Backed by memory or redis.
type PeerRepository interface {
	Add(ctx context.Context, peer *domain.Peer) error
	GetByID(ctx context.Context, id domain.PeerID) (*domain.Peer, error)
	Remove(ctx context.Context, id domain.PeerID) error
	FindByRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Peer, error)
	Touch(ctx context.Context, id domain.PeerID) error
}
