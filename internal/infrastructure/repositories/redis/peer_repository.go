package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rtckit/internal/core/domain"
	"rtckit/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisPeerRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisPeerRepository(client *redis.Client) ports.PeerRepository {
	return &RedisPeerRepository{
		client: client,
		prefix: "rtckit:peer:",
	}
}

func (r *RedisPeerRepository) peerKey(id domain.PeerID) string {
	return r.prefix + string(id)
}

func (r *RedisPeerRepository) roomPeersKey(roomID domain.RoomID) string {
	return fmt.Sprintf("rtckit:room:%s:peers", roomID)
}

func (r *RedisPeerRepository) Add(ctx context.Context, peer *domain.Peer) error {
	data, err := json.Marshal(peer)
	if err != nil {
		return fmt.Errorf("failed to marshal peer: %w", err)
	}

	if err := r.client.Set(ctx, r.peerKey(peer.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set peer in Redis: %w", err)
	}

	if peer.RoomID != "" {
		if err := r.client.SAdd(ctx, r.roomPeersKey(peer.RoomID), string(peer.ID)).Err(); err != nil {
			return fmt.Errorf("failed to add peer to room set: %w", err)
		}
	}
	return nil
}

func (r *RedisPeerRepository) GetByID(ctx context.Context, id domain.PeerID) (*domain.Peer, error) {
	data, err := r.client.Get(ctx, r.peerKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrPeerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get peer from Redis: %w", err)
	}

	var peer domain.Peer
	if err := json.Unmarshal([]byte(data), &peer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal peer: %w", err)
	}
	return &peer, nil
}

func (r *RedisPeerRepository) Remove(ctx context.Context, id domain.PeerID) error {
	peer, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.peerKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete peer from Redis: %w", err)
	}
	if peer.RoomID != "" {
		if err := r.client.SRem(ctx, r.roomPeersKey(peer.RoomID), string(id)).Err(); err != nil {
			return fmt.Errorf("failed to remove peer from room set: %w", err)
		}
	}
	return nil
}

func (r *RedisPeerRepository) FindByRoom(ctx context.Context, roomID domain.RoomID) ([]*domain.Peer, error) {
	ids, err := r.client.SMembers(ctx, r.roomPeersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list room peers: %w", err)
	}

	var peers []*domain.Peer
	for _, id := range ids {
		peer, err := r.GetByID(ctx, domain.PeerID(id))
		if err == domain.ErrPeerNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

func (r *RedisPeerRepository) Touch(ctx context.Context, id domain.PeerID) error {
	peer, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	peer.LastSeen = time.Now()
	return r.Add(ctx, peer)
}
