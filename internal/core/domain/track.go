package domain

import "github.com/google/uuid"

// TrackKind distinguishes audio and video tracks.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// MediaStreamTrack is an identity-bearing handle for a media source or sink.
// It carries no media itself; transceivers reference tracks by ID.
type MediaStreamTrack struct {
	ID        string
	Kind      TrackKind
	StreamIDs []string
}

// NewMediaStreamTrack assigns a fresh opaque id. The track is immutable after
// creation; equality is by ID only.
func NewMediaStreamTrack(kind TrackKind, streamIDs ...string) *MediaStreamTrack {
	return &MediaStreamTrack{
		ID:        uuid.NewString(),
		Kind:      kind,
		StreamIDs: streamIDs,
	}
}

// GenerateStreamID produces an opaque id suitable for grouping tracks into
// media streams.
func GenerateStreamID() string {
	return uuid.NewString()
}

// Equal reports whether two tracks are the same identity.
func (t *MediaStreamTrack) Equal(other *MediaStreamTrack) bool {
	return other != nil && t.ID == other.ID
}
