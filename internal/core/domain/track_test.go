package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMediaStreamTrackAssignsUniqueIDs(t *testing.T) {
	a := NewMediaStreamTrack(TrackKindAudio)
	b := NewMediaStreamTrack(TrackKindAudio)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, TrackKindAudio, a.Kind)
	assert.Empty(t, a.StreamIDs)
}

func TestTrackEqualityIsByID(t *testing.T) {
	a := NewMediaStreamTrack(TrackKindVideo, "s1")
	same := *a
	same.StreamIDs = []string{"other"}

	assert.True(t, a.Equal(&same))
	assert.False(t, a.Equal(NewMediaStreamTrack(TrackKindVideo, "s1")))
	assert.False(t, a.Equal(nil))
}

func TestGenerateStreamID(t *testing.T) {
	assert.NotEqual(t, GenerateStreamID(), GenerateStreamID())
}
