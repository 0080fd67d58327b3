package rtc

import (
	"testing"

	"rtckit/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationDefaults(t *testing.T) {
	cfg := Configuration{}.withDefaults()

	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.RTXEnabled())
	assert.NotEmpty(t, cfg.AudioCodecs)
	assert.NotEmpty(t, cfg.VideoCodecs)
	assert.Equal(t, uint8(111), cfg.AudioCodecs[0].PayloadType)
}

func TestConfigurationExplicitEmptyCodecs(t *testing.T) {
	cfg := Configuration{
		AudioCodecs: []RTPCodecParameters{},
		VideoCodecs: []RTPCodecParameters{},
	}.withDefaults()

	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.AudioCodecs)
	assert.Empty(t, cfg.VideoCodecs)
}

func TestConfigurationRejectsDuplicatePayloadType(t *testing.T) {
	cfg := Configuration{
		AudioCodecs: []RTPCodecParameters{
			{PayloadType: 100, MimeType: "audio/opus", ClockRate: 48000},
		},
		VideoCodecs: []RTPCodecParameters{
			{PayloadType: 100, MimeType: "video/VP8", ClockRate: 90000},
		},
	}.withDefaults()

	err := cfg.Validate()
	assert.ErrorIs(t, err, domain.ErrUnsupportedCodec)
}

func TestConfigurationRejectsUnknownHeaderExtension(t *testing.T) {
	cfg := Configuration{
		HeaderExtensions: []string{"urn:example:not-a-real-extension"},
	}.withDefaults()

	assert.Error(t, cfg.Validate())
}

func TestConfigurationRTXDisabled(t *testing.T) {
	cfg := Configuration{Features: []Feature{}}.withDefaults()
	assert.False(t, cfg.RTXEnabled())
}

func TestConfigurationSTUNFiltering(t *testing.T) {
	cfg := Configuration{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.example.com:3478", "turn:turn.example.com:3478"}},
			{URLs: []string{"stuns:stun.example.com:5349"}},
		},
	}

	assert.Equal(t, []string{
		"stun:stun.example.com:3478",
		"stuns:stun.example.com:5349",
	}, cfg.stunURLs())
}
