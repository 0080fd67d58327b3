package rtc

import (
	"fmt"

	"rtckit/internal/core/domain"
)

// Feature toggles an optional capability of the peer connection.
type Feature string

const (
	// FeatureRTX enables RFC 4588 retransmission streams for video senders.
	FeatureRTX Feature = "rtx"
)

// ICEServer points the ICE agent at a STUN or TURN service.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// supported a=extmap URIs. Anything else fails validation.
var supportedHeaderExtensions = map[string]struct{}{
	"urn:ietf:params:rtp-hdrext:sdes:mid":                                     {},
	"urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id":                           {},
	"http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time":              {},
	"http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01": {},
}

// Configuration describes the media capabilities of one peer connection. It
// is treated as immutable once validated; the zero value plus defaults is a
// usable sendrecv audio+video endpoint with RTX on.
//
// A nil codec slice means "use the defaults"; an empty non-nil slice means
// the caller explicitly offers no codecs of that kind.
type Configuration struct {
	ICEServers       []ICEServer
	AudioCodecs      []RTPCodecParameters
	VideoCodecs      []RTPCodecParameters
	Features         []Feature
	HeaderExtensions []string
}

// withDefaults fills unset fields. Called once by Start.
func (c Configuration) withDefaults() Configuration {
	if c.AudioCodecs == nil {
		c.AudioCodecs = DefaultAudioCodecs()
	}
	if c.VideoCodecs == nil {
		c.VideoCodecs = DefaultVideoCodecs()
	}
	if c.Features == nil {
		c.Features = []Feature{FeatureRTX}
	}
	if c.HeaderExtensions == nil {
		c.HeaderExtensions = []string{
			"urn:ietf:params:rtp-hdrext:sdes:mid",
			"urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id",
		}
	}
	return c
}

// Validate checks payload-type uniqueness and header-extension support.
func (c Configuration) Validate() error {
	seen := map[uint8]string{}
	for _, codec := range append(append([]RTPCodecParameters{}, c.AudioCodecs...), c.VideoCodecs...) {
		if prev, ok := seen[codec.PayloadType]; ok {
			return fmt.Errorf("%w: payload type %d used by both %s and %s",
				domain.ErrUnsupportedCodec, codec.PayloadType, prev, codec.MimeType)
		}
		seen[codec.PayloadType] = codec.MimeType
	}
	for _, uri := range c.HeaderExtensions {
		if _, ok := supportedHeaderExtensions[uri]; !ok {
			return fmt.Errorf("unsupported header extension %q", uri)
		}
	}
	return nil
}

// RTXEnabled reports whether retransmission streams may be negotiated.
func (c Configuration) RTXEnabled() bool {
	for _, f := range c.Features {
		if f == FeatureRTX {
			return true
		}
	}
	return false
}

// codecsForKind returns the configured codec list for a track kind.
func (c Configuration) codecsForKind(kind domain.TrackKind) []RTPCodecParameters {
	if kind == domain.TrackKindAudio {
		return c.AudioCodecs
	}
	return c.VideoCodecs
}

// stunURLs filters ICE server URLs down to the STUN entries handed to the
// ICE agent at startup.
func (c Configuration) stunURLs() []string {
	var urls []string
	for _, srv := range c.ICEServers {
		for _, u := range srv.URLs {
			if len(u) >= 5 && (u[:5] == "stun:" || (len(u) >= 6 && u[:6] == "stuns:")) {
				urls = append(urls, u)
			}
		}
	}
	return urls
}
