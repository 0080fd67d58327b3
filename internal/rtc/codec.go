package rtc

import (
	"fmt"
	"strings"
)

// RTCPFeedback is one a=rtcp-fb entry for a codec.
type RTCPFeedback struct {
	Type      string
	Parameter string
}

// RTPCodecParameters describes one payload type as negotiated in SDP.
type RTPCodecParameters struct {
	PayloadType  uint8
	MimeType     string // e.g. "audio/opus", "video/VP8", "video/rtx"
	ClockRate    uint32
	Channels     uint16
	SDPFmtpLine  string
	RTCPFeedback []RTCPFeedback
}

// Name returns the encoding name used in a=rtpmap, without the media prefix.
func (c RTPCodecParameters) Name() string {
	if i := strings.IndexByte(c.MimeType, '/'); i >= 0 {
		return c.MimeType[i+1:]
	}
	return c.MimeType
}

// IsRTX reports whether this codec is a retransmission payload (RFC 4588).
func (c RTPCodecParameters) IsRTX() bool {
	return strings.EqualFold(c.Name(), "rtx")
}

// rtpmapValue renders the a=rtpmap attribute value for this codec.
func (c RTPCodecParameters) rtpmapValue() string {
	if c.Channels > 1 {
		return fmt.Sprintf("%d %s/%d/%d", c.PayloadType, c.Name(), c.ClockRate, c.Channels)
	}
	return fmt.Sprintf("%d %s/%d", c.PayloadType, c.Name(), c.ClockRate)
}

// aptPayloadType extracts the associated payload type from an RTX fmtp line,
// or -1 when absent.
func (c RTPCodecParameters) aptPayloadType() int {
	for _, part := range strings.Split(c.SDPFmtpLine, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "apt="); ok {
			var pt int
			if _, err := fmt.Sscanf(v, "%d", &pt); err == nil {
				return pt
			}
		}
	}
	return -1
}

var defaultVideoRTCPFeedback = []RTCPFeedback{
	{Type: "goog-remb"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
}

// DefaultAudioCodecs returns the audio payload types offered when the
// configuration does not override them.
func DefaultAudioCodecs() []RTPCodecParameters {
	return []RTPCodecParameters{
		{
			PayloadType: 111,
			MimeType:    "audio/opus",
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
	}
}

// DefaultVideoCodecs returns the video payload types offered when the
// configuration does not override them. The RTX entry pairs with VP8.
func DefaultVideoCodecs() []RTPCodecParameters {
	return []RTPCodecParameters{
		{
			PayloadType:  96,
			MimeType:     "video/VP8",
			ClockRate:    90000,
			RTCPFeedback: defaultVideoRTCPFeedback,
		},
		{
			PayloadType: 97,
			MimeType:    "video/rtx",
			ClockRate:   90000,
			SDPFmtpLine: "apt=96",
		},
	}
}
