package rtc

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/pion/sdp/v3"
)

// SessionParams carries the per-session transport parameters shared by every
// m-line of one description.
type SessionParams struct {
	ICEUfrag             string
	ICEPwd               string
	ICEOptions           string
	FingerprintAlgorithm string // e.g. "sha-256"
	Fingerprint          string
	Setup                string // "actpass", "active" or "passive"
}

// OfferMediaDescription renders this transceiver as one media section of an
// offer. The transceiver is not mutated; when no mid is assigned yet a fresh
// candidate mid is used.
func (t *RTPTransceiver) OfferMediaDescription(sp SessionParams) *sdp.MediaDescription {
	return t.mediaDescription(sp, t.direction)
}

// mediaDescription renders the m-line with an explicit direction, used by
// answer generation where the direction is reconciled against the remote
// offer.
func (t *RTPTransceiver) mediaDescription(sp SessionParams, dir Direction) *sdp.MediaDescription {
	mid := t.mid
	if mid == "" {
		mid = candidateMid()
	}

	formats := make([]string, 0, len(t.codecs))
	for _, c := range t.codecs {
		formats = append(formats, strconv.Itoa(int(c.PayloadType)))
	}

	m := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   string(t.kind),
			Port:    sdp.RangedPort{Value: 9},
			Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
			Formats: formats,
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
	}

	attr := func(key, value string) {
		m.Attributes = append(m.Attributes, sdp.NewAttribute(key, value))
	}

	attr("setup", sp.Setup)
	attr("mid", mid)
	attr("ice-ufrag", sp.ICEUfrag)
	attr("ice-pwd", sp.ICEPwd)
	if sp.ICEOptions != "" {
		attr("ice-options", sp.ICEOptions)
	}
	attr("fingerprint", sp.FingerprintAlgorithm+" "+sp.Fingerprint)
	attr("rtcp-mux", "")

	for i, uri := range t.extensions {
		attr("extmap", fmt.Sprintf("%d %s", i+1, uri))
	}

	if dir == DirectionStopped {
		attr(DirectionInactive.String(), "")
	} else {
		attr(dir.String(), "")
	}

	for _, c := range t.codecs {
		attr("rtpmap", c.rtpmapValue())
		if c.SDPFmtpLine != "" {
			attr("fmtp", fmt.Sprintf("%d %s", c.PayloadType, c.SDPFmtpLine))
		}
		for _, fb := range c.RTCPFeedback {
			v := fmt.Sprintf("%d %s", c.PayloadType, fb.Type)
			if fb.Parameter != "" {
				v += " " + fb.Parameter
			}
			attr("rtcp-fb", v)
		}
	}

	t.appendSenderAttributes(dir, attr)
	return m
}

// appendSenderAttributes emits MSID, SSRC-group and SSRC attributes. They
// appear only when the direction includes sending and at least one codec is
// offered.
func (t *RTPTransceiver) appendSenderAttributes(dir Direction, attr func(key, value string)) {
	if !dir.hasSend() || len(t.codecs) == 0 {
		return
	}

	streamIDs := []string{"-"}
	if t.sender.Track != nil && len(t.sender.Track.StreamIDs) > 0 {
		streamIDs = t.sender.Track.StreamIDs
	}

	for _, id := range streamIDs {
		attr("msid", id)
	}

	ssrcs := []uint32{t.sender.SSRC}
	if t.rtxEnabled {
		attr("ssrc-group", fmt.Sprintf("FID %d %d", t.sender.SSRC, t.sender.RTXSSRC))
		ssrcs = append(ssrcs, t.sender.RTXSSRC)
	}

	for _, ssrc := range ssrcs {
		for _, id := range streamIDs {
			attr("ssrc", fmt.Sprintf("%d msid:%s", ssrc, id))
		}
	}
}

func candidateMid() string {
	return uuid.NewString()[:8]
}
