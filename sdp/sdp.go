// Package sdp builds and parses the session descriptions exchanged during
// GB/T 28181 media negotiation. The standard part of the body is handled by
// pion/sdp; the nonstandard y= SSRC trailer is not valid SDP per its
// grammar, so it is appended after marshal and split off before unmarshal.
package sdp

import (
	"fmt"
	"math/rand"
	"strings"

	psdp "github.com/pion/sdp/v3"
)

// SessionType is the s= session name.
type SessionType string

const (
	Play     SessionType = "Play"
	Playback SessionType = "Playback"
	Download SessionType = "Download"
	Talk     SessionType = "Talk"
)

// ParseSessionType validates a session type name.
func ParseSessionType(s string) (SessionType, error) {
	switch SessionType(s) {
	case Play, Playback, Download, Talk:
		return SessionType(s), nil
	}
	return "", fmt.Errorf("unknown session type %q, want Play, Playback, Download or Talk", s)
}

// Params describe one media offer.
type Params struct {
	MediaIP   string
	MediaPort int
	GBCode    string
	// SetupType switches the media line to TCP when non-empty
	// (a=setup:<SetupType>, a=connection:new).
	SetupType string
	Session   SessionType
	// Recording window for Playback/Download, both zero for live.
	StartTS uint64
	StopTS  uint64
}

// Build renders the offer body, CRLF terminated. Play and Playback carry a
// y= trailer with the SSRC the device must use.
func Build(p Params) (string, error) {
	protos := []string{"RTP", "AVP"}
	if p.SetupType != "" {
		protos = []string{"TCP", "RTP", "AVP"}
	}

	attrs := []psdp.Attribute{
		psdp.NewAttribute("rtpmap", "96 PS/90000"),
		psdp.NewAttribute("rtpmap", "97 MPEG4/90000"),
		psdp.NewAttribute("rtpmap", "98 H264/90000"),
		psdp.NewAttribute("rtpmap", "99 H265/90000"),
		psdp.NewPropertyAttribute("recvonly"),
		psdp.NewAttribute("streamMode", "MAIN"),
	}
	if p.SetupType != "" {
		attrs = append(attrs,
			psdp.NewAttribute("setup", p.SetupType),
			psdp.NewAttribute("connection", "new"),
		)
	}

	conn := &psdp.ConnectionInformation{
		NetworkType: "IN",
		AddressType: "IP4",
		Address:     &psdp.Address{Address: p.MediaIP},
	}

	desc := psdp.SessionDescription{
		Version: 0,
		Origin: psdp.Origin{
			Username:       p.GBCode,
			SessionID:      0,
			SessionVersion: 0,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: p.MediaIP,
		},
		SessionName:           psdp.SessionName(p.Session),
		ConnectionInformation: conn,
		TimeDescriptions: []psdp.TimeDescription{
			{Timing: psdp.Timing{StartTime: p.StartTS, StopTime: p.StopTS}},
		},
		MediaDescriptions: []*psdp.MediaDescription{
			{
				MediaName: psdp.MediaName{
					Media:   "video",
					Port:    psdp.RangedPort{Value: p.MediaPort},
					Protos:  protos,
					Formats: []string{"96", "97", "98", "99"},
				},
				ConnectionInformation: conn,
				Attributes:            attrs,
			},
		},
	}

	raw, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal sdp: %w", err)
	}

	switch p.Session {
	case Play:
		return string(raw) + "y=" + generateSSRC("0", p.GBCode) + "\r\n", nil
	case Playback:
		return string(raw) + "y=" + generateSSRC("1", p.GBCode) + "\r\n", nil
	}
	return string(raw), nil
}

// generateSSRC builds the 9 digit SSRC: the live/playback prefix, characters
// 4..8 of the gb code and 4 random decimal digits. A gb code too short for
// the slice contributes zeros instead.
func generateSSRC(prefix, gbCode string) string {
	mid := "0000"
	if len(gbCode) >= 8 {
		mid = gbCode[4:8]
	}
	return fmt.Sprintf("%s%s%04d", prefix, mid, rand.Intn(10000))
}

// Description is a parsed body with the y= trailer preserved.
type Description struct {
	Session psdp.SessionDescription
	// SSRC from the y= line, empty when absent.
	SSRC string
}

// Parse splits off the y= line and parses the remainder as standard SDP.
func Parse(raw string) (*Description, error) {
	var d Description

	var kept []string
	for _, line := range strings.Split(raw, "\r\n") {
		if rest, found := strings.CutPrefix(line, "y="); found {
			d.SSRC = strings.TrimSpace(rest)
			continue
		}
		kept = append(kept, line)
	}

	if err := d.Session.UnmarshalString(strings.Join(kept, "\r\n")); err != nil {
		return nil, fmt.Errorf("unmarshal sdp: %w", err)
	}
	return &d, nil
}
