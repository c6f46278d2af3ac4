package sipgw

import (
	"context"
	"errors"
	"fmt"

	"github.com/gbt28181/sipgw/sdp"
	"github.com/gbt28181/sipgw/sip"
	"github.com/gbt28181/sipgw/store"
)

// ErrNotRegistered is returned when an operation targets a device the store
// does not know.
var ErrNotRegistered = errors.New("device not registered")

// SessionRequest is an operator's ask for media from a device channel.
type SessionRequest struct {
	GBCode string
	// ChannelID defaults to GBCode when empty.
	ChannelID string
	// SetupType selects TCP media when non-empty: "passive" or "active".
	SetupType string
	Session   sdp.SessionType
	// Recording window, Playback and Download only.
	StartTS uint64
	StopTS  uint64
}

// SessionInfo describes the stream the gateway set up.
type SessionInfo struct {
	StreamID  uint32
	GBCode    string
	ChannelID string
	CallID    string
	MediaIP   string
	MediaPort int
	// AlreadyPlaying reports that the device had other active streams when
	// this one was added.
	AlreadyPlaying bool
}

// StartSession allocates a stream, binds a media receive port and sends the
// INVITE offer. The dialog completes asynchronously when the device's 200
// arrives; media flows to the returned endpoint once the device ACKs.
func (g *Gateway) StartSession(ctx context.Context, sr SessionRequest) (*SessionInfo, error) {
	if sr.ChannelID == "" {
		sr.ChannelID = sr.GBCode
	}

	callerID := g.newCallID()
	fromTag := sip.GenerateTag(32)

	inv, ok := g.store.Invite(sr.GBCode, sr.ChannelID, callerID, fromTag, sr.Session == sdp.Play)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, sr.GBCode)
	}

	alloc, err := g.alloc.BindStreamPort(ctx, sr.GBCode, inv.StreamID, sr.SetupType)
	if err != nil {
		g.store.Bye(sr.GBCode, inv.StreamID)
		return nil, fmt.Errorf("bind media port: %w", err)
	}
	g.store.UpdateStreamServerInfo(inv.StreamID, alloc.MediaIP, alloc.MediaPort)

	body, err := sdp.Build(sdp.Params{
		MediaIP:   alloc.MediaIP,
		MediaPort: alloc.MediaPort,
		GBCode:    sr.GBCode,
		SetupType: sr.SetupType,
		Session:   sr.Session,
		StartTS:   sr.StartTS,
		StopTS:    sr.StopTS,
	})
	if err != nil {
		return nil, err
	}

	req := g.newInvite(sr, callerID, fromTag, inv.Route.Transport, body)
	if err := g.send(inv.Route, req); err != nil {
		return nil, err
	}

	g.log.Info().
		Str("gb_code", sr.GBCode).
		Str("channel_id", sr.ChannelID).
		Uint32("stream_id", inv.StreamID).
		Str("session", string(sr.Session)).
		Bool("already_playing", inv.AlreadyPlaying).
		Msg("invite sent")

	return &SessionInfo{
		StreamID:       inv.StreamID,
		GBCode:         sr.GBCode,
		ChannelID:      sr.ChannelID,
		CallID:         callerID,
		MediaIP:        alloc.MediaIP,
		MediaPort:      alloc.MediaPort,
		AlreadyPlaying: inv.AlreadyPlaying,
	}, nil
}

func (g *Gateway) newInvite(sr SessionRequest, callerID, fromTag, transport string, body string) *sip.Request {
	req := sip.NewRequest(sip.INVITE, g.recipient(sr.ChannelID))
	req.AppendHeader(g.via(transport, sip.GenerateBranch()))
	mf := sip.MaxForwardsHeader(70)
	req.AppendHeader(&mf)
	req.AppendHeader(g.from(fromTag))
	req.AppendHeader(g.to(sr.ChannelID, ""))
	req.AppendHeader(g.contact())
	callID := sip.CallIDHeader(callerID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: g.store.AddFetchGlobalSequence(), MethodName: sip.INVITE})
	req.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, BYE, CANCEL, UPDATE, PRACK"))
	req.AppendHeader(sip.NewHeader("Supported", "100rel"))
	req.AppendHeader(sip.NewHeader("Subject", sr.ChannelID+":0"))
	req.AppendHeader(sip.NewHeader("User-Agent", UserAgent))
	ct := sip.ContentTypeHeader("APPLICATION/SDP")
	req.AppendHeader(&ct)
	req.SetBody([]byte(body))
	return req
}

// handleInviteResponse confirms the dialog on 200: the remote tag is saved
// against our From tag and the ACK goes out. The dialog is matched by
// Call-ID; a 200 for an unknown one (stream already swept) is dropped.
func (g *Gateway) handleInviteResponse(res *sip.Response, route store.Route) {
	if res.IsProvisional() {
		return
	}
	if !res.IsSuccess() {
		g.log.Warn().
			Int("status", int(res.StatusCode())).
			Str("reason", res.Reason()).
			Str("src", route.Addr).
			Msg("invite rejected by device")
		return
	}

	callID := res.CallID()
	from := res.From()
	to := res.To()
	if callID == nil || from == nil || to == nil {
		g.log.Warn().Str("src", route.Addr).Msg("invite 200 without dialog headers")
		return
	}

	gbCode, ok := g.store.FindGBCodeByCallerID(callID.Value())
	if !ok {
		g.log.Warn().Str("call_id", callID.Value()).Msg("invite 200 for unknown dialog, dropped")
		return
	}

	g.store.UpdateStreamTagInfo(from.Tag(), to.Tag())

	if d, err := sdp.Parse(string(res.Body())); err == nil {
		g.log.Info().
			Str("gb_code", gbCode).
			Str("ssrc", d.SSRC).
			Msg("invite answered")
	} else {
		g.log.Warn().Err(err).Str("gb_code", gbCode).Msg("unparsable sdp answer")
	}

	g.sendAck(gbCode, res, route)
}

// sendAck acknowledges a 2xx. Dialog headers are copied from the response;
// the CSeq keeps its number with the method rewritten.
func (g *Gateway) sendAck(gbCode string, res *sip.Response, route store.Route) {
	ack := sip.NewRequest(sip.ACK, g.recipient(gbCode))
	sip.CopyHeaders("Via", res, ack)
	mf := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&mf)
	sip.CopyHeaders("From", res, ack)
	sip.CopyHeaders("To", res, ack)
	sip.CopyHeaders("Call-ID", res, ack)
	if cseq := res.CSeq(); cseq != nil {
		ack.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.ACK})
	}
	ack.AppendHeader(sip.NewHeader("User-Agent", UserAgent))
	ack.SetBody(nil)

	if err := g.send(route, ack); err != nil {
		g.log.Error().Err(err).Str("gb_code", gbCode).Msg("sending ack failed")
	}
}
