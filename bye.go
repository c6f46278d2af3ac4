package sipgw

import (
	"context"

	"github.com/gbt28181/sipgw/mediaport"
	"github.com/gbt28181/sipgw/sip"
	"github.com/gbt28181/sipgw/store"
)

// StopSession tears a stream down: the store forgets it, the device gets a
// BYE when this was its last stream, and the media port is released. A stop
// for a stream the store does not know is logged and otherwise a no-op; the
// control plane answers OK either way.
func (g *Gateway) StopSession(ctx context.Context, gbCode string, streamID uint32) {
	res, ok := g.store.Bye(gbCode, streamID)
	if ok && res.Last {
		if res.Route.Addr == "" && res.Route.Conn == nil {
			// Device already unregistered, nowhere to send the BYE.
			g.log.Debug().Str("gb_code", gbCode).Uint32("stream_id", streamID).Msg("device gone, skipping bye")
		} else {
			g.sendBye(gbCode, res)
		}
	}

	alloc := mediaport.Allocation{MediaIP: res.MediaIP, MediaPort: res.MediaPort}
	if err := g.alloc.FreeStreamPort(ctx, gbCode, streamID, alloc); err != nil {
		g.log.Warn().Err(err).Uint32("stream_id", streamID).Msg("freeing media port failed")
	}

	if !ok {
		g.log.Warn().Str("gb_code", gbCode).Uint32("stream_id", streamID).Msg("stop for unknown stream")
		return
	}
	g.log.Info().Str("gb_code", gbCode).Uint32("stream_id", streamID).Bool("last", res.Last).Msg("session stopped")
}

// sendBye closes the dialog with the tags recorded when it was confirmed.
// A fresh branch and CSeq; the Call-ID is the dialog's.
func (g *Gateway) sendBye(gbCode string, res store.ByeResult) {
	req := sip.NewRequest(sip.BYE, g.recipient(gbCode))
	req.AppendHeader(g.via(res.Route.Transport, sip.GenerateBranch()))
	mf := sip.MaxForwardsHeader(70)
	req.AppendHeader(&mf)
	req.AppendHeader(g.from(res.FromTag))
	req.AppendHeader(g.to(gbCode, res.ToTag))
	req.AppendHeader(g.contact())
	callID := sip.CallIDHeader(res.CallerID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: g.store.AddFetchGlobalSequence(), MethodName: sip.BYE})
	req.AppendHeader(sip.NewHeader("User-Agent", UserAgent))
	req.SetBody(nil)

	if err := g.send(res.Route, req); err != nil {
		g.log.Error().Err(err).Str("gb_code", gbCode).Msg("sending bye failed")
	}
}
