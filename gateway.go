// Package sipgw is a GB/T 28181 signaling gateway: it terminates SIP from
// surveillance devices (REGISTER, MESSAGE keepalives and notifies) and
// originates INVITE/BYE dialogs toward them on behalf of operators, keeping
// device and stream state in a store and media endpoints in an allocator.
package sipgw

import (
	"bytes"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gbt28181/sipgw/auth"
	"github.com/gbt28181/sipgw/conf"
	"github.com/gbt28181/sipgw/mediaport"
	"github.com/gbt28181/sipgw/sip"
	"github.com/gbt28181/sipgw/store"
)

// UserAgent goes into the User-Agent header of every gateway request.
const UserAgent = "sipgw/0.1.0"

// Gateway owns the SIP side of the system. One instance serves all
// transports; all methods are safe for concurrent use.
type Gateway struct {
	cfg   *conf.Config
	log   zerolog.Logger
	store store.Engine
	alloc mediaport.Allocator
	auth  *auth.Validator

	// Shared UDP socket, set by ListenAndServe or by tests.
	udp udpWriter
}

func New(cfg *conf.Config, st store.Engine, alloc mediaport.Allocator) *Gateway {
	return &Gateway{
		cfg:   cfg,
		log:   log.Logger.With().Str("caller", "Gateway").Logger(),
		store: st,
		alloc: alloc,
		auth: &auth.Validator{
			Realm:    cfg.Realm,
			Nonce:    cfg.Nonce,
			Password: cfg.Password,
		},
	}
}

// HandleMessage processes one wire message that arrived over route. Stream
// transports must run the bytes through sip.Framer first.
func (g *Gateway) HandleMessage(data []byte, route store.Route) {
	if len(bytes.TrimSpace(data)) == 0 {
		// UDP CRLF keepalive
		return
	}

	msg, err := sip.ParseMessage(data)
	if err != nil {
		parseErrors.Inc()
		g.log.Warn().Err(err).Str("src", route.Addr).Msg("dropping unparsable message")
		return
	}
	msg.SetTransport(route.Transport)
	msg.SetSource(route.Addr)

	// Every message advances the matching CSeq counter so gateway-originated
	// requests never number below what the peer has already seen.
	cseq := msg.CSeq()
	if cseq == nil {
		parseErrors.Inc()
		g.log.Warn().Str("src", route.Addr).Msg("dropping message without CSeq")
		return
	}
	if cseq.MethodName == sip.REGISTER {
		g.store.SetRegisterSequence(cseq.SeqNo)
	} else {
		g.store.SetGlobalSequence(cseq.SeqNo)
	}

	switch m := msg.(type) {
	case *sip.Request:
		g.handleRequest(m, route)
	case *sip.Response:
		g.handleResponse(m, route)
	}
}

func (g *Gateway) handleRequest(req *sip.Request, route store.Route) {
	requestsIn.WithLabelValues(string(req.Method)).Inc()

	switch req.Method {
	case sip.REGISTER:
		g.handleRegister(req, route)
	case sip.MESSAGE:
		g.handleNotify(req, route)
	case sip.ACK:
		// ACK has no response
	default:
		// Devices probe with OPTIONS and occasionally SUBSCRIBE. Answer 200
		// so they keep talking to us.
		g.log.Debug().Str("method", string(req.Method)).Str("src", route.Addr).Msg("request answered with stub 200")
		g.respond(req, route, sip.StatusOK, "OK", nil)
	}
}

func (g *Gateway) handleResponse(res *sip.Response, route store.Route) {
	// HandleMessage already dropped anything without a CSeq.
	cseq := res.CSeq()
	responsesIn.WithLabelValues(string(cseq.MethodName)).Inc()

	switch cseq.MethodName {
	case sip.INVITE:
		g.handleInviteResponse(res, route)
	case sip.BYE, sip.MESSAGE:
		g.log.Debug().
			Int("status", int(res.StatusCode())).
			Str("method", string(cseq.MethodName)).
			Str("src", route.Addr).
			Msg("final response")
	default:
		g.log.Debug().Str("method", string(cseq.MethodName)).Msg("response ignored")
	}
}

func (g *Gateway) respond(req *sip.Request, route store.Route, code sip.StatusCode, reason string, body []byte) {
	res := sip.NewResponseFromRequest(req, code, reason, body)
	if err := g.send(route, res); err != nil {
		g.log.Error().Err(err).Str("dst", route.Addr).Msg("sending response failed")
	}
}
