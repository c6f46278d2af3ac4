package sipgw

import (
	"github.com/gbt28181/sipgw/auth"
	"github.com/gbt28181/sipgw/sip"
	"github.com/gbt28181/sipgw/store"
)

// handleRegister runs the two step digest handshake. The first REGISTER has
// no credentials and is challenged with 401; the retry carries the digest
// and, when it verifies, the device is recorded under the gb code from the
// From user part. Expires: 0 unregisters.
func (g *Gateway) handleRegister(req *sip.Request, route store.Route) {
	from := req.From()
	if from == nil || from.Address.User == "" {
		g.respond(req, route, sip.StatusBadRequest, "Bad Request", nil)
		return
	}
	gbCode := from.Address.User
	if !validGBCode(gbCode) {
		g.log.Warn().Str("gb_code", gbCode).Str("src", route.Addr).Msg("register with malformed gb code")
		g.respond(req, route, sip.StatusBadRequest, "Bad Request", nil)
		return
	}

	authHdr := req.GetHeader("Authorization")
	if authHdr == nil {
		g.challenge(req, route)
		return
	}

	creds, err := auth.ParseAuthorization(authHdr.Value())
	if err != nil {
		g.log.Warn().Err(err).Str("gb_code", gbCode).Msg("bad authorization header")
		g.challenge(req, route)
		return
	}
	if err := g.auth.Verify(creds, string(req.Method)); err != nil {
		g.log.Warn().Err(err).Str("gb_code", gbCode).Msg("register digest rejected")
		g.challenge(req, route)
		return
	}

	var branch string
	if via := req.Via(); via != nil {
		branch = via.Branch()
	}

	if h := req.Expires(); h != nil && uint32(*h) == 0 {
		g.store.Unregister(gbCode)
		g.log.Info().Str("gb_code", gbCode).Msg("device unregistered")
		g.respond(req, route, sip.StatusOK, "OK", nil)
		return
	}

	firstTime := g.store.Register(branch, gbCode, route)
	g.respond(req, route, sip.StatusOK, "OK", nil)

	if firstTime {
		g.log.Info().Str("gb_code", gbCode).Str("addr", route.Addr).Msg("device registered")
		if err := g.SendDeviceStatusQuery(gbCode); err != nil {
			g.log.Error().Err(err).Str("gb_code", gbCode).Msg("device status query failed")
		}
	}
}

// validGBCode accepts the 20 digit decimal identifiers GB/T 28181 assigns
// to devices and channels.
func validGBCode(s string) bool {
	if len(s) != 20 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// challenge answers 401 with the digest parameters the retry must use.
func (g *Gateway) challenge(req *sip.Request, route store.Route) {
	res := sip.NewResponseFromRequest(req, sip.StatusUnauthorized, "Unauthorized", nil)

	// WWW-Authenticate goes before Content-Length.
	res.RemoveHeader("Content-Length")
	res.AppendHeader(sip.NewHeader("WWW-Authenticate", g.auth.Challenge(g.cfg.Algorithm)))
	cl := sip.ContentLengthHeader(0)
	res.AppendHeader(&cl)

	if err := g.send(route, res); err != nil {
		g.log.Error().Err(err).Str("dst", route.Addr).Msg("sending 401 failed")
	}
}
