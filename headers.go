package sipgw

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gbt28181/sipgw/sip"
)

// Header builders for gateway-originated requests. All identity comes from
// the configuration: sip_id as the local user, domain as the SIP domain,
// my_ip:sip_port as the reachable address.

func (g *Gateway) via(transport, branch string) *sip.ViaHeader {
	params := sip.NewParams()
	params.Add("branch", branch)
	params.Add("rport", "")
	return &sip.ViaHeader{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       strings.ToUpper(transport),
		Host:            g.cfg.MyIP,
		Port:            g.cfg.SipPort,
		Params:          params,
	}
}

func (g *Gateway) from(tag string) *sip.FromHeader {
	params := sip.NewParams()
	params.Add("tag", tag)
	return &sip.FromHeader{
		Address: sip.Uri{User: g.cfg.SipID, Host: g.cfg.Domain},
		Params:  params,
	}
}

// to builds the To header for gbCode; tag may be empty for dialog-forming
// requests.
func (g *Gateway) to(gbCode, tag string) *sip.ToHeader {
	h := &sip.ToHeader{
		Address: sip.Uri{User: gbCode, Host: g.cfg.Domain},
	}
	if tag != "" {
		params := sip.NewParams()
		params.Add("tag", tag)
		h.Params = params
	}
	return h
}

func (g *Gateway) contact() *sip.ContactHeader {
	return &sip.ContactHeader{
		Address: sip.Uri{User: g.cfg.SipID, Host: g.cfg.MyIP, Port: g.cfg.SipPort},
	}
}

func (g *Gateway) recipient(gbCode string) *sip.Uri {
	return &sip.Uri{User: gbCode, Host: g.cfg.Domain}
}

// newCallID builds the Call-ID for a gateway-originated dialog:
// an uppercase dashless uuid at our signaling address.
func (g *Gateway) newCallID() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("%s@%s:%d", id, g.cfg.MyIP, g.cfg.SipPort)
}
