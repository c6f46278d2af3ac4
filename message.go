package sipgw

import (
	"fmt"

	"github.com/gbt28181/sipgw/manscdp"
	"github.com/gbt28181/sipgw/sip"
	"github.com/gbt28181/sipgw/store"
)

// handleNotify dispatches an inbound MESSAGE by the CmdType of its MANSCDP
// body. Every recognized and unrecognized command gets a 200 so devices do
// not retransmit; a body that does not parse is dropped without an answer,
// the device retries on its own cycle.
func (g *Gateway) handleNotify(req *sip.Request, route store.Route) {
	body, err := manscdp.DecodeBody(req.Body())
	if err != nil {
		parseErrors.Inc()
		g.log.Warn().Err(err).Str("src", route.Addr).Msg("dropping undecodable manscdp body")
		return
	}

	switch cmd := manscdp.CmdType(body); cmd {
	case manscdp.CmdKeepalive:
		g.onKeepalive(req, route, body)
	case manscdp.CmdDeviceStatus:
		g.onDeviceStatus(req, route, body)
	case manscdp.CmdCatalog:
		g.onCatalog(req, route, body)
	case manscdp.CmdDeviceInfo:
		g.onDeviceInfo(req, route, body)
	default:
		g.log.Debug().Str("cmd_type", cmd).Str("src", route.Addr).Msg("unhandled manscdp command")
		g.respond(req, route, sip.StatusOK, "OK", nil)
	}
}

func (g *Gateway) onKeepalive(req *sip.Request, route store.Route, body string) {
	var ka manscdp.Keepalive
	if err := manscdp.Unmarshal(body, &ka); err != nil {
		parseErrors.Inc()
		g.log.Warn().Err(err).Msg("dropping bad keepalive body")
		return
	}

	g.store.SetGlobalSN(ka.SN)
	if !g.store.RegisterKeepalive(ka.DeviceID) {
		// Happens after a gateway restart; the device re-registers when its
		// registration expires.
		g.log.Warn().Str("gb_code", ka.DeviceID).Msg("keepalive from unknown device")
	}
	g.respond(req, route, sip.StatusOK, "OK", nil)
}

func (g *Gateway) onDeviceStatus(req *sip.Request, route store.Route, body string) {
	var ds manscdp.DeviceStatus
	if err := manscdp.Unmarshal(body, &ds); err != nil {
		parseErrors.Inc()
		g.log.Warn().Err(err).Msg("dropping bad device status body")
		return
	}

	g.store.SetGlobalSN(ds.SN)
	g.log.Info().
		Str("gb_code", ds.DeviceID).
		Str("online", ds.Online).
		Str("status", ds.Status).
		Msg("device status")
	g.respond(req, route, sip.StatusOK, "OK", nil)
}

func (g *Gateway) onCatalog(req *sip.Request, route store.Route, body string) {
	var cat manscdp.Catalog
	if err := manscdp.Unmarshal(body, &cat); err != nil {
		parseErrors.Inc()
		g.log.Warn().Err(err).Msg("dropping bad catalog body")
		return
	}

	g.store.SetGlobalSN(cat.SN)
	subs := make([]store.SubDevice, 0, len(cat.DeviceList.Items))
	for _, item := range cat.DeviceList.Items {
		subs = append(subs, store.SubDevice{
			DeviceID:     item.DeviceID,
			Name:         item.Name,
			Manufacturer: item.Manufacturer,
			Model:        item.Model,
			Owner:        item.Owner,
			CivilCode:    item.CivilCode,
			Address:      item.Address,
			ParentID:     item.ParentID,
			Status:       item.Status,
		})
	}
	if !g.store.SaveCatalog(cat.DeviceID, subs) {
		g.log.Warn().Str("gb_code", cat.DeviceID).Msg("catalog from unknown device")
	}
	g.respond(req, route, sip.StatusOK, "OK", nil)
}

func (g *Gateway) onDeviceInfo(req *sip.Request, route store.Route, body string) {
	var di manscdp.DeviceInfo
	if err := manscdp.Unmarshal(body, &di); err != nil {
		parseErrors.Inc()
		g.log.Warn().Err(err).Msg("dropping bad device info body")
		return
	}

	g.store.SetGlobalSN(di.SN)
	g.log.Info().
		Str("gb_code", di.DeviceID).
		Str("manufacturer", di.Manufacturer).
		Str("model", di.Model).
		Str("firmware", di.Firmware).
		Msg("device info")
	g.respond(req, route, sip.StatusOK, "OK", nil)
}

// Outbound MANSCDP queries. Each one is a new MESSAGE toward the device's
// registered route, numbered from the shared SN counter.

func (g *Gateway) SendDeviceStatusQuery(gbCode string) error {
	return g.sendQuery(gbCode, manscdp.NewDeviceStatusQuery(g.store.AddFetchGlobalSN(), gbCode))
}

func (g *Gateway) SendCatalogQuery(gbCode string) error {
	return g.sendQuery(gbCode, manscdp.NewCatalogQuery(g.store.AddFetchGlobalSN(), gbCode))
}

func (g *Gateway) SendDeviceInfoQuery(gbCode string) error {
	return g.sendQuery(gbCode, manscdp.NewDeviceInfoQuery(g.store.AddFetchGlobalSN(), gbCode))
}

func (g *Gateway) sendQuery(gbCode string, q *manscdp.Query) error {
	dev, ok := g.store.FindDeviceByGBCode(gbCode)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, gbCode)
	}

	body, err := manscdp.Marshal(q)
	if err != nil {
		return err
	}
	wire, err := manscdp.EncodeBody(body)
	if err != nil {
		return err
	}

	req := sip.NewRequest(sip.MESSAGE, g.recipient(gbCode))
	req.AppendHeader(g.via(dev.Route.Transport, sip.GenerateBranch()))
	mf := sip.MaxForwardsHeader(70)
	req.AppendHeader(&mf)
	req.AppendHeader(g.from(sip.GenerateTag(10)))
	req.AppendHeader(g.to(gbCode, ""))
	callID := sip.CallIDHeader(g.newCallID())
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: g.store.AddFetchGlobalSequence(), MethodName: sip.MESSAGE})
	req.AppendHeader(sip.NewHeader("User-Agent", UserAgent))
	ct := sip.ContentTypeHeader("Application/MANSCDP+xml")
	req.AppendHeader(&ct)
	req.SetBody(wire)

	g.log.Debug().Str("gb_code", gbCode).Str("cmd_type", q.CmdType).Msg("sending query")
	return g.send(dev.Route, req)
}
