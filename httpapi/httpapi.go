// Package httpapi is the operator control plane: a JSON API over gin for
// starting and stopping sessions, stream keepalives, catalog access and
// device queries, plus the Prometheus metrics endpoint.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	sipgw "github.com/gbt28181/sipgw"
	"github.com/gbt28181/sipgw/sdp"
	"github.com/gbt28181/sipgw/store"
)

// Result is the common response envelope. Code 0 means success.
type Result struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

var resultOK = Result{Code: 0, Msg: "OK"}

type PlayRequest struct {
	GBCode    string `json:"gb_code" binding:"required"`
	ChannelID string `json:"channel_id"`
	SetupType string `json:"setup_type"`
}

type ReplayRequest struct {
	GBCode    string `json:"gb_code" binding:"required"`
	ChannelID string `json:"channel_id"`
	SetupType string `json:"setup_type"`
	StartTS   uint64 `json:"start_ts" binding:"required"`
	StopTS    uint64 `json:"stop_ts" binding:"required"`
}

type StreamRequest struct {
	GBCode   string `json:"gb_code" binding:"required"`
	StreamID uint32 `json:"stream_id" binding:"required"`
}

type QueryRequest struct {
	GBCode string `json:"gb_code" binding:"required"`
}

type SessionResponse struct {
	Result
	GBCode    string `json:"gb_code"`
	StreamID  uint32 `json:"stream_id"`
	MediaIP   string `json:"media_ip"`
	MediaPort int    `json:"media_port"`
}

type StopResponse struct {
	Result
	GBCode   string `json:"gb_code"`
	StreamID uint32 `json:"stream_id"`
}

// Server wires the routes to the gateway and store.
type Server struct {
	gw     *sipgw.Gateway
	store  store.Engine
	log    zerolog.Logger
	engine *gin.Engine
}

func New(gw *sipgw.Gateway, st store.Engine) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		gw:    gw,
		store: st,
		log:   log.Logger.With().Str("caller", "HTTPApi").Logger(),
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/live/play", s.livePlay)
	r.POST("/live/stop", s.stop)
	r.POST("/live/keepalive", s.keepalive)
	r.POST("/replay/start", s.replayStart)
	r.POST("/replay/stop", s.stop)
	r.POST("/replay/keepalive", s.keepalive)

	r.GET("/device/:gb_code/catalog", s.catalog)
	r.POST("/device/query/catalog", s.queryCatalog)
	r.POST("/device/query/device_info", s.queryDeviceInfo)
	r.POST("/device/query/device_status", s.queryDeviceStatus)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = r
	return s
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.log.Info().Str("addr", addr).Msg("http api started")
	return s.engine.Run(addr)
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) livePlay(c *gin.Context) {
	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{Code: 400, Msg: err.Error()})
		return
	}
	s.startSession(c, sipgw.SessionRequest{
		GBCode:    req.GBCode,
		ChannelID: req.ChannelID,
		SetupType: req.SetupType,
		Session:   sdp.Play,
	})
}

func (s *Server) replayStart(c *gin.Context) {
	var req ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{Code: 400, Msg: err.Error()})
		return
	}
	if req.StopTS <= req.StartTS {
		c.JSON(http.StatusBadRequest, Result{Code: 400, Msg: "stop_ts must be after start_ts"})
		return
	}
	s.startSession(c, sipgw.SessionRequest{
		GBCode:    req.GBCode,
		ChannelID: req.ChannelID,
		SetupType: req.SetupType,
		Session:   sdp.Playback,
		StartTS:   req.StartTS,
		StopTS:    req.StopTS,
	})
}

func (s *Server) startSession(c *gin.Context, sr sipgw.SessionRequest) {
	info, err := s.gw.StartSession(c.Request.Context(), sr)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{
		Result:    resultOK,
		GBCode:    info.GBCode,
		StreamID:  info.StreamID,
		MediaIP:   info.MediaIP,
		MediaPort: info.MediaPort,
	})
}

func (s *Server) stop(c *gin.Context) {
	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{Code: 400, Msg: err.Error()})
		return
	}
	// Stop is idempotent, an unknown stream still answers OK.
	s.gw.StopSession(c.Request.Context(), req.GBCode, req.StreamID)
	c.JSON(http.StatusOK, StopResponse{Result: resultOK, GBCode: req.GBCode, StreamID: req.StreamID})
}

func (s *Server) keepalive(c *gin.Context) {
	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{Code: 400, Msg: err.Error()})
		return
	}
	if !s.store.StreamKeepalive(req.GBCode, req.StreamID) {
		c.JSON(http.StatusNotFound, Result{Code: 404, Msg: "stream not found"})
		return
	}
	c.JSON(http.StatusOK, StopResponse{Result: resultOK, GBCode: req.GBCode, StreamID: req.StreamID})
}

func (s *Server) catalog(c *gin.Context) {
	gbCode := c.Param("gb_code")
	if _, ok := s.store.FindDeviceByGBCode(gbCode); !ok {
		c.JSON(http.StatusNotFound, Result{Code: 404, Msg: "device not registered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"msg":     "OK",
		"gb_code": gbCode,
		"items":   s.store.Catalog(gbCode),
	})
}

func (s *Server) queryCatalog(c *gin.Context) {
	s.query(c, s.gw.SendCatalogQuery)
}

func (s *Server) queryDeviceInfo(c *gin.Context) {
	s.query(c, s.gw.SendDeviceInfoQuery)
}

func (s *Server) queryDeviceStatus(c *gin.Context) {
	s.query(c, s.gw.SendDeviceStatusQuery)
}

// query triggers an asynchronous MANSCDP query; the device's answer lands
// on the SIP side.
func (s *Server) query(c *gin.Context, send func(string) error) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{Code: 400, Msg: err.Error()})
		return
	}
	if err := send(req.GBCode); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resultOK)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, sipgw.ErrNotRegistered) {
		status = http.StatusNotFound
	}
	s.log.Warn().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(status, Result{Code: status, Msg: err.Error()})
}
