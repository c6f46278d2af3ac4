package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sipgw "github.com/gbt28181/sipgw"
	"github.com/gbt28181/sipgw/conf"
	"github.com/gbt28181/sipgw/fakes"
	"github.com/gbt28181/sipgw/mediaport"
	"github.com/gbt28181/sipgw/store"
)

const testGBCode = "34020000001320000001"

func newTestServer(t *testing.T) (*Server, store.Engine, *fakes.StreamConn) {
	t.Helper()

	cfg, err := conf.Load("")
	require.NoError(t, err)
	cfg.MyIP = "10.1.1.1"

	st := store.NewMemory(cfg)
	gw := sipgw.New(cfg, st, &mediaport.Static{IP: "10.0.0.1", Port: 20000})

	// The device talks over a recorded stream connection, so the gateway's
	// wire output stays in memory.
	conn := &fakes.StreamConn{}
	st.Register("z9hG4bK595168082", testGBCode, store.Route{
		Transport: "TCP",
		Addr:      "192.168.1.64:5060",
		Conn:      conn,
	})

	return New(gw, st), st, conn
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestLivePlayAndStop(t *testing.T) {
	s, _, conn := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/live/play", m{"gb_code": testGBCode})
	require.Equal(t, http.StatusOK, w.Code)

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, uint32(1), resp.StreamID)
	assert.Equal(t, "10.0.0.1", resp.MediaIP)
	assert.Equal(t, 20000, resp.MediaPort)

	// The INVITE went down the device's connection
	require.Len(t, conn.Writes(), 1)
	assert.Contains(t, string(conn.Last()), "INVITE sip:"+testGBCode+"@")

	w = doJSON(t, s, http.MethodPost, "/live/stop", m{"gb_code": testGBCode, "stream_id": 1})
	require.Equal(t, http.StatusOK, w.Code)
	// Last stream: the BYE is on the wire
	require.Len(t, conn.Writes(), 2)
	assert.Contains(t, string(conn.Last()), "BYE sip:"+testGBCode+"@")
}

func TestLivePlayUnknownDevice(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/live/play", m{"gb_code": "34020000001320009999"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLivePlayBadRequest(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/live/play", m{"channel_id": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopUnknownStream(t *testing.T) {
	s, _, _ := newTestServer(t)

	// Stop always answers OK, known stream or not
	w := doJSON(t, s, http.MethodPost, "/live/stop", m{"gb_code": testGBCode, "stream_id": 9})
	require.Equal(t, http.StatusOK, w.Code)

	var resp StopResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, uint32(9), resp.StreamID)
}

func TestReplayStartValidation(t *testing.T) {
	s, _, conn := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/replay/start", m{
		"gb_code": testGBCode, "start_ts": 200, "stop_ts": 100,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/replay/start", m{
		"gb_code": testGBCode, "start_ts": 1699000000, "stop_ts": 1699003600,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(conn.Last()), "s=Playback")
}

func TestStreamKeepalive(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/live/play", m{"gb_code": testGBCode})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/live/keepalive", m{"gb_code": testGBCode, "stream_id": 1})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/live/keepalive", m{"gb_code": testGBCode, "stream_id": 5})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogEndpoint(t *testing.T) {
	s, st, _ := newTestServer(t)

	st.SaveCatalog(testGBCode, []store.SubDevice{{DeviceID: "34020000001320000002", Name: "Camera 01"}})

	w := doJSON(t, s, http.MethodGet, "/device/"+testGBCode+"/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Camera 01")

	w = doJSON(t, s, http.MethodGet, "/device/34020000001320009999/catalog", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQueryEndpoints(t *testing.T) {
	s, _, conn := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/device/query/catalog", m{"gb_code": testGBCode})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, conn.Writes(), 1)
	assert.Contains(t, string(conn.Last()), "MESSAGE sip:"+testGBCode+"@")

	w = doJSON(t, s, http.MethodPost, "/device/query/device_info", m{"gb_code": "34020000001320009999"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type m = map[string]any
