package mediaport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	s := &Static{IP: "10.0.0.1", Port: 20000}

	alloc, err := s.BindStreamPort(context.Background(), "34020000001320000001", 1, "")
	require.NoError(t, err)
	assert.Equal(t, Allocation{MediaIP: "10.0.0.1", MediaPort: 20000}, alloc)
	require.NoError(t, s.FreeStreamPort(context.Background(), "34020000001320000001", 1, alloc))
}

func TestClientBindAndFree(t *testing.T) {
	var freed []uint32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/port/bind":
			var req bindRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "34020000001320000001", req.GBCode)
			assert.Equal(t, uint32(7), req.StreamID)
			json.NewEncoder(w).Encode(Allocation{MediaIP: "10.0.0.2", MediaPort: 30000})
		case "/port/free":
			var req freeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "34020000001320000001", req.GBCode)
			assert.Equal(t, "10.0.0.2", req.MediaIP)
			assert.Equal(t, 30000, req.MediaPort)
			freed = append(freed, req.StreamID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	alloc, err := c.BindStreamPort(context.Background(), "34020000001320000001", 7, "")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", alloc.MediaIP)
	assert.Equal(t, 30000, alloc.MediaPort)

	require.NoError(t, c.FreeStreamPort(context.Background(), "34020000001320000001", 7, alloc))
	assert.Equal(t, []uint32{7}, freed)
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.BindStreamPort(context.Background(), "34020000001320000001", 1, "")
	require.Error(t, err)
	require.Error(t, c.FreeStreamPort(context.Background(), "34020000001320000001", 1, Allocation{}))
}
