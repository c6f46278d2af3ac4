// Package mediaport talks to the media streaming service that receives the
// device's RTP. Before an INVITE goes out the gateway asks it to bind a
// receive port for the stream; on teardown the port is released.
package mediaport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Allocation is the endpoint the device should send media to.
type Allocation struct {
	MediaIP   string `json:"media_ip"`
	MediaPort int    `json:"media_port"`
}

// Allocator binds and frees media receive ports.
type Allocator interface {
	BindStreamPort(ctx context.Context, gbCode string, streamID uint32, setupType string) (Allocation, error)
	FreeStreamPort(ctx context.Context, gbCode string, streamID uint32, alloc Allocation) error
}

// Static always answers with a fixed endpoint. Used by tests and by
// deployments with a single media receiver behind a known address.
type Static struct {
	IP   string
	Port int
}

func (s *Static) BindStreamPort(_ context.Context, _ string, _ uint32, _ string) (Allocation, error) {
	return Allocation{MediaIP: s.IP, MediaPort: s.Port}, nil
}

func (s *Static) FreeStreamPort(_ context.Context, _ string, _ uint32, _ Allocation) error {
	return nil
}

// Client is the HTTP/JSON allocator client.
type Client struct {
	baseURL string
	hc      *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 5 * time.Second},
		log:     log.Logger.With().Str("caller", "MediaPortClient").Logger(),
	}
}

type bindRequest struct {
	GBCode    string `json:"gb_code"`
	StreamID  uint32 `json:"stream_id"`
	SetupType string `json:"setup_type,omitempty"`
}

type freeRequest struct {
	GBCode    string `json:"gb_code"`
	StreamID  uint32 `json:"stream_id"`
	MediaIP   string `json:"media_ip,omitempty"`
	MediaPort int    `json:"media_port,omitempty"`
}

func (c *Client) BindStreamPort(ctx context.Context, gbCode string, streamID uint32, setupType string) (Allocation, error) {
	var alloc Allocation
	err := c.post(ctx, "/port/bind", bindRequest{
		GBCode:    gbCode,
		StreamID:  streamID,
		SetupType: setupType,
	}, &alloc)
	if err != nil {
		return Allocation{}, fmt.Errorf("bind stream port: %w", err)
	}
	c.log.Debug().
		Uint32("stream_id", streamID).
		Str("media_ip", alloc.MediaIP).
		Int("media_port", alloc.MediaPort).
		Msg("stream port bound")
	return alloc, nil
}

func (c *Client) FreeStreamPort(ctx context.Context, gbCode string, streamID uint32, alloc Allocation) error {
	err := c.post(ctx, "/port/free", freeRequest{
		GBCode:    gbCode,
		StreamID:  streamID,
		MediaIP:   alloc.MediaIP,
		MediaPort: alloc.MediaPort,
	}, nil)
	if err != nil {
		return fmt.Errorf("free stream port: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
