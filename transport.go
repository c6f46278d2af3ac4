package sipgw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/gbt28181/sipgw/sip"
	"github.com/gbt28181/sipgw/store"
)

// udpWriter is the part of net.PacketConn the sender needs. Tests plug in a
// recording fake.
type udpWriter interface {
	WriteTo(p []byte, addr net.Addr) (n int, err error)
}

// ListenAndServe binds the UDP and TCP listeners (plus the WebSocket one
// when ws_port is set), starts the store sweeper and the timeout consumer,
// and serves until ctx is cancelled.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	udp, err := net.ListenPacket("udp", g.cfg.SipAddr())
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	if uc, ok := udp.(*net.UDPConn); ok {
		if err := uc.SetReadBuffer(g.cfg.SocketRecvBufferSize); err != nil {
			g.log.Warn().Err(err).Msg("setting udp receive buffer failed")
		}
	}
	g.udp = udp

	tcp, err := net.Listen("tcp", g.cfg.SipAddr())
	if err != nil {
		udp.Close()
		return fmt.Errorf("listen tcp: %w", err)
	}

	var wsl net.Listener
	if g.cfg.WSPort > 0 {
		wsl, err = net.Listen("tcp", fmt.Sprintf("%s:%d", g.cfg.Host, g.cfg.WSPort))
		if err != nil {
			udp.Close()
			tcp.Close()
			return fmt.Errorf("listen ws: %w", err)
		}
	}

	g.store.StartTimeoutCheck()
	defer g.store.StopTimeoutCheck()
	go g.consumeTimeouts(ctx)

	errCh := make(chan error, 3)
	go func() { errCh <- g.serveUDP(udp) }()
	go func() { errCh <- g.serveStream(tcp, "TCP") }()
	if wsl != nil {
		go func() { errCh <- g.serveWS(wsl) }()
	}

	g.log.Info().
		Str("addr", g.cfg.SipAddr()).
		Bool("ws", wsl != nil).
		Msg("sip listeners started")

	closeAll := func() {
		udp.Close()
		tcp.Close()
		if wsl != nil {
			wsl.Close()
		}
	}

	select {
	case <-ctx.Done():
		closeAll()
		return nil
	case err := <-errCh:
		closeAll()
		return err
	}
}

func (g *Gateway) serveUDP(conn net.PacketConn) error {
	buf := make([]byte, g.cfg.SocketRecvBufferSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp read: %w", err)
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		g.HandleMessage(data, store.Route{Transport: "UDP", Addr: addr.String()})
	}
}

func (g *Gateway) serveStream(l net.Listener, transport string) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%s accept: %w", transport, err)
		}
		go g.serveConn(conn, transport)
	}
}

// serveConn reads one stream connection to EOF, cutting messages with the
// framer. The write half is shared with concurrent senders through the
// route, so it is mutex wrapped.
func (g *Gateway) serveConn(conn net.Conn, transport string) {
	defer conn.Close()

	w := &connWriter{c: conn}
	route := store.Route{Transport: transport, Addr: conn.RemoteAddr().String(), Conn: w}

	framer := &sip.Framer{}
	buf := make([]byte, 8192)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				g.log.Debug().Err(err).Str("src", route.Addr).Msg("stream read ended")
			}
			return
		}
		for _, msg := range framer.Feed(buf[:n]) {
			g.HandleMessage(msg, route)
		}
	}
}

func (g *Gateway) serveWS(l net.Listener) error {
	u := ws.Upgrader{}
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ws accept: %w", err)
		}
		go func() {
			if _, err := u.Upgrade(conn); err != nil {
				g.log.Debug().Err(err).Str("src", conn.RemoteAddr().String()).Msg("ws upgrade failed")
				conn.Close()
				return
			}
			g.serveConn(&wsConn{Conn: conn}, "WS")
		}()
	}
}

// wsConn adapts a websocket connection to the byte stream serveConn
// expects. A SIP message is assumed to fit one frame.
type wsConn struct {
	net.Conn
}

func (c *wsConn) Read(b []byte) (int, error) {
	data, op, err := wsutil.ReadClientData(c.Conn)
	if err != nil {
		return 0, err
	}
	if op == ws.OpClose {
		return 0, io.EOF
	}
	return copy(b, data), nil
}

func (c *wsConn) Write(b []byte) (int, error) {
	if err := wsutil.WriteServerMessage(c.Conn, ws.OpText, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// connWriter serializes writes from concurrent senders on one connection.
type connWriter struct {
	mu sync.Mutex
	c  io.Writer
}

func (w *connWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.Write(p)
}

// send serializes msg and puts it on the wire: through the stream
// connection the route carries, or over the shared UDP socket otherwise.
func (g *Gateway) send(route store.Route, msg sip.Message) error {
	data := []byte(msg.String())

	if route.Conn != nil {
		if _, err := route.Conn.Write(data); err != nil {
			return fmt.Errorf("send to %s via %s: %w", route.Addr, route.Transport, err)
		}
		messagesOut.Inc()
		return nil
	}

	if g.udp == nil {
		return errors.New("udp transport not started")
	}
	addr, err := net.ResolveUDPAddr("udp", route.Addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", route.Addr, err)
	}
	if _, err := g.udp.WriteTo(data, addr); err != nil {
		return fmt.Errorf("send to %s via udp: %w", route.Addr, err)
	}
	messagesOut.Inc()
	return nil
}
