// Package fakes holds in-memory transport stand-ins for gateway tests.
package fakes

import (
	"net"
	"sync"
	"time"
)

type packet struct {
	data []byte
	addr net.Addr
}

// UDPConn is an in-memory net.PacketConn. Writes are recorded per
// destination; reads pop packets queued with Deliver.
type UDPConn struct {
	Local net.Addr

	mu   sync.Mutex
	sent map[string][][]byte

	inbox     chan packet
	closeOnce sync.Once
	closed    chan struct{}
}

func NewUDPConn() *UDPConn {
	return &UDPConn{
		Local:  &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5060},
		sent:   make(map[string][][]byte),
		inbox:  make(chan packet, 32),
		closed: make(chan struct{}),
	}
}

// Deliver queues a packet for ReadFrom.
func (c *UDPConn) Deliver(data []byte, from net.Addr) {
	c.inbox <- packet{data: append([]byte(nil), data...), addr: from}
}

// Sent returns everything written toward addr, in order.
func (c *UDPConn) Sent(addr string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent[addr]...)
}

// LastSent returns the most recent write toward addr, nil when none.
func (c *UDPConn) LastSent(addr string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.sent[addr]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (c *UDPConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case p := <-c.inbox:
		return copy(b, p.data), p.addr, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *UDPConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := addr.String()
	c.sent[key] = append(c.sent[key], append([]byte(nil), b...))
	return len(b), nil
}

func (c *UDPConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *UDPConn) LocalAddr() net.Addr { return c.Local }

func (c *UDPConn) SetDeadline(time.Time) error      { return nil }
func (c *UDPConn) SetReadDeadline(time.Time) error  { return nil }
func (c *UDPConn) SetWriteDeadline(time.Time) error { return nil }
