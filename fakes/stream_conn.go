package fakes

import "sync"

// StreamConn records everything written to it, standing in for the write
// half of a TCP or WebSocket connection.
type StreamConn struct {
	mu     sync.Mutex
	writes [][]byte
}

func (c *StreamConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

// Writes returns every Write payload in order.
func (c *StreamConn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

// Last returns the most recent write, nil when none.
func (c *StreamConn) Last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.writes) == 0 {
		return nil
	}
	return c.writes[len(c.writes)-1]
}
