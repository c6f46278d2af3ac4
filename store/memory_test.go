package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gbt28181/sipgw/conf"
)

func newTestStore(t *testing.T) *Memory {
	t.Helper()
	cfg, err := conf.Load("")
	require.NoError(t, err)
	return NewMemory(cfg)
}

const (
	testGBCode  = "34020000001320000001"
	testChannel = "34020000001320000002"
)

func testRoute() Route {
	return Route{Transport: "UDP", Addr: "192.168.1.64:5060"}
}

func TestRegisterLifecycle(t *testing.T) {
	m := newTestStore(t)

	require.True(t, m.Register("z9hG4bKabc", testGBCode, testRoute()))
	// Same code again is a no-op
	assert.False(t, m.Register("z9hG4bKdef", testGBCode, testRoute()))

	dev, ok := m.FindDeviceByGBCode(testGBCode)
	require.True(t, ok)
	assert.Equal(t, "z9hG4bKabc", dev.Branch)
	assert.Equal(t, "192.168.1.64:5060", dev.Route.Addr)

	assert.True(t, m.RegisterKeepalive(testGBCode))
	assert.False(t, m.RegisterKeepalive("34020000001320009999"))

	require.True(t, m.Unregister(testGBCode))
	assert.False(t, m.Unregister(testGBCode))
	_, ok = m.FindDeviceByGBCode(testGBCode)
	assert.False(t, ok)
}

func TestInviteStreamIDsAndReverseIndex(t *testing.T) {
	m := newTestStore(t)
	require.True(t, m.Register("z9hG4bKabc", testGBCode, testRoute()))

	r1, ok := m.Invite(testGBCode, testChannel, "caller-1", "ftag-1", true)
	require.True(t, ok)
	assert.False(t, r1.AlreadyPlaying)
	assert.Equal(t, uint32(1), r1.StreamID)
	assert.Equal(t, "z9hG4bKabc", r1.Branch)

	r2, ok := m.Invite(testGBCode, testChannel, "caller-2", "ftag-2", true)
	require.True(t, ok)
	assert.True(t, r2.AlreadyPlaying)
	assert.Equal(t, uint32(2), r2.StreamID)

	// Replay ids come from their own counter
	r3, ok := m.Invite(testGBCode, testChannel, "caller-3", "ftag-3", false)
	require.True(t, ok)
	assert.Equal(t, uint32(1), r3.StreamID)

	assert.Equal(t, testGBCode, m.FindGBCode(r1.StreamID))
	gb, ok := m.FindGBCodeByCallerID("caller-2")
	require.True(t, ok)
	assert.Equal(t, testGBCode, gb)

	_, ok = m.Invite("34020000001320009999", testChannel, "caller-x", "ftag-x", true)
	assert.False(t, ok)
}

func TestByeLastStream(t *testing.T) {
	m := newTestStore(t)
	require.True(t, m.Register("z9hG4bKabc", testGBCode, testRoute()))

	r1, _ := m.Invite(testGBCode, testChannel, "caller-1", "ftag-1", true)
	r2, _ := m.Invite(testGBCode, testChannel, "caller-2", "ftag-2", true)
	m.UpdateStreamServerInfo(r1.StreamID, "10.0.0.1", 20000)
	m.UpdateStreamTagInfo("ftag-1", "abcdef0123")

	b1, ok := m.Bye(testGBCode, r1.StreamID)
	require.True(t, ok)
	assert.False(t, b1.Last)
	assert.Equal(t, "caller-1", b1.CallerID)
	assert.Equal(t, "ftag-1", b1.FromTag)
	assert.Equal(t, "abcdef0123", b1.ToTag)
	assert.Equal(t, "10.0.0.1", b1.MediaIP)
	assert.Equal(t, 20000, b1.MediaPort)

	b2, ok := m.Bye(testGBCode, r2.StreamID)
	require.True(t, ok)
	assert.True(t, b2.Last)

	// Stream is gone afterwards
	_, ok = m.Bye(testGBCode, r2.StreamID)
	assert.False(t, ok)
	assert.Empty(t, m.FindGBCode(r2.StreamID))
}

func TestByeAfterInviteRestoresState(t *testing.T) {
	m := newTestStore(t)
	require.True(t, m.Register("z9hG4bKabc", testGBCode, testRoute()))

	r, _ := m.Invite(testGBCode, testChannel, "caller-1", "ftag-1", true)
	b, ok := m.Bye(testGBCode, r.StreamID)
	require.True(t, ok)
	assert.True(t, b.Last)

	// Next invite behaves like the first again
	r2, _ := m.Invite(testGBCode, testChannel, "caller-2", "ftag-2", true)
	assert.False(t, r2.AlreadyPlaying)
}

func TestByeAfterUnregisterKeepsResult(t *testing.T) {
	m := newTestStore(t)
	require.True(t, m.Register("z9hG4bKabc", testGBCode, testRoute()))

	r, _ := m.Invite(testGBCode, testChannel, "caller-1", "ftag-1", true)
	m.UpdateStreamServerInfo(r.StreamID, "10.0.0.1", 20000)

	// Device times out first; the stream teardown must still see the
	// recorded endpoint, just without a route
	require.True(t, m.Unregister(testGBCode))

	b, ok := m.Bye(testGBCode, r.StreamID)
	require.True(t, ok)
	assert.True(t, b.Last)
	assert.Equal(t, "caller-1", b.CallerID)
	assert.Equal(t, "10.0.0.1", b.MediaIP)
	assert.Equal(t, 20000, b.MediaPort)
	assert.Empty(t, b.Route.Addr)
	assert.Empty(t, m.FindGBCode(r.StreamID))
}

func TestCountersMonotonic(t *testing.T) {
	m := newTestStore(t)

	assert.Equal(t, uint32(1), m.AddFetchGlobalSN())
	assert.Equal(t, uint32(2), m.AddFetchGlobalSN())

	// A set below the current value does not roll back
	m.SetGlobalSN(1)
	assert.Equal(t, uint32(3), m.AddFetchGlobalSN())
	m.SetGlobalSN(10)
	assert.Equal(t, uint32(11), m.AddFetchGlobalSN())

	assert.Equal(t, uint32(1), m.AddFetchRegisterSequence())
	m.SetGlobalSequence(20)
	assert.Equal(t, uint32(21), m.AddFetchGlobalSequence())
}

func TestStreamKeepalive(t *testing.T) {
	m := newTestStore(t)
	require.True(t, m.Register("z9hG4bKabc", testGBCode, testRoute()))
	r, _ := m.Invite(testGBCode, testChannel, "caller-1", "ftag-1", true)

	assert.True(t, m.StreamKeepalive(testGBCode, r.StreamID))
	assert.False(t, m.StreamKeepalive(testGBCode, 999))
	assert.False(t, m.StreamKeepalive("34020000001320009999", r.StreamID))
}

func TestSweepReportsWithoutRemoving(t *testing.T) {
	m := newTestStore(t)
	require.True(t, m.Register("z9hG4bKabc", testGBCode, testRoute()))
	r, _ := m.Invite(testGBCode, testChannel, "caller-1", "ftag-1", true)

	// Nothing expired yet
	m.sweepOnce(time.Now().Unix())
	assert.Empty(t, m.timeoutStreams)
	assert.Empty(t, m.timeoutDevices)

	// Far enough in the future everything has expired
	future := time.Now().Unix() + int64(m.deviceTimeout) + int64(m.streamTimeout) + 10
	m.sweepOnce(future)

	st := <-m.TimeoutStreams()
	assert.Equal(t, StreamTimeout{GBCode: testGBCode, StreamID: r.StreamID}, st)
	gb := <-m.TimeoutDevices()
	assert.Equal(t, testGBCode, gb)

	// Sweeper reports, it does not remove
	_, ok := m.FindDeviceByGBCode(testGBCode)
	assert.True(t, ok)
	assert.Equal(t, testGBCode, m.FindGBCode(r.StreamID))

	// Repeated sweeps keep reporting until the consumer tears down
	m.sweepOnce(future)
	assert.Len(t, m.timeoutStreams, 1)
}

func TestSweeperLifecycle(t *testing.T) {
	m := newTestStore(t)
	m.StartTimeoutCheck()
	// Double start is a no-op
	m.StartTimeoutCheck()
	m.StopTimeoutCheck()
	m.StopTimeoutCheck()
}

func TestCatalog(t *testing.T) {
	m := newTestStore(t)
	require.True(t, m.Register("z9hG4bKabc", testGBCode, testRoute()))

	subs := []SubDevice{{DeviceID: testChannel, Name: "Camera 01", Status: "ON"}}
	require.True(t, m.SaveCatalog(testGBCode, subs))
	assert.False(t, m.SaveCatalog("34020000001320009999", subs))

	got := m.Catalog(testGBCode)
	require.Len(t, got, 1)
	assert.Equal(t, "Camera 01", got[0].Name)

	// Second page appends
	require.True(t, m.SaveCatalog(testGBCode, []SubDevice{{DeviceID: "34020000001320000003", Name: "Camera 02"}}))
	assert.Len(t, m.Catalog(testGBCode), 2)
}

func TestNewByEngine(t *testing.T) {
	cfg, err := conf.Load("")
	require.NoError(t, err)

	eng, err := New(cfg)
	require.NoError(t, err)
	assert.True(t, eng.IsConnected())

	cfg.StoreEngine = "mysql"
	_, err = New(cfg)
	require.Error(t, err)
}
