// Package store keeps the gateway's view of registered devices and active
// media streams, and owns the sequence counters shared by all outgoing
// requests. Engines are pluggable; only the in-memory engine is implemented.
package store

import (
	"fmt"
	"io"

	"github.com/gbt28181/sipgw/conf"
)

// Route is how to reach a device on the wire: the source address recorded
// at registration and, for stream transports, the connection writer.
type Route struct {
	Transport string
	Addr      string
	Conn      io.Writer
}

// DeviceInfo is the registered state of one device.
type DeviceInfo struct {
	Branch string
	Route  Route
}

// SubDevice is a channel reported by a Catalog response.
type SubDevice struct {
	DeviceID     string
	Name         string
	Manufacturer string
	Model        string
	Owner        string
	CivilCode    string
	Address      string
	ParentID     string
	Status       string
}

// InviteResult is returned by Invite.
type InviteResult struct {
	// AlreadyPlaying is set when the device had at least one active stream
	// before this one. The caller must not send a second wire INVITE.
	AlreadyPlaying bool
	StreamID       uint32
	ChannelID      string
	Branch         string
	Route          Route
}

// ByeResult is returned by Bye.
type ByeResult struct {
	// Last is set when this was the device's final stream and a wire BYE
	// must be sent.
	Last      bool
	CallerID  string
	FromTag   string
	ToTag     string
	Branch    string
	Route     Route
	MediaIP   string
	MediaPort int
}

// StreamTimeout identifies a stream the sweeper found expired.
type StreamTimeout struct {
	GBCode   string
	StreamID uint32
}

// Engine is the storage contract. All methods are safe for concurrent use.
type Engine interface {
	IsConnected() bool

	// Counts reports registered devices and active streams, for metrics.
	Counts() (devices, streams int)

	// MANSCDP SN counter.
	SetGlobalSN(v uint32)
	AddFetchGlobalSN() uint32

	// CSeq counter for REGISTER-path responses.
	SetRegisterSequence(v uint32)
	AddFetchRegisterSequence() uint32

	// CSeq counter for gateway-originated requests.
	SetGlobalSequence(v uint32)
	AddFetchGlobalSequence() uint32

	FindDeviceByGBCode(gbCode string) (DeviceInfo, bool)
	FindDeviceByStreamID(streamID uint32) (DeviceInfo, bool)
	FindGBCode(streamID uint32) string
	FindGBCodeByCallerID(callerID string) (string, bool)

	// Register records a device. Returns false when the device is already
	// known; keepalives refresh liveness, not re-registration.
	Register(branch, gbCode string, route Route) bool
	Unregister(gbCode string) bool
	RegisterKeepalive(gbCode string) bool

	SaveCatalog(gbCode string, subs []SubDevice) bool
	Catalog(gbCode string) []SubDevice

	// Invite allocates a stream for the device and returns dialog material.
	// The bool result is false when the device is not registered.
	Invite(gbCode, channelID, callerID, fromTag string, live bool) (InviteResult, bool)
	UpdateStreamServerInfo(streamID uint32, mediaIP string, mediaPort int)
	// UpdateStreamTagInfo records the remote tag once the dialog is
	// confirmed, matched by our From tag.
	UpdateStreamTagInfo(fromTag, toTag string)
	// Bye removes the stream. The bool result is false only when the
	// stream is unknown; a device removed first leaves the Route empty.
	Bye(gbCode string, streamID uint32) (ByeResult, bool)
	StreamKeepalive(gbCode string, streamID uint32) bool

	// Sweeper lifecycle. Expired entries are reported on the channels but
	// never removed here; teardown is the consumer's job.
	StartTimeoutCheck()
	StopTimeoutCheck()
	TimeoutDevices() <-chan string
	TimeoutStreams() <-chan StreamTimeout
}

// New selects an engine by conf store_engine.
func New(cfg *conf.Config) (Engine, error) {
	switch cfg.StoreEngine {
	case "memory":
		return NewMemory(cfg), nil
	default:
		return nil, fmt.Errorf("unknown store engine %q", cfg.StoreEngine)
	}
}
